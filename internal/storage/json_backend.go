package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// JSONBackend implements StorageBackend using a single JSON array file.
//
// Writes go through a temporary file and os.Rename so a crash never leaves a
// half-written log behind.
type JSONBackend struct {
	// LogFile is the absolute path to the JSON log file.
	LogFile string

	mu sync.Mutex
}

// NewJSONBackend creates a JSONBackend for logFile. Parent directories are
// created on the first append.
func NewJSONBackend(logFile string) *JSONBackend {
	return &JSONBackend{LogFile: logFile}
}

// LoadHistory reads all entries from the JSON file.
//
// A missing, unreadable or corrupt file yields an empty log rather than an
// error, so a damaged file never stops the server from recording new calls.
func (b *JSONBackend) LoadHistory() ([]CallEntry, error) {
	data, err := os.ReadFile(b.LogFile)
	if err != nil {
		return make([]CallEntry, 0), nil
	}

	var entries []CallEntry
	if err := json.Unmarshal(data, &entries); err != nil || entries == nil {
		return make([]CallEntry, 0), nil
	}

	for i := range entries {
		if entries[i].Arguments == nil {
			entries[i].Arguments = map[string]any{}
		}
	}
	return entries, nil
}

// AppendEntry rewrites the file with entry appended. The file is written
// with 2-space indentation and a trailing newline.
//
// Concurrent appends from one process are serialised; the HTTP transport
// can dispatch several tool calls at once.
func (b *JSONBackend) AppendEntry(entry CallEntry) error {
	if entry.Arguments == nil {
		entry.Arguments = map[string]any{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	dir := filepath.Dir(b.LogFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	history, err := b.LoadHistory()
	if err != nil {
		return err
	}
	history = append(history, entry)

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return writeErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return closeErr
	}

	if err := os.Rename(tmpPath, b.LogFile); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
