package storage

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/JamesPrial/datacommons-mcp/internal/pathutil"
)

// Backend names accepted by GetStorageBackend.
const (
	BackendNone     = "none"
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Default file names inside the call-log directory.
const (
	defaultJSONFile   = "calls.json"
	defaultSQLiteFile = "calls.db"
)

// Options selects and locates a call-log backend.
type Options struct {
	// Backend is one of none, json, sqlite or postgres. Empty means none.
	Backend string

	// Dir is the directory file-based backends live in.
	Dir string

	// Path optionally overrides the file name; it must resolve inside Dir.
	Path string

	// PostgresURL is required for the postgres backend.
	PostgresURL string
}

// GetStorageBackend returns the backend described by opts.
//
// Returns an error for an unknown backend, a custom path escaping Dir, or a
// postgres backend without a connection string.
func GetStorageBackend(opts Options) (StorageBackend, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = BackendNone
	}

	switch backend {
	case BackendNone:
		return NopBackend{}, nil

	case BackendJSON:
		path, err := filePath(opts, defaultJSONFile)
		if err != nil {
			return nil, fmt.Errorf("failed to determine JSON call log path: %w", err)
		}
		return NewJSONBackend(path), nil

	case BackendSQLite:
		path, err := filePath(opts, defaultSQLiteFile)
		if err != nil {
			return nil, fmt.Errorf("failed to determine SQLite database path: %w", err)
		}
		return NewSQLiteBackend(path)

	case BackendPostgres:
		if strings.TrimSpace(opts.PostgresURL) == "" {
			return nil, fmt.Errorf("postgres call log backend requires a connection string")
		}
		return NewPostgresBackend(opts.PostgresURL)

	default:
		return nil, fmt.Errorf("unknown call log backend: %q. Expected one of none, json, sqlite, postgres", opts.Backend)
	}
}

// Close releases b if it holds resources.
func Close(b StorageBackend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func filePath(opts Options, defaultName string) (string, error) {
	dir := pathutil.ExpandHome(strings.TrimSpace(opts.Dir))
	if dir == "" {
		dir = pathutil.DefaultStateDir()
	}

	custom := strings.TrimSpace(opts.Path)
	if custom == "" {
		return filepath.Join(dir, defaultName), nil
	}
	return pathutil.ResolveWithin(dir, pathutil.ExpandHome(custom))
}

// NopBackend discards every entry. It is the default when the call log is
// disabled.
type NopBackend struct{}

// LoadHistory always returns an empty log.
func (NopBackend) LoadHistory() ([]CallEntry, error) { return make([]CallEntry, 0), nil }

// AppendEntry drops entry.
func (NopBackend) AppendEntry(CallEntry) error { return nil }
