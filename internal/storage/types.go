// Package storage provides persistence for the MCP tool-call log.
//
// Every search_indicators and get_observations invocation produces one
// CallEntry. Backends only append and read back; entries are never updated.
package storage

import "time"

// Call status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// TimestampFormat is the layout used for CallEntry.Timestamp: ISO 8601 UTC
// with millisecond precision and a Z suffix.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// CallEntry records a single tool invocation.
type CallEntry struct {
	// ID is a random UUID assigned when the call starts.
	ID string `json:"id"`

	// Timestamp is when the call started, formatted with TimestampFormat.
	Timestamp string `json:"timestamp"`

	// SessionID is the MCP client session, or "unknown" when the transport
	// does not provide one.
	SessionID string `json:"session_id"`

	// Tool is the registered tool name.
	Tool string `json:"tool"`

	// Arguments are the raw arguments the client sent.
	Arguments map[string]any `json:"arguments"`

	// Status is StatusOK or StatusError.
	Status string `json:"status"`

	// Error holds the message returned to the client when Status is StatusError.
	Error string `json:"error,omitempty"`

	// DurationMs is the wall time of the call in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// FormatTimestamp renders t in TimestampFormat.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// StorageBackend defines the contract for call-log persistence.
type StorageBackend interface {
	// LoadHistory returns every entry in insertion order. An empty log
	// yields a non-nil empty slice.
	LoadHistory() ([]CallEntry, error)

	// AppendEntry atomically appends entry to the log.
	AppendEntry(entry CallEntry) error
}

// QueryableStorageBackend adds server-side filtering. The SQLite and
// PostgreSQL backends implement it.
type QueryableStorageBackend interface {
	StorageBackend

	// GetEntriesBySession returns the entries recorded for sessionID in
	// insertion order.
	GetEntriesBySession(sessionID string) ([]CallEntry, error)

	// GetEntriesByTool returns the entries recorded for tool in insertion
	// order.
	GetEntriesByTool(tool string) ([]CallEntry, error)
}

// Filter selects entries from any backend. Empty fields match everything.
type Filter struct {
	SessionID string
	Tool      string
}

// Query returns the entries of b matching f, using server-side filtering when
// b implements QueryableStorageBackend.
func Query(b StorageBackend, f Filter) ([]CallEntry, error) {
	if q, ok := b.(QueryableStorageBackend); ok {
		switch {
		case f.SessionID != "" && f.Tool == "":
			return q.GetEntriesBySession(f.SessionID)
		case f.Tool != "" && f.SessionID == "":
			return q.GetEntriesByTool(f.Tool)
		}
	}

	all, err := b.LoadHistory()
	if err != nil {
		return nil, err
	}
	out := make([]CallEntry, 0, len(all))
	for _, e := range all {
		if f.SessionID != "" && e.SessionID != f.SessionID {
			continue
		}
		if f.Tool != "" && e.Tool != f.Tool {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
