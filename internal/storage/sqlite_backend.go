package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register sqlite driver
)

// schemaDDL defines the call log table for the SQLite backend. Arguments are
// stored as JSON text.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS tool_calls (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    session_id TEXT NOT NULL,
    tool TEXT NOT NULL,
    arguments TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_calls_session ON tool_calls(session_id);
CREATE INDEX IF NOT EXISTS idx_calls_tool ON tool_calls(tool);
`

const sqliteSelect = `
	SELECT id, timestamp, session_id, tool, arguments, status, error, duration_ms
	FROM tool_calls`

// SQLiteBackend implements QueryableStorageBackend on a local SQLite file in
// WAL mode. The database handle stays open for the lifetime of the backend.
type SQLiteBackend struct {
	// DBPath is the absolute path to the SQLite database file.
	DBPath string

	db *sql.DB
}

// NewSQLiteBackend opens (creating if needed) the database at dbPath and
// initialises the schema.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteBackend{DBPath: dbPath, db: db}, nil
}

// Close releases the database handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// LoadHistory returns all entries ordered by insertion.
func (b *SQLiteBackend) LoadHistory() ([]CallEntry, error) {
	return b.query(sqliteSelect + ` ORDER BY seq`)
}

// GetEntriesBySession returns the entries for sessionID ordered by insertion.
func (b *SQLiteBackend) GetEntriesBySession(sessionID string) ([]CallEntry, error) {
	return b.query(sqliteSelect+` WHERE session_id = ? ORDER BY seq`, sessionID)
}

// GetEntriesByTool returns the entries for tool ordered by insertion.
func (b *SQLiteBackend) GetEntriesByTool(tool string) ([]CallEntry, error) {
	return b.query(sqliteSelect+` WHERE tool = ? ORDER BY seq`, tool)
}

// AppendEntry inserts entry.
func (b *SQLiteBackend) AppendEntry(entry CallEntry) error {
	_, err := b.db.Exec(
		`INSERT INTO tool_calls (id, timestamp, session_id, tool, arguments, status, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp, entry.SessionID, entry.Tool,
		marshalArguments(entry.Arguments), entry.Status, entry.Error, entry.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert call entry: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) query(q string, args ...any) ([]CallEntry, error) {
	rows, err := b.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query call log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]CallEntry, 0)
	for rows.Next() {
		var e CallEntry
		var argsJSON string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.SessionID, &e.Tool,
			&argsJSON, &e.Status, &e.Error, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		e.Arguments = unmarshalArguments([]byte(argsJSON))
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// marshalArguments serialises args, falling back to "{}" for nil or
// unserialisable input.
func marshalArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func unmarshalArguments(data []byte) map[string]any {
	args := map[string]any{}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &args)
	}
	return args
}
