package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	operation_id   TEXT NOT NULL,
	operation_kind TEXT NOT NULL,
	timestamp      TEXT NOT NULL,
	duration_ms    INTEGER NOT NULL,
	outcome        TEXT NOT NULL,
	error_code     TEXT,
	error_message  TEXT,
	working_dir    TEXT,
	inputs         TEXT,
	output_summary TEXT,
	metadata       TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_operation_id ON audit_entries(operation_id);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);
`

// SQLiteSink appends entries to an append-only table. Same guarantees as
// FileSink: one row per sealed entry, inserts serialized under a mutex.
type SQLiteSink struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteSink opens (creating if needed) the database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Write inserts the entry as a single row.
func (s *SQLiteSink) Write(e Entry) error {
	inputs, err := json.Marshal(e.Inputs)
	if err != nil {
		return fmt.Errorf("marshal audit inputs: %w", err)
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT INTO audit_entries
		 (operation_id, operation_kind, timestamp, duration_ms, outcome,
		  error_code, error_message, working_dir, inputs, output_summary, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OperationID, e.OperationKind, e.Timestamp.Format("2006-01-02T15:04:05.999999999Z07:00"),
		e.DurationMS, string(e.Outcome), e.ErrorCode, e.ErrorMessage,
		e.WorkingDir, string(inputs), e.OutputSummary, string(metadata),
	)
	return err
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
