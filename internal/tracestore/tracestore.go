// Package tracestore persists dispatch trace events to a SQLite database:
// a pure-Go SQLite driver, WAL mode for concurrent readers, and a validated
// on-disk path alongside an in-memory variant for tests.
package tracestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cryguy/ipcbridge/internal/telemetry"

	_ "github.com/glebarez/sqlite"
)

// Store persists telemetry.TraceEvent rows to an isolated SQLite database.
type Store struct {
	DB *sql.DB
}

// ValidateName rejects names that contain path traversal characters, null
// bytes, or are empty/too long.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("trace store name must not be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("trace store name too long")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("trace store name contains path traversal")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("trace store name contains path separator")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("trace store name contains null byte")
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS trace_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	fn_id INTEGER NOT NULL,
	detail TEXT NOT NULL,
	recorded_at DATETIME NOT NULL
);
`

// Open opens (or creates) an isolated SQLite database at
// {dataDir}/traces/{name}.sqlite3.
func Open(dataDir, name string) (*Store, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	dir := filepath.Join(dataDir, "traces")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating trace store directory: %w", err)
	}
	path := filepath.Join(dir, name+".sqlite3")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening trace store %q: %w", name, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating trace_events table: %w", err)
	}
	return &Store{DB: db}, nil
}

// OpenMemory creates an in-memory Store for tests.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory trace store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating trace_events table: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// Append persists a batch of events in a single transaction.
func (s *Store) Append(events []telemetry.TraceEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO trace_events (kind, fn_id, detail, recorded_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(string(e.Kind), e.FnID, e.Detail, e.Time); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting trace event: %w", err)
		}
	}
	return tx.Commit()
}

// Row is one persisted trace event, with its storage-assigned ID.
type Row struct {
	ID         int64
	Kind       string
	FnID       uint32
	Detail     string
	RecordedAt time.Time
}

// Recent returns the last limit rows, most recent first.
func (s *Store) Recent(limit int) ([]Row, error) {
	rows, err := s.DB.Query(
		"SELECT id, kind, fn_id, detail, recorded_at FROM trace_events ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent trace events: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var fnID int64
		if err := rows.Scan(&r.ID, &r.Kind, &fnID, &r.Detail, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning trace event: %w", err)
		}
		r.FnID = uint32(fnID)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DrainInto drains rec and appends every event to the store. Intended to be
// called periodically (e.g. once per dispatch cycle) by the engine that
// owns both the Recorder and the Store.
func DrainInto(rec *telemetry.Recorder, s *Store) error {
	events := rec.Drain()
	return s.Append(events)
}
