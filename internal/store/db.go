// Package store provides the SQLite-backed local record store. It holds
// the replicated collections, the durable offline queue and the sync
// watermark, all in one database file so they survive process restarts
// together.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens the local BrewSync database under dataDir.
// The database is opened with WAL mode for concurrent reads and a
// single writer connection, which matches SQLite's write model.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "brewsync.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Store provides access to the local record collections, the offline
// queue and the sync watermark.
type Store struct {
	db *sql.DB
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates the local tables if they do not exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		table_name TEXT NOT NULL,
		id TEXT NOT NULL,
		payload TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		PRIMARY KEY (table_name, id)
	);
	CREATE TABLE IF NOT EXISTS pending_operations (
		id TEXT PRIMARY KEY,
		table_name TEXT NOT NULL,
		op_type TEXT NOT NULL,
		record_id TEXT NOT NULL,
		payload TEXT,
		enqueued_at INTEGER NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		UNIQUE (table_name, record_id)
	);
	CREATE INDEX IF NOT EXISTS idx_pending_enqueued ON pending_operations(enqueued_at);
	CREATE TABLE IF NOT EXISTS sync_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
