package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	namespace TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// SQLitePersister stores the snapshot as a row of the kv table
type SQLitePersister struct {
	db        *sql.DB
	namespace string
}

// NewSQLitePersister opens (and creates if needed) the database at path
func NewSQLitePersister(ctx context.Context, path, namespace string) (*SQLitePersister, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if namespace == "" {
		return nil, errEmptyNamespace
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLitePersister{db: db, namespace: namespace}, nil
}

// Save upserts the snapshot row
func (s *SQLitePersister) Save(ctx context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (namespace, value) VALUES (?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET value = excluded.value`,
		s.namespace, data,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or nil
func (s *SQLitePersister) Load(ctx context.Context) (*Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE namespace = ?`, s.namespace).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Clear deletes the snapshot row
func (s *SQLitePersister) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying SQLite connection
func (s *SQLitePersister) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
