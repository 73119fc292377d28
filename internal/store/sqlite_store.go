package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"logalert/internal/config"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS configurations (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	revision   INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
`

// SQLiteStore persists configuration documents in one SQLite table.
// Params: database handle and injected clock.
// Returns: file-backed store implementation.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens database file and ensures schema.
// Params: SQLite settings and now function (defaults to time.Now when nil).
// Returns: initialized store or setup error.
func NewSQLiteStore(settings config.SQLiteStoreConfig, now func() time.Time) (*SQLiteStore, error) {
	if now == nil {
		now = time.Now
	}
	if settings.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(settings.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", settings.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), settings.BusyTimeout+5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if settings.BusyTimeout > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", settings.BusyTimeout.Milliseconds())); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create configurations table: %w", err)
	}
	return &SQLiteStore{db: db, now: now}, nil
}

// Get reads one entry.
// Params: key.
// Returns: entry or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, error) {
	var (
		entry     = Entry{Key: key}
		updatedAt string
	)
	row := s.db.QueryRowContext(ctx, `SELECT value, revision, updated_at FROM configurations WHERE key = ?`, key)
	if err := row.Scan(&entry.Value, &entry.Revision, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("get %s: %w", key, err)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		entry.UpdatedAt = parsed
	}
	return entry, nil
}

// Put upserts value and bumps revision.
// Params: key and value bytes.
// Returns: new revision.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	var revision uint64
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO configurations (key, value, revision, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			revision = configurations.revision + 1,
			updated_at = excluded.updated_at
		RETURNING revision`,
		key, value, s.now().UTC().Format(time.RFC3339Nano))
	if err := row.Scan(&revision); err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	return revision, nil
}

// Delete removes key; absent keys are ignored.
// Params: key.
// Returns: delete error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM configurations WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys lists keys by prefix.
// Params: key prefix.
// Returns: matching keys in lexical order.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM configurations WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close closes database handle.
// Params: none.
// Returns: close error.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
