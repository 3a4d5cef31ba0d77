package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots as rows in a SQLite database. It serves the
// same interface as FileStore but keeps everything in one file, which is the
// better fit for deployments that already ship a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// MaxBackups caps retained backup rows per snapshot. Zero means
	// DefaultMaxBackups. Set before first use; not synchronized.
	MaxBackups int
}

// snapshotSchema creates the snapshots and snapshot_backups tables.
const snapshotSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	name       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS snapshot_backups (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	data       BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshot_backups_name ON snapshot_backups(name, created_at);
`

// NewSQLiteStore opens (or creates) the SQLite database at path and ensures
// the snapshot schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: failed to ping sqlite database: %w", err)
	}
	if _, err := db.Exec(snapshotSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: failed to create snapshot schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Read returns the blob stored under name.
func (s *SQLiteStore) Read(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: failed to read snapshot %s: %w", name, err)
	}
	return data, nil
}

// Write upserts the blob under name.
func (s *SQLiteStore) Write(ctx context.Context, name string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (name, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, name, data)
	if err != nil {
		return fmt.Errorf("storage: failed to write snapshot %s: %w", name, err)
	}
	return nil
}

// Exists reports whether a snapshot row is stored under name.
func (s *SQLiteStore) Exists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM snapshots WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: failed to check snapshot %s: %w", name, err)
	}
	return true, nil
}

// Backup copies the current snapshot row into snapshot_backups with the
// current timestamp, then prunes rows past the retention cap. A missing
// snapshot is not an error.
func (s *SQLiteStore) Backup(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshot_backups (name, data, created_at)
		SELECT name, data, ? FROM snapshots WHERE name = ?
	`, time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("storage: failed to back up snapshot %s: %w", name, err)
	}

	keep := s.MaxBackups
	if keep <= 0 {
		keep = DefaultMaxBackups
	}
	return s.pruneBackups(ctx, name, keep)
}

// List returns snapshot names with the given prefix.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM snapshots WHERE name LIKE ? || '%' ORDER BY name", prefix)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("storage: failed to scan snapshot name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Compile-time interface checks.
var (
	_ SnapshotStore = (*FileStore)(nil)
	_ SnapshotStore = (*SQLiteStore)(nil)
)
