package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore persists snapshots as files under a data directory. Backups are
// copies of the current file placed in a separate backup directory with a
// timestamp suffix, so the main directory only ever holds live snapshots.
type FileStore struct {
	dataDir   string
	backupDir string

	// MaxBackups caps retained backups per snapshot. Zero means
	// DefaultMaxBackups. Set before first use; not synchronized.
	MaxBackups int
}

// NewFileStore creates a file-backed snapshot store rooted at dataDir, with
// backups written to backupDir. Both directories are created if needed.
func NewFileStore(dataDir, backupDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create backup dir: %w", err)
	}
	return &FileStore{dataDir: dataDir, backupDir: backupDir}, nil
}

// path maps a snapshot name to its on-disk location. Path separators in the
// name are flattened so a name can never escape the data directory.
func (s *FileStore) path(name string) string {
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	return filepath.Join(s.dataDir, name)
}

// Read returns the contents of the named snapshot file.
func (s *FileStore) Read(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: failed to read %s: %w", name, err)
	}
	return data, nil
}

// Write stores data under name. The blob is written to a temp file in the
// same directory and renamed into place so readers never observe a partial
// snapshot.
func (s *FileStore) Write(_ context.Context, name string, data []byte) error {
	dst := s.path(name)
	tmp, err := os.CreateTemp(s.dataDir, filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: failed to close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: failed to replace %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the named snapshot file is present.
func (s *FileStore) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(s.path(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: failed to stat %s: %w", name, err)
	}
	return true, nil
}

// Backup copies the current snapshot file to the backup directory as
// <name>.<UTC timestamp>.bak. A missing source is not an error: there is
// simply nothing to back up yet.
func (s *FileStore) Backup(_ context.Context, name string) error {
	src, err := os.Open(s.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: failed to open %s for backup: %w", name, err)
	}
	defer func() { _ = src.Close() }()

	stamp := time.Now().UTC().Format("20060102T150405")
	backupName := fmt.Sprintf("%s.%s.bak", filepath.Base(s.path(name)), stamp)
	dst, err := os.Create(filepath.Join(s.backupDir, backupName))
	if err != nil {
		return fmt.Errorf("storage: failed to create backup for %s: %w", name, err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("storage: failed to copy backup for %s: %w", name, err)
	}

	keep := s.MaxBackups
	if keep <= 0 {
		keep = DefaultMaxBackups
	}
	return pruneFileBackups(s.backupDir, filepath.Base(s.path(name)), keep)
}

// List returns snapshot names under the data directory with the given prefix.
func (s *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to list snapshots: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Close is a no-op for the filesystem backend.
func (s *FileStore) Close() error { return nil }
