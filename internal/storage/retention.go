package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxBackups is how many backups of one snapshot are retained when a
// store's MaxBackups is left at zero.
const DefaultMaxBackups = 10

// pruneFileBackups removes the oldest backups of one snapshot from backupDir,
// keeping the newest keep files. Backup names carry a sortable UTC timestamp
// so lexical order is chronological order.
func pruneFileBackups(backupDir, snapshotName string, keep int) error {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return fmt.Errorf("storage: failed to read backup dir: %w", err)
	}

	prefix := snapshotName + "."
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".bak") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return nil
	}

	sort.Strings(names)
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(backupDir, name)); err != nil {
			return fmt.Errorf("storage: failed to prune backup %s: %w", name, err)
		}
	}
	return nil
}

// pruneSQLiteBackups removes the oldest backup rows of one snapshot, keeping
// the newest keep rows.
func (s *SQLiteStore) pruneBackups(ctx context.Context, name string, keep int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshot_backups
		WHERE name = ? AND id NOT IN (
			SELECT id FROM snapshot_backups
			WHERE name = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)`, name, name, keep)
	if err != nil {
		return fmt.Errorf("storage: failed to prune backups for %s: %w", name, err)
	}
	return nil
}
