package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souvenir-ai/souvenir/internal/storage"
)

// newStores builds one instance of every backend against a temp directory so
// the same behavioral tests run over both.
func newStores(t *testing.T) map[string]storage.SnapshotStore {
	t.Helper()

	dir := t.TempDir()
	fs, err := storage.NewFileStore(filepath.Join(dir, "data"), filepath.Join(dir, "backups"))
	require.NoError(t, err)

	sq, err := storage.NewSQLiteStore(filepath.Join(dir, "souvenir.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]storage.SnapshotStore{"file": fs, "sqlite": sq}
}

func TestSnapshotStore_ReadMissing(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Read(context.Background(), "absent")
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestSnapshotStore_WriteReadRoundTrip(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Write(ctx, "graph.json", []byte(`{"entities":{}}`)))

			data, err := store.Read(ctx, "graph.json")
			require.NoError(t, err)
			assert.Equal(t, `{"entities":{}}`, string(data))

			ok, err := store.Exists(ctx, "graph.json")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestSnapshotStore_WriteReplaces(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Write(ctx, "graph.json", []byte("v1")))
			require.NoError(t, store.Write(ctx, "graph.json", []byte("v2")))

			data, err := store.Read(ctx, "graph.json")
			require.NoError(t, err)
			assert.Equal(t, "v2", string(data))
		})
	}
}

func TestSnapshotStore_BackupMissingIsNoop(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, store.Backup(context.Background(), "absent"))
		})
	}
}

func TestSnapshotStore_BackupPreservesCurrent(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Write(ctx, "graph.json", []byte("old")))
			require.NoError(t, store.Backup(ctx, "graph.json"))
			require.NoError(t, store.Write(ctx, "graph.json", []byte("new")))

			// The live snapshot is the new value; the backup kept the old one.
			data, err := store.Read(ctx, "graph.json")
			require.NoError(t, err)
			assert.Equal(t, "new", string(data))
		})
	}
}

func TestFileStore_BackupFilesAreTimestamped(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	fs, err := storage.NewFileStore(filepath.Join(dir, "data"), backupDir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, fs.Write(ctx, "graph.json", []byte("snapshot")))
	require.NoError(t, fs.Backup(ctx, "graph.json"))

	matches, err := filepath.Glob(filepath.Join(backupDir, "graph.json.*.bak"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestFileStore_BackupPrunesPastRetentionCap(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	fs, err := storage.NewFileStore(filepath.Join(dir, "data"), backupDir)
	require.NoError(t, err)
	fs.MaxBackups = 3

	// Seed old backups with stamps that sort before anything Backup mints.
	for _, stamp := range []string{"20240101T000001", "20240101T000002", "20240101T000003", "20240101T000004"} {
		path := filepath.Join(backupDir, "graph.json."+stamp+".bak")
		require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
	}

	ctx := context.Background()
	require.NoError(t, fs.Write(ctx, "graph.json", []byte("snapshot")))
	require.NoError(t, fs.Backup(ctx, "graph.json"))

	matches, err := filepath.Glob(filepath.Join(backupDir, "graph.json.*.bak"))
	require.NoError(t, err)
	require.Len(t, matches, 3)

	// The survivors are the newest ones: the last two seeds plus the fresh
	// backup of the current snapshot.
	sort.Strings(matches)
	data, err := os.ReadFile(matches[2])
	require.NoError(t, err)
	assert.Equal(t, "snapshot", string(data))
}

func TestSnapshotStore_List(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Write(ctx, "note_food", []byte("a")))
			require.NoError(t, store.Write(ctx, "note_home", []byte("b")))
			require.NoError(t, store.Write(ctx, "graph.json", []byte("c")))

			names, err := store.List(ctx, "note_")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"note_food", "note_home"}, names)
		})
	}
}
