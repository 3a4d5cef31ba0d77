// Package storage provides durable snapshot persistence for the Souvenir
// system.
//
// The layer is deliberately small: the graph store needs read/write/exists
// plus timestamped backups of named blobs, nothing more. Two backends
// implement the interface (a plain filesystem store and a SQLite store) and
// both can be swapped without the graph layer noticing.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a named snapshot does not exist.
var ErrNotFound = errors.New("storage: snapshot not found")

// SnapshotStore is durable key→blob persistence for graph snapshots and
// synthetic-memory notes. No transactions: a Write replaces the blob
// atomically from the reader's point of view, and Backup copies the current
// blob aside under a timestamped name before it is overwritten.
type SnapshotStore interface {
	// Read returns the blob stored under name.
	// Returns ErrNotFound if no blob exists.
	Read(ctx context.Context, name string) ([]byte, error)

	// Write stores the blob under name, replacing any previous value.
	Write(ctx context.Context, name string, data []byte) error

	// Exists reports whether a blob is stored under name.
	Exists(ctx context.Context, name string) (bool, error)

	// Backup copies the current blob under name to a timestamped backup.
	// It is a no-op (nil error) when no blob exists yet.
	Backup(ctx context.Context, name string) error

	// List returns the names of blobs whose name starts with prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases backend resources.
	Close() error
}
