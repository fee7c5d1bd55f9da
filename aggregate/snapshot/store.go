package snapshot

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by a Store when no snapshot matches.
var ErrNotFound = errors.New("snapshot not found")

// Store is a database for snapshots.
type Store interface {
	// Save saves the given Snapshot into the Store.
	Save(context.Context, Snapshot) error

	// Latest returns the snapshot with the highest version of the given
	// aggregate whose last applied event has a global sequence number <=
	// cutoff. Latest returns ErrNotFound if there is no such snapshot.
	Latest(ctx context.Context, name string, id uuid.UUID, cutoff int64) (Snapshot, error)

	// Delete deletes all snapshots of the given aggregate.
	Delete(ctx context.Context, name string, id uuid.UUID) error
}
