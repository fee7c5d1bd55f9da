package memsnap

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
	"github.com/modernice/cqrs/aggregate/snapshot"
	"golang.org/x/exp/slices"
)

var _ snapshot.Store = (*Store)(nil)

// Store is an in-memory snapshot.Store.
type Store struct {
	mux       sync.RWMutex
	snapshots map[aggregate.Ref][]snapshot.Snapshot
}

// New returns a new Store.
func New() *Store {
	return &Store{snapshots: make(map[aggregate.Ref][]snapshot.Snapshot)}
}

// Save saves the snapshot. A snapshot of the same version is replaced.
func (s *Store) Save(_ context.Context, snap snapshot.Snapshot) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	ref := snap.Ref()
	snaps := s.snapshots[ref]
	for i, existing := range snaps {
		if existing.Version == snap.Version {
			snaps[i] = snap
			return nil
		}
	}

	snaps = append(snaps, snap)
	slices.SortFunc(snaps, func(a, b snapshot.Snapshot) bool { return a.Version < b.Version })
	s.snapshots[ref] = snaps

	return nil
}

// Latest returns the latest snapshot that does not exceed cutoff.
func (s *Store) Latest(_ context.Context, name string, id uuid.UUID, cutoff int64) (snapshot.Snapshot, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	snaps := s.snapshots[aggregate.Ref{Name: name, ID: id}]
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].LastGlobal <= cutoff {
			return snaps[i], nil
		}
	}

	return snapshot.Snapshot{}, snapshot.ErrNotFound
}

// Delete deletes all snapshots of an aggregate.
func (s *Store) Delete(_ context.Context, name string, id uuid.UUID) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.snapshots, aggregate.Ref{Name: name, ID: id})
	return nil
}
