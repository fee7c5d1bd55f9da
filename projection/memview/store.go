// Package memview provides an in-memory view store.
package memview

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/projection"
)

// Store is a thread-safe in-memory projection.Store. Views are stored as JSON
// so that loaded views never share state with stored ones.
type Store[V projection.View] struct {
	newView func(id string) V

	mux      sync.RWMutex
	views    map[string][]byte
	position int64
}

var _ projection.Store[projection.View] = (*Store[projection.View])(nil)

// New returns a Store that uses newView to create the views it decodes into.
func New[V projection.View](newView func(id string) V) *Store[V] {
	return &Store[V]{
		newView:  newView,
		views:    make(map[string][]byte),
		position: event.BeforeStart,
	}
}

// Load returns the view with the given id.
func (s *Store[V]) Load(_ context.Context, id string) (V, error) {
	s.mux.RLock()
	b, ok := s.views[id]
	s.mux.RUnlock()

	var zero V
	if !ok {
		return zero, fmt.Errorf("%w [view=%s]", projection.ErrViewNotFound, id)
	}

	v := s.newView(id)
	if err := json.Unmarshal(b, v); err != nil {
		return zero, fmt.Errorf("decode view: %w [view=%s]", err, id)
	}

	return v, nil
}

// SaveBatch saves the views and the position.
func (s *Store[V]) SaveBatch(_ context.Context, views []V, position int64) error {
	encoded := make(map[string][]byte, len(views))
	for _, v := range views {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode view: %w [view=%s]", err, v.ViewID())
		}
		encoded[v.ViewID()] = b
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	for id, b := range encoded {
		s.views[id] = b
	}
	s.position = position

	return nil
}

// Purge deletes all views and resets the position.
func (s *Store[V]) Purge(context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.views = make(map[string][]byte)
	s.position = event.BeforeStart
	return nil
}

// Watermark returns the saved position.
func (s *Store[V]) Watermark(context.Context) (int64, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.position, nil
}

// IDs returns the ids of the stored views.
func (s *Store[V]) IDs() []string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	ids := make([]string, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}
	return ids
}
