package projection

import (
	"context"
	"errors"
)

// ErrViewNotFound is returned by a Store when a view does not exist.
var ErrViewNotFound = errors.New("view not found")

// Store persists the view instances of a single view manager together with
// the position of the manager.
type Store[V View] interface {
	// Load returns the view with the given id, or ErrViewNotFound. Every call
	// returns a new instance.
	Load(ctx context.Context, id string) (V, error)

	// SaveBatch saves the given views and the position of the manager
	// atomically.
	SaveBatch(ctx context.Context, views []V, position int64) error

	// Purge deletes all views and resets the position to event.BeforeStart.
	Purge(ctx context.Context) error

	// Watermark returns the position of the manager, or event.BeforeStart if
	// nothing was saved yet.
	Watermark(ctx context.Context) (int64, error)
}
