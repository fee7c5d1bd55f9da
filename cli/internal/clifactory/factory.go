package clifactory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/modernice/cqrs/aggregate/snapshot"
	"github.com/modernice/cqrs/backend/mongo"
	"github.com/modernice/cqrs/backend/postgres"
	"github.com/modernice/cqrs/backend/sqlite"
	"github.com/modernice/cqrs/codec"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/internal/config"
)

// ErrNoSnapshotStore is returned when the configured backend has no
// persistent snapshot store.
var ErrNoSnapshotStore = errors.New("backend has no snapshot store")

// Factory is used by commands to provide common configuration.
type Factory struct {
	Context  context.Context
	EnvFiles []string
	Backend  string

	enc codec.Encoding

	mux       sync.Mutex
	cfg       *config.Config
	store     event.Store
	snapshots snapshot.Store
	closers   []func()
}

// Option is a Factory option.
type Option func(*Factory)

// Context returns an Option that sets the Context of a Factory.
func Context(ctx context.Context) Option {
	return func(f *Factory) {
		f.Context = ctx
	}
}

// EventStore returns an Option that provides the event log instead of
// opening the configured backend.
func EventStore(store event.Store) Option {
	return func(f *Factory) {
		f.store = store
	}
}

// SnapshotStore returns an Option that provides the snapshot store instead of
// opening the configured backend.
func SnapshotStore(store snapshot.Store) Option {
	return func(f *Factory) {
		f.snapshots = store
	}
}

// New returns a new Factory. Event data is decoded as codec.Raw because the
// CLI does not know the payload types of the application.
func New(opts ...Option) *Factory {
	f := Factory{enc: codec.New(codec.AllowRaw())}
	for _, opt := range opts {
		opt(&f)
	}
	if f.Context == nil {
		f.Context = context.Background()
	}
	return &f
}

// Config loads the configuration from the environment and the configured
// .env files. The --backend flag overrides CQRS_BACKEND.
func (f *Factory) Config() (config.Config, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.config()
}

func (f *Factory) config() (config.Config, error) {
	if f.cfg != nil {
		return *f.cfg, nil
	}

	cfg, err := config.Load(f.EnvFiles...)
	if f.Backend != "" {
		cfg.Backend = f.Backend
		err = cfg.Validate()
	}
	if err != nil {
		return cfg, err
	}
	f.cfg = &cfg

	return cfg, nil
}

// EventStore returns the event log of the configured backend.
func (f *Factory) EventStore(ctx context.Context) (event.Store, error) {
	f.mux.Lock()
	defer f.mux.Unlock()

	if f.store != nil {
		return f.store, nil
	}

	cfg, err := f.config()
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.SQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, f.enc)
		if err != nil {
			return nil, err
		}
		f.closers = append(f.closers, func() { store.Close() })
		f.store = store
	case config.Postgres:
		store := postgres.NewEventStore(f.enc, postgres.URL(cfg.PostgresURL), postgres.Database(cfg.PostgresDatabase))
		if err := connectWithin(ctx, cfg, store.Connect); err != nil {
			return nil, err
		}
		f.closers = append(f.closers, store.Close)
		f.store = store
	case config.Mongo:
		store := mongo.NewEventStore(f.enc, mongo.URL(cfg.MongoURL), mongo.Database(cfg.MongoDatabase))
		if err := connectWithin(ctx, cfg, func(ctx context.Context) error {
			_, err := store.Connect(ctx)
			return err
		}); err != nil {
			return nil, err
		}
		f.store = store
	}

	return f.store, nil
}

// SnapshotStore returns the snapshot store of the configured backend.
func (f *Factory) SnapshotStore(ctx context.Context) (snapshot.Store, error) {
	f.mux.Lock()
	defer f.mux.Unlock()

	if f.snapshots != nil {
		return f.snapshots, nil
	}

	cfg, err := f.config()
	if err != nil {
		return nil, err
	}

	if cfg.Backend != config.Mongo {
		return nil, fmt.Errorf("%w [backend=%s]", ErrNoSnapshotStore, cfg.Backend)
	}

	store := mongo.NewSnapshotStore(mongo.URL(cfg.MongoURL), mongo.Database(cfg.MongoSnapshotDatabase))
	if err := connectWithin(ctx, cfg, func(ctx context.Context) error {
		_, err := store.Connect(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	f.snapshots = store

	return store, nil
}

// Close closes the opened backends.
func (f *Factory) Close() {
	f.mux.Lock()
	defer f.mux.Unlock()
	for _, close := range f.closers {
		close()
	}
	f.closers = nil
}

func connectWithin(ctx context.Context, cfg config.Config, connect func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := connect(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Backend, err)
	}
	return nil
}
