package projection

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/modernice/cqrs/aggregate/repository"
	"github.com/modernice/cqrs/event"
	"github.com/sirupsen/logrus"
)

// ErrPositionGap is returned by a Manager when it receives events that do not
// continue at its current position.
var ErrPositionGap = errors.New("position gap")

// ViewManager manages the instances of a view type and their common position.
// ViewManagers are driven by a single goroutine; only Name and Position may be
// called concurrently.
type ViewManager interface {
	// Name returns the name of the view manager.
	Name() string

	// Position returns the global sequence number of the last event that was
	// dispatched to the manager, or event.BeforeStart.
	Position() int64

	// Init loads the position of the manager from its store.
	Init(ctx context.Context) error

	// Dispatch applies events, ordered by global sequence number, onto the
	// affected views and saves them. Events at or before the position of the
	// manager are skipped.
	Dispatch(ctx context.Context, events []event.Event) error

	// Purge deletes all views and resets the position to event.BeforeStart.
	Purge(ctx context.Context) error
}

// Manager is the ViewManager of views of type V.
type Manager[V View] struct {
	name     string
	registry *Registry[V]
	store    Store[V]
	newView  func(id string) V
	locator  Locator
	repo     *repository.Repository
	log      logrus.FieldLogger

	position atomic.Int64
}

var _ ViewManager = (*Manager[View])(nil)

// ManagerOption is an option for NewManager.
type ManagerOption func(*managerConfig)

type managerConfig struct {
	locator Locator
	repo    *repository.Repository
	log     logrus.FieldLogger
}

// WithLocator returns a ManagerOption that sets the Locator of the manager.
// Default is PerAggregate.
func WithLocator(l Locator) ManagerOption {
	return func(cfg *managerConfig) {
		cfg.locator = l
	}
}

// WithRepository returns a ManagerOption that allows view handlers to load
// aggregates using Context.Load.
func WithRepository(r *repository.Repository) ManagerOption {
	return func(cfg *managerConfig) {
		cfg.repo = r
	}
}

// WithLogger returns a ManagerOption that sets the logger of the manager.
func WithLogger(l logrus.FieldLogger) ManagerOption {
	return func(cfg *managerConfig) {
		cfg.log = l
	}
}

// NewManager returns a Manager for views of type V. newView is called to
// create a view that does not exist yet.
func NewManager[V View](name string, reg *Registry[V], store Store[V], newView func(id string) V, opts ...ManagerOption) *Manager[V] {
	cfg := managerConfig{locator: PerAggregate()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logrus.StandardLogger()
	}

	m := &Manager[V]{
		name:     name,
		registry: reg,
		store:    store,
		newView:  newView,
		locator:  cfg.locator,
		repo:     cfg.repo,
		log:      cfg.log.WithField("manager", name),
	}
	m.position.Store(event.BeforeStart)

	return m
}

// Name returns the name of the manager.
func (m *Manager[V]) Name() string {
	return m.name
}

// Position returns the position of the manager.
func (m *Manager[V]) Position() int64 {
	return m.position.Load()
}

// Init loads the position of the manager from its store.
func (m *Manager[V]) Init(ctx context.Context) error {
	pos, err := m.store.Watermark(ctx)
	if err != nil {
		return fmt.Errorf("load watermark: %w [manager=%s]", err, m.name)
	}
	m.position.Store(pos)
	return nil
}

// Load returns the view with the given id from the store.
func (m *Manager[V]) Load(ctx context.Context, id string) (V, error) {
	return m.store.Load(ctx, id)
}

// Dispatch applies events onto the affected views. The views and the new
// position are saved in a single batch; if anything fails, nothing is saved
// and the position of the manager does not change.
func (m *Manager[V]) Dispatch(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]event.Event, len(events))
	copy(sorted, events)
	event.SortByGlobal(sorted)

	var (
		pos     = m.Position()
		last    = pos
		views   = make(map[string]V)
		touched []V
	)

	for _, evt := range sorted {
		seq := evt.GlobalSequenceNumber()
		if seq <= last {
			continue
		}
		if seq != last+1 {
			return fmt.Errorf("%w: expected global sequence number %d, got %d [manager=%s]", ErrPositionGap, last+1, seq, m.name)
		}
		last = seq

		if !m.relevant(evt) {
			continue
		}

		vctx := NewContext(ctx, evt, m.repo)

		ids, err := m.locator.AffectedViewIDs(vctx, evt)
		if err != nil {
			return fmt.Errorf("locate views: %w [manager=%s, event=%s, position=%d]", err, m.name, evt.Name(), seq)
		}

		for _, id := range ids {
			v, ok := views[id]
			if !ok {
				if v, err = m.view(ctx, id); err != nil {
					return err
				}
				views[id] = v
				touched = append(touched, v)
			}

			if _, err := DispatchToView(vctx, m.registry, evt, v); err != nil {
				return fmt.Errorf("dispatch: %w [manager=%s]", err, m.name)
			}
		}
	}

	if last == pos {
		return nil
	}

	if err := m.store.SaveBatch(ctx, touched, last); err != nil {
		return fmt.Errorf("save views: %w [manager=%s, position=%d]", err, m.name, last)
	}

	m.position.Store(last)

	m.log.WithFields(logrus.Fields{
		"position": last,
		"views":    len(touched),
	}).Trace("[cqrs/projection.Manager] Dispatched events.")

	return nil
}

// Purge deletes all views and resets the position to event.BeforeStart.
func (m *Manager[V]) Purge(ctx context.Context) error {
	if err := m.store.Purge(ctx); err != nil {
		return fmt.Errorf("purge views: %w [manager=%s]", err, m.name)
	}
	m.position.Store(event.BeforeStart)
	return nil
}

func (m *Manager[V]) relevant(evt event.Event) bool {
	if m.registry.Handles(evt.Name()) {
		return true
	}
	if l, ok := m.locator.(eventLocator); ok {
		return l.LocatesEvent(evt.Name())
	}
	return false
}

func (m *Manager[V]) view(ctx context.Context, id string) (V, error) {
	v, err := m.store.Load(ctx, id)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrViewNotFound) {
		return v, fmt.Errorf("load view: %w [manager=%s, view=%s]", err, m.name, id)
	}
	v = m.newView(id)
	v.SetPosition(event.BeforeStart)
	return v, nil
}
