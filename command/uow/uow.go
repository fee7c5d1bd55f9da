package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
	"github.com/modernice/cqrs/aggregate/repository"
	"github.com/modernice/cqrs/event"
	"github.com/segmentio/ksuid"
	"golang.org/x/exp/slices"
)

var (
	// ErrNotFound is returned when an aggregate that has no events is loaded
	// without CreateIfMissing.
	ErrNotFound = errors.New("aggregate not found")

	// ErrAlreadyExists is returned when an aggregate that already has events
	// is created.
	ErrAlreadyExists = errors.New("aggregate already exists")

	// ErrCommitted is returned when a UnitOfWork is used after it was
	// committed.
	ErrCommitted = errors.New("unit of work already committed")

	// ErrReadOnly is returned when a UnitOfWork that hydrates aggregates as of
	// a past position is committed.
	ErrReadOnly = errors.New("unit of work is read-only")
)

// UnitOfWork is the scope of a single command attempt. It hydrates
// aggregates through a Repository, returns the same instance for every load
// of the same aggregate and collects the events that are emitted within it.
//
// A UnitOfWork is not safe for concurrent use.
type UnitOfWork struct {
	repo   *repository.Repository
	cutoff int64

	loaded  map[aggregate.Ref]*entry
	order   []aggregate.Ref
	emitted []event.Event

	committed bool
}

type entry struct {
	info    aggregate.Info[aggregate.Aggregate]
	created bool
}

func (e *entry) exists() bool {
	return !e.info.IsNew || e.created
}

// Option is a UnitOfWork option.
type Option func(*UnitOfWork)

// Cutoff returns an Option that hydrates all aggregates as of the given global
// sequence number. A UnitOfWork with a cutoff is read-only.
func Cutoff(cutoff int64) Option {
	return func(u *UnitOfWork) {
		u.cutoff = cutoff
	}
}

// LoadOption is an option for UnitOfWork.Load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	createIfMissing bool
}

// CreateIfMissing returns a LoadOption that creates the aggregate if it has no
// events instead of failing with ErrNotFound.
func CreateIfMissing() LoadOption {
	return func(cfg *loadConfig) {
		cfg.createIfMissing = true
	}
}

// New returns a UnitOfWork that hydrates aggregates using repo.
func New(repo *repository.Repository, opts ...Option) *UnitOfWork {
	u := &UnitOfWork{
		repo:   repo,
		cutoff: event.Latest,
		loaded: make(map[aggregate.Ref]*entry),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Cutoff returns the global sequence number aggregates are hydrated as of.
func (u *UnitOfWork) Cutoff() int64 {
	return u.cutoff
}

// Load returns the aggregate with the given name and id. Load fails with
// ErrNotFound if the aggregate has no events, unless CreateIfMissing is
// passed. Within one UnitOfWork, every call for the same aggregate returns
// the same instance.
func (u *UnitOfWork) Load(ctx context.Context, name string, id uuid.UUID, opts ...LoadOption) (aggregate.Aggregate, error) {
	var cfg loadConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	e, err := u.get(ctx, aggregate.Ref{Name: name, ID: id})
	if err != nil {
		return nil, err
	}

	if !e.exists() {
		if !cfg.createIfMissing {
			return nil, fmt.Errorf("load %s(%s): %w", name, id, ErrNotFound)
		}
		u.create(e)
	}

	return e.info.Root, nil
}

// Create returns a new aggregate with the given name and id. Create fails with
// ErrAlreadyExists if the aggregate already has committed events. If the
// aggregate implements aggregate.Creator, Created is called exactly once,
// when it is first created within the UnitOfWork.
func (u *UnitOfWork) Create(ctx context.Context, name string, id uuid.UUID) (aggregate.Aggregate, error) {
	e, err := u.get(ctx, aggregate.Ref{Name: name, ID: id})
	if err != nil {
		return nil, err
	}

	if !e.info.IsNew {
		return nil, fmt.Errorf("create %s(%s): %w", name, id, ErrAlreadyExists)
	}

	if !e.created {
		u.create(e)
	}

	return e.info.Root, nil
}

// TryLoad returns the aggregate with the given name and id, or false if it has
// no events.
func (u *UnitOfWork) TryLoad(ctx context.Context, name string, id uuid.UUID) (aggregate.Aggregate, bool, error) {
	e, err := u.get(ctx, aggregate.Ref{Name: name, ID: id})
	if err != nil {
		return nil, false, err
	}
	if !e.exists() {
		return nil, false, nil
	}
	return e.info.Root, true, nil
}

// Info returns the hydration info of a loaded aggregate.
func (u *UnitOfWork) Info(ref aggregate.Ref) (aggregate.Info[aggregate.Aggregate], bool) {
	e, ok := u.loaded[ref]
	if !ok {
		return aggregate.Info[aggregate.Aggregate]{}, false
	}
	return e.info, true
}

// Emit adds events to the UnitOfWork that were not recorded by a loaded
// aggregate. The events must be linked to an aggregate and carry the
// sequence numbers they should be committed with.
func (u *UnitOfWork) Emit(events ...event.Event) {
	u.emitted = append(u.emitted, events...)
}

// Changes returns the events that would be committed, in the order they were
// emitted.
func (u *UnitOfWork) Changes() []event.Event {
	var out []event.Event
	for _, ref := range u.order {
		out = append(out, u.loaded[ref].info.Root.AggregateChanges()...)
	}
	out = append(out, u.emitted...)

	slices.SortStableFunc(out, func(a, b event.Event) bool {
		return a.Time().Before(b.Time())
	})

	return out
}

// Commit appends the changes of the UnitOfWork to the event log as a single
// batch and returns the committed events. The changes of the loaded
// aggregates are committed only if the append succeeds.
func (u *UnitOfWork) Commit(ctx context.Context) ([]event.Event, error) {
	if u.committed {
		return nil, ErrCommitted
	}

	changes := u.Changes()
	if len(changes) == 0 {
		u.committed = true
		return nil, nil
	}

	if u.cutoff != event.Latest {
		return nil, fmt.Errorf("commit %d events: %w [cutoff=%d]", len(changes), ErrReadOnly, u.cutoff)
	}

	committed, err := u.repo.Store().Append(ctx, ksuid.New().String(), changes...)
	if err != nil {
		return nil, fmt.Errorf("append events: %w", err)
	}
	u.committed = true

	for _, ref := range u.order {
		e := u.loaded[ref]
		if c, ok := e.info.Root.(aggregate.Committer); ok {
			c.Commit()
		}
	}

	return committed, nil
}

func (u *UnitOfWork) get(ctx context.Context, ref aggregate.Ref) (*entry, error) {
	if u.committed {
		return nil, ErrCommitted
	}

	if e, ok := u.loaded[ref]; ok {
		return e, nil
	}

	info, err := u.repo.Hydrate(ctx, ref, u.cutoff)
	if err != nil {
		return nil, fmt.Errorf("hydrate %s: %w", ref, err)
	}

	e := &entry{info: info}
	u.loaded[ref] = e
	u.order = append(u.order, ref)

	return e, nil
}

func (u *UnitOfWork) create(e *entry) {
	e.created = true
	if c, ok := e.info.Root.(aggregate.Creator); ok {
		c.Created()
	}
}
