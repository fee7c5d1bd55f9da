package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/modernice/cqrs/aggregate"
	"github.com/modernice/cqrs/aggregate/snapshot"
	"github.com/modernice/cqrs/event"
	"github.com/sirupsen/logrus"
)

// Repository hydrates aggregates from an event log. It is safe for concurrent
// use.
type Repository struct {
	store     event.Store
	factory   aggregate.Factory
	cache     *snapshot.Cache
	snapshots snapshot.Store
	schedule  snapshot.Schedule
	log       logrus.FieldLogger
}

// Option is a Repository option.
type Option func(*Repository)

// WithCache returns an Option that accelerates hydration using the given
// in-memory snapshot cache.
func WithCache(c *snapshot.Cache) Option {
	return func(r *Repository) {
		r.cache = c
	}
}

// WithSnapshots returns an Option that restores aggregates from persisted
// snapshots and saves new snapshots according to the given Schedule.
func WithSnapshots(store snapshot.Store, s snapshot.Schedule) Option {
	return func(r *Repository) {
		r.snapshots = store
		r.schedule = s
	}
}

// WithLogger returns an Option that sets the logger of the Repository.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Repository) {
		r.log = l
	}
}

// existsChecker is implemented by event stores that can check for the
// existence of an aggregate without loading its events.
type existsChecker interface {
	AggregateExists(ctx context.Context, ref event.AggregateRef, cutoff int64) (bool, error)
}

// New returns a Repository that loads events from store and makes aggregates
// using fac.
func New(store event.Store, fac aggregate.Factory, opts ...Option) *Repository {
	r := &Repository{store: store, factory: fac}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	return r
}

// Store returns the event log of the Repository.
func (r *Repository) Store() event.Store {
	return r.store
}

// Factory returns the aggregate factory of the Repository.
func (r *Repository) Factory() aggregate.Factory {
	return r.factory
}

// Hydrate returns the aggregate with the given ref as of the given cutoff.
// Only events with a global sequence number <= cutoff are applied, so the
// returned aggregate reflects the state at exactly that point of the log.
// Use event.Latest to hydrate the current state.
//
// The returned aggregate is never shared: every call returns a new instance.
func (r *Repository) Hydrate(ctx context.Context, ref aggregate.Ref, cutoff int64) (aggregate.Info[aggregate.Aggregate], error) {
	info, err := r.start(ctx, ref, cutoff)
	if err != nil {
		return info, err
	}

	from := aggregate.VersionOf(info.Root)

	events, err := r.store.LoadStream(ctx, ref, from, cutoff)
	if err != nil {
		return info, fmt.Errorf("load events: %w [aggregate=%s]", err, ref)
	}

	if err := aggregate.ApplyHistory(info.Root, events); err != nil {
		return info, fmt.Errorf("apply events: %w", err)
	}

	if len(events) > 0 {
		info.LastGlobal = events[len(events)-1].GlobalSequenceNumber()
	}
	info.Cutoff = cutoff
	info.IsNew = aggregate.VersionOf(info.Root) == 0

	if r.cache != nil {
		if err := r.cache.Put(info); err != nil {
			r.log.WithError(err).WithField("aggregate", ref).Debug("[cqrs/repository.Hydrate] Aggregate not cached.")
		}
	}

	if r.snapshots != nil && r.schedule != nil && len(events) > 0 && r.schedule.Test(info.Root, from) {
		r.saveSnapshot(ctx, info)
	}

	return info, nil
}

func (r *Repository) start(ctx context.Context, ref aggregate.Ref, cutoff int64) (aggregate.Info[aggregate.Aggregate], error) {
	if r.cache != nil {
		if info, ok := r.cache.Get(ref, cutoff); ok {
			return info, nil
		}
	}

	a, err := r.factory.Make(ref.Name, ref.ID)
	if err != nil {
		return aggregate.Info[aggregate.Aggregate]{}, fmt.Errorf("make aggregate: %w", err)
	}

	if r.snapshots != nil {
		snap, err := r.snapshots.Latest(ctx, ref.Name, ref.ID, cutoff)
		switch {
		case err == nil:
			info, err := snapshot.Restore(snap, a)
			if err == nil {
				return info, nil
			}
			r.log.WithError(err).WithField("aggregate", ref).Warn("[cqrs/repository.Hydrate] Failed to restore snapshot. Replaying all events.")
			if a, err = r.factory.Make(ref.Name, ref.ID); err != nil {
				return aggregate.Info[aggregate.Aggregate]{}, fmt.Errorf("make aggregate: %w", err)
			}
		case !errors.Is(err, snapshot.ErrNotFound):
			r.log.WithError(err).WithField("aggregate", ref).Warn("[cqrs/repository.Hydrate] Failed to load snapshot. Replaying all events.")
		}
	}

	return aggregate.Info[aggregate.Aggregate]{
		Root:       a,
		Cutoff:     event.BeforeStart,
		LastGlobal: event.BeforeStart,
	}, nil
}

func (r *Repository) saveSnapshot(ctx context.Context, info aggregate.Info[aggregate.Aggregate]) {
	snap, err := snapshot.New(info)
	if err != nil {
		r.log.WithError(err).WithField("aggregate", info.Ref()).Warn("[cqrs/repository.Hydrate] Failed to create snapshot.")
		return
	}
	if err := r.snapshots.Save(ctx, snap); err != nil {
		r.log.WithError(err).WithField("aggregate", info.Ref()).Warn("[cqrs/repository.Hydrate] Failed to save snapshot.")
	}
}

// Exists returns whether the aggregate has at least one event with a global
// sequence number <= cutoff.
func (r *Repository) Exists(ctx context.Context, ref aggregate.Ref, cutoff int64) (bool, error) {
	if r.cache != nil {
		if info, ok := r.cache.Get(ref, cutoff); ok && aggregate.VersionOf(info.Root) > 0 {
			return true, nil
		}
	}

	if checker, ok := r.store.(existsChecker); ok {
		exists, err := checker.AggregateExists(ctx, ref, cutoff)
		if err != nil {
			return false, fmt.Errorf("check existence: %w [aggregate=%s]", err, ref)
		}
		return exists, nil
	}

	events, err := r.store.LoadStream(ctx, ref, 0, cutoff)
	if err != nil {
		return false, fmt.Errorf("load events: %w [aggregate=%s]", err, ref)
	}

	return len(events) > 0, nil
}
