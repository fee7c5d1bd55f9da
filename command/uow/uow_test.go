package uow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
	"github.com/modernice/cqrs/aggregate/repository"
	"github.com/modernice/cqrs/aggregate/test"
	"github.com/modernice/cqrs/command/uow"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/event/eventstore"
	"github.com/segmentio/ksuid"
)

func newRepo(events ...event.Event) (*repository.Repository, event.Store) {
	store := eventstore.New(events...)
	return repository.New(store, test.Factory()), store
}

func TestUnitOfWork_Load_identity(t *testing.T) {
	id := uuid.New()
	repo, _ := newRepo(test.Increments(id, 0, 2)...)
	u := uow.New(repo)
	ctx := context.Background()

	a, err := uow.Load[*test.Counter](ctx, u, test.CounterAggregate, id)
	if err != nil {
		t.Fatalf("Load failed with %q", err)
	}

	a.Increment(5)

	b, err := uow.Load[*test.Counter](ctx, u, test.CounterAggregate, id)
	if err != nil {
		t.Fatalf("Load failed with %q", err)
	}

	if a != b {
		t.Fatalf("Load should return the same instance for the same aggregate")
	}

	if b.Count != 7 {
		t.Fatalf("second Load should observe the change of the first; got Count=%d", b.Count)
	}
}

func TestUnitOfWork_Load_notFound(t *testing.T) {
	repo, _ := newRepo()
	u := uow.New(repo)

	_, err := u.Load(context.Background(), test.CounterAggregate, uuid.New())
	if !errors.Is(err, uow.ErrNotFound) {
		t.Fatalf("Load should fail with %q; got %q", uow.ErrNotFound, err)
	}
}

func TestUnitOfWork_Load_createIfMissing(t *testing.T) {
	repo, _ := newRepo()
	u := uow.New(repo)
	ctx := context.Background()
	id := uuid.New()

	c, err := uow.Load[*test.Counter](ctx, u, test.CounterAggregate, id, uow.CreateIfMissing())
	if err != nil {
		t.Fatalf("Load failed with %q", err)
	}

	if !c.Initialized {
		t.Fatalf("Created should be called for a missing aggregate")
	}

	again, err := uow.Load[*test.Counter](ctx, u, test.CounterAggregate, id)
	if err != nil {
		t.Fatalf("Load of a created aggregate should succeed; got %q", err)
	}

	if again != c || len(c.AggregateChanges()) != 1 {
		t.Fatalf("Created should be called exactly once; got %d changes", len(c.AggregateChanges()))
	}
}

func TestUnitOfWork_Create(t *testing.T) {
	id := uuid.New()
	repo, _ := newRepo(test.Increments(id, 0, 1)...)
	u := uow.New(repo)
	ctx := context.Background()

	if _, err := u.Create(ctx, test.CounterAggregate, id); !errors.Is(err, uow.ErrAlreadyExists) {
		t.Fatalf("Create should fail with %q; got %q", uow.ErrAlreadyExists, err)
	}

	newID := uuid.New()
	a, err := uow.Create[*test.Counter](ctx, u, test.CounterAggregate, newID)
	if err != nil {
		t.Fatalf("Create failed with %q", err)
	}

	b, err := uow.Create[*test.Counter](ctx, u, test.CounterAggregate, newID)
	if err != nil {
		t.Fatalf("second Create failed with %q", err)
	}

	if a != b || len(a.AggregateChanges()) != 1 {
		t.Fatalf("Create should return the same instance and call Created once")
	}
}

func TestUnitOfWork_TryLoad(t *testing.T) {
	id := uuid.New()
	repo, _ := newRepo(test.Increments(id, 0, 1)...)
	u := uow.New(repo)
	ctx := context.Background()

	c, ok, err := uow.TryLoad[*test.Counter](ctx, u, test.CounterAggregate, id)
	if err != nil || !ok || c.Count != 1 {
		t.Fatalf("TryLoad should return the existing counter; got (%v, %v, %v)", c, ok, err)
	}

	_, ok, err = u.TryLoad(ctx, test.CounterAggregate, uuid.New())
	if err != nil || ok {
		t.Fatalf("TryLoad should return (nil, false, nil) for a missing aggregate; got (%v, %v)", ok, err)
	}
}

func TestUnitOfWork_Commit(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	repo, store := newRepo(test.Increments(a, 0, 1)...)
	u := uow.New(repo)
	ctx := context.Background()

	ca, err := uow.Load[*test.Counter](ctx, u, test.CounterAggregate, a)
	if err != nil {
		t.Fatalf("Load failed with %q", err)
	}
	cb, err := uow.Create[*test.Counter](ctx, u, test.CounterAggregate, b)
	if err != nil {
		t.Fatalf("Create failed with %q", err)
	}

	ca.Increment(1)
	cb.Increment(2)
	ca.Label("foo", "bar")

	committed, err := u.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit failed with %q", err)
	}

	if len(committed) != 4 {
		t.Fatalf("Commit should append 4 events; got %d", len(committed))
	}

	batchID := committed[0].BatchID()
	if _, err := ksuid.Parse(batchID); err != nil {
		t.Fatalf("batch id should be a KSUID; got %q", batchID)
	}

	for i, evt := range committed {
		if evt.BatchID() != batchID {
			t.Fatalf("all events should share one batch id; event #%d has %q", i, evt.BatchID())
		}
		if evt.GlobalSequenceNumber() != int64(i+1) {
			t.Fatalf("event #%d should have global sequence number %d; got %d", i, i+1, evt.GlobalSequenceNumber())
		}
	}

	if aggregate.VersionOf(ca) != 3 || len(ca.AggregateChanges()) != 0 {
		t.Fatalf("committed aggregate should have version 3 and no changes; got version %d and %d changes", aggregate.VersionOf(ca), len(ca.AggregateChanges()))
	}

	next, _ := store.NextGlobalSequenceNumber(ctx)
	if next != 5 {
		t.Fatalf("log should contain 5 events; got %d", next)
	}

	if _, err := u.Commit(ctx); !errors.Is(err, uow.ErrCommitted) {
		t.Fatalf("second Commit should fail with %q; got %q", uow.ErrCommitted, err)
	}
}

func TestUnitOfWork_Commit_conflict(t *testing.T) {
	id := uuid.New()
	repo, store := newRepo(test.Increments(id, 0, 1)...)
	u := uow.New(repo)
	ctx := context.Background()

	c, err := uow.Load[*test.Counter](ctx, u, test.CounterAggregate, id)
	if err != nil {
		t.Fatalf("Load failed with %q", err)
	}
	c.Increment(1)

	if _, err := store.Append(ctx, "", test.Increments(id, 1, 1)...); err != nil {
		t.Fatalf("Append failed with %q", err)
	}

	if _, err := u.Commit(ctx); !errors.Is(err, event.ErrConcurrencyConflict) {
		t.Fatalf("Commit should fail with %q; got %q", event.ErrConcurrencyConflict, err)
	}

	if len(c.AggregateChanges()) != 1 {
		t.Fatalf("a failed Commit must not commit the aggregate")
	}
}

func TestUnitOfWork_Emit(t *testing.T) {
	id := uuid.New()
	repo, _ := newRepo()
	u := uow.New(repo)

	u.Emit(test.Increments(id, 0, 2)...)

	committed, err := u.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit failed with %q", err)
	}

	if len(committed) != 2 {
		t.Fatalf("Commit should append the emitted events; got %d events", len(committed))
	}
}

func TestUnitOfWork_Cutoff(t *testing.T) {
	id := uuid.New()
	repo, _ := newRepo(test.Increments(id, 0, 3)...)
	u := uow.New(repo, uow.Cutoff(1))
	ctx := context.Background()

	c, err := uow.Load[*test.Counter](ctx, u, test.CounterAggregate, id)
	if err != nil {
		t.Fatalf("Load failed with %q", err)
	}

	if c.Count != 2 {
		t.Fatalf("counter should be hydrated as of position 1; got Count=%d", c.Count)
	}

	c.Increment(1)
	if _, err := u.Commit(ctx); !errors.Is(err, uow.ErrReadOnly) {
		t.Fatalf("Commit should fail with %q; got %q", uow.ErrReadOnly, err)
	}
}
