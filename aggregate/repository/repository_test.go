package repository_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
	"github.com/modernice/cqrs/aggregate/repository"
	"github.com/modernice/cqrs/aggregate/snapshot"
	"github.com/modernice/cqrs/aggregate/snapshot/memsnap"
	"github.com/modernice/cqrs/aggregate/test"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/event/eventstore"
)

func appendIncrements(t *testing.T, store event.Store, id uuid.UUID, from, n int) []event.Event {
	t.Helper()
	committed, err := store.Append(context.Background(), "", test.Increments(id, from, n)...)
	if err != nil {
		t.Fatalf("Append failed with %q", err)
	}
	return committed
}

func TestRepository_Hydrate(t *testing.T) {
	ctx := context.Background()
	store := eventstore.New()
	repo := repository.New(store, test.Factory())
	id := uuid.New()
	ref := aggregate.Ref{Name: test.CounterAggregate, ID: id}

	appendIncrements(t, store, id, 0, 3)

	info, err := repo.Hydrate(ctx, ref, event.Latest)
	if err != nil {
		t.Fatalf("Hydrate failed with %q", err)
	}

	c := info.Root.(*test.Counter)
	if c.Count != 3 || aggregate.VersionOf(c) != 3 {
		t.Fatalf("hydrated counter should have Count=3 and version 3; got Count=%d version=%d", c.Count, aggregate.VersionOf(c))
	}

	if info.LastGlobal != 2 {
		t.Fatalf("LastGlobal should be 2; got %d", info.LastGlobal)
	}

	if info.IsNew {
		t.Fatalf("an aggregate with events should not be new")
	}
}

func TestRepository_Hydrate_new(t *testing.T) {
	repo := repository.New(eventstore.New(), test.Factory())

	info, err := repo.Hydrate(context.Background(), aggregate.Ref{Name: test.CounterAggregate, ID: uuid.New()}, event.Latest)
	if err != nil {
		t.Fatalf("Hydrate failed with %q", err)
	}

	if !info.IsNew {
		t.Fatalf("an aggregate without events should be new")
	}

	if info.LastGlobal != event.BeforeStart {
		t.Fatalf("LastGlobal should be %d; got %d", event.BeforeStart, info.LastGlobal)
	}
}

func TestRepository_Hydrate_cutoff(t *testing.T) {
	ctx := context.Background()
	store := eventstore.New()
	repo := repository.New(store, test.Factory())
	a, b := uuid.New(), uuid.New()

	appendIncrements(t, store, a, 0, 1) // 0
	appendIncrements(t, store, b, 0, 1) // 1
	appendIncrements(t, store, a, 1, 1) // 2
	appendIncrements(t, store, b, 1, 1) // 3
	appendIncrements(t, store, a, 2, 1) // 4

	refA := aggregate.Ref{Name: test.CounterAggregate, ID: a}

	tests := []struct {
		cutoff int64
		count  int
	}{
		{cutoff: event.BeforeStart, count: 0},
		{cutoff: 0, count: 1},
		{cutoff: 1, count: 1},
		{cutoff: 2, count: 2},
		{cutoff: 3, count: 2},
		{cutoff: event.Latest, count: 3},
	}

	for _, tt := range tests {
		info, err := repo.Hydrate(ctx, refA, tt.cutoff)
		if err != nil {
			t.Fatalf("Hydrate(%d) failed with %q", tt.cutoff, err)
		}
		if c := info.Root.(*test.Counter); c.Count != tt.count {
			t.Fatalf("Hydrate(%d) should return Count=%d; got %d", tt.cutoff, tt.count, c.Count)
		}
	}
}

func TestRepository_Hydrate_pointInTime(t *testing.T) {
	ctx := context.Background()
	store := eventstore.New()
	cache := snapshot.NewCache(test.Factory())
	repo := repository.New(store, test.Factory(), repository.WithCache(cache))
	id := uuid.New()
	ref := aggregate.Ref{Name: test.CounterAggregate, ID: id}

	appendIncrements(t, store, id, 0, 2)

	atC, err := repo.Hydrate(ctx, ref, 1)
	if err != nil {
		t.Fatalf("Hydrate failed with %q", err)
	}
	before := atC.Root.(*test.Counter)
	wantHistory := append([]int(nil), before.History...)

	appendIncrements(t, store, id, 2, 1)

	latest, err := repo.Hydrate(ctx, ref, event.Latest)
	if err != nil {
		t.Fatalf("Hydrate failed with %q", err)
	}

	if c := latest.Root.(*test.Counter); c.Count != 3 {
		t.Fatalf("latest counter should have Count=3; got %d", c.Count)
	}

	if before.Count != 2 || !cmp.Equal(wantHistory, before.History) {
		t.Fatalf("hydrating a later state must not change an instance obtained earlier; got Count=%d History=%v", before.Count, before.History)
	}

	again, err := repo.Hydrate(ctx, ref, 1)
	if err != nil {
		t.Fatalf("Hydrate failed with %q", err)
	}

	if c := again.Root.(*test.Counter); c.Count != 2 {
		t.Fatalf("Hydrate(1) should still return Count=2; got %d", c.Count)
	}
}

func TestRepository_Hydrate_cache(t *testing.T) {
	ctx := context.Background()
	store := eventstore.New()
	cache := snapshot.NewCache(test.Factory())
	repo := repository.New(store, test.Factory(), repository.WithCache(cache))
	id := uuid.New()
	ref := aggregate.Ref{Name: test.CounterAggregate, ID: id}

	appendIncrements(t, store, id, 0, 3)

	first, err := repo.Hydrate(ctx, ref, event.Latest)
	if err != nil {
		t.Fatalf("Hydrate failed with %q", err)
	}

	appendIncrements(t, store, id, 3, 2)

	second, err := repo.Hydrate(ctx, ref, event.Latest)
	if err != nil {
		t.Fatalf("Hydrate failed with %q", err)
	}

	if first.Root == second.Root {
		t.Fatalf("Hydrate must never return the same instance twice")
	}

	if c := second.Root.(*test.Counter); c.Count != 5 || aggregate.VersionOf(c) != 5 {
		t.Fatalf("second hydration should replay the delta; got Count=%d version=%d", c.Count, aggregate.VersionOf(c))
	}

	if second.LastGlobal != 4 {
		t.Fatalf("LastGlobal should be 4; got %d", second.LastGlobal)
	}

	if hits := cache.Stats().Hits; hits != 1 {
		t.Fatalf("second hydration should hit the cache; got %d hits", hits)
	}
}

func TestRepository_Hydrate_snapshots(t *testing.T) {
	ctx := context.Background()
	store := eventstore.New()
	snaps := memsnap.New()
	id := uuid.New()
	ref := aggregate.Ref{Name: test.CounterAggregate, ID: id}

	appendIncrements(t, store, id, 0, 4)

	repo := repository.New(store, test.Factory(), repository.WithSnapshots(snaps, snapshot.Every(2)))
	if _, err := repo.Hydrate(ctx, ref, event.Latest); err != nil {
		t.Fatalf("Hydrate failed with %q", err)
	}

	snap, err := snaps.Latest(ctx, ref.Name, ref.ID, event.Latest)
	if err != nil {
		t.Fatalf("a snapshot should be saved: %v", err)
	}

	if snap.Version != 4 || snap.LastGlobal != 3 {
		t.Fatalf("snapshot should have version 4 and LastGlobal 3; got version %d and LastGlobal %d", snap.Version, snap.LastGlobal)
	}

	appendIncrements(t, store, id, 4, 1)

	info, err := repo.Hydrate(ctx, ref, event.Latest)
	if err != nil {
		t.Fatalf("Hydrate failed with %q", err)
	}

	if c := info.Root.(*test.Counter); c.Count != 5 || aggregate.VersionOf(c) != 5 {
		t.Fatalf("counter restored from snapshot should have Count=5 and version 5; got Count=%d version=%d", c.Count, aggregate.VersionOf(c))
	}

	// the snapshot is not valid for a cutoff before its last event
	info, err = repo.Hydrate(ctx, ref, 1)
	if err != nil {
		t.Fatalf("Hydrate failed with %q", err)
	}

	if c := info.Root.(*test.Counter); c.Count != 2 {
		t.Fatalf("Hydrate(1) should return Count=2; got %d", c.Count)
	}
}

func TestRepository_Exists(t *testing.T) {
	ctx := context.Background()
	store := eventstore.New()
	repo := repository.New(store, test.Factory())
	a, b := uuid.New(), uuid.New()

	appendIncrements(t, store, b, 0, 1)
	appendIncrements(t, store, a, 0, 1)

	tests := []struct {
		id     uuid.UUID
		cutoff int64
		want   bool
	}{
		{id: a, cutoff: event.Latest, want: true},
		{id: a, cutoff: 0, want: false},
		{id: b, cutoff: 0, want: true},
		{id: uuid.New(), cutoff: event.Latest, want: false},
	}

	for _, tt := range tests {
		exists, err := repo.Exists(ctx, aggregate.Ref{Name: test.CounterAggregate, ID: tt.id}, tt.cutoff)
		if err != nil {
			t.Fatalf("Exists failed with %q", err)
		}
		if exists != tt.want {
			t.Fatalf("Exists(%s, %d) should return %v; got %v", tt.id, tt.cutoff, tt.want, exists)
		}
	}
}

func TestTyped(t *testing.T) {
	ctx := context.Background()
	store := eventstore.New()
	counters := repository.Typed[*test.Counter](repository.New(store, test.Factory()), test.CounterAggregate)
	id := uuid.New()

	appendIncrements(t, store, id, 0, 2)

	info, err := counters.Hydrate(ctx, id, event.Latest)
	if err != nil {
		t.Fatalf("Hydrate failed with %q", err)
	}

	if info.Root.Count != 2 {
		t.Fatalf("Count should be 2; got %d", info.Root.Count)
	}
}
