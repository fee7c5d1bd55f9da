package snapshot_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
	"github.com/modernice/cqrs/aggregate/factory"
	"github.com/modernice/cqrs/aggregate/snapshot"
	"github.com/modernice/cqrs/aggregate/test"
	"github.com/modernice/cqrs/event"
)

func hydrated(t *testing.T, id uuid.UUID, n int) aggregate.Info[aggregate.Aggregate] {
	t.Helper()
	c := test.NewCounter(id)
	events := test.Increments(id, 0, n)
	for i := range events {
		events[i] = event.Assign(events[i], int64(i), "")
	}
	if err := aggregate.ApplyHistory(c, events); err != nil {
		t.Fatalf("ApplyHistory failed with %q", err)
	}
	return aggregate.Info[aggregate.Aggregate]{Root: c, Cutoff: event.Latest, LastGlobal: event.Last(events)}
}

func TestCache_Get(t *testing.T) {
	cache := snapshot.NewCache(test.Factory())
	id := uuid.New()
	info := hydrated(t, id, 3)

	if err := cache.Put(info); err != nil {
		t.Fatalf("Put failed with %q", err)
	}

	cached, ok := cache.Get(info.Ref(), event.Latest)
	if !ok {
		t.Fatalf("Get should return the cached aggregate")
	}

	if cached.Root == info.Root {
		t.Fatalf("Get should return a clone, not the original aggregate")
	}

	counter := cached.Root.(*test.Counter)
	if counter.Count != 3 || aggregate.VersionOf(counter) != 3 {
		t.Fatalf("cached clone should have Count=3 and version 3; got Count=%d version=%d", counter.Count, aggregate.VersionOf(counter))
	}

	if cached.LastGlobal != 2 {
		t.Fatalf("cached LastGlobal should be 2; got %d", cached.LastGlobal)
	}

	counter.Increment(5)

	again, ok := cache.Get(info.Ref(), event.Latest)
	if !ok {
		t.Fatalf("Get should return the cached aggregate")
	}

	if c := again.Root.(*test.Counter); c.Count != 3 || !cmp.Equal([]int{1, 1, 1}, c.History) {
		t.Fatalf("mutating a returned clone must not change the cached aggregate; got Count=%d History=%v", c.Count, c.History)
	}

	if stats := cache.Stats(); stats.Hits != 2 || stats.Len != 1 {
		t.Fatalf("cache should report 2 hits and 1 entry; got %+v", stats)
	}
}

func TestCache_Get_cutoff(t *testing.T) {
	cache := snapshot.NewCache(test.Factory())
	info := hydrated(t, uuid.New(), 3)

	if err := cache.Put(info); err != nil {
		t.Fatalf("Put failed with %q", err)
	}

	if _, ok := cache.Get(info.Ref(), 1); ok {
		t.Fatalf("Get should miss for a cutoff before the last applied event")
	}

	if _, ok := cache.Get(info.Ref(), 2); !ok {
		t.Fatalf("Get should hit for a cutoff at the last applied event")
	}
}

func TestCache_Put_older(t *testing.T) {
	cache := snapshot.NewCache(test.Factory())
	id := uuid.New()

	if err := cache.Put(hydrated(t, id, 3)); err != nil {
		t.Fatalf("Put failed with %q", err)
	}

	if err := cache.Put(hydrated(t, id, 2)); err != nil {
		t.Fatalf("Put failed with %q", err)
	}

	cached, ok := cache.Get(aggregate.Ref{Name: test.CounterAggregate, ID: id}, event.Latest)
	if !ok {
		t.Fatalf("Get should return the cached aggregate")
	}

	if v := aggregate.VersionOf(cached.Root); v != 3 {
		t.Fatalf("an older state must not replace a newer one; got version %d", v)
	}
}

func TestCache_capacity(t *testing.T) {
	cache := snapshot.NewCache(test.Factory(), snapshot.Capacity(2))

	a, b, c := hydrated(t, uuid.New(), 1), hydrated(t, uuid.New(), 1), hydrated(t, uuid.New(), 1)

	for _, info := range []aggregate.Info[aggregate.Aggregate]{a, b} {
		if err := cache.Put(info); err != nil {
			t.Fatalf("Put failed with %q", err)
		}
	}

	// a becomes the most recently used entry
	if _, ok := cache.Get(a.Ref(), event.Latest); !ok {
		t.Fatalf("Get should return %s", a.Ref())
	}

	if err := cache.Put(c); err != nil {
		t.Fatalf("Put failed with %q", err)
	}

	if _, ok := cache.Get(b.Ref(), event.Latest); ok {
		t.Fatalf("least recently used aggregate %s should be evicted", b.Ref())
	}

	for _, info := range []aggregate.Info[aggregate.Aggregate]{a, c} {
		if _, ok := cache.Get(info.Ref(), event.Latest); !ok {
			t.Fatalf("%s should still be cached", info.Ref())
		}
	}

	if l := cache.Stats().Len; l != 2 {
		t.Fatalf("cache should hold 2 aggregates; got %d", l)
	}
}

func TestCache_Put_uncloneable(t *testing.T) {
	id := uuid.New()
	fac := factory.New(factory.For("private", newPrivate))
	cache := snapshot.NewCache(fac)

	p := newPrivate(id)
	p.secret = 42

	err := cache.Put(aggregate.Info[aggregate.Aggregate]{Root: p, Cutoff: event.Latest, LastGlobal: 0})
	if !errors.Is(err, aggregate.ErrUncloneable) {
		t.Fatalf("Put should fail with %q; got %q", aggregate.ErrUncloneable, err)
	}

	if _, ok := cache.Get(aggregate.Ref{Name: "private", ID: id}, event.Latest); ok {
		t.Fatalf("an uncloneable aggregate must not be cached")
	}
}

type private struct {
	*aggregate.Base

	secret int
}

func newPrivate(id uuid.UUID) *private {
	return &private{Base: aggregate.New("private", id)}
}
