// Package eventstoretest provides the tests every event.Store implementation
// must pass.
package eventstoretest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/modernice/cqrs/codec"
	"github.com/modernice/cqrs/event"
)

// Data is the event data used by the tests.
type Data struct {
	A string
	B int
}

// EventStoreFactory creates an event.Store.
type EventStoreFactory func(codec.Encoding) event.Store

// NewEncoder returns the Registry passed to the EventStoreFactory.
func NewEncoder() *codec.Registry {
	reg := codec.New()
	codec.JSONRegister[Data](reg, "foo")
	codec.JSONRegister[Data](reg, "bar")
	return reg
}

// Run tests an event store implementation.
func Run(t *testing.T, name string, newStore EventStoreFactory) {
	t.Run(name, func(t *testing.T) {
		run(t, "Append", newStore, testAppend)
		run(t, "AppendMultipleAggregates", newStore, testAppendMultipleAggregates)
		run(t, "Conflict", newStore, testConflict)
		run(t, "ConflictIsAtomic", newStore, testConflictIsAtomic)
		run(t, "InvalidBatch", newStore, testInvalidBatch)
		run(t, "LoadStream", newStore, testLoadStream)
		run(t, "Stream", newStore, testStream)
		run(t, "ConcurrentAppend", newStore, testConcurrentAppend)
	})
}

func run(t *testing.T, name string, newStore EventStoreFactory, runner func(*testing.T, EventStoreFactory)) {
	t.Run(name, func(t *testing.T) {
		runner(t, newStore)
	})
}

func testAppend(t *testing.T, newStore EventStoreFactory) {
	store := newStore(NewEncoder())
	ctx := context.Background()
	id := uuid.New()

	next, err := store.NextGlobalSequenceNumber(ctx)
	if err != nil {
		t.Fatalf("NextGlobalSequenceNumber failed with %q", err)
	}
	if next != 0 {
		t.Fatalf("NextGlobalSequenceNumber of an empty store should return 0; got %d", next)
	}

	events := makeEvents("foo", id, 0, 3)
	committed, err := store.Append(ctx, "batch-1", events...)
	if err != nil {
		t.Fatalf("Append failed with %q", err)
	}

	if len(committed) != len(events) {
		t.Fatalf("Append should return %d events; got %d", len(events), len(committed))
	}

	for i, evt := range committed {
		if evt.ID() != events[i].ID() {
			t.Fatalf("committed event #%d should have id %s; got %s", i, events[i].ID(), evt.ID())
		}
		if evt.GlobalSequenceNumber() != int64(i) {
			t.Fatalf("committed event #%d should have global sequence %d; got %d", i, i, evt.GlobalSequenceNumber())
		}
		if evt.BatchID() != "batch-1" {
			t.Fatalf("committed event #%d should have batch id %q; got %q", i, "batch-1", evt.BatchID())
		}
	}

	if next, _ = store.NextGlobalSequenceNumber(ctx); next != 3 {
		t.Fatalf("NextGlobalSequenceNumber should return 3; got %d", next)
	}

	more := makeEvents("foo", id, 3, 2)
	committed, err = store.Append(ctx, "batch-2", more...)
	if err != nil {
		t.Fatalf("Append failed with %q", err)
	}

	if committed[0].GlobalSequenceNumber() != 3 || committed[1].GlobalSequenceNumber() != 4 {
		t.Fatalf("second batch should be assigned global sequences 3 and 4; got %d and %d", committed[0].GlobalSequenceNumber(), committed[1].GlobalSequenceNumber())
	}
}

func testAppendMultipleAggregates(t *testing.T, newStore EventStoreFactory) {
	store := newStore(NewEncoder())
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	events := append(makeEvents("foo", a, 0, 2), makeEvents("bar", b, 0, 2)...)
	committed, err := store.Append(ctx, "batch", events...)
	if err != nil {
		t.Fatalf("Append failed with %q", err)
	}

	for i, evt := range committed {
		if evt.GlobalSequenceNumber() != int64(i) {
			t.Fatalf("event #%d should have global sequence %d; got %d", i, i, evt.GlobalSequenceNumber())
		}
	}

	loaded, err := store.LoadStream(ctx, event.AggregateRef{Name: "bar", ID: b}, 0, event.Latest)
	if err != nil {
		t.Fatalf("LoadStream failed with %q", err)
	}

	assertIDs(t, events[2:], loaded)
}

func testConflict(t *testing.T, newStore EventStoreFactory) {
	store := newStore(NewEncoder())
	ctx := context.Background()
	id := uuid.New()

	if _, err := store.Append(ctx, "batch-1", makeEvents("foo", id, 0, 2)...); err != nil {
		t.Fatalf("Append failed with %q", err)
	}

	_, err := store.Append(ctx, "batch-2", makeEvents("foo", id, 1, 1)...)
	if !errors.Is(err, event.ErrConcurrencyConflict) {
		t.Fatalf("Append should fail with %q; got %q", event.ErrConcurrencyConflict, err)
	}

	_, err = store.Append(ctx, "batch-3", makeEvents("foo", id, 0, 1)...)
	if !errors.Is(err, event.ErrConcurrencyConflict) {
		t.Fatalf("Append should fail with %q; got %q", event.ErrConcurrencyConflict, err)
	}

	_, err = store.Append(ctx, "batch-4", makeEvents("foo", uuid.New(), 1, 1)...)
	if !errors.Is(err, event.ErrConcurrencyConflict) {
		t.Fatalf("appending a first event with sequence 1 should fail with %q; got %q", event.ErrConcurrencyConflict, err)
	}
}

func testConflictIsAtomic(t *testing.T, newStore EventStoreFactory) {
	store := newStore(NewEncoder())
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	if _, err := store.Append(ctx, "batch-1", makeEvents("bar", b, 0, 1)...); err != nil {
		t.Fatalf("Append failed with %q", err)
	}

	events := append(makeEvents("foo", a, 0, 2), makeEvents("bar", b, 0, 1)...)
	if _, err := store.Append(ctx, "batch-2", events...); !errors.Is(err, event.ErrConcurrencyConflict) {
		t.Fatalf("Append should fail with %q; got %q", event.ErrConcurrencyConflict, err)
	}

	loaded, err := store.LoadStream(ctx, event.AggregateRef{Name: "foo", ID: a}, 0, event.Latest)
	if err != nil {
		t.Fatalf("LoadStream failed with %q", err)
	}

	if len(loaded) != 0 {
		t.Fatalf("no event of a conflicting batch should be persisted; got %d events", len(loaded))
	}

	if next, _ := store.NextGlobalSequenceNumber(ctx); next != 1 {
		t.Fatalf("NextGlobalSequenceNumber should return 1; got %d", next)
	}
}

func testInvalidBatch(t *testing.T, newStore EventStoreFactory) {
	store := newStore(NewEncoder())
	ctx := context.Background()
	id := uuid.New()

	events := []event.Event{
		event.New("foo", Data{}, event.Aggregate("foo", id, 0)).Any(),
		event.New("foo", Data{}, event.Aggregate("foo", id, 2)).Any(),
	}

	if _, err := store.Append(ctx, "batch", events...); !errors.Is(err, event.ErrInvalidBatch) {
		t.Fatalf("Append should fail with %q; got %q", event.ErrInvalidBatch, err)
	}
}

func testLoadStream(t *testing.T, newStore EventStoreFactory) {
	store := newStore(NewEncoder())
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	// global: a0=0 b0=1 a1=2 a2=3 b1=4 a3=5
	var all []event.Event
	for _, step := range []struct {
		id  uuid.UUID
		seq int
	}{{a, 0}, {b, 0}, {a, 1}, {a, 2}, {b, 1}, {a, 3}} {
		committed, err := store.Append(ctx, "", makeEvents("foo", step.id, step.seq, 1)...)
		if err != nil {
			t.Fatalf("Append failed with %q", err)
		}
		all = append(all, committed...)
	}

	ref := event.AggregateRef{Name: "foo", ID: a}

	loaded, err := store.LoadStream(ctx, ref, 0, event.Latest)
	if err != nil {
		t.Fatalf("LoadStream failed with %q", err)
	}
	assertIDs(t, []event.Event{all[0], all[2], all[3], all[5]}, loaded)

	cases := []struct {
		fromSeq int
		cutoff  int64
		want    []event.Event
	}{
		{fromSeq: 2, cutoff: event.Latest, want: []event.Event{all[3], all[5]}},
		{fromSeq: 0, cutoff: 3, want: []event.Event{all[0], all[2], all[3]}},
		{fromSeq: 1, cutoff: 2, want: []event.Event{all[2]}},
		{fromSeq: 4, cutoff: event.Latest, want: nil},
	}

	for _, tt := range cases {
		loaded, err = store.LoadStream(ctx, ref, tt.fromSeq, tt.cutoff)
		if err != nil {
			t.Fatalf("LoadStream(%d, %d) failed with %q", tt.fromSeq, tt.cutoff, err)
		}
		assertIDs(t, tt.want, loaded)
	}

	if loaded, err = store.LoadStream(ctx, ref, 1, 2); err != nil {
		t.Fatalf("LoadStream failed with %q", err)
	}

	for i, evt := range loaded {
		if want := (Data{A: "foo", B: evt.SequenceNumber()}); !cmp.Equal(want, evt.Data()) {
			t.Fatalf("event #%d has wrong data\n%s", i, cmp.Diff(want, evt.Data()))
		}
	}
}

func testStream(t *testing.T, newStore EventStoreFactory) {
	store := newStore(NewEncoder())
	ctx := context.Background()

	committed, err := store.Append(ctx, "", append(makeEvents("foo", uuid.New(), 0, 3), makeEvents("bar", uuid.New(), 0, 2)...)...)
	if err != nil {
		t.Fatalf("Append failed with %q", err)
	}

	str, errs, err := store.Stream(ctx, 0)
	if err != nil {
		t.Fatalf("Stream failed with %q", err)
	}

	events, err := event.Drain(ctx, str, errs)
	if err != nil {
		t.Fatalf("drain stream: %v", err)
	}
	assertIDs(t, committed, events)

	for i, evt := range events {
		if evt.GlobalSequenceNumber() != int64(i) {
			t.Fatalf("streamed event #%d should have global sequence %d; got %d", i, i, evt.GlobalSequenceNumber())
		}
	}

	if str, errs, err = store.Stream(ctx, 3); err != nil {
		t.Fatalf("Stream failed with %q", err)
	}

	if events, err = event.Drain(ctx, str, errs); err != nil {
		t.Fatalf("drain stream: %v", err)
	}
	assertIDs(t, committed[3:], events)
}

func testConcurrentAppend(t *testing.T, newStore EventStoreFactory) {
	store := newStore(NewEncoder())
	ctx := context.Background()
	id := uuid.New()

	const writers = 5

	var (
		wg        sync.WaitGroup
		mux       sync.Mutex
		succeeded int
		conflicts int
	)

	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, "", makeEvents("foo", id, 0, 2)...)
			mux.Lock()
			defer mux.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, event.ErrConcurrencyConflict):
				conflicts++
			default:
				t.Errorf("Append failed with %q", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || conflicts != writers-1 {
		t.Fatalf("exactly one writer should succeed; succeeded=%d conflicts=%d", succeeded, conflicts)
	}

	if next, _ := store.NextGlobalSequenceNumber(ctx); next != 2 {
		t.Fatalf("NextGlobalSequenceNumber should return 2; got %d", next)
	}
}

func makeEvents(name string, id uuid.UUID, from, n int) []event.Event {
	events := make([]event.Event, n)
	for i := range events {
		seq := from + i
		events[i] = event.New(name, Data{A: name, B: seq}, event.Aggregate(name, id, seq)).Any()
	}
	return events
}

func assertIDs(t *testing.T, want, got []event.Event) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("expected %d events; got %d", len(want), len(got))
	}
	for i := range want {
		if want[i].ID() != got[i].ID() {
			t.Fatalf("event #%d should have id %s; got %s", i, want[i].ID(), got[i].ID())
		}
	}
}
