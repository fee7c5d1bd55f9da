package event_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/modernice/cqrs/event"
)

type fooData struct {
	A string
}

func TestNew(t *testing.T) {
	evt := event.New("foo", fooData{A: "bar"})

	if evt.ID() == uuid.Nil {
		t.Fatalf("ID should not be nil")
	}

	if evt.Name() != "foo" {
		t.Fatalf("Name should return %q; got %q", "foo", evt.Name())
	}

	if evt.Data() != (fooData{A: "bar"}) {
		t.Fatalf("Data should return %v; got %v", fooData{A: "bar"}, evt.Data())
	}

	if evt.Time().IsZero() {
		t.Fatalf("Time should not be zero")
	}

	if evt.GlobalSequenceNumber() != event.Unassigned {
		t.Fatalf("GlobalSequenceNumber should return %d; got %d", event.Unassigned, evt.GlobalSequenceNumber())
	}

	if !evt.Ref().IsZero() {
		t.Fatalf("event should not be linked to an aggregate; got %s", evt.Ref())
	}
}

func TestNew_options(t *testing.T) {
	id := uuid.New()
	aggregateID := uuid.New()
	now := time.Now()

	evt := event.New(
		"foo",
		fooData{},
		event.ID(id),
		event.Time(now),
		event.Aggregate("bar", aggregateID, 3),
		event.Header("trace", "abc"),
	)

	if evt.ID() != id {
		t.Fatalf("ID should return %s; got %s", id, evt.ID())
	}

	if !evt.Time().Equal(now) {
		t.Fatalf("Time should return %v; got %v", now, evt.Time())
	}

	if want := (event.AggregateRef{Name: "bar", ID: aggregateID}); evt.Ref() != want {
		t.Fatalf("Ref should return %s; got %s", want, evt.Ref())
	}

	if evt.SequenceNumber() != 3 {
		t.Fatalf("SequenceNumber should return %d; got %d", 3, evt.SequenceNumber())
	}

	if evt.Header("trace") != "abc" {
		t.Fatalf("Header should return %q; got %q", "abc", evt.Header("trace"))
	}
}

func TestEvt_Metadata(t *testing.T) {
	aggregateID := uuid.New()
	evt := event.New(
		"foo",
		fooData{},
		event.Aggregate("bar", aggregateID, 2),
		event.Committed(7, "batch"),
		event.Header("trace", "abc"),
	)

	meta := evt.Metadata()

	want := map[string]string{
		event.MetaEventType:     "foo",
		event.MetaAggregateName: "bar",
		event.MetaAggregateID:   aggregateID.String(),
		event.MetaSequence:      "2",
		event.MetaGlobalSeq:     "7",
		event.MetaBatchID:       "batch",
		"trace":                 "abc",
	}
	delete(meta, event.MetaTime)

	if diff := cmp.Diff(want, meta); diff != "" {
		t.Fatalf("Metadata mismatch (-want +got):\n%s", diff)
	}

	meta["trace"] = "changed"
	if evt.Header("trace") != "abc" {
		t.Fatalf("Metadata should return a copy")
	}
}

func TestAssign(t *testing.T) {
	evt := event.New("foo", fooData{A: "a"}, event.Aggregate("bar", uuid.New(), 0), event.Header("k", "v")).Any()

	assigned := event.Assign(evt, 42, "batch")

	if assigned.GlobalSequenceNumber() != 42 {
		t.Fatalf("GlobalSequenceNumber should return %d; got %d", 42, assigned.GlobalSequenceNumber())
	}

	if assigned.BatchID() != "batch" {
		t.Fatalf("BatchID should return %q; got %q", "batch", assigned.BatchID())
	}

	if assigned.Header("k") != "v" {
		t.Fatalf("Assign should keep the headers")
	}

	if evt.GlobalSequenceNumber() != event.Unassigned {
		t.Fatalf("Assign should not modify the original event")
	}
}

func TestCast(t *testing.T) {
	var evt event.Event = event.New[any]("foo", fooData{A: "a"})

	casted := event.Cast[fooData](evt)

	if casted.Data().A != "a" {
		t.Fatalf("casted data should be %q; got %q", "a", casted.Data().A)
	}

	if !event.Equal(casted.Any(), evt) {
		t.Fatalf("casted event should equal the original")
	}
}

func TestTryCast_mismatch(t *testing.T) {
	var evt event.Event = event.New[any]("foo", fooData{A: "a"})

	if _, ok := event.TryCast[string](evt); ok {
		t.Fatalf("TryCast should fail for mismatching data")
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("Cast should panic for mismatching data")
		}
	}()
	event.Cast[string](evt)
}

func TestEqual(t *testing.T) {
	evt := event.New("foo", fooData{}).Any()

	if !event.Equal(evt, event.Rebuild(evt)) {
		t.Fatalf("rebuilt event should equal the original")
	}

	if event.Equal(evt, event.Assign(evt, 0, "")) {
		t.Fatalf("events with different global sequence numbers should not be equal")
	}
}

func TestValidateBatch(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	first, err := event.ValidateBatch([]event.Event{
		event.New("foo", 0, event.Aggregate("x", a, 3)).Any(),
		event.New("foo", 0, event.Aggregate("y", b, 0)).Any(),
		event.New("foo", 0, event.Aggregate("x", a, 4)).Any(),
	})
	if err != nil {
		t.Fatalf("ValidateBatch failed with %q", err)
	}

	want := map[event.AggregateRef]int{
		{Name: "x", ID: a}: 3,
		{Name: "y", ID: b}: 0,
	}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Fatalf("first sequence numbers mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateBatch_invalid(t *testing.T) {
	id := uuid.New()

	tests := map[string][]event.Event{
		"no aggregate": {event.New("foo", 0).Any()},
		"gap": {
			event.New("foo", 0, event.Aggregate("x", id, 0)).Any(),
			event.New("foo", 0, event.Aggregate("x", id, 2)).Any(),
		},
		"negative sequence": {event.New("foo", 0, event.Aggregate("x", id, -1)).Any()},
	}

	for name, events := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := event.ValidateBatch(events); !errors.Is(err, event.ErrInvalidBatch) {
				t.Fatalf("ValidateBatch should fail with %q; got %q", event.ErrInvalidBatch, err)
			}
		})
	}
}

func TestConflictError(t *testing.T) {
	var err error = &event.ConflictError{Expected: 1, Current: 2}

	if !event.IsConflict(err) {
		t.Fatalf("IsConflict should return true for a *ConflictError")
	}

	var conflict *event.ConflictError
	if !errors.As(err, &conflict) || conflict.Current != 2 {
		t.Fatalf("errors.As should extract the *ConflictError")
	}
}

func TestLast(t *testing.T) {
	if event.Last(nil) != event.BeforeStart {
		t.Fatalf("Last of no events should be %d; got %d", event.BeforeStart, event.Last(nil))
	}

	events := []event.Event{
		event.New("foo", 0, event.Committed(3, "")).Any(),
		event.New("foo", 0, event.Committed(5, "")).Any(),
		event.New("foo", 0, event.Committed(4, "")).Any(),
	}

	if event.Last(events) != 5 {
		t.Fatalf("Last should return %d; got %d", 5, event.Last(events))
	}
}
