package command_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/command"
	"github.com/modernice/cqrs/event"
)

func TestNew(t *testing.T) {
	id := uuid.New()
	cmd := command.New("foo", 3, command.Aggregate("bar", id))

	if cmd.ID() == uuid.Nil {
		t.Fatalf("command should have a generated id")
	}

	if cmd.Name() != "foo" || cmd.Payload() != 3 {
		t.Fatalf("command should have name %q and payload 3; got %q and %v", "foo", cmd.Name(), cmd.Payload())
	}

	if want := (event.AggregateRef{Name: "bar", ID: id}); cmd.Aggregate() != want {
		t.Fatalf("Aggregate() should return %v; got %v", want, cmd.Aggregate())
	}
}

func TestNewResult(t *testing.T) {
	empty := command.NewResult(nil)
	if empty.EventsEmitted || empty.GlobalSequenceNumber != event.BeforeStart {
		t.Fatalf("result without events should report no events and position %d; got %+v", event.BeforeStart, empty)
	}

	id := uuid.New()
	events := []event.Event{
		event.New("foo", 1, event.Aggregate("bar", id, 0), event.Committed(4, "")).Any(),
		event.New("foo", 2, event.Aggregate("bar", id, 1), event.Committed(5, "")).Any(),
	}

	res := command.NewResult(events)
	if !res.EventsEmitted || res.GlobalSequenceNumber != 5 {
		t.Fatalf("result should report emitted events and position 5; got %+v", res)
	}
}
