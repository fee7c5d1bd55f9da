package event_test

import (
	"context"
	"errors"
	"testing"

	"github.com/modernice/cqrs/event"
)

func stream(events ...event.Event) <-chan event.Event {
	out := make(chan event.Event, len(events))
	for _, evt := range events {
		out <- evt
	}
	close(out)
	return out
}

func TestDrain(t *testing.T) {
	events := []event.Event{
		event.New("foo", 1).Any(),
		event.New("foo", 2).Any(),
		event.New("foo", 3).Any(),
	}

	got, err := event.Drain(context.Background(), stream(events...))
	if err != nil {
		t.Fatalf("Drain failed with %q", err)
	}

	if len(got) != len(events) {
		t.Fatalf("Drain should return %d events; got %d", len(events), len(got))
	}

	for i, evt := range got {
		if !event.Equal(evt, events[i]) {
			t.Fatalf("event #%d should be %v; got %v", i, events[i], evt)
		}
	}
}

func TestWalk_error(t *testing.T) {
	errs := make(chan error, 1)
	mockError := errors.New("mock error")
	errs <- mockError

	err := event.Walk(context.Background(), func(event.Event) error { return nil }, make(chan event.Event), errs)
	if !errors.Is(err, mockError) {
		t.Fatalf("Walk should fail with %q; got %q", mockError, err)
	}
}

func TestWalk_walkError(t *testing.T) {
	mockError := errors.New("mock error")
	var walked int

	err := event.Walk(context.Background(), func(event.Event) error {
		walked++
		if walked == 2 {
			return mockError
		}
		return nil
	}, stream(event.New("foo", 1).Any(), event.New("foo", 2).Any(), event.New("foo", 3).Any()))

	if !errors.Is(err, mockError) {
		t.Fatalf("Walk should fail with %q; got %q", mockError, err)
	}

	if walked != 2 {
		t.Fatalf("Walk should stop after the failing event; walked %d events", walked)
	}
}

func TestWalk_closedErrors(t *testing.T) {
	errs := make(chan error)
	close(errs)

	var walked int
	if err := event.Walk(context.Background(), func(event.Event) error {
		walked++
		return nil
	}, stream(event.New("foo", 1).Any()), errs, nil); err != nil {
		t.Fatalf("Walk failed with %q", err)
	}

	if walked != 1 {
		t.Fatalf("Walk should walk 1 event; walked %d", walked)
	}
}

func TestWalk_canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := event.Walk(ctx, func(event.Event) error { return nil }, make(chan event.Event))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Walk should fail with %q; got %q", context.Canceled, err)
	}
}
