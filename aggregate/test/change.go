package test

import (
	"fmt"

	"github.com/modernice/cqrs/aggregate"
	"github.com/modernice/cqrs/event"
)

// TestingT is implemented by *testing.T.
type TestingT interface {
	Helper()
	Fatal(...any)
}

// ExpectedChangeError is returned by the Change testing helper when the
// tested aggregate doesn't have the required change.
type ExpectedChangeError struct {
	// EventName is the name of the tested change.
	EventName string

	// Matches is the number of changes that matched.
	Matches int

	// Want is the expected number of matches, or -1 for "at least one".
	Want int
}

func (err ExpectedChangeError) Error() string {
	if err.Want < 0 {
		return fmt.Sprintf("expected at least one %q change; got %d", err.EventName, err.Matches)
	}
	return fmt.Sprintf("expected %d %q changes; got %d", err.Want, err.EventName, err.Matches)
}

// ChangeOption is an option for Change.
type ChangeOption func(*changeConfig)

type changeConfig struct {
	times int
	match func(event.Event) bool
}

// Times returns a ChangeOption that requires exactly n matching changes.
func Times(n int) ChangeOption {
	return func(cfg *changeConfig) {
		cfg.times = n
	}
}

// Matching returns a ChangeOption that only counts changes for which fn
// returns true.
func Matching(fn func(event.Event) bool) ChangeOption {
	return func(cfg *changeConfig) {
		cfg.match = fn
	}
}

// Change tests an aggregate for a recorded change with the given event name.
func Change(t TestingT, a aggregate.Aggregate, eventName string, opts ...ChangeOption) {
	t.Helper()

	cfg := changeConfig{times: -1}
	for _, opt := range opts {
		opt(&cfg)
	}

	var matches int
	for _, change := range a.AggregateChanges() {
		if change.Name() != eventName {
			continue
		}
		if cfg.match != nil && !cfg.match(change) {
			continue
		}
		matches++
	}

	if (cfg.times < 0 && matches == 0) || (cfg.times >= 0 && matches != cfg.times) {
		t.Fatal(ExpectedChangeError{EventName: eventName, Matches: matches, Want: cfg.times})
	}
}

// NoChange tests an aggregate for the absence of changes with the given
// event name.
func NoChange(t TestingT, a aggregate.Aggregate, eventName string) {
	t.Helper()
	Change(t, a, eventName, Times(0))
}
