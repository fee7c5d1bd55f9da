package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/modernice/cqrs/projection"
)

// DefaultBackoff is the backoff table of dependent engines. The last duration
// repeats.
var DefaultBackoff = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// DependsOn returns an Option that makes the engine dependent on upstream
// view managers: its managers are only caught up to the lowest position of
// the upstream managers, so they never observe an event before the upstream
// managers processed it. When a catch-up cycle of a dependent engine fails,
// either because the log cannot be read or because a view manager fails, the
// next cycle waits according to DefaultBackoff instead of the catch-up
// interval.
func DependsOn(upstream ...projection.Positioner) Option {
	return func(e *Engine) {
		e.upstream = append(e.upstream, upstream...)
		if e.backoff == nil {
			e.backoff = DefaultBackoff
		}
	}
}

// Backoff returns an Option that sets the durations the engine waits after
// consecutive failed cycles, including cycles in which a view manager failed.
// The last duration repeats.
func Backoff(durations ...time.Duration) Option {
	return func(e *Engine) {
		e.backoff = durations
	}
}

// target returns the position the managers are caught up to: the last
// position of the log, or the lowest position of the upstream managers.
func (e *Engine) target(ctx context.Context) (int64, error) {
	next, err := e.store.NextGlobalSequenceNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch next global sequence number: %w", err)
	}
	target := next - 1

	for _, m := range e.upstream {
		if pos := m.Position(); pos < target {
			target = pos
		}
	}

	return target, nil
}

// nextCatchUp returns the delay until the next catch-up cycle.
func (e *Engine) nextCatchUp(err error) time.Duration {
	if err == nil || len(e.backoff) == 0 {
		e.failures = 0
		return e.catchUpInterval
	}

	e.failures++
	i := e.failures - 1
	if i >= len(e.backoff) {
		i = len(e.backoff) - 1
	}
	return e.backoff[i]
}
