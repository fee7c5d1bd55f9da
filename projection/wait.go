package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modernice/cqrs/command"
)

// PollInterval is the interval in which WaitUntilProcessed polls the position
// of a view manager.
const PollInterval = 10 * time.Millisecond

var (
	// ErrTimeout is matched by a *TimeoutError.
	ErrTimeout = errors.New("timed out waiting for views")

	// ErrUnknownView is returned by a WaitHandle for a view manager it does not
	// know.
	ErrUnknownView = errors.New("unknown view manager")
)

// TimeoutError is returned by WaitUntilProcessed when the view manager did not
// reach the target position in time.
type TimeoutError struct {
	Manager  string
	Position int64
	Target   int64
	Timeout  time.Duration
}

func (err *TimeoutError) Error() string {
	return fmt.Sprintf(
		"view manager did not reach position %d within %s [manager=%s, position=%d]",
		err.Target, err.Timeout, err.Manager, err.Position,
	)
}

// Is reports whether target is ErrTimeout.
func (err *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Positioner is a view manager with a position.
type Positioner interface {
	Name() string
	Position() int64
}

// WaitUntilProcessed blocks until the position of m reaches the global
// sequence number of res. If res has no events, WaitUntilProcessed returns
// immediately. When the timeout elapses first, a *TimeoutError is returned.
func WaitUntilProcessed(ctx context.Context, m Positioner, res command.Result, timeout time.Duration) error {
	if !res.EventsEmitted {
		return nil
	}
	return waitUntil(ctx, m, res.GlobalSequenceNumber, time.Now().Add(timeout), timeout)
}

func waitUntil(ctx context.Context, m Positioner, target int64, deadline time.Time, timeout time.Duration) error {
	if m.Position() >= target {
		return nil
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if pos := m.Position(); pos < target {
				return &TimeoutError{Manager: m.Name(), Position: pos, Target: target, Timeout: timeout}
			}
			return nil
		case <-ticker.C:
			if m.Position() >= target {
				return nil
			}
		}
	}
}

// WaitHandle waits for named view managers.
type WaitHandle struct {
	mux      sync.RWMutex
	managers map[string]Positioner
}

// NewWaitHandle returns a WaitHandle for the given view managers.
func NewWaitHandle(managers ...Positioner) *WaitHandle {
	h := &WaitHandle{managers: make(map[string]Positioner)}
	h.Add(managers...)
	return h
}

// Add adds view managers to the WaitHandle.
func (h *WaitHandle) Add(managers ...Positioner) {
	h.mux.Lock()
	defer h.mux.Unlock()
	for _, m := range managers {
		h.managers[m.Name()] = m
	}
}

// WaitFor waits until the view manager with the given name has processed the
// events of res.
func (h *WaitHandle) WaitFor(ctx context.Context, name string, res command.Result, timeout time.Duration) error {
	h.mux.RLock()
	m, ok := h.managers[name]
	h.mux.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownView, name)
	}

	return WaitUntilProcessed(ctx, m, res, timeout)
}

// WaitForAll waits until every view manager of the WaitHandle has processed
// the events of res. The timeout applies to all managers together.
func (h *WaitHandle) WaitForAll(ctx context.Context, res command.Result, timeout time.Duration) error {
	if !res.EventsEmitted {
		return nil
	}

	h.mux.RLock()
	managers := make([]Positioner, 0, len(h.managers))
	for _, m := range h.managers {
		managers = append(managers, m)
	}
	h.mux.RUnlock()

	deadline := time.Now().Add(timeout)
	for _, m := range managers {
		if err := waitUntil(ctx, m, res.GlobalSequenceNumber, deadline, timeout); err != nil {
			return err
		}
	}

	return nil
}
