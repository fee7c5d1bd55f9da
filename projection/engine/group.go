package engine

import (
	"context"
	"time"

	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/projection"
	"golang.org/x/sync/errgroup"
)

// Group runs multiple engines together, for example an engine and the
// engines that depend on it.
type Group struct {
	engines []*Engine
}

// NewGroup returns a Group of the given engines.
func NewGroup(engines ...*Engine) *Group {
	return &Group{engines: engines}
}

// Start starts all engines. If an engine fails to start, the engines that
// were already started are stopped again.
func (g *Group) Start(ctx context.Context) error {
	var eg errgroup.Group
	for _, e := range g.engines {
		e := e
		eg.Go(func() error { return e.Start(ctx) })
	}

	if err := eg.Wait(); err != nil {
		g.Stop(DefaultCatchUpInterval)
		return err
	}

	return nil
}

// Stop stops all engines and waits at most timeout for each of them.
func (g *Group) Stop(timeout time.Duration) error {
	var eg errgroup.Group
	for _, e := range g.engines {
		e := e
		eg.Go(func() error { return e.Stop(timeout) })
	}
	return eg.Wait()
}

// Notify notifies all engines about committed events.
func (g *Group) Notify(ctx context.Context, events []event.Event) {
	for _, e := range g.engines {
		e.Notify(ctx, events)
	}
}

// Managers returns the view managers of all engines.
func (g *Group) Managers() []projection.ViewManager {
	var out []projection.ViewManager
	for _, e := range g.engines {
		out = append(out, e.Managers()...)
	}
	return out
}

// WaitHandle returns a WaitHandle for the view managers of all engines.
func (g *Group) WaitHandle() *projection.WaitHandle {
	return newWaitHandle(g.Managers())
}

// WaitHandle returns a WaitHandle for the view managers of the engine.
func (e *Engine) WaitHandle() *projection.WaitHandle {
	return newWaitHandle(e.Managers())
}

func newWaitHandle(managers []projection.ViewManager) *projection.WaitHandle {
	h := projection.NewWaitHandle()
	for _, m := range managers {
		h.Add(m)
	}
	return h
}
