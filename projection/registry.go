package projection

import (
	"fmt"

	"github.com/modernice/cqrs/event"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Handler applies an event onto a view.
type Handler[V View] func(ctx Context, view V, evt event.Event) error

// Registry is the event handler table of a view type. Build a Registry once
// per view type and share it between all instances of that type.
//
//	reg := projection.NewRegistry[*EventCounter]()
//	projection.On(reg, "foo.created", func(ctx projection.Context, v *EventCounter, evt event.Of[FooCreated]) error {
//		v.Count++
//		return nil
//	})
type Registry[V View] struct {
	handlers map[string]Handler[V]
}

// NewRegistry returns an empty Registry.
func NewRegistry[V View]() *Registry[V] {
	return &Registry[V]{handlers: make(map[string]Handler[V])}
}

// Register registers the handler for events with the given name. A second
// registration for the same name replaces the first.
func (r *Registry[V]) Register(eventName string, h Handler[V]) {
	r.handlers[eventName] = h
}

// Handles returns whether a handler is registered for the given event name.
func (r *Registry[V]) Handles(eventName string) bool {
	_, ok := r.handlers[eventName]
	return ok
}

// EventNames returns the sorted names of the handled events.
func (r *Registry[V]) EventNames() []string {
	names := maps.Keys(r.handlers)
	slices.Sort(names)
	return names
}

func (r *Registry[V]) handler(eventName string) (Handler[V], bool) {
	h, ok := r.handlers[eventName]
	return h, ok
}

// On registers a typed handler for events with the given name. The handler
// fails if the event data is not a D.
func On[V View, D any](r *Registry[V], eventName string, fn func(Context, V, event.Of[D]) error) {
	r.Register(eventName, func(ctx Context, view V, evt event.Event) error {
		casted, ok := event.TryCast[D](evt)
		if !ok {
			var zero D
			return fmt.Errorf("event data is a %T, not a %T [event=%s]", evt.Data(), zero, evt.Name())
		}
		return fn(ctx, view, casted)
	})
}

// DispatchToView applies an event onto a view. Events with a global sequence
// number <= the position of the view are skipped and DispatchToView returns
// false. Otherwise the registered handler for the event, if any, is called
// and the position of the view is advanced to the event, regardless of
// whether a handler was registered.
func DispatchToView[V View](ctx Context, r *Registry[V], evt event.Event, view V) (bool, error) {
	if evt.GlobalSequenceNumber() <= view.Position() {
		return false, nil
	}

	if h, ok := r.handler(evt.Name()); ok {
		if err := h(ctx, view, evt); err != nil {
			return false, fmt.Errorf("apply %q: %w [view=%s, position=%d]", evt.Name(), err, view.ViewID(), evt.GlobalSequenceNumber())
		}
	}

	view.SetPosition(evt.GlobalSequenceNumber())

	return true, nil
}
