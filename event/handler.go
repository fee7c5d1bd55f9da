package event

import "fmt"

// A Handler is an object that can register handlers for different events.
type Handler interface {
	// RegisterHandler registers an event handler for the given event name.
	RegisterHandler(eventName string, handler func(Event))
}

// Handlers is a table of event handlers, keyed by event name. Handlers
// implements Handler and can be embedded into aggregates.
type Handlers map[string]func(Event)

// RegisterHandler implements Handler.
func (h Handlers) RegisterHandler(eventName string, handler func(Event)) {
	h[eventName] = handler
}

// HandleEvent calls the handler registered for the name of evt. It reports
// whether a handler was registered.
func (h Handlers) HandleEvent(evt Event) bool {
	handler, ok := h[evt.Name()]
	if !ok {
		return false
	}
	handler(evt)
	return true
}

// HandlesEvent returns whether a handler is registered for the given event name.
func (h Handlers) HandlesEvent(eventName string) bool {
	_, ok := h[eventName]
	return ok
}

// RegisterHandler registers an event handler with typed event data for the
// given event name. The provided Handler is usually an aggregate that applies
// the events onto itself.
//
//	type Foo struct {
//		*aggregate.Base
//
//		Title string
//	}
//
//	type FooCreated struct { Title string }
//
//	func NewFoo(id uuid.UUID) *Foo  {
//		foo := &Foo{Base: aggregate.New("foo", id)}
//		event.ApplyWith(foo, "foo.created", foo.created)
//		return foo
//	}
//
//	func (f *Foo) created(e event.Of[FooCreated]) {
//		f.Title = e.Data().Title
//	}
func RegisterHandler[D any](eh Handler, eventName string, handler func(Of[D])) {
	eh.RegisterHandler(eventName, func(evt Event) {
		casted, ok := TryCast[D](evt)
		if !ok {
			var zero D
			panic(fmt.Errorf(
				"[cqrs/event.RegisterHandler] Cannot cast %T to %T. "+
					"You probably provided the wrong event name for this handler. "+
					"[event=%v, aggregate=%v]",
				evt.Data(), zero, eventName, evt.AggregateName(),
			))
		}
		handler(casted)
	})
}

// ApplyWith is an alias for RegisterHandler.
func ApplyWith[D any](eh Handler, eventName string, handler func(Of[D])) {
	RegisterHandler(eh, eventName, handler)
}
