package projection

import (
	"fmt"

	"github.com/modernice/cqrs/event"
)

// GlobalID is the view id that is used by the Global locator.
const GlobalID = "global"

// A Locator maps an event to the ids of the view instances it affects.
type Locator interface {
	AffectedViewIDs(ctx Context, evt event.Event) ([]string, error)
}

// LocatorFunc allows a function to be used as a Locator.
type LocatorFunc func(Context, event.Event) ([]string, error)

// AffectedViewIDs returns fn(ctx, evt).
func (fn LocatorFunc) AffectedViewIDs(ctx Context, evt event.Event) ([]string, error) {
	return fn(ctx, evt)
}

// eventLocator is implemented by locators that declare their own interest in
// specific events.
type eventLocator interface {
	LocatesEvent(eventName string) bool
}

// PerAggregate returns a Locator that addresses one view instance per
// aggregate. The view id is the id of the aggregate.
func PerAggregate() Locator {
	return LocatorFunc(func(_ Context, evt event.Event) ([]string, error) {
		return []string{evt.AggregateID().String()}, nil
	})
}

// Global returns a Locator that addresses a single view instance with the id
// GlobalID.
func Global() Locator {
	return LocatorFunc(func(Context, event.Event) ([]string, error) {
		return []string{GlobalID}, nil
	})
}

// Custom is a Locator that maps specific events to arbitrary view ids. Use
// Locate to add events. Events are relevant to views that use a Custom
// locator if a locate function is registered for them, even if the view has
// no handler for the event.
type Custom struct {
	fns map[string]func(Context, event.Event) ([]string, error)
}

// NewCustom returns an empty Custom locator.
func NewCustom() *Custom {
	return &Custom{fns: make(map[string]func(Context, event.Event) ([]string, error))}
}

// Locate registers the function that returns the view ids for events with the
// given name.
//
//	loc := projection.NewCustom()
//	projection.Locate(loc, "order.placed", func(ctx projection.Context, evt event.Of[OrderPlaced]) ([]string, error) {
//		return []string{evt.Data().CustomerID.String()}, nil
//	})
func Locate[D any](c *Custom, eventName string, fn func(Context, event.Of[D]) ([]string, error)) *Custom {
	c.fns[eventName] = func(ctx Context, evt event.Event) ([]string, error) {
		casted, ok := event.TryCast[D](evt)
		if !ok {
			var zero D
			return nil, fmt.Errorf("event data is a %T, not a %T [event=%s]", evt.Data(), zero, evt.Name())
		}
		return fn(ctx, casted)
	}
	return c
}

// AffectedViewIDs returns the ids that the registered function returns for the
// event, or nil if there is none.
func (c *Custom) AffectedViewIDs(ctx Context, evt event.Event) ([]string, error) {
	fn, ok := c.fns[evt.Name()]
	if !ok {
		return nil, nil
	}
	return fn(ctx, evt)
}

// LocatesEvent returns whether a locate function is registered for the given
// event name.
func (c *Custom) LocatesEvent(eventName string) bool {
	_, ok := c.fns[eventName]
	return ok
}
