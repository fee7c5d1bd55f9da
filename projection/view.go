package projection

import "github.com/modernice/cqrs/event"

// A View is a materialized view instance. Its position is the global sequence
// number of the last event that was applied onto it. Events with a global
// sequence number <= its position are never applied again.
type View interface {
	ViewID() string
	Position() int64
	SetPosition(int64)
}

// Progressor tracks the position of a view. Embed it into a view to
// implement Position and SetPosition.
type Progressor struct {
	LastPosition int64
}

// NewProgressor returns a Progressor at event.BeforeStart.
func NewProgressor() Progressor {
	return Progressor{LastPosition: event.BeforeStart}
}

// Position returns the position of the view.
func (p *Progressor) Position() int64 {
	return p.LastPosition
}

// SetPosition sets the position of the view.
func (p *Progressor) SetPosition(pos int64) {
	p.LastPosition = pos
}

// Base can be embedded into views to implement View.
//
//	type EventCounter struct {
//		projection.Base
//
//		Count int
//	}
//
//	func NewEventCounter(id string) *EventCounter {
//		return &EventCounter{Base: projection.NewBase(id)}
//	}
type Base struct {
	ID string
	Progressor
}

// NewBase returns a Base with the given id at event.BeforeStart.
func NewBase(id string) Base {
	return Base{ID: id, Progressor: NewProgressor()}
}

// ViewID returns the id of the view.
func (b *Base) ViewID() string {
	return b.ID
}
