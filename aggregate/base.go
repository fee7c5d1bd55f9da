package aggregate

import (
	"time"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/internal/xtime"
)

// Option is an option for creating an aggregate.
type Option func(*Base)

// Base can be embedded into aggregates to implement Aggregate, Committer and
// Versioner.
//
//	type Account struct {
//		*aggregate.Base
//
//		Balance int
//	}
//
//	func NewAccount(id uuid.UUID) *Account {
//		a := &Account{Base: aggregate.New("account", id)}
//		event.ApplyWith(a, "account.deposited", a.deposited)
//		return a
//	}
//
//	func (a *Account) Deposit(amount int) {
//		aggregate.Next(a, "account.deposited", Deposited{Amount: amount})
//	}
//
//	func (a *Account) deposited(evt event.Of[Deposited]) {
//		a.Balance += evt.Data().Amount
//	}
type Base struct {
	ID      uuid.UUID
	Name    string
	Version int
	Changes []event.Event

	handlers event.Handlers
}

// Version returns an Option that sets the version of an aggregate.
func Version(v int) Option {
	return func(b *Base) {
		b.Version = v
	}
}

// New returns a new base aggregate.
func New(name string, id uuid.UUID, opts ...Option) *Base {
	b := &Base{
		ID:       id,
		Name:     name,
		handlers: make(event.Handlers),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ref returns a Ref to the aggregate.
func (b *Base) Ref() Ref {
	return Ref{Name: b.Name, ID: b.ID}
}

// Aggregate returns the id, name and version of the aggregate.
func (b *Base) Aggregate() (uuid.UUID, string, int) {
	return b.ID, b.Name, b.Version
}

// AggregateChanges returns the recorded changes.
func (b *Base) AggregateChanges() []event.Event {
	return b.Changes
}

// RecordChange records applied changes to the aggregate.
func (b *Base) RecordChange(events ...event.Event) {
	b.Changes = append(b.Changes, events...)
}

// Commit clears the recorded changes and sets the version of the aggregate
// to the sequence number after the last recorded change.
func (b *Base) Commit() {
	if len(b.Changes) == 0 {
		return
	}
	b.Version = b.Changes[len(b.Changes)-1].SequenceNumber() + 1
	b.Changes = nil
}

// DiscardChanges discards the recorded changes. Note that this does not
// revert state changes that were applied to the aggregate.
func (b *Base) DiscardChanges() {
	b.Changes = nil
}

// SetVersion manually sets the version of the aggregate.
func (b *Base) SetVersion(v int) {
	b.Version = v
}

// RegisterHandler implements event.Handler.
func (b *Base) RegisterHandler(eventName string, handler func(event.Event)) {
	if b.handlers == nil {
		b.handlers = make(event.Handlers)
	}
	b.handlers.RegisterHandler(eventName, handler)
}

// ApplyEvent calls the registered handler for the given event.
func (b *Base) ApplyEvent(evt event.Event) {
	b.handlers.HandleEvent(evt)
}

// HandlesEvent returns whether a handler is registered for the given event name.
func (b *Base) HandlesEvent(eventName string) bool {
	return b.handlers.HandlesEvent(eventName)
}

func (b *Base) base() *Base {
	return b
}

// Next creates, applies and records the next event of the given aggregate.
//
//	var foo aggregate.Aggregate
//	evt := aggregate.Next(foo, "name", <data>, ...)
func Next[Data any](a Aggregate, name string, data Data, opts ...event.Option) event.Evt[Data] {
	id, aname, _ := a.Aggregate()

	opts = append([]event.Option{
		event.Aggregate(aname, id, CurrentVersion(a)),
		event.Time(nextTime(a)),
	}, opts...)

	evt := event.New(name, data, opts...)
	aevt := evt.Any()

	a.ApplyEvent(aevt)

	if c, ok := a.(Committer); ok {
		c.RecordChange(aevt)
	}

	return evt
}

// nextTime returns the time for the next event of the given aggregate, which
// is at least 1 nanosecond after the previous change.
func nextTime(a Aggregate) time.Time {
	now := xtime.Now()
	changes := a.AggregateChanges()
	if len(changes) == 0 {
		return now
	}
	if latest := changes[len(changes)-1].Time(); !now.After(latest) {
		return latest.Add(time.Nanosecond)
	}
	return now
}
