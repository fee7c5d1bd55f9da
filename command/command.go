package command

import (
	"github.com/google/uuid"
	"github.com/modernice/cqrs/event"
)

// A Command is a request to change the state of one or more aggregates.
// Commands are executed by a processor.
type Command interface {
	// ID returns the command id.
	ID() uuid.UUID

	// Name returns the command name.
	Name() string

	// Payload returns the command payload.
	Payload() any

	// Aggregate returns the aggregate the command is addressed to, or a zero
	// ref.
	Aggregate() event.AggregateRef
}

// Option is a command option.
type Option func(*Cmd)

// Cmd is the implementation of Command.
type Cmd struct {
	Data Data
}

// Data contains the actual fields of Cmd.
type Data struct {
	ID            uuid.UUID
	Name          string
	Payload       any
	AggregateName string
	AggregateID   uuid.UUID
}

// ID returns an Option that overrides the auto-generated UUID of a command.
func ID(id uuid.UUID) Option {
	return func(c *Cmd) {
		c.Data.ID = id
	}
}

// Aggregate returns an Option that addresses a command to an aggregate.
func Aggregate(name string, id uuid.UUID) Option {
	return func(c *Cmd) {
		c.Data.AggregateName = name
		c.Data.AggregateID = id
	}
}

// New returns a new command with the given name and payload.
func New(name string, payload any, opts ...Option) Cmd {
	cmd := Cmd{Data: Data{
		ID:      uuid.New(),
		Name:    name,
		Payload: payload,
	}}
	for _, opt := range opts {
		opt(&cmd)
	}
	return cmd
}

// ID returns the command id.
func (cmd Cmd) ID() uuid.UUID {
	return cmd.Data.ID
}

// Name returns the command name.
func (cmd Cmd) Name() string {
	return cmd.Data.Name
}

// Payload returns the command payload.
func (cmd Cmd) Payload() any {
	return cmd.Data.Payload
}

// Aggregate returns the aggregate the command is addressed to.
func (cmd Cmd) Aggregate() event.AggregateRef {
	return event.AggregateRef{Name: cmd.Data.AggregateName, ID: cmd.Data.AggregateID}
}

// Result is the outcome of a successfully processed command.
type Result struct {
	// Events are the committed events of the command.
	Events []event.Event

	// EventsEmitted reports whether the command emitted any events.
	EventsEmitted bool

	// GlobalSequenceNumber is the highest global sequence number of the
	// committed events, or event.BeforeStart if no events were emitted.
	GlobalSequenceNumber int64
}

// NewResult returns the Result of a command that committed the given events.
func NewResult(events []event.Event) Result {
	return Result{
		Events:               events,
		EventsEmitted:        len(events) > 0,
		GlobalSequenceNumber: event.Last(events),
	}
}
