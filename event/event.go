package event

import (
	"fmt"
	"math"
	stdtime "time"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/internal/xtime"
)

const (
	// BeforeStart is the position of a reader that has not seen any event yet.
	BeforeStart int64 = -1

	// Unassigned is the global sequence number of an event that has not been
	// appended to a Store.
	Unassigned int64 = -1

	// Latest is a cutoff that includes every event in the log.
	Latest int64 = math.MaxInt64
)

// Metadata keys that are always present in the map returned by Metadata().
const (
	MetaTime          = "time"
	MetaEventType     = "event-type"
	MetaAggregateName = "aggregate-name"
	MetaAggregateID   = "aggregate-id"
	MetaSequence      = "seq"
	MetaGlobalSeq     = "global-seq"
	MetaBatchID       = "batch-id"
)

// An Event describes something that has happened to an aggregate. Events are
// immutable. The total order of all events in a Store is defined by their
// global sequence numbers.
//
// Example:
//
//	evt := event.New("foo.created", FooCreated{Title: "foo"}, event.Aggregate("foo", id, 0))
type Event = Of[any]

// Of is an event with typed data.
type Of[Data any] interface {
	// ID returns the unique id of the event.
	ID() uuid.UUID
	// Name returns the event type name.
	Name() string
	// Time returns the time at which the event was raised.
	Time() stdtime.Time
	// Data returns the event payload.
	Data() Data

	// AggregateName returns the name of the aggregate the event belongs to.
	AggregateName() string
	// AggregateID returns the id of the aggregate the event belongs to.
	AggregateID() uuid.UUID
	// SequenceNumber returns the 0-based position of the event within its aggregate.
	SequenceNumber() int
	// GlobalSequenceNumber returns the position of the event in the log, or
	// Unassigned if the event was not appended yet.
	GlobalSequenceNumber() int64
	// BatchID returns the id of the commit the event was appended with.
	BatchID() string

	// Header returns the value of a custom header.
	Header(string) string
	// Metadata returns a copy of the event's metadata, including the
	// canonical keys and all custom headers.
	Metadata() map[string]string
}

// Option is an event option.
type Option func(*Evt[any])

// Evt is the event implementation provided by this package.
type Evt[D any] struct {
	D Data[D]
}

// Data is the serializable state of an Evt.
type Data[D any] struct {
	ID             uuid.UUID
	Name           string
	Time           stdtime.Time
	Data           D
	AggregateName  string
	AggregateID    uuid.UUID
	SequenceNumber int
	GlobalSequence int64
	BatchID        string
	Headers        map[string]string
}

// New returns an event with the given name and data. A random UUID is
// generated for the event and its time is set to xtime.Now().
func New[D any](name string, data D, opts ...Option) Evt[D] {
	evt := Evt[any]{D: Data[any]{
		ID:             uuid.New(),
		Name:           name,
		Time:           xtime.Now(),
		Data:           data,
		GlobalSequence: Unassigned,
	}}
	for _, opt := range opts {
		opt(&evt)
	}
	return Evt[D]{D: Data[D]{
		ID:             evt.D.ID,
		Name:           evt.D.Name,
		Time:           evt.D.Time,
		Data:           data,
		AggregateName:  evt.D.AggregateName,
		AggregateID:    evt.D.AggregateID,
		SequenceNumber: evt.D.SequenceNumber,
		GlobalSequence: evt.D.GlobalSequence,
		BatchID:        evt.D.BatchID,
		Headers:        evt.D.Headers,
	}}
}

// ID returns an Option that overrides the generated id of an event.
func ID(id uuid.UUID) Option {
	return func(evt *Evt[any]) {
		evt.D.ID = id
	}
}

// Time returns an Option that overrides the time of an event.
func Time(t stdtime.Time) Option {
	return func(evt *Evt[any]) {
		evt.D.Time = t
	}
}

// Aggregate returns an Option that links an event to an aggregate at the
// given per-aggregate sequence number.
func Aggregate(name string, id uuid.UUID, seq int) Option {
	return func(evt *Evt[any]) {
		evt.D.AggregateName = name
		evt.D.AggregateID = id
		evt.D.SequenceNumber = seq
	}
}

// Header returns an Option that adds a custom header to an event.
func Header(key, val string) Option {
	return func(evt *Evt[any]) {
		if evt.D.Headers == nil {
			evt.D.Headers = make(map[string]string)
		}
		evt.D.Headers[key] = val
	}
}

// Committed returns an Option that sets the log position of an event. Only
// Store implementations should use it.
func Committed(globalSeq int64, batchID string) Option {
	return func(evt *Evt[any]) {
		evt.D.GlobalSequence = globalSeq
		evt.D.BatchID = batchID
	}
}

// Assign returns a copy of evt with the given global sequence number and
// batch id. Stores call Assign when they append events.
func Assign(evt Event, globalSeq int64, batchID string) Event {
	return Rebuild(evt, Committed(globalSeq, batchID))
}

// Rebuild returns a copy of evt with the given options applied.
func Rebuild(evt Event, opts ...Option) Event {
	e := Evt[any]{D: Data[any]{
		ID:             evt.ID(),
		Name:           evt.Name(),
		Time:           evt.Time(),
		Data:           evt.Data(),
		AggregateName:  evt.AggregateName(),
		AggregateID:    evt.AggregateID(),
		SequenceNumber: evt.SequenceNumber(),
		GlobalSequence: evt.GlobalSequenceNumber(),
		BatchID:        evt.BatchID(),
		Headers:        Headers(evt),
	}}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Headers returns a copy of the custom headers of evt, without the canonical
// metadata keys.
func Headers(evt Event) map[string]string {
	if e, ok := evt.(Evt[any]); ok {
		return copyMap(e.D.Headers)
	}
	meta := evt.Metadata()
	for _, key := range canonicalKeys {
		delete(meta, key)
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

var canonicalKeys = [...]string{
	MetaTime,
	MetaEventType,
	MetaAggregateName,
	MetaAggregateID,
	MetaSequence,
	MetaGlobalSeq,
	MetaBatchID,
}

func (evt Evt[D]) ID() uuid.UUID {
	return evt.D.ID
}

func (evt Evt[D]) Name() string {
	return evt.D.Name
}

func (evt Evt[D]) Time() stdtime.Time {
	return evt.D.Time
}

func (evt Evt[D]) Data() D {
	return evt.D.Data
}

func (evt Evt[D]) AggregateName() string {
	return evt.D.AggregateName
}

func (evt Evt[D]) AggregateID() uuid.UUID {
	return evt.D.AggregateID
}

func (evt Evt[D]) SequenceNumber() int {
	return evt.D.SequenceNumber
}

func (evt Evt[D]) GlobalSequenceNumber() int64 {
	return evt.D.GlobalSequence
}

func (evt Evt[D]) BatchID() string {
	return evt.D.BatchID
}

func (evt Evt[D]) Header(key string) string {
	return evt.D.Headers[key]
}

func (evt Evt[D]) Metadata() map[string]string {
	meta := copyMap(evt.D.Headers)
	if meta == nil {
		meta = make(map[string]string, len(canonicalKeys))
	}
	meta[MetaTime] = evt.D.Time.Format(stdtime.RFC3339Nano)
	meta[MetaEventType] = evt.D.Name
	meta[MetaAggregateName] = evt.D.AggregateName
	meta[MetaAggregateID] = evt.D.AggregateID.String()
	meta[MetaSequence] = fmt.Sprint(evt.D.SequenceNumber)
	meta[MetaGlobalSeq] = fmt.Sprint(evt.D.GlobalSequence)
	meta[MetaBatchID] = evt.D.BatchID
	return meta
}

// Any returns the event with its data typed as any.
func (evt Evt[D]) Any() Evt[any] {
	return Any[D](evt)
}

// Event returns the event as an Event.
func (evt Evt[D]) Event() Event {
	return evt.Any()
}

// Ref returns a reference to the aggregate of evt.
func (evt Evt[D]) Ref() AggregateRef {
	return AggregateRef{Name: evt.D.AggregateName, ID: evt.D.AggregateID}
}

// Any converts an event with typed data to an event with data typed as any.
func Any[D any](evt Of[D]) Evt[any] {
	return Cast[any, D](evt)
}

// Cast casts the data of an event to another type. Cast panics if the data
// cannot be converted to To.
func Cast[To, From any](evt Of[From]) Evt[To] {
	casted, ok := TryCast[To](evt)
	if !ok {
		var zero To
		panic(fmt.Errorf("[cqrs/event.Cast] Cannot cast %T to %T. [event=%v]", evt.Data(), zero, evt.Name()))
	}
	return casted
}

// TryCast is like Cast but returns false instead of panicking.
func TryCast[To, From any](evt Of[From]) (Evt[To], bool) {
	var data To
	if raw := any(evt.Data()); raw != nil {
		var ok bool
		if data, ok = raw.(To); !ok {
			return Evt[To]{}, false
		}
	}
	return Evt[To]{D: Data[To]{
		ID:             evt.ID(),
		Name:           evt.Name(),
		Time:           evt.Time(),
		Data:           data,
		AggregateName:  evt.AggregateName(),
		AggregateID:    evt.AggregateID(),
		SequenceNumber: evt.SequenceNumber(),
		GlobalSequence: evt.GlobalSequenceNumber(),
		BatchID:        evt.BatchID(),
		Headers:        headersOf(evt),
	}}, true
}

func headersOf[D any](evt Of[D]) map[string]string {
	if e, ok := any(evt).(Evt[D]); ok {
		return e.D.Headers
	}
	meta := evt.Metadata()
	for _, key := range canonicalKeys {
		delete(meta, key)
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// Equal compares events by value. Times are compared with time.Time.Equal.
func Equal(events ...Event) bool {
	if len(events) < 2 {
		return true
	}
	first := events[0]
	for _, evt := range events[1:] {
		if (evt == nil) != (first == nil) {
			return false
		}
		if evt == nil {
			continue
		}
		if !(evt.ID() == first.ID() &&
			evt.Name() == first.Name() &&
			evt.Time().Equal(first.Time()) &&
			evt.AggregateName() == first.AggregateName() &&
			evt.AggregateID() == first.AggregateID() &&
			evt.SequenceNumber() == first.SequenceNumber() &&
			evt.GlobalSequenceNumber() == first.GlobalSequenceNumber() &&
			evt.BatchID() == first.BatchID()) {
			return false
		}
	}
	return true
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
