package event

//go:generate mockgen -source=store.go -destination=./mocks/store.go

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

var (
	// ErrConcurrencyConflict is returned by a Store when a batch was written
	// against an aggregate state that is no longer current.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrInvalidBatch is returned by a Store when a batch is malformed.
	ErrInvalidBatch = errors.New("invalid batch")
)

// Store is the append-only event log. A Store is the single component that
// assigns global sequence numbers: every batch passed to Append is assigned a
// contiguous range of global sequence numbers, atomically, or not at all.
type Store interface {
	// Append appends the events as one batch and returns the committed events
	// with their global sequence numbers and batch id assigned. For every
	// aggregate in the batch, the sequence number of its first event must
	// equal the number of events the aggregate already has in the Store;
	// otherwise Append returns an error that wraps ErrConcurrencyConflict.
	Append(ctx context.Context, batchID string, events ...Event) ([]Event, error)

	// LoadStream returns the events of an aggregate with a sequence number >=
	// fromSeq and a global sequence number <= cutoff, ordered by sequence number.
	LoadStream(ctx context.Context, ref AggregateRef, fromSeq int, cutoff int64) ([]Event, error)

	// Stream streams all events with a global sequence number >= from,
	// ordered by global sequence number. The returned channels are closed
	// after the events that were durable when Stream was called are sent.
	Stream(ctx context.Context, from int64) (<-chan Event, <-chan error, error)

	// NextGlobalSequenceNumber returns the global sequence number the next
	// appended event will be assigned.
	NextGlobalSequenceNumber(ctx context.Context) (int64, error)
}

// AggregateRef is a reference to a specific aggregate, identified by its name
// and id.
type AggregateRef struct {
	Name string
	ID   uuid.UUID
}

// String returns the string representation of the aggregate: "NAME(ID)"
func (ref AggregateRef) String() string {
	return fmt.Sprintf("%s(%s)", ref.Name, ref.ID)
}

// IsZero returns whether the ref has an empty name and a nil-UUID.
func (ref AggregateRef) IsZero() bool {
	return ref.Name == "" && ref.ID == uuid.Nil
}

// Ref returns the AggregateRef of an event.
func Ref(evt Event) AggregateRef {
	return AggregateRef{Name: evt.AggregateName(), ID: evt.AggregateID()}
}

// ConflictError is returned by a Store when the expected sequence number of
// an aggregate does not match its current sequence number.
type ConflictError struct {
	Aggregate AggregateRef

	// Expected is the sequence number of the first event in the batch.
	Expected int

	// Current is the number of events the aggregate has in the Store.
	Current int
}

func (err *ConflictError) Error() string {
	return fmt.Sprintf(
		"concurrency conflict: expected sequence %d but aggregate has %d events [aggregate=%s]",
		err.Expected, err.Current, err.Aggregate,
	)
}

// Is reports whether target is ErrConcurrencyConflict.
func (err *ConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// IsConflict returns whether err is or wraps ErrConcurrencyConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// ValidateBatch checks that the events of a batch are linked to aggregates and
// that the sequence numbers of each aggregate are contiguous. It returns the
// first sequence number of each aggregate in the batch.
func ValidateBatch(events []Event) (map[AggregateRef]int, error) {
	first := make(map[AggregateRef]int)
	next := make(map[AggregateRef]int)
	for i, evt := range events {
		ref := Ref(evt)
		if ref.Name == "" || ref.ID == uuid.Nil {
			return nil, fmt.Errorf("%w: event #%d is not linked to an aggregate [event=%s]", ErrInvalidBatch, i, evt.Name())
		}
		if evt.SequenceNumber() < 0 {
			return nil, fmt.Errorf("%w: negative sequence number [event=%s, aggregate=%s]", ErrInvalidBatch, evt.Name(), ref)
		}
		if want, ok := next[ref]; ok && evt.SequenceNumber() != want {
			return nil, fmt.Errorf(
				"%w: sequence numbers must be contiguous [aggregate=%s, expected=%d, got=%d]",
				ErrInvalidBatch, ref, want, evt.SequenceNumber(),
			)
		}
		if _, ok := first[ref]; !ok {
			first[ref] = evt.SequenceNumber()
		}
		next[ref] = evt.SequenceNumber() + 1
	}
	return first, nil
}

// SortByGlobal sorts events by their global sequence number.
func SortByGlobal(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].GlobalSequenceNumber() < events[j].GlobalSequenceNumber()
	})
}

// SortBySequence sorts events by their per-aggregate sequence number.
func SortBySequence(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].SequenceNumber() < events[j].SequenceNumber()
	})
}

// Last returns the highest global sequence number of the given events, or
// BeforeStart if events is empty.
func Last(events []Event) int64 {
	last := BeforeStart
	for _, evt := range events {
		if seq := evt.GlobalSequenceNumber(); seq > last {
			last = seq
		}
	}
	return last
}
