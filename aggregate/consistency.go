package aggregate

import (
	"errors"
	"fmt"

	"github.com/modernice/cqrs/event"
)

const (
	// InconsistentID means an event belongs to another aggregate id.
	InconsistentID = ConsistencyKind(iota + 1)

	// InconsistentName means an event belongs to another aggregate name.
	InconsistentName

	// InconsistentSequence means the sequence numbers of the events do not
	// continue the version of the aggregate without gaps.
	InconsistentSequence
)

// ConsistencyKind is the kind of a ConsistencyError.
type ConsistencyKind int

// ConsistencyError is returned when events cannot be applied onto an
// aggregate because they are not the aggregate's next events.
type ConsistencyError struct {
	Kind           ConsistencyKind
	Aggregate      Ref
	CurrentVersion int
	Events         []event.Event
	EventIndex     int
}

// Event returns the event that caused the error.
func (err *ConsistencyError) Event() event.Event {
	if err.EventIndex < 0 || err.EventIndex >= len(err.Events) {
		return nil
	}
	return err.Events[err.EventIndex]
}

func (err *ConsistencyError) Error() string {
	evt := err.Event()
	if evt == nil {
		return fmt.Sprintf("consistency: %s [aggregate=%s]", err.Kind, err.Aggregate)
	}

	switch err.Kind {
	case InconsistentID:
		return fmt.Sprintf("consistency: %q event has invalid aggregate id %s [aggregate=%s]", evt.Name(), evt.AggregateID(), err.Aggregate)
	case InconsistentName:
		return fmt.Sprintf("consistency: %q event has invalid aggregate name %q [aggregate=%s]", evt.Name(), evt.AggregateName(), err.Aggregate)
	case InconsistentSequence:
		return fmt.Sprintf(
			"consistency: %q event has sequence number %d, expected %d [aggregate=%s]",
			evt.Name(), evt.SequenceNumber(), err.CurrentVersion+err.EventIndex, err.Aggregate,
		)
	default:
		return fmt.Sprintf("consistency: invalid inconsistency kind %d [aggregate=%s]", err.Kind, err.Aggregate)
	}
}

// IsConsistencyError returns true.
func (err *ConsistencyError) IsConsistencyError() bool {
	return true
}

func (kind ConsistencyKind) String() string {
	switch kind {
	case InconsistentID:
		return "<InconsistentID>"
	case InconsistentName:
		return "<InconsistentName>"
	case InconsistentSequence:
		return "<InconsistentSequence>"
	default:
		return "<UnknownInconsistency>"
	}
}

// IsConsistencyError checks if the given error is a ConsistencyError.
func IsConsistencyError(err error) bool {
	var cerr *ConsistencyError
	return errors.As(err, &cerr)
}

// ValidateConsistency checks that events are the next events of the aggregate
// identified by ref, starting at sequence number currentVersion.
func ValidateConsistency(ref Ref, currentVersion int, events []event.Event) error {
	for i, evt := range events {
		var kind ConsistencyKind
		switch {
		case evt.AggregateID() != ref.ID:
			kind = InconsistentID
		case evt.AggregateName() != ref.Name:
			kind = InconsistentName
		case evt.SequenceNumber() != currentVersion+i:
			kind = InconsistentSequence
		default:
			continue
		}
		return &ConsistencyError{
			Kind:           kind,
			Aggregate:      ref,
			CurrentVersion: currentVersion,
			Events:         events,
			EventIndex:     i,
		}
	}
	return nil
}

// ApplyHistory applies committed events onto an aggregate and sets its
// version to the sequence number after the last event. The events must be the
// next events of the aggregate.
func ApplyHistory(a Aggregate, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	if err := ValidateConsistency(RefOf(a), VersionOf(a), events); err != nil {
		return err
	}

	for _, evt := range events {
		a.ApplyEvent(evt)
	}

	if v, ok := a.(Versioner); ok {
		v.SetVersion(events[len(events)-1].SequenceNumber() + 1)
	}

	return nil
}
