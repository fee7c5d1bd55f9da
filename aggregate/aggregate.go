package aggregate

import (
	"github.com/google/uuid"
	"github.com/modernice/cqrs/event"
)

// Ref is a reference to a specific aggregate, identified by its name and id.
type Ref = event.AggregateRef

// Aggregate is an event-sourced aggregate root.
type Aggregate interface {
	// Aggregate returns the id, name and version of the aggregate. The version
	// is the number of events that have been applied and committed, which is
	// also the sequence number of the next event.
	Aggregate() (uuid.UUID, string, int)

	// AggregateChanges returns the uncommitted events of the aggregate.
	AggregateChanges() []event.Event

	// ApplyEvent applies an event onto the aggregate.
	ApplyEvent(event.Event)
}

// Committer is an aggregate that records its changes.
type Committer interface {
	// RecordChange records events that were applied onto the aggregate.
	RecordChange(...event.Event)

	// Commit clears the recorded changes and increases the version of the
	// aggregate accordingly.
	Commit()

	// DiscardChanges clears the recorded changes without changing the version.
	DiscardChanges()
}

// Versioner is an aggregate whose version can be set after replaying events.
type Versioner interface {
	SetVersion(int)
}

// Creator is implemented by aggregates that want to be notified when they
// are created. Created is called exactly once, inside the unit of work that
// creates the aggregate, when the aggregate has no events yet. Created may
// raise events.
type Creator interface {
	Created()
}

// Cloner is implemented by aggregates that know how to deep copy themselves.
// The returned aggregate must not share mutable state with the original and
// its event handlers must be bound to the clone.
type Cloner interface {
	Clone() Aggregate
}

// Factory makes aggregates.
type Factory interface {
	// Make returns a new, empty aggregate with the given name and id.
	Make(name string, id uuid.UUID) (Aggregate, error)
}

// RefOf returns the Ref of the given aggregate.
func RefOf(a Aggregate) Ref {
	id, name, _ := a.Aggregate()
	return Ref{Name: name, ID: id}
}

// VersionOf returns the committed version of the given aggregate.
func VersionOf(a Aggregate) int {
	_, _, v := a.Aggregate()
	return v
}

// CurrentVersion returns the version of the aggregate including its
// uncommitted changes.
func CurrentVersion(a Aggregate) int {
	return VersionOf(a) + len(a.AggregateChanges())
}

// Info wraps a hydrated aggregate with the global sequence number it was
// hydrated up to.
type Info[A Aggregate] struct {
	Root A

	// Cutoff is the global sequence number the aggregate was hydrated as of.
	Cutoff int64

	// LastGlobal is the global sequence number of the last event that was
	// applied onto the aggregate, or event.BeforeStart.
	LastGlobal int64

	// IsNew reports whether the aggregate had no events when it was hydrated.
	// Only the unit of work that creates the aggregate sees IsNew == true.
	IsNew bool
}

// Ref returns the Ref of the aggregate.
func (info Info[A]) Ref() Ref {
	return RefOf(info.Root)
}

// Any returns the Info with its aggregate typed as Aggregate.
func (info Info[A]) Any() Info[Aggregate] {
	return Info[Aggregate]{
		Root:       info.Root,
		Cutoff:     info.Cutoff,
		LastGlobal: info.LastGlobal,
		IsNew:      info.IsNew,
	}
}

// ValidFor returns whether the state described by info equals the state of
// the aggregate as of the given cutoff, after replaying the events between
// info.Cutoff and cutoff.
func (info Info[A]) ValidFor(cutoff int64) bool {
	return info.Cutoff <= cutoff || info.LastGlobal <= cutoff
}

// Cast returns the Info with its aggregate typed as A. Cast returns false if
// the aggregate is not an A.
func Cast[A Aggregate](info Info[Aggregate]) (Info[A], bool) {
	root, ok := info.Root.(A)
	if !ok {
		return Info[A]{}, false
	}
	return Info[A]{
		Root:       root,
		Cutoff:     info.Cutoff,
		LastGlobal: info.LastGlobal,
		IsNew:      info.IsNew,
	}, true
}
