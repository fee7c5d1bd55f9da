package snapshot

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
	"github.com/modernice/cqrs/event"
)

// Snapshot is the encoded state of an aggregate at a specific version.
type Snapshot struct {
	AggregateName string
	AggregateID   uuid.UUID

	// Version is the number of events that were applied onto the aggregate.
	Version int

	// LastGlobal is the global sequence number of the last applied event.
	LastGlobal int64

	Time time.Time
	Data []byte
}

// Option is a Snapshot option.
type Option func(*Snapshot)

// Time returns an Option that sets the Time of a Snapshot.
func Time(t time.Time) Option {
	return func(s *Snapshot) {
		s.Time = t
	}
}

// New creates a Snapshot of a hydrated aggregate. The aggregate must
// implement Marshaler.
func New(info aggregate.Info[aggregate.Aggregate], opts ...Option) (Snapshot, error) {
	id, name, v := info.Root.Aggregate()
	snap := Snapshot{
		AggregateName: name,
		AggregateID:   id,
		Version:       v,
		LastGlobal:    info.LastGlobal,
		Time:          time.Now(),
	}
	for _, opt := range opts {
		opt(&snap)
	}

	if _, ok := info.Root.(Marshaler); !ok {
		return snap, fmt.Errorf("%w [aggregate=%s]", ErrNotMarshaler, info.Ref())
	}

	b, err := Marshal(info.Root)
	if err != nil {
		return snap, fmt.Errorf("marshal snapshot: %w", err)
	}
	snap.Data = b

	return snap, nil
}

// Ref returns the Ref of the snapshotted aggregate.
func (s Snapshot) Ref() aggregate.Ref {
	return aggregate.Ref{Name: s.AggregateName, ID: s.AggregateID}
}

// Restore decodes the snapshot into the given empty aggregate and returns the
// resulting Info.
func Restore(s Snapshot, a aggregate.Aggregate) (aggregate.Info[aggregate.Aggregate], error) {
	if err := Unmarshal(s.Data, a); err != nil {
		return aggregate.Info[aggregate.Aggregate]{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	if v, ok := a.(aggregate.Versioner); ok {
		v.SetVersion(s.Version)
	}

	last := s.LastGlobal
	if s.Version == 0 {
		last = event.BeforeStart
	}

	return aggregate.Info[aggregate.Aggregate]{
		Root:       a,
		Cutoff:     last,
		LastGlobal: last,
	}, nil
}
