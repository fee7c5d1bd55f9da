package snapshot

import (
	"errors"

	"github.com/modernice/cqrs/aggregate"
)

// ErrNotMarshaler is returned when an aggregate that does not implement
// Marshaler is snapshotted.
var ErrNotMarshaler = errors.New("aggregate does not implement snapshot.Marshaler")

// A Marshaler can encode itself into bytes.
type Marshaler interface {
	MarshalSnapshot() ([]byte, error)
}

// An Unmarshaler can decode itself from bytes.
type Unmarshaler interface {
	UnmarshalSnapshot([]byte) error
}

// Marshal encodes the given aggregate into a byte slice. If the aggregate
// does not implement Marshaler, Marshal returns nil, nil.
func Marshal(a aggregate.Aggregate) ([]byte, error) {
	if m, ok := a.(Marshaler); ok {
		return m.MarshalSnapshot()
	}
	return nil, nil
}

// Unmarshal decodes p into the aggregate a by calling a.UnmarshalSnapshot(p).
// Unmarshal returns nil if the aggregate does not implement Unmarshaler.
func Unmarshal(p []byte, a aggregate.Aggregate) error {
	if u, ok := a.(Unmarshaler); ok {
		return u.UnmarshalSnapshot(p)
	}
	return nil
}
