package snapshot

import (
	"bytes"
	"fmt"

	"github.com/modernice/cqrs/aggregate"
)

// CloneMismatchError is returned by Clone when the clone of an aggregate does
// not encode to the same snapshot as the original.
type CloneMismatchError struct {
	Aggregate aggregate.Ref
	Original  []byte
	Clone     []byte
}

func (err *CloneMismatchError) Error() string {
	return fmt.Sprintf("clone of %s differs from the original", err.Aggregate)
}

// Clone returns a deep copy of the given aggregate that shares no mutable
// state with it. The aggregate is cloned using the first strategy it supports:
//
//   - its own aggregate.Cloner implementation
//   - a Marshaler/Unmarshaler round trip into a new aggregate made by fac
//   - aggregate.DeepCopy into a new aggregate made by fac
//
// If the aggregate implements Marshaler, Clone verifies that the clone
// marshals to the same bytes as the original.
func Clone(fac aggregate.Factory, a aggregate.Aggregate) (aggregate.Aggregate, error) {
	if len(a.AggregateChanges()) > 0 {
		return nil, fmt.Errorf("cannot clone aggregate with uncommitted changes [aggregate=%s]", aggregate.RefOf(a))
	}

	clone, err := clone(fac, a)
	if err != nil {
		return nil, err
	}

	if err := verify(a, clone); err != nil {
		return nil, err
	}

	return clone, nil
}

func clone(fac aggregate.Factory, a aggregate.Aggregate) (aggregate.Aggregate, error) {
	ref := aggregate.RefOf(a)

	if c, ok := a.(aggregate.Cloner); ok {
		return c.Clone(), nil
	}

	fresh, err := fac.Make(ref.Name, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("make aggregate: %w", err)
	}

	_, isMarshaler := a.(Marshaler)
	_, isUnmarshaler := fresh.(Unmarshaler)
	if isMarshaler && isUnmarshaler {
		b, err := Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal snapshot: %w", err)
		}
		if err := Unmarshal(b, fresh); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		if v, ok := fresh.(aggregate.Versioner); ok {
			v.SetVersion(aggregate.VersionOf(a))
		}
		return fresh, nil
	}

	if err := aggregate.DeepCopy(fresh, a); err != nil {
		return nil, err
	}

	return fresh, nil
}

func verify(original, clone aggregate.Aggregate) error {
	oid, oname, ov := original.Aggregate()
	cid, cname, cv := clone.Aggregate()
	if oid != cid || oname != cname || ov != cv {
		return &CloneMismatchError{Aggregate: aggregate.RefOf(original)}
	}

	if _, ok := original.(Marshaler); !ok {
		return nil
	}

	want, err := Marshal(original)
	if err != nil {
		return fmt.Errorf("marshal original: %w", err)
	}

	got, err := Marshal(clone)
	if err != nil {
		return fmt.Errorf("marshal clone: %w", err)
	}

	if !bytes.Equal(want, got) {
		return &CloneMismatchError{
			Aggregate: aggregate.RefOf(original),
			Original:  want,
			Clone:     got,
		}
	}

	return nil
}
