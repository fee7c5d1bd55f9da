package aggregate_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
	"github.com/modernice/cqrs/aggregate/test"
)

type withPrivateState struct {
	*aggregate.Base

	count int
}

type withTime struct {
	*aggregate.Base

	Since  time.Time
	Nested map[string][]int
}

func TestDeepCopy(t *testing.T) {
	id := uuid.New()
	src := test.NewCounter(id)
	if err := aggregate.ApplyHistory(src, test.Increments(id, 0, 3)); err != nil {
		t.Fatalf("ApplyHistory failed with %q", err)
	}
	src.Labels["foo"] = "bar"

	dst := test.NewCounter(id)
	if err := aggregate.DeepCopy(dst, src); err != nil {
		t.Fatalf("DeepCopy failed with %q", err)
	}

	if dst.Count != 3 || aggregate.VersionOf(dst) != 3 {
		t.Fatalf("copy should have Count=3 and version 3; got Count=%d version=%d", dst.Count, aggregate.VersionOf(dst))
	}

	if !cmp.Equal(src.History, dst.History) || !cmp.Equal(src.Labels, dst.Labels) {
		t.Fatalf("copy should have the same state as the original")
	}

	dst.Increment(10)
	dst.Labels["baz"] = "qux"

	if src.Count != 3 {
		t.Fatalf("mutating the copy should not mutate the original; original Count is %d", src.Count)
	}

	if len(src.History) != 3 {
		t.Fatalf("mutating the copy should not mutate the original history; got %v", src.History)
	}

	if _, ok := src.Labels["baz"]; ok {
		t.Fatalf("mutating the copy should not mutate the original labels")
	}

	if dst.Count != 13 {
		t.Fatalf("event handlers of the copy should be bound to the copy; Count is %d", dst.Count)
	}
}

func TestDeepCopy_unexportedState(t *testing.T) {
	id := uuid.New()
	src := &withPrivateState{Base: aggregate.New("private", id), count: 3}
	dst := &withPrivateState{Base: aggregate.New("private", id)}

	if err := aggregate.DeepCopy(dst, src); !errors.Is(err, aggregate.ErrUncloneable) {
		t.Fatalf("DeepCopy should fail with %q; got %q", aggregate.ErrUncloneable, err)
	}
}

func TestDeepCopy_typeMismatch(t *testing.T) {
	id := uuid.New()
	if err := aggregate.DeepCopy(test.NewCounter(id), aggregate.New("counter", id)); !errors.Is(err, aggregate.ErrUncloneable) {
		t.Fatalf("DeepCopy should fail with %q; got %q", aggregate.ErrUncloneable, err)
	}
}

func TestDeepCopy_nested(t *testing.T) {
	id := uuid.New()
	src := &withTime{
		Base:   aggregate.New("time", id, aggregate.Version(4)),
		Since:  time.Now(),
		Nested: map[string][]int{"a": {1, 2}},
	}
	dst := &withTime{Base: aggregate.New("time", id)}

	err := aggregate.DeepCopy(dst, src)
	if err != nil && !errors.Is(err, aggregate.ErrUncloneable) {
		t.Fatalf("DeepCopy should either succeed or fail with %q; got %q", aggregate.ErrUncloneable, err)
	}

	if err == nil {
		if !dst.Since.Equal(src.Since) || !cmp.Equal(src.Nested, dst.Nested) || aggregate.VersionOf(dst) != 4 {
			t.Fatalf("DeepCopy succeeded but the copy differs from the original")
		}
		dst.Nested["a"][0] = 9
		if src.Nested["a"][0] != 1 {
			t.Fatalf("mutating the copy should not mutate the original")
		}
	}
}
