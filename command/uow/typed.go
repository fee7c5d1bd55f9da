package uow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
)

// Load loads the aggregate with the given name and id as an A.
//
//	counter, err := uow.Load[*Counter](ctx, u, "counter", id)
func Load[A aggregate.Aggregate](ctx context.Context, u *UnitOfWork, name string, id uuid.UUID, opts ...LoadOption) (A, error) {
	a, err := u.Load(ctx, name, id, opts...)
	if err != nil {
		var zero A
		return zero, err
	}
	return cast[A](a)
}

// Create creates the aggregate with the given name and id as an A.
func Create[A aggregate.Aggregate](ctx context.Context, u *UnitOfWork, name string, id uuid.UUID) (A, error) {
	a, err := u.Create(ctx, name, id)
	if err != nil {
		var zero A
		return zero, err
	}
	return cast[A](a)
}

// TryLoad loads the aggregate with the given name and id as an A, or returns
// false if it has no events.
func TryLoad[A aggregate.Aggregate](ctx context.Context, u *UnitOfWork, name string, id uuid.UUID) (A, bool, error) {
	var zero A
	a, ok, err := u.TryLoad(ctx, name, id)
	if err != nil || !ok {
		return zero, ok, err
	}
	out, err := cast[A](a)
	return out, err == nil, err
}

func cast[A aggregate.Aggregate](a aggregate.Aggregate) (A, error) {
	out, ok := a.(A)
	if !ok {
		return out, fmt.Errorf("aggregate is a %T, not a %T [aggregate=%s]", a, out, aggregate.RefOf(a))
	}
	return out, nil
}
