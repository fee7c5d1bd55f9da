package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
)

// TypedRepository hydrates aggregates of a single type.
//
//	type Foo struct { *aggregate.Base }
//
//	var repo *repository.Repository
//	foos := repository.Typed[*Foo](repo, "foo")
//
//	info, err := foos.Hydrate(ctx, id, event.Latest)
//	foo := info.Root
type TypedRepository[A aggregate.Aggregate] struct {
	repo *Repository
	name string
}

// Typed returns a TypedRepository for the aggregates with the given name.
func Typed[A aggregate.Aggregate](r *Repository, name string) *TypedRepository[A] {
	return &TypedRepository[A]{repo: r, name: name}
}

// Hydrate hydrates the aggregate with the given id as of the given cutoff.
func (r *TypedRepository[A]) Hydrate(ctx context.Context, id uuid.UUID, cutoff int64) (aggregate.Info[A], error) {
	return Hydrate[A](ctx, r.repo, aggregate.Ref{Name: r.name, ID: id}, cutoff)
}

// Exists returns whether the aggregate with the given id exists as of the
// given cutoff.
func (r *TypedRepository[A]) Exists(ctx context.Context, id uuid.UUID, cutoff int64) (bool, error) {
	return r.repo.Exists(ctx, aggregate.Ref{Name: r.name, ID: id}, cutoff)
}

// Hydrate hydrates an aggregate and casts it to A.
func Hydrate[A aggregate.Aggregate](ctx context.Context, r *Repository, ref aggregate.Ref, cutoff int64) (aggregate.Info[A], error) {
	info, err := r.Hydrate(ctx, ref, cutoff)
	if err != nil {
		return aggregate.Info[A]{}, err
	}

	typed, ok := aggregate.Cast[A](info)
	if !ok {
		var zero A
		return aggregate.Info[A]{}, fmt.Errorf("aggregate %s is a %T, not a %T", ref, info.Root, zero)
	}

	return typed, nil
}
