package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
	"github.com/modernice/cqrs/aggregate/repository"
	"github.com/modernice/cqrs/command/uow"
	"github.com/modernice/cqrs/event"
)

// ErrNoRepository is returned by Context.Load when the view manager has no
// repository.
var ErrNoRepository = errors.New("no aggregate repository")

// Context is the context of a view handler.
type Context interface {
	context.Context

	// Event returns the event that is being dispatched.
	Event() event.Event

	// Load returns the aggregate with the given name and id exactly as it was
	// when the current event was committed.
	Load(name string, id uuid.UUID) (aggregate.Aggregate, error)
}

type viewContext struct {
	context.Context

	evt  event.Event
	repo *repository.Repository
	unit *uow.UnitOfWork
}

// NewContext returns the Context for dispatching evt. Aggregates are loaded
// using repo, which may be nil.
func NewContext(ctx context.Context, evt event.Event, repo *repository.Repository) Context {
	return &viewContext{Context: ctx, evt: evt, repo: repo}
}

func (ctx *viewContext) Event() event.Event {
	return ctx.evt
}

func (ctx *viewContext) Load(name string, id uuid.UUID) (aggregate.Aggregate, error) {
	if ctx.repo == nil {
		return nil, ErrNoRepository
	}
	if ctx.unit == nil {
		ctx.unit = uow.New(ctx.repo, uow.Cutoff(ctx.evt.GlobalSequenceNumber()))
	}
	return ctx.unit.Load(ctx, name, id)
}

// Load loads the aggregate with the given name and id as an A, as of the
// current event of ctx.
func Load[A aggregate.Aggregate](ctx Context, name string, id uuid.UUID) (A, error) {
	a, err := ctx.Load(name, id)
	if err != nil {
		var zero A
		return zero, err
	}
	out, ok := a.(A)
	if !ok {
		return out, fmt.Errorf("aggregate is a %T, not a %T [aggregate=%s(%s)]", a, out, name, id)
	}
	return out, nil
}
