package processor

import (
	"context"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
	"github.com/modernice/cqrs/command"
	"github.com/modernice/cqrs/command/uow"
)

// Context is the context of a command handler.
type Context interface {
	context.Context

	// Command returns the processed command.
	Command() command.Command

	// Attempt returns the current attempt, starting at 1.
	Attempt() int

	// UnitOfWork returns the unit of work of the current attempt.
	UnitOfWork() *uow.UnitOfWork
}

type cmdContext struct {
	context.Context

	cmd     command.Command
	attempt int
	unit    *uow.UnitOfWork
}

func newContext(ctx context.Context, cmd command.Command, attempt int, unit *uow.UnitOfWork) *cmdContext {
	return &cmdContext{Context: ctx, cmd: cmd, attempt: attempt, unit: unit}
}

func (ctx *cmdContext) Command() command.Command {
	return ctx.cmd
}

func (ctx *cmdContext) Attempt() int {
	return ctx.attempt
}

func (ctx *cmdContext) UnitOfWork() *uow.UnitOfWork {
	return ctx.unit
}

// Load loads an aggregate within the unit of work of ctx.
func Load[A aggregate.Aggregate](ctx Context, name string, id uuid.UUID, opts ...uow.LoadOption) (A, error) {
	return uow.Load[A](ctx, ctx.UnitOfWork(), name, id, opts...)
}

// Create creates an aggregate within the unit of work of ctx.
func Create[A aggregate.Aggregate](ctx Context, name string, id uuid.UUID) (A, error) {
	return uow.Create[A](ctx, ctx.UnitOfWork(), name, id)
}

// TryLoad loads an aggregate within the unit of work of ctx, or returns false
// if it has no events.
func TryLoad[A aggregate.Aggregate](ctx Context, name string, id uuid.UUID) (A, bool, error) {
	return uow.TryLoad[A](ctx, ctx.UnitOfWork(), name, id)
}
