package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/modernice/cqrs/aggregate/repository"
	"github.com/modernice/cqrs/command"
	"github.com/modernice/cqrs/command/uow"
	"github.com/modernice/cqrs/event"
	"github.com/sirupsen/logrus"
)

// DefaultMaxRetries is the default number of times a command is retried after
// a concurrency conflict.
const DefaultMaxRetries = 10

// ErrPanic is the cause of a ProcessingError that is returned when a handler
// panics.
var ErrPanic = errors.New("handler panicked")

// HandlerFunc executes a command.
type HandlerFunc func(Context) error

// A Notifier is notified about the events committed by a command.
type Notifier interface {
	Notify(ctx context.Context, events []event.Event)
}

// Processor processes commands. Each attempt of a command runs within a fresh
// unit of work whose changes are appended to the event log as one batch. When
// the append fails with a concurrency conflict, the command is retried from
// scratch.
type Processor struct {
	repo *repository.Repository

	maxRetries   int
	backoff      command.RetryTrigger
	domainErrors []error
	notifiers    []Notifier
	log          logrus.FieldLogger

	mux      sync.RWMutex
	handlers map[string]HandlerFunc
}

// Option is a Processor option.
type Option func(*Processor)

// MaxRetries returns an Option that sets the number of times a command is
// retried after a concurrency conflict. Default is DefaultMaxRetries.
func MaxRetries(n int) Option {
	return func(p *Processor) {
		p.maxRetries = n
	}
}

// RetryBackoff returns an Option that waits using the given RetryTrigger
// before each retry. By default, commands are retried immediately.
func RetryBackoff(t command.RetryTrigger) Option {
	return func(p *Processor) {
		p.backoff = t
	}
}

// DomainErrors returns an Option that adds errors to the domain errors of the
// Processor. Handler errors that match a domain error (using errors.Is) are
// returned to the caller as-is, like a *command.Rejection.
func DomainErrors(errs ...error) Option {
	return func(p *Processor) {
		p.domainErrors = append(p.domainErrors, errs...)
	}
}

// NotifyTo returns an Option that notifies the given Notifiers about the
// events of every successfully processed command.
func NotifyTo(notifiers ...Notifier) Option {
	return func(p *Processor) {
		p.notifiers = append(p.notifiers, notifiers...)
	}
}

// WithLogger returns an Option that sets the logger of the Processor.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Processor) {
		p.log = l
	}
}

// New returns a Processor that hydrates aggregates using repo.
func New(repo *repository.Repository, opts ...Option) *Processor {
	p := &Processor{
		repo:       repo,
		maxRetries: DefaultMaxRetries,
		backoff:    command.RetryImmediately(),
		handlers:   make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	return p
}

// Handle registers the handler for commands with the given name. Handle
// panics if a handler is already registered for that name.
func (p *Processor) Handle(name string, h HandlerFunc) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if _, ok := p.handlers[name]; ok {
		panic(fmt.Errorf("[cqrs/processor.Handle] Handler already registered for %q", name))
	}
	p.handlers[name] = h
}

// HandleWith registers a handler that receives the command payload as a
// Payload. A command whose payload is not a Payload fails with a
// *command.ProcessingError.
func HandleWith[Payload any](p *Processor, name string, fn func(Context, Payload) error) {
	p.Handle(name, func(ctx Context) error {
		pl, ok := ctx.Command().Payload().(Payload)
		if !ok {
			var zero Payload
			return fmt.Errorf("invalid payload: %T is not a %T", ctx.Command().Payload(), zero)
		}
		return fn(ctx, pl)
	})
}

// Handles returns whether a handler is registered for the given command name.
func (p *Processor) Handles(name string) bool {
	_, ok := p.handler(name)
	return ok
}

func (p *Processor) handler(name string) (HandlerFunc, bool) {
	p.mux.RLock()
	defer p.mux.RUnlock()
	h, ok := p.handlers[name]
	return h, ok
}

// Process executes a command and commits its events.
//
// A *command.Rejection or a configured domain error returned by the handler
// is returned as-is and the command is not retried. When all retries are used
// up because of concurrency conflicts, Process returns a
// *command.ConcurrencyError. Any other failure, including a handler panic, is
// returned as a *command.ProcessingError.
//
// After a successful commit, the configured Notifiers are notified
// synchronously before Process returns.
func (p *Processor) Process(ctx context.Context, cmd command.Command) (command.Result, error) {
	h, ok := p.handler(cmd.Name())
	if !ok {
		return command.Result{}, &command.ProcessingError{Command: cmd.Name(), Cause: command.ErrUnhandled}
	}

	log := p.log.WithFields(logrus.Fields{
		"command": cmd.Name(),
		"id":      cmd.ID(),
	})

	for attempt := 1; ; attempt++ {
		events, err := p.attempt(ctx, cmd, h, attempt)
		if err == nil {
			res := command.NewResult(events)
			if res.EventsEmitted {
				p.notify(ctx, events)
			}
			return res, nil
		}

		if p.isDomainError(err) {
			return command.Result{}, err
		}

		if !event.IsConflict(err) {
			return command.Result{}, &command.ProcessingError{Command: cmd.Name(), Cause: err}
		}

		if attempt > p.maxRetries {
			return command.Result{}, &command.ConcurrencyError{Command: cmd.Name(), Attempts: attempt, Err: err}
		}

		log.WithError(err).WithField("attempt", attempt).Debug("[cqrs/processor.Process] Concurrency conflict. Retrying command.")

		if err := p.backoff.Wait(ctx, attempt); err != nil {
			return command.Result{}, &command.ProcessingError{Command: cmd.Name(), Cause: err}
		}
	}
}

func (p *Processor) attempt(ctx context.Context, cmd command.Command, h HandlerFunc, attempt int) ([]event.Event, error) {
	unit := uow.New(p.repo)

	if err := execute(newContext(ctx, cmd, attempt, unit), h); err != nil {
		return nil, err
	}

	return unit.Commit(ctx)
}

func execute(ctx Context, h HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return h(ctx)
}

func (p *Processor) isDomainError(err error) bool {
	if command.IsRejection(err) {
		return true
	}
	for _, derr := range p.domainErrors {
		if errors.Is(err, derr) {
			return true
		}
	}
	return false
}

func (p *Processor) notify(ctx context.Context, events []event.Event) {
	for _, n := range p.notifiers {
		n.Notify(ctx, events)
	}
}
