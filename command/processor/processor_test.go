package processor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate/repository"
	"github.com/modernice/cqrs/aggregate/test"
	"github.com/modernice/cqrs/command"
	"github.com/modernice/cqrs/command/processor"
	"github.com/modernice/cqrs/command/uow"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/event/eventstore"
	mock_event "github.com/modernice/cqrs/event/mocks"
)

const incrementCommand = "counter.increment"

func incrementHandler(ctx processor.Context, by int) error {
	c, err := processor.Load[*test.Counter](ctx, test.CounterAggregate, ctx.Command().Aggregate().ID, uow.CreateIfMissing())
	if err != nil {
		return err
	}
	c.Increment(by)
	return nil
}

func newProcessor(store event.Store, opts ...processor.Option) *processor.Processor {
	p := processor.New(repository.New(store, test.Factory()), opts...)
	processor.HandleWith(p, incrementCommand, incrementHandler)
	return p
}

func TestProcessor_Process(t *testing.T) {
	store := eventstore.New()
	notifier := &recordingNotifier{}
	p := newProcessor(store, processor.NotifyTo(notifier))
	id := uuid.New()

	res, err := p.Process(context.Background(), command.New(incrementCommand, 3, command.Aggregate(test.CounterAggregate, id)))
	if err != nil {
		t.Fatalf("Process failed with %q", err)
	}

	if !res.EventsEmitted || len(res.Events) != 2 {
		t.Fatalf("command should emit 2 events; got %d", len(res.Events))
	}

	if res.GlobalSequenceNumber != 1 {
		t.Fatalf("result should carry global sequence number 1; got %d", res.GlobalSequenceNumber)
	}

	if got := notifier.count(); got != 2 {
		t.Fatalf("notifier should be notified about 2 events; got %d", got)
	}
}

func TestProcessor_Process_retryAfterConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock_event.NewMockStore(ctrl)
	id := uuid.New()

	store.EXPECT().LoadStream(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(2)
	gomock.InOrder(
		store.EXPECT().
			Append(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, &event.ConflictError{Aggregate: event.AggregateRef{Name: test.CounterAggregate, ID: id}}),
		store.EXPECT().
			Append(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, batchID string, events ...event.Event) ([]event.Event, error) {
				out := make([]event.Event, len(events))
				for i, evt := range events {
					out[i] = event.Assign(evt, int64(i), batchID)
				}
				return out, nil
			}),
	)

	var attempts []int
	p := processor.New(repository.New(store, test.Factory()))
	p.Handle(incrementCommand, func(ctx processor.Context) error {
		attempts = append(attempts, ctx.Attempt())
		return incrementHandler(ctx, 1)
	})

	res, err := p.Process(context.Background(), command.New(incrementCommand, 1, command.Aggregate(test.CounterAggregate, id)))
	if err != nil {
		t.Fatalf("Process failed with %q", err)
	}

	if len(attempts) != 2 || attempts[1] != 2 {
		t.Fatalf("handler should run twice; got attempts %v", attempts)
	}

	if res.GlobalSequenceNumber != 1 {
		t.Fatalf("result should carry global sequence number 1; got %d", res.GlobalSequenceNumber)
	}
}

func TestProcessor_Process_retriesExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock_event.NewMockStore(ctrl)

	store.EXPECT().LoadStream(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(3)
	store.EXPECT().
		Append(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &event.ConflictError{}).
		Times(3)

	p := newProcessor(store, processor.MaxRetries(2))

	_, err := p.Process(context.Background(), command.New(incrementCommand, 1, command.Aggregate(test.CounterAggregate, uuid.New())))

	var cerr *command.ConcurrencyError
	if !errors.As(err, &cerr) {
		t.Fatalf("Process should fail with a ConcurrencyError; got %T %q", err, err)
	}

	if cerr.Attempts != 3 {
		t.Fatalf("ConcurrencyError should report 3 attempts; got %d", cerr.Attempts)
	}

	if !errors.Is(err, event.ErrConcurrencyConflict) {
		t.Fatalf("ConcurrencyError should wrap %q", event.ErrConcurrencyConflict)
	}
}

func TestProcessor_Process_rejection(t *testing.T) {
	store := eventstore.New()
	p := processor.New(repository.New(store, test.Factory()))

	rejection := command.Reject(1, errors.New("counter is locked"))
	var calls int
	p.Handle("reject", func(processor.Context) error {
		calls++
		return rejection
	})

	_, err := p.Process(context.Background(), command.New("reject", nil))
	if err != rejection {
		t.Fatalf("Process should return the rejection untouched; got %T %q", err, err)
	}

	if calls != 1 {
		t.Fatalf("a rejected command must not be retried; handler called %d times", calls)
	}
}

func TestProcessor_Process_domainError(t *testing.T) {
	errLocked := errors.New("locked")
	p := processor.New(repository.New(eventstore.New(), test.Factory()), processor.DomainErrors(errLocked))
	p.Handle("lock", func(processor.Context) error { return errLocked })

	_, err := p.Process(context.Background(), command.New("lock", nil))
	if err != errLocked {
		t.Fatalf("Process should return the domain error untouched; got %T %q", err, err)
	}
}

func TestProcessor_Process_processingError(t *testing.T) {
	mockError := errors.New("mock error")
	p := processor.New(repository.New(eventstore.New(), test.Factory()))
	p.Handle("fail", func(processor.Context) error { return mockError })
	p.Handle("panic", func(processor.Context) error { panic("boom") })

	_, err := p.Process(context.Background(), command.New("fail", nil))

	var perr *command.ProcessingError
	if !errors.As(err, &perr) || !errors.Is(err, mockError) {
		t.Fatalf("Process should fail with a ProcessingError wrapping %q; got %T %q", mockError, err, err)
	}

	_, err = p.Process(context.Background(), command.New("panic", nil))
	if !errors.As(err, &perr) || !errors.Is(err, processor.ErrPanic) {
		t.Fatalf("a panicking handler should result in a ProcessingError wrapping %q; got %T %q", processor.ErrPanic, err, err)
	}

	_, err = p.Process(context.Background(), command.New("unknown", nil))
	if !errors.Is(err, command.ErrUnhandled) {
		t.Fatalf("an unknown command should fail with %q; got %q", command.ErrUnhandled, err)
	}
}

func TestProcessor_Process_invalidPayload(t *testing.T) {
	p := newProcessor(eventstore.New())

	_, err := p.Process(context.Background(), command.New(incrementCommand, "three", command.Aggregate(test.CounterAggregate, uuid.New())))

	var perr *command.ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("an invalid payload should result in a ProcessingError; got %T %q", err, err)
	}
}

func TestProcessor_Process_concurrent(t *testing.T) {
	store := eventstore.New()
	id := uuid.New()
	p := processor.New(repository.New(store, test.Factory()), processor.MaxRetries(1))

	var (
		ready    sync.WaitGroup
		attempts int32
	)
	ready.Add(2)

	p.Handle(incrementCommand, func(ctx processor.Context) error {
		atomic.AddInt32(&attempts, 1)
		if err := incrementHandler(ctx, 1); err != nil {
			return err
		}
		if ctx.Attempt() == 1 {
			// both commands load the counter before either commits
			ready.Done()
			ready.Wait()
		}
		return nil
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	for i := range errs {
		go func(i int) {
			defer wg.Done()
			cmd := command.New(incrementCommand, 1, command.Aggregate(test.CounterAggregate, id))
			_, errs[i] = p.Process(context.Background(), cmd)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("command #%d failed with %q", i, err)
		}
	}

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("exactly one command should be retried once; got %d attempts", got)
	}

	info, err := repository.New(store, test.Factory()).Hydrate(context.Background(), event.AggregateRef{Name: test.CounterAggregate, ID: id}, event.Latest)
	if err != nil {
		t.Fatalf("Hydrate failed with %q", err)
	}

	if c := info.Root.(*test.Counter); c.Count != 2 {
		t.Fatalf("no increment may be lost; got Count=%d", c.Count)
	}
}

type recordingNotifier struct {
	mux    sync.Mutex
	events []event.Event
}

func (n *recordingNotifier) Notify(_ context.Context, events []event.Event) {
	n.mux.Lock()
	defer n.mux.Unlock()
	n.events = append(n.events, events...)
}

func (n *recordingNotifier) count() int {
	n.mux.Lock()
	defer n.mux.Unlock()
	return len(n.events)
}
