// Package engine runs view managers in the background and keeps them caught
// up with the event log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/projection"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

const (
	// DefaultCatchUpInterval is the default interval of catch-up cycles.
	DefaultCatchUpInterval = time.Second

	// DefaultBatchSize is the default number of events that are dispatched to
	// the view managers at once when replaying from the log.
	DefaultBatchSize = 100

	// DefaultQueueSize is the default number of notified batches the engine
	// buffers.
	DefaultQueueSize = 64
)

var (
	// ErrRunning is returned by Start when the engine is already running.
	ErrRunning = errors.New("engine is already running")

	// ErrStopTimeout is returned by Stop when the engine did not stop in time.
	ErrStopTimeout = errors.New("engine did not stop in time")

	// ErrUnknownManager is returned by Purge for an unknown view manager.
	ErrUnknownManager = errors.New("unknown view manager")

	// ErrStopped is returned by Purge when the engine stops before the purge
	// was executed.
	ErrStopped = errors.New("engine stopped")

	errManagerFailed = errors.New("view manager failed")
)

// Engine keeps a set of view managers up to date. A single goroutine
// dispatches events to the managers: committed batches passed to Notify are
// dispatched directly when they continue at the position of the managers,
// otherwise and periodically the managers catch up by replaying the log.
type Engine struct {
	store    event.Store
	managers []projection.ViewManager

	name            string
	catchUpInterval time.Duration
	batchSize       int
	queueSize       int
	upstream        []projection.Positioner
	backoff         []time.Duration
	log             logrus.FieldLogger

	mux    sync.Mutex
	queue  chan work
	cancel context.CancelFunc
	done   chan struct{}

	// owned by the loop goroutine
	failing  map[string]error
	failures int
}

type work struct {
	events []event.Event
	purge  *purgeRequest
}

type purgeRequest struct {
	manager projection.ViewManager
	result  chan error
}

// Option is an Engine option.
type Option func(*Engine)

// Name returns an Option that sets the name of the engine, which is used in
// log messages.
func Name(name string) Option {
	return func(e *Engine) {
		e.name = name
	}
}

// Views returns an Option that adds view managers to the engine.
func Views(managers ...projection.ViewManager) Option {
	return func(e *Engine) {
		e.managers = append(e.managers, managers...)
	}
}

// CatchUpInterval returns an Option that sets the interval of catch-up
// cycles. Default is DefaultCatchUpInterval.
func CatchUpInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.catchUpInterval = d
	}
}

// BatchSize returns an Option that sets the number of events that are
// dispatched at once when replaying from the log. Default is
// DefaultBatchSize.
func BatchSize(n int) Option {
	return func(e *Engine) {
		e.batchSize = n
	}
}

// QueueSize returns an Option that sets the number of notified batches the
// engine buffers. Batches that do not fit into the queue are dropped and
// picked up by the next catch-up cycle.
func QueueSize(n int) Option {
	return func(e *Engine) {
		e.queueSize = n
	}
}

// WithLogger returns an Option that sets the logger of the engine.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New returns an Engine that replays events from store.
func New(store event.Store, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		name:            "engine",
		catchUpInterval: DefaultCatchUpInterval,
		batchSize:       DefaultBatchSize,
		queueSize:       DefaultQueueSize,
		failing:         make(map[string]error),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.batchSize < 1 {
		e.batchSize = DefaultBatchSize
	}
	e.log = e.log.WithField("engine", e.name)
	return e
}

// Managers returns the view managers of the engine.
func (e *Engine) Managers() []projection.ViewManager {
	out := make([]projection.ViewManager, len(e.managers))
	copy(out, e.managers)
	return out
}

// Running returns whether the engine is running. An engine whose Stop timed
// out keeps running until its dispatch loop returns.
func (e *Engine) Running() bool {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.done != nil
}

// Start loads the positions of the view managers and starts the dispatch
// loop, which immediately runs a catch-up cycle. The engine stops when ctx is
// canceled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mux.Lock()
	defer e.mux.Unlock()

	if e.done != nil {
		return ErrRunning
	}

	for _, m := range e.managers {
		if err := m.Init(ctx); err != nil {
			return fmt.Errorf("init view manager: %w [engine=%s]", err, e.name)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.queue = make(chan work, e.queueSize)
	e.done = make(chan struct{})

	go e.run(ctx, e.queue, e.done)

	e.log.WithField("managers", len(e.managers)).Debug("[cqrs/engine.Start] Engine started.")

	return nil
}

// Stop stops the dispatch loop and waits at most timeout for it to finish.
// The engine cannot be started again before the loop has returned.
func (e *Engine) Stop(timeout time.Duration) error {
	e.mux.Lock()
	cancel, done := e.cancel, e.done
	e.queue = nil
	e.mux.Unlock()

	if done == nil {
		return nil
	}

	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		e.log.Debug("[cqrs/engine.Stop] Engine stopped.")
		return nil
	case <-timer.C:
		e.log.WithField("timeout", timeout).Error("[cqrs/engine.Stop] Engine did not stop in time.")
		return fmt.Errorf("%w [engine=%s, timeout=%s]", ErrStopTimeout, e.name, timeout)
	}
}

// Notify enqueues committed events for direct dispatch. Notify never blocks:
// when the queue is full, the events are dropped and picked up by the next
// catch-up cycle. Notify does nothing if the engine is not running.
func (e *Engine) Notify(ctx context.Context, events []event.Event) {
	if len(events) == 0 {
		return
	}

	e.mux.Lock()
	queue := e.queue
	e.mux.Unlock()

	if queue == nil {
		return
	}

	sorted := make([]event.Event, len(events))
	copy(sorted, events)
	event.SortByGlobal(sorted)

	select {
	case <-ctx.Done():
	case queue <- work{events: sorted}:
	default:
		e.log.WithField("position", sorted[0].GlobalSequenceNumber()).Debug("[cqrs/engine.Notify] Queue is full. Leaving events to catch-up.")
	}
}

// Purge deletes the views of the named view manager and resets its position.
// When the engine is running, the purge is executed by the dispatch loop and
// immediately followed by a full replay.
func (e *Engine) Purge(ctx context.Context, name string) error {
	m, ok := e.manager(name)
	if !ok {
		return fmt.Errorf("%w: %s [engine=%s]", ErrUnknownManager, name, e.name)
	}

	e.mux.Lock()
	queue, done := e.queue, e.done
	e.mux.Unlock()

	if done == nil {
		return m.Purge(ctx)
	}
	if queue == nil {
		return fmt.Errorf("%w [engine=%s]", ErrStopped, e.name)
	}

	req := &purgeRequest{manager: m, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return fmt.Errorf("%w [engine=%s]", ErrStopped, e.name)
	case queue <- work{purge: req}:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-req.result:
		return err
	case <-done:
		// the loop may have executed the purge right before returning
		select {
		case err := <-req.result:
			return err
		default:
			return fmt.Errorf("%w [engine=%s]", ErrStopped, e.name)
		}
	}
}

func (e *Engine) manager(name string) (projection.ViewManager, bool) {
	for _, m := range e.managers {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

func (e *Engine) run(ctx context.Context, queue <-chan work, done chan struct{}) {
	defer func() {
		e.mux.Lock()
		if e.done == done {
			e.cancel()
			e.cancel, e.done, e.queue = nil, nil, nil
		}
		e.mux.Unlock()
		close(done)
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case w := <-queue:
			if w.purge != nil {
				err := w.purge.manager.Purge(ctx)
				w.purge.result <- err
				if err != nil {
					e.log.WithError(err).WithField("manager", w.purge.manager.Name()).Error("[cqrs/engine] Failed to purge view manager.")
					continue
				}
				e.log.WithField("manager", w.purge.manager.Name()).Info("[cqrs/engine] View manager purged. Replaying events.")
			}
			e.resetTimer(timer, e.cycle(ctx, w.events))
		case <-timer.C:
			e.resetTimer(timer, e.cycle(ctx, nil))
		}
	}
}

func (e *Engine) resetTimer(timer *time.Timer, err error) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(e.nextCatchUp(err))
}

// cycle brings the view managers up to the target position, dispatching the
// notified events directly when possible. Managers that fail are skipped for
// the rest of the cycle and make cycle return errManagerFailed.
func (e *Engine) cycle(ctx context.Context, notified []event.Event) error {
	stopped := make(map[string]bool)
	var failed bool

	direct := len(notified) > 0 && e.continues(notified, stopped)
	if direct && len(e.upstream) == 0 {
		// committed events never pass the end of the log
		direct = false
		failed = e.dispatch(ctx, notified, stopped)
		if e.lowest(stopped) >= notified[len(notified)-1].GlobalSequenceNumber() {
			return cycleError(failed)
		}
	}

	target, err := e.target(ctx)
	if err != nil {
		e.log.WithError(err).Warn("[cqrs/engine] Failed to compute target position.")
		return err
	}

	if direct && notified[len(notified)-1].GlobalSequenceNumber() <= target {
		if e.dispatch(ctx, notified, stopped) {
			failed = true
		}
	}

	replayFailed, err := e.replay(ctx, target, stopped)
	if err != nil {
		e.log.WithError(err).WithField("target", target).Warn("[cqrs/engine] Catch-up failed.")
		return err
	}

	return cycleError(failed || replayFailed)
}

func cycleError(failed bool) error {
	if failed {
		return errManagerFailed
	}
	return nil
}

// continues returns whether the notified events directly follow the position
// of the managers.
func (e *Engine) continues(notified []event.Event, stopped map[string]bool) bool {
	return e.lowest(stopped)+1 == notified[0].GlobalSequenceNumber() && contiguous(notified)
}

func (e *Engine) replay(ctx context.Context, target int64, stopped map[string]bool) (bool, error) {
	from := e.lowest(stopped) + 1
	if from > target {
		return false, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, errs, err := e.store.Stream(ctx, from)
	if err != nil {
		return false, fmt.Errorf("stream events: %w [from=%d]", err, from)
	}

	var failed bool
	batch := make([]event.Event, 0, e.batchSize)
	flush := func() {
		if len(batch) > 0 {
			if e.dispatch(ctx, batch, stopped) {
				failed = true
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case <-ctx.Done():
			return failed, ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return failed, fmt.Errorf("stream events: %w [from=%d]", err, from)
		case evt, ok := <-events:
			if !ok {
				flush()
				return failed, nil
			}

			if evt.GlobalSequenceNumber() > target {
				flush()
				return failed, nil
			}

			batch = append(batch, evt)
			if len(batch) >= e.batchSize || evt.GlobalSequenceNumber() == target {
				flush()
			}
			if evt.GlobalSequenceNumber() == target {
				return failed, nil
			}
		}
	}
}

// dispatch dispatches events to the managers that are not stopped and reports
// whether a manager failed.
func (e *Engine) dispatch(ctx context.Context, events []event.Event, stopped map[string]bool) bool {
	last := events[len(events)-1].GlobalSequenceNumber()

	var failed bool
	for _, m := range e.managers {
		name := m.Name()
		if stopped[name] || m.Position() >= last {
			continue
		}

		log := e.log.WithField("manager", name)

		if err := m.Dispatch(ctx, events); err != nil {
			failed = true
			stopped[name] = true
			if _, ok := e.failing[name]; !ok {
				log.WithError(err).WithField("position", m.Position()).Error("[cqrs/engine] View manager failed. Retrying in next cycle.")
			}
			e.failing[name] = err
			continue
		}

		if _, ok := e.failing[name]; ok {
			delete(e.failing, name)
			log.WithField("position", m.Position()).Info("[cqrs/engine] View manager recovered.")
		}
	}

	return failed
}

func (e *Engine) lowest(stopped map[string]bool) int64 {
	lowest := int64(-1)
	found := false
	for _, m := range e.managers {
		if stopped[m.Name()] {
			continue
		}
		if pos := m.Position(); !found || pos < lowest {
			lowest, found = pos, true
		}
	}
	if !found {
		return event.Latest - 1
	}
	return lowest
}

func contiguous(events []event.Event) bool {
	if !slices.IsSortedFunc(events, func(a, b event.Event) bool {
		return a.GlobalSequenceNumber() < b.GlobalSequenceNumber()
	}) {
		return false
	}
	first := events[0].GlobalSequenceNumber()
	return events[len(events)-1].GlobalSequenceNumber()-first == int64(len(events)-1)
}
