package eventstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/event"
)

var _ event.Store = (*memstore)(nil)

type memstore struct {
	mux        sync.RWMutex
	events     []event.Event
	ids        map[uuid.UUID]struct{}
	aggregates map[event.AggregateRef][]int64
}

// New returns a thread-safe in-memory event log. The provided events are
// appended as a single batch; New panics if they do not form a valid batch.
func New(events ...event.Event) event.Store {
	s := &memstore{
		ids:        make(map[uuid.UUID]struct{}),
		aggregates: make(map[event.AggregateRef][]int64),
	}
	if len(events) > 0 {
		if _, err := s.Append(context.Background(), "", events...); err != nil {
			panic(fmt.Errorf("[cqrs/event/eventstore.New] %w", err))
		}
	}
	return s
}

func (s *memstore) Append(ctx context.Context, batchID string, events ...event.Event) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	first, err := event.ValidateBatch(events)
	if err != nil {
		return nil, err
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	for ref, seq := range first {
		if current := len(s.aggregates[ref]); seq != current {
			return nil, &event.ConflictError{Aggregate: ref, Expected: seq, Current: current}
		}
	}

	for _, evt := range events {
		if _, ok := s.ids[evt.ID()]; ok {
			return nil, fmt.Errorf("%w: duplicate event [id=%s]", event.ErrInvalidBatch, evt.ID())
		}
	}

	committed := make([]event.Event, len(events))
	next := int64(len(s.events))
	for i, evt := range events {
		committed[i] = event.Assign(evt, next+int64(i), batchID)
	}

	for _, evt := range committed {
		ref := event.Ref(evt)
		s.events = append(s.events, evt)
		s.ids[evt.ID()] = struct{}{}
		s.aggregates[ref] = append(s.aggregates[ref], evt.GlobalSequenceNumber())
	}

	return committed, nil
}

func (s *memstore) LoadStream(ctx context.Context, ref event.AggregateRef, fromSeq int, cutoff int64) ([]event.Event, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	if fromSeq < 0 {
		fromSeq = 0
	}

	positions := s.aggregates[ref]
	if fromSeq >= len(positions) {
		return nil, nil
	}

	out := make([]event.Event, 0, len(positions)-fromSeq)
	for _, pos := range positions[fromSeq:] {
		if pos > cutoff {
			break
		}
		out = append(out, s.events[pos])
	}
	return out, nil
}

func (s *memstore) Stream(ctx context.Context, from int64) (<-chan event.Event, <-chan error, error) {
	if from < 0 {
		from = 0
	}

	s.mux.RLock()
	var events []event.Event
	if from < int64(len(s.events)) {
		events = make([]event.Event, len(s.events)-int(from))
		copy(events, s.events[from:])
	}
	s.mux.RUnlock()

	out := make(chan event.Event)
	errs := make(chan error)

	go func() {
		defer close(errs)
		defer close(out)
		for _, evt := range events {
			select {
			case <-ctx.Done():
				return
			case out <- evt:
			}
		}
	}()

	return out, errs, nil
}

func (s *memstore) NextGlobalSequenceNumber(ctx context.Context) (int64, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return int64(len(s.events)), nil
}
