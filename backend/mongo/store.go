package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/modernice/cqrs/backend/mongo/indices"
	"github.com/modernice/cqrs/codec"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/internal/dbevent"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ event.Store = (*EventStore)(nil)

const counterID = "global_seq"

// EventStore is a MongoDB event log. Appends run inside transactions that
// increment a counter document, so the store requires a replica set or a
// sharded cluster.
type EventStore struct {
	*connection

	enc      codec.Encoding
	states   *mongo.Collection
	counters *mongo.Collection
}

type state struct {
	AggregateName string `bson:"aggregate_name"`
	AggregateID   string `bson:"aggregate_id"`
	Version       int    `bson:"version"`
}

type counter struct {
	ID   string `bson:"_id"`
	Next int64  `bson:"next"`
}

// NewEventStore returns a MongoDB event log. The database defaults to "event"
// and the collection to "events".
func NewEventStore(enc codec.Encoding, opts ...Option) *EventStore {
	conn := newConnection("event", "events", opts)
	conn.transactions = true
	return &EventStore{connection: conn, enc: enc}
}

// Connect establishes the connection to MongoDB and creates the indexes.
// Connect is called automatically by the other methods of the store.
func (s *EventStore) Connect(ctx context.Context) (*mongo.Client, error) {
	if err := s.connect(ctx, s.setup); err != nil {
		return nil, err
	}
	return s.client, nil
}

// Client returns the underlying mongo.Client, or nil if the store is not
// connected yet.
func (s *EventStore) Client() *mongo.Client {
	return s.client
}

// Collection returns the collection the events are stored in, or nil if the
// store is not connected yet.
func (s *EventStore) Collection() *mongo.Collection {
	return s.col
}

// StateCollection returns the collection that stores the current version of
// every aggregate, or nil if the store is not connected yet.
func (s *EventStore) StateCollection() *mongo.Collection {
	return s.states
}

func (s *EventStore) setup(ctx context.Context) error {
	s.states = s.db.Collection(s.collection + "_states")
	s.counters = s.db.Collection(s.collection + "_counters")

	if _, err := s.col.Indexes().CreateMany(ctx, indices.EventStore.All()); err != nil {
		return fmt.Errorf("create event indexes: %w", err)
	}

	if _, err := s.states.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "aggregate_name", Value: 1},
			{Key: "aggregate_id", Value: 1},
		},
		Options: options.Index().SetName("cqrs_aggregate").SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create state indexes: %w", err)
	}

	return nil
}

// Append appends the events as one batch.
func (s *EventStore) Append(ctx context.Context, batchID string, events ...event.Event) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	first, err := event.ValidateBatch(events)
	if err != nil {
		return nil, err
	}

	if _, err := s.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	var committed []event.Event
	if err := s.withSession(ctx, func(ctx mongo.SessionContext) error {
		committed = nil

		versions := make(map[event.AggregateRef]int, len(first))
		for ref, seq := range first {
			current, err := s.currentVersion(ctx, ref)
			if err != nil {
				return err
			}
			if current != seq {
				return &event.ConflictError{Aggregate: ref, Expected: seq, Current: current}
			}
		}

		start, err := s.reserve(ctx, len(events))
		if err != nil {
			return err
		}

		docs := make([]any, len(events))
		committed = make([]event.Event, len(events))
		for i, evt := range events {
			global := start + int64(i)
			row, err := dbevent.Encode(s.enc, evt, global, batchID)
			if err != nil {
				return err
			}
			docs[i] = row
			committed[i] = event.Assign(evt, global, batchID)
			versions[event.Ref(evt)] = evt.SequenceNumber() + 1
		}

		if _, err := s.col.InsertMany(ctx, docs); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: %v", event.ErrInvalidBatch, err)
			}
			return fmt.Errorf("insert events: %w", err)
		}

		for ref, v := range versions {
			if _, err := s.states.ReplaceOne(
				ctx,
				bson.D{
					{Key: "aggregate_name", Value: ref.Name},
					{Key: "aggregate_id", Value: ref.ID.String()},
				},
				state{AggregateName: ref.Name, AggregateID: ref.ID.String(), Version: v},
				options.Replace().SetUpsert(true),
			); err != nil {
				return fmt.Errorf("update state of %s: %w", ref, err)
			}
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return committed, nil
}

func (s *EventStore) currentVersion(ctx context.Context, ref event.AggregateRef) (int, error) {
	var st state
	if err := s.states.FindOne(ctx, bson.D{
		{Key: "aggregate_name", Value: ref.Name},
		{Key: "aggregate_id", Value: ref.ID.String()},
	}).Decode(&st); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("decode state of %s: %w", ref, err)
	}
	return st.Version, nil
}

// reserve increments the counter by n and returns the first reserved global
// sequence number.
func (s *EventStore) reserve(ctx context.Context, n int) (int64, error) {
	var c counter
	if err := s.counters.FindOneAndUpdate(
		ctx,
		bson.D{{Key: "_id", Value: counterID}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "next", Value: int64(n)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c); err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return c.Next - int64(n), nil
}

// LoadStream returns the events of an aggregate.
func (s *EventStore) LoadStream(ctx context.Context, ref event.AggregateRef, fromSeq int, cutoff int64) ([]event.Event, error) {
	if _, err := s.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	cur, err := s.col.Find(ctx, bson.D{
		{Key: "aggregate_name", Value: ref.Name},
		{Key: "aggregate_id", Value: ref.ID.String()},
		{Key: "seq", Value: bson.D{{Key: "$gte", Value: fromSeq}}},
		{Key: "global_seq", Value: bson.D{{Key: "$lte", Value: cutoff}}},
	}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}

	var rows []dbevent.Row
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode events of %s: %w", ref, err)
	}

	return dbevent.DecodeAll(s.enc, rows)
}

// Stream streams the events with a global sequence number >= from that were
// committed when Stream was called.
func (s *EventStore) Stream(ctx context.Context, from int64) (<-chan event.Event, <-chan error, error) {
	next, err := s.NextGlobalSequenceNumber(ctx)
	if err != nil {
		return nil, nil, err
	}

	cur, err := s.col.Find(ctx, bson.D{
		{Key: "global_seq", Value: bson.D{
			{Key: "$gte", Value: from},
			{Key: "$lt", Value: next},
		}},
	}, options.Find().SetSort(bson.D{{Key: "global_seq", Value: 1}}))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo: %w", err)
	}

	out := make(chan event.Event)
	errs := make(chan error)

	go func() {
		defer close(errs)
		defer close(out)
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			var row dbevent.Row
			if err := cur.Decode(&row); err != nil {
				select {
				case <-ctx.Done():
				case errs <- fmt.Errorf("decode document: %w", err):
				}
				return
			}

			evt, err := row.Decode(s.enc)
			if err != nil {
				select {
				case <-ctx.Done():
				case errs <- fmt.Errorf("decode event: %w", err):
				}
				return
			}

			select {
			case <-ctx.Done():
				return
			case out <- evt:
			}
		}

		if err := cur.Err(); err != nil {
			select {
			case <-ctx.Done():
			case errs <- fmt.Errorf("mongo cursor: %w", err):
			}
		}
	}()

	return out, errs, nil
}

// NextGlobalSequenceNumber returns the global sequence number of the next
// appended event.
func (s *EventStore) NextGlobalSequenceNumber(ctx context.Context) (int64, error) {
	if _, err := s.Connect(ctx); err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}

	var c counter
	if err := s.counters.FindOne(ctx, bson.D{{Key: "_id", Value: counterID}}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("decode counter: %w", err)
	}
	return c.Next, nil
}
