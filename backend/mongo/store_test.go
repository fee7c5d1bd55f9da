//go:build mongo

package mongo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/backend/mongo"
	"github.com/modernice/cqrs/backend/mongo/mongotest"
	"github.com/modernice/cqrs/backend/testing/eventstoretest"
	"github.com/modernice/cqrs/codec"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/internal/env"
	"go.mongodb.org/mongo-driver/bson"
)

func TestEventStore(t *testing.T) {
	skipWithoutMongo(t)

	eventstoretest.Run(t, "mongo", func(enc codec.Encoding) event.Store {
		return mongotest.NewEventStore(enc)
	})
}

func TestEventStore_Append_stateConflict(t *testing.T) {
	skipWithoutMongo(t)

	ctx := context.Background()
	s := mongotest.NewEventStore(eventstoretest.NewEncoder())
	if _, err := s.Connect(ctx); err != nil {
		t.Fatalf("failed to connect to mongodb: %v", err)
	}

	id := uuid.New()
	if _, err := s.StateCollection().InsertOne(ctx, bson.M{
		"aggregate_name": "foo",
		"aggregate_id":   id.String(),
		"version":        5,
	}); err != nil {
		t.Fatalf("failed to insert state: %v", err)
	}

	evt := event.New("foo", eventstoretest.Data{}, event.Aggregate("foo", id, 0)).Any()
	_, err := s.Append(ctx, "", evt)

	var conflict *event.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Append should fail with %T; got %T (%v)", conflict, err, err)
	}

	if conflict.Current != 5 || conflict.Expected != 0 {
		t.Fatalf("ConflictError should report current=5 expected=0; got current=%d expected=%d", conflict.Current, conflict.Expected)
	}

	if next, _ := s.NextGlobalSequenceNumber(ctx); next != 0 {
		t.Fatalf("a failed append must not reserve global sequence numbers; next=%d", next)
	}
}

func TestEventStore_Client(t *testing.T) {
	skipWithoutMongo(t)

	s := mongo.NewEventStore(eventstoretest.NewEncoder(), mongo.Database(mongotest.UniqueName("event_")))
	client, err := s.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed with %q", err)
	}

	if s.Client() != client {
		t.Fatalf("Client should return the connected client")
	}

	if s.Collection() == nil || s.StateCollection() == nil {
		t.Fatalf("collections should be set after Connect")
	}
}

func skipWithoutMongo(t *testing.T) {
	t.Helper()
	env.Require(t, "MONGO_URL")
}
