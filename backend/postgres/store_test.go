//go:build postgres

package postgres_test

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/modernice/cqrs/backend/postgres"
	"github.com/modernice/cqrs/backend/testing/eventstoretest"
	"github.com/modernice/cqrs/codec"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/internal/env"
)

func TestEventStore(t *testing.T) {
	env.Require(t, "POSTGRES_EVENTSTORE")

	eventstoretest.Run(t, "postgres", func(enc codec.Encoding) event.Store {
		store := postgres.NewEventStore(enc, postgres.Database(nextDatabase()))
		t.Cleanup(store.Close)
		return store
	})
}

var databaseN uint64

func nextDatabase() string {
	n := atomic.AddUint64(&databaseN, 1)
	return fmt.Sprintf("cqrs_%d", n)
}
