package eventstore_test

import (
	"testing"

	"github.com/modernice/cqrs/backend/testing/eventstoretest"
	"github.com/modernice/cqrs/codec"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/event/eventstore"
)

func TestMemstore(t *testing.T) {
	eventstoretest.Run(t, "memstore", func(codec.Encoding) event.Store {
		return eventstore.New()
	})
}
