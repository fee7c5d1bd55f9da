// Package mongotest provides helpers for tests against MongoDB.
package mongotest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/modernice/cqrs/backend/mongo"
	"github.com/modernice/cqrs/codec"
)

// NewEventStore returns an EventStore that uses a database name that is
// unique for every call during the current process.
func NewEventStore(enc codec.Encoding, opts ...mongo.Option) *mongo.EventStore {
	return mongo.NewEventStore(enc, append(
		[]mongo.Option{mongo.Database(UniqueName("event_"))},
		opts...,
	)...)
}

// NewSnapshotStore is like NewEventStore, but returns a SnapshotStore.
func NewSnapshotStore(opts ...mongo.Option) *mongo.SnapshotStore {
	return mongo.NewSnapshotStore(append(
		[]mongo.Option{mongo.Database(UniqueName("snapshot_"))},
		opts...,
	)...)
}

// UniqueName appends a random hexadecimal string to prefix.
func UniqueName(prefix string) string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%s%s", prefix, hex.EncodeToString(b))
}
