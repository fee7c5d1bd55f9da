//go:build mongo

package mongo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate/snapshot"
	"github.com/modernice/cqrs/backend/mongo/mongotest"
)

func TestSnapshotStore(t *testing.T) {
	skipWithoutMongo(t)

	ctx := context.Background()
	store := mongotest.NewSnapshotStore()
	id := uuid.New()
	now := time.Now()

	for _, snap := range []snapshot.Snapshot{
		{AggregateName: "foo", AggregateID: id, Version: 2, LastGlobal: 5, Time: now, Data: []byte("2")},
		{AggregateName: "foo", AggregateID: id, Version: 4, LastGlobal: 9, Time: now, Data: []byte("4")},
		{AggregateName: "foo", AggregateID: id, Version: 3, LastGlobal: 7, Time: now, Data: []byte("3")},
	} {
		if err := store.Save(ctx, snap); err != nil {
			t.Fatalf("Save failed with %q", err)
		}
	}

	tests := []struct {
		cutoff  int64
		version int
		err     error
	}{
		{cutoff: 100, version: 4},
		{cutoff: 8, version: 3},
		{cutoff: 5, version: 2},
		{cutoff: 4, err: snapshot.ErrNotFound},
	}

	for _, tt := range tests {
		snap, err := store.Latest(ctx, "foo", id, tt.cutoff)
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Fatalf("Latest(%d) should fail with %q; got %q", tt.cutoff, tt.err, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Latest(%d) failed with %q", tt.cutoff, err)
		}
		if snap.Version != tt.version {
			t.Fatalf("Latest(%d) should return version %d; got %d", tt.cutoff, tt.version, snap.Version)
		}
		if string(snap.Data) != string(rune('0'+tt.version)) {
			t.Fatalf("Latest(%d) returned wrong data %q", tt.cutoff, snap.Data)
		}
	}

	if err := store.Delete(ctx, "foo", id); err != nil {
		t.Fatalf("Delete failed with %q", err)
	}

	if _, err := store.Latest(ctx, "foo", id, 100); !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("Latest should fail with %q after Delete; got %q", snapshot.ErrNotFound, err)
	}
}
