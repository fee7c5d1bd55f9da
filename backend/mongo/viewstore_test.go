//go:build mongo

package mongo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/modernice/cqrs/backend/mongo"
	"github.com/modernice/cqrs/backend/mongo/mongotest"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/projection"
)

type counterView struct {
	projection.Base `bson:",inline"`

	Count int `bson:"count"`
}

func newCounterView(id string) *counterView {
	return &counterView{Base: projection.NewBase(id)}
}

func TestViewStore(t *testing.T) {
	skipWithoutMongo(t)

	ctx := context.Background()
	store := mongo.NewViewStore(newCounterView, mongo.Database(mongotest.UniqueName("views_")))

	pos, err := store.Watermark(ctx)
	if err != nil {
		t.Fatalf("Watermark failed with %q", err)
	}
	if pos != event.BeforeStart {
		t.Fatalf("Watermark should return %d; got %d", event.BeforeStart, pos)
	}

	if _, err := store.Load(ctx, "foo"); !errors.Is(err, projection.ErrViewNotFound) {
		t.Fatalf("Load should fail with %q; got %q", projection.ErrViewNotFound, err)
	}

	foo := newCounterView("foo")
	foo.Count = 3
	foo.SetPosition(4)

	if err := store.SaveBatch(ctx, []*counterView{foo}, 5); err != nil {
		t.Fatalf("SaveBatch failed with %q", err)
	}

	loaded, err := store.Load(ctx, "foo")
	if err != nil {
		t.Fatalf("Load failed with %q", err)
	}
	if loaded == foo {
		t.Fatalf("Load should return a new instance")
	}
	if loaded.Count != 3 || loaded.Position() != 4 || loaded.ViewID() != "foo" {
		t.Fatalf("Load returned wrong view %+v", loaded)
	}

	if pos, _ := store.Watermark(ctx); pos != 5 {
		t.Fatalf("Watermark should return %d; got %d", 5, pos)
	}

	if err := store.Purge(ctx); err != nil {
		t.Fatalf("Purge failed with %q", err)
	}

	if _, err := store.Load(ctx, "foo"); !errors.Is(err, projection.ErrViewNotFound) {
		t.Fatalf("Load should fail with %q after Purge; got %q", projection.ErrViewNotFound, err)
	}

	if pos, _ := store.Watermark(ctx); pos != event.BeforeStart {
		t.Fatalf("Watermark should return %d after Purge; got %d", event.BeforeStart, pos)
	}
}
