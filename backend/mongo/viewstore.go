package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/projection"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ projection.Store[projection.View] = (*ViewStore[projection.View])(nil)

// ViewStore is a MongoDB projection.Store. Every view is stored as a BSON
// document in the configured collection; the position of the manager is
// stored in the "positions" collection, keyed by the collection name.
//
// Views must be pointers to structs so that they can be decoded into.
type ViewStore[V projection.View] struct {
	*connection

	newView   func(id string) V
	positions *mongo.Collection
}

type viewEntry struct {
	ID   string   `bson:"_id"`
	View bson.Raw `bson:"view"`
}

type positionEntry struct {
	ID       string `bson:"_id"`
	Position int64  `bson:"position"`
}

// NewViewStore returns a ViewStore that decodes views into the instances
// returned by newView. The database defaults to "views" and the collection to
// "views".
func NewViewStore[V projection.View](newView func(id string) V, opts ...Option) *ViewStore[V] {
	return &ViewStore[V]{
		connection: newConnection("views", "views", opts),
		newView:    newView,
	}
}

// Connect establishes the connection to MongoDB. Connect is called
// automatically by the other methods of the store.
func (s *ViewStore[V]) Connect(ctx context.Context) (*mongo.Client, error) {
	if err := s.connect(ctx, func(context.Context) error {
		s.positions = s.db.Collection("positions")
		return nil
	}); err != nil {
		return nil, err
	}
	return s.client, nil
}

// Load returns the view with the given id.
func (s *ViewStore[V]) Load(ctx context.Context, id string) (V, error) {
	var zero V
	if _, err := s.Connect(ctx); err != nil {
		return zero, fmt.Errorf("connect: %w", err)
	}

	var e viewEntry
	if err := s.col.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, fmt.Errorf("%w [view=%s]", projection.ErrViewNotFound, id)
		}
		return zero, fmt.Errorf("mongo: decode view: %w [view=%s]", err, id)
	}

	v := s.newView(id)
	if err := bson.Unmarshal(e.View, v); err != nil {
		return zero, fmt.Errorf("decode view: %w [view=%s]", err, id)
	}

	return v, nil
}

// SaveBatch saves the views and the position. With transactions enabled, both
// are written atomically.
func (s *ViewStore[V]) SaveBatch(ctx context.Context, views []V, position int64) error {
	if _, err := s.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	models := make([]mongo.WriteModel, len(views))
	for i, v := range views {
		b, err := bson.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode view: %w [view=%s]", err, v.ViewID())
		}
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: v.ViewID()}}).
			SetReplacement(viewEntry{ID: v.ViewID(), View: b}).
			SetUpsert(true)
	}

	return s.withSession(ctx, func(ctx mongo.SessionContext) error {
		if len(models) > 0 {
			if _, err := s.col.BulkWrite(ctx, models); err != nil {
				return fmt.Errorf("mongo: save views: %w", err)
			}
		}

		if _, err := s.positions.ReplaceOne(
			ctx,
			bson.D{{Key: "_id", Value: s.collection}},
			positionEntry{ID: s.collection, Position: position},
			options.Replace().SetUpsert(true),
		); err != nil {
			return fmt.Errorf("mongo: save position: %w", err)
		}

		return nil
	})
}

// Purge deletes all views and the position.
func (s *ViewStore[V]) Purge(ctx context.Context) error {
	if _, err := s.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	return s.withSession(ctx, func(ctx mongo.SessionContext) error {
		if _, err := s.col.DeleteMany(ctx, bson.D{}); err != nil {
			return fmt.Errorf("mongo: delete views: %w", err)
		}
		if _, err := s.positions.DeleteOne(ctx, bson.D{{Key: "_id", Value: s.collection}}); err != nil {
			return fmt.Errorf("mongo: delete position: %w", err)
		}
		return nil
	})
}

// Watermark returns the saved position, or event.BeforeStart.
func (s *ViewStore[V]) Watermark(ctx context.Context) (int64, error) {
	if _, err := s.Connect(ctx); err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}

	var e positionEntry
	if err := s.positions.FindOne(ctx, bson.D{{Key: "_id", Value: s.collection}}).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return event.BeforeStart, nil
		}
		return 0, fmt.Errorf("mongo: decode position: %w", err)
	}
	return e.Position, nil
}
