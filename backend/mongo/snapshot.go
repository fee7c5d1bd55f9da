package mongo

import (
	"context"
	"errors"
	"fmt"
	stdtime "time"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate/snapshot"
	"github.com/modernice/cqrs/backend/mongo/indices"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ snapshot.Store = (*SnapshotStore)(nil)

// SnapshotStore is the MongoDB implementation of a snapshot store.
type SnapshotStore struct {
	*connection
}

type snapshotEntry struct {
	AggregateName string       `bson:"aggregate_name"`
	AggregateID   string       `bson:"aggregate_id"`
	Version       int          `bson:"version"`
	LastGlobal    int64        `bson:"last_global"`
	Time          stdtime.Time `bson:"time"`
	TimeNano      int64        `bson:"time_nano"`
	Data          []byte       `bson:"data"`
}

// NewSnapshotStore returns a new SnapshotStore. The database defaults to
// "snapshot" and the collection to "snapshots".
func NewSnapshotStore(opts ...Option) *SnapshotStore {
	return &SnapshotStore{connection: newConnection("snapshot", "snapshots", opts)}
}

// Connect establishes the connection to MongoDB and creates the indexes.
// Connect is called automatically by the other methods of the store.
func (s *SnapshotStore) Connect(ctx context.Context) (*mongo.Client, error) {
	if err := s.connect(ctx, s.ensureIndexes); err != nil {
		return nil, err
	}
	return s.client, nil
}

func (s *SnapshotStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.col.Indexes().CreateMany(ctx, indices.Snapshots()); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	return nil
}

// Save saves the given Snapshot into the database. A snapshot of the same
// version is replaced.
func (s *SnapshotStore) Save(ctx context.Context, snap snapshot.Snapshot) error {
	if _, err := s.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	e := snapshotEntry{
		AggregateName: snap.AggregateName,
		AggregateID:   snap.AggregateID.String(),
		Version:       snap.Version,
		LastGlobal:    snap.LastGlobal,
		Time:          snap.Time,
		TimeNano:      snap.Time.UnixNano(),
		Data:          snap.Data,
	}

	if _, err := s.col.ReplaceOne(ctx, bson.D{
		{Key: "aggregate_name", Value: e.AggregateName},
		{Key: "aggregate_id", Value: e.AggregateID},
		{Key: "version", Value: e.Version},
	}, e, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("mongo: %w", err)
	}

	return nil
}

// Latest returns the snapshot with the highest version of the given aggregate
// whose last applied event does not exceed cutoff.
func (s *SnapshotStore) Latest(ctx context.Context, name string, id uuid.UUID, cutoff int64) (snapshot.Snapshot, error) {
	if _, err := s.Connect(ctx); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("connect: %w", err)
	}

	res := s.col.FindOne(ctx, bson.D{
		{Key: "aggregate_name", Value: name},
		{Key: "aggregate_id", Value: id.String()},
		{Key: "last_global", Value: bson.D{{Key: "$lte", Value: cutoff}}},
	}, options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}}))

	var e snapshotEntry
	if err := res.Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return snapshot.Snapshot{}, snapshot.ErrNotFound
		}
		return snapshot.Snapshot{}, fmt.Errorf("mongo: decode result: %w", err)
	}

	return e.snapshot()
}

// Delete deletes all snapshots of the given aggregate.
func (s *SnapshotStore) Delete(ctx context.Context, name string, id uuid.UUID) error {
	if _, err := s.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if _, err := s.col.DeleteMany(ctx, bson.D{
		{Key: "aggregate_name", Value: name},
		{Key: "aggregate_id", Value: id.String()},
	}); err != nil {
		return fmt.Errorf("mongo: %w", err)
	}

	return nil
}

func (e snapshotEntry) snapshot() (snapshot.Snapshot, error) {
	id, err := uuid.Parse(e.AggregateID)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("parse aggregate id: %w [id=%s]", err, e.AggregateID)
	}
	return snapshot.Snapshot{
		AggregateName: e.AggregateName,
		AggregateID:   id,
		Version:       e.Version,
		LastGlobal:    e.LastGlobal,
		Time:          stdtime.Unix(0, e.TimeNano),
		Data:          e.Data,
	}, nil
}
