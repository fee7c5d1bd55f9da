// Package indices provides the index models of the MongoDB backend.
package indices

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventStore provides the index models for the event collection.
var EventStore = EventStoreIndices{
	GlobalSequence: mongo.IndexModel{
		Keys:    bson.D{{Key: "global_seq", Value: 1}},
		Options: options.Index().SetName("cqrs_global_seq").SetUnique(true),
	},

	ID: mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetName("cqrs_id").SetUnique(true),
	},

	Aggregate: mongo.IndexModel{
		Keys: bson.D{
			{Key: "aggregate_name", Value: 1},
			{Key: "aggregate_id", Value: 1},
			{Key: "seq", Value: 1},
		},
		Options: options.Index().SetName("cqrs_aggregate").SetUnique(true),
	},

	Name: mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetName("cqrs_name"),
	},
}

// EventStoreIndices provides the index models for the event collection.
type EventStoreIndices struct {
	// GlobalSequence is the unique index of the global sequence number.
	GlobalSequence mongo.IndexModel

	// ID is the unique index of the event id.
	ID mongo.IndexModel

	// Aggregate is the unique index of the aggregate name, id and sequence number.
	Aggregate mongo.IndexModel

	// Name indexes the event name.
	Name mongo.IndexModel
}

// All returns all event index models.
func (idx EventStoreIndices) All() []mongo.IndexModel {
	return []mongo.IndexModel{
		idx.GlobalSequence,
		idx.ID,
		idx.Aggregate,
		idx.Name,
	}
}

// Snapshots returns the index models for the snapshot collection.
func Snapshots() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "aggregate_name", Value: 1},
				{Key: "aggregate_id", Value: 1},
				{Key: "version", Value: -1},
			},
			Options: options.Index().SetName("cqrs_aggregate").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "time", Value: -1}},
			Options: options.Index().SetName("cqrs_time"),
		},
	}
}
