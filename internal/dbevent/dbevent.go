// Package dbevent maps events to the flat records the persistent event logs
// store.
package dbevent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/codec"
	"github.com/modernice/cqrs/event"
)

// Columns are the column names of a Row, in the order of Row.Values.
var Columns = []string{
	"global_seq",
	"id",
	"name",
	"time",
	"aggregate_name",
	"aggregate_id",
	"seq",
	"batch_id",
	"headers",
	"data",
}

// Row is a committed event as stored in a database.
type Row struct {
	GlobalSeq     int64  `db:"global_seq" bson:"global_seq"`
	ID            string `db:"id" bson:"id"`
	Name          string `db:"name" bson:"name"`
	Time          int64  `db:"time" bson:"time"`
	AggregateName string `db:"aggregate_name" bson:"aggregate_name"`
	AggregateID   string `db:"aggregate_id" bson:"aggregate_id"`
	Sequence      int    `db:"seq" bson:"seq"`
	BatchID       string `db:"batch_id" bson:"batch_id"`
	Headers       []byte `db:"headers" bson:"headers,omitempty"`
	Data          []byte `db:"data" bson:"data"`
}

// Encode returns the Row of evt after it was assigned the given global
// sequence number and batch id.
func Encode(enc codec.Encoding, evt event.Event, globalSeq int64, batchID string) (Row, error) {
	data, err := codec.Marshal(enc, evt.Name(), evt.Data())
	if err != nil {
		return Row{}, fmt.Errorf("marshal %q event data: %w", evt.Name(), err)
	}

	var headers []byte
	if h := event.Headers(evt); len(h) > 0 {
		if headers, err = json.Marshal(h); err != nil {
			return Row{}, fmt.Errorf("marshal headers: %w [event=%s]", err, evt.ID())
		}
	}

	return Row{
		GlobalSeq:     globalSeq,
		ID:            evt.ID().String(),
		Name:          evt.Name(),
		Time:          evt.Time().UnixNano(),
		AggregateName: evt.AggregateName(),
		AggregateID:   evt.AggregateID().String(),
		Sequence:      evt.SequenceNumber(),
		BatchID:       batchID,
		Headers:       headers,
		Data:          data,
	}, nil
}

// Values returns the values of the row in the order of Columns.
func (r Row) Values() []any {
	var headers any
	if len(r.Headers) > 0 {
		headers = r.Headers
	}
	return []any{
		r.GlobalSeq,
		r.ID,
		r.Name,
		r.Time,
		r.AggregateName,
		r.AggregateID,
		r.Sequence,
		r.BatchID,
		headers,
		r.Data,
	}
}

// Decode decodes the row into a committed event.
func (r Row) Decode(enc codec.Encoding) (event.Event, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event id: %w [id=%s]", err, r.ID)
	}

	aggregateID, err := uuid.Parse(r.AggregateID)
	if err != nil {
		return nil, fmt.Errorf("parse aggregate id: %w [id=%s]", err, r.AggregateID)
	}

	data, err := codec.Unmarshal(enc, r.Data, r.Name)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %q event data: %w", r.Name, err)
	}

	opts := []event.Option{
		event.ID(id),
		event.Time(time.Unix(0, r.Time)),
		event.Aggregate(r.AggregateName, aggregateID, r.Sequence),
		event.Committed(r.GlobalSeq, r.BatchID),
	}

	if len(r.Headers) > 0 {
		var headers map[string]string
		if err := json.Unmarshal(r.Headers, &headers); err != nil {
			return nil, fmt.Errorf("unmarshal headers: %w [event=%s]", err, r.ID)
		}
		for k, v := range headers {
			opts = append(opts, event.Header(k, v))
		}
	}

	return event.New(r.Name, data, opts...).Any(), nil
}

// DecodeAll decodes the given rows.
func DecodeAll(enc codec.Encoding, rows []Row) ([]event.Event, error) {
	out := make([]event.Event, len(rows))
	for i, row := range rows {
		evt, err := row.Decode(enc)
		if err != nil {
			return nil, err
		}
		out[i] = evt
	}
	return out, nil
}
