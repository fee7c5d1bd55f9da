package nats

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/modernice/cqrs/codec"
	"github.com/modernice/cqrs/command/processor"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/internal/dbevent"
)

var _ processor.Notifier = (*Notifier)(nil)

// Notifier publishes committed events to NATS. Pass it to a command processor
// using processor.NotifyTo.
type Notifier struct {
	*connection
	enc codec.Encoding
}

// envelope is a published commit.
type envelope struct {
	Events []dbevent.Row
}

// NewNotifier returns a Notifier that encodes event data using enc.
func NewNotifier(enc codec.Encoding, opts ...Option) *Notifier {
	return &Notifier{connection: newConnection(opts), enc: enc}
}

// Connect connects to NATS. Connect is called automatically by Publish.
func (n *Notifier) Connect(ctx context.Context) error {
	return n.connectOnce(ctx)
}

// Notify publishes the events. Failures are logged; views that miss a
// notification still receive the events with their next catch-up.
func (n *Notifier) Notify(ctx context.Context, events []event.Event) {
	if err := n.Publish(ctx, events); err != nil {
		n.log.WithError(err).WithField("subject", n.subject).Warn("[cqrs/backend/nats.Notifier] Failed to publish commit.")
	}
}

// Publish publishes the events as a single message.
func (n *Notifier) Publish(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	if err := n.connectOnce(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	b, err := encodeEnvelope(n.enc, events)
	if err != nil {
		return err
	}

	if err := n.conn.Publish(n.subject, b); err != nil {
		return fmt.Errorf("nats: %w [subject=%s]", err, n.subject)
	}

	return nil
}

func encodeEnvelope(enc codec.Encoding, events []event.Event) ([]byte, error) {
	env := envelope{Events: make([]dbevent.Row, len(events))}
	for i, evt := range events {
		row, err := dbevent.Encode(enc, evt, evt.GlobalSequenceNumber(), evt.BatchID())
		if err != nil {
			return nil, err
		}
		env.Events[i] = row
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeEnvelope(enc codec.Encoding, b []byte) ([]event.Event, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return dbevent.DecodeAll(enc, env.Events)
}
