package nats

import (
	"context"
	"fmt"

	"github.com/modernice/cqrs/codec"
	"github.com/modernice/cqrs/command/processor"
	"github.com/nats-io/nats.go"
)

// Listener receives commit notifications from NATS and forwards them to
// local targets, usually view engines.
type Listener struct {
	*connection
	enc codec.Encoding
}

// NewListener returns a Listener that decodes event data using enc.
func NewListener(enc codec.Encoding, opts ...Option) *Listener {
	return &Listener{connection: newConnection(opts), enc: enc}
}

// Listen subscribes to the commit subject and forwards every received commit
// to the targets until ctx is canceled. Listen returns once the subscription
// is established; the returned channel is closed after the listener
// unsubscribed.
func (l *Listener) Listen(ctx context.Context, targets ...processor.Notifier) (<-chan struct{}, error) {
	if err := l.connectOnce(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	msgs := make(chan *nats.Msg, 64)

	var (
		sub *nats.Subscription
		err error
	)
	if l.queue != "" {
		sub, err = l.conn.ChanQueueSubscribe(l.subject, l.queue, msgs)
		if err != nil {
			return nil, fmt.Errorf("subscribe with queue group: %w [subject=%s queueGroup=%s]", err, l.subject, l.queue)
		}
	} else {
		sub, err = l.conn.ChanSubscribe(l.subject, msgs)
		if err != nil {
			return nil, fmt.Errorf("subscribe: %w [subject=%s]", err, l.subject)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				l.log.WithError(err).WithField("subject", l.subject).Warn("[cqrs/backend/nats.Listener] Failed to unsubscribe.")
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				events, err := decodeEnvelope(l.enc, msg.Data)
				if err != nil {
					l.log.WithError(err).WithField("subject", l.subject).Error("[cqrs/backend/nats.Listener] Failed to decode commit.")
					continue
				}
				for _, target := range targets {
					target.Notify(ctx, events)
				}
			}
		}
	}()

	return done, nil
}
