// Package nats distributes commit notifications between processes over NATS.
// A Notifier publishes the committed events of every processed command and a
// Listener forwards them to local view engines, so that views in other
// processes do not have to wait for their next catch-up.
package nats

import (
	"context"
	"fmt"
	"sync"

	"github.com/modernice/cqrs/internal/env"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// DefaultSubject is the subject commit notifications are published to.
const DefaultSubject = "cqrs.commits"

// Option is an option for a Notifier or a Listener.
type Option func(*connection)

type connection struct {
	url      string
	subject  string
	queue    string
	conn     *nats.Conn
	natsOpts []nats.Option
	log      logrus.FieldLogger

	onceConnect sync.Once
	connectErr  error
}

// URL returns an Option that sets the connection URL to the NATS server. If no
// URL is specified, the environment variable "NATS_URL" will be used as the
// connection URL.
func URL(url string) Option {
	return func(c *connection) {
		c.url = url
	}
}

// Conn returns an Option that provides the underlying *nats.Conn.
func Conn(conn *nats.Conn) Option {
	return func(c *connection) {
		c.conn = conn
	}
}

// NATSOptions returns an Option that passes options to nats.Connect.
func NATSOptions(opts ...nats.Option) Option {
	return func(c *connection) {
		c.natsOpts = append(c.natsOpts, opts...)
	}
}

// Subject returns an Option that sets the subject of the commit
// notifications. Defaults to DefaultSubject.
//
// Can also be set with the "NATS_SUBJECT" environment variable.
func Subject(subject string) Option {
	return func(c *connection) {
		c.subject = subject
	}
}

// QueueGroup returns an Option that makes a Listener join the given NATS
// queue group. Only one Listener of a queue group receives a notification.
//
// Can also be set with the "NATS_QUEUE_GROUP" environment variable.
//
// Read more about queue groups: https://docs.nats.io/nats-concepts/queue
func QueueGroup(queue string) Option {
	return func(c *connection) {
		c.queue = queue
	}
}

// WithLogger returns an Option that sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *connection) {
		c.log = l
	}
}

func newConnection(opts []Option) *connection {
	c := &connection{
		subject: env.Lookup("NATS_SUBJECT", DefaultSubject),
		queue:   env.Lookup("NATS_QUEUE_GROUP", ""),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.subject == "" {
		c.subject = DefaultSubject
	}
	return c
}

func (c *connection) natsURL() string {
	if c.url != "" {
		return c.url
	}
	return env.Lookup("NATS_URL", nats.DefaultURL)
}

func (c *connection) connectOnce(ctx context.Context) error {
	c.onceConnect.Do(func() {
		c.connectErr = c.connect(ctx)
	})
	return c.connectErr
}

func (c *connection) connect(ctx context.Context) error {
	// *nats.Conn provided via Conn() option.
	if c.conn != nil {
		return nil
	}

	connected := make(chan error, 1)
	go func() {
		var err error
		c.conn, err = nats.Connect(c.natsURL(), c.natsOpts...)
		connected <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-connected:
		if err != nil {
			return fmt.Errorf("nats: %w [url=%s]", err, c.natsURL())
		}
		return nil
	}
}

// Close closes the NATS connection.
func (c *connection) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
