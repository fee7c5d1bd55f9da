package mongo

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/modernice/cqrs/internal/env"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Option is an option for the MongoDB stores.
type Option func(*config)

type config struct {
	url          string
	client       *mongo.Client
	dbname       string
	collection   string
	transactions bool
}

// URL returns an Option that specifies the URL to the MongoDB instance. An
// empty URL means "use the default".
//
// Defaults to the environment variable "MONGO_URL".
func URL(url string) Option {
	return func(cfg *config) {
		cfg.url = url
	}
}

// Client returns an Option that specifies the underlying mongo.Client to be
// used by a store.
func Client(c *mongo.Client) Option {
	return func(cfg *config) {
		cfg.client = c
	}
}

// Database returns an Option that sets the mongo database of a store.
func Database(name string) Option {
	return func(cfg *config) {
		cfg.dbname = name
	}
}

// Collection returns an Option that sets the mongo collection a store writes
// its documents to.
func Collection(name string) Option {
	return func(cfg *config) {
		cfg.collection = name
	}
}

// Transactions returns an Option that, if tx is true, configures a store to
// use MongoDB Transactions for its writes. The EventStore always uses
// transactions.
//
// Transactions can only be used in replica sets or sharded clusters:
// https://docs.mongodb.com/manual/core/transactions/
func Transactions(tx bool) Option {
	return func(cfg *config) {
		cfg.transactions = tx
	}
}

type connection struct {
	config

	once sync.Once
	err  error
	db   *mongo.Database
	col  *mongo.Collection
}

func newConnection(dbname, collection string, opts []Option) *connection {
	conn := connection{config: config{dbname: dbname, collection: collection}}
	for _, opt := range opts {
		opt(&conn.config)
	}
	if strings.TrimSpace(conn.dbname) == "" {
		conn.dbname = dbname
	}
	if strings.TrimSpace(conn.collection) == "" {
		conn.collection = collection
	}
	return &conn
}

func (c *connection) connect(ctx context.Context, setup func(context.Context) error) error {
	c.once.Do(func() {
		if c.err = c.dial(ctx); c.err != nil {
			return
		}
		if setup != nil {
			c.err = setup(ctx)
		}
	})
	return c.err
}

func (c *connection) dial(ctx context.Context) error {
	if c.client == nil {
		uri := c.url
		if uri == "" {
			uri = env.Lookup("MONGO_URL", "mongodb://localhost:27017")
		}
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		c.client = client
	}

	c.db = c.client.Database(c.dbname)
	c.col = c.db.Collection(c.collection)

	return nil
}

// withSession runs fn in a session, inside a transaction if transactions are
// enabled. Transient transaction errors are retried by the driver.
func (c *connection) withSession(ctx context.Context, fn func(mongo.SessionContext) error) error {
	if !c.transactions {
		return c.client.UseSession(ctx, fn)
	}

	sess, err := c.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx mongo.SessionContext) (any, error) {
		return nil, fn(ctx)
	})
	return err
}
