package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/modernice/cqrs/codec"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/internal/dbevent"
)

var _ event.Store = (*EventStore)(nil)

const uniqueViolation = "23505"

// EventStore is a PostgreSQL event log.
type EventStore struct {
	onceConnect   sync.Once
	connectErr    error
	connectionURL string
	database      string
	table         string
	pool          *pgxpool.Pool
	enc           codec.Encoding
}

// EventStoreOption is an option for the PostgreSQL event log.
type EventStoreOption func(*EventStore)

// URL returns an EventStoreOption that specifies the connection string to the
// PostgreSQL server.
func URL(url string) EventStoreOption {
	return func(store *EventStore) {
		store.connectionURL = url
	}
}

// Database returns an EventStoreOption that configures the used database.
// Defaults to "cqrs".
func Database(name string) EventStoreOption {
	if name = strings.TrimSpace(name); name == "" {
		panic("database name cannot be empty")
	}

	return func(store *EventStore) {
		store.database = name
	}
}

// Table returns an EventStoreOption that configures the used table for events.
// Defaults to "events".
func Table(name string) EventStoreOption {
	if name = strings.TrimSpace(name); name == "" {
		panic(fmt.Errorf("table name cannot be empty"))
	}

	return func(store *EventStore) {
		store.table = name
	}
}

// NewEventStore returns a new PostgreSQL event log. If not otherwise
// specified using the URL() option, os.Getenv("POSTGRES_EVENTSTORE") is used as
// the connection string.
func NewEventStore(enc codec.Encoding, opts ...EventStoreOption) *EventStore {
	store := &EventStore{
		enc:           enc,
		database:      "cqrs",
		table:         "events",
		connectionURL: os.Getenv("POSTGRES_EVENTSTORE"),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Pool returns the underlying connection pool, or nil if the store is not
// connected yet.
func (store *EventStore) Pool() *pgxpool.Pool {
	return store.pool
}

// Connect connects to the PostgreSQL server and creates the database and
// table if they do not exist. Connect is called automatically by the other
// methods of the store.
func (store *EventStore) Connect(ctx context.Context) error {
	store.onceConnect.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		store.connectErr = store.setup(ctx)
	})
	return store.connectErr
}

// Close closes the connection pool.
func (store *EventStore) Close() {
	if store.pool != nil {
		store.pool.Close()
	}
}

func (store *EventStore) setup(ctx context.Context) error {
	if err := store.connect(ctx, store.connectionURL); err != nil {
		return err
	}

	if err := store.createDatabase(ctx); err != nil {
		return err
	}

	if err := store.useDatabase(ctx); err != nil {
		return err
	}

	return store.createTable(ctx)
}

func (store *EventStore) connect(ctx context.Context, connURL string) error {
	if connURL == "" {
		return fmt.Errorf("missing connection string")
	}

	pool, err := pgxpool.Connect(ctx, connURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	store.pool = pool

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	return nil
}

func (store *EventStore) createDatabase(ctx context.Context) error {
	var exists bool
	if err := store.pool.QueryRow(
		ctx,
		"SELECT EXISTS (SELECT FROM pg_database WHERE datname = $1)",
		store.database,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check if %q database exists: %w", store.database, err)
	}

	if exists {
		return nil
	}

	if _, err := store.pool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{store.database}.Sanitize())); err != nil {
		return fmt.Errorf("create %q database: %w", store.database, err)
	}

	return nil
}

func (store *EventStore) useDatabase(ctx context.Context) error {
	store.pool.Close()

	cfg, err := pgx.ParseConfig(store.connectionURL)
	if err != nil {
		return fmt.Errorf("parse connection string: %w", err)
	}

	purl, err := url.Parse(cfg.ConnString())
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	purl.Path = "/" + store.database

	return store.connect(ctx, purl.String())
}

func (store *EventStore) createTable(ctx context.Context) error {
	tx, err := store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, eventTableSQL(store.table)); err != nil {
		return fmt.Errorf("create %q table: %w", store.table, err)
	}

	indexes := []struct {
		name   string
		fields []string
		unique bool
	}{
		{name: store.table + "_id", fields: []string{"id"}, unique: true},
		{name: store.table + "_aggregate", fields: []string{"aggregate_name", "aggregate_id", "seq"}, unique: true},
		{name: store.table + "_name", fields: []string{"name"}},
	}

	for _, idx := range indexes {
		if _, err := tx.Exec(ctx, indexSQL(idx.name, store.table, idx.fields, idx.unique)); err != nil {
			return fmt.Errorf("create %q index: %w [fields=%v]", idx.name, err, idx.fields)
		}
	}

	return tx.Commit(ctx)
}

// Append appends the events as one batch. Appends are serialized by a table
// lock, which keeps the global sequence gap-free for readers.
func (store *EventStore) Append(ctx context.Context, batchID string, events ...event.Event) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	first, err := event.ValidateBatch(events)
	if err != nil {
		return nil, err
	}

	if err := store.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	tx, err := store.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE", store.table)); err != nil {
		return nil, fmt.Errorf("lock %q table: %w", store.table, err)
	}

	for ref, seq := range first {
		current, err := store.countEvents(ctx, tx, ref)
		if err != nil {
			return nil, err
		}
		if current != seq {
			return nil, &event.ConflictError{Aggregate: ref, Expected: seq, Current: current}
		}
	}

	var next int64
	if err := tx.QueryRow(ctx, fmt.Sprintf("SELECT COALESCE(MAX(global_seq) + 1, 0) FROM %s", store.table)).Scan(&next); err != nil {
		return nil, fmt.Errorf("query next global sequence number: %w", err)
	}

	insert := squirrel.Insert(store.table).Columns(dbevent.Columns...).PlaceholderFormat(squirrel.Dollar)
	committed := make([]event.Event, len(events))
	for i, evt := range events {
		row, err := dbevent.Encode(store.enc, evt, next+int64(i), batchID)
		if err != nil {
			return nil, err
		}
		insert = insert.Values(row.Values()...)
		committed[i] = event.Assign(evt, next+int64(i), batchID)
	}

	sql, args, err := insert.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql: %w", err)
	}

	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", event.ErrInvalidBatch, err)
		}
		return nil, fmt.Errorf("insert events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return committed, nil
}

func (store *EventStore) countEvents(ctx context.Context, tx pgx.Tx, ref event.AggregateRef) (int, error) {
	sql, args, err := squirrel.Select("COUNT(*)").
		From(store.table).
		Where(squirrel.Eq{"aggregate_name": ref.Name, "aggregate_id": ref.ID.String()}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sql: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events of %s: %w", ref, err)
	}
	return count, nil
}

// LoadStream returns the events of an aggregate.
func (store *EventStore) LoadStream(ctx context.Context, ref event.AggregateRef, fromSeq int, cutoff int64) ([]event.Event, error) {
	if err := store.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	sql, args, err := store.selectEvents().
		Where(squirrel.Eq{"aggregate_name": ref.Name, "aggregate_id": ref.ID.String()}).
		Where(squirrel.GtOrEq{"seq": fromSeq}).
		Where(squirrel.LtOrEq{"global_seq": cutoff}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql: %w", err)
	}

	rows, err := store.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query events of %s: %w", ref, err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		evt, err := store.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query events of %s: %w", ref, err)
	}

	return out, nil
}

// Stream streams the events with a global sequence number >= from.
func (store *EventStore) Stream(ctx context.Context, from int64) (<-chan event.Event, <-chan error, error) {
	if err := store.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	sql, args, err := store.selectEvents().
		Where(squirrel.GtOrEq{"global_seq": from}).
		OrderBy("global_seq ASC").
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build sql: %w", err)
	}

	res, err := store.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query events: %w", err)
	}

	out := make(chan event.Event)
	errs := make(chan error)

	go func() {
		defer close(errs)
		defer close(out)
		defer res.Close()

		for res.Next() {
			evt, err := store.scan(res)
			if err != nil {
				select {
				case <-ctx.Done():
				case errs <- err:
				}
				return
			}

			select {
			case <-ctx.Done():
				return
			case out <- evt:
			}
		}

		if err := res.Err(); err != nil {
			select {
			case <-ctx.Done():
			case errs <- err:
			}
		}
	}()

	return out, errs, nil
}

// NextGlobalSequenceNumber returns the global sequence number of the next
// appended event.
func (store *EventStore) NextGlobalSequenceNumber(ctx context.Context) (int64, error) {
	if err := store.Connect(ctx); err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}

	var next int64
	if err := store.pool.QueryRow(ctx, fmt.Sprintf("SELECT COALESCE(MAX(global_seq) + 1, 0) FROM %s", store.table)).Scan(&next); err != nil {
		return 0, fmt.Errorf("query next global sequence number: %w", err)
	}
	return next, nil
}

func (store *EventStore) selectEvents() squirrel.SelectBuilder {
	return squirrel.Select(dbevent.Columns...).From(store.table).PlaceholderFormat(squirrel.Dollar)
}

func (store *EventStore) scan(rows pgx.Rows) (event.Event, error) {
	var row dbevent.Row
	if err := rows.Scan(
		&row.GlobalSeq,
		&row.ID,
		&row.Name,
		&row.Time,
		&row.AggregateName,
		&row.AggregateID,
		&row.Sequence,
		&row.BatchID,
		&row.Headers,
		&row.Data,
	); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	evt, err := row.Decode(store.enc)
	if err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolation
}

func eventTableSQL(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		global_seq BIGINT PRIMARY KEY NOT NULL,
		id UUID NOT NULL,
		name VARCHAR(255) NOT NULL,
		time BIGINT NOT NULL,
		aggregate_name VARCHAR(255) NOT NULL,
		aggregate_id UUID NOT NULL,
		seq INTEGER NOT NULL,
		batch_id VARCHAR(64) NOT NULL,
		headers JSONB,
		data BYTEA
	)`, name)
}

func indexSQL(name, table string, fields []string, unique bool) string {
	var uniqueOpt string
	if unique {
		uniqueOpt = "UNIQUE"
	}
	return fmt.Sprintf("CREATE %s INDEX IF NOT EXISTS %s ON %s (%s)", uniqueOpt, name, table, strings.Join(fields, ", "))
}
