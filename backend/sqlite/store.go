// Package sqlite provides an event log on top of SQLite.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/modernice/cqrs/codec"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/internal/dbevent"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var _ event.Store = (*EventStore)(nil)

// DefaultPageSize is the default number of rows Stream reads per query.
const DefaultPageSize = 500

// EventStore is an event log stored in a single SQLite table. The store uses
// a single connection, so appends are serialized by the connection pool.
type EventStore struct {
	db       *sqlx.DB
	table    string
	pageSize uint64
	enc      codec.Encoding
}

// Option is an option for the SQLite event log.
type Option func(*EventStore)

// Table returns an Option that configures the used table for events.
// Defaults to "events".
func Table(name string) Option {
	if name = strings.TrimSpace(name); name == "" {
		panic(fmt.Errorf("table name cannot be empty"))
	}

	return func(store *EventStore) {
		store.table = name
	}
}

// PageSize returns an Option that sets the number of rows Stream reads per
// query. Defaults to DefaultPageSize.
func PageSize(n int) Option {
	if n < 1 {
		panic(fmt.Errorf("page size must be positive; got %d", n))
	}

	return func(store *EventStore) {
		store.pageSize = uint64(n)
	}
}

// Open opens the SQLite database at dsn and creates the event table if it does
// not exist. Use ":memory:" for an in-memory database.
func Open(ctx context.Context, dsn string, enc codec.Encoding, opts ...Option) (*EventStore, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w [dsn=%s]", err, dsn)
	}
	db.SetMaxOpenConns(1)

	store := &EventStore{db: db, table: "events", pageSize: DefaultPageSize, enc: enc}
	for _, opt := range opts {
		opt(store)
	}

	if _, err := db.ExecContext(ctx, schemaSQL(store.table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("create %q table: %w", store.table, err)
	}

	return store, nil
}

// DB returns the underlying database handle.
func (store *EventStore) DB() *sqlx.DB {
	return store.db
}

// Close closes the database.
func (store *EventStore) Close() error {
	return store.db.Close()
}

// Append appends the events as one batch.
func (store *EventStore) Append(ctx context.Context, batchID string, events ...event.Event) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	first, err := event.ValidateBatch(events)
	if err != nil {
		return nil, err
	}

	tx, err := store.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for ref, seq := range first {
		query, args, err := squirrel.Select("COUNT(*)").
			From(store.table).
			Where(squirrel.Eq{"aggregate_name": ref.Name, "aggregate_id": ref.ID.String()}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build sql: %w", err)
		}

		var current int
		if err := tx.GetContext(ctx, &current, query, args...); err != nil {
			return nil, fmt.Errorf("count events of %s: %w", ref, err)
		}

		if current != seq {
			return nil, &event.ConflictError{Aggregate: ref, Expected: seq, Current: current}
		}
	}

	var next int64
	if err := tx.GetContext(ctx, &next, fmt.Sprintf("SELECT COALESCE(MAX(global_seq) + 1, 0) FROM %s", store.table)); err != nil {
		return nil, fmt.Errorf("query next global sequence number: %w", err)
	}

	insert := squirrel.Insert(store.table).Columns(dbevent.Columns...)
	committed := make([]event.Event, len(events))
	for i, evt := range events {
		row, err := dbevent.Encode(store.enc, evt, next+int64(i), batchID)
		if err != nil {
			return nil, err
		}
		insert = insert.Values(row.Values()...)
		committed[i] = event.Assign(evt, next+int64(i), batchID)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isConstraintError(err) {
			return nil, fmt.Errorf("%w: %v", event.ErrInvalidBatch, err)
		}
		return nil, fmt.Errorf("insert events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return committed, nil
}

// LoadStream returns the events of an aggregate.
func (store *EventStore) LoadStream(ctx context.Context, ref event.AggregateRef, fromSeq int, cutoff int64) ([]event.Event, error) {
	query, args, err := squirrel.Select(dbevent.Columns...).
		From(store.table).
		Where(squirrel.Eq{"aggregate_name": ref.Name, "aggregate_id": ref.ID.String()}).
		Where(squirrel.GtOrEq{"seq": fromSeq}).
		Where(squirrel.LtOrEq{"global_seq": cutoff}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql: %w", err)
	}

	var rows []dbevent.Row
	if err := store.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query events of %s: %w", ref, err)
	}

	return dbevent.DecodeAll(store.enc, rows)
}

// Stream streams the events with a global sequence number >= from. The log is
// read in pages of at most PageSize rows, and each page is read completely
// before its events are sent, so a slow consumer never holds the connection.
func (store *EventStore) Stream(ctx context.Context, from int64) (<-chan event.Event, <-chan error, error) {
	rows, err := store.page(ctx, from)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan event.Event)
	errs := make(chan error)

	go func() {
		defer close(errs)
		defer close(out)

		fail := func(err error) {
			select {
			case <-ctx.Done():
			case errs <- err:
			}
		}

		for {
			for _, row := range rows {
				evt, err := row.Decode(store.enc)
				if err != nil {
					fail(fmt.Errorf("decode event: %w", err))
					return
				}

				select {
				case <-ctx.Done():
					return
				case out <- evt:
				}
			}

			if uint64(len(rows)) < store.pageSize {
				return
			}

			if rows, err = store.page(ctx, rows[len(rows)-1].GlobalSeq+1); err != nil {
				fail(err)
				return
			}
		}
	}()

	return out, errs, nil
}

func (store *EventStore) page(ctx context.Context, from int64) ([]dbevent.Row, error) {
	query, args, err := squirrel.Select(dbevent.Columns...).
		From(store.table).
		Where(squirrel.GtOrEq{"global_seq": from}).
		OrderBy("global_seq ASC").
		Limit(store.pageSize).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql: %w", err)
	}

	var rows []dbevent.Row
	if err := store.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query events: %w [from=%d]", err, from)
	}

	return rows, nil
}

// NextGlobalSequenceNumber returns the global sequence number of the next
// appended event.
func (store *EventStore) NextGlobalSequenceNumber(ctx context.Context) (int64, error) {
	var next int64
	if err := store.db.GetContext(ctx, &next, fmt.Sprintf("SELECT COALESCE(MAX(global_seq) + 1, 0) FROM %s", store.table)); err != nil {
		return 0, fmt.Errorf("query next global sequence number: %w", err)
	}
	return next, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT ||
		code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func schemaSQL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	global_seq INTEGER PRIMARY KEY NOT NULL,
	id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	time INTEGER NOT NULL,
	aggregate_name TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	batch_id TEXT NOT NULL,
	headers BLOB,
	data BLOB,
	UNIQUE(aggregate_name, aggregate_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_name ON %[1]s(name);

CREATE TRIGGER IF NOT EXISTS trg_%[1]s_no_update
BEFORE UPDATE ON %[1]s
BEGIN
	SELECT RAISE(ABORT, 'events are append-only: UPDATE forbidden');
END;

CREATE TRIGGER IF NOT EXISTS trg_%[1]s_no_delete
BEFORE DELETE ON %[1]s
BEGIN
	SELECT RAISE(ABORT, 'events are append-only: DELETE forbidden');
END;
`, table)
}
