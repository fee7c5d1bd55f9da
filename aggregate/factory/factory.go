package factory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
)

var (
	// ErrUnknownName is returned when trying to make an aggregate with a name
	// that's unknown to the Factory.
	ErrUnknownName = errors.New("unknown aggregate name")
)

var _ aggregate.Factory = (*Factory)(nil)

// Option is a Factory option.
type Option func(*Factory)

// Factory makes aggregates by name.
type Factory struct {
	funcs map[string]func(uuid.UUID) aggregate.Aggregate
}

// For returns an Option that specifies the factory function for aggregates
// with the given name. The factory function for the empty name is used for
// unknown names.
func For[A aggregate.Aggregate](name string, fn func(uuid.UUID) A) Option {
	return func(f *Factory) {
		f.funcs[name] = func(id uuid.UUID) aggregate.Aggregate { return fn(id) }
	}
}

// New returns a new Factory.
func New(opts ...Option) *Factory {
	f := Factory{funcs: make(map[string]func(uuid.UUID) aggregate.Aggregate)}
	for _, opt := range opts {
		opt(&f)
	}
	return &f
}

// Make returns a new aggregate with the given name and id.
func (f *Factory) Make(name string, id uuid.UUID) (aggregate.Aggregate, error) {
	fn, ok := f.funcs[name]
	if !ok {
		if fn, ok = f.funcs[""]; !ok {
			return nil, fmt.Errorf("make %s(%s): %w", name, id, ErrUnknownName)
		}
	}
	return fn(id), nil
}

// Names returns the aggregate names the Factory can make.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.funcs))
	for name := range f.funcs {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
