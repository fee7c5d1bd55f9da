// Package test provides an example domain and helpers for testing code that
// works with aggregates.
package test

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/modernice/cqrs/aggregate"
	"github.com/modernice/cqrs/aggregate/factory"
	"github.com/modernice/cqrs/codec"
	"github.com/modernice/cqrs/event"
)

const (
	// CounterAggregate is the aggregate name of Counter.
	CounterAggregate = "counter"

	// CounterInitialized is raised by Counter.Created.
	CounterInitialized = "counter.initialized"

	// CounterIncremented is raised by Counter.Increment.
	CounterIncremented = "counter.incremented"

	// CounterLabeled is raised by Counter.Label.
	CounterLabeled = "counter.labeled"
)

// Initialized is the data of a CounterInitialized event.
type Initialized struct{}

// Incremented is the data of a CounterIncremented event.
type Incremented struct {
	By int
}

// Labeled is the data of a CounterLabeled event.
type Labeled struct {
	Key   string
	Value string
}

// Counter is an example aggregate.
type Counter struct {
	*aggregate.Base

	Initialized bool
	Count       int
	History     []int
	Labels      map[string]string
}

// NewCounter returns a new Counter.
func NewCounter(id uuid.UUID) *Counter {
	c := &Counter{
		Base:   aggregate.New(CounterAggregate, id),
		Labels: make(map[string]string),
	}
	event.ApplyWith(c, CounterInitialized, c.initialized)
	event.ApplyWith(c, CounterIncremented, c.incremented)
	event.ApplyWith(c, CounterLabeled, c.labeled)
	return c
}

// Created raises a CounterInitialized event.
func (c *Counter) Created() {
	aggregate.Next(c, CounterInitialized, Initialized{})
}

// Increment increments the counter.
func (c *Counter) Increment(by int) {
	aggregate.Next(c, CounterIncremented, Incremented{By: by})
}

// Label adds a label to the counter.
func (c *Counter) Label(key, value string) {
	aggregate.Next(c, CounterLabeled, Labeled{Key: key, Value: value})
}

// MarshalSnapshot encodes the state of the counter as JSON.
func (c *Counter) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(counterState{
		Initialized: c.Initialized,
		Count:       c.Count,
		History:     c.History,
		Labels:      c.Labels,
	})
}

// UnmarshalSnapshot decodes the state of the counter from JSON.
func (c *Counter) UnmarshalSnapshot(b []byte) error {
	var state counterState
	if err := json.Unmarshal(b, &state); err != nil {
		return err
	}
	c.Initialized = state.Initialized
	c.Count = state.Count
	c.History = state.History
	c.Labels = state.Labels
	if c.Labels == nil {
		c.Labels = make(map[string]string)
	}
	return nil
}

type counterState struct {
	Initialized bool
	Count       int
	History     []int
	Labels      map[string]string
}

func (c *Counter) initialized(event.Of[Initialized]) {
	c.Initialized = true
}

func (c *Counter) incremented(evt event.Of[Incremented]) {
	c.Count += evt.Data().By
	c.History = append(c.History, evt.Data().By)
}

func (c *Counter) labeled(evt event.Of[Labeled]) {
	c.Labels[evt.Data().Key] = evt.Data().Value
}

// Factory returns a Factory that makes Counters.
func Factory() *factory.Factory {
	return factory.New(factory.For(CounterAggregate, NewCounter))
}

// Encoder returns a Registry with the Counter events registered.
func Encoder() *codec.Registry {
	reg := codec.New()
	codec.JSONRegister[Initialized](reg, CounterInitialized)
	codec.JSONRegister[Incremented](reg, CounterIncremented)
	codec.JSONRegister[Labeled](reg, CounterLabeled)
	return reg
}

// Increments returns n committed-looking CounterIncremented events for the
// counter with the given id, starting at sequence number from.
func Increments(id uuid.UUID, from, n int) []event.Event {
	events := make([]event.Event, n)
	for i := range events {
		events[i] = event.New(CounterIncremented, Incremented{By: 1}, event.Aggregate(CounterAggregate, id, from+i)).Any()
	}
	return events
}
