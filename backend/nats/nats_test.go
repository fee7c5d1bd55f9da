package nats

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/modernice/cqrs/backend/testing/eventstoretest"
	"github.com/modernice/cqrs/event"
	"github.com/modernice/cqrs/internal/env"
	"github.com/nats-io/nats.go"
)

func TestConnection_natsURL(t *testing.T) {
	defer env.Temp("NATS_URL", "")()

	c := newConnection(nil)
	if url := c.natsURL(); url != nats.DefaultURL {
		t.Fatalf("natsURL() should return %q; got %q", nats.DefaultURL, url)
	}

	want := "foo://bar:123"
	defer env.Temp("NATS_URL", want)()

	c = newConnection(nil)
	if url := c.natsURL(); url != want {
		t.Fatalf("natsURL() should return %q; got %q", want, url)
	}

	c = newConnection([]Option{URL("nats://baz:4222")})
	if url := c.natsURL(); url != "nats://baz:4222" {
		t.Fatalf("natsURL() should return %q; got %q", "nats://baz:4222", url)
	}
}

func TestConnection_subject(t *testing.T) {
	defer env.Temp("NATS_SUBJECT", "")()

	if c := newConnection(nil); c.subject != DefaultSubject {
		t.Fatalf("subject should default to %q; got %q", DefaultSubject, c.subject)
	}

	defer env.Temp("NATS_SUBJECT", "env.commits")()
	if c := newConnection(nil); c.subject != "env.commits" {
		t.Fatalf("subject should be read from NATS_SUBJECT; got %q", c.subject)
	}

	if c := newConnection([]Option{Subject("foo.commits")}); c.subject != "foo.commits" {
		t.Fatalf("Subject option should override the environment; got %q", c.subject)
	}
}

func TestEnvelope(t *testing.T) {
	enc := eventstoretest.NewEncoder()
	id := uuid.New()

	events := []event.Event{
		event.Assign(event.New("foo", eventstoretest.Data{A: "a", B: 1}, event.Aggregate("foo", id, 0)).Any(), 4, "batch"),
		event.Assign(event.New("bar", eventstoretest.Data{A: "b", B: 2}, event.Aggregate("foo", id, 1), event.Header("k", "v")).Any(), 5, "batch"),
	}

	b, err := encodeEnvelope(enc, events)
	if err != nil {
		t.Fatalf("encodeEnvelope failed with %q", err)
	}

	decoded, err := decodeEnvelope(enc, b)
	if err != nil {
		t.Fatalf("decodeEnvelope failed with %q", err)
	}

	if len(decoded) != len(events) {
		t.Fatalf("decodeEnvelope should return %d events; got %d", len(events), len(decoded))
	}

	for i := range events {
		if !event.Equal(events[i], decoded[i]) {
			t.Fatalf("event #%d differs\n%s", i, cmp.Diff(events[i].Metadata(), decoded[i].Metadata()))
		}
		if !cmp.Equal(events[i].Data(), decoded[i].Data()) {
			t.Fatalf("data of event #%d differs\n%s", i, cmp.Diff(events[i].Data(), decoded[i].Data()))
		}
	}

	if decoded[1].Header("k") != "v" {
		t.Fatalf("headers should survive the envelope")
	}
}
