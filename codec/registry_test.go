package codec_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/modernice/cqrs/codec"
)

type fooData struct {
	Title string
	Tags  []string
}

type textData struct {
	Value string
}

func (d textData) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(d.Value)), nil
}

func (d *textData) UnmarshalText(b []byte) error {
	d.Value = strings.ToLower(string(b))
	return nil
}

func TestJSONRegister(t *testing.T) {
	reg := codec.New()
	codec.JSONRegister[fooData](reg, "foo")

	data := fooData{Title: "foo", Tags: []string{"a", "b"}}

	b, err := codec.Marshal(reg, "foo", data)
	if err != nil {
		t.Fatalf("Marshal failed with %q", err)
	}

	decoded, err := codec.Unmarshal(reg, b, "foo")
	if err != nil {
		t.Fatalf("Unmarshal failed with %q", err)
	}

	if !cmp.Equal(data, decoded) {
		t.Fatalf("decoded data differs from original\n%s", cmp.Diff(data, decoded))
	}
}

func TestGobRegister(t *testing.T) {
	reg := codec.New()
	codec.GobRegister[fooData](reg, "foo")

	data := fooData{Title: "foo", Tags: []string{"a"}}

	var buf bytes.Buffer
	if err := reg.Encode(&buf, "foo", data); err != nil {
		t.Fatalf("Encode failed with %q", err)
	}

	decoded, err := reg.Decode(&buf, "foo")
	if err != nil {
		t.Fatalf("Decode failed with %q", err)
	}

	if !cmp.Equal(data, decoded) {
		t.Fatalf("decoded data differs from original\n%s", cmp.Diff(data, decoded))
	}
}

func TestRegistry_customMarshaler(t *testing.T) {
	reg := codec.New()
	codec.JSONRegister[textData](reg, "text")

	b, err := codec.Marshal(reg, "text", textData{Value: "foo"})
	if err != nil {
		t.Fatalf("Marshal failed with %q", err)
	}

	if string(b) != "FOO" {
		t.Fatalf("data should be encoded using MarshalText; got %q", b)
	}

	decoded, err := codec.Unmarshal(reg, b, "text")
	if err != nil {
		t.Fatalf("Unmarshal failed with %q", err)
	}

	if decoded != (textData{Value: "foo"}) {
		t.Fatalf("data should be decoded using UnmarshalText; got %v", decoded)
	}
}

func TestRegistry_notFound(t *testing.T) {
	reg := codec.New()

	if _, err := codec.Marshal(reg, "foo", fooData{}); !errors.Is(err, codec.ErrNotFound) {
		t.Fatalf("Marshal should fail with %q; got %q", codec.ErrNotFound, err)
	}

	if _, err := codec.Unmarshal(reg, []byte("{}"), "foo"); !errors.Is(err, codec.ErrNotFound) {
		t.Fatalf("Unmarshal should fail with %q; got %q", codec.ErrNotFound, err)
	}
}

func TestAllowRaw(t *testing.T) {
	reg := codec.New(codec.AllowRaw())

	decoded, err := codec.Unmarshal(reg, []byte(`{"a":1}`), "unknown")
	if err != nil {
		t.Fatalf("Unmarshal failed with %q", err)
	}

	raw, ok := decoded.(codec.Raw)
	if !ok {
		t.Fatalf("decoded data should be %T; got %T", raw, decoded)
	}

	b, err := codec.Marshal(reg, "unknown", raw)
	if err != nil {
		t.Fatalf("Marshal failed with %q", err)
	}

	if string(b) != `{"a":1}` {
		t.Fatalf("raw data should be written unchanged; got %q", b)
	}
}
