package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	// ErrNotFound is returned when trying to encode/decode data which hasn't
	// been registered into a registry.
	ErrNotFound = errors.New("encoding not found. forgot to register?")

	// ErrMissingFactory is returned when trying to instantiate data for which
	// no factory function was provided.
	ErrMissingFactory = errors.New("missing factory for data. forgot to register?")
)

var _ Encoding = (*Registry)(nil)

// A Registry provides the Encoders and Decoders for event data. Use
// JSONRegister or GobRegister to register a type under an event name.
//
//	reg := codec.New()
//	codec.JSONRegister[FooCreated](reg, "foo.created")
//
//	var buf bytes.Buffer
//	err := reg.Encode(&buf, "foo.created", FooCreated{...})
//	data, err := reg.Decode(&buf, "foo.created")
type Registry struct {
	mux       sync.RWMutex
	encoders  map[string]Encoder
	decoders  map[string]Decoder
	factories map[string]func() any
	allowRaw  bool
}

// Option is a Registry option.
type Option func(*Registry)

// AllowRaw returns an Option that makes the Registry decode data of
// unregistered names into Raw instead of failing with ErrNotFound. Encoding
// Raw data of unregistered names writes the raw bytes.
func AllowRaw() Option {
	return func(r *Registry) {
		r.allowRaw = true
	}
}

// New returns a new Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		encoders:  make(map[string]Encoder),
		decoders:  make(map[string]Decoder),
		factories: make(map[string]func() any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register registers the given Encoder and Decoder under the given name. The
// makeFunc is required for custom data unmarshalers to work.
func (r *Registry) Register(name string, enc Encoder, dec Decoder, makeFunc func() any) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.encoders[name] = enc
	r.decoders[name] = dec
	if makeFunc != nil {
		r.factories[name] = makeFunc
	}
}

// Names returns the registered names.
func (r *Registry) Names() []string {
	r.mux.RLock()
	defer r.mux.RUnlock()
	names := make([]string, 0, len(r.encoders))
	for name := range r.encoders {
		names = append(names, name)
	}
	return names
}

// Encode encodes the data that is registered under the given name. Data that
// implements encoding.BinaryMarshaler or encoding.TextMarshaler is encoded
// using that implementation.
func (r *Registry) Encode(w io.Writer, name string, data any) error {
	if raw, ok := data.(Raw); ok && r.allowRaw {
		_, err := w.Write(raw)
		return err
	}

	if err := encodeCustomMarshaler(w, data); !errors.Is(err, errNotCustomMarshaler) {
		return err
	}

	r.mux.RLock()
	enc, ok := r.encoders[name]
	r.mux.RUnlock()

	if !ok {
		return fmt.Errorf("get encoder: %w [name=%v]", ErrNotFound, name)
	}

	return enc.Encode(w, data)
}

// Decode decodes the data that is registered under the given name.
func (r *Registry) Decode(in io.Reader, name string) (any, error) {
	r.mux.RLock()
	dec, ok := r.decoders[name]
	makeFunc, hasFactory := r.factories[name]
	r.mux.RUnlock()

	if !ok {
		if r.allowRaw {
			b, err := io.ReadAll(in)
			return Raw(b), err
		}
		return nil, fmt.Errorf("get decoder: %w [name=%v]", ErrNotFound, name)
	}

	if hasFactory {
		var buf bytes.Buffer
		data, err := decodeCustomMarshaler(io.TeeReader(in, &buf), makeFunc)
		if !errors.Is(err, errNotCustomMarshaler) {
			return data, err
		}
		in = io.MultiReader(&buf, in)
	}

	return dec.Decode(in)
}

// New creates a new instance of the data that is registered under name.
func (r *Registry) New(name string) (any, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	makeFunc, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w [name=%v]", ErrMissingFactory, name)
	}
	return makeFunc(), nil
}

// Marshal encodes data into a byte slice using the given Encoding.
func Marshal(enc Encoding, name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := enc.Encode(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes b using the given Encoding.
func Unmarshal(enc Encoding, b []byte, name string) (any, error) {
	return enc.Decode(bytes.NewReader(b), name)
}
