package codec

import (
	"encoding/gob"
	"fmt"
	"io"
)

// GobRegister registers T under the given name. Data of the registered name
// is encoded and decoded using encoding/gob.
func GobRegister[T any](r *Registry, name string) {
	r.Register(name, gobEncoder{}, gobDecoder[T]{name: name}, func() any {
		var zero T
		return zero
	})
}

type gobEncoder struct{}

func (gobEncoder) Encode(w io.Writer, data any) error {
	return gob.NewEncoder(w).Encode(data)
}

type gobDecoder[T any] struct {
	name string
}

func (dec gobDecoder[T]) Decode(r io.Reader) (any, error) {
	var data T
	if err := gob.NewDecoder(r).Decode(&data); err != nil {
		return data, fmt.Errorf("decode %q: %w", dec.name, err)
	}
	return data, nil
}
