package codec

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONRegister registers T under the given name. Data of the registered name
// is encoded and decoded using encoding/json.
func JSONRegister[T any](r *Registry, name string) {
	r.Register(name, jsonEncoder{}, jsonDecoder[T]{name: name}, func() any {
		var zero T
		return zero
	})
}

type jsonEncoder struct{}

func (jsonEncoder) Encode(w io.Writer, data any) error {
	return json.NewEncoder(w).Encode(data)
}

type jsonDecoder[T any] struct {
	name string
}

func (dec jsonDecoder[T]) Decode(r io.Reader) (any, error) {
	var data T
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return data, fmt.Errorf("decode %q: %w", dec.name, err)
	}
	return data, nil
}
