package codec

import (
	"encoding"
	"errors"
	"fmt"
	"io"
	"reflect"
)

var errNotCustomMarshaler = errors.New("not custom")

// encodeCustomMarshaler encodes data using encoding.BinaryMarshaler or
// encoding.TextMarshaler. It returns errNotCustomMarshaler if data implements
// neither.
func encodeCustomMarshaler(w io.Writer, data any) error {
	var (
		b   []byte
		err error
	)
	switch m := data.(type) {
	case encoding.BinaryMarshaler:
		b, err = m.MarshalBinary()
	case encoding.TextMarshaler:
		b, err = m.MarshalText()
	default:
		return errNotCustomMarshaler
	}
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// decodeCustomMarshaler decodes r into a new instance returned by makeFunc if
// that instance (or a pointer to it) implements encoding.BinaryUnmarshaler or
// encoding.TextUnmarshaler.
func decodeCustomMarshaler(r io.Reader, makeFunc func() any) (any, error) {
	data := makeFunc()
	if data == nil {
		return nil, errNotCustomMarshaler
	}

	target := data
	isPtr := reflect.TypeOf(data).Kind() == reflect.Pointer
	if !isPtr {
		ptr := reflect.New(reflect.TypeOf(data))
		ptr.Elem().Set(reflect.ValueOf(data))
		target = ptr.Interface()
	}

	var unmarshal func([]byte) error
	switch m := target.(type) {
	case encoding.BinaryUnmarshaler:
		unmarshal = m.UnmarshalBinary
	case encoding.TextUnmarshaler:
		unmarshal = m.UnmarshalText
	default:
		return nil, errNotCustomMarshaler
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}

	if err := unmarshal(b); err != nil {
		return nil, fmt.Errorf("custom unmarshaler: %w", err)
	}

	if isPtr {
		return target, nil
	}
	return reflect.ValueOf(target).Elem().Interface(), nil
}
