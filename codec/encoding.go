package codec

import (
	"encoding/json"
	"io"
)

// Encoding encodes and decodes event data by event name.
type Encoding interface {
	// Encode encodes the given data using the configured encoder for the given name.
	Encode(w io.Writer, name string, data any) error

	// Decode decodes the data in r using the configured decoder for the given name.
	Decode(r io.Reader, name string) (any, error)
}

// Encoder is an encoder for a specific event data type.
type Encoder interface {
	// Encode encodes the given data and writes the result into w.
	Encode(w io.Writer, data any) error
}

// EncoderFunc allows a function to be used as an Encoder.
type EncoderFunc func(w io.Writer, data any) error

// Decoder is a decoder for a specific event data type.
type Decoder interface {
	// Decode decodes the data in r and returns the decoded data.
	Decode(r io.Reader) (any, error)
}

// DecoderFunc allows a function to be used as a Decoder.
type DecoderFunc func(r io.Reader) (any, error)

// Encode returns encode(w, data).
func (encode EncoderFunc) Encode(w io.Writer, data any) error {
	return encode(w, data)
}

// Decode returns decode(r).
func (decode DecoderFunc) Decode(r io.Reader) (any, error) {
	return decode(r)
}

// Raw is the data of an event whose name is not registered in a Registry that
// allows raw decoding. It holds the undecoded bytes.
type Raw []byte

// MarshalJSON returns the raw bytes if they are valid JSON, or a JSON string
// otherwise.
func (r Raw) MarshalJSON() ([]byte, error) {
	if json.Valid(r) {
		return r, nil
	}
	return json.Marshal(string(r))
}
