package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Parcel bytes in Data are base64 encoded, so frames stay readable when
// captured off the wire while debugging.
//
// Decode is strict: unknown fields and trailing data are errors, so a frame
// from a peer speaking some other envelope fails instead of decoding to an
// empty transaction.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("codec: trailing data after JSON envelope")
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
