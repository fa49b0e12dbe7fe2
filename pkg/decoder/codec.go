package decoder

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec parses an opaque payload into a type tag plus the positional raw
// values. Values stay untyped; they only gain meaning when a schema
// transform is applied. The pipeline does not own the encoding; swapping
// the codec changes nothing downstream.
type Codec interface {
	Decode(payload []byte) (tag string, values []any, err error)
}

var (
	ErrEmptyPayload  = errors.New("empty payload")
	ErrNotTagged     = errors.New("payload is not a tagged tuple")
	ErrTagNotString  = errors.New("tag is not a string")
	ErrTrailingBytes = errors.New("trailing bytes after payload")
)

// CBORCodec decodes payloads encoded as a CBOR array whose first element is
// the record type tag: [tag, v1, ..., vN].
type CBORCodec struct {
	dec cbor.DecMode
}

// NewCBORCodec returns a codec with defensive decode limits suitable for
// untrusted telemetry input.
func NewCBORCodec() (*CBORCodec, error) {
	dm, err := cbor.DecOptions{
		MaxNestedLevels:  32,
		MaxArrayElements: 4096,
		MaxMapPairs:      4096,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to build CBOR decode mode: %w", err)
	}

	return &CBORCodec{dec: dm}, nil
}

// Decode implements Codec.
func (c *CBORCodec) Decode(payload []byte) (string, []any, error) {
	if len(payload) == 0 {
		return "", nil, ErrEmptyPayload
	}

	var raw []any

	rest, err := c.dec.UnmarshalFirst(payload, &raw)
	if err != nil {
		return "", nil, fmt.Errorf("cbor decode: %w", err)
	}

	if len(rest) != 0 {
		return "", nil, ErrTrailingBytes
	}

	if len(raw) == 0 {
		return "", nil, ErrNotTagged
	}

	tag, ok := raw[0].(string)
	if !ok {
		return "", nil, ErrTagNotString
	}

	return tag, raw[1:], nil
}
