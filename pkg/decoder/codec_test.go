package decoder

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBORCodecDecode(t *testing.T) {
	codec, err := NewCBORCodec()
	require.NoError(t, err)

	payload, err := cbor.Marshal([]any{"op_stat", "a", 1, nil})
	require.NoError(t, err)

	tag, values, err := codec.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "op_stat", tag)
	assert.Equal(t, []any{"a", uint64(1), nil}, values)
}

func TestCBORCodecErrors(t *testing.T) {
	codec, err := NewCBORCodec()
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload []byte
		want    error
	}{
		{name: "empty payload", payload: nil, want: ErrEmptyPayload},
		{name: "empty array", payload: mustMarshal(t, []any{}), want: ErrNotTagged},
		{name: "tag not a string", payload: mustMarshal(t, []any{42, "x"}), want: ErrTagNotString},
		{name: "trailing bytes", payload: append(mustMarshal(t, []any{"op_stat"}), 0x01), want: ErrTrailingBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := codec.Decode(tt.payload)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCBORCodecRejectsNonArray(t *testing.T) {
	codec, err := NewCBORCodec()
	require.NoError(t, err)

	payload := mustMarshal(t, map[string]any{"type": "op_stat"})

	_, _, err = codec.Decode(payload)
	assert.Error(t, err)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()

	b, err := cbor.Marshal(v)
	require.NoError(t, err)

	return b
}
