package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVByteRoundTrip(t *testing.T) {
	cases := [][]uint32{
		nil,
		{0},
		{0, 0, 0},
		{1, 2, 3},
		{5, 5, 100},
		{127, 128, 16384, 2097152, 268435456},
		{0, 1, 127, 128, 255, 256, 1 << 20, 1<<31 - 1},
	}
	for _, ids := range cases {
		encoded := encodeVector(nil, ids)
		decoded, err := decodeVector(encoded)
		require.NoError(t, err)
		if len(ids) == 0 {
			assert.Empty(t, decoded)
		} else {
			assert.Equal(t, ids, decoded)
		}
	}
}

func TestVByteGapWidths(t *testing.T) {
	// A gap below 128 fits in one byte with the terminal bit set.
	encoded := encodeVector(nil, []uint32{127})
	require.Equal(t, []byte{0x80 | 127}, encoded)

	// A gap of 128 spills into a leading 7-bit group with the high bit clear.
	encoded = encodeVector(nil, []uint32{128})
	require.Equal(t, []byte{0x01, 0x80}, encoded)
}

func TestVByteTruncatedPayload(t *testing.T) {
	encoded := encodeVector(nil, []uint32{1, 300})
	_, err := decodeVector(encoded[:len(encoded)-1])
	require.Error(t, err)
}

func TestVByteMaxValue(t *testing.T) {
	encoded := encodeVector(nil, []uint32{1<<32 - 1})
	decoded, err := decodeVector(encoded)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1<<32 - 1}, decoded)
}
