package vecblob

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, math.MaxFloat32, float32(math.Inf(-1))}
	b := Encode(vec)
	require.Len(t, b, len(vec)*4)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestEncodeEmpty(t *testing.T) {
	assert.Nil(t, Encode(nil))
	got, err := Decode(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecodeBadLength(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestLittleEndianLayout(t *testing.T) {
	// 1.0 is 0x3f800000
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, Encode([]float32{1}))
}
