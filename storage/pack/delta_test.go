package pack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDeltaRoundTrip(t *testing.T) {
	base := []byte("the quick brown fox jumps over the lazy dog")
	target := []byte("the quick brown fox leaps over the lazy dog and runs")

	delta := computeDelta(base, target)
	out, err := ApplyDelta(base, delta)
	require.NoError(t, err)
	assert.Equal(t, target, out)
}

func TestApplyDeltaRejectsBaseSizeMismatch(t *testing.T) {
	base := []byte("hello")
	target := []byte("hello world")
	delta := computeDelta(base, target)

	_, err := ApplyDelta([]byte("wrong size base"), delta)
	assert.Error(t, err)
}

func TestAppendTypeAndSizeRoundTrip(t *testing.T) {
	for _, size := range []uint64{0, 15, 16, 127, 128, 1 << 20, 1 << 40} {
		b := appendTypeAndSize(nil, 3, size)
		typ, got, n, ok := readTypeAndSize(b)
		require.True(t, ok)
		assert.Equal(t, uint8(3), typ)
		assert.Equal(t, size, got)
		assert.Equal(t, len(b), n)
	}
}

func TestOffsetDeltaRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, 127, 128, 16383, 16384, 1 << 20} {
		b := appendOffsetDelta(nil, v)
		got, n, ok := readOffsetDelta(b)
		require.True(t, ok)
		assert.Equal(t, v, got)
		assert.Equal(t, len(b), n)
	}
}
