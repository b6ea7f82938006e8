package githash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromHexRoundTrip(t *testing.T) {
	const h = "b45ef6fec89518d314f546fd6c97400b94907bc3"
	oid, err := FromHex(h)
	require.NoError(t, err)
	require.Equal(t, h, oid.String())
}

func TestFromHexInvalid(t *testing.T) {
	_, err := FromHex("not-hex")
	require.ErrorIs(t, err, ErrInvalidHex)

	_, err = FromHex("zz45ef6fec89518d314f546fd6c97400b94907bc")
	require.ErrorIs(t, err, ErrInvalidHex)
}

func TestHasherMatchesSum(t *testing.T) {
	data := []byte("blob 13\x00Hello, World!")
	h := NewHasher()
	_, _ = h.Write(data[:5])
	_, _ = h.Write(data[5:])
	require.Equal(t, Sum(data), h.Finalize())
}

func TestHasherWriteAfterFinalizePanics(t *testing.T) {
	h := NewHasher()
	_ = h.Finalize()
	require.Panics(t, func() { _, _ = h.Write([]byte("x")) })
	h.Reset()
	require.NotPanics(t, func() { _, _ = h.Write([]byte("x")) })
}

func TestVarintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40} {
		enc := AppendVarint(nil, v)
		got, n, ok := ReadVarint(enc)
		require.True(t, ok)
		require.Equal(t, len(enc), n)
		require.Equal(t, v, got)
	}
}

func TestReadVarintIncomplete(t *testing.T) {
	_, _, ok := ReadVarint([]byte{0x80, 0x80})
	require.False(t, ok)
}

func TestCRC32KnownValue(t *testing.T) {
	require.Equal(t, uint32(0xcbf43926), CRC32([]byte("123456789")))
}

func TestOIDCompareAndSort(t *testing.T) {
	a := MustFromHex("0000000000000000000000000000000000000000")
	b := MustFromHex("7f00000000000000000000000000000000000000")
	c := MustFromHex("ff00000000000000000000000000000000000000")
	ids := []OID{c, a, b}
	Sort(ids)
	require.Equal(t, []OID{a, b, c}, ids)
}
