package pack

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/githash"
)

func TestIndexWriteReadRoundTrip(t *testing.T) {
	entries := []IndexEntry{
		{OID: githash.Sum([]byte("a")), CRC: 1, Offset: 12},
		{OID: githash.Sum([]byte("b")), CRC: 2, Offset: 9999999999},
		{OID: githash.Sum([]byte("c")), CRC: 3, Offset: 500},
	}
	packChecksum := githash.Sum([]byte("pack-bytes"))

	var buf bytes.Buffer
	require.NoError(t, WriteIndex(&buf, entries, packChecksum))

	idx, err := ReadIndex(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, len(entries), idx.Count())
	assert.Equal(t, packChecksum, idx.PackChecksum)

	for _, e := range entries {
		got, ok := idx.Find(e.OID)
		require.True(t, ok)
		assert.Equal(t, e.CRC, got.CRC)
		assert.Equal(t, e.Offset, got.Offset)
	}
}

func TestIndexRejectsTamperedChecksum(t *testing.T) {
	entries := []IndexEntry{{OID: githash.Sum([]byte("a")), CRC: 1, Offset: 1}}
	var buf bytes.Buffer
	require.NoError(t, WriteIndex(&buf, entries, githash.ZeroOID))

	tampered := buf.Bytes()
	tampered[len(tampered)-1] ^= 0xff

	_, err := ReadIndex(bytes.NewReader(tampered))
	assert.Error(t, err)
}
