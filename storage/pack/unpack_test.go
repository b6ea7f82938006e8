package pack

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

func canonicalHeader(typ plumbing.ObjectType, payload []byte) []byte {
	return fmt.Appendf(nil, "%s %d\x00%s", typ, len(payload), payload)
}

func TestUnpackRoundTripsWriter(t *testing.T) {
	objs := []SourceObject{
		{Type: plumbing.BlobObject, Payload: []byte("hello\n")},
		{Type: plumbing.BlobObject, Payload: []byte("hello world\n")},
		{Type: plumbing.BlobObject, Payload: []byte("a completely different blob\n")},
	}
	for i := range objs {
		objs[i].OID = githash.Sum(canonicalHeader(objs[i].Type, objs[i].Payload))
	}

	var buf bytes.Buffer
	_, sum, err := Write(context.Background(), &buf, objs, WriteOptions{})
	require.NoError(t, err)

	out, gotSum, err := Unpack(buf.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, sum, gotSum)
	require.Len(t, out, len(objs))

	byOID := make(map[githash.OID]UnpackedObject, len(out))
	for _, o := range out {
		byOID[o.OID] = o
	}
	for _, want := range objs {
		got, ok := byOID[want.OID]
		require.True(t, ok, "missing object %s", want.OID)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.Payload, got.Payload)
	}
}

func TestUnpackRejectsTamperedChecksum(t *testing.T) {
	objs := []SourceObject{{Type: plumbing.BlobObject, Payload: []byte("x\n")}}
	objs[0].OID = githash.Sum(canonicalHeader(objs[0].Type, objs[0].Payload))

	var buf bytes.Buffer
	_, _, err := Write(context.Background(), &buf, objs, WriteOptions{})
	require.NoError(t, err)

	data := buf.Bytes()
	data[len(data)-1] ^= 0xff
	_, _, err = Unpack(data, nil)
	assert.ErrorIs(t, err, plumbing.ErrChecksumMismatch)
}
