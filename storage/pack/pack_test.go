package pack

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

type readerAtBytes []byte

func (r readerAtBytes) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r)) {
		return 0, io.EOF
	}
	n := copy(p, r[off:])
	var err error
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}

func TestWriteAndReadPackRoundTrip(t *testing.T) {
	objs := []SourceObject{
		{OID: githash.Sum([]byte("blob 5\x00hello")), Type: plumbing.BlobObject, Payload: []byte("hello")},
		{OID: githash.Sum([]byte("blob 11\x00hello world")), Type: plumbing.BlobObject, Payload: []byte("hello world")},
		{OID: githash.Sum([]byte("blob 17\x00hello world there!")), Type: plumbing.BlobObject, Payload: []byte("hello world there!")},
	}

	var packBuf bytes.Buffer
	entries, packSum, err := Write(context.Background(), &packBuf, objs, WriteOptions{})
	require.NoError(t, err)
	require.Len(t, entries, len(objs))

	require.NoError(t, VerifyTrailer(packBuf.Bytes()))

	var idxBuf bytes.Buffer
	require.NoError(t, WriteIndex(&idxBuf, entries, packSum))
	idx, err := ReadIndex(bytes.NewReader(idxBuf.Bytes()))
	require.NoError(t, err)

	reader := NewReader(readerAtBytes(packBuf.Bytes()), idx)
	for _, obj := range objs {
		typ, payload, err := reader.ResolveOID(obj.OID)
		require.NoError(t, err)
		assert.Equal(t, obj.Type, typ)
		assert.Equal(t, obj.Payload, payload)
	}
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader([]byte("NOPE12345678")))
	assert.Error(t, err)
}
