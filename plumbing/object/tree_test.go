package object

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

func TestEmptyTreeHash(t *testing.T) {
	tr := &Tree{}
	oid, err := Hash(tr)
	require.NoError(t, err)
	assert.Equal(t, EmptyTreeOID, oid)
}

func TestTreeCanonicalSortDirVsFile(t *testing.T) {
	id := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	tr := &Tree{Entries: []TreeEntry{
		{Name: "foo.txt", Mode: plumbing.Regular, Hash: id},
		{Name: "foo", Mode: plumbing.Dir, Hash: id},
	}}
	var buf bytes.Buffer
	require.NoError(t, tr.Encode(&buf))

	var decoded Tree
	require.NoError(t, decoded.Decode(buf.Bytes()))
	require.Len(t, decoded.Entries, 2)
	assert.Equal(t, "foo.txt", decoded.Entries[0].Name)
	assert.Equal(t, "foo", decoded.Entries[1].Name)
}

func TestTreeEncodeUsesUnpaddedDirMode(t *testing.T) {
	id := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	tr := &Tree{Entries: []TreeEntry{{Name: "d", Mode: plumbing.Dir, Hash: id}}}
	var buf bytes.Buffer
	require.NoError(t, tr.Encode(&buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("40000 d\x00")))
}

func TestTreeRejectsDuplicateNames(t *testing.T) {
	id := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	tr := &Tree{Entries: []TreeEntry{
		{Name: "a", Mode: plumbing.Regular, Hash: id},
		{Name: "a", Mode: plumbing.Regular, Hash: id},
	}}
	assert.Error(t, tr.Validate())
}

func TestTreeFind(t *testing.T) {
	id := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	tr := &Tree{Entries: []TreeEntry{{Name: "a", Mode: plumbing.Regular, Hash: id}}}
	e, ok := tr.Find("a")
	require.True(t, ok)
	assert.Equal(t, id, e.Hash)
	_, ok = tr.Find("missing")
	assert.False(t, ok)
}
