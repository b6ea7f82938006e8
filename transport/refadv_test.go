package transport

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
	"github.com/vcsforge/gitcore/transport/pktline"
)

type fakeRefLister struct {
	refs map[plumbing.ReferenceName]*plumbing.Reference
	list plumbing.ReferenceSlice
}

func (f *fakeRefLister) List() (plumbing.ReferenceSlice, error) { return f.list, nil }

func (f *fakeRefLister) Resolve(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	r, ok := f.refs[name]
	if !ok {
		return nil, plumbing.ErrObjectNotFound
	}
	return r, nil
}

type fakeBackend struct{}

func (fakeBackend) Commit(context.Context, githash.OID) (*object.Commit, error) { return nil, plumbing.ErrObjectNotFound }
func (fakeBackend) Tree(context.Context, githash.OID) (*object.Tree, error)     { return nil, plumbing.ErrObjectNotFound }
func (fakeBackend) Blob(context.Context, githash.OID) (*object.Blob, error)     { return nil, plumbing.ErrObjectNotFound }
func (fakeBackend) Tag(context.Context, githash.OID) (*object.Tag, error)       { return nil, plumbing.ErrObjectNotFound }

func TestAdvertiseListsConcreteRefs(t *testing.T) {
	oid := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	main := plumbing.NewHashReference("refs/heads/main", oid)
	lister := &fakeRefLister{
		refs: map[plumbing.ReferenceName]*plumbing.Reference{"refs/heads/main": main},
		list: plumbing.ReferenceSlice{main},
	}

	refs, err := Advertise(context.Background(), lister, fakeBackend{})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, oid, refs[0].OID)
	assert.Equal(t, plumbing.ReferenceName("refs/heads/main"), refs[0].Name)
	assert.Equal(t, githash.ZeroOID, refs[0].PeeledOID)
}

func TestAdvertiseSkipsUnresolvableSymbolic(t *testing.T) {
	head := plumbing.NewSymbolicReference("HEAD", "refs/heads/main")
	lister := &fakeRefLister{
		refs: map[plumbing.ReferenceName]*plumbing.Reference{},
		list: plumbing.ReferenceSlice{head},
	}

	refs, err := Advertise(context.Background(), lister, fakeBackend{})
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestWriteRefAdvertisementEmptyRepo(t *testing.T) {
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf)
	require.NoError(t, WriteRefAdvertisement(w, nil, CapList{"agent": "gitcore/1.0"}))

	r := pktline.NewReader(&buf)
	lines, err := r.ReadLines()
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, string(lines[0]), "capabilities^{}")
	assert.Contains(t, string(lines[0]), "agent=gitcore/1.0")
}

func TestWriteRefAdvertisementWithRefsAndPeeledTag(t *testing.T) {
	oid := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	target := githash.MustFromHex("b45ef6fec89518d314f546fd6c3025367b721684")
	refs := []AdvertisedRef{
		{OID: oid, Name: "refs/heads/main"},
		{OID: oid, Name: "refs/tags/v1", PeeledOID: target},
	}

	var buf bytes.Buffer
	w := pktline.NewWriter(&buf)
	require.NoError(t, WriteRefAdvertisement(w, refs, CapList{}))

	r := pktline.NewReader(&buf)
	lines, err := r.ReadLines()
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "refs/heads/main")
	assert.Contains(t, string(lines[1]), "refs/tags/v1")
	assert.Contains(t, string(lines[2]), "refs/tags/v1^{}")
}
