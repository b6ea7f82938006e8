package transport

import (
	"context"
	"crypto/sha1"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
)

// memBackend is a minimal in-memory object.Backend double, content-addressed
// the same way the real loose/pack stores are so ReachableObjects' walk
// produces real, verifiable object ids.
type memBackend struct {
	commits map[githash.OID]*object.Commit
	trees   map[githash.OID]*object.Tree
	blobs   map[githash.OID]*object.Blob
}

func newMemBackend() *memBackend {
	return &memBackend{
		commits: make(map[githash.OID]*object.Commit),
		trees:   make(map[githash.OID]*object.Tree),
		blobs:   make(map[githash.OID]*object.Blob),
	}
}

func (b *memBackend) putBlob(content string) githash.OID {
	blob := &object.Blob{Content: []byte(content)}
	full, err := object.Marshal(blob)
	if err != nil {
		panic(err)
	}
	oid := githash.Sum(full)
	b.blobs[oid] = blob
	return oid
}

func (b *memBackend) putTree(entries ...object.TreeEntry) githash.OID {
	tree := &object.Tree{Entries: entries}
	full, err := object.Marshal(tree)
	if err != nil {
		panic(err)
	}
	oid := githash.Sum(full)
	b.trees[oid] = tree
	return oid
}

func commitOIDForName(name string) githash.OID {
	sum := sha1.Sum([]byte("objectset-test:" + name))
	var oid githash.OID
	copy(oid[:], sum[:])
	return oid
}

func (b *memBackend) addCommit(name string, tree githash.OID, offsetSeconds int64, parents ...githash.OID) githash.OID {
	oid := commitOIDForName(name)
	id := object.Identity{Name: "tester", Email: "tester@example.com", When: time.Unix(offsetSeconds, 0).UTC()}
	b.commits[oid] = &object.Commit{
		Tree:      tree,
		Parents:   parents,
		Author:    id,
		Committer: id,
		Message:   name,
	}
	return oid
}

func (b *memBackend) Commit(_ context.Context, oid githash.OID) (*object.Commit, error) {
	c, ok := b.commits[oid]
	if !ok {
		return nil, plumbing.NewNotFoundError(oid)
	}
	return c, nil
}

func (b *memBackend) Tree(_ context.Context, oid githash.OID) (*object.Tree, error) {
	if oid == object.EmptyTreeOID {
		return &object.Tree{}, nil
	}
	t, ok := b.trees[oid]
	if !ok {
		return nil, plumbing.NewNotFoundError(oid)
	}
	return t, nil
}

func (b *memBackend) Blob(_ context.Context, oid githash.OID) (*object.Blob, error) {
	bl, ok := b.blobs[oid]
	if !ok {
		return nil, plumbing.NewNotFoundError(oid)
	}
	return bl, nil
}

func (b *memBackend) Tag(_ context.Context, oid githash.OID) (*object.Tag, error) {
	return nil, plumbing.NewNotFoundError(oid)
}

func TestReachableObjectsFromEmptyHaves(t *testing.T) {
	backend := newMemBackend()
	blobOID := backend.putBlob("hello\n")
	treeOID := backend.putTree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: blobOID})
	commitOID := backend.addCommit("root", treeOID, 1000)

	objs, err := ReachableObjects(context.Background(), backend, []githash.OID{commitOID}, nil)
	require.NoError(t, err)

	var sawCommit, sawTree, sawBlob bool
	for _, o := range objs {
		switch o.OID {
		case commitOID:
			sawCommit = true
			assert.Equal(t, plumbing.CommitObject, o.Type)
		case treeOID:
			sawTree = true
		case blobOID:
			sawBlob = true
		}
	}
	assert.True(t, sawCommit)
	assert.True(t, sawTree)
	assert.True(t, sawBlob)
}

func TestReachableObjectsExcludesHaveSideEntirely(t *testing.T) {
	backend := newMemBackend()
	blobOID := backend.putBlob("base\n")
	treeOID := backend.putTree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: blobOID})
	base := backend.addCommit("base", treeOID, 1000)

	newBlobOID := backend.putBlob("new\n")
	newTreeOID := backend.putTree(
		object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: blobOID},
		object.TreeEntry{Name: "b.txt", Mode: plumbing.Regular, Hash: newBlobOID},
	)
	tip := backend.addCommit("tip", newTreeOID, 1100, base)

	objs, err := ReachableObjects(context.Background(), backend, []githash.OID{tip}, []githash.OID{base})
	require.NoError(t, err)

	seen := make(map[githash.OID]bool, len(objs))
	for _, o := range objs {
		seen[o.OID] = true
	}
	assert.True(t, seen[tip])
	assert.True(t, seen[newTreeOID])
	assert.True(t, seen[newBlobOID])
	assert.False(t, seen[base])
	assert.False(t, seen[blobOID])
}
