package loose

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

func TestStorePutGetRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	full := []byte("blob 13\x00Hello, World!")
	oid := githash.Sum(full)

	require.NoError(t, s.Put(oid, full))
	assert.True(t, s.Has(oid))

	got, err := s.Get(oid)
	require.NoError(t, err)
	assert.Equal(t, full, got)
}

func TestStorePutIsIdempotent(t *testing.T) {
	s := NewStore(t.TempDir())
	full := []byte("blob 5\x00hello")
	oid := githash.Sum(full)
	require.NoError(t, s.Put(oid, full))
	require.NoError(t, s.Put(oid, full))
	got, err := s.Get(oid)
	require.NoError(t, err)
	assert.Equal(t, full, got)
}

func TestStoreGetMissingReturnsNotFound(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Get(githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904"))
	assert.True(t, plumbing.IsNotFound(err))
}

func TestStorePathLayout(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	oid := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	want := filepath.Join(root, "4b", "825dc642cb6eb9a060e54bf8d69288fbee4904")
	assert.Equal(t, want, s.Path(oid))
}

func TestStoreWalk(t *testing.T) {
	s := NewStore(t.TempDir())
	full1 := []byte("blob 5\x00hello")
	full2 := []byte("blob 5\x00world")
	oid1 := githash.Sum(full1)
	oid2 := githash.Sum(full2)
	require.NoError(t, s.Put(oid1, full1))
	require.NoError(t, s.Put(oid2, full2))

	seen := map[githash.OID]bool{}
	require.NoError(t, s.Walk(func(oid githash.OID) error {
		seen[oid] = true
		return nil
	}))
	assert.True(t, seen[oid1])
	assert.True(t, seen[oid2])
	assert.Len(t, seen, 2)
}
