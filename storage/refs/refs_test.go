package refs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

func TestCompareAndSwapCreatesRef(t *testing.T) {
	s := NewStore(t.TempDir())
	oid := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	require.NoError(t, s.CompareAndSwap("refs/heads/main", githash.ZeroOID, oid))

	ref, err := s.Get("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, oid, ref.Hash())
}

func TestCompareAndSwapRejectsStalePrior(t *testing.T) {
	s := NewStore(t.TempDir())
	oid1 := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	oid2 := githash.MustFromHex("b45ef6fec89518d314f546fd6c3025367b721684")
	require.NoError(t, s.CompareAndSwap("refs/heads/main", githash.ZeroOID, oid1))

	err := s.CompareAndSwap("refs/heads/main", githash.ZeroOID, oid2)
	var stale *plumbing.StalePriorError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, oid1, stale.Current)
}

func TestResolveFollowsSymbolicHEAD(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	oid := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	require.NoError(t, s.CompareAndSwap("refs/heads/main", githash.ZeroOID, oid))
	require.NoError(t, s.SetSymbolic("HEAD", "refs/heads/main"))

	ref, err := s.Resolve("HEAD")
	require.NoError(t, err)
	assert.Equal(t, oid, ref.Hash())
}

func TestResolveDetectsCircularReference(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "HEAD"), []byte("ref: LOOP\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "LOOP"), []byte("ref: HEAD\n"), 0o644))

	s := NewStore(root)
	_, err := s.Resolve("HEAD")
	assert.ErrorIs(t, err, plumbing.ErrCircularRef)
}

func TestRemoveDeletesLooseRef(t *testing.T) {
	s := NewStore(t.TempDir())
	oid := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	require.NoError(t, s.CompareAndSwap("refs/heads/main", githash.ZeroOID, oid))
	require.NoError(t, s.Remove("refs/heads/main"))

	_, err := s.Get("refs/heads/main")
	assert.ErrorIs(t, err, plumbing.ErrRefNotFound)
}

func TestPackMovesLooseRefsIntoPackedRefs(t *testing.T) {
	s := NewStore(t.TempDir())
	oid := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	require.NoError(t, s.CompareAndSwap("refs/heads/main", githash.ZeroOID, oid))
	require.NoError(t, s.Pack())

	_, err := s.ReadLoose("refs/heads/main")
	assert.ErrorIs(t, err, plumbing.ErrRefNotFound)

	ref, err := s.ReadPacked("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, oid, ref.Hash())
}

func TestStaleLockIsStolen(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	lockPath := filepath.Join(root, "refs", "heads", "main.lock")
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0o755))
	require.NoError(t, os.WriteFile(lockPath, []byte{}, 0o644))
	oldTime := time.Now().Add(-2 * staleLockAge)
	require.NoError(t, os.Chtimes(lockPath, oldTime, oldTime))

	oid := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	require.NoError(t, s.CompareAndSwap("refs/heads/main", githash.ZeroOID, oid))
}

func TestListSortsLooseRefsByName(t *testing.T) {
	s := NewStore(t.TempDir())
	oid1 := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	oid2 := githash.MustFromHex("b45ef6fec89518d314f546fd6c3025367b721684")
	require.NoError(t, s.CompareAndSwap("refs/heads/a", githash.ZeroOID, oid1))
	require.NoError(t, s.CompareAndSwap("refs/heads/b", githash.ZeroOID, oid2))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, plumbing.ReferenceName("refs/heads/a"), list[0].Name())
	assert.Equal(t, plumbing.ReferenceName("refs/heads/b"), list[1].Name())
}
