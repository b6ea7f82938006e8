package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
)

type fakeRefStore struct {
	refs map[plumbing.ReferenceName]githash.OID
}

func newFakeRefStore(head plumbing.ReferenceName, oid githash.OID) *fakeRefStore {
	return &fakeRefStore{refs: map[plumbing.ReferenceName]githash.OID{head: oid}}
}

func (r *fakeRefStore) Resolve(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	oid, ok := r.refs[name]
	if !ok {
		return nil, plumbing.ErrRefNotFound
	}
	return plumbing.NewHashReference(name, oid), nil
}

func (r *fakeRefStore) CompareAndSwap(name plumbing.ReferenceName, old, newOID githash.OID) error {
	current, ok := r.refs[name]
	if ok && current != old {
		return &plumbing.StalePriorError{Ref: name, Wanted: old, Current: current}
	}
	if !ok && !old.IsZero() {
		return &plumbing.StalePriorError{Ref: name, Wanted: old, Current: githash.ZeroOID}
	}
	r.refs[name] = newOID
	return nil
}

const testHead plumbing.ReferenceName = "refs/heads/main"

var testCommitter = object.Identity{Name: "tester", Email: "tester@example.com"}

func TestStartFastForward(t *testing.T) {
	b := newFakeBackend()
	blobA := b.blob("a\n")
	tree := b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: blobA})
	root := b.commit(tree, "root")
	tip := b.commit(tree, "tip", root)

	refs := newFakeRefStore(testHead, root)
	result, err := Start(context.Background(), b, b, refs, testHead, tip, testCommitter, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFastForward, result.Outcome)
	assert.Equal(t, tip, result.Commit)

	ref, err := refs.Resolve(testHead)
	require.NoError(t, err)
	assert.Equal(t, tip, ref.Hash())
}

func TestStartUpToDate(t *testing.T) {
	b := newFakeBackend()
	tree := b.tree()
	root := b.commit(tree, "root")
	tip := b.commit(tree, "tip", root)

	refs := newFakeRefStore(testHead, tip)
	result, err := Start(context.Background(), b, b, refs, testHead, root, testCommitter, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpToDate, result.Outcome)
}

func TestStartFastForwardOnlyAbortsWhenDiverged(t *testing.T) {
	b := newFakeBackend()
	treeBase := b.tree()
	root := b.commit(treeBase, "root")

	treeOurs := b.tree(object.TreeEntry{Name: "ours.txt", Mode: plumbing.Regular, Hash: b.blob("ours\n")})
	ours := b.commit(treeOurs, "ours change", root)

	treeTheirs := b.tree(object.TreeEntry{Name: "theirs.txt", Mode: plumbing.Regular, Hash: b.blob("theirs\n")})
	theirs := b.commit(treeTheirs, "theirs change", root)

	refs := newFakeRefStore(testHead, ours)
	cfg := DefaultConfig()
	cfg.FastForwardOnly = true
	_, err := Start(context.Background(), b, b, refs, testHead, theirs, testCommitter, cfg)
	require.Error(t, err)
	var ffErr *plumbing.FastForwardImpossibleError
	assert.ErrorAs(t, err, &ffErr)
}

func TestStartDivergedCleanMergeRequiresContinueMerge(t *testing.T) {
	b := newFakeBackend()
	treeBase := b.tree(object.TreeEntry{Name: "shared.txt", Mode: plumbing.Regular, Hash: b.blob("shared\n")})
	root := b.commit(treeBase, "root")

	treeOurs := b.tree(
		object.TreeEntry{Name: "shared.txt", Mode: plumbing.Regular, Hash: b.blob("shared\n")},
		object.TreeEntry{Name: "ours.txt", Mode: plumbing.Regular, Hash: b.blob("ours\n")},
	)
	ours := b.commit(treeOurs, "ours change", root)

	treeTheirs := b.tree(
		object.TreeEntry{Name: "shared.txt", Mode: plumbing.Regular, Hash: b.blob("shared\n")},
		object.TreeEntry{Name: "theirs.txt", Mode: plumbing.Regular, Hash: b.blob("theirs\n")},
	)
	theirs := b.commit(treeTheirs, "theirs change", root)

	refs := newFakeRefStore(testHead, ours)
	result, err := Start(context.Background(), b, b, refs, testHead, theirs, testCommitter, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, OutcomePending, result.Outcome)
	require.NotNil(t, result.State)
	assert.Empty(t, result.State.Conflicts())

	commitOID, err := result.State.ContinueMerge(context.Background(), testCommitter, "merge theirs into ours")
	require.NoError(t, err)

	ref, err := refs.Resolve(testHead)
	require.NoError(t, err)
	assert.Equal(t, commitOID, ref.Hash())

	mergeCommit, err := b.Commit(context.Background(), commitOID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []githash.OID{ours, theirs}, mergeCommit.Parents)
}

func TestMergeStateResolveAndContinueWithConflict(t *testing.T) {
	b := newFakeBackend()
	treeBase := b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: b.blob("base\n")})
	root := b.commit(treeBase, "root")

	treeOurs := b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: b.blob("ours\n")})
	ours := b.commit(treeOurs, "ours change", root)

	treeTheirs := b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: b.blob("theirs\n")})
	theirs := b.commit(treeTheirs, "theirs change", root)

	refs := newFakeRefStore(testHead, ours)
	result, err := Start(context.Background(), b, b, refs, testHead, theirs, testCommitter, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, OutcomePending, result.Outcome)
	require.Len(t, result.State.Conflicts(), 1)

	err = result.State.Resolve("a.txt", ResolveOurs, nil)
	require.NoError(t, err)
	assert.Empty(t, result.State.Conflicts())

	commitOID, err := result.State.ContinueMerge(context.Background(), testCommitter, "resolve conflict")
	require.NoError(t, err)

	mergedCommit, err := b.Commit(context.Background(), commitOID)
	require.NoError(t, err)
	mergedTree, err := b.Tree(context.Background(), mergedCommit.Tree)
	require.NoError(t, err)
	require.Len(t, mergedTree.Entries, 1)
	assert.Equal(t, "a.txt", mergedTree.Entries[0].Name)

	resolvedBlob, err := b.Blob(context.Background(), mergedTree.Entries[0].Hash)
	require.NoError(t, err)
	assert.Equal(t, "ours\n", string(resolvedBlob.Content))
}

func TestMergeStateContinueMergeFailsWithUnresolvedConflicts(t *testing.T) {
	b := newFakeBackend()
	treeBase := b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: b.blob("base\n")})
	root := b.commit(treeBase, "root")
	ours := b.commit(b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: b.blob("ours\n")}), "ours", root)
	theirs := b.commit(b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: b.blob("theirs\n")}), "theirs", root)

	refs := newFakeRefStore(testHead, ours)
	result, err := Start(context.Background(), b, b, refs, testHead, theirs, testCommitter, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, result.State.Conflicts(), 1)

	_, err = result.State.ContinueMerge(context.Background(), testCommitter, "should fail")
	assert.ErrorIs(t, err, plumbing.ErrConflictUnresolved)
}

func TestStartAutoResolveOursSettlesConflicts(t *testing.T) {
	b := newFakeBackend()
	treeBase := b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: b.blob("base\n")})
	root := b.commit(treeBase, "root")
	ours := b.commit(b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: b.blob("ours\n")}), "ours", root)
	theirs := b.commit(b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: b.blob("theirs\n")}), "theirs", root)

	refs := newFakeRefStore(testHead, ours)
	cfg := DefaultConfig()
	cfg.AutoResolve = true
	cfg.ConflictStrategy = ConflictStrategyOurs

	result, err := Start(context.Background(), b, b, refs, testHead, theirs, testCommitter, cfg)
	require.NoError(t, err)
	require.Equal(t, OutcomeMerged, result.Outcome)

	ref, err := refs.Resolve(testHead)
	require.NoError(t, err)
	assert.Equal(t, result.Commit, ref.Hash())
}

func TestMergeStateResolveCustom(t *testing.T) {
	b := newFakeBackend()
	treeBase := b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: b.blob("base\n")})
	root := b.commit(treeBase, "root")
	ours := b.commit(b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: b.blob("ours\n")}), "ours", root)
	theirs := b.commit(b.tree(object.TreeEntry{Name: "a.txt", Mode: plumbing.Regular, Hash: b.blob("theirs\n")}), "theirs", root)

	refs := newFakeRefStore(testHead, ours)
	result, err := Start(context.Background(), b, b, refs, testHead, theirs, testCommitter, DefaultConfig())
	require.NoError(t, err)

	err = result.State.Resolve("a.txt", ResolveCustom, &CustomResolution{Content: []byte("custom\n"), Mode: plumbing.Regular})
	require.NoError(t, err)
	_, err = result.State.ContinueMerge(context.Background(), testCommitter, "custom resolution")
	require.NoError(t, err)
}
