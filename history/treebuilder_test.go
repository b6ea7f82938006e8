package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/plumbing"
)

func TestBuildTreeNestsByPath(t *testing.T) {
	backend := newFakeBackend()
	blobA := backend.putBlob("package a\n")
	blobB := backend.putBlob("package b\n")
	blobReadme := backend.putBlob("# project\n")

	root, err := BuildTree(backend, []IndexEntry{
		{Path: "README.md", Mode: plumbing.Regular, Hash: blobReadme},
		{Path: "pkg/a/a.go", Mode: plumbing.Regular, Hash: blobA},
		{Path: "pkg/b/b.go", Mode: plumbing.Regular, Hash: blobB},
	})
	require.NoError(t, err)

	tree, err := backend.Tree(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, tree.Entries, 2)

	readmeEntry, ok := tree.Find("README.md")
	require.True(t, ok)
	assert.Equal(t, blobReadme, readmeEntry.Hash)

	pkgEntry, ok := tree.Find("pkg")
	require.True(t, ok)
	assert.True(t, pkgEntry.Mode.IsDir())

	pkgTree, err := backend.Tree(context.Background(), pkgEntry.Hash)
	require.NoError(t, err)
	require.Len(t, pkgTree.Entries, 2)

	aDirEntry, ok := pkgTree.Find("a")
	require.True(t, ok)
	aTree, err := backend.Tree(context.Background(), aDirEntry.Hash)
	require.NoError(t, err)
	aFileEntry, ok := aTree.Find("a.go")
	require.True(t, ok)
	assert.Equal(t, blobA, aFileEntry.Hash)
}

func TestBuildTreeDedupsIdenticalSubtrees(t *testing.T) {
	backend := newFakeBackend()
	blob := backend.putBlob("shared content\n")

	root, err := BuildTree(backend, []IndexEntry{
		{Path: "a/file.txt", Mode: plumbing.Regular, Hash: blob},
		{Path: "b/file.txt", Mode: plumbing.Regular, Hash: blob},
	})
	require.NoError(t, err)

	tree, err := backend.Tree(context.Background(), root)
	require.NoError(t, err)

	aEntry, ok := tree.Find("a")
	require.True(t, ok)
	bEntry, ok := tree.Find("b")
	require.True(t, ok)

	assert.Equal(t, aEntry.Hash, bEntry.Hash, "identical subtree content must hash and write identically")
}
