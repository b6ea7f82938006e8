package history

import (
	"sort"
	"strings"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
)

// IndexEntry is one flat path->blob mapping to assemble into a tree, the
// shape a staging index or a checkout hands to BuildTree.
type IndexEntry struct {
	Path string
	Mode plumbing.FileMode
	Hash githash.OID
}

// Putter is the minimal write side BuildTree needs: hash-and-store a Tree
// object, returning its id.
type Putter interface {
	Put(obj object.Object) (githash.OID, error)
}

// treeNode is one directory level while BuildTree groups flat entries.
type treeNode struct {
	files map[string]IndexEntry
	dirs  map[string]*treeNode
}

func newTreeNode() *treeNode {
	return &treeNode{files: make(map[string]IndexEntry), dirs: make(map[string]*treeNode)}
}

// BuildTree groups entries into directories by path and recursively emits
// one Tree object per directory level, deduplicating identical subtrees by
// id: two directories with byte-identical contents are written once and
// shared by both parent trees.
func BuildTree(put Putter, entries []IndexEntry) (githash.OID, error) {
	root := newTreeNode()
	for _, e := range entries {
		parts := strings.Split(e.Path, "/")
		node := root
		for _, dir := range parts[:len(parts)-1] {
			child, ok := node.dirs[dir]
			if !ok {
				child = newTreeNode()
				node.dirs[dir] = child
			}
			node = child
		}
		node.files[parts[len(parts)-1]] = IndexEntry{Path: parts[len(parts)-1], Mode: e.Mode, Hash: e.Hash}
	}

	cache := make(map[githash.OID]bool)
	return writeTreeNode(put, root, cache)
}

func writeTreeNode(put Putter, node *treeNode, cache map[githash.OID]bool) (githash.OID, error) {
	var entries []object.TreeEntry
	for name, f := range node.files {
		entries = append(entries, object.TreeEntry{Name: name, Mode: f.Mode, Hash: f.Hash})
	}
	names := make([]string, 0, len(node.dirs))
	for name := range node.dirs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		childOID, err := writeTreeNode(put, node.dirs[name], cache)
		if err != nil {
			return githash.ZeroOID, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: plumbing.Dir, Hash: childOID})
	}

	t := &object.Tree{Entries: entries}
	full, err := object.Marshal(t)
	if err != nil {
		return githash.ZeroOID, err
	}
	oid := githash.Sum(full)
	if cache[oid] {
		return oid, nil
	}
	if _, err := put.Put(t); err != nil {
		return githash.ZeroOID, err
	}
	cache[oid] = true
	return oid, nil
}
