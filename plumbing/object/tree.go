package object

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

var ErrMaxTreeDepth = errors.New("object: maximum tree depth exceeded")

// TreeEntry is one directory entry: a name, its mode, and the object it
// points at (a Blob, another Tree, or — for a submodule — a foreign commit
// id this repository doesn't itself resolve).
type TreeEntry struct {
	Name string
	Mode plumbing.FileMode
	Hash githash.OID
}

// Tree is an ordered sequence of entries. Names are unique within a tree.
type Tree struct {
	Entries []TreeEntry
}

func (t *Tree) Type() plumbing.ObjectType { return plumbing.TreeObject }

// sortKey is Git's tree entry comparison key: the entry name with "/"
// appended when the entry is a directory, compared byte-wise. This is what
// makes a directory "foo" sort after "foo.txt" ('/' > '.'), while a file
// "foo" sorts before it.
func sortKey(e TreeEntry) string {
	if e.Mode == plumbing.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// Sort reorders Entries into the canonical order used on Encode.
func (t *Tree) Sort() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return sortKey(t.Entries[i]) < sortKey(t.Entries[j])
	})
}

// Validate checks the structural rules a tree must satisfy: unique names,
// no "/" or NUL in a name (submodules may use "/" only in display
// contexts, not in the stored name), and a mode drawn from the closed set.
func (t *Tree) Validate() error {
	seen := make(map[string]bool, len(t.Entries))
	for _, e := range t.Entries {
		if !e.Mode.IsValid() {
			return fmt.Errorf("%w: %06o", plumbing.ErrInvalidMode, uint32(e.Mode))
		}
		if e.Name == "" || strings.ContainsRune(e.Name, '/') || strings.ContainsRune(e.Name, 0) {
			return fmt.Errorf("%w: invalid entry name %q", plumbing.ErrCorruptObject, e.Name)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: duplicate entry name %q", plumbing.ErrCorruptObject, e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// Encode writes the tree canonically sorted, regardless of the order
// Entries happens to be in: "<mode> <name>\0<20-byte-id>" repeated.
func (t *Tree) Encode(w io.Writer) error {
	if err := t.Validate(); err != nil {
		return err
	}
	sorted := make([]TreeEntry, len(t.Entries))
	copy(sorted, t.Entries)
	sort.Slice(sorted, func(i, j int) bool { return sortKey(sorted[i]) < sortKey(sorted[j]) })

	for _, e := range sorted {
		if _, err := fmt.Fprintf(w, "%s %s\x00", e.Mode.TreeFormat(), e.Name); err != nil {
			return err
		}
		if _, err := w.Write(e.Hash[:]); err != nil {
			return err
		}
	}
	return nil
}

// Decode parses a tree's raw payload. Entries are accepted in file order
// (already canonical in valid objects; re-sorting on read is not required),
// but bad structure is still rejected.
func (t *Tree) Decode(payload []byte) error {
	t.Entries = t.Entries[:0]
	for len(payload) > 0 {
		sp := bytes.IndexByte(payload, ' ')
		if sp < 0 {
			return fmt.Errorf("%w: tree entry missing mode separator", plumbing.ErrCorruptObject)
		}
		mode, err := plumbing.ParseFileMode(string(payload[:sp]))
		if err != nil {
			return err
		}
		nul := bytes.IndexByte(payload[sp+1:], 0)
		if nul < 0 {
			return fmt.Errorf("%w: tree entry missing NUL", plumbing.ErrCorruptObject)
		}
		name := string(payload[sp+1 : sp+1+nul])
		rest := payload[sp+1+nul+1:]
		if len(rest) < githash.Size {
			return fmt.Errorf("%w: truncated tree entry id", plumbing.ErrCorruptObject)
		}
		var oid githash.OID
		copy(oid[:], rest[:githash.Size])
		t.Entries = append(t.Entries, TreeEntry{Name: name, Mode: mode, Hash: oid})
		payload = rest[githash.Size:]
	}
	return t.Validate()
}

// Find looks up an entry by exact name, returning (entry, true) or the
// zero value and false.
func (t *Tree) Find(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// EmptyTreeOID is the well-known id of the tree with zero entries:
// SHA-1 of "tree 0\0".
var EmptyTreeOID = githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
