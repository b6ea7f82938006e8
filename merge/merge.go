package merge

import (
	"bytes"
	"context"
	"fmt"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/history"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
)

// ConflictKind classifies why a path could not be merged cleanly.
type ConflictKind int

const (
	ConflictNone ConflictKind = iota
	ConflictAddAdd
	ConflictDeleteModify
	ConflictModifyDelete
	ConflictContent
	ConflictType
	ConflictBinary
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictNone:
		return "none"
	case ConflictAddAdd:
		return "add/add"
	case ConflictDeleteModify:
		return "delete/modify"
	case ConflictModifyDelete:
		return "modify/delete"
	case ConflictContent:
		return "content"
	case ConflictType:
		return "type"
	case ConflictBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// PathConflict describes one unresolved path after a tree merge attempt.
type PathConflict struct {
	Path    string
	Kind    ConflictKind
	Base    *object.TreeEntry
	Ours    *object.TreeEntry
	Theirs  *object.TreeEntry
	Regions []Region // set only for ConflictContent
}

// Result is the outcome of merging two trees against their base. Entries
// holds every path that merged cleanly, regardless of whether conflicts
// remain elsewhere, so a caller can combine it with resolved conflict
// entries and rebuild the tree without rerunning the merge. Tree is set
// only when Conflicts is empty.
type Result struct {
	Tree      githash.OID
	Entries   []history.IndexEntry
	Conflicts []PathConflict
}

// MergeTrees merges oursTree and theirsTree against baseTree per path,
// following the merge engine's outcome table: unchanged-on-one-side wins
// the other side's version, deletions propagate when the other side left a
// path untouched, and both-sides-changed paths fall to content merge (or a
// named conflict when a content merge isn't meaningful).
func MergeTrees(ctx context.Context, backend object.Backend, put history.Putter, baseTree, oursTree, theirsTree githash.OID) (*Result, error) {
	baseDiff, err := history.TreeDiff(ctx, backend, baseTree, oursTree, history.DiffOptions{})
	if err != nil {
		return nil, fmt.Errorf("merge: diffing ours against base: %w", err)
	}
	theirsDiff, err := history.TreeDiff(ctx, backend, baseTree, theirsTree, history.DiffOptions{})
	if err != nil {
		return nil, fmt.Errorf("merge: diffing theirs against base: %w", err)
	}

	oursByPath := make(map[string]history.DiffEntry, len(baseDiff))
	for _, e := range baseDiff {
		oursByPath[e.Path] = e
	}
	theirsByPath := make(map[string]history.DiffEntry, len(theirsDiff))
	for _, e := range theirsDiff {
		theirsByPath[e.Path] = e
	}

	paths := make(map[string]bool, len(oursByPath)+len(theirsByPath))
	for p := range oursByPath {
		paths[p] = true
	}
	for p := range theirsByPath {
		paths[p] = true
	}

	entries := make([]history.IndexEntry, 0, len(paths))
	var conflicts []PathConflict

	// Paths untouched by either side pass through unmodified from base.
	baseEntries, err := flattenTree(ctx, backend, baseTree, "")
	if err != nil {
		return nil, err
	}
	for path, e := range baseEntries {
		if paths[path] {
			continue
		}
		entries = append(entries, history.IndexEntry{Path: path, Mode: e.Mode, Hash: e.Hash})
	}

	for path := range paths {
		oursChange, inOurs := oursByPath[path]
		theirsChange, inTheirs := theirsByPath[path]

		switch {
		case inOurs && !inTheirs:
			if oursChange.Type != history.Deleted {
				entries = append(entries, history.IndexEntry{Path: path, Mode: oursChange.NewMode, Hash: oursChange.NewHash})
			}
			// Deleted on ours, untouched on theirs: path is simply absent.

		case !inOurs && inTheirs:
			if theirsChange.Type != history.Deleted {
				entries = append(entries, history.IndexEntry{Path: path, Mode: theirsChange.NewMode, Hash: theirsChange.NewHash})
			}

		default:
			entry, conflict, err := mergePath(ctx, backend, put, path, oursChange, theirsChange)
			if err != nil {
				return nil, err
			}
			if conflict != nil {
				// A delete paired with a modify is a file/directory clash when
				// the deleting side put a directory of the same name in its place.
				if conflict.Kind == ConflictModifyDelete || conflict.Kind == ConflictDeleteModify {
					for p := range paths {
						if len(p) > len(path) && p[:len(path)+1] == path+"/" {
							conflict.Kind = ConflictType
							break
						}
					}
				}
				conflicts = append(conflicts, *conflict)
				continue
			}
			if entry != nil {
				entries = append(entries, *entry)
			}
		}
	}

	if len(conflicts) > 0 {
		return &Result{Entries: entries, Conflicts: conflicts}, nil
	}

	treeOID, err := history.BuildTree(put, entries)
	if err != nil {
		return nil, fmt.Errorf("merge: building merged tree: %w", err)
	}
	return &Result{Tree: treeOID, Entries: entries}, nil
}

// mergePath resolves one path both sides changed relative to base, per the
// outcome table: identical resulting hashes are trivially clean; an
// add/add, delete/modify, or modify/delete pairing is a named conflict; two
// differing modifications of different kinds are a type conflict, binary
// content is a binary conflict, and text blobs of the same kind fall to
// content merge, which reports a content conflict when the edits overlap.
func mergePath(ctx context.Context, backend object.Backend, put history.Putter, path string, ours, theirs history.DiffEntry) (*history.IndexEntry, *PathConflict, error) {
	oursEntry := &object.TreeEntry{Name: path, Mode: ours.NewMode, Hash: ours.NewHash}
	theirsEntry := &object.TreeEntry{Name: path, Mode: theirs.NewMode, Hash: theirs.NewHash}
	var baseEntry *object.TreeEntry
	if ours.OldHash != githash.ZeroOID {
		baseEntry = &object.TreeEntry{Name: path, Mode: ours.OldMode, Hash: ours.OldHash}
	}
	conflict := func(kind ConflictKind) *PathConflict {
		return &PathConflict{Path: path, Kind: kind, Base: baseEntry, Ours: oursEntry, Theirs: theirsEntry}
	}

	if ours.NewHash == theirs.NewHash && ours.NewMode == theirs.NewMode && ours.Type != history.Deleted {
		return &history.IndexEntry{Path: path, Mode: ours.NewMode, Hash: ours.NewHash}, nil, nil
	}

	if ours.Type == history.Deleted && theirs.Type == history.Deleted {
		return nil, nil, nil
	}
	if ours.Type == history.Deleted {
		return nil, conflict(ConflictDeleteModify), nil
	}
	if theirs.Type == history.Deleted {
		return nil, conflict(ConflictModifyDelete), nil
	}

	if ours.Type == history.Added && theirs.Type == history.Added {
		return nil, conflict(ConflictAddAdd), nil
	}

	if ours.NewMode.IsDir() != theirs.NewMode.IsDir() || entryKindOf(ours.NewMode) != entryKindOf(theirs.NewMode) {
		return nil, conflict(ConflictType), nil
	}

	oursBlob, err := backend.Blob(ctx, ours.NewHash)
	if err != nil {
		return nil, nil, err
	}
	theirsBlob, err := backend.Blob(ctx, theirs.NewHash)
	if err != nil {
		return nil, nil, err
	}

	var baseLines []string
	if baseEntry != nil {
		baseBlob, err := backend.Blob(ctx, ours.OldHash)
		if err != nil {
			return nil, nil, err
		}
		if isBinary(baseBlob.Content) || isBinary(oursBlob.Content) || isBinary(theirsBlob.Content) {
			return nil, conflict(ConflictBinary), nil
		}
		baseLines = history.SplitLines(baseBlob.Content)
	} else if isBinary(oursBlob.Content) || isBinary(theirsBlob.Content) {
		return nil, conflict(ConflictBinary), nil
	}

	oursLines := history.SplitLines(oursBlob.Content)
	theirsLines := history.SplitLines(theirsBlob.Content)
	regions := MergeText(baseLines, oursLines, theirsLines)
	if HasConflict(regions) {
		c := conflict(ConflictContent)
		c.Regions = regions
		return nil, c, nil
	}

	merged := []byte(joinLines(Render(regions)))
	blob := &object.Blob{Content: merged}
	oid, err := put.Put(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("merge: writing merged blob for %s: %w", path, err)
	}
	mode := ours.NewMode
	return &history.IndexEntry{Path: path, Mode: mode, Hash: oid}, nil, nil
}

func joinLines(lines []string) string {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.String()
}

func entryKindOf(m plumbing.FileMode) int {
	switch m {
	case plumbing.Symlink:
		return 1
	case plumbing.Submodule:
		return 2
	default:
		return 0
	}
}

func isBinary(data []byte) bool {
	limit := len(data)
	if limit > 8192 {
		limit = 8192
	}
	return bytes.IndexByte(data[:limit], 0) != -1
}

func flattenTree(ctx context.Context, backend object.Backend, oid githash.OID, prefix string) (map[string]object.TreeEntry, error) {
	out := make(map[string]object.TreeEntry)
	if oid == githash.ZeroOID {
		return out, nil
	}
	t, err := backend.Tree(ctx, oid)
	if err != nil {
		if plumbing.IsNotFound(err) {
			return out, nil
		}
		return nil, err
	}
	for _, e := range t.Entries {
		path := e.Name
		if prefix != "" {
			path = prefix + "/" + e.Name
		}
		if e.Mode.IsDir() {
			sub, err := flattenTree(ctx, backend, e.Hash, path)
			if err != nil {
				return nil, err
			}
			for k, v := range sub {
				out[k] = v
			}
			continue
		}
		out[path] = e
	}
	return out, nil
}
