package history

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
)

// ChangeType classifies one path's change between two trees.
type ChangeType int

const (
	Added ChangeType = iota
	Deleted
	Modified
	TypeChanged
	Renamed
	Copied
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case Modified:
		return "modified"
	case TypeChanged:
		return "typechanged"
	case Renamed:
		return "renamed"
	case Copied:
		return "copied"
	default:
		return "unknown"
	}
}

// DiffEntry is one path-level change produced by TreeDiff.
type DiffEntry struct {
	Path       string
	OldPath    string // set only for Renamed/Copied
	Type       ChangeType
	OldMode    plumbing.FileMode
	NewMode    plumbing.FileMode
	OldHash    githash.OID
	NewHash    githash.OID
	Similarity float64 // set only for Renamed/Copied
}

// DiffOptions tunes TreeDiff's optional rename/copy pass.
type DiffOptions struct {
	DetectRenames       bool
	SimilarityThreshold float64 // default 0.5 when zero
}

func (o DiffOptions) withDefaults() DiffOptions {
	if o.SimilarityThreshold == 0 {
		o.SimilarityThreshold = 0.5
	}
	return o
}

// TreeDiff classifies every path that differs between oldTree and newTree.
// A zero OID tree side is treated as empty (root-commit diff). Subtrees are
// visited in no particular order and the result is sorted by path;
// identical subtree ids are skipped without descending.
func TreeDiff(ctx context.Context, backend object.Backend, oldTree, newTree githash.OID, opts DiffOptions) ([]DiffEntry, error) {
	opts = opts.withDefaults()
	var entries []DiffEntry
	if err := treeDiffWalk(ctx, backend, oldTree, newTree, "", &entries); err != nil {
		return nil, err
	}
	if opts.DetectRenames {
		entries = detectRenamesAndCopies(ctx, backend, entries, opts.SimilarityThreshold)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func treeDiffWalk(ctx context.Context, backend object.Backend, oldOID, newOID githash.OID, prefix string, out *[]DiffEntry) error {
	if oldOID == newOID {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	oldEntries, err := loadTreeEntries(ctx, backend, oldOID)
	if err != nil {
		return err
	}
	newEntries, err := loadTreeEntries(ctx, backend, newOID)
	if err != nil {
		return err
	}

	names := make(map[string]bool, len(oldEntries)+len(newEntries))
	for n := range oldEntries {
		names[n] = true
	}
	for n := range newEntries {
		names[n] = true
	}

	for name := range names {
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}
		oe, inOld := oldEntries[name]
		ne, inNew := newEntries[name]

		switch {
		case !inOld && inNew:
			if err := emitAdded(ctx, backend, ne, path, out); err != nil {
				return err
			}
		case inOld && !inNew:
			if err := emitDeleted(ctx, backend, oe, path, out); err != nil {
				return err
			}
		case oe.Hash == ne.Hash && oe.Mode == ne.Mode:
			// unchanged
		case oe.Mode.IsDir() && ne.Mode.IsDir():
			if err := treeDiffWalk(ctx, backend, oe.Hash, ne.Hash, path, out); err != nil {
				return err
			}
		case oe.Mode.IsDir() || ne.Mode.IsDir():
			// A directory replaced a file or vice versa: the whole subtree
			// on the dir side is a fresh add/delete, not one typechange
			// record, since a directory carries no content of its own.
			if err := emitDeleted(ctx, backend, oe, path, out); err != nil {
				return err
			}
			if err := emitAdded(ctx, backend, ne, path, out); err != nil {
				return err
			}
		case entryKind(oe.Mode) != entryKind(ne.Mode):
			*out = append(*out, DiffEntry{
				Path:    path,
				Type:    TypeChanged,
				OldMode: oe.Mode,
				NewMode: ne.Mode,
				OldHash: oe.Hash,
				NewHash: ne.Hash,
			})
		default:
			*out = append(*out, DiffEntry{
				Path:    path,
				Type:    Modified,
				OldMode: oe.Mode,
				NewMode: ne.Mode,
				OldHash: oe.Hash,
				NewHash: ne.Hash,
			})
		}
	}
	return nil
}

func emitAdded(ctx context.Context, backend object.Backend, e object.TreeEntry, path string, out *[]DiffEntry) error {
	if e.Mode.IsDir() {
		return treeDiffWalk(ctx, backend, githash.ZeroOID, e.Hash, path, out)
	}
	*out = append(*out, DiffEntry{Path: path, Type: Added, NewMode: e.Mode, NewHash: e.Hash})
	return nil
}

func emitDeleted(ctx context.Context, backend object.Backend, e object.TreeEntry, path string, out *[]DiffEntry) error {
	if e.Mode.IsDir() {
		return treeDiffWalk(ctx, backend, e.Hash, githash.ZeroOID, path, out)
	}
	*out = append(*out, DiffEntry{Path: path, Type: Deleted, OldMode: e.Mode, OldHash: e.Hash})
	return nil
}

// entryKind groups a non-directory mode into the coarse kind TypeChanged
// cares about: a mode-only change (e.g. Regular<->Executable) is a content
// Modified, not a TypeChanged.
func entryKind(m plumbing.FileMode) int {
	switch m {
	case plumbing.Symlink:
		return 1
	case plumbing.Submodule:
		return 2
	default:
		return 0
	}
}

func loadTreeEntries(ctx context.Context, backend object.Backend, oid githash.OID) (map[string]object.TreeEntry, error) {
	if oid == githash.ZeroOID {
		return nil, nil
	}
	t, err := backend.Tree(ctx, oid)
	if err != nil {
		return nil, fmt.Errorf("history: loading tree %s: %w", oid, err)
	}
	m := make(map[string]object.TreeEntry, len(t.Entries))
	for _, e := range t.Entries {
		m[e.Name] = e
	}
	return m, nil
}

// detectRenamesAndCopies pairs up unmatched Added/Deleted entries whose blob
// content similarity clears threshold, turning the pair into a single
// Renamed entry; each deleted entry pairs with at most one added entry.
// Copies are not detected: no entry is ever marked Copied. This is a
// thresholded heuristic, not Git's exact rename detector.
func detectRenamesAndCopies(ctx context.Context, backend object.Backend, entries []DiffEntry, threshold float64) []DiffEntry {
	var deleted, added, rest []DiffEntry
	for _, e := range entries {
		switch e.Type {
		case Deleted:
			deleted = append(deleted, e)
		case Added:
			added = append(added, e)
		default:
			rest = append(rest, e)
		}
	}
	if len(deleted) == 0 || len(added) == 0 {
		return entries
	}

	used := make(map[int]bool, len(deleted))
	var out []DiffEntry
	out = append(out, rest...)

	for ai, a := range added {
		bestIdx, bestScore := -1, threshold
		for di, d := range deleted {
			if used[di] {
				continue
			}
			score := blobSimilarity(ctx, backend, d.OldHash, a.NewHash)
			if score >= bestScore {
				bestScore, bestIdx = score, di
			}
		}
		if bestIdx < 0 {
			out = append(out, added[ai])
			continue
		}
		used[bestIdx] = true
		out = append(out, DiffEntry{
			Path:       a.Path,
			OldPath:    deleted[bestIdx].Path,
			Type:       Renamed,
			OldMode:    deleted[bestIdx].OldMode,
			NewMode:    a.NewMode,
			OldHash:    deleted[bestIdx].OldHash,
			NewHash:    a.NewHash,
			Similarity: bestScore,
		})
	}
	for di, d := range deleted {
		if !used[di] {
			out = append(out, d)
		}
	}
	return out
}

// blobSimilarity scores two blobs by the fraction of lines they share,
// using a line-set overlap rather than an LCS alignment — cheap enough to
// run over every Added×Deleted pair and stable under line reordering.
func blobSimilarity(ctx context.Context, backend object.Backend, a, b githash.OID) float64 {
	if a == githash.ZeroOID || b == githash.ZeroOID {
		return 0
	}
	ba, err := backend.Blob(ctx, a)
	if err != nil {
		return 0
	}
	bb, err := backend.Blob(ctx, b)
	if err != nil {
		return 0
	}
	if isBinary(ba.Content) || isBinary(bb.Content) {
		if bytes.Equal(ba.Content, bb.Content) {
			return 1
		}
		return 0
	}
	linesA := SplitLines(ba.Content)
	linesB := SplitLines(bb.Content)
	if len(linesA) == 0 || len(linesB) == 0 {
		return 0
	}
	counts := make(map[string]int, len(linesA))
	for _, l := range linesA {
		counts[l]++
	}
	shared := 0
	for _, l := range linesB {
		if counts[l] > 0 {
			counts[l]--
			shared++
		}
	}
	denom := len(linesA)
	if len(linesB) > denom {
		denom = len(linesB)
	}
	return float64(shared) / float64(denom)
}

// isBinary detects binary content via a null-byte scan of the first 8 KiB,
// matching Git's own heuristic.
func isBinary(data []byte) bool {
	limit := len(data)
	if limit > 8192 {
		limit = 8192
	}
	return bytes.IndexByte(data[:limit], 0) != -1
}
