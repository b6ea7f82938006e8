package history

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
)

// BlameLine is one attributed line of a file's content at a commit.
type BlameLine struct {
	LineNo  int // 1-based, in the content at the starting commit
	Content string
	Commit  githash.OID
}

// BlameOptions tunes Blame's line-attribution strategy.
type BlameOptions struct {
	// FallbackPositional compares a line to its parent by line index alone
	// instead of running a full content diff. Cheaper on very large files,
	// wrong across insertions/deletions upstream of the line. Default false.
	FallbackPositional bool
}

// Blame attributes every line of path's content at start to the most
// recent commit that introduced it: for each commit visited it diffs the
// file against each parent's version, reassigning lines unchanged since a
// parent to that parent's pending set and leaving genuinely new lines
// attributed to the commit under examination.
func Blame(ctx context.Context, backend object.Backend, start githash.OID, path string, opts BlameOptions) ([]BlameLine, error) {
	startCommit, err := backend.Commit(ctx, start)
	if err != nil {
		return nil, err
	}
	finalLines, _, err := blobLinesAtPath(ctx, backend, startCommit.Tree, path)
	if err != nil {
		return nil, err
	}
	if finalLines == nil {
		return nil, fmt.Errorf("history: %s not found at %s", path, start)
	}

	owner := make([]githash.OID, len(finalLines))
	type pendingLine struct {
		commitLine   int
		originalLine int
	}
	pending := map[githash.OID][]pendingLine{start: make([]pendingLine, len(finalLines))}
	for i := range finalLines {
		pending[start][i] = pendingLine{commitLine: i, originalLine: i}
	}

	w, err := NewWalker(ctx, backend, OrderTopo, []githash.OID{start}, nil)
	if err != nil {
		return nil, err
	}

	unresolved := len(finalLines)
	for unresolved > 0 {
		oid, c, err := w.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		plines, ok := pending[oid]
		if !ok || len(plines) == 0 {
			continue
		}
		delete(pending, oid)

		lines, exists, err := blobLinesAtPath(ctx, backend, c.Tree, path)
		if err != nil {
			return nil, err
		}
		if !exists || len(c.Parents) == 0 {
			for _, pl := range plines {
				owner[pl.originalLine] = oid
				unresolved--
			}
			continue
		}

		remaining := make(map[int]pendingLine, len(plines))
		for _, pl := range plines {
			remaining[pl.commitLine] = pl
		}

		for _, p := range c.Parents {
			if len(remaining) == 0 {
				break
			}
			parentCommit, err := backend.Commit(ctx, p)
			if err != nil {
				return nil, err
			}
			parentLines, parentExists, err := blobLinesAtPath(ctx, backend, parentCommit.Tree, path)
			if err != nil {
				return nil, err
			}
			if !parentExists {
				continue
			}
			if opts.FallbackPositional {
				for idx, pl := range remaining {
					if idx < len(parentLines) && lines[idx] == parentLines[idx] {
						pending[p] = append(pending[p], pendingLine{commitLine: idx, originalLine: pl.originalLine})
						delete(remaining, idx)
					}
				}
				continue
			}
			for _, e := range ComputeEdits(parentLines, lines) {
				if e.Type != EditKeep {
					continue
				}
				if pl, ok := remaining[e.NewLine]; ok {
					pending[p] = append(pending[p], pendingLine{commitLine: e.OldLine, originalLine: pl.originalLine})
					delete(remaining, e.NewLine)
				}
			}
		}

		for _, pl := range remaining {
			owner[pl.originalLine] = oid
			unresolved--
		}
	}

	// History exhausted before every line was attributed to a specific
	// commit: whatever is left was present since the oldest reachable
	// commit that still carried the file, so attribute it there.
	if unresolved > 0 {
		for oid, plines := range pending {
			for _, pl := range plines {
				if owner[pl.originalLine] == githash.ZeroOID {
					owner[pl.originalLine] = oid
				}
			}
		}
	}

	result := make([]BlameLine, len(finalLines))
	for i, line := range finalLines {
		result[i] = BlameLine{LineNo: i + 1, Content: line, Commit: owner[i]}
	}
	return result, nil
}

// blobLinesAtPath resolves a "/"-separated path within treeOID and splits
// its blob content into lines. The second return is false when the path
// does not exist in this tree (including when treeOID has no such subtree).
func blobLinesAtPath(ctx context.Context, backend object.Backend, treeOID githash.OID, path string) ([]string, bool, error) {
	parts := strings.Split(path, "/")
	cur := treeOID
	for i, part := range parts {
		t, err := backend.Tree(ctx, cur)
		if err != nil {
			if plumbing.IsNotFound(err) {
				return nil, false, nil
			}
			return nil, false, err
		}
		e, ok := t.Find(part)
		if !ok {
			return nil, false, nil
		}
		if i == len(parts)-1 {
			if e.Mode.IsDir() {
				return nil, false, nil
			}
			b, err := backend.Blob(ctx, e.Hash)
			if err != nil {
				return nil, false, err
			}
			if isBinary(b.Content) {
				return nil, false, fmt.Errorf("history: %s is binary, blame requires text", path)
			}
			return SplitLines(b.Content), true, nil
		}
		if !e.Mode.IsDir() {
			return nil, false, nil
		}
		cur = e.Hash
	}
	return nil, false, nil
}

// SplitLines splits content into lines without keeping a trailing empty
// element for a final newline.
func SplitLines(content []byte) []string {
	if len(content) == 0 {
		return []string{}
	}
	lines := strings.Split(string(content), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
