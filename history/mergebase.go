package history

import (
	"container/heap"
	"context"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing/object"
)

// side is a bitset of which starting commit(s) can reach a given ancestor
// during the colored BFS merge-base search.
type side uint8

const (
	sideA side = 1 << iota
	sideB
	sideBoth = sideA | sideB
)

// cbItem is one entry in the committer-time priority queue used by the
// colored BFS: commits are always explored newest-first so a common
// ancestor is found as soon as both colors first meet.
type cbItem struct {
	oid    githash.OID
	commit *object.Commit
}

type cbQueue []cbItem

func (q cbQueue) Len() int { return len(q) }
func (q cbQueue) Less(i, j int) bool {
	return q[i].commit.Committer.When.After(q[j].commit.Committer.When)
}
func (q cbQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *cbQueue) Push(x any)        { *q = append(*q, x.(cbItem)) }
func (q *cbQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// MergeBase returns a best common ancestor of a and b: a commit reachable
// from both that is not itself an ancestor of any other common ancestor.
// Ties are broken by visiting commits in descending committer-time order, a
// colored two-way BFS over parent edges.
func MergeBase(ctx context.Context, backend object.Backend, a, b githash.OID) (githash.OID, error) {
	if a == b {
		return a, nil
	}

	visited := make(map[githash.OID]side)
	q := &cbQueue{}
	heap.Init(q)

	seed := func(oid githash.OID, s side) error {
		visited[oid] |= s
		c, err := backend.Commit(ctx, oid)
		if err != nil {
			return err
		}
		heap.Push(q, cbItem{oid: oid, commit: c})
		return nil
	}
	if err := seed(a, sideA); err != nil {
		return githash.ZeroOID, err
	}
	if err := seed(b, sideB); err != nil {
		return githash.ZeroOID, err
	}

	for q.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return githash.ZeroOID, err
		}
		item := heap.Pop(q).(cbItem)
		if visited[item.oid] == sideBoth {
			return item.oid, nil
		}
		s := visited[item.oid]
		for _, p := range item.commit.Parents {
			prev := visited[p]
			next := prev | s
			if next == prev {
				continue
			}
			visited[p] = next
			if next == sideBoth {
				return p, nil
			}
			pc, err := backend.Commit(ctx, p)
			if err != nil {
				return githash.ZeroOID, err
			}
			heap.Push(q, cbItem{oid: p, commit: pc})
		}
	}
	return githash.ZeroOID, nil
}

// MergeBaseOctopus reduces N commits to a single best common ancestor by
// folding MergeBase pairwise over the list.
// Returns the zero OID with no error for an empty list; a single commit is
// returned as is.
func MergeBaseOctopus(ctx context.Context, backend object.Backend, oids []githash.OID) (githash.OID, error) {
	if len(oids) == 0 {
		return githash.ZeroOID, nil
	}
	current := oids[0]
	for _, oid := range oids[1:] {
		base, err := MergeBase(ctx, backend, current, oid)
		if err != nil {
			return githash.ZeroOID, err
		}
		if base == githash.ZeroOID {
			return githash.ZeroOID, nil
		}
		current = base
	}
	return current, nil
}

// IsAncestor reports whether ancestor is reachable from descendant through
// parent edges (including descendant itself).
func IsAncestor(ctx context.Context, backend object.Backend, ancestor, descendant githash.OID) (bool, error) {
	base, err := MergeBase(ctx, backend, ancestor, descendant)
	if err != nil {
		return false, err
	}
	return base == ancestor, nil
}
