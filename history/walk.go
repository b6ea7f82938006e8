// Package history implements L6: commit graph traversal (topological and
// date order), merge-base computation, tree diffing, and blame — everything
// that needs to walk the commit DAG rather than just resolve single objects.
package history

import (
	"context"
	"io"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
)

// Order selects the sequence commit history is walked in.
type Order int

const (
	// OrderTopo guarantees a commit is only produced after every commit
	// that reaches it through a parent edge, breaking ties by the
	// committer-time heap ("git log --topo-order").
	OrderTopo Order = iota
	// OrderDate yields commits purely by descending committer time,
	// parents or not ("git log --date-order").
	OrderDate
)

// stacker is the minimal push/pop/peek/size interface the topo walker needs;
// a LIFO commitStack and a committer-time commitHeap both implement it.
type stacker interface {
	Push(c *object.Commit)
	Pop() (*object.Commit, bool)
	Peek() (*object.Commit, bool)
	Size() int
}

type commitStack struct {
	items []*object.Commit
}

func (s *commitStack) Push(c *object.Commit) { s.items = append(s.items, c) }

func (s *commitStack) Pop() (*object.Commit, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	c := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return c, true
}

func (s *commitStack) Peek() (*object.Commit, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	return s.items[len(s.items)-1], true
}

func (s *commitStack) Size() int { return len(s.items) }

type commitHeap struct {
	*binaryheap.Heap
}

func newCommitHeap() *commitHeap {
	return &commitHeap{Heap: binaryheap.NewWith(func(a, b any) int {
		return b.(*object.Commit).Committer.When.Compare(a.(*object.Commit).Committer.When)
	})}
}

func (h *commitHeap) Push(c *object.Commit) { h.Heap.Push(c) }

func (h *commitHeap) Pop() (*object.Commit, bool) {
	v, ok := h.Heap.Pop()
	if !ok {
		return nil, false
	}
	return v.(*object.Commit), true
}

func (h *commitHeap) Peek() (*object.Commit, bool) {
	v, ok := h.Heap.Peek()
	if !ok {
		return nil, false
	}
	return v.(*object.Commit), true
}

// Walker produces commits from one or more starting points in Order,
// optionally excluding everything reachable from a set of boundary commits
// (the "A..B" range form).
type Walker struct {
	backend  object.Backend
	order    Order
	explorer stacker
	visit    stacker
	inCounts map[githash.OID]int
	seen     map[githash.OID]bool
	oidOf    map[*object.Commit]githash.OID
}

// NewWalker starts a walk from the given commit ids, visiting ancestors and
// skipping anything reachable from boundary (used to implement "A..B").
func NewWalker(ctx context.Context, backend object.Backend, order Order, starts []githash.OID, boundary []githash.OID) (*Walker, error) {
	w := &Walker{
		backend:  backend,
		order:    order,
		inCounts: make(map[githash.OID]int),
		seen:     make(map[githash.OID]bool),
		oidOf:    make(map[*object.Commit]githash.OID),
	}
	// Topo order needs the explorer/inCounts machinery to guarantee a commit
	// is never emitted before something that reaches it; date order only
	// needs a single committer-time heap to always emit the newest ready
	// commit next.
	if order == OrderTopo {
		w.explorer = newCommitHeap()
		w.visit = &commitStack{}
	} else {
		w.visit = newCommitHeap()
	}

	for _, b := range boundary {
		if err := markAncestorsSeen(ctx, backend, b, w.seen); err != nil {
			return nil, err
		}
	}
	// Everything seen so far is on the boundary side; a sentinel in-degree
	// keeps the topo walk from ever counting such a commit down to zero and
	// emitting it when a child's parent edges are released.
	for oid := range w.seen {
		w.inCounts[oid] = -1 << 30
	}

	for _, s := range starts {
		if w.seen[s] {
			continue
		}
		c, err := backend.Commit(ctx, s)
		if err != nil {
			return nil, err
		}
		w.oidOf[c] = s
		w.seen[s] = true
		if w.explorer != nil {
			w.explorer.Push(c)
		}
		w.visit.Push(c)
	}
	return w, nil
}

func markAncestorsSeen(ctx context.Context, backend object.Backend, start githash.OID, seen map[githash.OID]bool) error {
	if seen[start] {
		return nil
	}
	stack := []githash.OID{start}
	for len(stack) > 0 {
		oid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[oid] {
			continue
		}
		seen[oid] = true
		c, err := backend.Commit(ctx, oid)
		if err != nil {
			return err
		}
		stack = append(stack, c.Parents...)
	}
	return nil
}

// Next returns the next (oid, commit) pair, or io.EOF when the walk is
// exhausted.
func (w *Walker) Next(ctx context.Context) (githash.OID, *object.Commit, error) {
	if w.order == OrderDate {
		return w.nextDateOrder(ctx)
	}
	return w.nextTopoOrder(ctx)
}

func (w *Walker) nextDateOrder(ctx context.Context) (githash.OID, *object.Commit, error) {
	// visit is a commitHeap ordered by committer time here, so popping it
	// directly yields newest-first order with no in-degree bookkeeping needed.
	c, ok := w.visit.Pop()
	if !ok {
		return githash.ZeroOID, nil, io.EOF
	}
	oid := w.oidOf[c]
	for _, p := range c.Parents {
		if w.seen[p] {
			continue
		}
		w.seen[p] = true
		pc, err := w.backend.Commit(ctx, p)
		if err != nil {
			return githash.ZeroOID, nil, err
		}
		w.oidOf[pc] = p
		w.visit.Push(pc)
	}
	return oid, c, nil
}

func (w *Walker) nextTopoOrder(ctx context.Context) (githash.OID, *object.Commit, error) {
	var next *object.Commit
	for {
		c, ok := w.visit.Pop()
		if !ok {
			return githash.ZeroOID, nil, io.EOF
		}
		if w.inCounts[w.oidOf[c]] == 0 {
			next = c
			break
		}
	}
	nextOID := w.oidOf[next]

	for {
		toExplore, ok := w.explorer.Peek()
		if !ok {
			break
		}
		if w.oidOf[toExplore] != nextOID && w.explorer.Size() == 1 {
			break
		}
		w.explorer.Pop()
		for _, p := range toExplore.Parents {
			w.inCounts[p]++
			if w.inCounts[p] == 1 {
				if w.seen[p] {
					continue
				}
				w.seen[p] = true
				pc, err := w.backend.Commit(ctx, p)
				if err != nil {
					return githash.ZeroOID, nil, err
				}
				w.oidOf[pc] = p
				w.explorer.Push(pc)
			}
		}
	}

	for _, p := range next.Parents {
		w.inCounts[p]--
		if w.inCounts[p] == 0 {
			if pc, err := w.backend.Commit(ctx, p); err == nil {
				w.visit.Push(pc)
			}
		}
	}
	delete(w.inCounts, nextOID)
	return nextOID, next, nil
}

// ForEach drives a Walker to completion, invoking cb for every commit in
// order. Returning plumbing.ErrStop from cb ends iteration without error.
func ForEach(ctx context.Context, w *Walker, cb func(githash.OID, *object.Commit) error) error {
	for {
		oid, c, err := w.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(oid, c); err != nil {
			if err == plumbing.ErrStop {
				return nil
			}
			return err
		}
	}
}
