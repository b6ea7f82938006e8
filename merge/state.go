package merge

import (
	"context"
	"fmt"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/history"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
)

// ConflictStrategy picks how Start resolves conflicts automatically when
// Config.AutoResolve is set.
type ConflictStrategy int

const (
	// ConflictStrategyManual leaves every conflict for an explicit Resolve
	// call; with AutoResolve set, only a conflict-free merge is finalized.
	ConflictStrategyManual ConflictStrategy = iota
	ConflictStrategyOurs
	ConflictStrategyTheirs
)

// Config tunes how Start decides between fast-forward and a real merge
// commit, and how conflicts are handled once found.
type Config struct {
	// AllowFastForward moves the ref directly to theirs when ours is an
	// ancestor of theirs, skipping a merge commit entirely.
	AllowFastForward bool
	// FastForwardOnly aborts with FastForwardImpossible rather than
	// creating a merge commit when no fast-forward is possible.
	FastForwardOnly bool
	// ConflictStrategy picks the automatic resolution AutoResolve applies.
	ConflictStrategy ConflictStrategy
	// AutoResolve finalizes a merge immediately, applying ConflictStrategy
	// to every conflict, instead of returning a MergeState for the caller
	// to drive through Resolve/ContinueMerge.
	AutoResolve bool
}

// DefaultConfig returns the conventional behavior: fast-forward when
// possible, manual conflict resolution otherwise.
func DefaultConfig() Config {
	return Config{AllowFastForward: true, ConflictStrategy: ConflictStrategyManual}
}

// Outcome classifies how Start resolved (or didn't resolve) a merge.
type Outcome int

const (
	// OutcomeUpToDate means theirs was already reachable from ours; HEAD
	// is unchanged.
	OutcomeUpToDate Outcome = iota
	// OutcomeFastForward means HEAD was moved directly to theirs.
	OutcomeFastForward
	// OutcomeMerged means a merge commit was created and HEAD updated,
	// either because the merge was conflict-free or AutoResolve settled
	// every conflict.
	OutcomeMerged
	// OutcomePending means a MergeState was returned for the caller to
	// drive via Resolve/ContinueMerge/AbortMerge — either because
	// conflicts remain, or because the merge is clean but still requires
	// an explicit ContinueMerge to become a commit.
	OutcomePending
)

// StartResult is what Start returns: either a terminal outcome (HEAD
// already updated, or nothing to do) or an in-progress MergeState.
type StartResult struct {
	Outcome Outcome
	Commit  githash.OID // set for OutcomeFastForward/OutcomeMerged
	State   *MergeState // set for OutcomePending
}

// RefStore is the subset of storage/refs.Store a merge needs: resolve HEAD
// and move it with a compare-and-swap once the merge concludes.
type RefStore interface {
	Resolve(name plumbing.ReferenceName) (*plumbing.Reference, error)
	CompareAndSwap(name plumbing.ReferenceName, old, new githash.OID) error
}

// resolvedConflict records how Resolve settled one path: either a concrete
// entry to place in the final tree, or an explicit deletion.
type resolvedConflict struct {
	deleted bool
	entry   history.IndexEntry
}

// MergeState tracks an in-progress, conflicted merge between two commits:
// the clean entries already decided, the conflicts still needing a
// resolution, and enough context to finish by writing a merge commit or to
// give up and leave HEAD untouched.
type MergeState struct {
	backend object.Backend
	put     history.Putter
	refs    RefStore
	head    plumbing.ReferenceName

	preMergeHead githash.OID
	oursHead     githash.OID
	theirsHead   githash.OID

	cleanEntries []history.IndexEntry
	conflicts    map[string]PathConflict
	resolved     map[string]resolvedConflict
}

// Start resolves head against theirs: fast-forwarding or declaring
// up-to-date when possible, otherwise computing a three-way merge of their
// trees. A conflict-free merge is finalized immediately only when
// cfg.AutoResolve is set (with ConflictStrategyManual this means "finalize
// without touching anything", since there's nothing to resolve); otherwise
// the caller must call ContinueMerge explicitly, mirroring the explicit
// continue_merge step required even for a clean merge.
func Start(ctx context.Context, backend object.Backend, put history.Putter, refs RefStore, head plumbing.ReferenceName, theirs githash.OID, committer object.Identity, cfg Config) (*StartResult, error) {
	headRef, err := refs.Resolve(head)
	if err != nil {
		return nil, fmt.Errorf("merge: resolving %s: %w", head, err)
	}
	ours := headRef.Hash()

	if ours == theirs {
		return &StartResult{Outcome: OutcomeUpToDate}, nil
	}

	base, err := history.MergeBase(ctx, backend, ours, theirs)
	if err != nil {
		return nil, fmt.Errorf("merge: finding merge base: %w", err)
	}

	if base == theirs {
		return &StartResult{Outcome: OutcomeUpToDate}, nil
	}

	if base == ours && cfg.AllowFastForward {
		if err := refs.CompareAndSwap(head, ours, theirs); err != nil {
			return nil, err
		}
		return &StartResult{Outcome: OutcomeFastForward, Commit: theirs}, nil
	}

	if cfg.FastForwardOnly {
		return nil, &plumbing.FastForwardImpossibleError{Ref: head, Current: ours}
	}

	baseCommit, err := backend.Commit(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("merge: loading base commit: %w", err)
	}
	oursCommit, err := backend.Commit(ctx, ours)
	if err != nil {
		return nil, fmt.Errorf("merge: loading ours commit: %w", err)
	}
	theirsCommit, err := backend.Commit(ctx, theirs)
	if err != nil {
		return nil, fmt.Errorf("merge: loading theirs commit: %w", err)
	}

	result, err := MergeTrees(ctx, backend, put, baseCommit.Tree, oursCommit.Tree, theirsCommit.Tree)
	if err != nil {
		return nil, err
	}

	state := &MergeState{
		backend:      backend,
		put:          put,
		refs:         refs,
		head:         head,
		preMergeHead: ours,
		oursHead:     ours,
		theirsHead:   theirs,
		cleanEntries: result.Entries,
		conflicts:    make(map[string]PathConflict, len(result.Conflicts)),
		resolved:     make(map[string]resolvedConflict),
	}
	for _, c := range result.Conflicts {
		state.conflicts[c.Path] = c
	}

	autoResolvable := cfg.AutoResolve && (cfg.ConflictStrategy != ConflictStrategyManual || len(state.conflicts) == 0)
	if autoResolvable {
		for path := range state.conflicts {
			strategy := ResolveOurs
			if cfg.ConflictStrategy == ConflictStrategyTheirs {
				strategy = ResolveTheirs
			}
			if err := state.Resolve(path, strategy, nil); err != nil {
				return nil, err
			}
		}
		commit, err := state.ContinueMerge(ctx, committer, fmt.Sprintf("Merge %s into %s", theirs, head))
		if err != nil {
			return nil, err
		}
		return &StartResult{Outcome: OutcomeMerged, Commit: commit}, nil
	}

	return &StartResult{Outcome: OutcomePending, State: state}, nil
}

// Conflicts returns the paths still awaiting resolution.
func (m *MergeState) Conflicts() []PathConflict {
	out := make([]PathConflict, 0, len(m.conflicts))
	for _, c := range m.conflicts {
		out = append(out, c)
	}
	return out
}

// ResolutionStrategy picks which side's content Resolve stages for a
// conflicted path.
type ResolutionStrategy int

const (
	ResolveOurs ResolutionStrategy = iota
	ResolveTheirs
	ResolveBase
	ResolveCustom
)

// CustomResolution is the content Resolve stages when the strategy is
// ResolveCustom.
type CustomResolution struct {
	Content []byte
	Mode    plumbing.FileMode
}

// Resolve stages path's chosen side (or custom content), moving it from
// unresolved to resolved. strategy's Base/Ours/Theirs choice may itself be
// a deletion (the path didn't exist on that side); ContinueMerge then
// drops the path from the final tree rather than writing an entry for it.
func (m *MergeState) Resolve(path string, strategy ResolutionStrategy, custom *CustomResolution) error {
	c, ok := m.conflicts[path]
	if !ok {
		return fmt.Errorf("merge: %s has no unresolved conflict", path)
	}

	var side *object.TreeEntry
	switch strategy {
	case ResolveOurs:
		side = c.Ours
	case ResolveTheirs:
		side = c.Theirs
	case ResolveBase:
		side = c.Base
	case ResolveCustom:
		if custom == nil {
			return fmt.Errorf("merge: %s: custom resolution requires content", path)
		}
		oid, err := m.put.Put(&object.Blob{Content: custom.Content})
		if err != nil {
			return fmt.Errorf("merge: writing custom resolution for %s: %w", path, err)
		}
		m.resolved[path] = resolvedConflict{entry: history.IndexEntry{Path: path, Mode: custom.Mode, Hash: oid}}
		delete(m.conflicts, path)
		return nil
	default:
		return fmt.Errorf("merge: %s: unknown resolution strategy", path)
	}

	if side == nil {
		m.resolved[path] = resolvedConflict{deleted: true}
		delete(m.conflicts, path)
		return nil
	}
	m.resolved[path] = resolvedConflict{entry: history.IndexEntry{Path: path, Mode: side.Mode, Hash: side.Hash}}
	delete(m.conflicts, path)
	return nil
}

// ContinueMerge requires every conflict resolved, then builds the merged
// tree, hashes a real merge commit referencing both parents, and moves HEAD
// to it via a compare-and-swap against the pre-merge value.
func (m *MergeState) ContinueMerge(ctx context.Context, committer object.Identity, message string) (githash.OID, error) {
	// Both a finished and an aborted merge leave conflicts nil.
	if m.conflicts == nil {
		return githash.ZeroOID, plumbing.ErrMergeNotInProgress
	}
	if len(m.conflicts) > 0 {
		return githash.ZeroOID, plumbing.ErrConflictUnresolved
	}

	entries := make([]history.IndexEntry, 0, len(m.cleanEntries)+len(m.resolved))
	entries = append(entries, m.cleanEntries...)
	for _, r := range m.resolved {
		if r.deleted {
			continue
		}
		entries = append(entries, r.entry)
	}

	treeOID, err := history.BuildTree(m.put, entries)
	if err != nil {
		return githash.ZeroOID, fmt.Errorf("merge: building merge commit tree: %w", err)
	}

	commit := &object.Commit{
		Tree:      treeOID,
		Parents:   []githash.OID{m.oursHead, m.theirsHead},
		Author:    committer,
		Committer: committer,
		Message:   message,
	}
	oid, err := m.put.Put(commit)
	if err != nil {
		return githash.ZeroOID, fmt.Errorf("merge: writing merge commit: %w", err)
	}

	if err := m.refs.CompareAndSwap(m.head, m.preMergeHead, oid); err != nil {
		return githash.ZeroOID, err
	}
	m.conflicts = nil
	m.resolved = nil
	return oid, nil
}

// AbortMerge discards the in-progress merge. HEAD was never moved by Start
// for a non-fast-forward merge, so there is nothing to restore; this just
// clears the state so it can't be finalized afterward.
func (m *MergeState) AbortMerge() {
	m.conflicts = nil
	m.resolved = nil
	m.cleanEntries = nil
}
