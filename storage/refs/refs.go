// Package refs implements L4: the mutable name-to-id mapping layer — loose
// per-file refs under refs/, the packed-refs fallback file, symbolic
// resolution, and compare-and-swap updates guarded by advisory lock files.
package refs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

const (
	packedRefsName    = "packed-refs"
	tmpPackedRefsGlob = ".packed-refs-*"
	// MaxSymbolicDepth bounds how many HEAD -> ref -> ref hops are followed
	// before resolution gives up with plumbing.ErrMaxDepthExceeded.
	MaxSymbolicDepth = 10
	// staleLockAge is how long a lock file may sit before a new writer is
	// allowed to assume its owner died and steal it.
	staleLockAge = 10 * time.Minute
)

// Store is a filesystem-backed reference store rooted at a repository's Git
// directory (the directory containing HEAD, refs/, and packed-refs).
type Store struct {
	root string
}

// NewStore returns a Store rooted at gitDir.
func NewStore(gitDir string) *Store {
	return &Store{root: gitDir}
}

func (s *Store) loosePath(name plumbing.ReferenceName) string {
	return filepath.Join(s.root, filepath.FromSlash(string(name)))
}

// ReadLoose reads a single loose ref file, if present.
func (s *Store) ReadLoose(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	data, err := os.ReadFile(s.loosePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plumbing.ErrRefNotFound
		}
		return nil, fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	return plumbing.NewReferenceFromStrings(string(name), strings.TrimSpace(string(data)))
}

// ReadPacked scans packed-refs for name, skipping comment ("#") and peeled
// ("^") lines.
func (s *Store) ReadPacked(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	f, err := os.Open(filepath.Join(s.root, packedRefsName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plumbing.ErrRefNotFound
		}
		return nil, fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		oidHex, refName, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("%w: malformed packed-refs line %q", plumbing.ErrCorruptObject, line)
		}
		if refName != string(name) {
			continue
		}
		return plumbing.NewReferenceFromStrings(refName, oidHex)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	return nil, plumbing.ErrRefNotFound
}

// Get looks up name, preferring a loose ref over a packed one.
func (s *Store) Get(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	ref, err := s.ReadLoose(name)
	if err == nil {
		return ref, nil
	}
	if err != plumbing.ErrRefNotFound {
		return nil, err
	}
	return s.ReadPacked(name)
}

// Resolve follows symbolic references (HEAD -> refs/heads/main -> <oid>)
// until a hash reference is reached or a missing target is found. A name
// visited twice is reported as plumbing.ErrCircularRef; a chain that is
// still symbolic after MaxSymbolicDepth hops is reported as
// plumbing.ErrMaxDepthExceeded.
func (s *Store) Resolve(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	seen := make(map[plumbing.ReferenceName]bool)
	cur := name
	for depth := 0; depth < MaxSymbolicDepth; depth++ {
		if seen[cur] {
			return nil, plumbing.ErrCircularRef
		}
		seen[cur] = true
		ref, err := s.Get(cur)
		if err != nil {
			return nil, err
		}
		if ref.Type() == plumbing.HashReference {
			return ref, nil
		}
		cur = ref.Target()
	}
	return nil, fmt.Errorf("%w: exceeded %d symbolic hops", plumbing.ErrMaxDepthExceeded, MaxSymbolicDepth)
}

// lock acquires an advisory O_EXCL lock file for name, stealing it if it's
// older than staleLockAge (the previous writer is presumed dead).
func (s *Store) lock(name plumbing.ReferenceName) (*os.File, string, error) {
	path := s.loosePath(name)
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err == nil {
		return f, lockPath, nil
	}
	if !os.IsExist(err) {
		return nil, "", fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if fi, statErr := os.Stat(lockPath); statErr == nil && time.Since(fi.ModTime()) > staleLockAge {
		_ = os.Remove(lockPath)
		f, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
		if err == nil {
			return f, lockPath, nil
		}
	}
	return nil, "", plumbing.ErrLockTimeout
}

// CompareAndSwap atomically sets name to new, requiring the ref's current
// value to equal old (the zero OID meaning "must not currently exist").
// Returns a StalePriorError carrying the actual current value on mismatch.
func (s *Store) CompareAndSwap(name plumbing.ReferenceName, old, newOID githash.OID) error {
	if !plumbing.ValidateReferenceName(name) {
		return fmt.Errorf("%w: %q", plumbing.ErrInvalidRefName, name)
	}
	f, lockPath, err := s.lock(name)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(lockPath)
	}()

	current, err := s.Get(name)
	switch {
	case err == plumbing.ErrRefNotFound:
		if !old.IsZero() {
			return &plumbing.StalePriorError{Ref: name, Wanted: old, Current: githash.ZeroOID}
		}
	case err != nil:
		return err
	default:
		if current.Hash() != old {
			return &plumbing.StalePriorError{Ref: name, Wanted: old, Current: current.Hash()}
		}
	}

	if _, err := f.WriteString(newOID.String() + "\n"); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if err := os.Rename(lockPath, s.loosePath(name)); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	lockPath = "" // renamed away; nothing left for the deferred cleanup to remove
	return nil
}

// SetSymbolic writes name as a symbolic ref pointing at target (used for
// HEAD).
func (s *Store) SetSymbolic(name, target plumbing.ReferenceName) error {
	f, lockPath, err := s.lock(name)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(lockPath)
	}()
	if _, err := fmt.Fprintf(f, "ref: %s\n", target); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if err := os.Rename(lockPath, s.loosePath(name)); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	lockPath = ""
	return nil
}

// Remove deletes a loose ref (and its entry from packed-refs, if present).
func (s *Store) Remove(name plumbing.ReferenceName) error {
	f, lockPath, err := s.lock(name)
	if err != nil {
		return err
	}
	_ = f.Close()
	defer os.Remove(lockPath)

	if err := os.Remove(s.loosePath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	return s.rewritePackedRefsWithout(name)
}

func (s *Store) rewritePackedRefsWithout(name plumbing.ReferenceName) error {
	packedPath := filepath.Join(s.root, packedRefsName)
	src, err := os.Open(packedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.root, tmpPackedRefsGlob)
	if err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	tmpPath := tmp.Name()
	removed := false
	sc := bufio.NewScanner(src)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "^") {
			if _, refName, ok := strings.Cut(line, " "); ok && refName == string(name) {
				removed = true
				continue
			}
		}
		fmt.Fprintln(tmp, line)
	}
	if err := sc.Err(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if !removed {
		_ = os.Remove(tmpPath)
		return nil
	}
	return os.Rename(tmpPath, packedPath)
}

// ListLoose walks refs/ and returns every loose reference found.
func (s *Store) ListLoose() (plumbing.ReferenceSlice, error) {
	var out plumbing.ReferenceSlice
	root := filepath.Join(s.root, "refs")
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		name := plumbing.ReferenceName(filepath.ToSlash(rel))
		ref, err := s.ReadLoose(name)
		if err != nil {
			return nil
		}
		out = append(out, ref)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	return out, nil
}

// ListPacked returns every reference recorded in packed-refs.
func (s *Store) ListPacked() (plumbing.ReferenceSlice, error) {
	f, err := os.Open(filepath.Join(s.root, packedRefsName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	defer f.Close()

	var out plumbing.ReferenceSlice
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		oidHex, refName, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		ref, err := plumbing.NewReferenceFromStrings(refName, oidHex)
		if err != nil {
			continue
		}
		out = append(out, ref)
	}
	return out, nil
}

// List returns the union of loose and packed refs, loose taking precedence
// on name collision, sorted by name.
func (s *Store) List() (plumbing.ReferenceSlice, error) {
	loose, err := s.ListLoose()
	if err != nil {
		return nil, err
	}
	packed, err := s.ListPacked()
	if err != nil {
		return nil, err
	}
	seen := make(map[plumbing.ReferenceName]bool, len(loose))
	out := make(plumbing.ReferenceSlice, 0, len(loose)+len(packed))
	for _, r := range loose {
		seen[r.Name()] = true
		out = append(out, r)
	}
	for _, r := range packed {
		if !seen[r.Name()] {
			out = append(out, r)
		}
	}
	sort.Sort(out)
	return out, nil
}

// Pack rewrites every loose hash-reference under refs/ into packed-refs and
// removes the loose files, the same consolidation `git pack-refs` performs.
func (s *Store) Pack() error {
	loose, err := s.ListLoose()
	if err != nil {
		return err
	}
	if len(loose) == 0 {
		return nil
	}
	existing, err := s.ListPacked()
	if err != nil {
		return err
	}
	merged := make(map[plumbing.ReferenceName]*plumbing.Reference, len(loose)+len(existing))
	for _, r := range existing {
		merged[r.Name()] = r
	}
	for _, r := range loose {
		if r.Type() == plumbing.HashReference {
			merged[r.Name()] = r
		}
	}
	all := make(plumbing.ReferenceSlice, 0, len(merged))
	for _, r := range merged {
		all = append(all, r)
	}
	sort.Sort(all)

	tmp, err := os.CreateTemp(s.root, tmpPackedRefsGlob)
	if err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	tmpPath := tmp.Name()
	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString("# pack-refs with: fully-peeled sorted\n"); err != nil {
		return err
	}
	for _, r := range all {
		if _, err := fmt.Fprintf(w, "%s %s\n", r.Hash(), r.Name()); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(s.root, packedRefsName)); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	for _, r := range loose {
		if r.Type() == plumbing.HashReference {
			_ = os.Remove(s.loosePath(r.Name()))
		}
	}
	return nil
}
