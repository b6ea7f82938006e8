// Package storage implements L5: the façade that makes loose objects (L2),
// packed objects (L3), and refs (L4) look like one content-addressed object
// store plus a name-to-id mapping, with an in-memory cache in front of both
// object sources.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
	"github.com/vcsforge/gitcore/storage/loose"
	"github.com/vcsforge/gitcore/storage/pack"
)

// packSource pairs an open pack file with its index so the façade can probe
// multiple packs for an object.
type packSource struct {
	reader *pack.Reader
	file   *os.File
}

// Store is the unified read/write object store for one repository.
type Store struct {
	loose *loose.Store
	packs []*packSource
	cache *ristretto.Cache[githash.OID, object.Object]
}

// CacheConfig tunes the object cache; NumCounters should be roughly 10x the
// expected number of distinct objects touched per working set.
type CacheConfig struct {
	NumCounters int64
	MaxCostMB   int64
	BufferItems int64
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.NumCounters == 0 {
		c.NumCounters = 1e6
	}
	if c.MaxCostMB == 0 {
		c.MaxCostMB = 64
	}
	if c.BufferItems == 0 {
		c.BufferItems = 64
	}
	return c
}

// Open opens the loose-object directory at objectsDir, every *.pack/*.idx
// pair found under objectsDir/pack, and builds an object cache per cfg.
func Open(objectsDir string, cfg CacheConfig) (*Store, error) {
	cfg = cfg.withDefaults()
	cache, err := ristretto.NewCache(&ristretto.Config[githash.OID, object.Object]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCostMB << 20,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: unable to initialize object cache: %w", err)
	}

	s := &Store{loose: loose.NewStore(objectsDir), cache: cache}
	packDir := filepath.Join(objectsDir, "pack")
	entries, err := os.ReadDir(packDir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pack" {
			continue
		}
		if err := s.loadPack(filepath.Join(packDir, e.Name())); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) loadPack(packPath string) error {
	idxPath := packPath[:len(packPath)-len(".pack")] + ".idx"
	idx, err := pack.ReadIndexFile(idxPath)
	if err != nil {
		return fmt.Errorf("storage: loading index for %s: %w", packPath, err)
	}
	f, err := os.Open(packPath)
	if err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	s.packs = append(s.packs, &packSource{reader: pack.NewReader(f, idx), file: f})
	return nil
}

// Close releases open pack file handles.
func (s *Store) Close() error {
	var firstErr error
	for _, p := range s.packs {
		if err := p.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Has reports whether oid is present as a loose or packed object.
func (s *Store) Has(oid githash.OID) bool {
	if s.loose.Has(oid) {
		return true
	}
	for _, p := range s.packs {
		if p.reader.Has(oid) {
			return true
		}
	}
	return false
}

// Get resolves oid to its parsed Object, consulting the cache first, then
// loose storage, then every pack in turn.
func (s *Store) Get(ctx context.Context, oid githash.OID) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Get(oid); ok {
		return cached, nil
	}

	if s.loose.Has(oid) {
		full, err := s.loose.Get(oid)
		if err != nil {
			return nil, err
		}
		obj, err := object.Parse(full)
		if err != nil {
			return nil, err
		}
		s.cache.Set(oid, obj, int64(len(full)))
		return obj, nil
	}

	for _, p := range s.packs {
		if !p.reader.Has(oid) {
			continue
		}
		typ, payload, err := p.reader.ResolveOID(oid)
		if err != nil {
			return nil, err
		}
		obj, err := object.ParseTyped(typ, payload)
		if err != nil {
			return nil, err
		}
		s.cache.Set(oid, obj, int64(len(payload)))
		return obj, nil
	}
	return nil, plumbing.NewNotFoundError(oid)
}

// Put hashes and stores obj as a loose object, idempotently. The hash of
// the encoded object is returned.
func (s *Store) Put(obj object.Object) (githash.OID, error) {
	full, err := object.Marshal(obj)
	if err != nil {
		return githash.ZeroOID, err
	}
	oid := githash.Sum(full)
	if err := s.loose.Put(oid, full); err != nil {
		return githash.ZeroOID, err
	}
	s.cache.Set(oid, obj, int64(len(full)))
	return oid, nil
}

// Commit, Tree, Blob, and Tag are typed conveniences over Get, satisfying
// object.Backend so the history and merge packages can resolve references
// between objects without importing storage directly.
func (s *Store) Commit(ctx context.Context, oid githash.OID) (*object.Commit, error) {
	o, err := s.Get(ctx, oid)
	if err != nil {
		return nil, err
	}
	c, ok := o.(*object.Commit)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a commit", plumbing.ErrCorruptObject, oid)
	}
	return c, nil
}

func (s *Store) Tree(ctx context.Context, oid githash.OID) (*object.Tree, error) {
	o, err := s.Get(ctx, oid)
	if err != nil {
		return nil, err
	}
	t, ok := o.(*object.Tree)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a tree", plumbing.ErrCorruptObject, oid)
	}
	return t, nil
}

func (s *Store) Blob(ctx context.Context, oid githash.OID) (*object.Blob, error) {
	o, err := s.Get(ctx, oid)
	if err != nil {
		return nil, err
	}
	b, ok := o.(*object.Blob)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a blob", plumbing.ErrCorruptObject, oid)
	}
	return b, nil
}

func (s *Store) Tag(ctx context.Context, oid githash.OID) (*object.Tag, error) {
	o, err := s.Get(ctx, oid)
	if err != nil {
		return nil, err
	}
	t, ok := o.(*object.Tag)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a tag", plumbing.ErrCorruptObject, oid)
	}
	return t, nil
}

var _ object.Backend = (*Store)(nil)

// LooseOIDs returns every loose object id, sorted, primarily for fsck- and
// pack-generation-style full scans.
func (s *Store) LooseOIDs() (githash.Slice, error) {
	var out githash.Slice
	if err := s.loose.Walk(func(oid githash.OID) error {
		out = append(out, oid)
		return nil
	}); err != nil {
		return nil, err
	}
	githash.Sort(out)
	return out, nil
}

// AllOIDs returns every object id reachable from loose storage and every
// loaded pack, de-duplicated and sorted.
func (s *Store) AllOIDs() (githash.Slice, error) {
	seen := make(map[githash.OID]bool)
	var out githash.Slice
	if err := s.loose.Walk(func(oid githash.OID) error {
		if !seen[oid] {
			seen[oid] = true
			out = append(out, oid)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	for _, p := range s.packs {
		for _, e := range p.reader.Index().Entries() {
			if !seen[e.OID] {
				seen[e.OID] = true
				out = append(out, e.OID)
			}
		}
	}
	githash.Sort(out)
	return out, nil
}
