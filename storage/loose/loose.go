// Package loose implements L2: the one-object-per-file store under
// objects/xx/yyyy…38, zlib-deflated, matching Git's own loose object
// layout byte for byte so a gitcore repository is readable by stock Git
// tooling.
package loose

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zlib"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

var bufioReaderPool = sync.Pool{
	New: func() any { return bufio.NewReader(nil) },
}

func getBufioReader(r io.Reader) *bufio.Reader {
	br := bufioReaderPool.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

func putBufioReader(br *bufio.Reader) {
	bufioReaderPool.Put(br)
}

var zlibWriterPool = sync.Pool{
	New: func() any { return zlib.NewWriter(io.Discard) },
}

func getZlibWriter(w io.Writer) *zlib.Writer {
	zw := zlibWriterPool.Get().(*zlib.Writer)
	zw.Reset(w)
	return zw
}

func putZlibWriter(zw *zlib.Writer) {
	zlibWriterPool.Put(zw)
}

// Store is a loose-object directory rooted at a ".../objects" path.
type Store struct {
	root string
	tmp  string
}

// NewStore returns a Store rooted at root (conventionally "<gitdir>/objects").
// A "tmp" subdirectory under root is used to stage writes before they're
// atomically renamed into place.
func NewStore(root string) *Store {
	return &Store{root: root, tmp: filepath.Join(root, "tmp")}
}

// Path returns the on-disk path an object with the given id would occupy,
// whether or not it currently exists there.
func (s *Store) Path(oid githash.OID) string {
	hex := oid.String()
	return filepath.Join(s.root, hex[:2], hex[2:])
}

// Has reports whether oid is present as a loose object.
func (s *Store) Has(oid githash.OID) bool {
	_, err := os.Stat(s.Path(oid))
	return err == nil
}

// Get returns the full canonical byte form ("<type> <size>\0<payload>") of
// the loose object named oid.
func (s *Store) Get(oid githash.OID) ([]byte, error) {
	f, err := os.Open(s.Path(oid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plumbing.NewNotFoundError(oid)
		}
		return nil, fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	defer f.Close()

	br := getBufioReader(f)
	defer putBufioReader(br)

	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrCorruptObject, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrCorruptObject, err)
	}
	return raw, nil
}

// Put deflates full (a complete "<type> <size>\0<payload>" buffer, already
// hashed by the caller as oid) and stores it atomically: written to a temp
// file under objects/tmp then renamed into place. Put is idempotent — if
// oid already exists, the write is skipped.
func (s *Store) Put(oid githash.OID, full []byte) error {
	if s.Has(oid) {
		return nil
	}
	if err := os.MkdirAll(s.tmp, 0o755); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	tmp, err := os.CreateTemp(s.tmp, "obj-*")
	if err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	zw := getZlibWriter(tmp)
	defer putZlibWriter(zw)
	if _, err := zw.Write(full); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}

	dest := s.Path(oid)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	cleanup = false
	_ = os.Chmod(dest, 0o444)
	return nil
}

// Walk visits every loose object id under root.
func (s *Store) Walk(fn func(oid githash.OID) error) error {
	return filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == s.tmp {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if len(rel) != 2+1+githash.HexSize-2 {
			return nil
		}
		hex := rel[:2] + rel[3:]
		oid, err := githash.FromHex(hex)
		if err != nil {
			return nil
		}
		return fn(oid)
	})
}

// Size returns the compressed on-disk size of oid's loose object file.
func (s *Store) Size(oid githash.OID) (int64, error) {
	fi, err := os.Stat(s.Path(oid))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, plumbing.NewNotFoundError(oid)
		}
		return 0, err
	}
	return fi.Size(), nil
}
