// Package pack implements L3: Git pack v2 packfiles and their v2 indexes —
// reading (including OFS_DELTA/REF_DELTA chain resolution), and generation.
package pack

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

var packMagic = [4]byte{'P', 'A', 'C', 'K'}

const packVersion = 2

// MaxDeltaDepth bounds how many links a delta chain may have before
// resolution is refused, guarding against pathological or adversarial packs.
const MaxDeltaDepth = 50

// Reader provides random-access object resolution over a packfile and its
// paired index.
type Reader struct {
	ra  io.ReaderAt
	idx *Index
}

// NewReader pairs an already-opened pack file (any io.ReaderAt — typically
// an *os.File) with its parsed index.
func NewReader(ra io.ReaderAt, idx *Index) *Reader {
	return &Reader{ra: ra, idx: idx}
}

// Index returns the reader's backing index.
func (r *Reader) Index() *Index { return r.idx }

// Has reports whether oid is present in this pack.
func (r *Reader) Has(oid githash.OID) bool {
	_, ok := r.idx.Find(oid)
	return ok
}

// record is one parsed-but-not-yet-delta-resolved pack entry.
type record struct {
	typ        uint8 // pack type bits: 1 commit 2 tree 3 blob 4 tag 6 ofs 7 ref
	size       uint64
	headerLen  int
	baseOffset int64 // for OFS_DELTA
	baseOID    githash.OID
	hasBaseOID bool // for REF_DELTA
	payloadOff int64
}

func (r *Reader) readRecordHeader(offset int64) (record, error) {
	hdr := make([]byte, 32)
	n, err := r.ra.ReadAt(hdr, offset)
	if err != nil && err != io.EOF {
		return record{}, fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	hdr = hdr[:n]
	typ, size, hn, ok := readTypeAndSize(hdr)
	if !ok {
		return record{}, fmt.Errorf("%w: truncated object header at offset %d", plumbing.ErrCorruptPack, offset)
	}
	rec := record{typ: typ, size: size, headerLen: hn}
	cur := hdr[hn:]
	pos := offset + int64(hn)

	switch typ {
	case 6: // OFS_DELTA
		off, on, ok := readOffsetDelta(cur)
		if !ok {
			// header buffer too small; re-read a larger window
			hdr2 := make([]byte, 32+20)
			n2, _ := r.ra.ReadAt(hdr2, offset)
			hdr2 = hdr2[:n2]
			_, _, hn2, _ := readTypeAndSize(hdr2)
			off, on, ok = readOffsetDelta(hdr2[hn2:])
			if !ok {
				return record{}, fmt.Errorf("%w: truncated ofs-delta offset", plumbing.ErrCorruptPack)
			}
			hn = hn2
		}
		rec.baseOffset = offset - off
		rec.headerLen = hn + on
		pos = offset + int64(rec.headerLen)
	case 7: // REF_DELTA
		if len(cur) < githash.Size {
			hdr2 := make([]byte, 32+20)
			n2, _ := r.ra.ReadAt(hdr2, offset)
			cur = hdr2[hn:n2]
		}
		copy(rec.baseOID[:], cur[:githash.Size])
		rec.hasBaseOID = true
		rec.headerLen = hn + githash.Size
		pos = offset + int64(rec.headerLen)
	default:
		pos = offset + int64(hn)
	}
	rec.payloadOff = pos
	return rec, nil
}

// inflateAt zlib-inflates the deflated object body starting at the given
// file offset, stopping once expectedSize raw bytes have been produced.
func (r *Reader) inflateAt(offset int64, expectedSize uint64) ([]byte, error) {
	sr := io.NewSectionReader(r.ra, offset, 1<<40)
	zr, err := zlib.NewReader(bufio.NewReader(sr))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrCorruptPack, err)
	}
	defer zr.Close()
	out := make([]byte, expectedSize)
	if _, err := io.ReadFull(zr, out); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrCorruptPack, err)
	}
	return out, nil
}

// ResolveAt fully resolves the object record at offset, walking any
// OFS_DELTA/REF_DELTA chain to produce the final (type, payload) pair.
func (r *Reader) ResolveAt(offset int64) (plumbing.ObjectType, []byte, error) {
	return r.resolve(offset, githash.ZeroOID, 0)
}

// ResolveOID resolves an object by id via the pack's index.
func (r *Reader) ResolveOID(oid githash.OID) (plumbing.ObjectType, []byte, error) {
	e, ok := r.idx.Find(oid)
	if !ok {
		return 0, nil, plumbing.NewNotFoundError(oid)
	}
	return r.ResolveAt(int64(e.Offset))
}

func (r *Reader) resolve(offset int64, _ githash.OID, depth int) (plumbing.ObjectType, []byte, error) {
	if depth > MaxDeltaDepth {
		return 0, nil, plumbing.ErrMaxDepthExceeded
	}
	rec, err := r.readRecordHeader(offset)
	if err != nil {
		return 0, nil, err
	}

	switch rec.typ {
	case 1, 2, 3, 4:
		body, err := r.inflateAt(rec.payloadOff, rec.size)
		if err != nil {
			return 0, nil, err
		}
		return plumbing.ObjectTypeFromPackBits(rec.typ), body, nil
	case 6: // OFS_DELTA
		baseTyp, baseBody, err := r.resolve(rec.baseOffset, githash.ZeroOID, depth+1)
		if err != nil {
			return 0, nil, err
		}
		deltaBody, err := r.inflateAt(rec.payloadOff, rec.size)
		if err != nil {
			return 0, nil, err
		}
		out, err := ApplyDelta(baseBody, deltaBody)
		if err != nil {
			return 0, nil, err
		}
		return baseTyp, out, nil
	case 7: // REF_DELTA
		baseOffsetEntry, ok := r.idx.Find(rec.baseOID)
		if !ok {
			return 0, nil, plumbing.NewNotFoundError(rec.baseOID)
		}
		baseTyp, baseBody, err := r.resolve(int64(baseOffsetEntry.Offset), githash.ZeroOID, depth+1)
		if err != nil {
			return 0, nil, err
		}
		deltaBody, err := r.inflateAt(rec.payloadOff, rec.size)
		if err != nil {
			return 0, nil, err
		}
		out, err := ApplyDelta(baseBody, deltaBody)
		if err != nil {
			return 0, nil, err
		}
		return baseTyp, out, nil
	default:
		return 0, nil, fmt.Errorf("%w: unknown pack type bits %d", plumbing.ErrCorruptPack, rec.typ)
	}
}

// Header is a parsed pack file header: magic/version already validated,
// plus the declared object count.
type Header struct {
	Version uint32
	Count   uint32
}

// ReadHeader validates and parses the 12-byte pack header at the start of r.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, 12)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, fmt.Errorf("%w: %v", plumbing.ErrCorruptPack, err)
	}
	if [4]byte(buf[:4]) != packMagic {
		return Header{}, fmt.Errorf("%w: bad pack magic", plumbing.ErrCorruptPack)
	}
	version := binary.BigEndian.Uint32(buf[4:8])
	if version != packVersion {
		return Header{}, fmt.Errorf("%w: unsupported pack version %d", plumbing.ErrCorruptPack, version)
	}
	count := binary.BigEndian.Uint32(buf[8:12])
	return Header{Version: version, Count: count}, nil
}

// VerifyTrailer checks the trailing 20-byte SHA-1 of a complete pack file's
// own bytes (the checksum-before-parse policy used for untrusted packs).
func VerifyTrailer(data []byte) error {
	if len(data) < githash.Size {
		return fmt.Errorf("%w: pack too short for trailer", plumbing.ErrCorruptPack)
	}
	want := githash.Sum(data[:len(data)-githash.Size])
	var got githash.OID
	copy(got[:], data[len(data)-githash.Size:])
	if want != got {
		return fmt.Errorf("%w: pack checksum mismatch", plumbing.ErrChecksumMismatch)
	}
	return nil
}
