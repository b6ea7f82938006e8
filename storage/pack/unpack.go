package pack

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

// ExternalLookup resolves a REF_DELTA base that isn't itself one of the
// objects carried in the same pack, i.e. a thin pack's sender assumed the
// receiver already has it.
type ExternalLookup func(oid githash.OID) (plumbing.ObjectType, []byte, error)

// UnpackedObject is one fully resolved object extracted from an incoming
// pack stream: its content-addressed id, type, and raw payload (no
// "<type> <size>\0" header — callers needing the canonical form build it
// themselves, the same way storage/pack.Write expects already-hashed
// SourceObjects rather than computing ids itself).
type UnpackedObject struct {
	OID     githash.OID
	Type    plumbing.ObjectType
	Payload []byte
}

// cursor is a position-tracking reader over an in-memory pack buffer. It
// implements io.Reader and io.ByteReader directly against the slice so
// compress/zlib's flate decoder consumes exactly the compressed bytes
// belonging to each record — handing it a *bufio.Reader instead would let
// flate's own internal buffering read past a record's boundary, and there
// would be no way to tell where the next record's header starts.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) Peek(n int) []byte {
	end := c.pos + n
	if end > len(c.data) {
		end = len(c.data)
	}
	return c.data[c.pos:end]
}

func (c *cursor) Discard(n int) { c.pos += n }

func (c *cursor) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	n := copy(p, c.data[c.pos:])
	c.pos += n
	return n, nil
}

func (c *cursor) ReadByte() (byte, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

func inflateCursor(c *cursor, expectedSize uint64) ([]byte, error) {
	zr, err := zlib.NewReader(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrCorruptPack, err)
	}
	out := make([]byte, expectedSize)
	if _, err := io.ReadFull(zr, out); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrCorruptPack, err)
	}
	// Drain to the stream's end so the zlib checksum trailer is consumed
	// from c too, leaving c positioned exactly at the next record.
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrCorruptPack, err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrCorruptPack, err)
	}
	return out, nil
}

type rawRecord struct {
	offset     int64
	typ        uint8
	baseOffset int64
	baseOID    githash.OID
	hasBaseOID bool
	payload    []byte // compressed-then-inflated bytes: full object body, or a delta
}

// Unpack sequentially decodes every object in a complete, in-memory pack
// stream (header through trailer), resolving OFS_DELTA and REF_DELTA chains
// as it goes. Unlike Reader, which needs a prebuilt Index for random-access
// resolution, Unpack builds the equivalent bookkeeping while discovering a
// stream whose record boundaries are not yet known — the same role git's
// index-pack plays for an object transferred over the wire rather than read
// back off disk.
func Unpack(data []byte, external ExternalLookup) ([]UnpackedObject, githash.OID, error) {
	if len(data) < 12+githash.Size {
		return nil, githash.ZeroOID, fmt.Errorf("%w: pack too short", plumbing.ErrCorruptPack)
	}
	if err := VerifyTrailer(data); err != nil {
		return nil, githash.ZeroOID, err
	}
	sum := githash.Sum(data[:len(data)-githash.Size])

	body := data[:len(data)-githash.Size]
	hdr, err := ReadHeader(bytes.NewReader(body))
	if err != nil {
		return nil, githash.ZeroOID, err
	}

	c := &cursor{data: body, pos: 12}
	raw := make([]rawRecord, 0, hdr.Count)
	offsetIndex := make(map[int64]int, hdr.Count)

	for i := uint32(0); i < hdr.Count; i++ {
		offset := int64(c.pos)
		typ, size, hn, ok := readTypeAndSize(c.Peek(32))
		if !ok {
			return nil, githash.ZeroOID, fmt.Errorf("%w: truncated object header at offset %d", plumbing.ErrCorruptPack, offset)
		}
		c.Discard(hn)

		rec := rawRecord{offset: offset, typ: typ}
		switch typ {
		case 6: // OFS_DELTA
			off, on, ok := readOffsetDelta(c.Peek(10))
			if !ok {
				return nil, githash.ZeroOID, fmt.Errorf("%w: truncated ofs-delta offset", plumbing.ErrCorruptPack)
			}
			c.Discard(on)
			rec.baseOffset = offset - off
		case 7: // REF_DELTA
			copy(rec.baseOID[:], c.Peek(githash.Size))
			c.Discard(githash.Size)
			rec.hasBaseOID = true
		}

		payload, err := inflateCursor(c, size)
		if err != nil {
			return nil, githash.ZeroOID, err
		}
		rec.payload = payload
		offsetIndex[offset] = len(raw)
		raw = append(raw, rec)
	}

	resolved := make([]UnpackedObject, len(raw))
	done := make([]bool, len(raw))
	byOID := make(map[githash.OID]int, len(raw))

	var resolve func(i, depth int) (plumbing.ObjectType, []byte, error)
	resolve = func(i, depth int) (plumbing.ObjectType, []byte, error) {
		if done[i] {
			return resolved[i].Type, resolved[i].Payload, nil
		}
		if depth > MaxDeltaDepth {
			return 0, nil, plumbing.ErrMaxDepthExceeded
		}
		r := raw[i]
		var typ plumbing.ObjectType
		var payload []byte
		switch r.typ {
		case 1, 2, 3, 4:
			typ, payload = plumbing.ObjectTypeFromPackBits(r.typ), r.payload
		case 6:
			baseIdx, ok := offsetIndex[r.baseOffset]
			if !ok {
				return 0, nil, fmt.Errorf("%w: ofs-delta base offset %d not found", plumbing.ErrCorruptPack, r.baseOffset)
			}
			baseTyp, baseBody, err := resolve(baseIdx, depth+1)
			if err != nil {
				return 0, nil, err
			}
			out, err := ApplyDelta(baseBody, r.payload)
			if err != nil {
				return 0, nil, err
			}
			typ, payload = baseTyp, out
		case 7:
			if baseIdx, ok := byOID[r.baseOID]; ok {
				baseTyp, baseBody, err := resolve(baseIdx, depth+1)
				if err != nil {
					return 0, nil, err
				}
				out, err := ApplyDelta(baseBody, r.payload)
				if err != nil {
					return 0, nil, err
				}
				typ, payload = baseTyp, out
			} else if external != nil {
				baseTyp, baseBody, err := external(r.baseOID)
				if err != nil {
					return 0, nil, err
				}
				out, err := ApplyDelta(baseBody, r.payload)
				if err != nil {
					return 0, nil, err
				}
				typ, payload = baseTyp, out
			} else {
				return 0, nil, plumbing.NewNotFoundError(r.baseOID)
			}
		default:
			return 0, nil, fmt.Errorf("%w: unknown pack type bits %d", plumbing.ErrCorruptPack, r.typ)
		}

		oid := githash.Sum(fmt.Appendf(nil, "%s %d\x00%s", typ, len(payload), payload))
		resolved[i] = UnpackedObject{OID: oid, Type: typ, Payload: payload}
		done[i] = true
		byOID[oid] = i
		return typ, payload, nil
	}

	// REF_DELTA bases may be any earlier object in the pack regardless of
	// delta kind, so resolve in stream order: non-delta and OFS_DELTA
	// objects populate byOID before later REF_DELTA records need them.
	for i := range raw {
		if _, _, err := resolve(i, 0); err != nil {
			return nil, githash.ZeroOID, err
		}
	}

	return resolved, sum, nil
}
