package pack

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"sort"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/sync/errgroup"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

// SourceObject is one object to be packed: its id, type, and full
// (undeltified) payload.
type SourceObject struct {
	OID     githash.OID
	Type    plumbing.ObjectType
	Payload []byte
}

// deltaCandidate is a computed delta against a same-type object earlier in
// the write order.
type deltaCandidate struct {
	baseIndex int
	bytes     []byte
}

// WriteOptions tunes pack generation.
type WriteOptions struct {
	// Window bounds how many preceding same-type objects are considered as
	// delta bases for each object (a simplified stand-in for git's
	// similarity-sorted sliding window).
	Window int
	// Concurrency bounds how many delta searches run in parallel.
	Concurrency int
}

func (o WriteOptions) withDefaults() WriteOptions {
	if o.Window <= 0 {
		o.Window = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// Write generates a complete pack (header, records, trailer) from objects
// and returns the entries needed to build the paired index, plus the pack's
// own SHA-1 checksum. Delta candidates are searched for concurrently via an
// errgroup-bounded pool; compression and final byte layout stay sequential
// so offsets are deterministic.
func Write(ctx context.Context, w io.Writer, objects []SourceObject, opts WriteOptions) ([]IndexEntry, githash.OID, error) {
	opts = opts.withDefaults()
	sorted := make([]SourceObject, len(objects))
	copy(sorted, objects)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		return len(sorted[i].Payload) < len(sorted[j].Payload)
	})

	candidates := make([]*deltaCandidate, len(sorted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := range sorted {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidates[i] = bestDelta(sorted, i, opts.Window)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, githash.ZeroOID, err
	}

	var buf bytes.Buffer
	buf.Write(packMagic[:])
	writeUint32(&buf, packVersion)
	writeUint32(&buf, uint32(len(sorted)))

	entries := make([]IndexEntry, len(sorted))
	for i, obj := range sorted {
		offset := buf.Len()
		var header []byte
		var payload []byte
		if cand := candidates[i]; cand != nil {
			header = appendTypeAndSize(nil, 6, uint64(len(cand.bytes)))
			baseOffset := entries[cand.baseIndex].Offset
			header = appendOffsetDelta(header, int64(offset)-int64(baseOffset))
			payload = cand.bytes
		} else {
			bits, _ := obj.Type.PackTypeBits()
			header = appendTypeAndSize(nil, bits, uint64(len(obj.Payload)))
			payload = obj.Payload
		}

		start := buf.Len()
		buf.Write(header)
		compressed, err := deflate(payload)
		if err != nil {
			return nil, githash.ZeroOID, err
		}
		buf.Write(compressed)
		crc := crc32.ChecksumIEEE(buf.Bytes()[start:])

		entries[i] = IndexEntry{OID: obj.OID, CRC: crc, Offset: uint64(offset)}
	}

	sum := githash.Sum(buf.Bytes())
	buf.Write(sum[:])

	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, githash.ZeroOID, fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	return entries, sum, nil
}

func bestDelta(objs []SourceObject, i int, window int) *deltaCandidate {
	start := i - window
	if start < 0 {
		start = 0
	}
	var best *deltaCandidate
	for j := i - 1; j >= start; j-- {
		if objs[j].Type != objs[i].Type {
			continue
		}
		d := computeDelta(objs[j].Payload, objs[i].Payload)
		if len(d) >= len(objs[i].Payload) {
			continue // delta isn't smaller than storing the object whole
		}
		if best == nil || len(d) < len(best.bytes) {
			best = &deltaCandidate{baseIndex: j, bytes: d}
		}
	}
	return best
}

// computeDelta produces a minimal git-style delta: a single COPY of the
// common prefix/suffix with the differing middle stored as INSERT. This is
// not a general LCS-based differ, but it is a correct, round-trippable
// delta encoding, and the common case (small incremental edits) compresses
// well under it.
func computeDelta(base, target []byte) []byte {
	prefix := commonPrefixLen(base, target)
	suffix := commonSuffixLen(base[prefix:], target[prefix:])

	out := githash.AppendVarint(nil, uint64(len(base)))
	out = githash.AppendVarint(out, uint64(len(target)))

	if prefix > 0 {
		out = appendCopy(out, 0, prefix)
	}
	midStart, midEnd := prefix, len(target)-suffix
	for midStart < midEnd {
		chunk := midEnd - midStart
		if chunk > 0x7f {
			chunk = 0x7f
		}
		out = append(out, byte(chunk))
		out = append(out, target[midStart:midStart+chunk]...)
		midStart += chunk
	}
	if suffix > 0 {
		out = appendCopy(out, len(base)-suffix, suffix)
	}
	return out
}

func appendCopy(dst []byte, offset, size int) []byte {
	op := byte(0x80)
	var args []byte
	if offset&0xff != 0 || offset == 0 {
		op |= 0x01
		args = append(args, byte(offset))
	}
	if offset>>8&0xff != 0 {
		op |= 0x02
		args = append(args, byte(offset>>8))
	}
	if offset>>16&0xff != 0 {
		op |= 0x04
		args = append(args, byte(offset>>16))
	}
	if offset>>24&0xff != 0 {
		op |= 0x08
		args = append(args, byte(offset>>24))
	}
	sz := size
	if sz == 0x10000 {
		sz = 0
	}
	if sz&0xff != 0 || sz == 0 {
		op |= 0x10
		args = append(args, byte(sz))
	}
	if sz>>8&0xff != 0 {
		op |= 0x20
		args = append(args, byte(sz>>8))
	}
	if sz>>16&0xff != 0 {
		op |= 0x40
		args = append(args, byte(sz>>16))
	}
	dst = append(dst, op)
	return append(dst, args...)
}

func commonPrefixLen(a, b []byte) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffixLen(a, b []byte) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}

func deflate(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v >> 24))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v))
}
