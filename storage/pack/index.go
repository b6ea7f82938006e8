package pack

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

var idxMagic = [4]byte{0xff, 't', 'O', 'c'}

const idxVersion = 2

// IndexEntry is one object's index record: its id, the CRC32 of its
// (still-deflated) pack record, and its byte offset into the pack.
type IndexEntry struct {
	OID    githash.OID
	CRC    uint32
	Offset uint64
}

// Index is a parsed .idx v2 file: a 256-way fanout table over the sorted
// object ids plus their CRC32s and pack offsets.
type Index struct {
	entries      []IndexEntry
	byOID        map[githash.OID]*IndexEntry
	PackChecksum githash.OID
}

// ReadIndex parses a complete .idx v2 file. Per the checksum-before-parse
// policy (SPEC_FULL.md), the trailing SHA-1 self-checksum is verified
// against the file's own bytes before any fanout/offset table is trusted.
func ReadIndex(r io.ReadSeeker) (*Index, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrIOFailed, err)
	}
	if len(raw) < 4+4+256*4+20+20 {
		return nil, fmt.Errorf("%w: index file too short", plumbing.ErrCorruptIndex)
	}

	selfSum := githash.Sum(raw[:len(raw)-githash.Size])
	var want githash.OID
	copy(want[:], raw[len(raw)-githash.Size:])
	if selfSum != want {
		return nil, fmt.Errorf("%w: index checksum mismatch", plumbing.ErrChecksumMismatch)
	}

	if [4]byte(raw[:4]) != idxMagic {
		return nil, fmt.Errorf("%w: bad index magic", plumbing.ErrCorruptIndex)
	}
	version := binary.BigEndian.Uint32(raw[4:8])
	if version != idxVersion {
		return nil, fmt.Errorf("%w: unsupported index version %d", plumbing.ErrCorruptIndex, version)
	}

	off := 8
	var fanout [256]uint32
	for i := range fanout {
		fanout[i] = binary.BigEndian.Uint32(raw[off : off+4])
		off += 4
	}
	count := int(fanout[255])

	idsOff := off
	oids := make([]githash.OID, count)
	for i := 0; i < count; i++ {
		copy(oids[i][:], raw[idsOff+i*githash.Size:idsOff+(i+1)*githash.Size])
	}
	crcOff := idsOff + count*githash.Size
	crcs := make([]uint32, count)
	for i := 0; i < count; i++ {
		crcs[i] = binary.BigEndian.Uint32(raw[crcOff+i*4 : crcOff+i*4+4])
	}
	smallOff := crcOff + count*4
	smallOffsets := make([]uint32, count)
	for i := 0; i < count; i++ {
		smallOffsets[i] = binary.BigEndian.Uint32(raw[smallOff+i*4 : smallOff+i*4+4])
	}
	largeOff := smallOff + count*4

	var nLarge int
	for _, o := range smallOffsets {
		if o&0x80000000 != 0 {
			idx := int(o &^ 0x80000000)
			if idx+1 > nLarge {
				nLarge = idx + 1
			}
		}
	}
	largeOffsets := make([]uint64, nLarge)
	for i := 0; i < nLarge; i++ {
		largeOffsets[i] = binary.BigEndian.Uint64(raw[largeOff+i*8 : largeOff+i*8+8])
	}
	trailerOff := largeOff + nLarge*8
	if trailerOff+githash.Size+githash.Size != len(raw) {
		return nil, fmt.Errorf("%w: index trailer misaligned", plumbing.ErrCorruptIndex)
	}

	idx := &Index{entries: make([]IndexEntry, count), byOID: make(map[githash.OID]*IndexEntry, count)}
	copy(idx.PackChecksum[:], raw[trailerOff:trailerOff+githash.Size])
	for i := 0; i < count; i++ {
		entryOffset := uint64(smallOffsets[i])
		if smallOffsets[i]&0x80000000 != 0 {
			entryOffset = largeOffsets[smallOffsets[i]&^0x80000000]
		}
		idx.entries[i] = IndexEntry{OID: oids[i], CRC: crcs[i], Offset: entryOffset}
	}
	for i := range idx.entries {
		idx.byOID[idx.entries[i].OID] = &idx.entries[i]
	}
	return idx, nil
}

// Find looks up an object id's pack offset and CRC32.
func (idx *Index) Find(oid githash.OID) (IndexEntry, bool) {
	e, ok := idx.byOID[oid]
	if !ok {
		return IndexEntry{}, false
	}
	return *e, true
}

// Entries returns the index's entries in ascending object-id order.
func (idx *Index) Entries() []IndexEntry {
	return idx.entries
}

// Count returns the number of indexed objects.
func (idx *Index) Count() int { return len(idx.entries) }

// WriteIndex emits a .idx v2 file for entries (which need not already be
// sorted) and the pack's trailing SHA-1 checksum.
func WriteIndex(w io.Writer, entries []IndexEntry, packChecksum githash.OID) error {
	sorted := make([]IndexEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return githash.Compare(sorted[i].OID, sorted[j].OID) < 0 })

	bw := bufio.NewWriter(w)

	full := make([]byte, 0, 4+4+256*4)
	full = append(full, idxMagic[:]...)
	full = binary.BigEndian.AppendUint32(full, idxVersion)

	var fanout [256]uint32
	for _, e := range sorted {
		fanout[e.OID[0]]++
	}
	for i := 1; i < 256; i++ {
		fanout[i] += fanout[i-1]
	}
	for _, v := range fanout {
		full = binary.BigEndian.AppendUint32(full, v)
	}

	var large []uint64
	for _, e := range sorted {
		full = append(full, e.OID[:]...)
	}
	for _, e := range sorted {
		full = binary.BigEndian.AppendUint32(full, e.CRC)
	}
	for _, e := range sorted {
		if e.Offset > 0x7fffffff {
			full = binary.BigEndian.AppendUint32(full, uint32(0x80000000|uint64(len(large))))
			large = append(large, e.Offset)
		} else {
			full = binary.BigEndian.AppendUint32(full, uint32(e.Offset))
		}
	}
	for _, o := range large {
		full = binary.BigEndian.AppendUint64(full, o)
	}
	full = append(full, packChecksum[:]...)

	if _, err := bw.Write(full); err != nil {
		return err
	}
	selfSum := githash.Sum(full)
	if _, err := bw.Write(selfSum[:]); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadIndexFile is a convenience wrapper over ReadIndex for callers holding
// a path rather than an already-open handle.
func ReadIndexFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadIndex(f)
}
