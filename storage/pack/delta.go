package pack

import (
	"fmt"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

// ApplyDelta reconstructs a target object from base and a delta instruction
// stream in Git's pack delta format: a varint source size, a varint target
// size, then a run of COPY (0x80 high bit set: offset/size from the
// following optional bytes) and INSERT (low 7 bits: literal byte count)
// instructions.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	srcSize, n, ok := githash.ReadVarint(delta)
	if !ok {
		return nil, fmt.Errorf("%w: truncated delta source size", plumbing.ErrCorruptPack)
	}
	delta = delta[n:]
	if uint64(len(base)) != srcSize {
		return nil, fmt.Errorf("%w: delta base size mismatch: have %d want %d", plumbing.ErrCorruptPack, len(base), srcSize)
	}

	targetSize, n, ok := githash.ReadVarint(delta)
	if !ok {
		return nil, fmt.Errorf("%w: truncated delta target size", plumbing.ErrCorruptPack)
	}
	delta = delta[n:]

	out := make([]byte, 0, targetSize)
	for len(delta) > 0 {
		op := delta[0]
		delta = delta[1:]
		if op&0x80 != 0 {
			var offset, size uint32
			if op&0x01 != 0 {
				offset |= uint32(next(&delta))
			}
			if op&0x02 != 0 {
				offset |= uint32(next(&delta)) << 8
			}
			if op&0x04 != 0 {
				offset |= uint32(next(&delta)) << 16
			}
			if op&0x08 != 0 {
				offset |= uint32(next(&delta)) << 24
			}
			if op&0x10 != 0 {
				size |= uint32(next(&delta))
			}
			if op&0x20 != 0 {
				size |= uint32(next(&delta)) << 8
			}
			if op&0x40 != 0 {
				size |= uint32(next(&delta)) << 16
			}
			if size == 0 {
				size = 0x10000
			}
			end := uint64(offset) + uint64(size)
			if end > uint64(len(base)) {
				return nil, fmt.Errorf("%w: delta copy out of range", plumbing.ErrCorruptPack)
			}
			out = append(out, base[offset:end]...)
		} else if op != 0 {
			size := int(op)
			if size > len(delta) {
				return nil, fmt.Errorf("%w: truncated delta insert", plumbing.ErrCorruptPack)
			}
			out = append(out, delta[:size]...)
			delta = delta[size:]
		} else {
			return nil, fmt.Errorf("%w: reserved delta opcode 0", plumbing.ErrCorruptPack)
		}
	}
	if uint64(len(out)) != targetSize {
		return nil, fmt.Errorf("%w: delta target size mismatch: got %d want %d", plumbing.ErrCorruptPack, len(out), targetSize)
	}
	return out, nil
}

func next(b *[]byte) byte {
	if len(*b) == 0 {
		return 0
	}
	v := (*b)[0]
	*b = (*b)[1:]
	return v
}
