package githash

// AppendVarint appends n encoded as a git-style base-128 varint (7 bits per
// group, MSB of each byte set to signal continuation, groups in little-endian
// order) to dst and returns the extended slice. This is the encoding used for
// pack object sizes, not Go's protobuf-style varint (the continuation bit
// convention matches, but callers in this codebase always want the git
// packfile flavor so it gets its own name).
func AppendVarint(dst []byte, n uint64) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			dst = append(dst, b|0x80)
			continue
		}
		return append(dst, b)
	}
}

// ReadVarint decodes a git-style varint from the front of b, returning the
// value, the number of bytes consumed, and whether the buffer held a
// complete, terminated varint.
func ReadVarint(b []byte) (value uint64, n int, ok bool) {
	var shift uint
	for n < len(b) {
		c := b[n]
		value |= uint64(c&0x7f) << shift
		n++
		if c&0x80 == 0 {
			return value, n, true
		}
		shift += 7
	}
	return 0, 0, false
}
