package githash

import "hash/crc32"

// CRC32 computes the IEEE-polynomial CRC32 (0xEDB88320, init/final XOR
// 0xFFFFFFFF) used by the pack index to validate each record independently
// of the whole-pack SHA-1 trailer. This is exactly stdlib's CRC-32/IEEE,
// given its own name here because the pack index format specifies it by
// these parameters rather than by "the usual zip/gzip one".
func CRC32(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// CRC32Writer accumulates a running CRC32 across multiple writes, used while
// streaming a pack record so the index writer doesn't need to buffer it
// twice.
type CRC32Writer struct {
	crc uint32
}

func NewCRC32Writer() *CRC32Writer {
	return &CRC32Writer{}
}

func (w *CRC32Writer) Write(p []byte) (int, error) {
	w.crc = crc32.Update(w.crc, crc32.IEEETable, p)
	return len(p), nil
}

func (w *CRC32Writer) Sum32() uint32 {
	return w.crc
}
