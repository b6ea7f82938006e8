// Package githash implements the L0 hashing and byte-codec primitives the
// rest of the core builds on: SHA-1 object identifiers, git-style varints,
// and the CRC32 variant used by the pack index.
package githash

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sort"
)

const (
	// Size is the number of bytes in a raw object id.
	Size = 20
	// HexSize is the number of hex characters in a textual object id.
	HexSize = Size * 2
)

// ErrInvalidHex is returned when a string cannot be parsed as a 40-character
// lowercase hex object id.
var ErrInvalidHex = errors.New("githash: invalid hex object id")

// OID is a 20-byte SHA-1 object identifier, carried by value so it can be
// used as a map key and compared with ==.
type OID [Size]byte

// ZeroOID is the all-zero object id used by the wire protocol to mean
// "no object" (e.g. a ref being created or deleted).
var ZeroOID OID

// FromHex parses a 40-character lowercase hex string into an OID. It is
// total for well-formed input and returns ErrInvalidHex otherwise.
func FromHex(s string) (OID, error) {
	var oid OID
	if len(s) != HexSize {
		return oid, fmt.Errorf("%w: length %d", ErrInvalidHex, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return oid, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	copy(oid[:], b)
	return oid, nil
}

// MustFromHex is like FromHex but panics on error. Intended for constants
// and tests where the input is known to be valid.
func MustFromHex(s string) OID {
	oid, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return oid
}

// String renders the OID as lowercase hex.
func (o OID) String() string {
	return hex.EncodeToString(o[:])
}

// IsZero reports whether this is the zero OID.
func (o OID) IsZero() bool {
	return o == ZeroOID
}

// Bytes returns the raw 20-byte form.
func (o OID) Bytes() []byte {
	return o[:]
}

// Compare provides a total order over OIDs, used for pack ordering and
// packed-refs / pack-index sorting.
func Compare(a, b OID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Slice attaches sort.Interface to []OID, sorting in increasing order.
type Slice []OID

func (s Slice) Len() int           { return len(s) }
func (s Slice) Less(i, j int) bool { return Compare(s[i], s[j]) < 0 }
func (s Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Sort sorts a slice of OIDs in increasing order.
func Sort(s []OID) { sort.Sort(Slice(s)) }

// Hasher is a streaming SHA-1 hasher that produces an OID. Unlike the raw
// hash.Hash it wraps, writing to it after Finalize without an intervening
// Reset panics, matching the "re-use after finalize" contract in spec L0.
type Hasher struct {
	h        hash.Hash
	finished bool
}

// NewHasher returns a ready-to-use streaming hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha1.New()}
}

// Write implements io.Writer. Writing after Finalize without Reset panics,
// since that would silently hash a truncated stream.
func (hs *Hasher) Write(p []byte) (int, error) {
	if hs.finished {
		panic("githash: Hasher written to after Finalize without Reset")
	}
	return hs.h.Write(p)
}

// Finalize returns the OID of everything written so far.
func (hs *Hasher) Finalize() OID {
	hs.finished = true
	var oid OID
	copy(oid[:], hs.h.Sum(nil))
	return oid
}

// Reset allows the hasher to be reused for a new stream.
func (hs *Hasher) Reset() {
	hs.h.Reset()
	hs.finished = false
}

// Sum hashes buf in one shot. sha1(serialize(x)) in spec terms.
func Sum(buf []byte) OID {
	var oid OID
	sum := sha1.Sum(buf)
	copy(oid[:], sum[:])
	return oid
}
