// Package plumbing holds the small, dependency-free vocabulary shared by
// every layer above L0: object kinds, file modes, and the ref namespace.
// It deliberately knows nothing about storage or serialization so it can be
// imported by storage, history, merge and transport alike without cycles.
package plumbing

import "strings"

// ObjectType is the closed set of object kinds addressable by an OID.
type ObjectType int8

const (
	InvalidObject ObjectType = iota
	BlobObject
	TreeObject
	CommitObject
	TagObject
	// OFSDeltaObject and REFDeltaObject only ever appear inside a packfile
	// record header; a fully materialized object is never one of these.
	OFSDeltaObject
	REFDeltaObject
)

func (t ObjectType) String() string {
	switch t {
	case BlobObject:
		return "blob"
	case TreeObject:
		return "tree"
	case CommitObject:
		return "commit"
	case TagObject:
		return "tag"
	case OFSDeltaObject:
		return "ofs-delta"
	case REFDeltaObject:
		return "ref-delta"
	default:
		return "invalid"
	}
}

// ObjectTypeFromString parses the textual form used in the loose-object
// header ("blob 13\0...") and in pack record debug output.
func ObjectTypeFromString(s string) ObjectType {
	switch strings.ToLower(s) {
	case "blob":
		return BlobObject
	case "tree":
		return TreeObject
	case "commit":
		return CommitObject
	case "tag":
		return TagObject
	case "ofs-delta":
		return OFSDeltaObject
	case "ref-delta":
		return REFDeltaObject
	default:
		return InvalidObject
	}
}

// packTypeBits is the 3-bit type field used in pack record headers; it
// differs from the small ObjectType enum above (commit=1, tree=2, blob=3,
// tag=4, ofs-delta=6, ref-delta=7 — 0 and 5 are reserved by the format).
func (t ObjectType) PackTypeBits() (uint8, bool) {
	switch t {
	case CommitObject:
		return 1, true
	case TreeObject:
		return 2, true
	case BlobObject:
		return 3, true
	case TagObject:
		return 4, true
	case OFSDeltaObject:
		return 6, true
	case REFDeltaObject:
		return 7, true
	default:
		return 0, false
	}
}

// ObjectTypeFromPackBits is the inverse of PackTypeBits.
func ObjectTypeFromPackBits(bits uint8) ObjectType {
	switch bits {
	case 1:
		return CommitObject
	case 2:
		return TreeObject
	case 3:
		return BlobObject
	case 4:
		return TagObject
	case 6:
		return OFSDeltaObject
	case 7:
		return REFDeltaObject
	default:
		return InvalidObject
	}
}
