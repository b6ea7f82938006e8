package plumbing

import (
	"fmt"
	"strings"

	"github.com/vcsforge/gitcore/githash"
)

const (
	ReferencePrefix = "refs/"
	refHeadPrefix   = ReferencePrefix + "heads/"
	refTagPrefix    = ReferencePrefix + "tags/"
	refRemotePrefix = ReferencePrefix + "remotes/"
	refNotePrefix   = ReferencePrefix + "notes/"
	symrefPrefix    = "ref: "
)

// Special top-level refs recognized outside refs/**.
const (
	HEAD             ReferenceName = "HEAD"
	FETCH_HEAD       ReferenceName = "FETCH_HEAD"
	ORIG_HEAD        ReferenceName = "ORIG_HEAD"
	MERGE_HEAD       ReferenceName = "MERGE_HEAD"
	CHERRY_PICK_HEAD ReferenceName = "CHERRY_PICK_HEAD"
	REVERT_HEAD      ReferenceName = "REVERT_HEAD"
	BISECT_HEAD      ReferenceName = "BISECT_HEAD"
	Stash            ReferenceName = "refs/stash"
)

var topLevelSpecialRefs = map[ReferenceName]bool{
	HEAD: true, FETCH_HEAD: true, ORIG_HEAD: true, MERGE_HEAD: true,
	CHERRY_PICK_HEAD: true, REVERT_HEAD: true, BISECT_HEAD: true,
}

// ReferenceType distinguishes a direct (hash) ref from a symbolic one.
type ReferenceType int8

const (
	InvalidReference ReferenceType = iota
	HashReference
	SymbolicReference
)

func (t ReferenceType) String() string {
	switch t {
	case HashReference:
		return "hash-reference"
	case SymbolicReference:
		return "symbolic-reference"
	default:
		return "invalid-reference"
	}
}

// ReferenceName is a ref's full path, e.g. "refs/heads/main" or "HEAD".
type ReferenceName string

func NewBranchReferenceName(name string) ReferenceName {
	return ReferenceName(refHeadPrefix + name)
}

func NewTagReferenceName(name string) ReferenceName {
	return ReferenceName(refTagPrefix + name)
}

func NewRemoteReferenceName(remote, name string) ReferenceName {
	return ReferenceName(fmt.Sprintf("%s%s/%s", refRemotePrefix, remote, name))
}

func (r ReferenceName) IsBranch() bool { return strings.HasPrefix(string(r), refHeadPrefix) }
func (r ReferenceName) IsTag() bool    { return strings.HasPrefix(string(r), refTagPrefix) }
func (r ReferenceName) IsRemote() bool { return strings.HasPrefix(string(r), refRemotePrefix) }
func (r ReferenceName) IsNote() bool   { return strings.HasPrefix(string(r), refNotePrefix) }

func (r ReferenceName) BranchName() string { return strings.TrimPrefix(string(r), refHeadPrefix) }
func (r ReferenceName) TagName() string    { return strings.TrimPrefix(string(r), refTagPrefix) }

func (r ReferenceName) String() string { return string(r) }

// Reference is a resolved or symbolic ref value: either a direct pointer
// to an object id or a symbolic pointer to another reference name.
type Reference struct {
	t      ReferenceType
	name   ReferenceName
	oid    githash.OID
	target ReferenceName
}

func NewHashReference(name ReferenceName, oid githash.OID) *Reference {
	return &Reference{t: HashReference, name: name, oid: oid}
}

func NewSymbolicReference(name, target ReferenceName) *Reference {
	return &Reference{t: SymbolicReference, name: name, target: target}
}

// NewReferenceFromStrings builds a Reference from a (name, value) pair as
// found in a loose ref file or a packed-refs line: value is either
// "ref: <target>" or a 40-hex object id.
func NewReferenceFromStrings(name, value string) (*Reference, error) {
	n := ReferenceName(name)
	if strings.HasPrefix(value, symrefPrefix) {
		return NewSymbolicReference(n, ReferenceName(strings.TrimSpace(value[len(symrefPrefix):]))), nil
	}
	oid, err := githash.FromHex(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefName, err)
	}
	return NewHashReference(n, oid), nil
}

func (r *Reference) Type() ReferenceType  { return r.t }
func (r *Reference) Name() ReferenceName  { return r.name }
func (r *Reference) Hash() githash.OID    { return r.oid }
func (r *Reference) Target() ReferenceName { return r.target }

// String renders the ref the way a loose ref file stores it, minus the
// trailing newline.
func (r *Reference) String() string {
	switch r.t {
	case HashReference:
		return r.oid.String()
	case SymbolicReference:
		return symrefPrefix + string(r.target)
	default:
		return ""
	}
}

// refnameDisposition classifies each byte per Git's check_refname_component:
// 0 ok, 1 end-of-component ('/'), 2 '.', 3 '{', 4 always bad, 5 '*'.
var refnameDisposition = [256]byte{
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 5, 0, 0, 0, 2, 1,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 4, 0, 0, 0, 0, 4,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 4, 4, 0, 4, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 4, 4,
}

// checkRefnameComponent returns the length of one valid path component at
// the front of name, or -1 if it is not a legal component (bad character,
// "..", "@{", leading ".", or a trailing ".lock").
func checkRefnameComponent(name []byte, allowGlob bool) int {
	last := byte(0)
	i := 0
	for ; i < len(name); i++ {
		ch := name[i]
		switch refnameDisposition[ch] {
		case 1:
			goto doneComponent
		case 2:
			if last == '.' {
				return -1
			}
		case 3:
			if last == '@' {
				return -1
			}
		case 4:
			return -1
		case 5:
			if !allowGlob {
				return -1
			}
		}
		last = ch
	}
doneComponent:
	if i == 0 {
		return 0
	}
	if name[0] == '.' {
		return -1
	}
	if i >= 5 && string(name[i-5:i]) == ".lock" {
		return -1
	}
	return i
}

// ValidateReferenceName applies Git's ref-name rules: no "..", no "@{", no
// control characters, none of "~^:?*[\ " (space), no empty or leading-"."
// components, no component ending ".lock", and not the bare "@".
func ValidateReferenceName(name ReferenceName) bool {
	return validateReferenceNameBytes([]byte(name), false)
}

func validateReferenceNameBytes(b []byte, allowGlob bool) bool {
	if len(b) == 0 || string(b) == "@" {
		return false
	}
	rest := b
	for {
		n := checkRefnameComponent(rest, allowGlob)
		if n <= 0 {
			return false
		}
		if len(rest) == n {
			break
		}
		rest = rest[n+1:]
	}
	if rest[len(rest)-1] == '.' {
		return false
	}
	return true
}

// ValidateRefspecPattern is ValidateReferenceName but additionally allows a
// single "*" wildcard component, for refspec sides.
func ValidateRefspecPattern(s string) bool {
	return validateReferenceNameBytes([]byte(s), true)
}

// IsSpecialTopLevelRef reports whether name is one of HEAD, FETCH_HEAD, etc.
// — refs that live outside refs/** and are exempt from the "no bare
// top-level name" convention applied to branches.
func IsSpecialTopLevelRef(name ReferenceName) bool {
	return topLevelSpecialRefs[name]
}

// ReferenceSlice attaches sort.Interface, sorting refs by name — the order
// packed-refs is written in.
type ReferenceSlice []*Reference

func (p ReferenceSlice) Len() int           { return len(p) }
func (p ReferenceSlice) Less(i, j int) bool { return p[i].Name() < p[j].Name() }
func (p ReferenceSlice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
