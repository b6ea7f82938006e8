// Package object implements the canonical serialization and parsing of the
// four Git object kinds, and their content-addressed hashing.
//
// Every object's canonical byte form is "<kind> <decimal-size>\0<payload>";
// its id is the SHA-1 of that full form. Encode always produces that form;
// Decode/Parse always accept it, and round-trips byte for byte.
package object

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

var (
	ErrUnsupportedObject = errors.New("object: unsupported object type")
	ErrInvalidIdentity   = plumbing.ErrInvalidIdentity
)

// Object is implemented by Blob, Tree, Commit, and Tag.
type Object interface {
	Type() plumbing.ObjectType
	// Encode writes the object's payload only (no "<type> <size>\0" header).
	Encode(w io.Writer) error
}

// Backend is the minimal read side object.* needs from the object-store
// façade (L5) to resolve references between objects (a commit's tree, a
// tree's blobs, a tag's target) without importing storage and creating a
// cycle.
type Backend interface {
	Commit(ctx context.Context, oid githash.OID) (*Commit, error)
	Tree(ctx context.Context, oid githash.OID) (*Tree, error)
	Blob(ctx context.Context, oid githash.OID) (*Blob, error)
	Tag(ctx context.Context, oid githash.OID) (*Tag, error)
}

// Encode writes the full canonical byte form (header + payload) of o.
func Encode(w io.Writer, o Object) error {
	var body bytes.Buffer
	if err := o.Encode(&body); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s %d\x00", o.Type(), body.Len()); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// Marshal returns the full canonical byte form of o.
func Marshal(o Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the SHA-1 object id of o's canonical byte form.
func Hash(o Object) (githash.OID, error) {
	b, err := Marshal(o)
	if err != nil {
		return githash.ZeroOID, err
	}
	return githash.Sum(b), nil
}

// splitHeader parses the "<type> <size>\0" header off the front of a
// canonical object and validates that size matches the remaining payload
// exactly.
func splitHeader(full []byte) (typ plumbing.ObjectType, payload []byte, err error) {
	nul := bytes.IndexByte(full, 0)
	if nul < 0 {
		return 0, nil, fmt.Errorf("%w: missing NUL terminator", plumbing.ErrInvalidHeader)
	}
	sp := bytes.IndexByte(full[:nul], ' ')
	if sp < 0 {
		return 0, nil, fmt.Errorf("%w: missing type/size separator", plumbing.ErrInvalidHeader)
	}
	typ = plumbing.ObjectTypeFromString(string(full[:sp]))
	if typ == plumbing.InvalidObject {
		return 0, nil, fmt.Errorf("%w: %q", plumbing.ErrInvalidObjectType, full[:sp])
	}
	var size int
	if _, err := fmt.Sscanf(string(full[sp+1:nul]), "%d", &size); err != nil {
		return 0, nil, fmt.Errorf("%w: bad size field", plumbing.ErrInvalidHeader)
	}
	payload = full[nul+1:]
	if size != len(payload) {
		return 0, nil, fmt.Errorf("%w: header says %d, payload is %d bytes", plumbing.ErrSizeMismatch, size, len(payload))
	}
	return typ, payload, nil
}

// Parse decodes a canonical object buffer (header + payload) into the
// concrete type indicated by its header.
func Parse(full []byte) (Object, error) {
	typ, payload, err := splitHeader(full)
	if err != nil {
		return nil, err
	}
	switch typ {
	case plumbing.BlobObject:
		return &Blob{Content: bytes.Clone(payload)}, nil
	case plumbing.TreeObject:
		t := &Tree{}
		if err := t.Decode(payload); err != nil {
			return nil, err
		}
		return t, nil
	case plumbing.CommitObject:
		c := &Commit{}
		if err := c.Decode(payload); err != nil {
			return nil, err
		}
		return c, nil
	case plumbing.TagObject:
		tg := &Tag{}
		if err := tg.Decode(payload); err != nil {
			return nil, err
		}
		return tg, nil
	default:
		return nil, ErrUnsupportedObject
	}
}

// ParseTyped decodes payload (without the header) as the given kind,
// used by the loose/pack readers, which already know the type from
// their own framing and don't want to re-derive it from a text header.
func ParseTyped(typ plumbing.ObjectType, payload []byte) (Object, error) {
	switch typ {
	case plumbing.BlobObject:
		return &Blob{Content: bytes.Clone(payload)}, nil
	case plumbing.TreeObject:
		t := &Tree{}
		return t, t.Decode(payload)
	case plumbing.CommitObject:
		c := &Commit{}
		return c, c.Decode(payload)
	case plumbing.TagObject:
		tg := &Tag{}
		return tg, tg.Decode(payload)
	default:
		return nil, ErrUnsupportedObject
	}
}
