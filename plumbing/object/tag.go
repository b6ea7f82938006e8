package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
)

// Tag is an annotated tag: a signed, message-bearing pointer at another
// object (usually a commit). A lightweight tag is just a Reference and has
// no Tag object at all.
type Tag struct {
	Target     githash.OID
	TargetType plumbing.ObjectType
	Name       string
	Tagger     *Identity
	Message    string
	Signature  string
}

func (t *Tag) Type() plumbing.ObjectType { return plumbing.TagObject }

// Encode writes the tag in Git's "object/type/tag/tagger?/<blank>/message"
// format. A PGP signature in Signature, if present, is written verbatim
// after Message (on a new line if Message lacks a trailing newline), since
// Git stores it inline rather than as a separate header.
func (t *Tag) Encode(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "object %s\n", t.Target); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "type %s\n", t.TargetType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "tag %s\n", t.Name); err != nil {
		return err
	}
	if t.Tagger != nil {
		if _, err := fmt.Fprintf(w, "tagger %s\n", *t.Tagger); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	if _, err := io.WriteString(w, t.Message); err != nil {
		return err
	}
	if t.Signature != "" {
		if !strings.HasSuffix(t.Message, "\n") {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, t.Signature)
		return err
	}
	return nil
}

// Decode parses a tag payload. Everything after the blank line, including
// any trailing PGP signature block, is kept as Message; Signature is split
// out separately for callers that want to verify it without re-parsing.
func (t *Tag) Decode(payload []byte) error {
	*t = Tag{}
	r := bufio.NewReader(bytes.NewReader(payload))
	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		text := strings.TrimSuffix(line, "\n")
		atEOF := err == io.EOF
		if text == "" {
			break
		}
		fields := strings.SplitN(text, " ", 2)
		key := fields[0]
		var value string
		if len(fields) == 2 {
			value = fields[1]
		}
		switch key {
		case "object":
			oid, err := githash.FromHex(value)
			if err != nil {
				return fmt.Errorf("object: bad tag object field: %w", err)
			}
			t.Target = oid
		case "type":
			typ := plumbing.ObjectTypeFromString(value)
			if typ == plumbing.InvalidObject {
				return fmt.Errorf("%w: %q", plumbing.ErrInvalidObjectType, value)
			}
			t.TargetType = typ
		case "tag":
			t.Name = value
		case "tagger":
			id := &Identity{}
			if err := id.Decode([]byte(value)); err != nil {
				return err
			}
			t.Tagger = id
		}
		if atEOF {
			break
		}
	}
	rest, _ := io.ReadAll(r)
	t.Message = string(rest)
	if i := strings.Index(t.Message, "-----BEGIN PGP SIGNATURE-----"); i != -1 {
		t.Signature = t.Message[i:]
		t.Message = t.Message[:i]
	}
	if t.Target.IsZero() {
		return fmt.Errorf("%w: tag missing object field", plumbing.ErrCorruptObject)
	}
	return nil
}
