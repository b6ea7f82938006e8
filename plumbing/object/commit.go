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

// ExtraHeader is a header line the commit format doesn't give a first-class
// field to (e.g. "encoding", "gpgsig", "mergetag"). K/V are kept separate
// rather than folded into a map so that encode/decode round-trips byte for
// byte and preserves header order.
type ExtraHeader struct {
	K string
	V string
}

// Commit is a snapshot of a tree plus its ancestry and authorship.
type Commit struct {
	Tree         githash.OID
	Parents      []githash.OID
	Author       Identity
	Committer    Identity
	ExtraHeaders []ExtraHeader
	Message      string
}

func (c *Commit) Type() plumbing.ObjectType { return plumbing.CommitObject }

// Encode writes the commit in Git's exact internal format: a run of
// "key value" header lines (continuation lines of a multi-line header value
// are re-prefixed with a single space), a blank line, then the message
// verbatim.
func (c *Commit) Encode(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "tree %s\n", c.Tree); err != nil {
		return err
	}
	for _, p := range c.Parents {
		if _, err := fmt.Fprintf(w, "parent %s\n", p); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "author %s\n", c.Author); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "committer %s\n", c.Committer); err != nil {
		return err
	}
	for _, h := range c.ExtraHeaders {
		if _, err := fmt.Fprintf(w, "%s %s\n", h.K, strings.ReplaceAll(h.V, "\n", "\n ")); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	_, err := io.WriteString(w, c.Message)
	return err
}

// Decode parses a commit payload. Headers are read line by line until the
// first blank line; the remainder is the message. "gpgsig" (and any other
// multi-line header) continuation lines are read until a line that doesn't
// begin with a single space, except inside a PGP signature block, which is
// read through its "-----END PGP SIGNATURE-----" marker so embedded blank
// lines don't terminate the header early.
func (c *Commit) Decode(payload []byte) error {
	*c = Commit{}
	r := bufio.NewReader(bytes.NewReader(payload))
	var inSignature bool
	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		text := strings.TrimSuffix(line, "\n")
		atEOF := err == io.EOF

		if text == "" && !inSignature {
			break // end of headers
		}

		if strings.HasPrefix(text, " ") && len(c.ExtraHeaders) > 0 {
			idx := len(c.ExtraHeaders) - 1
			c.ExtraHeaders[idx].V += "\n" + text[1:]
			if inSignature && strings.TrimSpace(text) == "-----END PGP SIGNATURE-----" {
				inSignature = false
			}
			if atEOF {
				break
			}
			continue
		}

		fields := strings.SplitN(text, " ", 2)
		key := fields[0]
		var value string
		if len(fields) == 2 {
			value = fields[1]
		}
		switch key {
		case "tree":
			oid, err := githash.FromHex(value)
			if err != nil {
				return fmt.Errorf("object: bad commit tree field: %w", err)
			}
			c.Tree = oid
		case "parent":
			oid, err := githash.FromHex(value)
			if err != nil {
				return fmt.Errorf("object: bad commit parent field: %w", err)
			}
			c.Parents = append(c.Parents, oid)
		case "author":
			if err := c.Author.Decode([]byte(value)); err != nil {
				return err
			}
		case "committer":
			if err := c.Committer.Decode([]byte(value)); err != nil {
				return err
			}
		default:
			c.ExtraHeaders = append(c.ExtraHeaders, ExtraHeader{K: key, V: value})
			if key == "gpgsig" {
				inSignature = true
			}
		}
		if atEOF {
			break
		}
	}
	if !atEOFNoMore(r) {
		rest, _ := io.ReadAll(r)
		c.Message += string(rest)
	}
	return nil
}

func atEOFNoMore(r *bufio.Reader) bool {
	_, err := r.Peek(1)
	return err != nil
}

// Header returns the value of a named extra header, if present.
func (c *Commit) Header(key string) (string, bool) {
	for _, h := range c.ExtraHeaders {
		if h.K == key {
			return h.V, true
		}
	}
	return "", false
}

// IsMergeCommit reports whether the commit has more than one parent.
func (c *Commit) IsMergeCommit() bool { return len(c.Parents) > 1 }

// FirstParent returns the first parent id and whether one exists.
func (c *Commit) FirstParent() (githash.OID, bool) {
	if len(c.Parents) == 0 {
		return githash.ZeroOID, false
	}
	return c.Parents[0], true
}

// Subject returns the first line of the commit message.
func (c *Commit) Subject() string {
	if i := strings.IndexAny(c.Message, "\r\n"); i != -1 {
		return c.Message[:i]
	}
	return c.Message
}
