package object

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Identity is an author/committer/tagger line: name, email, and a moment in
// time expressed as a unix timestamp plus a literal timezone offset. The
// offset text itself is preserved rather than folded into a *time.Location,
// since "+0000" and "-0000" round-trip differently.
type Identity struct {
	Name     string
	Email    string
	When     time.Time
	TZOffset string // e.g. "+0000"; always matches /^[+-]\d{4}$/
}

// Decode parses a trailing identity line of the form
// "Name <email> 1600000000 +0000" (the part after "author "/"committer ").
func (s *Identity) Decode(b []byte) error {
	open := bytes.LastIndexByte(b, '<')
	closeB := bytes.LastIndexByte(b, '>')
	if open == -1 || closeB == -1 || closeB < open {
		return fmt.Errorf("%w: malformed identity %q", ErrInvalidIdentity, b)
	}
	s.Name = string(bytes.TrimRight(b[:open], " "))
	s.Email = string(b[open+1 : closeB])

	rest := bytes.TrimLeft(b[closeB+1:], " ")
	fields := bytes.Fields(rest)
	if len(fields) != 2 {
		return fmt.Errorf("%w: malformed identity timestamp %q", ErrInvalidIdentity, b)
	}
	ts, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	tz := string(fields[1])
	if !validTZOffset(tz) {
		return fmt.Errorf("%w: bad timezone %q", ErrInvalidIdentity, tz)
	}
	s.When = time.Unix(ts, 0).UTC()
	s.TZOffset = tz
	return nil
}

func validTZOffset(s string) bool {
	if len(s) != 5 {
		return false
	}
	if s[0] != '+' && s[0] != '-' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// String renders the identity exactly as Git's internal commit/tag format
// expects it: "Name <email> <unix-seconds> <+/-HHMM>".
func (s Identity) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.TZOffset)
}
