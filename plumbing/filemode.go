package plumbing

import "fmt"

// FileMode is the closed set of tree-entry modes Git recognizes. Values are
// the literal octal numbers Git uses on the wire and on disk, so a FileMode
// can be printed with %06o directly.
type FileMode uint32

const (
	Regular    FileMode = 0o100644
	Executable FileMode = 0o100755
	Symlink    FileMode = 0o120000
	Dir        FileMode = 0o040000
	Submodule  FileMode = 0o160000
)

// IsValid reports whether m is one of the five modes Git assigns meaning
// to; any other value is a corrupt tree entry.
func (m FileMode) IsValid() bool {
	switch m {
	case Regular, Executable, Symlink, Dir, Submodule:
		return true
	default:
		return false
	}
}

// IsDir reports whether the entry is a subtree.
func (m FileMode) IsDir() bool {
	return m == Dir
}

// String renders the mode the way `ls-tree` displays it: zero-padded to
// six octal digits, including for directories ("040000").
func (m FileMode) String() string {
	return fmt.Sprintf("%06o", uint32(m))
}

// TreeFormat renders the mode the way it is actually stored inside a tree
// object's byte stream: un-padded octal, so a directory is "40000" (five
// digits) while every other mode happens to already be six.
func (m FileMode) TreeFormat() string {
	return fmt.Sprintf("%o", uint32(m))
}

// ParseFileMode parses the octal mode text found in a tree entry or
// index line.
func ParseFileMode(s string) (FileMode, error) {
	var v uint32
	if _, err := fmt.Sscanf(s, "%o", &v); err != nil {
		return 0, fmt.Errorf("plumbing: invalid file mode %q: %w", s, err)
	}
	m := FileMode(v)
	if !m.IsValid() {
		return 0, fmt.Errorf("%w: %06o", ErrInvalidMode, v)
	}
	return m, nil
}
