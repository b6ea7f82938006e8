package object

import (
	"io"

	"github.com/vcsforge/gitcore/plumbing"
)

// Blob is an opaque byte sequence with no internal structure.
type Blob struct {
	Content []byte
}

func (b *Blob) Type() plumbing.ObjectType { return plumbing.BlobObject }

func (b *Blob) Encode(w io.Writer) error {
	_, err := w.Write(b.Content)
	return err
}

// Size returns the blob's payload length.
func (b *Blob) Size() int64 { return int64(len(b.Content)) }
