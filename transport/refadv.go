package transport

import (
	"context"
	"fmt"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
	"github.com/vcsforge/gitcore/transport/pktline"
)

// RefLister is the read side of a ref store a transport needs to advertise
// refs: enumerate everything and resolve symbolic refs (HEAD) to a concrete
// id.
type RefLister interface {
	List() (plumbing.ReferenceSlice, error)
	Resolve(name plumbing.ReferenceName) (*plumbing.Reference, error)
}

// AdvertisedRef is one line of a ref advertisement, peeled when it names an
// annotated tag (PeeledOID is then the tag's target commit).
type AdvertisedRef struct {
	OID       githash.OID
	Name      plumbing.ReferenceName
	PeeledOID githash.OID
}

// Advertise lists every concrete ref worth offering a client, peeling
// annotated tags so the client's want/have negotiation can reach the tagged
// commit directly without fetching the tag object first.
func Advertise(ctx context.Context, refs RefLister, backend object.Backend) ([]AdvertisedRef, error) {
	list, err := refs.List()
	if err != nil {
		return nil, fmt.Errorf("transport: listing refs: %w", err)
	}
	out := make([]AdvertisedRef, 0, len(list))
	for _, ref := range list {
		resolved := ref
		if ref.Type() == plumbing.SymbolicReference {
			r, err := refs.Resolve(ref.Name())
			if err != nil {
				continue
			}
			resolved = r
		}
		adv := AdvertisedRef{OID: resolved.Hash(), Name: ref.Name()}
		if ref.Name().IsTag() {
			if tag, err := backend.Tag(ctx, resolved.Hash()); err == nil {
				adv.PeeledOID = tag.Target
			}
		}
		out = append(out, adv)
	}
	return out, nil
}

// WriteRefAdvertisement writes the info/refs response body: the first
// advertised ref (or a synthetic "capabilities^{}" line when there are no
// refs at all) carries the capability list after a NUL, every ref after
// that is a plain "<id> <name>" line, and an annotated tag is immediately
// followed by its peeled "<id> <name>^{}" line.
func WriteRefAdvertisement(w *pktline.Writer, refs []AdvertisedRef, caps CapList) error {
	if len(refs) == 0 {
		if err := w.WriteString(fmt.Sprintf("%s capabilities^{}\x00%s\n", githash.ZeroOID, caps)); err != nil {
			return err
		}
		return w.Flush()
	}
	for i, ref := range refs {
		line := fmt.Sprintf("%s %s", ref.OID, ref.Name)
		if i == 0 {
			line = fmt.Sprintf("%s\x00%s", line, caps)
		}
		if err := w.WriteString(line + "\n"); err != nil {
			return err
		}
		if ref.PeeledOID != githash.ZeroOID {
			if err := w.WriteString(fmt.Sprintf("%s %s^{}\n", ref.PeeledOID, ref.Name)); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}
