package transport

import (
	"bytes"
	"context"
	"io"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/history"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
	"github.com/vcsforge/gitcore/storage/pack"
)

// ReachableObjects collects the commits newly reachable from wants but not
// from haves, along with every tree and blob those commits introduce, ready
// to hand to storage/pack.Write. It mirrors the upload-pack reachability
// rule: "wants minus haves", computed over commits via history.Walker and
// extended to trees/blobs by flattening each new commit's tree against
// everything already known from the have side.
func ReachableObjects(ctx context.Context, backend object.Backend, wants, haves []githash.OID) ([]pack.SourceObject, error) {
	known := make(map[githash.OID]bool, len(haves)*8)
	for _, h := range haves {
		c, err := backend.Commit(ctx, h)
		if err != nil {
			continue // a have the server doesn't recognize contributes nothing
		}
		known[h] = true
		if err := flattenKnown(ctx, backend, c.Tree, known); err != nil {
			return nil, err
		}
	}

	walker, err := history.NewWalker(ctx, backend, history.OrderDate, wants, haves)
	if err != nil {
		return nil, err
	}

	var out []pack.SourceObject
	for {
		oid, commit, err := walker.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if known[oid] {
			continue
		}
		known[oid] = true
		payload, err := encodePayload(commit)
		if err != nil {
			return nil, err
		}
		out = append(out, pack.SourceObject{OID: oid, Type: plumbing.CommitObject, Payload: payload})
		if err := collectTree(ctx, backend, commit.Tree, known, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodePayload(o object.Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := o.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func flattenKnown(ctx context.Context, backend object.Backend, treeOID githash.OID, known map[githash.OID]bool) error {
	if treeOID == githash.ZeroOID || known[treeOID] {
		return nil
	}
	known[treeOID] = true
	t, err := backend.Tree(ctx, treeOID)
	if err != nil {
		if plumbing.IsNotFound(err) {
			return nil
		}
		return err
	}
	for _, e := range t.Entries {
		if known[e.Hash] {
			continue
		}
		if e.Mode.IsDir() {
			if err := flattenKnown(ctx, backend, e.Hash, known); err != nil {
				return err
			}
			continue
		}
		known[e.Hash] = true
	}
	return nil
}

func collectTree(ctx context.Context, backend object.Backend, treeOID githash.OID, known map[githash.OID]bool, out *[]pack.SourceObject) error {
	if treeOID == githash.ZeroOID || known[treeOID] {
		return nil
	}
	known[treeOID] = true
	t, err := backend.Tree(ctx, treeOID)
	if err != nil {
		return err
	}
	payload, err := encodePayload(t)
	if err != nil {
		return err
	}
	*out = append(*out, pack.SourceObject{OID: treeOID, Type: plumbing.TreeObject, Payload: payload})
	for _, e := range t.Entries {
		if known[e.Hash] {
			continue
		}
		if e.Mode.IsDir() {
			if err := collectTree(ctx, backend, e.Hash, known, out); err != nil {
				return err
			}
			continue
		}
		known[e.Hash] = true
		blob, err := backend.Blob(ctx, e.Hash)
		if err != nil {
			return err
		}
		blobPayload, err := encodePayload(blob)
		if err != nil {
			return err
		}
		*out = append(*out, pack.SourceObject{OID: e.Hash, Type: plumbing.BlobObject, Payload: blobPayload})
	}
	return nil
}
