package transport

import (
	"fmt"
	"strings"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
	"github.com/vcsforge/gitcore/storage/pack"
	"github.com/vcsforge/gitcore/transport/pktline"
)

// RefUpdateCommand is one "<old-id> <new-id> <ref-name>" line of a
// receive-pack request: a create (old is zero), update, or delete (new is
// zero).
type RefUpdateCommand struct {
	Old  githash.OID
	New  githash.OID
	Name plumbing.ReferenceName
}

// ObjectPutter is the write side of the object store receive-pack needs:
// storing a fully decoded object and returning its id, matching
// storage.Store.Put.
type ObjectPutter interface {
	Put(obj object.Object) (githash.OID, error)
}

// RefStore is the write side of the ref store receive-pack needs: an atomic
// compare-and-swap update per ref, matching storage/refs.Store.
type RefStore interface {
	CompareAndSwap(name plumbing.ReferenceName, old, newOID githash.OID) error
}

// ParseReceivePackCommands reads the command list that precedes the
// packfile in a receive-pack request: one or more "<old> <new> <ref>" lines
// (the first carrying the client's capabilities after a NUL), terminated by
// a flush-pkt.
func ParseReceivePackCommands(r *pktline.Reader, limits Limits) ([]RefUpdateCommand, CapList, error) {
	var cmds []RefUpdateCommand
	caps := CapList{}
	first := true
	for {
		line, err := r.ReadLine()
		if err != nil {
			return nil, nil, err
		}
		if line.Flush {
			break
		}
		text := string(line.Data)
		text = strings.TrimRight(text, "\n")
		if first {
			if nul := strings.IndexByte(text, 0); nul >= 0 {
				caps = ParseCapabilities(text[nul+1:])
				text = text[:nul]
			}
			first = false
		}
		fields := strings.Fields(text)
		if len(fields) != 3 {
			return nil, nil, fmt.Errorf("%w: malformed ref-update line %q", plumbing.ErrNegotiation, text)
		}
		old, err := githash.FromHex(fields[0])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", plumbing.ErrNegotiation, err)
		}
		newOID, err := githash.FromHex(fields[1])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", plumbing.ErrNegotiation, err)
		}
		name := plumbing.ReferenceName(fields[2])
		if err := limits.CheckRefName(string(name)); err != nil {
			return nil, nil, err
		}
		cmds = append(cmds, RefUpdateCommand{Old: old, New: newOID, Name: name})
	}
	if err := limits.checkCount(len(cmds), limits.MaxRounds, "ref updates"); err != nil {
		return nil, nil, err
	}
	return cmds, caps, nil
}

// CommandResult is one line of the report-status response: "ok <ref>" or
// "ng <ref> <reason>".
type CommandResult struct {
	Name plumbing.ReferenceName
	Err  error
}

// ApplyReceivePack unpacks the pack payload that follows the command list,
// stores every object it contains, then applies each ref update with
// storage's compare-and-swap semantics so a command racing a concurrent
// push fails instead of clobbering it. One command's failure does not abort
// the others, matching git's own receive-pack report-status behavior.
func ApplyReceivePack(objects ObjectPutter, refs RefStore, packData []byte, cmds []RefUpdateCommand) ([]CommandResult, error) {
	unpacked, _, err := pack.Unpack(packData, nil)
	if err != nil {
		return nil, err
	}
	for _, obj := range unpacked {
		decoded, err := object.ParseTyped(obj.Type, obj.Payload)
		if err != nil {
			return nil, fmt.Errorf("receive-pack: decoding %s: %w", obj.OID, err)
		}
		if _, err := objects.Put(decoded); err != nil {
			return nil, fmt.Errorf("receive-pack: storing %s: %w", obj.OID, err)
		}
	}

	results := make([]CommandResult, len(cmds))
	for i, cmd := range cmds {
		results[i] = CommandResult{Name: cmd.Name}
		results[i].Err = refs.CompareAndSwap(cmd.Name, cmd.Old, cmd.New)
	}
	return results, nil
}

// WriteReportStatus writes the report-status response as plain pkt-lines
// (no side-band channel byte): "unpack ok", one
// "ok"/"ng" line per command, then a flush. Capability negotiation that
// omitted report-status is the caller's job to check before calling this.
func WriteReportStatus(w *pktline.Writer, results []CommandResult) error {
	if err := w.WriteString("unpack ok\n"); err != nil {
		return err
	}
	for _, r := range results {
		if r.Err == nil {
			if err := w.WriteString(fmt.Sprintf("ok %s\n", r.Name)); err != nil {
				return err
			}
			continue
		}
		if err := w.WriteString(fmt.Sprintf("ng %s %s\n", r.Name, r.Err)); err != nil {
			return err
		}
	}
	return w.Flush()
}
