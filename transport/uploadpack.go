package transport

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
	"github.com/vcsforge/gitcore/storage/pack"
	"github.com/vcsforge/gitcore/transport/pktline"
)

// UploadPackRequest carries the negotiated state of a single upload-pack
// session as parsed from the client's want/have lines.
type UploadPackRequest struct {
	Wants []githash.OID
	Haves []githash.OID
	Caps  CapList
}

// ParseUploadPackRequest reads the want lines (the first line carries the
// client's capability list after a NUL), then the have lines terminated by
// either a flush-pkt or a "done" line. limits bounds every count along the
// way so an adversarial client cannot exhaust memory before negotiation
// even starts.
//
// Shallow and deepen commands are not understood; a client that sends one
// gets plumbing.ErrNegotiation rather than being silently starved of
// history it asked to limit.
func ParseUploadPackRequest(r *pktline.Reader, limits Limits) (*UploadPackRequest, bool, error) {
	req := &UploadPackRequest{Caps: CapList{}}
	first := true
	done := false
	for {
		line, err := r.ReadLine()
		if err != nil {
			return nil, false, err
		}
		if line.Flush {
			break
		}
		text := strings.TrimRight(string(line.Data), "\n")
		if text == "" {
			continue
		}
		if text == "done" {
			done = true
			break
		}
		if strings.HasPrefix(text, "shallow ") || strings.HasPrefix(text, "deepen") {
			return nil, false, fmt.Errorf("%w: shallow/deepen clones are not supported", plumbing.ErrNegotiation)
		}
		fields := strings.Fields(text)
		if len(fields) < 2 || fields[0] != "want" {
			return nil, false, fmt.Errorf("%w: malformed want line %q", plumbing.ErrNegotiation, text)
		}
		oid, err := githash.FromHex(fields[1])
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", plumbing.ErrNegotiation, err)
		}
		if first {
			if len(fields) > 2 {
				req.Caps = ParseCapabilities(strings.Join(fields[2:], " "))
			}
			first = false
		}
		req.Wants = append(req.Wants, oid)
		if err := limits.CheckWants(len(req.Wants)); err != nil {
			return nil, false, err
		}
	}
	if err := req.Caps.Validate(limits.MaxCapabilities); err != nil {
		return nil, false, err
	}
	if len(req.Wants) == 0 {
		return req, done, nil
	}
	if done {
		return req, true, nil
	}
	for {
		line, err := r.ReadLine()
		if err != nil {
			return nil, false, err
		}
		if line.Flush {
			break
		}
		text := strings.TrimRight(string(line.Data), "\n")
		if text == "done" {
			done = true
			break
		}
		fields := strings.Fields(text)
		if len(fields) != 2 || fields[0] != "have" {
			return nil, false, fmt.Errorf("%w: malformed have line %q", plumbing.ErrNegotiation, text)
		}
		oid, err := githash.FromHex(fields[1])
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", plumbing.ErrNegotiation, err)
		}
		req.Haves = append(req.Haves, oid)
		if err := limits.CheckHaves(len(req.Haves)); err != nil {
			return nil, false, err
		}
	}
	return req, done, nil
}

// UploadPack drives the server side of a single, already-parsed upload-pack
// session to completion: it ACKs (or NAKs) the negotiation outcome per the
// negotiated multi_ack mode, then streams a pack bridging haves and wants,
// side-band-wrapped when the client advertised it.
func UploadPack(ctx context.Context, backend object.Backend, req *UploadPackRequest, w *pktline.Writer, opts pack.WriteOptions) error {
	mode := NegotiateMultiAck(req.Caps)
	ackedAny := false
	for _, h := range req.Haves {
		if _, err := backend.Commit(ctx, h); err == nil {
			ackedAny = true
			switch mode {
			case MultiAckDetailed:
				if err := w.WriteString(fmt.Sprintf("ACK %s common\n", h)); err != nil {
					return err
				}
			case MultiAckSimple:
				if err := w.WriteString(fmt.Sprintf("ACK %s continue\n", h)); err != nil {
					return err
				}
			}
		}
	}
	if ackedAny && mode != MultiAckNone {
		last := req.Haves[len(req.Haves)-1]
		if err := w.WriteString(fmt.Sprintf("ACK %s\n", last)); err != nil {
			return err
		}
	} else {
		if err := w.WriteString("NAK\n"); err != nil {
			return err
		}
	}

	objects, err := ReachableObjects(ctx, backend, req.Wants, req.Haves)
	if err != nil {
		return err
	}

	if SupportsSideBand(req.Caps) {
		return streamPackSideBand(w, objects, opts)
	}
	return streamPackPlain(w, objects, opts)
}

func streamPackPlain(w *pktline.Writer, objects []pack.SourceObject, opts pack.WriteOptions) error {
	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		_, _, err := pack.Write(context.Background(), pw, objects, opts)
		errCh <- err
		pw.CloseWithError(err)
	}()
	buf := make([]byte, pktline.MaxDataLength)
	for {
		n, err := pr.Read(buf)
		if n > 0 {
			if werr := w.WriteData(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if err := <-errCh; err != nil {
		return err
	}
	return w.Flush()
}

// streamPackSideBand multiplexes the pack bytes onto side-band channel 1, one
// chunk per pkt-line, each chunk one byte smaller than the pkt-line payload
// cap to leave room for the channel marker.
func streamPackSideBand(w *pktline.Writer, objects []pack.SourceObject, opts pack.WriteOptions) error {
	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		_, _, err := pack.Write(context.Background(), pw, objects, opts)
		errCh <- err
		pw.CloseWithError(err)
	}()
	buf := make([]byte, SideBandChunkSize)
	for {
		n, err := pr.Read(buf)
		if n > 0 {
			chunk := append([]byte{byte(SideBandPackData)}, buf[:n]...)
			if werr := w.WriteData(chunk); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if err := <-errCh; err != nil {
		return err
	}
	return w.Flush()
}
