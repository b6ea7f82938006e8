package transport

import (
	"sort"
	"strings"

	"github.com/vcsforge/gitcore/plumbing"
)

// CapList is a client or server's advertised/requested capability set, each
// entry either a bare name ("thin-pack") or a "key=value" pair
// ("agent=gitcore/1.0").
type CapList map[string]string

// ParseCapabilities splits the space-separated capability string found
// after the NUL on the first ref-advertisement or want line.
func ParseCapabilities(s string) CapList {
	caps := make(CapList)
	for _, tok := range strings.Fields(s) {
		if k, v, ok := strings.Cut(tok, "="); ok {
			caps[k] = v
		} else {
			caps[tok] = ""
		}
	}
	return caps
}

// Has reports whether name was advertised or requested, ignoring any value.
func (c CapList) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// String renders the capability list in a stable (sorted) order, suitable
// for appending after the NUL in a ref advertisement or a first want line.
func (c CapList) String() string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		if v := c[k]; v != "" {
			parts[i] = k + "=" + v
		} else {
			parts[i] = k
		}
	}
	return strings.Join(parts, " ")
}

// Validate rejects a capability list carrying more entries than limit
// allows, guarding against an adversarial client exhausting server memory
// with an enormous capability line.
func (c CapList) Validate(limit int) error {
	if limit > 0 && len(c) > limit {
		return plumbing.ErrCapability
	}
	return nil
}

// MultiAckMode is the negotiated acknowledgment style for upload-pack.
type MultiAckMode int

const (
	MultiAckNone MultiAckMode = iota
	MultiAckSimple
	MultiAckDetailed
)

// NegotiateMultiAck picks the richest mode both sides understand.
func NegotiateMultiAck(caps CapList) MultiAckMode {
	switch {
	case caps.Has("multi_ack_detailed"):
		return MultiAckDetailed
	case caps.Has("multi_ack"):
		return MultiAckSimple
	default:
		return MultiAckNone
	}
}

// SideBandChannel identifies which side-band stream a chunk of pack-phase
// output belongs to, per the side-band-64k capability.
type SideBandChannel byte

const (
	SideBandPackData SideBandChannel = 1
	SideBandProgress SideBandChannel = 2
	SideBandError    SideBandChannel = 3
)

// SupportsSideBand reports whether the client can receive multiplexed
// pack/progress/error channels rather than a bare pack stream.
func SupportsSideBand(caps CapList) bool {
	return caps.Has("side-band-64k") || caps.Has("side-band")
}

// SideBandChunkSize is the largest payload usable per side-band pkt-line:
// the pkt-line payload cap minus the one leading channel byte.
const SideBandChunkSize = 65515
