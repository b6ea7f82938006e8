package transport

import (
	"fmt"
	"time"

	"github.com/vcsforge/gitcore/config"
	"github.com/vcsforge/gitcore/plumbing"
)

// Limits bounds a single upload-pack or receive-pack session, guarding
// against a client that never sends "done", floods want/have lines, or
// advertises an unbounded capability or ref name.
type Limits struct {
	MaxRounds        int
	MaxWants         int
	MaxHaves         int
	MaxCapabilities  int
	MaxRefNameLength int
	Timeout          time.Duration
}

// LimitsFromConfig reads the wire limits out of a loaded config.Config.
func LimitsFromConfig(w config.Wire) Limits {
	return Limits{
		MaxRounds:        w.MaxRounds,
		MaxWants:         w.MaxWants,
		MaxHaves:         w.MaxHaves,
		MaxCapabilities:  w.MaxCapabilities,
		MaxRefNameLength: w.MaxRefNameLength,
		Timeout:          w.Timeout.Duration,
	}
}

func (l Limits) checkCount(got, max int, what string) error {
	if max > 0 && got > max {
		return fmt.Errorf("%w: too many %s (%d > %d)", plumbing.ErrLimitExceeded, what, got, max)
	}
	return nil
}

func (l Limits) CheckWants(n int) error  { return l.checkCount(n, l.MaxWants, "wants") }
func (l Limits) CheckHaves(n int) error  { return l.checkCount(n, l.MaxHaves, "haves") }
func (l Limits) CheckRounds(n int) error { return l.checkCount(n, l.MaxRounds, "negotiation rounds") }

func (l Limits) CheckRefName(name string) error {
	if l.MaxRefNameLength > 0 && len(name) > l.MaxRefNameLength {
		return fmt.Errorf("%w: ref name exceeds %d bytes", plumbing.ErrLimitExceeded, l.MaxRefNameLength)
	}
	return nil
}
