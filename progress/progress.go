// Package progress renders a terminal progress bar for the object-count
// phase of a clone/fetch/push, falling back to silent no-ops when stderr
// isn't a terminal.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// IsTerminal reports whether fd refers to an interactive terminal (including
// Windows' Cygwin/MSYS terminals), the gate cmd/gitcored uses to decide
// whether a progress bar is worth drawing at all.
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Bar wraps one mpb bar tracking a named counted phase (objects received,
// bytes transferred). A nil *Bar is safe to use and simply discards updates,
// so callers don't need a separate quiet-mode branch.
type Bar struct {
	bar *mpb.Bar
}

// Progress owns the mpb container all of a session's bars render into.
type Progress struct {
	p     *mpb.Progress
	quiet bool
}

// New starts a progress container, or a quiet one when stderr isn't a
// terminal or quiet is explicitly requested.
func New(quiet bool) *Progress {
	if quiet || !IsTerminal(os.Stderr.Fd()) {
		return &Progress{quiet: true}
	}
	return &Progress{p: mpb.New(mpb.WithOutput(os.Stderr), mpb.WithAutoRefresh())}
}

// Count starts a bar counting up to total discrete units (objects,
// commands), labeled name.
func (p *Progress) Count(name string, total int64) *Bar {
	if p.quiet {
		return nil
	}
	b := p.p.New(total,
		mpb.BarStyle().Filler("#").Padding(" "),
		mpb.PrependDecorators(decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight})),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d"), decor.Percentage()),
	)
	return &Bar{bar: b}
}

// Bytes starts a bar tracking total bytes of pack data transferred.
func (p *Progress) Bytes(name string, total int64) *Bar {
	if p.quiet {
		return nil
	}
	b := p.p.New(total,
		mpb.BarStyle().Filler("#").Padding(" "),
		mpb.PrependDecorators(decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight})),
		mpb.AppendDecorators(decor.CountersKibiByte("% .2f / % .2f"), decor.EwmaSpeed(decor.SizeB1024(0), "% .2f", 30)),
	)
	return &Bar{bar: b}
}

// Increment advances the bar by n units.
func (b *Bar) Increment(n int64) {
	if b == nil {
		return
	}
	b.bar.IncrBy(int(n))
}

// ProxyReader wraps r so reads from it drive the bar automatically, used
// while copying a streamed pack onto disk.
func (b *Bar) ProxyReader(r io.Reader) io.Reader {
	if b == nil {
		return r
	}
	return b.bar.ProxyReader(r)
}

// Done sets the bar's count to its current value, leaving it unchanged; it
// does not force completion, which happens once the count reaches the
// bar's total. Safe on a nil Bar.
func (b *Bar) Done() {
	if b == nil {
		return
	}
	b.bar.SetCurrent(b.bar.Current())
}

// Wait blocks until every bar in the container finishes rendering.
func (p *Progress) Wait() {
	if p.quiet {
		return
	}
	p.p.Wait()
}

// Fprintf writes a status line straight to stderr, outside any bar
// container, for narrating phase changes alongside a bar rather than only
// through it.
func Fprintf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}
