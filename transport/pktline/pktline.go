// Package pktline implements the pkt-line framing used by the smart-HTTP
// wire protocol: every line is prefixed with its own 4 hex digit length
// (including the 4 prefix bytes themselves), with three reserved zero-length
// markers alongside ordinary data lines.
package pktline

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/vcsforge/gitcore/plumbing"
)

const (
	// MinDataLength is the smallest length prefix a data line may declare
	// (the 4 prefix bytes alone, i.e. an empty payload).
	MinDataLength = 4
	// MaxDataLength is the largest payload a single pkt-line may carry,
	// matching git's historical 65516-byte data cap (65520 total minus
	// the 4-byte length prefix, rounded down by git's implementation to
	// 65516 usable payload bytes); callers that need more must split
	// across several lines.
	MaxDataLength = 65516
	maxLineLength = MaxDataLength + 4
)

// Special line markers, sent as the raw 4-byte length field with no payload.
const (
	FlushPkt      = "0000"
	DelimPkt      = "0001"
	ResponseEndPkt = "0002"
)

var (
	ErrLineTooLong = errors.New("pktline: line exceeds maximum length")
	ErrBadLength   = errors.New("pktline: invalid length prefix")
)

// Writer emits pkt-line framed data.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// WriteData frames payload as a single data pkt-line.
func (w *Writer) WriteData(payload []byte) error {
	if len(payload) > MaxDataLength {
		return fmt.Errorf("%w: %d bytes", ErrLineTooLong, len(payload))
	}
	if _, err := fmt.Fprintf(w.w, "%04x", len(payload)+4); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrPktLine, err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrPktLine, err)
	}
	return nil
}

// WriteString is WriteData for textual lines; it does not append a newline.
func (w *Writer) WriteString(s string) error { return w.WriteData([]byte(s)) }

func (w *Writer) writeMarker(marker string) error {
	if _, err := io.WriteString(w.w, marker); err != nil {
		return fmt.Errorf("%w: %v", plumbing.ErrPktLine, err)
	}
	return nil
}

func (w *Writer) Flush() error      { return w.writeMarker(FlushPkt) }
func (w *Writer) Delim() error      { return w.writeMarker(DelimPkt) }
func (w *Writer) ResponseEnd() error { return w.writeMarker(ResponseEndPkt) }

// Line is one decoded pkt-line: Data is nil for a control marker, in which
// case Flush/Delim/ResponseEnd tells the caller which one.
type Line struct {
	Data         []byte
	Flush        bool
	Delim        bool
	ResponseEnd bool
}

// Reader decodes a pkt-line stream.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader { return &Reader{r: bufio.NewReaderSize(r, maxLineLength)} }

// Remainder returns an io.Reader over whatever bytes follow the last
// decoded pkt-line, buffered bytes first: the pkt-line stream and a raw
// payload (a packfile, in upload-pack/receive-pack) share one underlying
// connection, and the bufio.Reader used for framing may already have read
// ahead past the final flush-pkt. Reading directly from the original
// io.Reader after using this Reader would silently drop those bytes.
func (r *Reader) Remainder() io.Reader { return r.r }

// ReadLine decodes one pkt-line. io.EOF is returned only when the
// underlying stream ends with no further bytes at all; a well-formed stream
// always terminates in a flush-pkt before that happens.
func (r *Reader) ReadLine() (Line, error) {
	lengthHex := make([]byte, 4)
	if _, err := io.ReadFull(r.r, lengthHex); err != nil {
		if errors.Is(err, io.EOF) {
			return Line{}, io.EOF
		}
		return Line{}, fmt.Errorf("%w: %v", plumbing.ErrPktLine, err)
	}
	var length int
	if _, err := fmt.Sscanf(string(lengthHex), "%04x", &length); err != nil {
		return Line{}, fmt.Errorf("%w: bad length prefix %q", plumbing.ErrPktLine, lengthHex)
	}
	switch length {
	case 0:
		return Line{Flush: true}, nil
	case 1:
		return Line{Delim: true}, nil
	case 2:
		return Line{ResponseEnd: true}, nil
	}
	if length < MinDataLength || length > maxLineLength {
		return Line{}, fmt.Errorf("%w: length %d", ErrBadLength, length)
	}
	payload := make([]byte, length-4)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return Line{}, fmt.Errorf("%w: %v", plumbing.ErrPktLine, err)
	}
	return Line{Data: payload}, nil
}

// ReadLines reads data lines until a flush-pkt, returning them with the
// flush consumed. A "done"/other sentinel line is returned as ordinary
// data — callers distinguish it by content, matching git's own treatment
// of "done" as just another pkt-line in the have/want negotiation.
func (r *Reader) ReadLines() ([][]byte, error) {
	var lines [][]byte
	for {
		line, err := r.ReadLine()
		if err != nil {
			return lines, err
		}
		if line.Flush {
			return lines, nil
		}
		if line.Delim || line.ResponseEnd {
			return lines, nil
		}
		lines = append(lines, line.Data)
	}
}
