package pktline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDataRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteString("want deadbeef\n"))
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "want deadbeef\n", string(line.Data))

	flush, err := r.ReadLine()
	require.NoError(t, err)
	assert.True(t, flush.Flush)
}

func TestReadLinesStopsAtFlush(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteString("one"))
	require.NoError(t, w.WriteString("two"))
	require.NoError(t, w.Flush())
	require.NoError(t, w.WriteString("three"))

	r := NewReader(&buf)
	lines, err := r.ReadLines()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "one", string(lines[0]))
	assert.Equal(t, "two", string(lines[1]))
}

func TestWriteDataRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	err := w.WriteString(strings.Repeat("x", MaxDataLength+1))
	require.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadLineRejectsBadLength(t *testing.T) {
	r := NewReader(strings.NewReader("zzzzrest"))
	_, err := r.ReadLine()
	require.Error(t, err)
}

func TestDelimAndResponseEndMarkers(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Delim())
	require.NoError(t, w.ResponseEnd())

	r := NewReader(&buf)
	delim, err := r.ReadLine()
	require.NoError(t, err)
	assert.True(t, delim.Delim)

	end, err := r.ReadLine()
	require.NoError(t, err)
	assert.True(t, end.ResponseEnd)
}

func TestRemainderYieldsBufferedBytes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteString("cmd"))
	require.NoError(t, w.Flush())
	buf.WriteString("trailing payload")

	r := NewReader(&buf)
	_, err := r.ReadLines()
	require.NoError(t, err)

	rest := make([]byte, len("trailing payload"))
	n, err := r.Remainder().Read(rest)
	require.NoError(t, err)
	assert.Equal(t, "trailing payload", string(rest[:n]))
}
