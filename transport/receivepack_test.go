package transport

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
	"github.com/vcsforge/gitcore/storage/pack"
	"github.com/vcsforge/gitcore/transport/pktline"
)

type fakePutter struct {
	put map[githash.OID]object.Object
}

func newFakePutter() *fakePutter { return &fakePutter{put: make(map[githash.OID]object.Object)} }

func (p *fakePutter) Put(obj object.Object) (githash.OID, error) {
	full, err := object.Marshal(obj)
	if err != nil {
		return githash.ZeroOID, err
	}
	oid := githash.Sum(full)
	p.put[oid] = obj
	return oid, nil
}

type fakeRefStore struct {
	refs    map[plumbing.ReferenceName]githash.OID
	failing plumbing.ReferenceName
}

func (s *fakeRefStore) CompareAndSwap(name plumbing.ReferenceName, old, newOID githash.OID) error {
	if name == s.failing {
		return &plumbing.StalePriorError{Current: githash.MustFromHex("b45ef6fec89518d314f546fd6c3025367b721684")}
	}
	s.refs[name] = newOID
	return nil
}

func buildTestPack(t *testing.T, objects []pack.SourceObject) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, _, err := pack.Write(context.Background(), &buf, objects, pack.WriteOptions{})
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseReceivePackCommandsParsesLinesAndCaps(t *testing.T) {
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf)
	zero := githash.ZeroOID
	newOID := githash.MustFromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	require.NoError(t, w.WriteString(zero.String()+" "+newOID.String()+" refs/heads/main\x00report-status\n"))
	require.NoError(t, w.Flush())

	cmds, caps, err := ParseReceivePackCommands(pktline.NewReader(&buf), Limits{})
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, plumbing.ReferenceName("refs/heads/main"), cmds[0].Name)
	assert.Equal(t, newOID, cmds[0].New)
	assert.True(t, caps.Has("report-status"))
}

func TestParseReceivePackCommandsRejectsMalformedLine(t *testing.T) {
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf)
	require.NoError(t, w.WriteString("not-enough-fields\n"))
	require.NoError(t, w.Flush())

	_, _, err := ParseReceivePackCommands(pktline.NewReader(&buf), Limits{})
	require.ErrorIs(t, err, plumbing.ErrNegotiation)
}

func TestApplyReceivePackStoresObjectsAndUpdatesRefs(t *testing.T) {
	blob := &object.Blob{Content: []byte("hi\n")}
	full, err := object.Marshal(blob)
	require.NoError(t, err)
	blobOID := githash.Sum(full)

	payload, err := encodePayload(blob)
	require.NoError(t, err)
	packData := buildTestPack(t, []pack.SourceObject{{OID: blobOID, Type: plumbing.BlobObject, Payload: payload}})

	putter := newFakePutter()
	refs := &fakeRefStore{refs: make(map[plumbing.ReferenceName]githash.OID)}
	cmds := []RefUpdateCommand{{Old: githash.ZeroOID, New: blobOID, Name: "refs/heads/main"}}

	results, err := ApplyReceivePack(putter, refs, packData, cmds)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, blobOID, refs.refs["refs/heads/main"])
	assert.Contains(t, putter.put, blobOID)
}

func TestApplyReceivePackReportsPerCommandFailureWithoutAbortingOthers(t *testing.T) {
	blob := &object.Blob{Content: []byte("hi\n")}
	full, err := object.Marshal(blob)
	require.NoError(t, err)
	blobOID := githash.Sum(full)
	payload, err := encodePayload(blob)
	require.NoError(t, err)
	packData := buildTestPack(t, []pack.SourceObject{{OID: blobOID, Type: plumbing.BlobObject, Payload: payload}})

	putter := newFakePutter()
	refs := &fakeRefStore{refs: make(map[plumbing.ReferenceName]githash.OID), failing: "refs/heads/stale"}
	cmds := []RefUpdateCommand{
		{Old: githash.ZeroOID, New: blobOID, Name: "refs/heads/stale"},
		{Old: githash.ZeroOID, New: blobOID, Name: "refs/heads/main"},
	}

	results, err := ApplyReceivePack(putter, refs, packData, cmds)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, blobOID, refs.refs["refs/heads/main"])
}

func TestWriteReportStatusFormatsOkAndNg(t *testing.T) {
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf)
	results := []CommandResult{
		{Name: "refs/heads/main"},
		{Name: "refs/heads/stale", Err: assertError("stale info")},
	}
	require.NoError(t, WriteReportStatus(w, results))

	r := pktline.NewReader(&buf)
	lines, err := r.ReadLines()
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "unpack ok\n", string(lines[0]))
	assert.Equal(t, "ok refs/heads/main\n", string(lines[1]))
	assert.Equal(t, "ng refs/heads/stale stale info\n", string(lines[2]))
}

type assertError string

func (e assertError) Error() string { return string(e) }
