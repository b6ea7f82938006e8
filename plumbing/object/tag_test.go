package object

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsforge/gitcore/plumbing"
)

func TestTagEncodeDecodeRoundTrip(t *testing.T) {
	tagger := testIdentity()
	tag := &Tag{
		Target:     EmptyTreeOID,
		TargetType: plumbing.TreeObject,
		Name:       "v1.0.0",
		Tagger:     &tagger,
		Message:    "release\n",
	}
	var buf bytes.Buffer
	require.NoError(t, tag.Encode(&buf))

	var decoded Tag
	require.NoError(t, decoded.Decode(buf.Bytes()))
	assert.Equal(t, *tag, decoded)
}

func TestTagWithoutTagger(t *testing.T) {
	tag := &Tag{
		Target:     EmptyTreeOID,
		TargetType: plumbing.TreeObject,
		Name:       "unsigned",
		Message:    "no tagger line\n",
	}
	var buf bytes.Buffer
	require.NoError(t, tag.Encode(&buf))
	assert.NotContains(t, buf.String(), "tagger")

	var decoded Tag
	require.NoError(t, decoded.Decode(buf.Bytes()))
	assert.Nil(t, decoded.Tagger)
}

func TestTagSignatureSplitFromMessage(t *testing.T) {
	payload := "object " + EmptyTreeOID.String() + "\n" +
		"type tree\n" +
		"tag signed\n" +
		"tagger A U Thor <a@u.test> 1600000000 +0000\n" +
		"\n" +
		"release notes\n" +
		"-----BEGIN PGP SIGNATURE-----\n" +
		"iQEzBAABCAAdFiEE\n" +
		"-----END PGP SIGNATURE-----\n"

	var tag Tag
	require.NoError(t, tag.Decode([]byte(payload)))
	assert.Equal(t, "release notes\n", tag.Message)
	assert.Contains(t, tag.Signature, "-----BEGIN PGP SIGNATURE-----")
}

func TestTagDecodeMissingObjectFieldFails(t *testing.T) {
	payload := "type tree\ntag bad\n\nmsg\n"
	var tag Tag
	err := tag.Decode([]byte(payload))
	assert.Error(t, err)
}
