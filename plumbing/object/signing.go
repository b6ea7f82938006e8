package object

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"
)

var ErrNoSignature = errors.New("object: no signature attached")

// SigningProvider produces and checks detached-armored PGP signatures over
// a commit or tag's unsigned byte form, the same scheme Git itself uses for
// "gpgsig"/tag-trailer signatures.
type SigningProvider interface {
	Sign(payload []byte) (armored string, err error)
	Verify(payload []byte, armored string) (signer *openpgp.Entity, err error)
}

// OpenPGPProvider implements SigningProvider against a single entity for
// signing and a keyring for verification.
type OpenPGPProvider struct {
	SignKey *openpgp.Entity
	KeyRing openpgp.EntityList
}

func (p *OpenPGPProvider) Sign(payload []byte) (string, error) {
	if p.SignKey == nil {
		return "", fmt.Errorf("object: no signing key configured")
	}
	var b bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&b, p.SignKey, bytes.NewReader(payload), nil); err != nil {
		return "", fmt.Errorf("object: sign failed: %w", err)
	}
	return b.String(), nil
}

func (p *OpenPGPProvider) Verify(payload []byte, armored string) (*openpgp.Entity, error) {
	if armored == "" {
		return nil, ErrNoSignature
	}
	signer, err := openpgp.CheckArmoredDetachedSignature(p.KeyRing, bytes.NewReader(payload), bytes.NewReader([]byte(armored)), nil)
	if err != nil {
		return nil, fmt.Errorf("object: signature verification failed: %w", err)
	}
	return signer, nil
}

// SignCommit encodes c without its gpgsig header, signs that byte form with
// provider, and sets c.ExtraHeaders' "gpgsig" entry to the armored result.
// Any existing gpgsig header is replaced.
func SignCommit(c *Commit, provider SigningProvider) error {
	stripped := *c
	stripped.ExtraHeaders = stripHeader(c.ExtraHeaders, "gpgsig")
	var buf bytes.Buffer
	if err := stripped.Encode(&buf); err != nil {
		return err
	}
	sig, err := provider.Sign(buf.Bytes())
	if err != nil {
		return err
	}
	c.ExtraHeaders = append(stripHeader(c.ExtraHeaders, "gpgsig"), ExtraHeader{K: "gpgsig", V: sig})
	return nil
}

// VerifyCommit checks c's "gpgsig" header, if any, against the byte form of
// c with that header removed.
func VerifyCommit(c *Commit, provider SigningProvider) (*openpgp.Entity, error) {
	sig, ok := c.Header("gpgsig")
	if !ok {
		return nil, ErrNoSignature
	}
	stripped := *c
	stripped.ExtraHeaders = stripHeader(c.ExtraHeaders, "gpgsig")
	var buf bytes.Buffer
	if err := stripped.Encode(&buf); err != nil {
		return nil, err
	}
	return provider.Verify(buf.Bytes(), sig)
}

// SignTag signs t's message (and target/type/tag/tagger header block) with
// provider and sets t.Signature to the armored result.
func SignTag(t *Tag, provider SigningProvider) error {
	unsigned := *t
	unsigned.Signature = ""
	var buf bytes.Buffer
	if err := unsigned.Encode(&buf); err != nil {
		return err
	}
	sig, err := provider.Sign(buf.Bytes())
	if err != nil {
		return err
	}
	t.Signature = sig
	return nil
}

// VerifyTag checks t.Signature against t's unsigned byte form.
func VerifyTag(t *Tag, provider SigningProvider) (*openpgp.Entity, error) {
	if t.Signature == "" {
		return nil, ErrNoSignature
	}
	unsigned := *t
	unsigned.Signature = ""
	var buf bytes.Buffer
	if err := unsigned.Encode(&buf); err != nil {
		return nil, err
	}
	return provider.Verify(buf.Bytes(), t.Signature)
}

func stripHeader(hs []ExtraHeader, key string) []ExtraHeader {
	out := make([]ExtraHeader, 0, len(hs))
	for _, h := range hs {
		if h.K != key {
			out = append(out, h)
		}
	}
	return out
}
