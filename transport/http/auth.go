// Package http wires the transport package's upload-pack and receive-pack
// state machines to the smart-HTTP surface: gorilla/mux routing, bearer-token
// authorization via golang-jwt, and the info/refs discovery handshake.
package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vcsforge/gitcore/plumbing"
)

// RepoClaims is the JWT payload a gitcored-issued bearer token carries:
// which repository it authorizes and whether the bearer may push.
type RepoClaims struct {
	Repo      string `json:"repo"`
	CanPush   bool   `json:"can_push"`
	jwt.RegisteredClaims
}

// AuthProvider issues and validates bearer tokens scoped to one repository
// path, the transport-level half of SPEC_FULL.md's AuthProvider contract.
type AuthProvider struct {
	secret []byte
}

func NewAuthProvider(secret string) *AuthProvider {
	return &AuthProvider{secret: []byte(secret)}
}

// IssueToken signs a bearer token authorizing repo for ttl, with push
// access when canPush is set.
func (p *AuthProvider) IssueToken(repo string, canPush bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := RepoClaims{
		Repo:    repo,
		CanPush: canPush,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(p.secret)
}

// Authorize validates the bearer token on r against repo and, when
// requirePush is true, rejects a read-only token. It wires
// plumbing.ErrUnauthorized for a missing/invalid/expired token and
// plumbing.ErrForbidden for a valid token that just lacks the right scope.
func (p *AuthProvider) Authorize(r *http.Request, repo string, requirePush bool) (*RepoClaims, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", plumbing.ErrUnauthorized)
	}

	claims := &RepoClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, fmt.Errorf("%w: token expired: %v", plumbing.ErrUnauthorized, err)
		default:
			return nil, fmt.Errorf("%w: %v", plumbing.ErrUnauthorized, err)
		}
	}
	if claims.Repo != repo {
		return nil, fmt.Errorf("%w: token not scoped to %s", plumbing.ErrForbidden, repo)
	}
	if requirePush && !claims.CanPush {
		return nil, fmt.Errorf("%w: token is read-only", plumbing.ErrForbidden)
	}
	return claims, nil
}
