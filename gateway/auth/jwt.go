// Package auth implements the forwarder's auth gate: candidate token
// collection from the configured header and query parameter, verified
// against a Verifier.
package auth

import (
	"net/http"
	"strings"

	"github.com/flowgate/gateway/gateway/apitypes"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks a single candidate token and, if valid, returns the
// subject claim to carry into the audit event.
type Verifier interface {
	Verify(token string) (subject string, ok bool)
}

// JWTVerifier verifies tokens with a configured key resolver. It does not
// mint or rotate keys.
type JWTVerifier struct {
	keyFunc jwt.Keyfunc
}

// NewJWTVerifier builds a Verifier around the given key resolver, typically
// a closure over a single HMAC secret or a JWKS-backed RSA key set.
func NewJWTVerifier(keyFunc jwt.Keyfunc) *JWTVerifier {
	return &JWTVerifier{keyFunc: keyFunc}
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(token string) (string, bool) {
	parsed, err := jwt.Parse(token, v.keyFunc)
	if err != nil || !parsed.Valid {
		return "", false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", true
	}
	sub, _ := claims["sub"].(string)
	return sub, true
}

const defaultHeaderName = "Authorization"
const defaultQueryName = "token"

// CandidateTokens collects every token a request presents: every value of
// the configured header (a leading "Bearer "/"bearer " is stripped
// unconditionally, whatever the header is named), plus every
// whitespace-split value of the configured query parameter.
func CandidateTokens(r *http.Request, opts apitypes.AuthOptions) []string {
	var candidates []string

	if opts.UseHeader {
		headerName := opts.HeaderName
		if headerName == "" {
			headerName = defaultHeaderName
		}
		for _, h := range r.Header.Values(headerName) {
			h = strings.TrimSpace(h)
			h = strings.TrimPrefix(h, "Bearer ")
			h = strings.TrimPrefix(h, "bearer ")
			if h != "" {
				candidates = append(candidates, h)
			}
		}
	}

	if opts.UseQuery {
		queryName := opts.QueryName
		if queryName == "" {
			queryName = defaultQueryName
		}
		for _, v := range r.URL.Query()[queryName] {
			candidates = append(candidates, strings.Fields(v)...)
		}
	}

	// Neither gate configured explicitly (a legacy/bare auth_type=jwt
	// definition with no auth_options set): fall back to the documented
	// defaults rather than accepting no tokens at all.
	if !opts.UseHeader && !opts.UseQuery {
		for _, h := range r.Header.Values(defaultHeaderName) {
			h = strings.TrimSpace(h)
			h = strings.TrimPrefix(h, "Bearer ")
			h = strings.TrimPrefix(h, "bearer ")
			if h != "" {
				candidates = append(candidates, h)
			}
		}
		for _, v := range r.URL.Query()[defaultQueryName] {
			candidates = append(candidates, strings.Fields(v)...)
		}
	}

	return candidates
}

// Authenticate runs every candidate token through verifier and passes as
// soon as one verifies.
func Authenticate(r *http.Request, opts apitypes.AuthOptions, verifier Verifier) (subject string, ok bool) {
	for _, tok := range CandidateTokens(r, opts) {
		if sub, valid := verifier.Verify(tok); valid {
			return sub, true
		}
	}
	return "", false
}
