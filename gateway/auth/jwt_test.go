package auth

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/flowgate/gateway/gateway/apitypes"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, sub string, expired bool) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub}
	if expired {
		claims["exp"] = time.Now().Add(-time.Hour).Unix()
	} else {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func testKeyFunc(*jwt.Token) (interface{}, error) { return testSecret, nil }

func TestJWTVerifierAcceptsValidToken(t *testing.T) {
	v := NewJWTVerifier(testKeyFunc)
	sub, ok := v.Verify(signToken(t, "user-1", false))
	if !ok || sub != "user-1" {
		t.Fatalf("expected valid token to verify with subject user-1, got ok=%v sub=%q", ok, sub)
	}
}

func TestJWTVerifierRejectsExpiredToken(t *testing.T) {
	v := NewJWTVerifier(testKeyFunc)
	if _, ok := v.Verify(signToken(t, "user-1", true)); ok {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestJWTVerifierRejectsGarbage(t *testing.T) {
	v := NewJWTVerifier(testKeyFunc)
	if _, ok := v.Verify("not-a-jwt"); ok {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func newRequest(t *testing.T, headers map[string]string, query url.Values) *http.Request {
	t.Helper()
	r, err := http.NewRequest("GET", "/myapi/movies?"+query.Encode(), nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestAuthenticateFromHeader(t *testing.T) {
	v := NewJWTVerifier(testKeyFunc)
	tok := signToken(t, "user-1", false)
	r := newRequest(t, map[string]string{"Authorization": "Bearer " + tok}, nil)

	opts := apitypes.AuthOptions{UseHeader: true, HeaderName: "Authorization"}
	sub, ok := Authenticate(r, opts, v)
	if !ok || sub != "user-1" {
		t.Fatalf("expected header token to authenticate, got ok=%v sub=%q", ok, sub)
	}
}

func TestAuthenticateFromQueryWhitespaceSplit(t *testing.T) {
	v := NewJWTVerifier(testKeyFunc)
	tok := signToken(t, "user-2", false)
	q := url.Values{"token": {"garbage " + tok}}
	r := newRequest(t, nil, q)

	opts := apitypes.AuthOptions{UseQuery: true, QueryName: "token"}
	sub, ok := Authenticate(r, opts, v)
	if !ok || sub != "user-2" {
		t.Fatalf("expected one of the whitespace-split query tokens to authenticate, got ok=%v sub=%q", ok, sub)
	}
}

func TestAuthenticateMissingTokenFails(t *testing.T) {
	v := NewJWTVerifier(testKeyFunc)
	r := newRequest(t, nil, nil)

	opts := apitypes.AuthOptions{UseHeader: true, UseQuery: true}
	if _, ok := Authenticate(r, opts, v); ok {
		t.Fatalf("expected missing token to fail authentication")
	}
}
