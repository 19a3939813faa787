package utils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func unsignedToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return fmt.Sprintf("%s.%s.",
		base64.RawURLEncoding.EncodeToString(header),
		base64.RawURLEncoding.EncodeToString(payload))
}

func TestBearerTokenExpiry(t *testing.T) {
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := unsignedToken(t, map[string]interface{}{"exp": exp.Unix(), "sub": "user"})

	got, err := BearerTokenExpiry(token)
	if err != nil {
		t.Fatalf("BearerTokenExpiry: %v", err)
	}
	if !got.Equal(exp) {
		t.Fatalf("expected %v, got %v", exp, got)
	}

	// The stored cookie value may carry the scheme prefix.
	got, err = BearerTokenExpiry("Bearer " + token)
	if err != nil {
		t.Fatalf("BearerTokenExpiry with prefix: %v", err)
	}
	if !got.Equal(exp) {
		t.Fatalf("prefix: expected %v, got %v", exp, got)
	}
}

func TestBearerTokenExpiry_Errors(t *testing.T) {
	if _, err := BearerTokenExpiry(""); err == nil {
		t.Fatal("expected an error for an empty token")
	}
	if _, err := BearerTokenExpiry("not-a-jwt"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
	noExp := unsignedToken(t, map[string]interface{}{"sub": "user"})
	if _, err := BearerTokenExpiry(noExp); err == nil {
		t.Fatal("expected an error when exp is missing")
	}
}

func TestBearerTokenExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	live := unsignedToken(t, map[string]interface{}{"exp": now.Add(time.Hour).Unix()})
	if BearerTokenExpired(live, now) {
		t.Fatal("token expiring in an hour should not be expired")
	}

	stale := unsignedToken(t, map[string]interface{}{"exp": now.Add(-time.Hour).Unix()})
	if !BearerTokenExpired(stale, now) {
		t.Fatal("token that expired an hour ago should be expired")
	}

	if !BearerTokenExpired("garbage", now) {
		t.Fatal("unparseable tokens are treated as expired")
	}
}
