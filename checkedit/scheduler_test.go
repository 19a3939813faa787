package checkedit

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"bitbucket.org/zamonsoft/checkedit_backend/models"
)

func bearerToken(t *testing.T, exp time.Time) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	payload, err := json.Marshal(map[string]interface{}{"exp": exp.Unix()})
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return fmt.Sprintf("%s.%s.",
		base64.RawURLEncoding.EncodeToString(header),
		base64.RawURLEncoding.EncodeToString(payload))
}

func TestCanDispatchWithToken(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if !canDispatchWithToken(nil, now) {
		t.Fatal("no stored cookie should still dispatch")
	}

	live := &models.SessionCookie{Name: models.BearerTokenCookieName, Value: bearerToken(t, now.Add(time.Hour))}
	if !canDispatchWithToken(live, now) {
		t.Fatal("live token should dispatch")
	}

	stale := &models.SessionCookie{Name: models.BearerTokenCookieName, Value: bearerToken(t, now.Add(-time.Minute))}
	if canDispatchWithToken(stale, now) {
		t.Fatal("token past its exp claim should park the scheduler")
	}

	garbled := &models.SessionCookie{Name: models.BearerTokenCookieName, Value: "not-a-jwt"}
	if canDispatchWithToken(garbled, now) {
		t.Fatal("unparseable token should park the scheduler")
	}
}
