package checkedit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/zamonsoft/checkedit_backend/models"
)

func testCookies() []models.SessionCookie {
	return []models.SessionCookie{
		{Name: "bearer_token", Value: "abc.def.ghi", IsActive: true},
		{Name: "smart_top", Value: "1", IsActive: true},
		{Name: "session_id", Value: "s-42", IsActive: true},
	}
}

func newTestPortal(t *testing.T, serverURL string) *portalClient {
	t.Helper()
	client, err := newPortalClient(testCookies(), portalOptions{
		BaseURL:     serverURL,
		CaptchaPath: "/api/cashregister-edit-api/home/get-captcha",
		SubmitPath:  "/api/cashregister-edit-api/check-edit/set-payment",
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		Delay:       time.Millisecond,
	})
	if err != nil {
		t.Fatalf("newPortalClient: %v", err)
	}
	return client
}

func TestNewPortalClient_RequiresBearerToken(t *testing.T) {
	cookies := []models.SessionCookie{{Name: "smart_top", Value: "1"}}
	if _, err := newPortalClient(cookies, portalOptions{}); !errors.Is(err, ErrNoBearerToken) {
		t.Fatalf("expected ErrNoBearerToken, got %v", err)
	}
}

func TestFetchCaptcha_SendsSessionMaterial(t *testing.T) {
	var gotAuth, gotCookie, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCookie = r.Header.Get("Cookie")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"id":184523,"image":"aW1hZ2U="}}`))
	}))
	defer server.Close()

	captcha, err := newTestPortal(t, server.URL).FetchCaptcha(context.Background())
	if err != nil {
		t.Fatalf("FetchCaptcha: %v", err)
	}
	if gotAuth != "Bearer abc.def.ghi" {
		t.Fatalf("expected Bearer header, got %q", gotAuth)
	}
	if gotCookie != "smart_top=1; session_id=s-42" {
		t.Fatalf("unexpected Cookie header %q", gotCookie)
	}
	if gotAgent != "test-agent" {
		t.Fatalf("unexpected User-Agent %q", gotAgent)
	}
	if string(captcha.ID) != "184523" {
		t.Fatalf("captcha id should round-trip raw, got %s", captcha.ID)
	}
	if captcha.Image != "aW1hZ2U=" {
		t.Fatalf("unexpected image %q", captcha.Image)
	}
}

func TestFetchCaptcha_401MapsToSessionExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	if _, err := newTestPortal(t, server.URL).FetchCaptcha(context.Background()); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestFetchCaptcha_RejectsEmptyChallenge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":null}`))
	}))
	defer server.Close()

	if _, err := newTestPortal(t, server.URL).FetchCaptcha(context.Background()); err == nil {
		t.Fatal("expected an error for an empty challenge")
	}
}

func TestSubmit_ReturnsStatusAndBodyUnclassified(t *testing.T) {
	var gotPayload SubmitPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"unauthorized"}`))
	}))
	defer server.Close()

	payload := BuildSubmitPayload(
		models.Check{ReceiptId: "982", PaymentId: "P982", TerminalId: "T"},
		Captcha{ID: json.RawMessage(`1`)},
		"4521",
		PayloadDefaults{Tin: "62409036610049"},
	)
	status, body, err := newTestPortal(t, server.URL).Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// A 401 is data for the classifier, not a transport error.
	if status != 401 {
		t.Fatalf("expected status 401, got %d", status)
	}
	if string(body) != `{"message":"unauthorized"}` {
		t.Fatalf("unexpected body %q", body)
	}
	if gotPayload.CaptchaValue != "4521" {
		t.Fatalf("payload did not reach the server, captchaValue %q", gotPayload.CaptchaValue)
	}
}
