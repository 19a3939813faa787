package checkedit

import (
	"context"
	"encoding/json"
	"errors"
)

// BatchResult aggregates one runner invocation. Processed counts records
// whose submission path was attempted (including uncaught per-record
// failures); rate-limit skips and session-expiry aborts do not count.
type BatchResult struct {
	Processed      int  `json:"processed"`
	Successful     int  `json:"successful"`
	Failed         int  `json:"failed"`
	SessionExpired bool `json:"sessionExpired"`
}

// Captcha is one challenge issued by the portal: an opaque id plus a
// base64-encoded image. The id is kept as raw JSON so it round-trips
// unchanged into the submit payload whether the portal sends a number
// or a string.
type Captcha struct {
	ID    json.RawMessage
	Image string
}

var (
	// ErrSessionExpired is returned when the portal answers 401 on the
	// CAPTCHA fetch. The batch must abort and wait for fresh cookies.
	ErrSessionExpired = errors.New("session expired (401)")

	// ErrRateLimited is returned when the OCR provider answers 429.
	ErrRateLimited = errors.New("ocr rate limited (429)")

	// ErrNeedsInit is returned when the config store is empty.
	ErrNeedsInit = errors.New("not initialized")

	// ErrNoApiKeys is returned when no eligible OCR credential exists.
	ErrNoApiKeys = errors.New("no Gemini API keys configured")

	// ErrNoBearerToken is returned when no bearer_token cookie is stored.
	ErrNoBearerToken = errors.New("no bearer token. Add session cookies first")

	// ErrBatchLocked is returned when another invocation holds the batch lock.
	ErrBatchLocked = errors.New("another batch is already running")
)

// challengePortal is the portal surface the runner depends on: fetch a
// CAPTCHA challenge and submit one correction payload.
type challengePortal interface {
	FetchCaptcha(ctx context.Context) (Captcha, error)
	Submit(ctx context.Context, payload SubmitPayload) (status int, body []byte, err error)
}

// captchaSolver converts a CAPTCHA image to text using the given credential.
type captchaSolver interface {
	Solve(ctx context.Context, apiKey string, imageB64 string) (string, error)
}
