package checkedit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bitbucket.org/zamonsoft/checkedit_backend/models"
)

// portalClient talks to the tax portal's cashregister-edit API using
// session material captured from a logged-in browser.
type portalClient struct {
	baseURL     string
	captchaPath string
	submitPath  string
	authHeader  string
	cookieHdr   string
	userAgent   string
	http        *http.Client
	limiter     <-chan time.Time
}

type portalOptions struct {
	BaseURL     string
	CaptchaPath string
	SubmitPath  string
	UserAgent   string
	Timeout     time.Duration
	Delay       time.Duration
}

// newPortalClient builds a client from stored session cookies. The
// bearer_token cookie becomes the Authorization header; every other
// active cookie is concatenated into the Cookie header.
func newPortalClient(cookies []models.SessionCookie, opts portalOptions) (*portalClient, error) {
	var bearer string
	var pairs []string
	for _, c := range cookies {
		if c.Name == models.BearerTokenCookieName {
			bearer = c.Value
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", c.Name, c.Value))
	}
	if strings.TrimSpace(bearer) == "" {
		return nil, ErrNoBearerToken
	}
	if !strings.HasPrefix(bearer, "Bearer ") {
		bearer = "Bearer " + bearer
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}

	return &portalClient{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		captchaPath: opts.CaptchaPath,
		submitPath:  opts.SubmitPath,
		authHeader:  bearer,
		cookieHdr:   strings.Join(pairs, "; "),
		userAgent:   opts.UserAgent,
		http:        &http.Client{Timeout: opts.Timeout},
		limiter:     time.Tick(delay),
	}, nil
}

type captchaEnvelope struct {
	Success bool `json:"success"`
	Data    *struct {
		ID    json.RawMessage `json:"id"`
		Image string          `json:"image"`
	} `json:"data"`
}

// FetchCaptcha requests a fresh challenge. A 401 means the stored
// session is no longer valid and the whole batch must stop.
func (c *portalClient) FetchCaptcha(ctx context.Context) (Captcha, error) {
	<-c.limiter
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.captchaPath, nil)
	if err != nil {
		return Captcha{}, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return Captcha{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == 401 {
		return Captcha{}, ErrSessionExpired
	}

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Captcha{}, fmt.Errorf("CAPTCHA fetch failed: %d", resp.StatusCode)
	}

	var envelope captchaEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Captcha{}, fmt.Errorf("invalid CAPTCHA response: %w", err)
	}
	if !envelope.Success || envelope.Data == nil || envelope.Data.Image == "" {
		return Captcha{}, errors.New("invalid CAPTCHA response")
	}

	return Captcha{ID: envelope.Data.ID, Image: envelope.Data.Image}, nil
}

// Submit posts one correction payload and returns the raw status + body
// for classification. Transport errors are returned as-is; HTTP-level
// outcomes (401 included) are left to the classifier.
func (c *portalClient) Submit(ctx context.Context, payload SubmitPayload) (int, []byte, error) {
	<-c.limiter
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.submitPath, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

func (c *portalClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authHeader)
	if c.cookieHdr != "" {
		req.Header.Set("Cookie", c.cookieHdr)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}
