package checkedit

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

const geminiPrompt = "Read the CAPTCHA text in this image. Return ONLY the characters/numbers you see, nothing else."

// geminiSolver calls the Gemini generateContent endpoint with the
// CAPTCHA image inlined. The API key is passed per call so the runner
// can rotate keys across a batch.
type geminiSolver struct {
	model      string
	preprocess bool
	http       *http.Client
}

func newGeminiSolver(model string, preprocess bool, timeout time.Duration) *geminiSolver {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &geminiSolver{
		model:      model,
		preprocess: preprocess,
		http:       &http.Client{Timeout: timeout},
	}
}

type geminiRequest struct {
	Contents []struct {
		Parts []map[string]interface{} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (s *geminiSolver) Solve(ctx context.Context, apiKey string, imageB64 string) (string, error) {
	if s.preprocess {
		if cleaned, err := PreprocessCaptchaImage(imageB64); err == nil {
			imageB64 = cleaned
		}
	}

	var req geminiRequest
	req.Contents = append(req.Contents, struct {
		Parts []map[string]interface{} `json:"parts"`
	}{
		Parts: []map[string]interface{}{
			{"text": geminiPrompt},
			{"inline_data": map[string]string{"mime_type": "image/png", "data": imageB64}},
		},
	})
	req.GenerationConfig.Temperature = 0.1
	req.GenerationConfig.MaxOutputTokens = 50

	encoded, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", s.model, apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return "", ErrRateLimited
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("Gemini API error: %d", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("failed to solve CAPTCHA")
	}

	return strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text), nil
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// CleanCaptchaText strips everything except digits. The portal's
// challenges are numeric; OCR occasionally wraps the answer in prose or
// whitespace.
func CleanCaptchaText(text string) string {
	return nonDigits.ReplaceAllString(text, "")
}

// PreprocessCaptchaImage upscales and sharpens the challenge image so
// the noise lines thin out relative to the digits.
func PreprocessCaptchaImage(imageB64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return "", err
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}

	img := imaging.Grayscale(src)
	bounds := img.Bounds()
	img = imaging.Resize(img, bounds.Dx()*3, bounds.Dy()*3, imaging.Lanczos)
	img = imaging.AdjustContrast(img, 30)
	img = imaging.Sharpen(img, 1.5)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
