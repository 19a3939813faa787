package checkedit

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestCleanCaptchaText(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"184523", "184523"},
		{" 1 8 4 5 2 3 ", "184523"},
		{"The answer is 4521.", "4521"},
		{"4521\n", "4521"},
		{"abc", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CleanCaptchaText(tc.in); got != tc.expected {
			t.Fatalf("CleanCaptchaText(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestPreprocessCaptchaImage_UpscalesThreeTimes(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 20, 8))
	for x := 0; x < 20; x++ {
		src.Set(x, 4, color.Black)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode source image: %v", err)
	}

	out, err := PreprocessCaptchaImage(base64.StdEncoding.EncodeToString(buf.Bytes()))
	if err != nil {
		t.Fatalf("PreprocessCaptchaImage: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(out)
	if err != nil {
		t.Fatalf("output is not valid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 60 || bounds.Dy() != 24 {
		t.Fatalf("expected 60x24 output, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestPreprocessCaptchaImage_RejectsGarbage(t *testing.T) {
	if _, err := PreprocessCaptchaImage("not base64!!"); err == nil {
		t.Fatal("expected an error for invalid base64 input")
	}
	if _, err := PreprocessCaptchaImage(base64.StdEncoding.EncodeToString([]byte("not an image"))); err == nil {
		t.Fatal("expected an error for a non-image payload")
	}
}
