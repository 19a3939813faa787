package models

import (
	"testing"
	"time"
)

func TestConfigHelpers(t *testing.T) {
	m := map[string]string{
		"BASE_URL":            "https://my3.soliq.uz",
		"BLANK":               "  ",
		"BATCH_SIZE":          "50",
		"BAD_INT":             "fifty",
		"REQUEST_DELAY":       "0.05",
		"LOOP_ENABLED":        "true",
		"CAPTCHA_PREPROCESS":  "0",
		"BAD_BOOL":            "maybe",
		"DEFAULT_VAT_TOTAL":   "12.5",
		"SESSION_CHECK_POINT": " 30 ",
	}

	if got := ConfigString(m, "BASE_URL", "x"); got != "https://my3.soliq.uz" {
		t.Fatalf("ConfigString: got %q", got)
	}
	if got := ConfigString(m, "MISSING", "fallback"); got != "fallback" {
		t.Fatalf("ConfigString missing key: got %q", got)
	}
	if got := ConfigString(m, "BLANK", "fallback"); got != "fallback" {
		t.Fatalf("ConfigString blank value: got %q", got)
	}

	if got := ConfigInt(m, "BATCH_SIZE", 10); got != 50 {
		t.Fatalf("ConfigInt: got %d", got)
	}
	if got := ConfigInt(m, "BAD_INT", 10); got != 10 {
		t.Fatalf("ConfigInt unparseable: got %d", got)
	}
	if got := ConfigInt(m, "SESSION_CHECK_POINT", 1); got != 30 {
		t.Fatalf("ConfigInt padded value: got %d", got)
	}

	if got := ConfigFloat(m, "DEFAULT_VAT_TOTAL", 0); got != 12.5 {
		t.Fatalf("ConfigFloat: got %v", got)
	}

	if got := ConfigBool(m, "LOOP_ENABLED", false); !got {
		t.Fatal("ConfigBool true value")
	}
	if got := ConfigBool(m, "CAPTCHA_PREPROCESS", true); got {
		t.Fatal("ConfigBool zero value should be false")
	}
	if got := ConfigBool(m, "BAD_BOOL", true); !got {
		t.Fatal("ConfigBool unparseable should keep the default")
	}

	if got := ConfigDuration(m, "REQUEST_DELAY", time.Second); got != 50*time.Millisecond {
		t.Fatalf("ConfigDuration fractional seconds: got %v", got)
	}
	if got := ConfigDuration(m, "MISSING", 5*time.Second); got != 5*time.Second {
		t.Fatalf("ConfigDuration missing key: got %v", got)
	}
}
