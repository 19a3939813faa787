package checkedit

import (
	"encoding/json"
	"strings"
	"testing"

	"bitbucket.org/zamonsoft/checkedit_backend/models"
	"github.com/shopspring/decimal"
)

func TestMakePaymentId(t *testing.T) {
	cases := []struct {
		terminal string
		receipt  string
		expected string
	}{
		{"EP000000000551", "982", "EP0000000005510000000000000982"},
		{"EP000000000551", " 982 ", "EP0000000005510000000000000982"},
		{"EP000000000551", "1234567890123456", "EP0000000005511234567890123456"},
		{"EP000000000551", "12345678901234567", "EP00000000055112345678901234567"},
		{"T1", "", "T10000000000000000"},
	}
	for _, tc := range cases {
		if got := MakePaymentId(tc.terminal, tc.receipt); got != tc.expected {
			t.Fatalf("MakePaymentId(%q, %q) expected %s, got %s", tc.terminal, tc.receipt, tc.expected, got)
		}
	}
}

func TestBuildSubmitPayload_WireFormat(t *testing.T) {
	tin := "123456789012"
	date := "2025-01-15"
	check := models.Check{
		ID:          1,
		ReceiptId:   "982",
		PaymentId:   "EP0000000005510000000000000982",
		TerminalId:  "EP000000000551",
		Tin:         &tin,
		PaymentDate: &date,
	}
	captcha := Captcha{ID: json.RawMessage(`184523`), Image: "ignored"}
	defaults := PayloadDefaults{
		Tin:      "62409036610049",
		ClientIp: "10.0.0.1",
	}

	payload := BuildSubmitPayload(check, captcha, "4521", defaults)
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	body := string(raw)

	// The portal rejects the request unless these amount fields are
	// quoted strings.
	for _, want := range []string{
		`"cardTotal":"0"`,
		`"vat":"0"`,
		`"vatPercent":"0"`,
		`"vatTotal":0`,
		`"cashTotal":0`,
		`"captchaId":184523`,
		`"captchaValue":"4521"`,
		`"paymentId":"EP0000000005510000000000000982"`,
		`"id":"EP0000000005510000000000000982-0"`,
		`"name":"982-check edit"`,
		`"productCode":"10701001018000000"`,
		`"packageCode":"1495029"`,
		`"commissionTin":"62409036610049"`,
		`"paymentDate":"2025-01-15"`,
		`"nameStatus":true`,
		`"clientIp":"10.0.0.1"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("payload JSON missing %s\nbody: %s", want, body)
		}
	}

	if payload.Tin != tin {
		t.Fatalf("expected check-level tin %s, got %s", tin, payload.Tin)
	}
	if len(payload.PaymentDetails) != 1 {
		t.Fatalf("expected exactly one payment detail, got %d", len(payload.PaymentDetails))
	}
	if payload.PaymentDetails[0].Tin != tin {
		t.Fatalf("detail tin expected %s, got %s", tin, payload.PaymentDetails[0].Tin)
	}
}

func TestBuildSubmitPayload_TinFallsBackToDefault(t *testing.T) {
	blank := "  "
	cases := []*string{nil, &blank}
	for _, checkTin := range cases {
		check := models.Check{ReceiptId: "7", PaymentId: "P7", TerminalId: "T", Tin: checkTin}
		payload := BuildSubmitPayload(check, Captcha{ID: json.RawMessage(`"abc"`)}, "1", PayloadDefaults{Tin: "62409036610049"})
		if payload.Tin != "62409036610049" {
			t.Fatalf("expected default tin, got %s", payload.Tin)
		}
	}
}

func TestBuildSubmitPayload_CaptchaIdRoundTrips(t *testing.T) {
	// The portal sometimes issues numeric ids and sometimes strings; the
	// submit payload must echo the id byte-for-byte either way.
	for _, id := range []string{`184523`, `"c9f1-22"`} {
		check := models.Check{ReceiptId: "7", PaymentId: "P7", TerminalId: "T"}
		payload := BuildSubmitPayload(check, Captcha{ID: json.RawMessage(id)}, "1", PayloadDefaults{})
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		if !strings.Contains(string(raw), `"captchaId":`+id) {
			t.Fatalf("captcha id %s did not round-trip: %s", id, raw)
		}
	}
}

func TestBuildSubmitPayload_ConfiguredCardTotal(t *testing.T) {
	check := models.Check{ReceiptId: "7", PaymentId: "P7", TerminalId: "T"}
	defaults := PayloadDefaults{CardTotal: decimal.RequireFromString("1500.50")}
	raw, err := json.Marshal(BuildSubmitPayload(check, Captcha{ID: json.RawMessage(`1`)}, "1", defaults))
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if !strings.Contains(string(raw), `"cardTotal":"1500.5"`) {
		t.Fatalf("expected quoted cardTotal, got %s", raw)
	}
}
