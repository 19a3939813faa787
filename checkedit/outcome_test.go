package checkedit

import (
	"testing"

	"bitbucket.org/zamonsoft/checkedit_backend/models"
)

func TestClassifySubmit(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		kind    OutcomeKind
		code    int64
		message string
	}{
		{
			name:    "http 401 aborts regardless of body",
			status:  401,
			body:    `{"success":true}`,
			kind:    OutcomeAuthExpired,
			message: "Session expired",
		},
		{
			name:   "success envelope",
			status: 200,
			body:   `{"success":true,"code":0,"message":""}`,
			kind:   OutcomeCompleted,
		},
		{
			name:    "server busy 9999 is retryable",
			status:  200,
			body:    `{"success":false,"code":9999,"message":"Server xatoligi"}`,
			kind:    OutcomeRetryable,
			code:    9999,
			message: "9999: Server xatoligi",
		},
		{
			name:    "wrong captcha -1002 is retryable",
			status:  200,
			body:    `{"success":false,"code":-1002,"message":"Captcha noto'g'ri"}`,
			kind:    OutcomeRetryable,
			code:    -1002,
			message: "CAPTCHA error: Captcha noto'g'ri",
		},
		{
			name:    "expired captcha 9098 is retryable",
			status:  200,
			body:    `{"success":false,"code":9098,"message":"Captcha eskirgan"}`,
			kind:    OutcomeRetryable,
			code:    9098,
			message: "CAPTCHA error: Captcha eskirgan",
		},
		{
			name:    "already submitted 9099",
			status:  200,
			body:    `{"success":false,"code":9099,"message":"whatever"}`,
			kind:    OutcomeAlreadyDone,
			code:    9099,
			message: "Already submitted",
		},
		{
			name:    "unknown business code is permanent",
			status:  200,
			body:    `{"success":false,"code":4001,"message":"Chek topilmadi"}`,
			kind:    OutcomePermanent,
			code:    4001,
			message: "4001: Chek topilmadi",
		},
		{
			name:    "blank message gets default",
			status:  200,
			body:    `{"success":false,"code":4001,"message":"  "}`,
			kind:    OutcomePermanent,
			code:    4001,
			message: "4001: Unknown error",
		},
		{
			name:    "string code still classifies",
			status:  200,
			body:    `{"success":false,"code":"9099","message":"x"}`,
			kind:    OutcomeAlreadyDone,
			code:    9099,
			message: "Already submitted",
		},
		{
			name:   "malformed body is a transient fault",
			status: 502,
			body:   `<html>Bad Gateway</html>`,
			kind:   OutcomeTransientFault,
		},
	}

	for _, tc := range cases {
		out := ClassifySubmit(tc.status, []byte(tc.body))
		if out.Kind != tc.kind {
			t.Fatalf("%s: expected kind %v, got %v", tc.name, tc.kind, out.Kind)
		}
		if out.Code != tc.code {
			t.Fatalf("%s: expected code %d, got %d", tc.name, tc.code, out.Code)
		}
		if tc.message != "" && out.Message != tc.message {
			t.Fatalf("%s: expected message %q, got %q", tc.name, tc.message, out.Message)
		}
	}
}

func TestClassifySubmit_KeepsBodyForPersistence(t *testing.T) {
	body := []byte(`{"success":false,"code":4001,"message":"nope"}`)
	out := ClassifySubmit(200, body)
	if string(out.Body) != string(body) {
		t.Fatalf("expected raw body to be carried on the outcome, got %q", out.Body)
	}
}

func TestSelectKey_RotatesAcrossPool(t *testing.T) {
	pool := []models.ApiKey{
		{ID: 1, Key: "key-a"},
		{ID: 2, Key: "key-b"},
		{ID: 3, Key: "key-c"},
	}
	expected := []string{"key-a", "key-b", "key-c", "key-a", "key-b"}
	for i, want := range expected {
		got := SelectKey(i, pool)
		if got.Key != want {
			t.Fatalf("SelectKey(%d) expected %s, got %s", i, want, got.Key)
		}
	}
}

func TestSelectKey_SingleKeyPool(t *testing.T) {
	pool := []models.ApiKey{{ID: 7, Key: "only"}}
	for i := 0; i < 4; i++ {
		if got := SelectKey(i, pool); got.ID != 7 {
			t.Fatalf("SelectKey(%d) expected the only key, got id %d", i, got.ID)
		}
	}
}
