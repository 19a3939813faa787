package checkedit

import (
	"encoding/json"
	"fmt"
	"strings"

	"bitbucket.org/zamonsoft/checkedit_backend/models"
)

// OutcomeKind tags what the submission attempt produced. Classification
// is separate from the status transition so both stay independently
// testable.
type OutcomeKind int

const (
	// OutcomeCompleted: portal accepted the correction.
	OutcomeCompleted OutcomeKind = iota
	// OutcomeAlreadyDone: code 9099, the check was corrected earlier.
	// Treated as success.
	OutcomeAlreadyDone
	// OutcomeRetryable: codes 9999, -1002, 9098. The record goes back to
	// pending and is picked up by a later batch.
	OutcomeRetryable
	// OutcomePermanent: any other business code. The record is failed and
	// needs manual attention.
	OutcomePermanent
	// OutcomeAuthExpired: HTTP 401. Aborts the whole batch.
	OutcomeAuthExpired
	// OutcomeTransientFault: network error, malformed body, or any other
	// uncaught per-record failure. Record goes back to pending.
	OutcomeTransientFault
	// OutcomeRateLimited: the OCR provider answered 429. Record goes back
	// to pending, batch continues, attempt is not counted.
	OutcomeRateLimited
)

type Outcome struct {
	Kind    OutcomeKind
	Code    int64
	Message string
	// Body is the raw portal response, persisted on completion/failure.
	Body []byte
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAlreadyDone:
		return "already_done"
	case OutcomeRetryable:
		return fmt.Sprintf("retryable(%d)", o.Code)
	case OutcomePermanent:
		return fmt.Sprintf("permanent(%d)", o.Code)
	case OutcomeAuthExpired:
		return "auth_expired"
	case OutcomeTransientFault:
		return "transient_fault"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

type submitEnvelope struct {
	Success bool        `json:"success"`
	Code    json.Number `json:"code"`
	Message string      `json:"message"`
}

// ClassifySubmit maps the portal's submit response onto an Outcome. The
// portal wraps auth, CAPTCHA, and business validation errors in one HTTP
// 200 envelope with a numeric code, so the embedded code decides the
// branch, not the HTTP status alone.
func ClassifySubmit(status int, body []byte) Outcome {
	if status == 401 {
		return Outcome{Kind: OutcomeAuthExpired, Message: "Session expired"}
	}

	var envelope submitEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Outcome{
			Kind:    OutcomeTransientFault,
			Message: fmt.Sprintf("unparseable submit response (status %d)", status),
			Body:    body,
		}
	}

	if envelope.Success {
		return Outcome{Kind: OutcomeCompleted, Body: body}
	}

	code, _ := envelope.Code.Int64()
	msg := envelope.Message
	if strings.TrimSpace(msg) == "" {
		msg = "Unknown error"
	}

	switch code {
	case 9999:
		return Outcome{Kind: OutcomeRetryable, Code: code, Message: fmt.Sprintf("9999: %s", msg), Body: body}
	case -1002, 9098:
		return Outcome{Kind: OutcomeRetryable, Code: code, Message: fmt.Sprintf("CAPTCHA error: %s", msg), Body: body}
	case 9099:
		return Outcome{Kind: OutcomeAlreadyDone, Code: code, Message: "Already submitted", Body: body}
	default:
		return Outcome{Kind: OutcomePermanent, Code: code, Message: fmt.Sprintf("%d: %s", code, msg), Body: body}
	}
}

// SelectKey picks the credential for the given rotation index. The pool
// is ordered; the index is the count of attempts so far, so keys are
// spread evenly across a batch.
func SelectKey(index int, pool []models.ApiKey) models.ApiKey {
	return pool[index%len(pool)]
}
