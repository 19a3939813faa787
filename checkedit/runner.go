package checkedit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/zamonsoft/checkedit_backend/config"
	"bitbucket.org/zamonsoft/checkedit_backend/models"
	"bitbucket.org/zamonsoft/checkedit_backend/utils"
	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const batchLockKey = "checkedit:batch"

// batchStore is the slice of persistence the per-record state machine
// needs: claim, transition, key bookkeeping, and the audit log.
type batchStore interface {
	Claim(id uint) (bool, error)
	UpdateCheck(id uint, fields map[string]interface{}) error
	TouchKeyUsage(id uint) error
	AddLog(level, message string, checkId *uint, correlationId string)
}

type gormStore struct {
	db *gorm.DB
}

// Claim atomically flips pending -> processing. Returns false when the
// record was no longer pending, which means a concurrent invocation won.
func (s *gormStore) Claim(id uint) (bool, error) {
	res := s.db.Model(&models.Check{}).
		Where("id = ? AND status = ?", id, models.CheckStatusPending).
		Update("status", models.CheckStatusProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) UpdateCheck(id uint, fields map[string]interface{}) error {
	return s.db.Model(&models.Check{}).Where("id = ?", id).Updates(fields).Error
}

func (s *gormStore) TouchKeyUsage(id uint) error {
	return models.TouchKeyUsage(s.db, id)
}

func (s *gormStore) AddLog(level, message string, checkId *uint, correlationId string) {
	addLog(s.db, level, message, checkId, correlationId)
}

// batchRunner drives one invocation over a slice of claimed checks. The
// portal, solver, and store are injected so the state machine is
// testable without the network or a database.
type batchRunner struct {
	store  batchStore
	logger *logrus.Logger
	portal challengePortal
	solver captchaSolver
	keys   []models.ApiKey

	defaults        PayloadDefaults
	delay           time.Duration
	maxRetries      int
	captchaRetries  int
	rateLimitPause  time.Duration
	serverBaseDelay time.Duration
	serverMaxDelay  time.Duration
	archiveCaptchas bool

	correlationId string
	sleep         func(time.Duration)
}

// RunBatch claims up to BATCH_SIZE pending checks and pushes each one
// through the fetch-solve-submit workflow. It returns the aggregate
// result; precondition failures come back as errors with nothing
// touched.
func RunBatch(ctx context.Context, trigger string) (BatchResult, error) {
	logger := config.GetLogger()
	db := config.GetDB().WithContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	// Preconditions, checked before any record is touched.
	var configCount int64
	if err := db.Model(&models.ProjectConfig{}).Count(&configCount).Error; err != nil {
		return BatchResult{}, err
	}
	if configCount == 0 {
		return BatchResult{}, ErrNeedsInit
	}

	keys, err := models.ListEligibleKeys(db, "gemini")
	if err != nil {
		return BatchResult{}, err
	}
	if len(keys) == 0 {
		addLog(db, models.LogLevelError, "No Gemini API keys available", nil, correlationId)
		return BatchResult{}, ErrNoApiKeys
	}

	var cookies []models.SessionCookie
	if err := db.Where("is_active = ?", true).Find(&cookies).Error; err != nil {
		return BatchResult{}, err
	}

	cfg, err := models.GetConfigMap(db)
	if err != nil {
		return BatchResult{}, err
	}

	portal, err := newPortalClient(cookies, portalOptions{
		BaseURL:     models.ConfigString(cfg, "BASE_URL", "https://my3.soliq.uz"),
		CaptchaPath: models.ConfigString(cfg, "CAPTCHA_URL", "/api/cashregister-edit-api/home/get-captcha"),
		SubmitPath:  models.ConfigString(cfg, "SUBMIT_URL", "/api/cashregister-edit-api/check-edit/set-payment"),
		UserAgent:   models.ConfigString(cfg, "USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"),
		Timeout:     models.ConfigDuration(cfg, "REQUEST_TIMEOUT", 120*time.Second),
		Delay:       models.ConfigDuration(cfg, "REQUEST_DELAY", 50*time.Millisecond),
	})
	if err != nil {
		if errors.Is(err, ErrNoBearerToken) {
			addLog(db, models.LogLevelError, "No bearer token found in session cookies", nil, correlationId)
		}
		return BatchResult{}, err
	}

	// Best-effort cross-invocation guard. The per-record atomic claim is
	// still the source of truth when Redis is unavailable.
	if locker := config.GetRedisLock(); locker != nil {
		lock, lockErr := locker.Obtain(ctx, batchLockKey, 10*time.Minute, nil)
		if lockErr == redislock.ErrNotObtained {
			return BatchResult{}, ErrBatchLocked
		}
		if lockErr == nil {
			defer lock.Release(ctx)
		}
	}

	batchSize := models.ConfigInt(cfg, "BATCH_SIZE", 10)
	var pending []models.Check
	if err := db.Where("status = ?", models.CheckStatusPending).
		Order("created_at asc").
		Limit(batchSize).
		Find(&pending).Error; err != nil {
		return BatchResult{}, err
	}

	if len(pending) == 0 {
		addLog(db, models.LogLevelInfo, "No pending checks to process", nil, correlationId)
		return BatchResult{}, nil
	}

	addLog(db, models.LogLevelInfo, fmt.Sprintf("Starting batch: %d checks", len(pending)), nil, correlationId)

	defaultTin := models.ConfigString(cfg, "DEFAULT_TIN", "62409036610049")
	cardTotal, cardErr := decimal.NewFromString(models.ConfigString(cfg, "DEFAULT_CARD_TOTAL", "0"))
	if cardErr != nil {
		cardTotal = decimal.Zero
	}

	runner := &batchRunner{
		store:  &gormStore{db: db},
		logger: logger,
		portal: portal,
		solver: newGeminiSolver(
			models.ConfigString(cfg, "GEMINI_MODEL", "gemini-2.5-flash-lite"),
			models.ConfigBool(cfg, "CAPTCHA_PREPROCESS", false),
			models.ConfigDuration(cfg, "REQUEST_TIMEOUT", 120*time.Second),
		),
		keys: keys,
		defaults: PayloadDefaults{
			Tin:       defaultTin,
			ClientIp:  models.ConfigString(cfg, "CLIENT_IP", "127.0.0.1"),
			VatTotal:  models.ConfigFloat(cfg, "DEFAULT_VAT_TOTAL", 0),
			CashTotal: models.ConfigFloat(cfg, "DEFAULT_CASH_TOTAL", 0),
			CardTotal: cardTotal,
		},
		delay:           models.ConfigDuration(cfg, "DELAY_BETWEEN_CHECKS", 100*time.Millisecond),
		maxRetries:      models.ConfigInt(cfg, "SERVER_ERROR_MAX_RETRIES", 5),
		captchaRetries:  models.ConfigInt(cfg, "CAPTCHA_MAX_RETRIES", 2),
		rateLimitPause:  models.ConfigDuration(cfg, "GEMINI_RATE_LIMIT_BACKOFF", 15*time.Second),
		serverBaseDelay: models.ConfigDuration(cfg, "SERVER_ERROR_BASE_DELAY", 2*time.Second),
		serverMaxDelay:  models.ConfigDuration(cfg, "SERVER_ERROR_MAX_DELAY", 30*time.Second),
		archiveCaptchas: models.ConfigBool(cfg, "CAPTCHA_ARCHIVE", false),
		correlationId:   correlationId,
		sleep:           time.Sleep,
	}

	session := models.WorkerSession{
		Status:        models.WorkerSessionStatusRunning,
		TriggeredBy:   trigger,
		CorrelationId: correlationId,
	}
	now := time.Now()
	session.StartedAt = &now
	if err := db.Create(&session).Error; err != nil {
		logger.WithError(err).Warn("failed to record worker session")
	}

	result := runner.run(ctx, pending)

	addLog(db, models.LogLevelInfo,
		fmt.Sprintf("Batch complete: %d/%d successful, %d failed", result.Successful, result.Processed, result.Failed),
		nil, correlationId)

	finished := time.Now()
	_ = config.SetRedisValue(lastRunCacheKey, finished.UTC().Format(time.RFC3339), 0)

	if session.ID != 0 {
		status := models.WorkerSessionStatusDone
		if result.SessionExpired {
			status = models.WorkerSessionStatusAborted
		}
		_ = db.Model(&session).Updates(map[string]interface{}{
			"status":          status,
			"processed":       result.Processed,
			"successful":      result.Successful,
			"failed":          result.Failed,
			"session_expired": result.SessionExpired,
			"finished_at":     finished,
			"duration_ms":     finished.Sub(now).Milliseconds(),
		}).Error
	}

	return result, nil
}

// run processes the claimed slice sequentially. Rotation and counting
// stay deterministic, and a 401 anywhere stops the loop.
func (r *batchRunner) run(ctx context.Context, pending []models.Check) BatchResult {
	var result BatchResult

	for i := range pending {
		check := pending[i]

		claimed, err := r.store.Claim(check.ID)
		if err != nil {
			r.logger.WithError(err).WithField("check_id", check.ID).Error("claim failed")
			continue
		}
		if !claimed {
			// Another invocation took it between fetch and claim.
			continue
		}

		outcome := r.processOne(ctx, check, result.Processed)
		r.applyOutcome(check, outcome, &result)

		if outcome.Kind == OutcomeAuthExpired {
			result.SessionExpired = true
			break
		}

		switch outcome.Kind {
		case OutcomeRateLimited:
			r.sleep(r.rateLimitPause)
		case OutcomeRetryable:
			r.sleep(serverErrorDelay(r.serverBaseDelay, r.serverMaxDelay, check.RetryCount))
		default:
			r.sleep(r.delay)
		}
	}

	return result
}

// serverErrorDelay doubles the base delay per prior retry of the record,
// capped at limit.
func serverErrorDelay(base, limit time.Duration, retries int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < retries && (limit <= 0 || d < limit); i++ {
		d *= 2
	}
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}

// processOne runs the three-step workflow for a single check and maps
// everything that can happen onto an Outcome. It never touches record
// state; applyOutcome owns the transition.
func (r *batchRunner) processOne(ctx context.Context, check models.Check, rotation int) Outcome {
	attempts := r.captchaRetries
	if attempts < 1 {
		attempts = 1
	}

	// Steps A+B: fetch a challenge and solve it with the key chosen for
	// this record. A garbled solve burns the challenge, so fetch and
	// solve are retried together.
	var captcha Captcha
	var solved string
	lastErr := "Failed to solve CAPTCHA"
	for attempt := 0; attempt < attempts && solved == ""; attempt++ {
		var err error
		captcha, err = r.portal.FetchCaptcha(ctx)
		if err != nil {
			if errors.Is(err, ErrSessionExpired) {
				return Outcome{Kind: OutcomeAuthExpired, Message: "Session expired"}
			}
			lastErr = err.Error()
			continue
		}

		key := SelectKey(rotation, r.keys)
		text, err := r.solver.Solve(ctx, key.Key, captcha.Image)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				return Outcome{Kind: OutcomeRateLimited, Message: "Rate limited on key"}
			}
			lastErr = err.Error()
			continue
		}
		if cleaned := CleanCaptchaText(text); cleaned != "" {
			text = cleaned
		}
		if strings.TrimSpace(text) == "" {
			lastErr = "Failed to solve CAPTCHA"
			continue
		}

		solved = text
		if err := r.store.TouchKeyUsage(key.ID); err != nil {
			r.logger.WithError(err).Warn("failed to bump key usage")
		}
	}
	if solved == "" {
		return Outcome{Kind: OutcomeTransientFault, Message: lastErr}
	}
	r.store.AddLog(models.LogLevelInfo, fmt.Sprintf("CAPTCHA solved: %s", solved), &check.ID, r.correlationId)

	if r.archiveCaptchas {
		if raw, decErr := base64.StdEncoding.DecodeString(captcha.Image); decErr == nil {
			name := fmt.Sprintf("captchas/%s-%d.png", check.ReceiptId, time.Now().Unix())
			if archErr := utils.SaveCaptchaToGCS(ctx, name, raw); archErr != nil {
				r.logger.WithError(archErr).Debug("captcha archive failed")
			}
		}
	}

	// Step C: submit the correction.
	payload := BuildSubmitPayload(check, captcha, solved, r.defaults)
	status, body, err := r.portal.Submit(ctx, payload)
	if err != nil {
		return Outcome{Kind: OutcomeTransientFault, Message: err.Error()}
	}
	return ClassifySubmit(status, body)
}

// applyOutcome turns an Outcome into a persisted status transition plus
// counter updates. Every touched record leaves processing here.
func (r *batchRunner) applyOutcome(check models.Check, outcome Outcome, result *BatchResult) {
	switch outcome.Kind {
	case OutcomeCompleted:
		r.updateCheck(check.ID, map[string]interface{}{
			"status":       models.CheckStatusCompleted,
			"error":        nil,
			"result_json":  outcome.Body,
			"processed_at": time.Now(),
		})
		r.store.AddLog(models.LogLevelSuccess, fmt.Sprintf("Check %s completed successfully", check.ReceiptId), &check.ID, r.correlationId)
		result.Successful++
		result.Processed++

	case OutcomeAlreadyDone:
		r.updateCheck(check.ID, map[string]interface{}{
			"status":       models.CheckStatusCompleted,
			"error":        outcome.Message,
			"result_json":  outcome.Body,
			"processed_at": time.Now(),
		})
		r.store.AddLog(models.LogLevelSuccess, fmt.Sprintf("Check %s already submitted", check.ReceiptId), &check.ID, r.correlationId)
		result.Successful++
		result.Processed++

	case OutcomeRetryable:
		if r.revertOrFail(check, outcome.Message) {
			result.Failed++
		}
		r.store.AddLog(models.LogLevelWarning, fmt.Sprintf("Retryable error for %s: %s", check.ReceiptId, outcome.Message), &check.ID, r.correlationId)
		result.Processed++

	case OutcomePermanent:
		r.updateCheck(check.ID, map[string]interface{}{
			"status":      models.CheckStatusFailed,
			"error":       outcome.Message,
			"result_json": outcome.Body,
		})
		r.store.AddLog(models.LogLevelError, fmt.Sprintf("Check %s failed: %d", check.ReceiptId, outcome.Code), &check.ID, r.correlationId)
		result.Failed++
		result.Processed++

	case OutcomeAuthExpired:
		r.updateCheck(check.ID, map[string]interface{}{
			"status": models.CheckStatusPending,
			"error":  "Session expired",
		})
		r.store.AddLog(models.LogLevelError, "Session expired (401)", &check.ID, r.correlationId)
		// Not counted as an attempt; the batch aborts.

	case OutcomeRateLimited:
		r.updateCheck(check.ID, map[string]interface{}{
			"status": models.CheckStatusPending,
		})
		r.store.AddLog(models.LogLevelWarning, "Rate limited on key, skipping check", &check.ID, r.correlationId)
		// Not counted as an attempt; a later batch retries it.

	case OutcomeTransientFault:
		if r.revertOrFail(check, outcome.Message) {
			result.Failed++
		}
		r.store.AddLog(models.LogLevelError, fmt.Sprintf("Error processing %s: %s", check.ReceiptId, outcome.Message), &check.ID, r.correlationId)
		result.Processed++
	}
}

// revertOrFail sends a retryable record back to pending, or fails it
// permanently once the retry ceiling is reached. Reports whether the
// record was failed.
func (r *batchRunner) revertOrFail(check models.Check, errMsg string) bool {
	if r.maxRetries > 0 && check.RetryCount+1 >= r.maxRetries {
		r.updateCheck(check.ID, map[string]interface{}{
			"status":      models.CheckStatusFailed,
			"error":       fmt.Sprintf("retry limit reached: %s", errMsg),
			"retry_count": check.RetryCount + 1,
		})
		return true
	}
	r.updateCheck(check.ID, map[string]interface{}{
		"status":      models.CheckStatusPending,
		"error":       errMsg,
		"retry_count": check.RetryCount + 1,
	})
	return false
}

func (r *batchRunner) updateCheck(id uint, fields map[string]interface{}) {
	if err := r.store.UpdateCheck(id, fields); err != nil {
		r.logger.WithError(err).WithField("check_id", id).Error("failed to update check")
	}
}

func addLog(db *gorm.DB, level, message string, checkId *uint, correlationId string) {
	entry := models.AutomationLog{
		Level:         level,
		Message:       message,
		CheckId:       checkId,
		CorrelationId: correlationId,
	}
	_ = db.Create(&entry).Error
}
