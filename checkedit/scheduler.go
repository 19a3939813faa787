package checkedit

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/zamonsoft/checkedit_backend/config"
	"bitbucket.org/zamonsoft/checkedit_backend/models"
	"bitbucket.org/zamonsoft/checkedit_backend/utils"
	"github.com/google/uuid"
)

// StartScheduler loops batch runs while LOOP_ENABLED is true, waiting
// LOOP_INTERVAL between runs. Config is re-read every iteration so the
// loop can be paused from the dashboard without a restart.
func StartScheduler(ctx context.Context) {
	logger := config.GetLogger()
	logger.Info("automation scheduler started")

	// When a batch aborts on 401 the loop parks itself until the stored
	// bearer cookie changes; retrying with the same dead session would
	// just burn CAPTCHA fetches.
	var staleTokenStamp *time.Time

	for {
		interval := 5 * time.Second
		enabled := true

		if db := config.GetDB(); db != nil {
			if cfg, err := models.GetConfigMap(db.WithContext(ctx)); err == nil {
				enabled = models.ConfigBool(cfg, "LOOP_ENABLED", true)
				interval = models.ConfigDuration(cfg, "LOOP_INTERVAL", 5*time.Second)
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("automation scheduler stopped")
			return
		case <-time.After(interval):
		}

		if !enabled {
			continue
		}

		if staleTokenStamp != nil {
			stamp := bearerCookieStamp(ctx)
			if stamp == nil || stamp.Equal(*staleTokenStamp) {
				continue
			}
			logger.Info("session cookies refreshed; resuming scheduled batches")
			staleTokenStamp = nil
		}

		// A token already past its exp claim would only produce 401s;
		// park without spending a batch on it.
		if cookie, err := models.GetBearerCookie(ctx); err == nil && !canDispatchWithToken(cookie, time.Now()) {
			staleTokenStamp = &cookie.UpdatedAt
			logger.Warn("bearer token past its exp claim; pausing until cookies are refreshed")
			continue
		}

		runCtx := utils.SetCorrelationIdInContext(ctx, uuid.NewString())
		result, err := RunBatch(runCtx, models.WorkerTriggeredScheduler)
		switch {
		case err == nil:
			if result.Processed > 0 || result.SessionExpired {
				logger.WithFields(map[string]interface{}{
					"processed":       result.Processed,
					"successful":      result.Successful,
					"failed":          result.Failed,
					"session_expired": result.SessionExpired,
				}).Info("scheduled batch finished")
			}
			if result.SessionExpired {
				staleTokenStamp = bearerCookieStamp(ctx)
				if staleTokenStamp == nil {
					zero := time.Time{}
					staleTokenStamp = &zero
				}
				logger.Warn("session expired; pausing until cookies are refreshed")
			}
		case errors.Is(err, ErrNeedsInit), errors.Is(err, ErrBatchLocked):
			// Expected during setup or when a manual run is in flight.
		default:
			config.LogError(logger, "checkedit", "StartScheduler", "scheduled batch failed", nil, err)
		}
	}
}

// canDispatchWithToken reports whether a scheduled run is worth
// attempting with the stored bearer cookie. A missing cookie still
// dispatches so RunBatch can record its own precondition failure.
func canDispatchWithToken(cookie *models.SessionCookie, now time.Time) bool {
	if cookie == nil {
		return true
	}
	return !utils.BearerTokenExpired(cookie.Value, now)
}

// bearerCookieStamp returns the bearer cookie's last update time, or nil
// when no such cookie is stored.
func bearerCookieStamp(ctx context.Context) *time.Time {
	if config.GetDB() == nil {
		return nil
	}
	cookie, err := models.GetBearerCookie(ctx)
	if err != nil {
		return nil
	}
	return &cookie.UpdatedAt
}
