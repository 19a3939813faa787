package checkedit_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"bitbucket.org/zamonsoft/checkedit_backend/checkedit"
	"bitbucket.org/zamonsoft/checkedit_backend/config"
	"bitbucket.org/zamonsoft/checkedit_backend/models"
)

func TestRunBatch_PreconditionsAndEmptyQueue(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "checkedit_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	ctx := context.Background()

	// An empty config table means the service was never initialized.
	if _, err := checkedit.RunBatch(ctx, models.WorkerTriggeredManual); !errors.Is(err, checkedit.ErrNeedsInit) {
		t.Fatalf("expected ErrNeedsInit on empty config, got %v", err)
	}

	if err := models.SeedDefaults(db); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}

	// Seeded but without any eligible OCR key.
	if _, err := checkedit.RunBatch(ctx, models.WorkerTriggeredManual); !errors.Is(err, checkedit.ErrNoApiKeys) {
		t.Fatalf("expected ErrNoApiKeys, got %v", err)
	}

	key := models.ApiKey{Service: "gemini", Key: "test-key", IsActive: true}
	if err := db.Create(&key).Error; err != nil {
		t.Fatalf("create api key: %v", err)
	}

	// Cookies present but none carries the bearer token: the batch must
	// fail up front with nothing touched.
	if err := db.Create(&models.SessionCookie{Name: "session_id", Value: "s-1", IsActive: true}).Error; err != nil {
		t.Fatalf("create cookie: %v", err)
	}
	pending := models.Check{
		ReceiptId:  "990",
		PaymentId:  "EP0000000005510000000000000990",
		TerminalId: "EP000000000551",
		Status:     models.CheckStatusPending,
	}
	if err := db.Create(&pending).Error; err != nil {
		t.Fatalf("create check: %v", err)
	}

	if _, err := checkedit.RunBatch(ctx, models.WorkerTriggeredManual); !errors.Is(err, checkedit.ErrNoBearerToken) {
		t.Fatalf("expected ErrNoBearerToken, got %v", err)
	}

	var untouched models.Check
	if err := db.First(&untouched, pending.ID).Error; err != nil {
		t.Fatalf("fetch check: %v", err)
	}
	if untouched.Status != models.CheckStatusPending || untouched.RetryCount != 0 || untouched.Error != nil {
		t.Fatalf("check must stay untouched without a bearer token, got %+v", untouched)
	}
	var tokenLogs int64
	if err := db.Model(&models.AutomationLog{}).
		Where("message = ?", "No bearer token found in session cookies").
		Count(&tokenLogs).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if tokenLogs != 1 {
		t.Fatalf("expected one missing-token log, got %d", tokenLogs)
	}

	// Empty queue with everything else in place: a clean zero result and
	// a single info log, no worker session recorded.
	if err := db.Delete(&models.Check{}, pending.ID).Error; err != nil {
		t.Fatalf("delete check: %v", err)
	}
	if err := db.Create(&models.SessionCookie{Name: models.BearerTokenCookieName, Value: "token-value", IsActive: true}).Error; err != nil {
		t.Fatalf("create bearer cookie: %v", err)
	}

	result, err := checkedit.RunBatch(ctx, models.WorkerTriggeredManual)
	if err != nil {
		t.Fatalf("RunBatch on empty queue: %v", err)
	}
	if result.Processed != 0 || result.Successful != 0 || result.Failed != 0 || result.SessionExpired {
		t.Fatalf("expected zero result on empty queue, got %+v", result)
	}

	var emptyLogs int64
	if err := db.Model(&models.AutomationLog{}).
		Where("message = ? AND level = ?", "No pending checks to process", models.LogLevelInfo).
		Count(&emptyLogs).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if emptyLogs != 1 {
		t.Fatalf("expected one empty-queue log, got %d", emptyLogs)
	}

	var sessions int64
	if err := db.Model(&models.WorkerSession{}).Count(&sessions).Error; err != nil {
		t.Fatalf("count worker sessions: %v", err)
	}
	if sessions != 0 {
		t.Fatalf("empty queue must not record a worker session, got %d", sessions)
	}
}
