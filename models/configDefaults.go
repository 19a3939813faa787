package models

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Default configuration rows seeded on /api/init. Existing keys are left
// untouched so operator edits survive re-initialization.
var DefaultConfig = []ProjectConfig{
	// Base URLs and endpoints
	{Key: "BASE_URL", Value: "https://my3.soliq.uz", Category: "api", Type: "string", Label: "Base URL", Description: "Main API base URL"},
	{Key: "API_BASE", Value: "https://my3.soliq.uz/api/cashregister-edit-api", Category: "api", Type: "string", Label: "API Base"},
	{Key: "CAPTCHA_URL", Value: "/api/cashregister-edit-api/home/get-captcha", Category: "api", Type: "string", Label: "CAPTCHA Endpoint"},
	{Key: "SUBMIT_URL", Value: "/api/cashregister-edit-api/check-edit/set-payment", Category: "api", Type: "string", Label: "Submit Endpoint"},

	// API constants
	{Key: "DEFAULT_TIN", Value: "62409036610049", Category: "session", Type: "string", Label: "Commission TIN"},
	{Key: "DEFAULT_TERMINAL_ID", Value: "EP000000000551", Category: "session", Type: "string", Label: "Default Terminal ID"},
	{Key: "CHECK_NUMBER_COLUMN", Value: "receipt_id", Category: "files", Type: "string", Label: "Check Number Column"},
	{Key: "INTERACTIVE_ID", Value: "58", Category: "session", Type: "number", Label: "Interactive Session ID"},
	{Key: "USER_AGENT", Value: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36", Category: "session", Type: "string", Label: "User Agent"},

	// Request configuration
	{Key: "REQUEST_TIMEOUT", Value: "120", Category: "performance", Type: "number", Label: "Request Timeout (sec)"},
	{Key: "REQUEST_DELAY", Value: "0.05", Category: "performance", Type: "number", Label: "Request Delay (sec)"},
	{Key: "CAPTCHA_MAX_RETRIES", Value: "2", Category: "performance", Type: "number", Label: "CAPTCHA Max Retries"},
	{Key: "DELAY_BETWEEN_CHECKS", Value: "0.05", Category: "performance", Type: "number", Label: "Delay Between Checks (sec)"},
	{Key: "BATCH_SIZE", Value: "50", Category: "performance", Type: "number", Label: "Batch Size", Description: "Checks claimed per batch run"},

	// Data configuration
	{Key: "DEFAULT_VAT_TOTAL", Value: "0", Category: "data", Type: "number", Label: "Default VAT Total"},
	{Key: "DEFAULT_CASH_TOTAL", Value: "0", Category: "data", Type: "number", Label: "Default Cash Total"},
	{Key: "DEFAULT_CARD_TOTAL", Value: "0", Category: "data", Type: "string", Label: "Default Card Total"},
	{Key: "CLIENT_IP", Value: "127.0.0.1", Category: "data", Type: "string", Label: "Client IP"},

	// Gemini OCR
	{Key: "GEMINI_MODEL", Value: "gemini-2.5-flash-lite", Category: "gemini", Type: "string", Label: "Gemini Model"},
	{Key: "GEMINI_RPM_PER_KEY", Value: "14", Category: "gemini", Type: "number", Label: "RPM Per Key"},
	{Key: "GEMINI_RATE_LIMIT_BACKOFF", Value: "15.0", Category: "gemini", Type: "number", Label: "Rate Limit Backoff (sec)"},
	{Key: "CAPTCHA_PREPROCESS", Value: "false", Category: "gemini", Type: "boolean", Label: "Preprocess CAPTCHA Images"},
	{Key: "CAPTCHA_ARCHIVE", Value: "false", Category: "gemini", Type: "boolean", Label: "Archive CAPTCHA Images to GCS"},

	// Server error retry policy
	{Key: "SERVER_ERROR_MAX_RETRIES", Value: "5", Category: "limits", Type: "number", Label: "Server Error Max Retries"},
	{Key: "SERVER_ERROR_BASE_DELAY", Value: "2.0", Category: "limits", Type: "number", Label: "Server Error Base Delay (sec)"},
	{Key: "SERVER_ERROR_MAX_DELAY", Value: "30.0", Category: "limits", Type: "number", Label: "Server Error Max Delay (sec)"},

	// Automation loop
	{Key: "LOOP_ENABLED", Value: "true", Category: "automation", Type: "boolean", Label: "Enable Loop"},
	{Key: "LOOP_INTERVAL", Value: "5", Category: "automation", Type: "number", Label: "Loop Interval (sec)"},
	{Key: "SESSION_CHECK_INTERVAL", Value: "20", Category: "automation", Type: "number", Label: "Session Check Interval (min)"},

	// Logging
	{Key: "LOG_LEVEL", Value: "INFO", Category: "logging", Type: "string", Label: "Log Level"},
}

var DefaultSessionCookies = []SessionCookie{
	{Name: "smart_top", Value: "1"},
}

// SeedDefaults inserts default config rows and cookie placeholders,
// skipping any key that already exists.
func SeedDefaults(db *gorm.DB) error {
	if len(DefaultConfig) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&DefaultConfig).Error; err != nil {
			return err
		}
	}
	for _, cookie := range DefaultSessionCookies {
		var count int64
		if err := db.Model(&SessionCookie{}).Where("name = ?", cookie.Name).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			row := cookie
			if err := db.Create(&row).Error; err != nil {
				return err
			}
		}
	}
	InvalidateConfigCache()
	return nil
}
