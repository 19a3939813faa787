package models

import "time"

const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
	LogLevelSuccess = "success"
)

// AutomationLog records per-check and per-batch events for the dashboard.
type AutomationLog struct {
	ID            uint      `gorm:"primary_key" json:"id"`
	Level         string    `gorm:"index;size:10;not null" json:"level"`
	Message       string    `gorm:"type:text;not null" json:"message"`
	CheckId       *uint     `gorm:"index" json:"check_id"`
	SessionId     *uint     `gorm:"index" json:"session_id"`
	CorrelationId string    `gorm:"size:64" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
