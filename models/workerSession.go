package models

import "time"

const (
	WorkerSessionStatusRunning = "running"
	WorkerSessionStatusDone    = "done"
	WorkerSessionStatusAborted = "aborted"
)

// WorkerSession is one batch invocation of the automation worker.
type WorkerSession struct {
	ID             uint       `gorm:"primary_key" json:"id"`
	Status         string     `gorm:"index;size:20;not null" json:"status"`
	TriggeredBy    string     `gorm:"size:20" json:"triggered_by"`
	Processed      int        `json:"processed"`
	Successful     int        `json:"successful"`
	Failed         int        `json:"failed"`
	SessionExpired bool       `gorm:"default:false" json:"session_expired"`
	CorrelationId  string     `gorm:"size:64" json:"correlation_id"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	DurationMs     int64      `json:"duration_ms"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	WorkerTriggeredManual    = "manual"
	WorkerTriggeredScheduler = "scheduler"
	WorkerTriggeredPubSub    = "pubsub"
)
