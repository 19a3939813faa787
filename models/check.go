package models

import "time"

const (
	CheckStatusPending    = "pending"
	CheckStatusProcessing = "processing"
	CheckStatusCompleted  = "completed"
	CheckStatusFailed     = "failed"
)

type Check struct {
	ID          uint       `gorm:"primary_key" json:"id"`
	ReceiptId   string     `gorm:"uniqueIndex;size:64;not null" json:"receipt_id"`
	PaymentId   string     `gorm:"size:64;not null" json:"payment_id"`
	TerminalId  string     `gorm:"size:32;not null" json:"terminal_id"`
	Tin         *string    `gorm:"size:32" json:"tin"`
	PaymentDate *string    `gorm:"size:32" json:"payment_date"`
	Status      string     `gorm:"index;size:20;not null;default:pending" json:"status"`
	Error       *string    `gorm:"type:text" json:"error"`
	ResultJSON  []byte     `gorm:"type:json" json:"result"`
	RetryCount  int        `gorm:"default:0" json:"retry_count"`
	FileId      *uint      `gorm:"index" json:"file_id"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
