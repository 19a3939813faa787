package models

import (
	"time"

	"gorm.io/gorm"
)

// ApiKey is an OCR provider credential. Only active, non-suspended keys
// are eligible for rotation.
type ApiKey struct {
	ID          uint       `gorm:"primary_key" json:"id"`
	Service     string     `gorm:"index;size:32;not null;default:gemini" json:"service"`
	Key         string     `gorm:"uniqueIndex;size:128;not null" json:"key"`
	Label       string     `gorm:"size:100" json:"label"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	IsSuspended bool       `gorm:"default:false" json:"is_suspended"`
	UsageCount  int        `gorm:"default:0" json:"usage_count"`
	LastUsed    *time.Time `json:"last_used"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ListEligibleKeys returns active, non-suspended keys for a service in a
// stable order so round-robin rotation is deterministic within a batch.
func ListEligibleKeys(db *gorm.DB, service string) ([]ApiKey, error) {
	var keys []ApiKey
	err := db.Where("service = ? AND is_active = ? AND is_suspended = ?", service, true, false).
		Order("id asc").
		Find(&keys).Error
	return keys, err
}

// TouchKeyUsage bumps the usage counter after a successful solve.
func TouchKeyUsage(db *gorm.DB, id uint) error {
	now := time.Now()
	return db.Model(&ApiKey{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + 1"),
			"last_used":   now,
		}).Error
}
