package models

import (
	"context"
	"time"

	"bitbucket.org/zamonsoft/checkedit_backend/config"
	"bitbucket.org/zamonsoft/checkedit_backend/utils"
)

// SessionCookie stores the portal session material captured from a
// logged-in browser: cookie header value plus the bearer token.
type SessionCookie struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BearerTokenCookieName is the distinguished cookie that carries the
// portal authorization credential.
const BearerTokenCookieName = "bearer_token"

// GetBearerCookie returns the stored bearer token cookie.
func GetBearerCookie(ctx context.Context) (*SessionCookie, error) {
	var cookie SessionCookie
	// db action
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("name = ? AND is_active = ?", BearerTokenCookieName, true).Take(&cookie).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &cookie, nil
}
