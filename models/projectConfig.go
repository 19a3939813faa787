package models

import (
	"strconv"
	"strings"
	"time"

	"bitbucket.org/zamonsoft/checkedit_backend/config"
	"gorm.io/gorm"
)

// ProjectConfig holds runtime-editable settings keyed by name. Values are
// stored as strings and parsed at the point of use, so a bad edit never
// poisons startup.
type ProjectConfig struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	Key         string    `gorm:"uniqueIndex;size:100;not null" json:"key"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	Category    string    `gorm:"index;size:50" json:"category"`
	Type        string    `gorm:"size:20" json:"type"`
	Label       string    `gorm:"size:255" json:"label"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const configCacheKey = "ProjectConfig:All"

// GetConfigMap loads all config rows as a key/value map, preferring the
// Redis cache when available.
func GetConfigMap(db *gorm.DB) (map[string]string, error) {
	cached := map[string]string{}
	if found, err := config.GetRedisObject(configCacheKey, &cached); err == nil && found {
		return cached, nil
	}

	var rows []ProjectConfig
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	_ = config.SetRedisObject(configCacheKey, out, 5*time.Minute)
	return out, nil
}

// InvalidateConfigCache drops the cached config map after an update.
func InvalidateConfigCache() {
	_ = config.RemoveRedisKey(configCacheKey)
}

func ConfigString(m map[string]string, key string, def string) string {
	v, ok := m[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func ConfigInt(m map[string]string, key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func ConfigFloat(m map[string]string, key string, def float64) float64 {
	v, ok := m[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func ConfigBool(m map[string]string, key string, def bool) bool {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}

// ConfigDuration parses a value expressed in seconds (possibly fractional,
// e.g. "0.05") into a time.Duration.
func ConfigDuration(m map[string]string, key string, def time.Duration) time.Duration {
	v, ok := m[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return time.Duration(f * float64(time.Second))
}
