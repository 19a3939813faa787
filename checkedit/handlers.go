package checkedit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/zamonsoft/checkedit_backend/config"
	"bitbucket.org/zamonsoft/checkedit_backend/models"
	"bitbucket.org/zamonsoft/checkedit_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RunHandler triggers one batch. The response mirrors the runner's
// result so the dashboard can poll and re-invoke.
func RunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// async=true hands the run to Pub/Sub so slow batches don't tie up
		// the caller's connection.
		if c.Query("async") == "true" {
			if err := PublishRunRequest(c.Request.Context(), models.WorkerTriggeredManual); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"success": true, "queued": true})
			return
		}

		result, err := RunBatch(c.Request.Context(), models.WorkerTriggeredManual)
		if err != nil {
			switch {
			case errors.Is(err, ErrNeedsInit):
				c.JSON(http.StatusOK, gin.H{"success": false, "error": "Not initialized. Call /api/init first.", "needsInit": true})
			case errors.Is(err, ErrNoApiKeys), errors.Is(err, ErrNoBearerToken):
				c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
			case errors.Is(err, ErrBatchLocked):
				c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"processed":      result.Processed,
			"successful":     result.Successful,
			"failed":         result.Failed,
			"sessionExpired": result.SessionExpired,
		})
	}
}

// StatusHandler reports queue counts and the most recent log lines.
func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		counts, total, err := countByStatus(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		var recentLogs []models.AutomationLog
		if err := db.Order("created_at desc").Limit(5).Find(&recentLogs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		response := gin.H{
			"success": true,
			"status": gin.H{
				"pending":    counts[models.CheckStatusPending],
				"processing": counts[models.CheckStatusProcessing],
				"completed":  counts[models.CheckStatusCompleted],
				"failed":     counts[models.CheckStatusFailed],
				"total":      total,
			},
			"recentLogs": recentLogs,
		}
		if lastRun, ok, err := config.GetRedisValue(lastRunCacheKey); err == nil && ok {
			response["lastRunAt"] = lastRun
		}
		c.JSON(http.StatusOK, response)
	}
}

const (
	statsCacheKey   = "checkedit:stats"
	lastRunCacheKey = "checkedit:lastRunAt"
)

// StatsHandler adds worker-session history and key usage on top of the
// queue counts. The dashboard polls this aggressively, so the response
// is cached for a few seconds.
func StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cached := map[string]interface{}{}
		if found, err := config.GetRedisObject(statsCacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, cached)
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())

		counts, total, err := countByStatus(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		var sessions []models.WorkerSession
		if err := db.Order("id desc").Limit(20).Find(&sessions).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		var keys []models.ApiKey
		if err := db.Order("id asc").Find(&keys).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		for i := range keys {
			keys[i].Key = maskKey(keys[i].Key)
		}

		var files []models.UploadedFile
		if err := db.Order("id desc").Limit(10).Find(&files).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		response := gin.H{
			"success": true,
			"checks": gin.H{
				"pending":    counts[models.CheckStatusPending],
				"processing": counts[models.CheckStatusProcessing],
				"completed":  counts[models.CheckStatusCompleted],
				"failed":     counts[models.CheckStatusFailed],
				"total":      total,
			},
			"sessions": sessions,
			"keys":     keys,
			"files":    files,
		}
		_ = config.SetRedisObject(statsCacheKey, response, 5*time.Second)
		c.JSON(http.StatusOK, response)
	}
}

// InitHandler migrates tables and seeds default config rows. Existing
// keys are never overwritten, so re-running is safe.
func InitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		if err := models.SeedDefaults(db); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Defaults initialized"})
	}
}

// ConfigListHandler returns all config rows grouped by category.
func ConfigListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		var rows []models.ProjectConfig
		if err := db.Order("category asc, key asc").Find(&rows).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		grouped := map[string][]models.ProjectConfig{}
		for _, row := range rows {
			grouped[row.Category] = append(grouped[row.Category], row)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "config": grouped})
	}
}

type configEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type configUpdateRequest struct {
	Key     string        `json:"key"`
	Value   string        `json:"value"`
	Updates []configEntry `json:"updates"`
}

// ConfigUpdateHandler changes setting values, one at a time or as a
// batch from the settings form. Bad values are caught at use-time by
// the parse helpers, never here.
func ConfigUpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req configUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
			return
		}

		entries := req.Updates
		if strings.TrimSpace(req.Key) != "" {
			entries = append(entries, configEntry{Key: req.Key, Value: req.Value})
		}
		if len(entries) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "key is required"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var updated int64
		err := db.Transaction(func(tx *gorm.DB) error {
			for _, entry := range entries {
				if strings.TrimSpace(entry.Key) == "" {
					continue
				}
				res := tx.Model(&models.ProjectConfig{}).Where("`key` = ?", entry.Key).Update("value", entry.Value)
				if res.Error != nil {
					return res.Error
				}
				updated += res.RowsAffected
			}
			return nil
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		if updated == 0 {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "unknown config key"})
			return
		}
		models.InvalidateConfigCache()
		c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
	}
}

// KeysListHandler lists OCR credentials with the secret masked.
func KeysListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		var keys []models.ApiKey
		if err := db.Order("id asc").Find(&keys).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		for i := range keys {
			keys[i].Key = maskKey(keys[i].Key)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "keys": keys})
	}
}

type keyCreateRequest struct {
	Service string `json:"service"`
	Key     string `json:"key"`
	Label   string `json:"label"`
}

func KeysCreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req keyCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
			return
		}
		if strings.TrimSpace(req.Key) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "key is required"})
			return
		}
		service := strings.TrimSpace(req.Service)
		if service == "" {
			service = "gemini"
		}

		db := config.GetDB().WithContext(c.Request.Context())
		key := models.ApiKey{
			Service:  service,
			Key:      strings.TrimSpace(req.Key),
			Label:    strings.TrimSpace(req.Label),
			IsActive: true,
		}
		if err := db.Create(&key).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		key.Key = maskKey(key.Key)
		c.JSON(http.StatusOK, gin.H{"success": true, "key": key})
	}
}

type keyUpdateRequest struct {
	IsActive    *bool `json:"is_active"`
	IsSuspended *bool `json:"is_suspended"`
}

func KeysUpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid id"})
			return
		}

		var req keyUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
			return
		}

		updates := map[string]interface{}{}
		if req.IsActive != nil {
			updates["is_active"] = *req.IsActive
		}
		if req.IsSuspended != nil {
			updates["is_suspended"] = *req.IsSuspended
		}
		if len(updates) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "nothing to update"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		res := db.Model(&models.ApiKey{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": res.Error.Error()})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "key not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func KeysDeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid id"})
			return
		}
		db := config.GetDB().WithContext(c.Request.Context())
		if err := db.Delete(&models.ApiKey{}, id).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// CookiesListHandler lists stored session cookies with values truncated.
func CookiesListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		var cookies []models.SessionCookie
		if err := db.Order("id asc").Find(&cookies).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		for i := range cookies {
			cookies[i].Value = maskKey(cookies[i].Value)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "cookies": cookies})
	}
}

type cookieEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type cookiesReplaceRequest struct {
	Cookies []cookieEntry `json:"cookies"`
}

// CookiesReplaceHandler swaps the full cookie set in one transaction.
// Partial updates are useless here: the portal session is a unit.
func CookiesReplaceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cookiesReplaceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
			return
		}
		if len(req.Cookies) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "cookies are required"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("1 = 1").Delete(&models.SessionCookie{}).Error; err != nil {
				return err
			}
			for _, entry := range req.Cookies {
				if strings.TrimSpace(entry.Name) == "" {
					continue
				}
				row := models.SessionCookie{Name: entry.Name, Value: entry.Value, IsActive: true}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "count": len(req.Cookies)})
	}
}

// SessionHandler reports whether the stored bearer token is still valid
// by its exp claim.
func SessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := models.GetBearerCookie(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "hasToken": false})
			return
		}

		exp, err := utils.BearerTokenExpiry(cookie.Value)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "hasToken": true, "valid": false, "error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"hasToken":  true,
			"valid":     exp.After(time.Now()),
			"expiresAt": exp.UTC().Format(time.RFC3339),
		})
	}
}

// FilesListHandler lists imported workbooks.
func FilesListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		var files []models.UploadedFile
		if err := db.Order("id desc").Find(&files).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "files": files})
	}
}

// FilesImportHandler accepts an Excel upload, records it, imports its
// check rows, and archives the original to GCS when a bucket is set.
func FilesImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "file is required"})
			return
		}

		src, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		defer src.Close()

		content, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		cfg, err := models.GetConfigMap(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		file := models.UploadedFile{Filename: fileHeader.Filename}
		if err := db.Create(&file).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		summary, err := ImportChecksFromExcel(db, bytes.NewReader(content), &file.ID, cfg)
		if err != nil {
			addLog(db, models.LogLevelError, fmt.Sprintf("Excel parse error: %s", err.Error()), nil, "")
			c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
			return
		}

		updates := map[string]interface{}{
			"row_count": summary.Total,
			"imported":  summary.Imported,
			"skipped":   summary.Skipped,
		}
		objectName := fmt.Sprintf("uploads/%d-%s", file.ID, fileHeader.Filename)
		if uploadErr := utils.UploadFileToGCS(c.Request.Context(), objectName, bytes.NewReader(content)); uploadErr == nil {
			updates["object_name"] = objectName
		} else {
			config.LogError(config.GetLogger(), "checkedit", "FilesImportHandler", "archive upload failed", objectName, uploadErr)
		}
		_ = db.Model(&file).Updates(updates).Error

		addLog(db, models.LogLevelInfo, fmt.Sprintf("Created %d new check records", summary.Imported), nil, "")
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"total":   summary.Total,
			"new":     summary.Imported,
			"skipped": summary.Skipped,
			"fileId":  file.ID,
		})
	}
}

func countByStatus(db *gorm.DB) (map[string]int64, int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	if err := db.Model(&models.Check{}).
		Select("status, count(*) as n").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	counts := map[string]int64{}
	var total int64
	for _, r := range rows {
		counts[r.Status] = r.N
		total += r.N
	}
	return counts, total, nil
}

func maskKey(v string) string {
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}
