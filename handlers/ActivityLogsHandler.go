package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// LogActivity records one audit entry through GORM. Failures are logged and
// swallowed so an audit hiccup never fails the business operation.
func LogActivity(gdb *gorm.DB, userID int, entityType string, entityID int, action string, oldValue, newValue interface{}) {
	entry := models.ActivityLogGorm{
		UserID:     userID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		CreatedAt:  time.Now(),
	}
	if oldValue != nil {
		if b, err := json.Marshal(oldValue); err == nil {
			s := string(b)
			entry.OldValue = &s
		}
	}
	if newValue != nil {
		if b, err := json.Marshal(newValue); err == nil {
			s := string(b)
			entry.NewValue = &s
		}
	}

	if err := gdb.Create(&entry).Error; err != nil {
		log.Printf("failed to write activity log (%s %s %d): %v", action, entityType, entityID, err)
	}
}

// GetActivityLogsHandler lists audit entries
// @Summary List activity logs
// @Description List activity log entries, newest first, with optional entity filters
// @Tags ActivityLogs
// @Produce json
// @Param Authorization header string true "Session token"
// @Param entity_type query string false "Filter by entity type"
// @Param entity_id query int false "Filter by entity ID"
// @Param user_id query int false "Filter by acting user"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.ActivityLogGorm
// @Failure 500 {object} models.ErrorResponse
// @Router /api/activity_logs [get]
func GetActivityLogsHandler(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if offset < 0 {
			offset = 0
		}

		query := gdb.Model(&models.ActivityLogGorm{}).Order("created_at DESC, id DESC")
		if et := c.Query("entity_type"); et != "" {
			query = query.Where("entity_type = ?", et)
		}
		if eid := c.Query("entity_id"); eid != "" {
			if id, err := strconv.Atoi(eid); err == nil {
				query = query.Where("entity_id = ?", id)
			}
		}
		if uid := c.Query("user_id"); uid != "" {
			if id, err := strconv.Atoi(uid); err == nil {
				query = query.Where("user_id = ?", id)
			}
		}

		logs := []models.ActivityLogGorm{}
		if err := query.Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch activity logs", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, logs)
	}
}

// GetEntityHistoryHandler lists audit entries for one entity
// @Summary Entity change history
// @Description List all audit entries for a single entity
// @Tags ActivityLogs
// @Produce json
// @Param Authorization header string true "Session token"
// @Param entity_type path string true "Entity type"
// @Param entity_id path int true "Entity ID"
// @Success 200 {array} models.ActivityLogGorm
// @Failure 400 {object} models.ErrorResponse
// @Router /api/activity_logs/{entity_type}/{entity_id} [get]
func GetEntityHistoryHandler(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		entityType := c.Param("entity_type")
		entityID, err := strconv.Atoi(c.Param("entity_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entity ID"})
			return
		}

		logs := []models.ActivityLogGorm{}
		err = gdb.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
			Order("created_at ASC, id ASC").Find(&logs).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, logs)
	}
}
