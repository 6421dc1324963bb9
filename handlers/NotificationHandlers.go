package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"backend/models"
	"backend/services"

	"github.com/gin-gonic/gin"
)

// GetNotificationsHandler lists the caller's notifications
// @Summary List notifications
// @Tags Notifications
// @Produce json
// @Param Authorization header string true "Session token"
// @Param status query string false "Filter by status (unread, read)"
// @Success 200 {array} models.Notification
// @Failure 500 {object} models.ErrorResponse
// @Router /api/notifications [get]
func GetNotificationsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := CurrentUser(c)

		query := `
			SELECT id, user_id, message, status, COALESCE(action, ''), created_at, updated_at
			FROM notifications WHERE user_id = $1`
		args := []interface{}{actor.ID}
		if status := c.Query("status"); status != "" {
			args = append(args, status)
			query += " AND status = $" + strconv.Itoa(len(args))
		}
		query += " ORDER BY created_at DESC LIMIT 100"

		rows, err := db.Query(query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications", "details": err.Error()})
			return
		}
		defer rows.Close()

		notifications := []models.Notification{}
		for rows.Next() {
			var n models.Notification
			err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Status, &n.Action,
				&n.CreatedAt, &n.UpdatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan notification", "details": err.Error()})
				return
			}
			notifications = append(notifications, n)
		}

		var unread int
		if err := db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND status = 'unread'`, actor.ID).Scan(&unread); err != nil {
			unread = 0
		}

		c.JSON(http.StatusOK, gin.H{"notifications": notifications, "unread_count": unread})
	}
}

// MarkNotificationReadHandler marks one notification read
// @Summary Mark notification read
// @Tags Notifications
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Notification ID"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/notifications/{id}/read [put]
func MarkNotificationReadHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID"})
			return
		}

		actor := CurrentUser(c)
		result, err := db.Exec(`
			UPDATE notifications SET status = 'read', updated_at = NOW()
			WHERE id = $1 AND user_id = $2`, id, actor.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification", "details": err.Error()})
			return
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Notification marked read"})
	}
}

// MarkAllNotificationsReadHandler marks everything read
// @Summary Mark all notifications read
// @Tags Notifications
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {object} models.MessageResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/notifications/read_all [put]
func MarkAllNotificationsReadHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := CurrentUser(c)
		result, err := db.Exec(`
			UPDATE notifications SET status = 'read', updated_at = NOW()
			WHERE user_id = $1 AND status = 'unread'`, actor.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications", "details": err.Error()})
			return
		}
		updated, _ := result.RowsAffected()
		c.JSON(http.StatusOK, gin.H{"message": "Notifications marked read", "updated": updated})
	}
}

// RegisterDeviceTokenHandler stores the caller's FCM token
// @Summary Register device token
// @Description Save the device's FCM registration token so the user can
// receive push notifications
// @Tags Notifications
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/notifications/device_token [post]
func RegisterDeviceTokenHandler(push *services.PushService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if push == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notifications are not configured"})
			return
		}

		var body struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		if err := push.SaveDeviceToken(actor.ID, body.Token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save device token", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Device token registered"})
	}
}

// RemoveDeviceTokenHandler clears the caller's FCM token
// @Summary Remove device token
// @Tags Notifications
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {object} models.MessageResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/notifications/device_token [delete]
func RemoveDeviceTokenHandler(push *services.PushService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if push == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notifications are not configured"})
			return
		}

		actor := CurrentUser(c)
		if err := push.RemoveDeviceToken(actor.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove device token", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Device token removed"})
	}
}
