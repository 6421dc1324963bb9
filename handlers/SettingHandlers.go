package handlers

import (
	"database/sql"
	"net/http"

	"backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GetSettingsHandler returns the caller's settings
// @Summary Get user settings
// @Description Fetch the caller's settings, falling back to defaults when
// no row exists yet
// @Tags Settings
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {object} models.Setting
// @Failure 500 {object} models.ErrorResponse
// @Router /api/settings [get]
func GetSettingsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := CurrentUser(c)

		var s models.Setting
		err := db.QueryRow(`
			SELECT user_id, default_tax_rate, COALESCE(default_location_id, 0),
				   email_notifications, push_notifications, allow_multiple_logins, updated_at
			FROM user_settings WHERE user_id = $1`, actor.ID).Scan(
			&s.UserID, &s.DefaultTaxRate, &s.DefaultLocationID,
			&s.EmailNotifications, &s.PushNotifications, &s.AllowMultipleLogins, &s.UpdatedAt)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusOK, models.Setting{
					UserID:              actor.ID,
					DefaultTaxRate:      0,
					EmailNotifications:  true,
					PushNotifications:   true,
					AllowMultipleLogins: true,
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, s)
	}
}

// UpdateSettingsHandler upserts the caller's settings
// @Summary Update user settings
// @Description Upsert the caller's settings row. The default tax rate is a
// decimal (0.08 for 8%).
// @Tags Settings
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {object} models.Setting
// @Failure 400 {object} models.ErrorResponse
// @Router /api/settings [put]
func UpdateSettingsHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			DefaultTaxRate      float64 `json:"default_tax_rate"`
			DefaultLocationID   int     `json:"default_location_id"`
			EmailNotifications  *bool   `json:"email_notifications"`
			PushNotifications   *bool   `json:"push_notifications"`
			AllowMultipleLogins *bool   `json:"allow_multiple_logins"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
		if body.DefaultTaxRate < 0 || body.DefaultTaxRate > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Tax rate must be a decimal between 0 and 1 (0.08 for 8%)"})
			return
		}

		emailOn := true
		if body.EmailNotifications != nil {
			emailOn = *body.EmailNotifications
		}
		pushOn := true
		if body.PushNotifications != nil {
			pushOn = *body.PushNotifications
		}
		multiLogin := true
		if body.AllowMultipleLogins != nil {
			multiLogin = *body.AllowMultipleLogins
		}

		var locationID interface{}
		if body.DefaultLocationID > 0 {
			locationID = body.DefaultLocationID
		}

		actor := CurrentUser(c)
		var s models.Setting
		err := db.QueryRow(`
			INSERT INTO user_settings (user_id, default_tax_rate, default_location_id,
									   email_notifications, push_notifications,
									   allow_multiple_logins, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				default_tax_rate = EXCLUDED.default_tax_rate,
				default_location_id = EXCLUDED.default_location_id,
				email_notifications = EXCLUDED.email_notifications,
				push_notifications = EXCLUDED.push_notifications,
				allow_multiple_logins = EXCLUDED.allow_multiple_logins,
				updated_at = NOW()
			RETURNING user_id, default_tax_rate, COALESCE(default_location_id, 0),
					  email_notifications, push_notifications, allow_multiple_logins, updated_at`,
			actor.ID, body.DefaultTaxRate, locationID, emailOn, pushOn, multiLogin).Scan(
			&s.UserID, &s.DefaultTaxRate, &s.DefaultLocationID,
			&s.EmailNotifications, &s.PushNotifications, &s.AllowMultipleLogins, &s.UpdatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings", "details": err.Error()})
			return
		}

		LogActivity(gdb, actor.ID, "settings", actor.ID, "updated", nil, s)
		c.JSON(http.StatusOK, s)
	}
}
