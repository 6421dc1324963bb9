package handlers

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"backend/models"
	"backend/storage"
	"backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// LoginHandler handles user authentication
// @Summary Login user
// @Description Authenticate user and return session and refresh tokens
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /api/login [post]
func LoginHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var loginData struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}

		if err := c.ShouldBindJSON(&loginData); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
			return
		}

		user, err := storage.GetUserByEmail(db, loginData.Email)
		if err != nil || !utils.ValidatePassword(user.Password, loginData.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		if user.Suspended {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is suspended"})
			return
		}

		allowMultipleSessions := true
		err = db.QueryRow(`SELECT allow_multiple_logins FROM user_settings WHERE user_id = $1`, user.ID).Scan(&allowMultipleSessions)
		if err != nil && err != sql.ErrNoRows {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings", "details": err.Error()})
			return
		}

		newToken, err := utils.GenerateJWT(user.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}

		refreshToken, err := utils.GenerateRefreshToken(user.Email, newToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate refresh token"})
			return
		}

		session := &models.Session{
			UserID:                user.ID,
			SessionID:             newToken,
			HostName:              user.Email,
			IPAddress:             c.ClientIP(),
			Timestamp:             time.Now(),
			ExpiresAt:             time.Now().Add(24 * time.Hour),
			RefreshToken:          refreshToken,
			RefreshTokenExpiresAt: time.Now().Add(15 * 24 * time.Hour),
		}

		if err := storage.SaveSession(db, session, allowMultipleSessions); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save session", "details": err.Error()})
			return
		}

		if err := storage.MarkUserAccess(db, user.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record access", "details": err.Error()})
			return
		}

		full, err := storage.GetUserBySessionID(db, newToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user", "details": err.Error()})
			return
		}
		full.Password = ""

		c.JSON(http.StatusOK, models.LoginResponse{
			SessionID:    newToken,
			AccessToken:  newToken,
			RefreshToken: refreshToken,
			User:         *full,
		})
	}
}

// RefreshTokenHandler exchanges a refresh token for a new session token
// @Summary Refresh session
// @Description Exchange a valid refresh token for a new access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 401 {object} models.ErrorResponse
// @Router /api/refresh [post]
func RefreshTokenHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
			return
		}

		parsed, err := utils.ValidateJWT(body.RefreshToken)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
			return
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims structure"})
			return
		}
		if t, _ := claims["type"].(string); t != "refresh" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not a refresh token"})
			return
		}
		email, _ := claims["email"].(string)
		oldSessionID, _ := claims["sessionId"].(string)
		if email == "" || oldSessionID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token claims missing"})
			return
		}

		// The stored token must match what the client presented; a rotated or
		// logged-out session cannot be refreshed.
		stored, err := storage.GetRefreshTokenBySession(db, oldSessionID)
		if err != nil || stored != body.RefreshToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token not recognized"})
			return
		}

		newToken, err := utils.GenerateJWT(email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		newRefresh, err := utils.GenerateRefreshToken(email, newToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate refresh token"})
			return
		}

		err = storage.RotateSessionTokens(db, oldSessionID, newToken,
			time.Now().Add(24*time.Hour), newRefresh, time.Now().Add(15*24*time.Hour))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session no longer active"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  newToken,
			"refresh_token": newRefresh,
		})
	}
}

// LogoutHandler terminates the current session
// @Summary Logout user
// @Description Delete the session behind the presented token
// @Tags Authentication
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {object} models.MessageResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/logout [post]
func LogoutHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing session token"})
			return
		}

		user, err := storage.GetUserBySessionID(db, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			return
		}

		if err := storage.DeleteSessionByID(db, token, user.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete session", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// GetSessionsHandler lists the caller's active sessions
// @Summary List active sessions
// @Description List all active sessions (devices) for the current user
// @Tags Authentication
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {array} models.Session
// @Failure 401 {object} models.ErrorResponse
// @Router /api/sessions [get]
func GetSessionsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		sessions, err := storage.GetUserSessions(db, user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sessions", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sessions)
	}
}

// ValidateSessionHandler returns the user behind a session token
// @Summary Validate session
// @Description Resolve the current session token to its user
// @Tags Authentication
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /api/validate_session [get]
func ValidateSessionHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing session token"})
			return
		}
		user, err := storage.GetUserBySessionID(db, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		user.Password = ""
		c.JSON(http.StatusOK, user)
	}
}

func bearerToken(c *gin.Context) string {
	token := c.GetHeader("Authorization")
	token = strings.TrimPrefix(token, "Bearer ")
	return strings.TrimSpace(token)
}
