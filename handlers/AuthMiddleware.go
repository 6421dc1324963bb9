package handlers

import (
	"database/sql"
	"net/http"

	"backend/models"
	"backend/services"
	"backend/storage"

	"github.com/gin-gonic/gin"
)

const contextUserKey = "current_user"

// SessionAuth resolves the Authorization header to a user and aborts with
// 401 when the session is missing, expired or suspended. The resolved user
// is stored on the request context for downstream handlers.
func SessionAuth(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing session token"})
			return
		}

		user, err := storage.GetUserBySessionID(db, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(contextUserKey, user)
		c.Next()
	}
}

// RequirePermission aborts with 403 unless the current user holds the given
// permission key. Admins hold every permission implicitly.
func RequirePermission(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		if user.IsAdmin {
			c.Next()
			return
		}
		set := services.NewPermissionSet(user.Permissions...)
		if !set.Has(key) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Permission denied", "required": key})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user set by SessionAuth, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, ok := v.(*models.User)
	if !ok {
		return nil
	}
	return user
}
