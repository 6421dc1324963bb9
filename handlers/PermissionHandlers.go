package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"backend/models"
	"backend/services"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// GetPermissionCatalogHandler lists every permission key
// @Summary Permission catalog
// @Description List all known permission keys grouped by feature area
// @Tags Permissions
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {object} map[string][]string
// @Router /api/permissions/catalog [get]
func GetPermissionCatalogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"permissions": services.AllPermissionKeys})
	}
}

// GetUserPermissionsHandler fetches one user's permission keys
// @Summary Get user permissions
// @Description Fetch the permission keys held by a user
// @Tags Permissions
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "User ID"
// @Success 200 {object} map[string][]string
// @Failure 404 {object} models.ErrorResponse
// @Router /api/users/{id}/permissions [get]
func GetUserPermissionsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}

		var perms []string
		err = db.QueryRow(`SELECT permissions FROM users WHERE id = $1`, id).Scan(pq.Array(&perms))
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch permissions", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"permissions": services.NewPermissionSet(perms...).Keys()})
	}
}

// UpdateUserPermissionsHandler replaces or extends a user's permissions
// @Summary Update user permissions
// @Description Apply a permission list to a user. Mode "replace" swaps the whole set, "union" only adds.
// @Tags Permissions
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "User ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Router /api/users/{id}/permissions [put]
func UpdateUserPermissionsHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}

		var body struct {
			Permissions []string `json:"permissions" binding:"required"`
			Mode        string   `json:"mode"` // replace (default) or union
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
		if body.Mode == "" {
			body.Mode = "replace"
		}
		if body.Mode != "replace" && body.Mode != "union" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Mode must be 'replace' or 'union'"})
			return
		}

		incoming := services.NewPermissionSet(body.Permissions...)
		if len(incoming.Normalize()) != len(incoming) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Payload contains unknown permission keys"})
			return
		}

		var currentKeys []string
		err = db.QueryRow(`SELECT permissions FROM users WHERE id = $1`, id).Scan(pq.Array(&currentKeys))
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch permissions", "details": err.Error()})
			return
		}
		current := services.NewPermissionSet(currentKeys...)

		var next services.PermissionSet
		if body.Mode == "union" {
			next = current.Union(incoming)
		} else {
			next = current.Replace(incoming)
		}

		added, removed := current.Diff(next)
		if len(added) == 0 && len(removed) == 0 {
			c.JSON(http.StatusOK, gin.H{"permissions": next.Keys(), "added": added, "removed": removed})
			return
		}

		if _, err := db.Exec(`UPDATE users SET permissions = $1, updated_at = NOW() WHERE id = $2`,
			pq.Array(next.Keys()), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update permissions", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "user", id, "permissions_changed",
			gin.H{"removed": removed}, gin.H{"added": added, "mode": body.Mode})

		c.JSON(http.StatusOK, gin.H{"permissions": next.Keys(), "added": added, "removed": removed})
	}
}

// GetPermissionTemplatesHandler lists permission templates
// @Summary List permission templates
// @Description List the named permission bundles
// @Tags Permissions
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {array} models.PermissionTemplate
// @Router /api/permission_templates [get]
func GetPermissionTemplatesHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := db.Query(`
			SELECT id, name, description, permissions, created_at, updated_at
			FROM permission_template ORDER BY name`)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch templates", "details": err.Error()})
			return
		}
		defer rows.Close()

		templates := []models.PermissionTemplate{}
		for rows.Next() {
			var t models.PermissionTemplate
			err := rows.Scan(&t.ID, &t.Name, &t.Description, pq.Array(&t.Permissions), &t.CreatedAt, &t.UpdatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan template", "details": err.Error()})
				return
			}
			templates = append(templates, t)
		}

		c.JSON(http.StatusOK, templates)
	}
}

// CreatePermissionTemplateHandler creates a permission template
// @Summary Create permission template
// @Description Create a named bundle of permission keys
// @Tags Permissions
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 201 {object} models.PermissionTemplate
// @Failure 400 {object} models.ErrorResponse
// @Router /api/permission_templates [post]
func CreatePermissionTemplateHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Name        string   `json:"name" binding:"required"`
			Description string   `json:"description"`
			Permissions []string `json:"permissions" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		set := services.NewPermissionSet(body.Permissions...)
		if len(set.Normalize()) != len(set) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Payload contains unknown permission keys"})
			return
		}

		var t models.PermissionTemplate
		err := db.QueryRow(`
			INSERT INTO permission_template (name, description, permissions, created_at, updated_at)
			VALUES ($1, $2, $3, NOW(), NOW())
			RETURNING id, name, description, permissions, created_at, updated_at`,
			body.Name, body.Description, pq.Array(set.Keys())).Scan(
			&t.ID, &t.Name, &t.Description, pq.Array(&t.Permissions), &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create template", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "permission_template", t.ID, "created", nil, t)

		c.JSON(http.StatusCreated, t)
	}
}

// UpdatePermissionTemplateHandler updates a permission template
// @Summary Update permission template
// @Description Update a bundle's name, description or keys
// @Tags Permissions
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Template ID"
// @Success 200 {object} models.PermissionTemplate
// @Failure 404 {object} models.ErrorResponse
// @Router /api/permission_templates/{id} [put]
func UpdatePermissionTemplateHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
			return
		}

		var body struct {
			Name        string   `json:"name" binding:"required"`
			Description string   `json:"description"`
			Permissions []string `json:"permissions" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		set := services.NewPermissionSet(body.Permissions...)
		if len(set.Normalize()) != len(set) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Payload contains unknown permission keys"})
			return
		}

		var t models.PermissionTemplate
		err = db.QueryRow(`
			UPDATE permission_template
			SET name = $1, description = $2, permissions = $3, updated_at = NOW()
			WHERE id = $4
			RETURNING id, name, description, permissions, created_at, updated_at`,
			body.Name, body.Description, pq.Array(set.Keys()), id).Scan(
			&t.ID, &t.Name, &t.Description, pq.Array(&t.Permissions), &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update template", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "permission_template", t.ID, "updated", nil, t)

		c.JSON(http.StatusOK, t)
	}
}

// DeletePermissionTemplateHandler deletes a permission template
// @Summary Delete permission template
// @Description Delete a bundle. Users keep whatever permissions it granted.
// @Tags Permissions
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Template ID"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/permission_templates/{id} [delete]
func DeletePermissionTemplateHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
			return
		}

		result, err := db.Exec(`DELETE FROM permission_template WHERE id = $1`, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete template", "details": err.Error()})
			return
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "permission_template", id, "deleted", nil, nil)

		c.JSON(http.StatusOK, gin.H{"message": "Template deleted"})
	}
}

// ApplyPermissionTemplateHandler applies a template to a user
// @Summary Apply permission template
// @Description Apply a bundle to a user, replacing or extending their set
// @Tags Permissions
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Template ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.ErrorResponse
// @Router /api/permission_templates/{id}/apply [post]
func ApplyPermissionTemplateHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
			return
		}

		var body struct {
			UserID int    `json:"user_id" binding:"required"`
			Mode   string `json:"mode"` // replace (default) or union
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
		if body.Mode == "" {
			body.Mode = "replace"
		}

		var templateKeys []string
		err = db.QueryRow(`SELECT permissions FROM permission_template WHERE id = $1`, id).Scan(pq.Array(&templateKeys))
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch template", "details": err.Error()})
			return
		}

		var currentKeys []string
		err = db.QueryRow(`SELECT permissions FROM users WHERE id = $1`, body.UserID).Scan(pq.Array(&currentKeys))
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user", "details": err.Error()})
			return
		}

		current := services.NewPermissionSet(currentKeys...)
		tmpl := services.NewPermissionSet(templateKeys...)

		var next services.PermissionSet
		if body.Mode == "union" {
			next = current.Union(tmpl)
		} else {
			next = current.Replace(tmpl)
		}

		added, removed := current.Diff(next)
		if _, err := db.Exec(`UPDATE users SET permissions = $1, updated_at = NOW() WHERE id = $2`,
			pq.Array(next.Keys()), body.UserID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply template", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "user", body.UserID, "permissions_changed",
			gin.H{"removed": removed}, gin.H{"added": added, "template_id": id, "mode": body.Mode})

		c.JSON(http.StatusOK, gin.H{"permissions": next.Keys(), "added": added, "removed": removed})
	}
}
