package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"backend/models"
	"backend/repository"
	"backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type templateItemPayload struct {
	MaterialID      int     `json:"material_id"`
	Category        string  `json:"category" binding:"required"`
	Description     string  `json:"description" binding:"required"`
	MeasurementType string  `json:"measurement_type" binding:"required"`
	PerUnitQuantity float64 `json:"per_unit_quantity"`
	Unit            string  `json:"unit"`
	DefaultUnitCost float64 `json:"default_unit_cost"`
}

func validateTemplateItems(items []templateItemPayload) string {
	for i, it := range items {
		if !materialCategories[it.Category] {
			return "Item " + strconv.Itoa(i+1) + ": unknown category " + it.Category
		}
		if !services.ValidMeasurementType(services.MeasurementType(it.MeasurementType)) {
			return "Item " + strconv.Itoa(i+1) + ": unknown measurement type " + it.MeasurementType
		}
		if it.PerUnitQuantity < 0 || it.DefaultUnitCost < 0 {
			return "Item " + strconv.Itoa(i+1) + ": negative quantity or cost"
		}
	}
	return ""
}

func insertTemplateItems(tx *sql.Tx, templateID int, items []templateItemPayload) error {
	for i, it := range items {
		var materialID interface{}
		if it.MaterialID > 0 {
			materialID = it.MaterialID
		}
		_, err := tx.Exec(`
			INSERT INTO template_item (template_id, material_id, category, description,
									   measurement_type, per_unit_quantity, unit,
									   default_unit_cost, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			templateID, materialID, it.Category, it.Description, it.MeasurementType,
			it.PerUnitQuantity, it.Unit, it.DefaultUnitCost, i+1)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetTemplatesHandler lists templates
// @Summary List templates
// @Description List estimate templates, active revisions first
// @Tags Templates
// @Produce json
// @Param Authorization header string true "Session token"
// @Param include_inactive query bool false "Include superseded revisions"
// @Success 200 {array} models.Template
// @Failure 500 {object} models.ErrorResponse
// @Router /api/templates [get]
func GetTemplatesHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `
			SELECT id, name, description, revision, active, created_by, created_at, updated_at
			FROM template`
		if c.Query("include_inactive") != "true" {
			query += " WHERE active = true"
		}
		query += " ORDER BY name, revision DESC"

		rows, err := db.Query(query)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch templates", "details": err.Error()})
			return
		}
		defer rows.Close()

		templates := []models.Template{}
		for rows.Next() {
			var t models.Template
			err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Revision, &t.Active,
				&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan template", "details": err.Error()})
				return
			}
			templates = append(templates, t)
		}

		c.JSON(http.StatusOK, templates)
	}
}

// GetTemplateHandler fetches a template with its items
// @Summary Get template
// @Description Fetch a template and its ordered items
// @Tags Templates
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Template ID"
// @Success 200 {object} models.Template
// @Failure 404 {object} models.ErrorResponse
// @Router /api/templates/{id} [get]
func GetTemplateHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
			return
		}

		var t models.Template
		err = db.QueryRow(`
			SELECT id, name, description, revision, active, created_by, created_at, updated_at
			FROM template WHERE id = $1`, id).Scan(
			&t.ID, &t.Name, &t.Description, &t.Revision, &t.Active,
			&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch template", "details": err.Error()})
			return
		}

		items, err := repository.FetchTemplateItems(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch template items", "details": err.Error()})
			return
		}
		t.Items = items

		c.JSON(http.StatusOK, t)
	}
}

// CreateTemplateHandler creates a template
// @Summary Create template
// @Description Create a template with its items at revision RV-01
// @Tags Templates
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 201 {object} models.Template
// @Failure 400 {object} models.ErrorResponse
// @Router /api/templates [post]
func CreateTemplateHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Name        string                `json:"name" binding:"required"`
			Description string                `json:"description"`
			Items       []templateItemPayload `json:"items" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
		if msg := validateTemplateItems(body.Items); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		var id int
		err = tx.QueryRow(`
			INSERT INTO template (name, description, revision, active, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, true, $4, NOW(), NOW())
			RETURNING id`,
			body.Name, body.Description, repository.GenerateVersionCode(""), actor.ID).Scan(&id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create template", "details": err.Error()})
			return
		}

		if err := insertTemplateItems(tx, id, body.Items); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to insert template items", "details": err.Error()})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		LogActivity(gdb, actor.ID, "template", id, "created", nil, body)
		c.JSON(http.StatusCreated, gin.H{"id": id, "revision": repository.GenerateVersionCode(""), "message": "Template created"})
	}
}

// UpdateTemplateHandler edits a template via revision copy
// @Summary Update template
// @Description Editing a referenced template creates a new revision and
// deactivates the old one, so documents built from the old revision keep
// their pricing. Unreferenced templates are edited in place.
// @Tags Templates
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Template ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.ErrorResponse
// @Router /api/templates/{id} [put]
func UpdateTemplateHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
			return
		}

		var body struct {
			Name        string                `json:"name" binding:"required"`
			Description string                `json:"description"`
			Items       []templateItemPayload `json:"items" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
		if msg := validateTemplateItems(body.Items); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		var revision string
		var active bool
		err = db.QueryRow(`SELECT revision, active FROM template WHERE id = $1`, id).Scan(&revision, &active)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch template", "details": err.Error()})
			return
		}
		if !active {
			c.JSON(http.StatusConflict, gin.H{"error": "Superseded revisions cannot be edited"})
			return
		}

		var referenced bool
		err = db.QueryRow(`
			SELECT EXISTS(
				SELECT 1 FROM quote_item qi
				JOIN template_item ti ON ti.id = qi.template_item_id
				WHERE ti.template_id = $1
			) OR EXISTS(
				SELECT 1 FROM material_order_item moi
				JOIN template_item ti ON ti.id = moi.template_item_id
				WHERE ti.template_id = $1
			) OR EXISTS(
				SELECT 1 FROM work_order_item woi
				JOIN template_item ti ON ti.id = woi.template_item_id
				WHERE ti.template_id = $1
			)`, id).Scan(&referenced)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check references", "details": err.Error()})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		targetID := id
		newRevision := revision

		if referenced {
			newRevision = repository.GenerateVersionCode(revision)
			err = tx.QueryRow(`
				INSERT INTO template (name, description, revision, active, created_by, created_at, updated_at)
				VALUES ($1, $2, $3, true, $4, NOW(), NOW())
				RETURNING id`,
				body.Name, body.Description, newRevision, actor.ID).Scan(&targetID)
			if err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create revision", "details": err.Error()})
				return
			}

			if _, err := tx.Exec(`UPDATE template SET active = false, updated_at = NOW() WHERE id = $1`, id); err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate old revision", "details": err.Error()})
				return
			}
		} else {
			_, err = tx.Exec(`
				UPDATE template SET name = $1, description = $2, updated_at = NOW() WHERE id = $3`,
				body.Name, body.Description, id)
			if err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update template", "details": err.Error()})
				return
			}
			if _, err := tx.Exec(`DELETE FROM template_item WHERE template_id = $1`, id); err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear template items", "details": err.Error()})
				return
			}
		}

		if err := insertTemplateItems(tx, targetID, body.Items); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to insert template items", "details": err.Error()})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		LogActivity(gdb, actor.ID, "template", targetID, "updated",
			gin.H{"revised_from": id, "old_revision": revision}, gin.H{"revision": newRevision})

		c.JSON(http.StatusOK, gin.H{
			"id":           targetID,
			"revision":     newRevision,
			"revised":      referenced,
			"revised_from": id,
		})
	}
}

// DeleteTemplateHandler deletes or deactivates a template
// @Summary Delete template
// @Description Referenced templates are deactivated instead of deleted
// @Tags Templates
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Template ID"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/templates/{id} [delete]
func DeleteTemplateHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
			return
		}

		var referenced bool
		err = db.QueryRow(`
			SELECT EXISTS(
				SELECT 1 FROM quote_item qi
				JOIN template_item ti ON ti.id = qi.template_item_id
				WHERE ti.template_id = $1
			)`, id).Scan(&referenced)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check references", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)

		if referenced {
			result, err := db.Exec(`UPDATE template SET active = false, updated_at = NOW() WHERE id = $1`, id)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate template", "details": err.Error()})
				return
			}
			if rows, _ := result.RowsAffected(); rows == 0 {
				c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
				return
			}
			LogActivity(gdb, actor.ID, "template", id, "deactivated", nil, nil)
			c.JSON(http.StatusOK, gin.H{"message": "Template is referenced by documents and was deactivated"})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}
		if _, err := tx.Exec(`DELETE FROM template_item WHERE template_id = $1`, id); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete template items", "details": err.Error()})
			return
		}
		result, err := tx.Exec(`DELETE FROM template WHERE id = $1`, id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete template", "details": err.Error()})
			return
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			tx.Rollback()
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
			return
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		LogActivity(gdb, actor.ID, "template", id, "deleted", nil, nil)
		c.JSON(http.StatusOK, gin.H{"message": "Template deleted"})
	}
}
