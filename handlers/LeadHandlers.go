package handlers

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"strconv"

	"backend/models"
	"backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var leadStatuses = map[string]bool{
	"new": true, "contacted": true, "measured": true, "quoted": true,
	"contracted": true, "in_progress": true, "completed": true, "lost": true,
}

// GetLeadsHandler lists leads
// @Summary List leads
// @Description List leads with optional status and assignee filters
// @Tags Leads
// @Produce json
// @Param Authorization header string true "Session token"
// @Param status query string false "Filter by status"
// @Param assigned_to query int false "Filter by assignee"
// @Success 200 {array} models.Lead
// @Failure 500 {object} models.ErrorResponse
// @Router /api/leads [get]
func GetLeadsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `
			SELECT l.id, l.customer_name, l.email, l.phone, l.address, l.city, l.state,
				   l.zip_code, l.status, l.source, COALESCE(l.assigned_to, 0),
				   COALESCE(u.first_name || ' ' || u.last_name, ''),
				   l.notes, l.created_by, l.created_at, l.updated_at
			FROM leads l
			LEFT JOIN users u ON u.id = l.assigned_to
			WHERE 1=1`
		args := []interface{}{}

		if status := c.Query("status"); status != "" {
			args = append(args, status)
			query += " AND l.status = $" + strconv.Itoa(len(args))
		}
		if assigned := c.Query("assigned_to"); assigned != "" {
			id, err := strconv.Atoi(assigned)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid assigned_to"})
				return
			}
			args = append(args, id)
			query += " AND l.assigned_to = $" + strconv.Itoa(len(args))
		}
		query += " ORDER BY l.created_at DESC"

		rows, err := db.Query(query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch leads", "details": err.Error()})
			return
		}
		defer rows.Close()

		leads := []models.Lead{}
		for rows.Next() {
			var l models.Lead
			err := rows.Scan(&l.ID, &l.CustomerName, &l.Email, &l.Phone, &l.Address,
				&l.City, &l.State, &l.ZipCode, &l.Status, &l.Source, &l.AssignedTo,
				&l.AssignedName, &l.Notes, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan lead", "details": err.Error()})
				return
			}
			leads = append(leads, l)
		}

		c.JSON(http.StatusOK, leads)
	}
}

// GetLeadHandler fetches one lead
// @Summary Get lead
// @Description Fetch a single lead by ID
// @Tags Leads
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Lead ID"
// @Success 200 {object} models.Lead
// @Failure 404 {object} models.ErrorResponse
// @Router /api/leads/{id} [get]
func GetLeadHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead ID"})
			return
		}

		lead, err := fetchLead(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Lead not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lead", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, lead)
	}
}

func fetchLead(db *sql.DB, id int) (*models.Lead, error) {
	var l models.Lead
	err := db.QueryRow(`
		SELECT l.id, l.customer_name, l.email, l.phone, l.address, l.city, l.state,
			   l.zip_code, l.status, l.source, COALESCE(l.assigned_to, 0),
			   COALESCE(u.first_name || ' ' || u.last_name, ''),
			   l.notes, l.created_by, l.created_at, l.updated_at
		FROM leads l
		LEFT JOIN users u ON u.id = l.assigned_to
		WHERE l.id = $1`, id).Scan(
		&l.ID, &l.CustomerName, &l.Email, &l.Phone, &l.Address,
		&l.City, &l.State, &l.ZipCode, &l.Status, &l.Source, &l.AssignedTo,
		&l.AssignedName, &l.Notes, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLeadHandler creates a lead
// @Summary Create lead
// @Description Create a lead in status "new"
// @Tags Leads
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 201 {object} models.Lead
// @Failure 400 {object} models.ErrorResponse
// @Router /api/leads [post]
func CreateLeadHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			CustomerName string `json:"customer_name" binding:"required"`
			Email        string `json:"email"`
			Phone        string `json:"phone"`
			Address      string `json:"address" binding:"required"`
			City         string `json:"city"`
			State        string `json:"state"`
			ZipCode      string `json:"zip_code"`
			Source       string `json:"source"`
			Notes        string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		var id int
		err := db.QueryRow(`
			INSERT INTO leads (customer_name, email, phone, address, city, state, zip_code,
							   status, source, notes, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'new', $8, $9, $10, NOW(), NOW())
			RETURNING id`,
			body.CustomerName, body.Email, body.Phone, body.Address, body.City,
			body.State, body.ZipCode, body.Source, body.Notes, actor.ID).Scan(&id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create lead", "details": err.Error()})
			return
		}

		lead, err := fetchLead(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch created lead", "details": err.Error()})
			return
		}

		LogActivity(gdb, actor.ID, "lead", id, "created", nil, lead)
		c.JSON(http.StatusCreated, lead)
	}
}

// UpdateLeadHandler updates a lead
// @Summary Update lead
// @Description Update a lead's contact fields and notes
// @Tags Leads
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Lead ID"
// @Success 200 {object} models.Lead
// @Failure 404 {object} models.ErrorResponse
// @Router /api/leads/{id} [put]
func UpdateLeadHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead ID"})
			return
		}

		var body struct {
			CustomerName string `json:"customer_name" binding:"required"`
			Email        string `json:"email"`
			Phone        string `json:"phone"`
			Address      string `json:"address" binding:"required"`
			City         string `json:"city"`
			State        string `json:"state"`
			ZipCode      string `json:"zip_code"`
			Source       string `json:"source"`
			Notes        string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		before, err := fetchLead(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Lead not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lead", "details": err.Error()})
			return
		}

		_, err = db.Exec(`
			UPDATE leads SET customer_name = $1, email = $2, phone = $3, address = $4,
							 city = $5, state = $6, zip_code = $7, source = $8,
							 notes = $9, updated_at = NOW()
			WHERE id = $10`,
			body.CustomerName, body.Email, body.Phone, body.Address, body.City,
			body.State, body.ZipCode, body.Source, body.Notes, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update lead", "details": err.Error()})
			return
		}

		after, err := fetchLead(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch updated lead", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "lead", id, "updated", before, after)
		c.JSON(http.StatusOK, after)
	}
}

// UpdateLeadStatusHandler moves a lead through its pipeline
// @Summary Update lead status
// @Description Set the lead's pipeline status
// @Tags Leads
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Lead ID"
// @Success 200 {object} models.Lead
// @Failure 400 {object} models.ErrorResponse
// @Router /api/leads/{id}/status [put]
func UpdateLeadStatusHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead ID"})
			return
		}

		var body struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
			return
		}
		if !leadStatuses[body.Status] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown lead status: " + body.Status})
			return
		}

		var oldStatus string
		err = db.QueryRow(`SELECT status FROM leads WHERE id = $1`, id).Scan(&oldStatus)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Lead not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lead", "details": err.Error()})
			return
		}

		if _, err := db.Exec(`UPDATE leads SET status = $1, updated_at = NOW() WHERE id = $2`, body.Status, id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "lead", id, "status_changed",
			gin.H{"status": oldStatus}, gin.H{"status": body.Status})

		lead, err := fetchLead(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lead", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, lead)
	}
}

// AssignLeadHandler assigns a lead to a user
// @Summary Assign lead
// @Description Assign a lead to a user and push a notification to them
// @Tags Leads
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Lead ID"
// @Success 200 {object} models.Lead
// @Failure 400 {object} models.ErrorResponse
// @Router /api/leads/{id}/assign [put]
func AssignLeadHandler(db *sql.DB, gdb *gorm.DB, push *services.PushService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead ID"})
			return
		}

		var body struct {
			AssignedTo int `json:"assigned_to" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
			return
		}

		var exists bool
		if err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND NOT suspended)`, body.AssignedTo).Scan(&exists); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check assignee", "details": err.Error()})
			return
		}
		if !exists {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Assignee not found or suspended"})
			return
		}

		result, err := db.Exec(`UPDATE leads SET assigned_to = $1, updated_at = NOW() WHERE id = $2`, body.AssignedTo, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign lead", "details": err.Error()})
			return
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Lead not found"})
			return
		}

		lead, err := fetchLead(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lead", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "lead", id, "assigned", nil, gin.H{"assigned_to": body.AssignedTo})

		if push != nil && body.AssignedTo != actor.ID {
			if err := push.NotifyLeadAssigned(context.Background(), body.AssignedTo, *lead); err != nil {
				log.Printf("lead assignment push failed: %v", err)
			}
		}

		c.JSON(http.StatusOK, lead)
	}
}

// DeleteLeadHandler deletes a lead
// @Summary Delete lead
// @Description Delete a lead and its dependent records
// @Tags Leads
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Lead ID"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/leads/{id} [delete]
func DeleteLeadHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead ID"})
			return
		}

		var hasDocuments bool
		err = db.QueryRow(`
			SELECT EXISTS(SELECT 1 FROM quote WHERE lead_id = $1)
				OR EXISTS(SELECT 1 FROM invoice WHERE lead_id = $1)`, id).Scan(&hasDocuments)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check documents", "details": err.Error()})
			return
		}
		if hasDocuments {
			c.JSON(http.StatusConflict, gin.H{"error": "Lead has quotes or invoices and cannot be deleted"})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		if _, err := tx.Exec(`DELETE FROM measurement WHERE lead_id = $1`, id); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete measurements", "details": err.Error()})
			return
		}

		result, err := tx.Exec(`DELETE FROM leads WHERE id = $1`, id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete lead", "details": err.Error()})
			return
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			tx.Rollback()
			c.JSON(http.StatusNotFound, gin.H{"error": "Lead not found"})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "lead", id, "deleted", nil, nil)
		c.JSON(http.StatusOK, gin.H{"message": "Lead deleted"})
	}
}
