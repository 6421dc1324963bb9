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

var emailTemplateTypes = map[string]bool{
	"quote_sent":       true,
	"invoice_sent":     true,
	"payment_received": true,
	"welcome_user":     true,
}

// GetEmailTemplatesHandler lists email templates
// @Summary List email templates
// @Tags EmailTemplates
// @Produce json
// @Param Authorization header string true "Session token"
// @Param template_type query string false "Filter by type"
// @Success 200 {array} models.EmailTemplate
// @Failure 500 {object} models.ErrorResponse
// @Router /api/email_templates [get]
func GetEmailTemplatesHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `
			SELECT id, template_type, name, subject, body, cc, bcc, is_default,
				   created_at, updated_at
			FROM email_template WHERE 1=1`
		args := []interface{}{}
		if t := c.Query("template_type"); t != "" {
			args = append(args, t)
			query += " AND template_type = $" + strconv.Itoa(len(args))
		}
		query += " ORDER BY template_type, is_default DESC, name"

		rows, err := db.Query(query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch email templates", "details": err.Error()})
			return
		}
		defer rows.Close()

		templates := []models.EmailTemplate{}
		for rows.Next() {
			var t models.EmailTemplate
			err := rows.Scan(&t.ID, &t.TemplateType, &t.Name, &t.Subject, &t.Body,
				pq.Array(&t.CC), pq.Array(&t.BCC), &t.IsDefault, &t.CreatedAt, &t.UpdatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan email template", "details": err.Error()})
				return
			}
			templates = append(templates, t)
		}

		c.JSON(http.StatusOK, templates)
	}
}

// GetEmailTemplateHandler fetches one template
// @Summary Get email template
// @Tags EmailTemplates
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Template ID"
// @Success 200 {object} models.EmailTemplate
// @Failure 404 {object} models.ErrorResponse
// @Router /api/email_templates/{id} [get]
func GetEmailTemplateHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
			return
		}

		t, err := models.GetTemplateByID(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Email template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch email template", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// CreateEmailTemplateHandler creates a template
// @Summary Create email template
// @Description Create an email template. Placeholders use {{variable}}
// syntax and are validated against the known variable set.
// @Tags EmailTemplates
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 201 {object} models.EmailTemplate
// @Failure 400 {object} models.ErrorResponse
// @Router /api/email_templates [post]
func CreateEmailTemplateHandler(db *sql.DB, gdb *gorm.DB, emailSvc *services.EmailService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			TemplateType string   `json:"template_type" binding:"required"`
			Name         string   `json:"name" binding:"required"`
			Subject      string   `json:"subject" binding:"required"`
			Body         string   `json:"body" binding:"required"`
			CC           []string `json:"cc"`
			BCC          []string `json:"bcc"`
			IsDefault    bool     `json:"is_default"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
		if !emailTemplateTypes[body.TemplateType] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown template type: " + body.TemplateType})
			return
		}
		if err := emailSvc.ValidateTemplate(body.Subject); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subject template", "details": err.Error()})
			return
		}
		if err := emailSvc.ValidateTemplate(body.Body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid body template", "details": err.Error()})
			return
		}
		if body.CC == nil {
			body.CC = []string{}
		}
		if body.BCC == nil {
			body.BCC = []string{}
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		// One default per type.
		if body.IsDefault {
			if _, err := tx.Exec(`UPDATE email_template SET is_default = false WHERE template_type = $1`, body.TemplateType); err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear default flag", "details": err.Error()})
				return
			}
		}

		var id int
		err = tx.QueryRow(`
			INSERT INTO email_template (template_type, name, subject, body, cc, bcc,
										is_default, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
			RETURNING id`,
			body.TemplateType, body.Name, body.Subject, body.Body,
			pq.Array(body.CC), pq.Array(body.BCC), body.IsDefault).Scan(&id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create email template", "details": err.Error()})
			return
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		t, err := models.GetTemplateByID(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch created template", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "email_template", id, "created", nil, t)
		c.JSON(http.StatusCreated, t)
	}
}

// UpdateEmailTemplateHandler updates a template
// @Summary Update email template
// @Tags EmailTemplates
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Template ID"
// @Success 200 {object} models.EmailTemplate
// @Failure 404 {object} models.ErrorResponse
// @Router /api/email_templates/{id} [put]
func UpdateEmailTemplateHandler(db *sql.DB, gdb *gorm.DB, emailSvc *services.EmailService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
			return
		}

		var body struct {
			Name      string   `json:"name" binding:"required"`
			Subject   string   `json:"subject" binding:"required"`
			Body      string   `json:"body" binding:"required"`
			CC        []string `json:"cc"`
			BCC       []string `json:"bcc"`
			IsDefault bool     `json:"is_default"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
		if err := emailSvc.ValidateTemplate(body.Subject); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subject template", "details": err.Error()})
			return
		}
		if err := emailSvc.ValidateTemplate(body.Body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid body template", "details": err.Error()})
			return
		}
		if body.CC == nil {
			body.CC = []string{}
		}
		if body.BCC == nil {
			body.BCC = []string{}
		}

		before, err := models.GetTemplateByID(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Email template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch email template", "details": err.Error()})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}
		if body.IsDefault && !before.IsDefault {
			if _, err := tx.Exec(`UPDATE email_template SET is_default = false WHERE template_type = $1`, before.TemplateType); err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear default flag", "details": err.Error()})
				return
			}
		}
		_, err = tx.Exec(`
			UPDATE email_template SET name = $1, subject = $2, body = $3, cc = $4,
									  bcc = $5, is_default = $6, updated_at = NOW()
			WHERE id = $7`,
			body.Name, body.Subject, body.Body, pq.Array(body.CC), pq.Array(body.BCC),
			body.IsDefault, id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update email template", "details": err.Error()})
			return
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		after, err := models.GetTemplateByID(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch template", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "email_template", id, "updated", before, after)
		c.JSON(http.StatusOK, after)
	}
}

// DeleteEmailTemplateHandler removes a non-default template
// @Summary Delete email template
// @Tags EmailTemplates
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Template ID"
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/email_templates/{id} [delete]
func DeleteEmailTemplateHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
			return
		}

		t, err := models.GetTemplateByID(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Email template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch email template", "details": err.Error()})
			return
		}
		if t.IsDefault {
			c.JSON(http.StatusConflict, gin.H{"error": "Default templates cannot be deleted; promote another template first"})
			return
		}

		if _, err := db.Exec(`DELETE FROM email_template WHERE id = $1`, id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete email template", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "email_template", id, "deleted", t, nil)
		c.JSON(http.StatusOK, gin.H{"message": "Email template deleted"})
	}
}

// PreviewEmailTemplateHandler renders a template with sample data
// @Summary Preview email template
// @Description Substitute sample values into the template and return both
// the rendered HTML and its plain-text form
// @Tags EmailTemplates
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/email_templates/preview [post]
func PreviewEmailTemplateHandler(emailSvc *services.EmailService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Subject string            `json:"subject" binding:"required"`
			Body    string            `json:"body" binding:"required"`
			Data    *models.EmailData `json:"data"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		data := models.EmailData{
			CustomerName:  "Jane Smith",
			Email:         "jane@example.com",
			UserName:      "John Doe",
			CompanyName:   "Roofline Contracting",
			QuoteNumber:   "QT-000042",
			InvoiceNumber: "INV-000017",
			TotalAmount:   "2,744.28",
			DueDate:       "2024-02-15",
			LoginURL:      "https://app.roofline.example.com",
			SupportEmail:  "support@roofline.example.com",
		}
		if body.Data != nil {
			data = *body.Data
		}

		if err := emailSvc.ValidateTemplate(body.Subject); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subject template", "details": err.Error()})
			return
		}
		if err := emailSvc.ValidateTemplate(body.Body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid body template", "details": err.Error()})
			return
		}

		subject, err := emailSvc.PreviewEmailAsText(body.Subject, data)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render subject", "details": err.Error()})
			return
		}
		text, err := emailSvc.PreviewEmailAsText(body.Body, data)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render body", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"subject": subject, "body_text": text})
	}
}

// GetEmailTemplateVariablesHandler lists placeholder variables
// @Summary List template variables
// @Tags EmailTemplates
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {array} models.EmailTemplateVariable
// @Router /api/email_templates/variables [get]
func GetEmailTemplateVariablesHandler(emailSvc *services.EmailService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, emailSvc.GetAvailableVariables())
	}
}
