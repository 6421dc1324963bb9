package models

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// EmailTemplate represents the email_template table. Templates use
// {{variable}} placeholders substituted at send time.
type EmailTemplate struct {
	ID           int       `json:"id" example:"1"`
	TemplateType string    `json:"template_type" example:"quote_sent"` // quote_sent, invoice_sent, payment_received, welcome_user
	Name         string    `json:"name" example:"Default quote email"`
	Subject      string    `json:"subject" example:"Your roofing estimate {{quote_number}}"`
	Body         string    `json:"body" example:""`
	CC           []string  `json:"cc,omitempty"`
	BCC          []string  `json:"bcc,omitempty"`
	IsDefault    bool      `json:"is_default" example:"true"`
	CreatedAt    time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt    time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

// EmailData carries the values substituted into a template's placeholders.
type EmailData struct {
	CustomerName  string `json:"customer_name"`
	Email         string `json:"email"`
	UserName      string `json:"user_name"`
	Password      string `json:"password"`
	CompanyName   string `json:"company_name"`
	QuoteNumber   string `json:"quote_number"`
	InvoiceNumber string `json:"invoice_number"`
	TotalAmount   string `json:"total_amount"`
	DueDate       string `json:"due_date"`
	LoginURL      string `json:"login_url"`
	SupportEmail  string `json:"support_email"`
}

// EmailTemplateVariable describes one placeholder available to template authors.
type EmailTemplateVariable struct {
	Key         string `json:"key" example:"quote_number"`
	Description string `json:"description" example:"Quote number"`
}

// GetTemplateByID fetches a single email template.
func GetTemplateByID(db *sql.DB, id int) (*EmailTemplate, error) {
	var t EmailTemplate
	err := db.QueryRow(`
		SELECT id, template_type, name, subject, body, cc, bcc, is_default, created_at, updated_at
		FROM email_template WHERE id = $1`, id).Scan(
		&t.ID, &t.TemplateType, &t.Name, &t.Subject, &t.Body,
		pq.Array(&t.CC), pq.Array(&t.BCC), &t.IsDefault, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("email template %d not found", id)
		}
		return nil, err
	}
	return &t, nil
}

// GetDefaultTemplate fetches the default template for a given type.
func GetDefaultTemplate(db *sql.DB, templateType string) (*EmailTemplate, error) {
	var t EmailTemplate
	err := db.QueryRow(`
		SELECT id, template_type, name, subject, body, cc, bcc, is_default, created_at, updated_at
		FROM email_template WHERE template_type = $1 AND is_default = TRUE
		ORDER BY updated_at DESC LIMIT 1`, templateType).Scan(
		&t.ID, &t.TemplateType, &t.Name, &t.Subject, &t.Body,
		pq.Array(&t.CC), pq.Array(&t.BCC), &t.IsDefault, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no default email template for type %q", templateType)
		}
		return nil, err
	}
	return &t, nil
}
