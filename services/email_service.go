package services

import (
	"database/sql"
	"fmt"
	"net/smtp"
	"os"
	"regexp"
	"strings"

	"backend/models"

	"golang.org/x/net/html"
)

// convertHTMLToText converts HTML content to plain text for email sending
func convertHTMLToText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		// If parsing fails, return the original content
		return htmlContent
	}

	var text strings.Builder
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text.WriteString(n.Data)
		case html.ElementNode:
			// Add line breaks for block elements
			switch n.Data {
			case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6", "table", "tr":
				text.WriteString("\n")
			case "li":
				text.WriteString("- ")
			case "td", "th":
				text.WriteString(" | ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			extractText(child)
		}
	}
	extractText(doc)

	result := text.String()
	result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	return strings.TrimSpace(result)
}

// EmailService handles email operations with template support
type EmailService struct {
	db *sql.DB
}

// NewEmailService creates a new email service instance
func NewEmailService(db *sql.DB) *EmailService {
	return &EmailService{db: db}
}

// SendTemplatedEmail sends an email using a template with variable substitution.
// If customTemplateID is nil the default template for the type is used.
func (es *EmailService) SendTemplatedEmail(templateType string, emailData models.EmailData, customTemplateID *int) error {
	var emailTemplate *models.EmailTemplate
	var err error

	if customTemplateID != nil {
		emailTemplate, err = models.GetTemplateByID(es.db, *customTemplateID)
		if err != nil {
			return fmt.Errorf("failed to get custom template (ID: %d): %v", *customTemplateID, err)
		}
		if emailTemplate.TemplateType != templateType {
			return fmt.Errorf("custom template type mismatch: expected %s, got %s", templateType, emailTemplate.TemplateType)
		}
	} else {
		emailTemplate, err = models.GetDefaultTemplate(es.db, templateType)
		if err != nil {
			return fmt.Errorf("failed to get default template for type '%s': %v", templateType, err)
		}
	}

	subject, err := es.processTemplate(emailTemplate.Subject, emailData)
	if err != nil {
		return fmt.Errorf("failed to process subject template: %v", err)
	}
	body, err := es.processTemplate(emailTemplate.Body, emailData)
	if err != nil {
		return fmt.Errorf("failed to process body template: %v", err)
	}

	plainTextBody := convertHTMLToText(body)

	return es.sendEmail(emailData.Email, subject, plainTextBody, emailTemplate.CC, emailTemplate.BCC)
}

// SendQuoteEmail sends a quote to the lead's customer.
func (es *EmailService) SendQuoteEmail(lead models.Lead, quote models.Quote, customTemplateID *int) error {
	emailData := models.EmailData{
		CustomerName: lead.CustomerName,
		Email:        lead.Email,
		QuoteNumber:  quote.Number,
		TotalAmount:  fmt.Sprintf("%.2f", quote.TotalAmount),
		CompanyName:  os.Getenv("COMPANY_NAME"),
		SupportEmail: os.Getenv("SUPPORT_EMAIL"),
	}
	return es.SendTemplatedEmail("quote_sent", emailData, customTemplateID)
}

// SendInvoiceEmail sends an invoice to the lead's customer.
func (es *EmailService) SendInvoiceEmail(lead models.Lead, invoice models.Invoice, customTemplateID *int) error {
	dueDate := ""
	if invoice.DueDate != nil {
		dueDate = invoice.DueDate.Format("January 2, 2006")
	}
	emailData := models.EmailData{
		CustomerName:  lead.CustomerName,
		Email:         lead.Email,
		InvoiceNumber: invoice.Number,
		TotalAmount:   fmt.Sprintf("%.2f", invoice.TotalAmount),
		DueDate:       dueDate,
		CompanyName:   os.Getenv("COMPANY_NAME"),
		SupportEmail:  os.Getenv("SUPPORT_EMAIL"),
	}
	return es.SendTemplatedEmail("invoice_sent", emailData, customTemplateID)
}

// SendWelcomeEmail sends login credentials to a newly created user. The
// password is the initial plaintext credential, available only at creation
// time; it is never read back from storage.
func (es *EmailService) SendWelcomeEmail(user models.User, password string, customTemplateID *int) error {
	emailData := models.EmailData{
		UserName:     user.FirstName + " " + user.LastName,
		Email:        user.Email,
		Password:     password,
		CompanyName:  os.Getenv("COMPANY_NAME"),
		LoginURL:     os.Getenv("LOGIN_URL"),
		SupportEmail: os.Getenv("SUPPORT_EMAIL"),
	}
	return es.SendTemplatedEmail("welcome_user", emailData, customTemplateID)
}

// PreviewEmailAsText converts an HTML template to plain text for preview
// purposes, with variables substituted.
func (es *EmailService) PreviewEmailAsText(htmlContent string, emailData models.EmailData) (string, error) {
	processedContent, err := es.processTemplate(htmlContent, emailData)
	if err != nil {
		return "", fmt.Errorf("failed to process template: %v", err)
	}
	return convertHTMLToText(processedContent), nil
}

var templateVariables = map[string]func(models.EmailData) string{
	"customer_name":  func(d models.EmailData) string { return d.CustomerName },
	"email":          func(d models.EmailData) string { return d.Email },
	"user_name":      func(d models.EmailData) string { return d.UserName },
	"password":       func(d models.EmailData) string { return d.Password },
	"company_name":   func(d models.EmailData) string { return d.CompanyName },
	"quote_number":   func(d models.EmailData) string { return d.QuoteNumber },
	"invoice_number": func(d models.EmailData) string { return d.InvoiceNumber },
	"total_amount":   func(d models.EmailData) string { return d.TotalAmount },
	"due_date":       func(d models.EmailData) string { return d.DueDate },
	"login_url":      func(d models.EmailData) string { return d.LoginURL },
	"support_email":  func(d models.EmailData) string { return d.SupportEmail },
}

// processTemplate processes a template string with variable substitution
func (es *EmailService) processTemplate(templateStr string, data models.EmailData) (string, error) {
	result := templateStr
	for key, get := range templateVariables {
		placeholder := fmt.Sprintf("{{%s}}", key)
		result = strings.ReplaceAll(result, placeholder, get(data))
	}
	return result, nil
}

// ValidateTemplate validates a template string for syntax errors and
// unknown variables.
func (es *EmailService) ValidateTemplate(templateStr string) error {
	openBraces := strings.Count(templateStr, "{{")
	closeBraces := strings.Count(templateStr, "}}")
	if openBraces != closeBraces {
		return fmt.Errorf("unmatched braces in template")
	}

	re := regexp.MustCompile(`\{\{([^}]+)\}\}`)
	matches := re.FindAllStringSubmatch(templateStr, -1)
	for _, match := range matches {
		if len(match) > 1 {
			variable := strings.TrimSpace(match[1])
			if _, ok := templateVariables[variable]; !ok {
				return fmt.Errorf("invalid variable: %s", variable)
			}
		}
	}
	return nil
}

// GetAvailableVariables returns a list of available template variables
func (es *EmailService) GetAvailableVariables() []models.EmailTemplateVariable {
	return []models.EmailTemplateVariable{
		{Key: "customer_name", Description: "Customer full name"},
		{Key: "email", Description: "Recipient email"},
		{Key: "user_name", Description: "User full name"},
		{Key: "password", Description: "Initial password (welcome email only)"},
		{Key: "company_name", Description: "Company name"},
		{Key: "quote_number", Description: "Quote number"},
		{Key: "invoice_number", Description: "Invoice number"},
		{Key: "total_amount", Description: "Document total"},
		{Key: "due_date", Description: "Invoice due date"},
		{Key: "login_url", Description: "Login URL"},
		{Key: "support_email", Description: "Support email"},
	}
}

// sendEmail sends an email using SMTP with optional CC and BCC
func (es *EmailService) sendEmail(to, subject, body string, cc, bcc []string) error {
	host := os.Getenv("SMTP_HOST")
	port := os.Getenv("SMTP_PORT")
	user := os.Getenv("SMTP_USER")
	password := os.Getenv("SMTP_PASSWORD")
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = user
	}

	auth := smtp.PlainAuth("", user, password, host)

	toList := []string{to}
	if len(cc) > 0 {
		toList = append(toList, cc...)
	}
	if len(bcc) > 0 {
		toList = append(toList, bcc...)
	}

	headers := []string{
		"From: " + from,
		"To: " + to,
	}
	if len(cc) > 0 {
		headers = append(headers, "Cc: "+strings.Join(cc, ", "))
	}
	headers = append(headers,
		"Subject: "+subject,
		"",
		body,
	)
	msg := []byte(strings.Join(headers, "\r\n") + "\r\n")

	return smtp.SendMail(host+":"+port, auth, from, toList, msg)
}
