package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"backend/models"
	"backend/repository"
	"backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func fetchInvoice(db *sql.DB, id int) (*models.Invoice, error) {
	var inv models.Invoice
	err := db.QueryRow(`
		SELECT i.id, i.lead_id, COALESCE(i.quote_id, 0), i.number, i.source,
			   i.tax_rate, i.discount_amount, i.subtotal, i.tax_amount,
			   i.total_amount, i.total_paid, i.payment_status, i.due_date,
			   i.created_by, COALESCE(u.first_name || ' ' || u.last_name, ''),
			   i.created_at, i.updated_at
		FROM invoice i
		LEFT JOIN users u ON u.id = i.created_by
		WHERE i.id = $1`, id).Scan(
		&inv.ID, &inv.LeadID, &inv.QuoteID, &inv.Number, &inv.Source,
		&inv.TaxRate, &inv.DiscountAmount, &inv.Subtotal, &inv.TaxAmount,
		&inv.TotalAmount, &inv.TotalPaid, &inv.PaymentStatus, &inv.DueDate,
		&inv.CreatedBy, &inv.CreatedByName, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func fetchInvoiceItems(db *sql.DB, invoiceID int) ([]models.LineItem, error) {
	rows, err := db.Query(`
		SELECT id, category, description, quantity, unit, unit_price, line_total,
			   COALESCE(notes, ''), sort_order, COALESCE(template_item_id, 0),
			   COALESCE(material_id, 0)
		FROM invoice_item WHERE invoice_id = $1 ORDER BY sort_order, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.LineItem{}
	for rows.Next() {
		var li models.LineItem
		err := rows.Scan(&li.ID, &li.Category, &li.Description, &li.Quantity, &li.Unit,
			&li.UnitPrice, &li.LineTotal, &li.Notes, &li.SortOrder,
			&li.TemplateItemID, &li.MaterialID)
		if err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

// GetInvoicesHandler lists invoices
// @Summary List invoices
// @Description List invoices with optional lead and payment status filters
// @Tags Invoices
// @Produce json
// @Param Authorization header string true "Session token"
// @Param lead_id query int false "Filter by lead"
// @Param payment_status query string false "Filter by payment status"
// @Success 200 {array} models.Invoice
// @Failure 500 {object} models.ErrorResponse
// @Router /api/invoices [get]
func GetInvoicesHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `
			SELECT i.id, i.lead_id, COALESCE(i.quote_id, 0), i.number, i.source,
				   i.tax_rate, i.discount_amount, i.subtotal, i.tax_amount,
				   i.total_amount, i.total_paid, i.payment_status, i.due_date,
				   i.created_by, COALESCE(u.first_name || ' ' || u.last_name, ''),
				   i.created_at, i.updated_at
			FROM invoice i
			LEFT JOIN users u ON u.id = i.created_by
			WHERE 1=1`
		args := []interface{}{}

		if leadID := c.Query("lead_id"); leadID != "" {
			id, err := strconv.Atoi(leadID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead_id"})
				return
			}
			args = append(args, id)
			query += " AND i.lead_id = $" + strconv.Itoa(len(args))
		}
		if status := c.Query("payment_status"); status != "" {
			args = append(args, status)
			query += " AND i.payment_status = $" + strconv.Itoa(len(args))
		}
		query += " ORDER BY i.created_at DESC"

		rows, err := db.Query(query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invoices", "details": err.Error()})
			return
		}
		defer rows.Close()

		invoices := []models.Invoice{}
		for rows.Next() {
			var inv models.Invoice
			err := rows.Scan(&inv.ID, &inv.LeadID, &inv.QuoteID, &inv.Number, &inv.Source,
				&inv.TaxRate, &inv.DiscountAmount, &inv.Subtotal, &inv.TaxAmount,
				&inv.TotalAmount, &inv.TotalPaid, &inv.PaymentStatus, &inv.DueDate,
				&inv.CreatedBy, &inv.CreatedByName, &inv.CreatedAt, &inv.UpdatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan invoice", "details": err.Error()})
				return
			}
			invoices = append(invoices, inv)
		}

		c.JSON(http.StatusOK, invoices)
	}
}

// GetInvoiceHandler fetches an invoice with items
// @Summary Get invoice
// @Description Fetch an invoice and its line items
// @Tags Invoices
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Invoice ID"
// @Success 200 {object} models.Invoice
// @Failure 404 {object} models.ErrorResponse
// @Router /api/invoices/{id} [get]
func GetInvoiceHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
			return
		}

		inv, err := fetchInvoice(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invoice", "details": err.Error()})
			return
		}

		inv.Items, err = fetchInvoiceItems(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invoice items", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, inv)
	}
}

// CreateInvoiceFromQuoteHandler builds an invoice from an accepted quote
// @Summary Create invoice from quote
// @Description Copy an accepted quote's items and total into an invoice.
// The quote total already includes tax, so the invoice is never re-taxed.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 201 {object} models.Invoice
// @Failure 409 {object} models.ErrorResponse
// @Router /api/invoices/from_quote [post]
func CreateInvoiceFromQuoteHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			QuoteID int        `json:"quote_id" binding:"required"`
			DueDate *time.Time `json:"due_date"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		quote, err := fetchQuote(db, body.QuoteID)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Quote not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote", "details": err.Error()})
			return
		}
		if quote.Status != "accepted" {
			c.JSON(http.StatusConflict, gin.H{"error": "Only accepted quotes can be invoiced"})
			return
		}

		var existing bool
		if err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM invoice WHERE quote_id = $1)`, body.QuoteID).Scan(&existing); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing invoices", "details": err.Error()})
			return
		}
		if existing {
			c.JSON(http.StatusConflict, gin.H{"error": "Quote already has an invoice"})
			return
		}

		items, err := fetchQuoteItems(db, body.QuoteID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote items", "details": err.Error()})
			return
		}

		// The provenance guard pins the mode; a mismatch here is a bug.
		mode := services.TaxModeForSource("quote")
		if err := services.ValidateTaxMode("quote", mode); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Tax mode mismatch", "details": err.Error()})
			return
		}

		// The quote's line totals sum to its pre-tax subtotal; the invoice
		// carries the quote's tax-inclusive grand total as one amount.
		carried := []models.LineItem{{Quantity: 1, UnitPrice: quote.TotalAmount}}
		totals, err := services.ComputeTotals(carried, 0, 0, mode)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute totals", "details": err.Error()})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		number, err := repository.NextDocumentNumber(tx, repository.InvoicePrefix)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reserve invoice number", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		var id int
		err = tx.QueryRow(`
			INSERT INTO invoice (lead_id, quote_id, number, source, tax_rate,
								 discount_amount, subtotal, tax_amount, total_amount,
								 total_paid, payment_status, due_date, created_by,
								 created_at, updated_at)
			VALUES ($1, $2, $3, 'quote', 0, 0, $4, 0, $5, 0, 'unpaid', $6, $7, NOW(), NOW())
			RETURNING id`,
			quote.LeadID, body.QuoteID, number, totals.Subtotal, totals.Total,
			body.DueDate, actor.ID).Scan(&id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invoice", "details": err.Error()})
			return
		}

		for _, li := range items {
			var templateItemID, materialID interface{}
			if li.TemplateItemID > 0 {
				templateItemID = li.TemplateItemID
			}
			if li.MaterialID > 0 {
				materialID = li.MaterialID
			}
			_, err := tx.Exec(`
				INSERT INTO invoice_item (invoice_id, category, description, quantity,
										  unit, unit_price, line_total, notes, sort_order,
										  template_item_id, material_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				id, li.Category, li.Description, li.Quantity, li.Unit,
				li.UnitPrice, li.LineTotal, li.Notes, li.SortOrder, templateItemID, materialID)
			if err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to copy invoice item", "details": err.Error()})
				return
			}
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		inv, err := fetchInvoice(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch created invoice", "details": err.Error()})
			return
		}
		inv.Items, _ = fetchInvoiceItems(db, id)

		LogActivity(gdb, actor.ID, "invoice", id, "created",
			nil, gin.H{"source": "quote", "quote_id": body.QuoteID, "total": inv.TotalAmount})

		c.JSON(http.StatusCreated, inv)
	}
}

// CreateInvoiceHandler creates a standalone invoice
// @Summary Create standalone invoice
// @Description Create an invoice not backed by a quote. Standard tax rules
// apply: tax is computed from the decimal rate after discount.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 201 {object} models.Invoice
// @Failure 400 {object} models.ErrorResponse
// @Router /api/invoices [post]
func CreateInvoiceHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			LeadID         int               `json:"lead_id" binding:"required"`
			TaxRate        float64           `json:"tax_rate"`
			DiscountAmount float64           `json:"discount_amount"`
			DueDate        *time.Time        `json:"due_date"`
			Items          []lineItemPayload `json:"items" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
		if body.TaxRate < 0 || body.TaxRate > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Tax rate must be a decimal between 0 and 1 (0.08 for 8%)"})
			return
		}

		items, msg := buildLineItems(body.Items, 1)
		if msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		totals, err := services.ComputeTotals(items, body.TaxRate, body.DiscountAmount, services.TaxStandard)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to compute totals", "details": err.Error()})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		number, err := repository.NextDocumentNumber(tx, repository.InvoicePrefix)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reserve invoice number", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		var id int
		err = tx.QueryRow(`
			INSERT INTO invoice (lead_id, quote_id, number, source, tax_rate,
								 discount_amount, subtotal, tax_amount, total_amount,
								 total_paid, payment_status, due_date, created_by,
								 created_at, updated_at)
			VALUES ($1, NULL, $2, 'standalone', $3, $4, $5, $6, $7, 0, 'unpaid', $8, $9, NOW(), NOW())
			RETURNING id`,
			body.LeadID, number, totals.TaxRate, totals.DiscountAmount,
			totals.Subtotal, totals.TaxAmount, totals.Total, body.DueDate, actor.ID).Scan(&id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invoice", "details": err.Error()})
			return
		}

		for _, li := range items {
			var templateItemID, materialID interface{}
			if li.TemplateItemID > 0 {
				templateItemID = li.TemplateItemID
			}
			if li.MaterialID > 0 {
				materialID = li.MaterialID
			}
			_, err := tx.Exec(`
				INSERT INTO invoice_item (invoice_id, category, description, quantity,
										  unit, unit_price, line_total, notes, sort_order,
										  template_item_id, material_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				id, li.Category, li.Description, li.Quantity, li.Unit,
				li.UnitPrice, li.LineTotal, li.Notes, li.SortOrder, templateItemID, materialID)
			if err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to insert invoice item", "details": err.Error()})
				return
			}
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		inv, err := fetchInvoice(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch created invoice", "details": err.Error()})
			return
		}
		inv.Items, _ = fetchInvoiceItems(db, id)

		LogActivity(gdb, actor.ID, "invoice", id, "created",
			nil, gin.H{"source": "standalone", "total": inv.TotalAmount})

		response := gin.H{"invoice": inv}
		if totals.DiscountClamped {
			response["warning"] = "Discount exceeded the subtotal and was clamped"
		}
		c.JSON(http.StatusCreated, response)
	}
}

// SendInvoiceHandler emails an invoice to the customer
// @Summary Send invoice
// @Description Email the invoice to the lead's customer
// @Tags Invoices
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Invoice ID"
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/invoices/{id}/send [post]
func SendInvoiceHandler(db *sql.DB, gdb *gorm.DB, emailSvc *services.EmailService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
			return
		}

		var body struct {
			TemplateID *int `json:"template_id"`
		}
		_ = c.ShouldBindJSON(&body)

		inv, err := fetchInvoice(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invoice", "details": err.Error()})
			return
		}

		lead, err := fetchLead(db, inv.LeadID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lead", "details": err.Error()})
			return
		}
		if lead.Email == "" {
			c.JSON(http.StatusConflict, gin.H{"error": "Lead has no email address"})
			return
		}

		if err := emailSvc.SendInvoiceEmail(*lead, *inv, body.TemplateID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send email", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "invoice", id, "sent", nil, gin.H{"to": lead.Email})

		c.JSON(http.StatusOK, gin.H{"message": "Invoice sent to " + lead.Email})
	}
}

// DeleteInvoiceHandler deletes an unpaid invoice
// @Summary Delete invoice
// @Description Delete an invoice with no recorded payments
// @Tags Invoices
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Invoice ID"
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/invoices/{id} [delete]
func DeleteInvoiceHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
			return
		}

		var hasPayments bool
		if err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM payment WHERE invoice_id = $1)`, id).Scan(&hasPayments); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check payments", "details": err.Error()})
			return
		}
		if hasPayments {
			c.JSON(http.StatusConflict, gin.H{"error": "Invoices with recorded payments cannot be deleted"})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}
		if _, err := tx.Exec(`DELETE FROM invoice_item WHERE invoice_id = $1`, id); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete invoice items", "details": err.Error()})
			return
		}
		result, err := tx.Exec(`DELETE FROM invoice WHERE id = $1`, id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete invoice", "details": err.Error()})
			return
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			tx.Rollback()
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "invoice", id, "deleted", nil, nil)
		c.JSON(http.StatusOK, gin.H{"message": "Invoice deleted"})
	}
}
