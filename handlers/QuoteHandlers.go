package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"backend/models"
	"backend/repository"
	"backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func fetchQuote(db *sql.DB, id int) (*models.Quote, error) {
	var q models.Quote
	err := db.QueryRow(`
		SELECT q.id, q.lead_id, q.number, q.status, q.tax_rate, q.discount_amount,
			   q.subtotal, q.tax_amount, q.total_amount, q.notes, q.valid_until,
			   q.accepted_at, q.created_by,
			   COALESCE(u.first_name || ' ' || u.last_name, ''),
			   q.created_at, q.updated_at
		FROM quote q
		LEFT JOIN users u ON u.id = q.created_by
		WHERE q.id = $1`, id).Scan(
		&q.ID, &q.LeadID, &q.Number, &q.Status, &q.TaxRate, &q.DiscountAmount,
		&q.Subtotal, &q.TaxAmount, &q.TotalAmount, &q.Notes, &q.ValidUntil,
		&q.AcceptedAt, &q.CreatedBy, &q.CreatedByName, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func fetchQuoteItems(db *sql.DB, quoteID int) ([]models.LineItem, error) {
	rows, err := db.Query(`
		SELECT id, category, description, quantity, unit, unit_price, line_total,
			   COALESCE(notes, ''), sort_order, COALESCE(template_item_id, 0),
			   COALESCE(material_id, 0)
		FROM quote_item WHERE quote_id = $1 ORDER BY sort_order, id`, quoteID)
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

// recomputeQuoteTotals reloads a quote's items and rewrites its stored
// totals from the aggregation rules. Runs after every item mutation.
func recomputeQuoteTotals(tx *sql.Tx, quoteID int, taxRate, discount float64) (services.Totals, error) {
	rows, err := tx.Query(`
		SELECT quantity, unit_price FROM quote_item WHERE quote_id = $1`, quoteID)
	if err != nil {
		return services.Totals{}, err
	}
	defer rows.Close()

	items := []models.LineItem{}
	for rows.Next() {
		var li models.LineItem
		if err := rows.Scan(&li.Quantity, &li.UnitPrice); err != nil {
			return services.Totals{}, err
		}
		items = append(items, li)
	}
	if err := rows.Err(); err != nil {
		return services.Totals{}, err
	}

	totals, err := services.ComputeTotals(items, taxRate, discount, services.TaxStandard)
	if err != nil {
		return services.Totals{}, err
	}

	_, err = tx.Exec(`
		UPDATE quote SET subtotal = $1, tax_rate = $2, tax_amount = $3,
						 discount_amount = $4, total_amount = $5, updated_at = NOW()
		WHERE id = $6`,
		totals.Subtotal, totals.TaxRate, totals.TaxAmount,
		totals.DiscountAmount, totals.Total, quoteID)
	return totals, err
}

func insertQuoteItem(tx *sql.Tx, quoteID int, li models.LineItem) error {
	var templateItemID, materialID interface{}
	if li.TemplateItemID > 0 {
		templateItemID = li.TemplateItemID
	}
	if li.MaterialID > 0 {
		materialID = li.MaterialID
	}
	_, err := tx.Exec(`
		INSERT INTO quote_item (quote_id, category, description, quantity, unit,
								unit_price, line_total, notes, sort_order,
								template_item_id, material_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		quoteID, li.Category, li.Description, li.Quantity, li.Unit,
		li.UnitPrice, li.LineTotal, li.Notes, li.SortOrder, templateItemID, materialID)
	return err
}

// GetQuotesHandler lists quotes
// @Summary List quotes
// @Description List quotes with optional lead and status filters
// @Tags Quotes
// @Produce json
// @Param Authorization header string true "Session token"
// @Param lead_id query int false "Filter by lead"
// @Param status query string false "Filter by status"
// @Success 200 {array} models.Quote
// @Failure 500 {object} models.ErrorResponse
// @Router /api/quotes [get]
func GetQuotesHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `
			SELECT q.id, q.lead_id, q.number, q.status, q.tax_rate, q.discount_amount,
				   q.subtotal, q.tax_amount, q.total_amount, q.notes, q.valid_until,
				   q.accepted_at, q.created_by,
				   COALESCE(u.first_name || ' ' || u.last_name, ''),
				   q.created_at, q.updated_at
			FROM quote q
			LEFT JOIN users u ON u.id = q.created_by
			WHERE 1=1`
		args := []interface{}{}

		if leadID := c.Query("lead_id"); leadID != "" {
			id, err := strconv.Atoi(leadID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead_id"})
				return
			}
			args = append(args, id)
			query += " AND q.lead_id = $" + strconv.Itoa(len(args))
		}
		if status := c.Query("status"); status != "" {
			args = append(args, status)
			query += " AND q.status = $" + strconv.Itoa(len(args))
		}
		query += " ORDER BY q.created_at DESC"

		rows, err := db.Query(query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quotes", "details": err.Error()})
			return
		}
		defer rows.Close()

		quotes := []models.Quote{}
		for rows.Next() {
			var q models.Quote
			err := rows.Scan(&q.ID, &q.LeadID, &q.Number, &q.Status, &q.TaxRate,
				&q.DiscountAmount, &q.Subtotal, &q.TaxAmount, &q.TotalAmount,
				&q.Notes, &q.ValidUntil, &q.AcceptedAt, &q.CreatedBy,
				&q.CreatedByName, &q.CreatedAt, &q.UpdatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan quote", "details": err.Error()})
				return
			}
			quotes = append(quotes, q)
		}

		c.JSON(http.StatusOK, quotes)
	}
}

// GetQuoteHandler fetches a quote with items
// @Summary Get quote
// @Description Fetch a quote and its line items
// @Tags Quotes
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Quote ID"
// @Success 200 {object} models.Quote
// @Failure 404 {object} models.ErrorResponse
// @Router /api/quotes/{id} [get]
func GetQuoteHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quote ID"})
			return
		}

		q, err := fetchQuote(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Quote not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote", "details": err.Error()})
			return
		}

		items, err := fetchQuoteItems(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote items", "details": err.Error()})
			return
		}
		q.Items = items

		c.JSON(http.StatusOK, q)
	}
}

type lineItemPayload struct {
	Category       string  `json:"category" binding:"required"`
	Description    string  `json:"description" binding:"required"`
	Quantity       float64 `json:"quantity"`
	Unit           string  `json:"unit"`
	UnitPrice      float64 `json:"unit_price"`
	Notes          string  `json:"notes"`
	TemplateItemID int     `json:"template_item_id"`
	MaterialID     int     `json:"material_id"`
}

func buildLineItems(payload []lineItemPayload, startSortOrder int) ([]models.LineItem, string) {
	items := make([]models.LineItem, 0, len(payload))
	for i, p := range payload {
		if !materialCategories[p.Category] {
			return nil, "Item " + strconv.Itoa(i+1) + ": unknown category " + p.Category
		}
		if p.Quantity < 0 || p.UnitPrice < 0 {
			return nil, "Item " + strconv.Itoa(i+1) + ": negative quantity or price"
		}
		items = append(items, models.LineItem{
			Category:       p.Category,
			Description:    p.Description,
			Quantity:       p.Quantity,
			Unit:           p.Unit,
			UnitPrice:      p.UnitPrice,
			LineTotal:      services.LineTotal(p.Quantity, p.UnitPrice),
			Notes:          p.Notes,
			SortOrder:      startSortOrder + i,
			TemplateItemID: p.TemplateItemID,
			MaterialID:     p.MaterialID,
		})
	}
	return items, ""
}

// CreateQuoteHandler creates a quote
// @Summary Create quote
// @Description Create a draft quote. Tax rate is a decimal (0.08 for 8%).
// @Tags Quotes
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 201 {object} models.Quote
// @Failure 400 {object} models.ErrorResponse
// @Router /api/quotes [post]
func CreateQuoteHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			LeadID         int               `json:"lead_id" binding:"required"`
			TaxRate        float64           `json:"tax_rate"`
			DiscountAmount float64           `json:"discount_amount"`
			Notes          string            `json:"notes"`
			ValidUntil     *time.Time        `json:"valid_until"`
			Items          []lineItemPayload `json:"items"`
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

		var leadExists bool
		if err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM leads WHERE id = $1)`, body.LeadID).Scan(&leadExists); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check lead", "details": err.Error()})
			return
		}
		if !leadExists {
			c.JSON(http.StatusNotFound, gin.H{"error": "Lead not found"})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		number, err := repository.NextDocumentNumber(tx, repository.QuotePrefix)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reserve quote number", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		var id int
		err = tx.QueryRow(`
			INSERT INTO quote (lead_id, number, status, tax_rate, discount_amount,
							   subtotal, tax_amount, total_amount, notes, valid_until,
							   created_by, created_at, updated_at)
			VALUES ($1, $2, 'draft', $3, $4, 0, 0, 0, $5, $6, $7, NOW(), NOW())
			RETURNING id`,
			body.LeadID, number, body.TaxRate, body.DiscountAmount, body.Notes,
			body.ValidUntil, actor.ID).Scan(&id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create quote", "details": err.Error()})
			return
		}

		for _, li := range items {
			if err := insertQuoteItem(tx, id, li); err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to insert quote item", "details": err.Error()})
				return
			}
		}

		if _, err := recomputeQuoteTotals(tx, id, body.TaxRate, body.DiscountAmount); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute totals", "details": err.Error()})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		q, err := fetchQuote(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch created quote", "details": err.Error()})
			return
		}
		q.Items, _ = fetchQuoteItems(db, id)

		LogActivity(gdb, actor.ID, "quote", id, "created", nil, q)
		c.JSON(http.StatusCreated, q)
	}
}

// UpdateQuoteHandler replaces a quote's items and settings
// @Summary Update quote
// @Description Replace a quote's items and recompute totals. Post-acceptance
// edits feed the variance report; the contract snapshot is untouched.
// @Tags Quotes
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Quote ID"
// @Success 200 {object} models.Quote
// @Failure 409 {object} models.ErrorResponse
// @Router /api/quotes/{id} [put]
func UpdateQuoteHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quote ID"})
			return
		}

		var body struct {
			TaxRate        float64           `json:"tax_rate"`
			DiscountAmount float64           `json:"discount_amount"`
			Notes          string            `json:"notes"`
			ValidUntil     *time.Time        `json:"valid_until"`
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

		before, err := fetchQuote(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Quote not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote", "details": err.Error()})
			return
		}
		// Accepted quotes stay editable: post-contract changes are what the
		// variance report measures against the frozen contract snapshot.
		if before.Status == "declined" {
			c.JSON(http.StatusConflict, gin.H{"error": "Declined quotes cannot be edited"})
			return
		}

		items, msg := buildLineItems(body.Items, 1)
		if msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		_, err = tx.Exec(`
			UPDATE quote SET notes = $1, valid_until = $2, updated_at = NOW() WHERE id = $3`,
			body.Notes, body.ValidUntil, id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update quote", "details": err.Error()})
			return
		}

		// Replace-all: item row IDs are not stable across updates. Anything
		// tracking items over time keys on template_item_id, material_id or
		// description, never on quote_item.id.
		if _, err := tx.Exec(`DELETE FROM quote_item WHERE quote_id = $1`, id); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear quote items", "details": err.Error()})
			return
		}
		for _, li := range items {
			if err := insertQuoteItem(tx, id, li); err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to insert quote item", "details": err.Error()})
				return
			}
		}

		totals, err := recomputeQuoteTotals(tx, id, body.TaxRate, body.DiscountAmount)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute totals", "details": err.Error()})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		after, err := fetchQuote(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch updated quote", "details": err.Error()})
			return
		}
		after.Items, _ = fetchQuoteItems(db, id)

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "quote", id, "updated",
			gin.H{"total": before.TotalAmount}, gin.H{"total": totals.Total, "discount_clamped": totals.DiscountClamped})

		response := gin.H{"quote": after}
		if totals.DiscountClamped {
			response["warning"] = "Discount exceeded the subtotal and was clamped"
		}
		c.JSON(http.StatusOK, response)
	}
}

// ImportTemplateHandler expands a template into a quote
// @Summary Import template into quote
// @Description Expand a template against the lead's latest measurement and
// append the resulting line items to the quote
// @Tags Quotes
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Quote ID"
// @Success 200 {object} models.Quote
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/quotes/{id}/import_template [post]
func ImportTemplateHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quote ID"})
			return
		}

		var body struct {
			TemplateID int `json:"template_id" binding:"required"`
			LocationID int `json:"location_id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		quote, err := fetchQuote(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Quote not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote", "details": err.Error()})
			return
		}
		if quote.Status == "declined" {
			c.JSON(http.StatusConflict, gin.H{"error": "Declined quotes cannot be edited"})
			return
		}

		measurement, err := repository.FetchLatestMeasurement(db, quote.LeadID)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusConflict, gin.H{"error": "Lead has no measurement; record one before importing a template"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch measurement", "details": err.Error()})
			return
		}

		templateItems, err := repository.FetchTemplateItems(db, body.TemplateID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch template items", "details": err.Error()})
			return
		}
		if len(templateItems) == 0 {
			c.JSON(http.StatusOK, gin.H{"message": "Template has no items; quote unchanged"})
			return
		}

		lookup, err := repository.LocationPriceLookup(db, body.LocationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load location prices", "details": err.Error()})
			return
		}

		maxSort, err := repository.MaxSortOrder(db, "quote_item", "quote_id", id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to determine sort order", "details": err.Error()})
			return
		}

		lineItems, err := services.ExpandTemplate(templateItems, *measurement, maxSort+1, lookup)
		if err != nil {
			if errors.Is(err, services.ErrInvalidMeasurementType) {
				c.JSON(http.StatusConflict, gin.H{"error": "Template contains an item with an unknown measurement type", "details": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to expand template", "details": err.Error()})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		for _, li := range lineItems {
			if err := insertQuoteItem(tx, id, li); err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to insert line item", "details": err.Error()})
				return
			}
		}

		if _, err := recomputeQuoteTotals(tx, id, quote.TaxRate, quote.DiscountAmount); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute totals", "details": err.Error()})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "quote", id, "imported_template",
			nil, gin.H{"template_id": body.TemplateID, "items_added": len(lineItems), "measurement_id": measurement.ID})

		after, err := fetchQuote(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote", "details": err.Error()})
			return
		}
		after.Items, _ = fetchQuoteItems(db, id)
		c.JSON(http.StatusOK, after)
	}
}

// AcceptQuoteHandler marks a quote accepted
// @Summary Accept quote
// @Description Mark a quote accepted, snapshot its items as the contract,
// and advance the lead to contracted
// @Tags Quotes
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Quote ID"
// @Success 200 {object} models.Quote
// @Failure 409 {object} models.ErrorResponse
// @Router /api/quotes/{id}/accept [post]
func AcceptQuoteHandler(db *sql.DB, gdb *gorm.DB, push *services.PushService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quote ID"})
			return
		}

		quote, err := fetchQuote(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Quote not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote", "details": err.Error()})
			return
		}
		if quote.Status == "accepted" {
			c.JSON(http.StatusConflict, gin.H{"error": "Quote is already accepted"})
			return
		}
		if quote.Status == "declined" {
			c.JSON(http.StatusConflict, gin.H{"error": "Declined quotes cannot be accepted"})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		_, err = tx.Exec(`
			UPDATE quote SET status = 'accepted', accepted_at = NOW(), updated_at = NOW()
			WHERE id = $1`, id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept quote", "details": err.Error()})
			return
		}

		// The contract snapshot freezes the accepted line items so later
		// estimate edits can be compared against what the customer signed.
		_, err = tx.Exec(`
			INSERT INTO contract_item (quote_id, category, description, quantity, unit,
									   unit_price, line_total, notes, sort_order,
									   template_item_id, material_id)
			SELECT quote_id, category, description, quantity, unit,
				   unit_price, line_total, notes, sort_order,
				   template_item_id, material_id
			FROM quote_item WHERE quote_id = $1`, id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to snapshot contract items", "details": err.Error()})
			return
		}

		_, err = tx.Exec(`
			UPDATE leads SET status = 'contracted', updated_at = NOW()
			WHERE id = $1 AND status NOT IN ('in_progress', 'completed')`, quote.LeadID)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to advance lead", "details": err.Error()})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "quote", id, "status_changed",
			gin.H{"status": quote.Status}, gin.H{"status": "accepted"})

		if push != nil && quote.CreatedBy != actor.ID {
			if err := push.NotifyQuoteAccepted(context.Background(), quote.CreatedBy, *quote); err != nil {
				log.Printf("quote acceptance push failed: %v", err)
			}
		}

		after, err := fetchQuote(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, after)
	}
}

// SendQuoteHandler emails a quote to the customer
// @Summary Send quote
// @Description Email the quote to the lead's customer and mark it sent
// @Tags Quotes
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Quote ID"
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/quotes/{id}/send [post]
func SendQuoteHandler(db *sql.DB, gdb *gorm.DB, emailSvc *services.EmailService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quote ID"})
			return
		}

		var body struct {
			TemplateID *int `json:"template_id"`
		}
		// Body is optional; missing means default template.
		_ = c.ShouldBindJSON(&body)

		quote, err := fetchQuote(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Quote not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote", "details": err.Error()})
			return
		}

		lead, err := fetchLead(db, quote.LeadID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lead", "details": err.Error()})
			return
		}
		if lead.Email == "" {
			c.JSON(http.StatusConflict, gin.H{"error": "Lead has no email address"})
			return
		}

		if err := emailSvc.SendQuoteEmail(*lead, *quote, body.TemplateID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send email", "details": err.Error()})
			return
		}

		if quote.Status == "draft" {
			if _, err := db.Exec(`UPDATE quote SET status = 'sent', updated_at = NOW() WHERE id = $1`, id); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status", "details": err.Error()})
				return
			}
		}

		_, err = db.Exec(`
			UPDATE leads SET status = 'quoted', updated_at = NOW()
			WHERE id = $1 AND status IN ('new', 'contacted', 'measured')`, quote.LeadID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to advance lead", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "quote", id, "sent", nil, gin.H{"to": lead.Email})

		c.JSON(http.StatusOK, gin.H{"message": "Quote sent to " + lead.Email})
	}
}

// GetQuoteVarianceHandler compares the contract against the current estimate
// @Summary Quote variance
// @Description Compare the accepted contract snapshot against the quote's
// current line items, reporting added, removed and modified items and the
// total change
// @Tags Quotes
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Quote ID"
// @Success 200 {object} services.ComparisonResult
// @Failure 409 {object} models.ErrorResponse
// @Router /api/quotes/{id}/variance [get]
func GetQuoteVarianceHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quote ID"})
			return
		}

		quote, err := fetchQuote(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Quote not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote", "details": err.Error()})
			return
		}
		if quote.AcceptedAt == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Quote has no contract snapshot; variance requires an accepted quote"})
			return
		}

		rows, err := db.Query(`
			SELECT id, category, description, quantity, unit, unit_price, line_total,
				   COALESCE(notes, ''), sort_order, COALESCE(template_item_id, 0),
				   COALESCE(material_id, 0)
			FROM contract_item WHERE quote_id = $1 ORDER BY sort_order, id`, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch contract items", "details": err.Error()})
			return
		}
		defer rows.Close()

		contract := []models.LineItem{}
		for rows.Next() {
			var li models.LineItem
			err := rows.Scan(&li.ID, &li.Category, &li.Description, &li.Quantity, &li.Unit,
				&li.UnitPrice, &li.LineTotal, &li.Notes, &li.SortOrder,
				&li.TemplateItemID, &li.MaterialID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan contract item", "details": err.Error()})
				return
			}
			contract = append(contract, li)
		}

		current, err := fetchQuoteItems(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote items", "details": err.Error()})
			return
		}

		result := services.CompareLineItemSets(contract, current)
		c.JSON(http.StatusOK, result)
	}
}

// DeleteQuoteHandler deletes a draft quote
// @Summary Delete quote
// @Description Delete a draft quote and its items. Sent and accepted quotes
// cannot be deleted.
// @Tags Quotes
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Quote ID"
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/quotes/{id} [delete]
func DeleteQuoteHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quote ID"})
			return
		}

		var status string
		err = db.QueryRow(`SELECT status FROM quote WHERE id = $1`, id).Scan(&status)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Quote not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote", "details": err.Error()})
			return
		}
		if status != "draft" {
			c.JSON(http.StatusConflict, gin.H{"error": "Only draft quotes can be deleted"})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}
		if _, err := tx.Exec(`DELETE FROM quote_item WHERE quote_id = $1`, id); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete quote items", "details": err.Error()})
			return
		}
		if _, err := tx.Exec(`DELETE FROM quote WHERE id = $1`, id); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete quote", "details": err.Error()})
			return
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "quote", id, "deleted", nil, nil)
		c.JSON(http.StatusOK, gin.H{"message": "Quote deleted"})
	}
}
