package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"backend/models"
	"backend/repository"
	"backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func fetchMaterialOrder(db *sql.DB, id int) (*models.MaterialOrder, error) {
	var mo models.MaterialOrder
	err := db.QueryRow(`
		SELECT id, lead_id, number, status, supplier_name, COALESCE(location_id, 0),
			   tax_rate, discount_amount, subtotal, tax_amount, total_amount,
			   created_by, created_at, updated_at
		FROM material_order WHERE id = $1`, id).Scan(
		&mo.ID, &mo.LeadID, &mo.Number, &mo.Status, &mo.SupplierName, &mo.LocationID,
		&mo.TaxRate, &mo.DiscountAmount, &mo.Subtotal, &mo.TaxAmount, &mo.TotalAmount,
		&mo.CreatedBy, &mo.CreatedAt, &mo.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &mo, nil
}

func fetchMaterialOrderItems(db *sql.DB, orderID int) ([]models.LineItem, error) {
	rows, err := db.Query(`
		SELECT id, category, description, quantity, unit, unit_price, line_total,
			   COALESCE(notes, ''), sort_order, COALESCE(template_item_id, 0),
			   COALESCE(material_id, 0)
		FROM material_order_item WHERE material_order_id = $1 ORDER BY sort_order, id`, orderID)
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

func insertMaterialOrderItem(tx *sql.Tx, orderID int, li models.LineItem) error {
	var templateItemID, materialID interface{}
	if li.TemplateItemID > 0 {
		templateItemID = li.TemplateItemID
	}
	if li.MaterialID > 0 {
		materialID = li.MaterialID
	}
	_, err := tx.Exec(`
		INSERT INTO material_order_item (material_order_id, category, description,
										 quantity, unit, unit_price, line_total, notes,
										 sort_order, template_item_id, material_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		orderID, li.Category, li.Description, li.Quantity, li.Unit,
		li.UnitPrice, li.LineTotal, li.Notes, li.SortOrder, templateItemID, materialID)
	return err
}

func recomputeMaterialOrderTotals(tx *sql.Tx, orderID int, taxRate, discount float64) (services.Totals, error) {
	rows, err := tx.Query(`
		SELECT quantity, unit_price FROM material_order_item WHERE material_order_id = $1`, orderID)
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
		UPDATE material_order SET subtotal = $1, tax_rate = $2, tax_amount = $3,
								  discount_amount = $4, total_amount = $5, updated_at = NOW()
		WHERE id = $6`,
		totals.Subtotal, totals.TaxRate, totals.TaxAmount,
		totals.DiscountAmount, totals.Total, orderID)
	return totals, err
}

// GetMaterialOrdersHandler lists material orders
// @Summary List material orders
// @Description List material orders with optional lead and status filters
// @Tags MaterialOrders
// @Produce json
// @Param Authorization header string true "Session token"
// @Param lead_id query int false "Filter by lead"
// @Param status query string false "Filter by status"
// @Success 200 {array} models.MaterialOrder
// @Failure 500 {object} models.ErrorResponse
// @Router /api/material_orders [get]
func GetMaterialOrdersHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `
			SELECT id, lead_id, number, status, supplier_name, COALESCE(location_id, 0),
				   tax_rate, discount_amount, subtotal, tax_amount, total_amount,
				   created_by, created_at, updated_at
			FROM material_order WHERE 1=1`
		args := []interface{}{}

		if leadID := c.Query("lead_id"); leadID != "" {
			id, err := strconv.Atoi(leadID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead_id"})
				return
			}
			args = append(args, id)
			query += " AND lead_id = $" + strconv.Itoa(len(args))
		}
		if status := c.Query("status"); status != "" {
			args = append(args, status)
			query += " AND status = $" + strconv.Itoa(len(args))
		}
		query += " ORDER BY created_at DESC"

		rows, err := db.Query(query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch material orders", "details": err.Error()})
			return
		}
		defer rows.Close()

		orders := []models.MaterialOrder{}
		for rows.Next() {
			var mo models.MaterialOrder
			err := rows.Scan(&mo.ID, &mo.LeadID, &mo.Number, &mo.Status, &mo.SupplierName,
				&mo.LocationID, &mo.TaxRate, &mo.DiscountAmount, &mo.Subtotal,
				&mo.TaxAmount, &mo.TotalAmount, &mo.CreatedBy, &mo.CreatedAt, &mo.UpdatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan material order", "details": err.Error()})
				return
			}
			orders = append(orders, mo)
		}

		c.JSON(http.StatusOK, orders)
	}
}

// GetMaterialOrderHandler fetches a material order with items
// @Summary Get material order
// @Description Fetch a material order and its line items
// @Tags MaterialOrders
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Material order ID"
// @Success 200 {object} models.MaterialOrder
// @Failure 404 {object} models.ErrorResponse
// @Router /api/material_orders/{id} [get]
func GetMaterialOrderHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid material order ID"})
			return
		}

		mo, err := fetchMaterialOrder(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Material order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch material order", "details": err.Error()})
			return
		}

		mo.Items, err = fetchMaterialOrderItems(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order items", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, mo)
	}
}

// CreateMaterialOrderHandler creates a material order
// @Summary Create material order
// @Description Create a draft material order for a supplier
// @Tags MaterialOrders
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 201 {object} models.MaterialOrder
// @Failure 400 {object} models.ErrorResponse
// @Router /api/material_orders [post]
func CreateMaterialOrderHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			LeadID         int               `json:"lead_id" binding:"required"`
			SupplierName   string            `json:"supplier_name" binding:"required"`
			LocationID     int               `json:"location_id"`
			TaxRate        float64           `json:"tax_rate"`
			DiscountAmount float64           `json:"discount_amount"`
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

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		number, err := repository.NextDocumentNumber(tx, repository.MaterialOrderPrefix)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reserve order number", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		var locationID interface{}
		if body.LocationID > 0 {
			locationID = body.LocationID
		}
		var id int
		err = tx.QueryRow(`
			INSERT INTO material_order (lead_id, number, status, supplier_name, location_id,
										tax_rate, discount_amount, subtotal, tax_amount,
										total_amount, created_by, created_at, updated_at)
			VALUES ($1, $2, 'draft', $3, $4, $5, $6, 0, 0, 0, $7, NOW(), NOW())
			RETURNING id`,
			body.LeadID, number, body.SupplierName, locationID,
			body.TaxRate, body.DiscountAmount, actor.ID).Scan(&id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create material order", "details": err.Error()})
			return
		}

		for _, li := range items {
			if err := insertMaterialOrderItem(tx, id, li); err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to insert order item", "details": err.Error()})
				return
			}
		}

		if _, err := recomputeMaterialOrderTotals(tx, id, body.TaxRate, body.DiscountAmount); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute totals", "details": err.Error()})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		mo, err := fetchMaterialOrder(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch created order", "details": err.Error()})
			return
		}
		mo.Items, _ = fetchMaterialOrderItems(db, id)

		LogActivity(gdb, actor.ID, "material_order", id, "created", nil, mo)
		c.JSON(http.StatusCreated, mo)
	}
}

// ImportTemplateIntoMaterialOrderHandler expands a template into an order
// @Summary Import template into material order
// @Description Expand a template against the lead's latest measurement,
// pricing material items with the order's branch overrides, and append the
// result to the order
// @Tags MaterialOrders
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Material order ID"
// @Success 200 {object} models.MaterialOrder
// @Failure 409 {object} models.ErrorResponse
// @Router /api/material_orders/{id}/import_template [post]
func ImportTemplateIntoMaterialOrderHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid material order ID"})
			return
		}

		var body struct {
			TemplateID int `json:"template_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		mo, err := fetchMaterialOrder(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Material order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch material order", "details": err.Error()})
			return
		}
		if mo.Status != "draft" {
			c.JSON(http.StatusConflict, gin.H{"error": "Only draft orders accept template imports"})
			return
		}

		measurement, err := repository.FetchLatestMeasurement(db, mo.LeadID)
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
			c.JSON(http.StatusOK, gin.H{"message": "Template has no items; order unchanged"})
			return
		}

		// Material orders only carry supplier-orderable items.
		materialItems := make([]models.TemplateItem, 0, len(templateItems))
		for _, ti := range templateItems {
			if ti.Category == "materials" {
				materialItems = append(materialItems, ti)
			}
		}
		if len(materialItems) == 0 {
			c.JSON(http.StatusOK, gin.H{"message": "Template has no material items; order unchanged"})
			return
		}

		lookup, err := repository.LocationPriceLookup(db, mo.LocationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load location prices", "details": err.Error()})
			return
		}

		maxSort, err := repository.MaxSortOrder(db, "material_order_item", "material_order_id", id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to determine sort order", "details": err.Error()})
			return
		}

		lineItems, err := services.ExpandTemplate(materialItems, *measurement, maxSort+1, lookup)
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
			if err := insertMaterialOrderItem(tx, id, li); err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to insert order item", "details": err.Error()})
				return
			}
		}

		if _, err := recomputeMaterialOrderTotals(tx, id, mo.TaxRate, mo.DiscountAmount); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute totals", "details": err.Error()})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "material_order", id, "imported_template",
			nil, gin.H{"template_id": body.TemplateID, "items_added": len(lineItems)})

		after, err := fetchMaterialOrder(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order", "details": err.Error()})
			return
		}
		after.Items, _ = fetchMaterialOrderItems(db, id)
		c.JSON(http.StatusOK, after)
	}
}

// UpdateMaterialOrderStatusHandler moves an order through its lifecycle
// @Summary Update material order status
// @Description Set the order status (draft, submitted, received, cancelled)
// @Tags MaterialOrders
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Material order ID"
// @Success 200 {object} models.MaterialOrder
// @Failure 400 {object} models.ErrorResponse
// @Router /api/material_orders/{id}/status [put]
func UpdateMaterialOrderStatusHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid material order ID"})
			return
		}

		var body struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
			return
		}
		switch body.Status {
		case "draft", "submitted", "received", "cancelled":
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status: " + body.Status})
			return
		}

		var oldStatus string
		err = db.QueryRow(`SELECT status FROM material_order WHERE id = $1`, id).Scan(&oldStatus)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Material order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order", "details": err.Error()})
			return
		}

		if _, err := db.Exec(`UPDATE material_order SET status = $1, updated_at = NOW() WHERE id = $2`, body.Status, id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "material_order", id, "status_changed",
			gin.H{"status": oldStatus}, gin.H{"status": body.Status})

		mo, err := fetchMaterialOrder(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mo)
	}
}

// DeleteMaterialOrderHandler deletes a draft order
// @Summary Delete material order
// @Description Delete a draft material order and its items
// @Tags MaterialOrders
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Material order ID"
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/material_orders/{id} [delete]
func DeleteMaterialOrderHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid material order ID"})
			return
		}

		var status string
		err = db.QueryRow(`SELECT status FROM material_order WHERE id = $1`, id).Scan(&status)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Material order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order", "details": err.Error()})
			return
		}
		if status != "draft" && status != "cancelled" {
			c.JSON(http.StatusConflict, gin.H{"error": "Only draft or cancelled orders can be deleted"})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}
		if _, err := tx.Exec(`DELETE FROM material_order_item WHERE material_order_id = $1`, id); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete order items", "details": err.Error()})
			return
		}
		if _, err := tx.Exec(`DELETE FROM material_order WHERE id = $1`, id); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete order", "details": err.Error()})
			return
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "material_order", id, "deleted", nil, nil)
		c.JSON(http.StatusOK, gin.H{"message": "Material order deleted"})
	}
}
