package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"backend/models"
	"backend/repository"
	"backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func fetchWorkOrder(db *sql.DB, id int) (*models.WorkOrder, error) {
	var wo models.WorkOrder
	err := db.QueryRow(`
		SELECT id, lead_id, number, status, crew_name, scheduled_date,
			   tax_rate, discount_amount, subtotal, tax_amount, total_amount,
			   COALESCE(description, ''), created_by, created_at, updated_at
		FROM work_order WHERE id = $1`, id).Scan(
		&wo.ID, &wo.LeadID, &wo.Number, &wo.Status, &wo.CrewName, &wo.ScheduledDate,
		&wo.TaxRate, &wo.DiscountAmount, &wo.Subtotal, &wo.TaxAmount, &wo.TotalAmount,
		&wo.Description, &wo.CreatedBy, &wo.CreatedAt, &wo.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wo, nil
}

func fetchWorkOrderItems(db *sql.DB, orderID int) ([]models.LineItem, error) {
	rows, err := db.Query(`
		SELECT id, category, description, quantity, unit, unit_price, line_total,
			   COALESCE(notes, ''), sort_order, COALESCE(template_item_id, 0),
			   COALESCE(material_id, 0)
		FROM work_order_item WHERE work_order_id = $1 ORDER BY sort_order, id`, orderID)
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

func insertWorkOrderItem(tx *sql.Tx, orderID int, li models.LineItem) error {
	var templateItemID, materialID interface{}
	if li.TemplateItemID > 0 {
		templateItemID = li.TemplateItemID
	}
	if li.MaterialID > 0 {
		materialID = li.MaterialID
	}
	_, err := tx.Exec(`
		INSERT INTO work_order_item (work_order_id, category, description, quantity,
									 unit, unit_price, line_total, notes, sort_order,
									 template_item_id, material_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		orderID, li.Category, li.Description, li.Quantity, li.Unit,
		li.UnitPrice, li.LineTotal, li.Notes, li.SortOrder, templateItemID, materialID)
	return err
}

func recomputeWorkOrderTotals(tx *sql.Tx, orderID int, taxRate, discount float64) (services.Totals, error) {
	rows, err := tx.Query(`
		SELECT quantity, unit_price FROM work_order_item WHERE work_order_id = $1`, orderID)
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
		UPDATE work_order SET subtotal = $1, tax_rate = $2, tax_amount = $3,
							  discount_amount = $4, total_amount = $5, updated_at = NOW()
		WHERE id = $6`,
		totals.Subtotal, totals.TaxRate, totals.TaxAmount,
		totals.DiscountAmount, totals.Total, orderID)
	return totals, err
}

// GetWorkOrdersHandler lists work orders
// @Summary List work orders
// @Description List work orders with optional lead, status, and crew filters
// @Tags WorkOrders
// @Produce json
// @Param Authorization header string true "Session token"
// @Param lead_id query int false "Filter by lead"
// @Param status query string false "Filter by status"
// @Param crew query string false "Filter by crew name"
// @Success 200 {array} models.WorkOrder
// @Failure 500 {object} models.ErrorResponse
// @Router /api/work_orders [get]
func GetWorkOrdersHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `
			SELECT id, lead_id, number, status, crew_name, scheduled_date,
				   tax_rate, discount_amount, subtotal, tax_amount, total_amount,
				   COALESCE(description, ''), created_by, created_at, updated_at
			FROM work_order WHERE 1=1`
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
		if crew := c.Query("crew"); crew != "" {
			args = append(args, crew)
			query += " AND crew_name = $" + strconv.Itoa(len(args))
		}
		query += " ORDER BY COALESCE(scheduled_date, created_at) DESC"

		rows, err := db.Query(query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch work orders", "details": err.Error()})
			return
		}
		defer rows.Close()

		orders := []models.WorkOrder{}
		for rows.Next() {
			var wo models.WorkOrder
			err := rows.Scan(&wo.ID, &wo.LeadID, &wo.Number, &wo.Status, &wo.CrewName,
				&wo.ScheduledDate, &wo.TaxRate, &wo.DiscountAmount, &wo.Subtotal,
				&wo.TaxAmount, &wo.TotalAmount, &wo.Description, &wo.CreatedBy,
				&wo.CreatedAt, &wo.UpdatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan work order", "details": err.Error()})
				return
			}
			orders = append(orders, wo)
		}

		c.JSON(http.StatusOK, orders)
	}
}

// GetWorkOrderHandler fetches a work order with items
// @Summary Get work order
// @Description Fetch a work order and its line items
// @Tags WorkOrders
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Work order ID"
// @Success 200 {object} models.WorkOrder
// @Failure 404 {object} models.ErrorResponse
// @Router /api/work_orders/{id} [get]
func GetWorkOrderHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid work order ID"})
			return
		}

		wo, err := fetchWorkOrder(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Work order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch work order", "details": err.Error()})
			return
		}

		wo.Items, err = fetchWorkOrderItems(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order items", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, wo)
	}
}

// CreateWorkOrderHandler creates a work order
// @Summary Create work order
// @Description Create a draft work order for a crew
// @Tags WorkOrders
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 201 {object} models.WorkOrder
// @Failure 400 {object} models.ErrorResponse
// @Router /api/work_orders [post]
func CreateWorkOrderHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			LeadID         int               `json:"lead_id" binding:"required"`
			CrewName       string            `json:"crew_name" binding:"required"`
			ScheduledDate  *time.Time        `json:"scheduled_date"`
			Description    string            `json:"description"`
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

		number, err := repository.NextDocumentNumber(tx, repository.WorkOrderPrefix)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reserve order number", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		var id int
		err = tx.QueryRow(`
			INSERT INTO work_order (lead_id, number, status, crew_name, scheduled_date,
									tax_rate, discount_amount, subtotal, tax_amount,
									total_amount, description, created_by, created_at, updated_at)
			VALUES ($1, $2, 'draft', $3, $4, $5, $6, 0, 0, 0, $7, $8, NOW(), NOW())
			RETURNING id`,
			body.LeadID, number, body.CrewName, body.ScheduledDate,
			body.TaxRate, body.DiscountAmount, body.Description, actor.ID).Scan(&id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create work order", "details": err.Error()})
			return
		}

		for _, li := range items {
			if err := insertWorkOrderItem(tx, id, li); err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to insert order item", "details": err.Error()})
				return
			}
		}

		if _, err := recomputeWorkOrderTotals(tx, id, body.TaxRate, body.DiscountAmount); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute totals", "details": err.Error()})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		wo, err := fetchWorkOrder(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch created order", "details": err.Error()})
			return
		}
		wo.Items, _ = fetchWorkOrderItems(db, id)

		LogActivity(gdb, actor.ID, "work_order", id, "created", nil, wo)
		c.JSON(http.StatusCreated, wo)
	}
}

// UpdateWorkOrderHandler updates scheduling and crew fields
// @Summary Update work order
// @Description Update a work order's crew, schedule, and description
// @Tags WorkOrders
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Work order ID"
// @Success 200 {object} models.WorkOrder
// @Failure 404 {object} models.ErrorResponse
// @Router /api/work_orders/{id} [put]
func UpdateWorkOrderHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid work order ID"})
			return
		}

		var body struct {
			CrewName      string     `json:"crew_name" binding:"required"`
			ScheduledDate *time.Time `json:"scheduled_date"`
			Description   string     `json:"description"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		before, err := fetchWorkOrder(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Work order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch work order", "details": err.Error()})
			return
		}
		if before.Status == "completed" || before.Status == "cancelled" {
			c.JSON(http.StatusConflict, gin.H{"error": "Completed or cancelled work orders cannot be edited"})
			return
		}

		_, err = db.Exec(`
			UPDATE work_order SET crew_name = $1, scheduled_date = $2, description = $3,
								  updated_at = NOW()
			WHERE id = $4`,
			body.CrewName, body.ScheduledDate, body.Description, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update work order", "details": err.Error()})
			return
		}

		after, err := fetchWorkOrder(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch work order", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "work_order", id, "updated", before, after)
		c.JSON(http.StatusOK, after)
	}
}

// ImportTemplateIntoWorkOrderHandler expands a template into a work order
// @Summary Import template into work order
// @Description Expand a template's labor and equipment items against the
// lead's latest measurement and append them to the work order
// @Tags WorkOrders
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Work order ID"
// @Success 200 {object} models.WorkOrder
// @Failure 409 {object} models.ErrorResponse
// @Router /api/work_orders/{id}/import_template [post]
func ImportTemplateIntoWorkOrderHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid work order ID"})
			return
		}

		var body struct {
			TemplateID int `json:"template_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		wo, err := fetchWorkOrder(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Work order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch work order", "details": err.Error()})
			return
		}
		if wo.Status != "draft" && wo.Status != "scheduled" {
			c.JSON(http.StatusConflict, gin.H{"error": "Only draft or scheduled work orders accept template imports"})
			return
		}

		measurement, err := repository.FetchLatestMeasurement(db, wo.LeadID)
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
			c.JSON(http.StatusOK, gin.H{"message": "Template has no items; work order unchanged"})
			return
		}

		// Crews get the on-site scope of work, not the supplier's shopping list.
		crewItems := make([]models.TemplateItem, 0, len(templateItems))
		for _, ti := range templateItems {
			if ti.Category == "labor" || ti.Category == "equipment" {
				crewItems = append(crewItems, ti)
			}
		}
		if len(crewItems) == 0 {
			c.JSON(http.StatusOK, gin.H{"message": "Template has no labor or equipment items; work order unchanged"})
			return
		}

		maxSort, err := repository.MaxSortOrder(db, "work_order_item", "work_order_id", id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to determine sort order", "details": err.Error()})
			return
		}

		lookup, err := repository.LocationPriceLookup(db, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load prices", "details": err.Error()})
			return
		}

		lineItems, err := services.ExpandTemplate(crewItems, *measurement, maxSort+1, lookup)
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
			if err := insertWorkOrderItem(tx, id, li); err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to insert order item", "details": err.Error()})
				return
			}
		}

		if _, err := recomputeWorkOrderTotals(tx, id, wo.TaxRate, wo.DiscountAmount); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute totals", "details": err.Error()})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "work_order", id, "imported_template",
			nil, gin.H{"template_id": body.TemplateID, "items_added": len(lineItems)})

		after, err := fetchWorkOrder(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch work order", "details": err.Error()})
			return
		}
		after.Items, _ = fetchWorkOrderItems(db, id)
		c.JSON(http.StatusOK, after)
	}
}

// ReorderWorkOrderItemsHandler renumbers line items
// @Summary Reorder work order items
// @Description Renumber the work order's items to match the given ID order.
// Every item must appear exactly once.
// @Tags WorkOrders
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Work order ID"
// @Success 200 {object} models.WorkOrder
// @Failure 400 {object} models.ErrorResponse
// @Router /api/work_orders/{id}/reorder [put]
func ReorderWorkOrderItemsHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid work order ID"})
			return
		}

		var body struct {
			ItemIDs []int `json:"item_ids" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		current, err := fetchWorkOrderItems(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order items", "details": err.Error()})
			return
		}
		if len(body.ItemIDs) != len(current) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Reorder must include every item exactly once"})
			return
		}
		existing := make(map[int]bool, len(current))
		for _, li := range current {
			existing[li.ID] = true
		}
		for _, itemID := range body.ItemIDs {
			if !existing[itemID] {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Item " + strconv.Itoa(itemID) + " does not belong to this work order"})
				return
			}
			delete(existing, itemID)
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}
		for i, itemID := range body.ItemIDs {
			_, err := tx.Exec(`
				UPDATE work_order_item SET sort_order = $1
				WHERE id = $2 AND work_order_id = $3`, i+1, itemID, id)
			if err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to renumber items", "details": err.Error()})
				return
			}
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "work_order", id, "reordered_items", nil, gin.H{"item_ids": body.ItemIDs})

		wo, err := fetchWorkOrder(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch work order", "details": err.Error()})
			return
		}
		wo.Items, _ = fetchWorkOrderItems(db, id)
		c.JSON(http.StatusOK, wo)
	}
}

// UpdateWorkOrderStatusHandler moves a work order through its lifecycle
// @Summary Update work order status
// @Description Set the work order status (draft, scheduled, in_progress,
// completed, cancelled). Completing a work order moves its lead to completed.
// @Tags WorkOrders
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Work order ID"
// @Success 200 {object} models.WorkOrder
// @Failure 400 {object} models.ErrorResponse
// @Router /api/work_orders/{id}/status [put]
func UpdateWorkOrderStatusHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid work order ID"})
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
		case "draft", "scheduled", "in_progress", "completed", "cancelled":
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status: " + body.Status})
			return
		}

		wo, err := fetchWorkOrder(db, id)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Work order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch work order", "details": err.Error()})
			return
		}
		oldStatus := wo.Status

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}
		if _, err := tx.Exec(`UPDATE work_order SET status = $1, updated_at = NOW() WHERE id = $2`, body.Status, id); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status", "details": err.Error()})
			return
		}
		switch body.Status {
		case "in_progress":
			_, err = tx.Exec(`UPDATE leads SET status = 'in_progress', updated_at = NOW()
							  WHERE id = $1 AND status = 'contracted'`, wo.LeadID)
		case "completed":
			_, err = tx.Exec(`UPDATE leads SET status = 'completed', updated_at = NOW()
							  WHERE id = $1 AND status IN ('contracted', 'in_progress')`, wo.LeadID)
		}
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update lead status", "details": err.Error()})
			return
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "work_order", id, "status_changed",
			gin.H{"status": oldStatus}, gin.H{"status": body.Status})

		after, err := fetchWorkOrder(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch work order", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, after)
	}
}

// DeleteWorkOrderHandler deletes a draft or cancelled work order
// @Summary Delete work order
// @Description Delete a draft or cancelled work order and its items
// @Tags WorkOrders
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Work order ID"
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/work_orders/{id} [delete]
func DeleteWorkOrderHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid work order ID"})
			return
		}

		var status string
		err = db.QueryRow(`SELECT status FROM work_order WHERE id = $1`, id).Scan(&status)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Work order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch work order", "details": err.Error()})
			return
		}
		if status != "draft" && status != "cancelled" {
			c.JSON(http.StatusConflict, gin.H{"error": "Only draft or cancelled work orders can be deleted"})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}
		if _, err := tx.Exec(`DELETE FROM work_order_item WHERE work_order_id = $1`, id); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete order items", "details": err.Error()})
			return
		}
		if _, err := tx.Exec(`DELETE FROM work_order WHERE id = $1`, id); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete work order", "details": err.Error()})
			return
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "work_order", id, "deleted", nil, nil)
		c.JSON(http.StatusOK, gin.H{"message": "Work order deleted"})
	}
}
