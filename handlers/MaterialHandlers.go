package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"backend/models"
	"backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var materialCategories = map[string]bool{
	"labor": true, "materials": true, "equipment": true, "other": true,
}

// GetMaterialsHandler lists the material catalog
// @Summary List materials
// @Description List catalog materials, optionally including inactive ones
// @Tags Materials
// @Produce json
// @Param Authorization header string true "Session token"
// @Param include_inactive query bool false "Include inactive materials"
// @Success 200 {array} models.Material
// @Failure 500 {object} models.ErrorResponse
// @Router /api/materials [get]
func GetMaterialsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `
			SELECT id, sku, name, category, unit, current_cost, measurement_type,
				   per_unit_quantity, active, created_at, updated_at
			FROM material`
		if c.Query("include_inactive") != "true" {
			query += " WHERE active = true"
		}
		query += " ORDER BY category, name"

		rows, err := db.Query(query)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch materials", "details": err.Error()})
			return
		}
		defer rows.Close()

		materials := []models.Material{}
		for rows.Next() {
			var m models.Material
			err := rows.Scan(&m.ID, &m.SKU, &m.Name, &m.Category, &m.Unit, &m.CurrentCost,
				&m.MeasurementType, &m.PerUnitQuantity, &m.Active, &m.CreatedAt, &m.UpdatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan material", "details": err.Error()})
				return
			}
			materials = append(materials, m)
		}

		c.JSON(http.StatusOK, materials)
	}
}

// CreateMaterialHandler adds a material to the catalog
// @Summary Create material
// @Description Add a material with its measurement rule and catalog cost
// @Tags Materials
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 201 {object} models.Material
// @Failure 400 {object} models.ErrorResponse
// @Router /api/materials [post]
func CreateMaterialHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			SKU             string  `json:"sku"`
			Name            string  `json:"name" binding:"required"`
			Category        string  `json:"category" binding:"required"`
			Unit            string  `json:"unit" binding:"required"`
			CurrentCost     float64 `json:"current_cost"`
			MeasurementType string  `json:"measurement_type" binding:"required"`
			PerUnitQuantity float64 `json:"per_unit_quantity"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
		if !materialCategories[body.Category] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category: " + body.Category})
			return
		}
		if !services.ValidMeasurementType(services.MeasurementType(body.MeasurementType)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown measurement type: " + body.MeasurementType})
			return
		}
		if body.CurrentCost < 0 || body.PerUnitQuantity < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cost and per-unit quantity cannot be negative"})
			return
		}

		var m models.Material
		err := db.QueryRow(`
			INSERT INTO material (sku, name, category, unit, current_cost,
								  measurement_type, per_unit_quantity, active,
								  created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true, NOW(), NOW())
			RETURNING id, sku, name, category, unit, current_cost, measurement_type,
					  per_unit_quantity, active, created_at, updated_at`,
			body.SKU, body.Name, body.Category, body.Unit, body.CurrentCost,
			body.MeasurementType, body.PerUnitQuantity).Scan(
			&m.ID, &m.SKU, &m.Name, &m.Category, &m.Unit, &m.CurrentCost,
			&m.MeasurementType, &m.PerUnitQuantity, &m.Active, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create material", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "material", m.ID, "created", nil, m)
		c.JSON(http.StatusCreated, m)
	}
}

// UpdateMaterialHandler updates a catalog material
// @Summary Update material
// @Description Update a material's fields. Cost changes affect future
// expansions only; existing line items keep their captured price.
// @Tags Materials
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Material ID"
// @Success 200 {object} models.Material
// @Failure 404 {object} models.ErrorResponse
// @Router /api/materials/{id} [put]
func UpdateMaterialHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid material ID"})
			return
		}

		var body struct {
			SKU             string  `json:"sku"`
			Name            string  `json:"name" binding:"required"`
			Category        string  `json:"category" binding:"required"`
			Unit            string  `json:"unit" binding:"required"`
			CurrentCost     float64 `json:"current_cost"`
			MeasurementType string  `json:"measurement_type" binding:"required"`
			PerUnitQuantity float64 `json:"per_unit_quantity"`
			Active          bool    `json:"active"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
		if !materialCategories[body.Category] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category: " + body.Category})
			return
		}
		if !services.ValidMeasurementType(services.MeasurementType(body.MeasurementType)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown measurement type: " + body.MeasurementType})
			return
		}
		if body.CurrentCost < 0 || body.PerUnitQuantity < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cost and per-unit quantity cannot be negative"})
			return
		}

		var m models.Material
		err = db.QueryRow(`
			UPDATE material SET sku = $1, name = $2, category = $3, unit = $4,
								current_cost = $5, measurement_type = $6,
								per_unit_quantity = $7, active = $8, updated_at = NOW()
			WHERE id = $9
			RETURNING id, sku, name, category, unit, current_cost, measurement_type,
					  per_unit_quantity, active, created_at, updated_at`,
			body.SKU, body.Name, body.Category, body.Unit, body.CurrentCost,
			body.MeasurementType, body.PerUnitQuantity, body.Active, id).Scan(
			&m.ID, &m.SKU, &m.Name, &m.Category, &m.Unit, &m.CurrentCost,
			&m.MeasurementType, &m.PerUnitQuantity, &m.Active, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Material not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update material", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "material", m.ID, "updated", nil, m)
		c.JSON(http.StatusOK, m)
	}
}

// GetLocationPricesHandler lists branch price overrides for a material
// @Summary List location prices
// @Description List per-branch price overrides for a material
// @Tags Materials
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Material ID"
// @Success 200 {array} models.MaterialLocationPrice
// @Failure 400 {object} models.ErrorResponse
// @Router /api/materials/{id}/location_prices [get]
func GetLocationPricesHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid material ID"})
			return
		}

		rows, err := db.Query(`
			SELECT id, material_id, location_id, price, updated_at
			FROM material_location_price
			WHERE material_id = $1 ORDER BY location_id`, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch location prices", "details": err.Error()})
			return
		}
		defer rows.Close()

		prices := []models.MaterialLocationPrice{}
		for rows.Next() {
			var p models.MaterialLocationPrice
			if err := rows.Scan(&p.ID, &p.MaterialID, &p.LocationID, &p.Price, &p.UpdatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan location price", "details": err.Error()})
				return
			}
			prices = append(prices, p)
		}

		c.JSON(http.StatusOK, prices)
	}
}

// SetLocationPriceHandler upserts a branch price override
// @Summary Set location price
// @Description Create or update a branch's price override for a material
// @Tags Materials
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Material ID"
// @Success 200 {object} models.MaterialLocationPrice
// @Failure 400 {object} models.ErrorResponse
// @Router /api/materials/{id}/location_prices [put]
func SetLocationPriceHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid material ID"})
			return
		}

		var body struct {
			LocationID int     `json:"location_id" binding:"required"`
			Price      float64 `json:"price" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
		if body.Price < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Price cannot be negative"})
			return
		}

		var p models.MaterialLocationPrice
		err = db.QueryRow(`
			INSERT INTO material_location_price (material_id, location_id, price, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (material_id, location_id)
			DO UPDATE SET price = EXCLUDED.price, updated_at = NOW()
			RETURNING id, material_id, location_id, price, updated_at`,
			id, body.LocationID, body.Price).Scan(
			&p.ID, &p.MaterialID, &p.LocationID, &p.Price, &p.UpdatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set location price", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "material", id, "location_price_set", nil, p)
		c.JSON(http.StatusOK, p)
	}
}

// DeleteLocationPriceHandler removes a branch price override
// @Summary Delete location price
// @Description Remove a branch override so pricing falls back to the catalog cost
// @Tags Materials
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Material ID"
// @Param location_id path int true "Location ID"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/materials/{id}/location_prices/{location_id} [delete]
func DeleteLocationPriceHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid material ID"})
			return
		}
		locationID, err := strconv.Atoi(c.Param("location_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location ID"})
			return
		}

		result, err := db.Exec(`
			DELETE FROM material_location_price WHERE material_id = $1 AND location_id = $2`,
			id, locationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete location price", "details": err.Error()})
			return
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Override not found"})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "material", id, "location_price_removed", gin.H{"location_id": locationID}, nil)
		c.JSON(http.StatusOK, gin.H{"message": "Override removed"})
	}
}
