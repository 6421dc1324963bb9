package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"backend/models"
	"backend/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Measurement snapshots are append-only. Corrections are new snapshots, so
// every quote keeps a stable reference to the geometry it priced against.

// GetMeasurementsHandler lists a lead's measurement history
// @Summary List measurements
// @Description List all measurement snapshots for a lead, newest first
// @Tags Measurements
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Lead ID"
// @Success 200 {array} models.Measurement
// @Failure 400 {object} models.ErrorResponse
// @Router /api/leads/{id}/measurements [get]
func GetMeasurementsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		leadID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead ID"})
			return
		}

		rows, err := db.Query(`
			SELECT id, lead_id, total_squares, actual_squares, hip_feet, ridge_feet,
				   valley_feet, rake_feet, eave_feet, roof_pitch, roof_complexity,
				   created_by, created_at
			FROM measurement
			WHERE lead_id = $1
			ORDER BY created_at DESC, id DESC`, leadID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch measurements", "details": err.Error()})
			return
		}
		defer rows.Close()

		measurements := []models.Measurement{}
		for rows.Next() {
			var m models.Measurement
			err := rows.Scan(&m.ID, &m.LeadID, &m.TotalSquares, &m.ActualSquares,
				&m.HipFeet, &m.RidgeFeet, &m.ValleyFeet, &m.RakeFeet, &m.EaveFeet,
				&m.RoofPitch, &m.RoofComplexity, &m.CreatedBy, &m.CreatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan measurement", "details": err.Error()})
				return
			}
			measurements = append(measurements, m)
		}

		c.JSON(http.StatusOK, measurements)
	}
}

// GetLatestMeasurementHandler fetches the snapshot used by calculations
// @Summary Latest measurement
// @Description Fetch the most recent measurement snapshot for a lead
// @Tags Measurements
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Lead ID"
// @Success 200 {object} models.Measurement
// @Failure 404 {object} models.ErrorResponse
// @Router /api/leads/{id}/measurements/latest [get]
func GetLatestMeasurementHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		leadID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead ID"})
			return
		}

		m, err := repository.FetchLatestMeasurement(db, leadID)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Lead has not been measured yet"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch measurement", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, m)
	}
}

// CreateMeasurementHandler records a new measurement snapshot
// @Summary Create measurement
// @Description Record a new immutable measurement snapshot for a lead
// @Tags Measurements
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Lead ID"
// @Success 201 {object} models.Measurement
// @Failure 400 {object} models.ErrorResponse
// @Router /api/leads/{id}/measurements [post]
func CreateMeasurementHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		leadID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead ID"})
			return
		}

		var body struct {
			TotalSquares   float64 `json:"total_squares"`
			ActualSquares  float64 `json:"actual_squares"`
			HipFeet        float64 `json:"hip_feet"`
			RidgeFeet      float64 `json:"ridge_feet"`
			ValleyFeet     float64 `json:"valley_feet"`
			RakeFeet       float64 `json:"rake_feet"`
			EaveFeet       float64 `json:"eave_feet"`
			RoofPitch      string  `json:"roof_pitch"`
			RoofComplexity string  `json:"roof_complexity"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		if body.TotalSquares < 0 || body.ActualSquares < 0 || body.HipFeet < 0 ||
			body.RidgeFeet < 0 || body.ValleyFeet < 0 || body.RakeFeet < 0 || body.EaveFeet < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Measurement values cannot be negative"})
			return
		}

		var leadExists bool
		if err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM leads WHERE id = $1)`, leadID).Scan(&leadExists); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check lead", "details": err.Error()})
			return
		}
		if !leadExists {
			c.JSON(http.StatusNotFound, gin.H{"error": "Lead not found"})
			return
		}

		actor := CurrentUser(c)
		var m models.Measurement
		err = db.QueryRow(`
			INSERT INTO measurement (lead_id, total_squares, actual_squares, hip_feet,
									 ridge_feet, valley_feet, rake_feet, eave_feet,
									 roof_pitch, roof_complexity, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
			RETURNING id, lead_id, total_squares, actual_squares, hip_feet, ridge_feet,
					  valley_feet, rake_feet, eave_feet, roof_pitch, roof_complexity,
					  created_by, created_at`,
			leadID, body.TotalSquares, body.ActualSquares, body.HipFeet, body.RidgeFeet,
			body.ValleyFeet, body.RakeFeet, body.EaveFeet, body.RoofPitch,
			body.RoofComplexity, actor.ID).Scan(
			&m.ID, &m.LeadID, &m.TotalSquares, &m.ActualSquares, &m.HipFeet,
			&m.RidgeFeet, &m.ValleyFeet, &m.RakeFeet, &m.EaveFeet, &m.RoofPitch,
			&m.RoofComplexity, &m.CreatedBy, &m.CreatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create measurement", "details": err.Error()})
			return
		}

		// Measuring a "new" or "contacted" lead advances it in the pipeline.
		_, err = db.Exec(`
			UPDATE leads SET status = 'measured', updated_at = NOW()
			WHERE id = $1 AND status IN ('new', 'contacted')`, leadID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to advance lead status", "details": err.Error()})
			return
		}

		LogActivity(gdb, actor.ID, "measurement", m.ID, "created", nil, m)
		c.JSON(http.StatusCreated, m)
	}
}
