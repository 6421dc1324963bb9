package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetDashboardStatsHandler returns pipeline and revenue rollups
// @Summary Dashboard statistics
// @Description Lead pipeline counts, quote conversion, outstanding invoice
// balances, and jobs scheduled in the next week
// @Tags Dashboard
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {object} models.MessageResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/dashboard/stats [get]
func GetDashboardStatsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		pipeline := map[string]int{}
		rows, err := db.Query(`SELECT status, COUNT(*) FROM leads GROUP BY status`)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lead pipeline", "details": err.Error()})
			return
		}
		defer rows.Close()
		for rows.Next() {
			var status string
			var count int
			if err := rows.Scan(&status, &count); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan pipeline row", "details": err.Error()})
				return
			}
			pipeline[status] = count
		}

		var quotesTotal, quotesAccepted int
		var acceptedValue float64
		err = db.QueryRow(`
			SELECT COUNT(*),
				   COUNT(*) FILTER (WHERE status = 'accepted'),
				   COALESCE(SUM(total_amount) FILTER (WHERE status = 'accepted'), 0)
			FROM quote`).Scan(&quotesTotal, &quotesAccepted, &acceptedValue)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote stats", "details": err.Error()})
			return
		}
		conversionRate := 0.0
		if quotesTotal > 0 {
			conversionRate = float64(quotesAccepted) / float64(quotesTotal)
		}

		var outstanding, overdue float64
		err = db.QueryRow(`
			SELECT COALESCE(SUM(total_amount - total_paid) FILTER (WHERE payment_status IN ('unpaid', 'partial', 'overdue')), 0),
				   COALESCE(SUM(total_amount - total_paid) FILTER (WHERE payment_status = 'overdue'), 0)
			FROM invoice`).Scan(&outstanding, &overdue)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invoice stats", "details": err.Error()})
			return
		}

		var upcomingJobs int
		err = db.QueryRow(`
			SELECT COUNT(*) FROM work_order
			WHERE status IN ('scheduled', 'in_progress')
			  AND scheduled_date BETWEEN NOW() AND NOW() + INTERVAL '7 days'`).Scan(&upcomingJobs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch work order stats", "details": err.Error()})
			return
		}

		var paymentsThisMonth float64
		err = db.QueryRow(`
			SELECT COALESCE(SUM(amount), 0) FROM payment
			WHERE received_at >= date_trunc('month', NOW())`).Scan(&paymentsThisMonth)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payment stats", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"lead_pipeline": pipeline,
			"quotes": gin.H{
				"total":           quotesTotal,
				"accepted":        quotesAccepted,
				"accepted_value":  acceptedValue,
				"conversion_rate": conversionRate,
			},
			"invoices": gin.H{
				"outstanding_balance": outstanding,
				"overdue_balance":     overdue,
			},
			"work_orders": gin.H{
				"upcoming_week": upcomingJobs,
			},
			"payments": gin.H{
				"received_this_month": paymentsThisMonth,
			},
		})
	}
}

// GetCrewScheduleHandler lists scheduled jobs per crew
// @Summary Crew schedule report
// @Description Work orders grouped by crew for the next N days
// @Tags Dashboard
// @Produce json
// @Param Authorization header string true "Session token"
// @Param days query int false "Window in days (default 14)"
// @Success 200 {object} models.MessageResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/dashboard/crew_schedule [get]
func GetCrewScheduleHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := 14
		if d := c.Query("days"); d != "" {
			parsed, err := strconv.Atoi(d)
			if err != nil || parsed < 1 || parsed > 90 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 90"})
				return
			}
			days = parsed
		}

		rows, err := db.Query(`
			SELECT w.crew_name, w.number, w.status, w.scheduled_date,
				   l.customer_name, COALESCE(l.address, '')
			FROM work_order w
			JOIN leads l ON w.lead_id = l.id
			WHERE w.status IN ('scheduled', 'in_progress')
			  AND w.scheduled_date BETWEEN NOW() AND NOW() + ($1 * INTERVAL '1 day')
			ORDER BY w.crew_name, w.scheduled_date`, days)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch crew schedule", "details": err.Error()})
			return
		}
		defer rows.Close()

		type scheduledJob struct {
			Number        string `json:"number"`
			Status        string `json:"status"`
			ScheduledDate string `json:"scheduled_date"`
			Customer      string `json:"customer"`
			Address       string `json:"address"`
		}
		schedule := map[string][]scheduledJob{}
		for rows.Next() {
			var crew string
			var job scheduledJob
			var scheduled sql.NullTime
			if err := rows.Scan(&crew, &job.Number, &job.Status, &scheduled,
				&job.Customer, &job.Address); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan schedule row", "details": err.Error()})
				return
			}
			if scheduled.Valid {
				job.ScheduledDate = scheduled.Time.Format("2006-01-02")
			}
			schedule[crew] = append(schedule[crew], job)
		}

		c.JSON(http.StatusOK, gin.H{"days": days, "schedule": schedule})
	}
}
