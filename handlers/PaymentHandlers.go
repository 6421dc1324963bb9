package handlers

import (
	"context"
	"database/sql"
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

// rollupPaymentStatus recomputes an invoice's total_paid and payment_status
// from its payment rows inside the caller's transaction.
func rollupPaymentStatus(tx *sql.Tx, invoiceID int) (string, error) {
	var totalPaid, totalAmount float64
	var dueDate sql.NullTime
	err := tx.QueryRow(`
		SELECT COALESCE(SUM(p.amount), 0), i.total_amount, i.due_date
		FROM invoice i
		LEFT JOIN payment p ON p.invoice_id = i.id
		WHERE i.id = $1
		GROUP BY i.total_amount, i.due_date`, invoiceID).Scan(&totalPaid, &totalAmount, &dueDate)
	if err != nil {
		return "", err
	}

	totalPaid = services.Round2(totalPaid)
	status := "unpaid"
	switch {
	case totalPaid >= totalAmount && totalAmount > 0:
		status = "paid"
	case totalPaid > 0:
		status = "partial"
	case dueDate.Valid && dueDate.Time.Before(time.Now()):
		status = "overdue"
	}

	_, err = tx.Exec(`
		UPDATE invoice SET total_paid = $1, payment_status = $2, updated_at = NOW()
		WHERE id = $3`, totalPaid, status, invoiceID)
	return status, err
}

// GetPaymentsHandler lists an invoice's payments
// @Summary List payments
// @Description List payments recorded against an invoice
// @Tags Payments
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Invoice ID"
// @Success 200 {array} models.Payment
// @Failure 400 {object} models.ErrorResponse
// @Router /api/invoices/{id}/payments [get]
func GetPaymentsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
			return
		}

		rows, err := db.Query(`
			SELECT id, invoice_id, amount, method, COALESCE(reference, ''),
				   received_at, created_by, created_at
			FROM payment WHERE invoice_id = $1 ORDER BY received_at, id`, invoiceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payments", "details": err.Error()})
			return
		}
		defer rows.Close()

		payments := []models.Payment{}
		for rows.Next() {
			var p models.Payment
			err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference,
				&p.ReceivedAt, &p.CreatedBy, &p.CreatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan payment", "details": err.Error()})
				return
			}
			payments = append(payments, p)
		}

		c.JSON(http.StatusOK, payments)
	}
}

// RecordPaymentHandler records a payment against an invoice
// @Summary Record payment
// @Description Record a payment, roll up the invoice's paid totals, and
// notify the invoice owner
// @Tags Payments
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Invoice ID"
// @Success 201 {object} models.Payment
// @Failure 400 {object} models.ErrorResponse
// @Router /api/invoices/{id}/payments [post]
func RecordPaymentHandler(db *sql.DB, gdb *gorm.DB, push *services.PushService) gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
			return
		}

		var body struct {
			Amount     float64    `json:"amount" binding:"required"`
			Method     string     `json:"method" binding:"required"`
			Reference  string     `json:"reference"`
			ReceivedAt *time.Time `json:"received_at"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}
		if body.Amount <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Payment amount must be positive"})
			return
		}
		switch body.Method {
		case "check", "card", "cash", "ach", "other":
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown payment method: " + body.Method})
			return
		}

		inv, err := fetchInvoice(db, invoiceID)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invoice", "details": err.Error()})
			return
		}

		receivedAt := time.Now()
		if body.ReceivedAt != nil {
			receivedAt = *body.ReceivedAt
		}
		reference := body.Reference
		if reference == "" {
			reference = repository.GenerateRandomCode()
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		var p models.Payment
		err = tx.QueryRow(`
			INSERT INTO payment (invoice_id, amount, method, reference, received_at,
								 created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			RETURNING id, invoice_id, amount, method, reference, received_at,
					  created_by, created_at`,
			invoiceID, services.Round2(body.Amount), body.Method, reference,
			receivedAt, actor.ID).Scan(
			&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference,
			&p.ReceivedAt, &p.CreatedBy, &p.CreatedAt)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record payment", "details": err.Error()})
			return
		}

		status, err := rollupPaymentStatus(tx, invoiceID)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to roll up payment status", "details": err.Error()})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		LogActivity(gdb, actor.ID, "payment", p.ID, "created",
			nil, gin.H{"invoice_id": invoiceID, "amount": p.Amount, "status": status})

		if push != nil && inv.CreatedBy != actor.ID {
			if err := push.NotifyPaymentReceived(context.Background(), inv.CreatedBy, *inv, p.Amount); err != nil {
				log.Printf("payment push failed: %v", err)
			}
		}

		c.JSON(http.StatusCreated, gin.H{"payment": p, "payment_status": status})
	}
}

// DeletePaymentHandler removes a mistaken payment
// @Summary Delete payment
// @Description Remove a payment row and re-roll the invoice's paid totals
// @Tags Payments
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Invoice ID"
// @Param payment_id path int true "Payment ID"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/invoices/{id}/payments/{payment_id} [delete]
func DeletePaymentHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
			return
		}
		paymentID, err := strconv.Atoi(c.Param("payment_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment ID"})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		result, err := tx.Exec(`DELETE FROM payment WHERE id = $1 AND invoice_id = $2`, paymentID, invoiceID)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete payment", "details": err.Error()})
			return
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			tx.Rollback()
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}

		if _, err := rollupPaymentStatus(tx, invoiceID); err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to roll up payment status", "details": err.Error()})
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "payment", paymentID, "deleted", gin.H{"invoice_id": invoiceID}, nil)
		c.JSON(http.StatusOK, gin.H{"message": "Payment deleted"})
	}
}
