package handlers

import (
	"bytes"
	"database/sql"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"
)

func drawLabel(img *image.RGBA, x, y int, label string, bold bool) {
	face := inconsolata.Regular8x16
	col := color.RGBA{0, 0, 0, 255}
	if bold {
		face = inconsolata.Bold8x16
		col = color.RGBA{30, 30, 30, 255}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.Int26_6(x * 64),
			Y: fixed.Int26_6(y * 64),
		},
	}
	d.DrawString(label)
}

func truncateLabel(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

// GenerateInvoiceQRCodeJPEG godoc
// @Summary      Generate invoice QR label
// @Description  Render a printable JPEG label: a QR code pointing at the
// online payment page plus the invoice number, customer, and balance due.
// Field crews leave these with the customer at handover.
// @Tags         Invoices
// @Param        Authorization header string true "Session token"
// @Param        id   path      int  true  "Invoice ID"
// @Success      200  {file}    file  "JPEG image"
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/invoices/{id}/qr [get]
func GenerateInvoiceQRCodeJPEG(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
			return
		}

		var number, paymentStatus, customerName string
		var totalAmount, totalPaid float64
		var dueDate sql.NullTime
		err = db.QueryRow(`
			SELECT i.number, i.payment_status, i.total_amount, i.total_paid,
				   i.due_date, l.customer_name
			FROM invoice i
			JOIN leads l ON i.lead_id = l.id
			WHERE i.id = $1`, id).Scan(
			&number, &paymentStatus, &totalAmount, &totalPaid, &dueDate, &customerName)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invoice", "details": err.Error()})
			return
		}

		link := fmt.Sprintf("%s/invoices/%s", paymentLinkBase(), number)
		qr, err := qrcode.New(link, qrcode.Medium)
		if err != nil {
			c.String(http.StatusInternalServerError, "QR code generation failed")
			return
		}
		qrImg := qr.Image(512)

		qrSize := qrImg.Bounds().Dy()
		padding := 30
		lineHeight := 28
		textAreaHeight := 4*lineHeight + padding
		totalHeight := qrSize + padding + textAreaHeight

		combined := image.NewRGBA(image.Rect(0, 0, qrSize, totalHeight))
		draw.Draw(combined, combined.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
		draw.Draw(combined, image.Rect(0, 0, qrSize, qrSize), qrImg, image.Point{}, draw.Src)

		separatorY := qrSize + padding/2
		for x := 0; x < qrSize; x++ {
			combined.Set(x, separatorY, color.RGBA{200, 200, 200, 255})
		}

		dueDateStr := "On receipt"
		if dueDate.Valid {
			dueDateStr = dueDate.Time.Format("2006-01-02")
		}

		startY := qrSize + padding + lineHeight
		xPos := 20

		drawLabel(combined, xPos, startY, "Invoice:", true)
		drawLabel(combined, xPos+140, startY, number, false)

		drawLabel(combined, xPos, startY+lineHeight, "Customer:", true)
		drawLabel(combined, xPos+140, startY+lineHeight, truncateLabel(customerName, 30), false)

		drawLabel(combined, xPos, startY+2*lineHeight, "Balance Due:", true)
		drawLabel(combined, xPos+140, startY+2*lineHeight,
			fmt.Sprintf("%.2f (%s)", totalAmount-totalPaid, paymentStatus), false)

		drawLabel(combined, xPos, startY+3*lineHeight, "Due Date:", true)
		drawLabel(combined, xPos+140, startY+3*lineHeight, dueDateStr, false)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, combined, nil); err != nil {
			c.String(http.StatusInternalServerError, "JPEG encoding failed")
			return
		}

		c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
	}
}

// GenerateWorkOrderQRCodeJPEG godoc
// @Summary      Generate work order QR label
// @Description  Render a printable JPEG label for the job site: a QR code
// with the work order number plus crew and schedule details
// @Tags         WorkOrders
// @Param        Authorization header string true "Session token"
// @Param        id   path      int  true  "Work order ID"
// @Success      200  {file}    file  "JPEG image"
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/work_orders/{id}/qr [get]
func GenerateWorkOrderQRCodeJPEG(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid work order ID"})
			return
		}

		var number, status, crewName, customerName, address string
		var scheduledDate sql.NullTime
		err = db.QueryRow(`
			SELECT w.number, w.status, w.crew_name, w.scheduled_date,
				   l.customer_name, COALESCE(l.address, '')
			FROM work_order w
			JOIN leads l ON w.lead_id = l.id
			WHERE w.id = $1`, id).Scan(
			&number, &status, &crewName, &scheduledDate, &customerName, &address)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "Work order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch work order", "details": err.Error()})
			return
		}

		qr, err := qrcode.New(number, qrcode.Medium)
		if err != nil {
			c.String(http.StatusInternalServerError, "QR code generation failed")
			return
		}
		qrImg := qr.Image(512)

		qrSize := qrImg.Bounds().Dy()
		padding := 30
		lineHeight := 28
		textAreaHeight := 5*lineHeight + padding
		totalHeight := qrSize + padding + textAreaHeight

		combined := image.NewRGBA(image.Rect(0, 0, qrSize, totalHeight))
		draw.Draw(combined, combined.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
		draw.Draw(combined, image.Rect(0, 0, qrSize, qrSize), qrImg, image.Point{}, draw.Src)

		separatorY := qrSize + padding/2
		for x := 0; x < qrSize; x++ {
			combined.Set(x, separatorY, color.RGBA{200, 200, 200, 255})
		}

		scheduledStr := "Unscheduled"
		if scheduledDate.Valid {
			scheduledStr = scheduledDate.Time.Format("2006-01-02")
		}

		startY := qrSize + padding + lineHeight
		xPos := 20

		drawLabel(combined, xPos, startY, "Work Order:", true)
		drawLabel(combined, xPos+140, startY, number, false)

		drawLabel(combined, xPos, startY+lineHeight, "Customer:", true)
		drawLabel(combined, xPos+140, startY+lineHeight, truncateLabel(customerName, 30), false)

		drawLabel(combined, xPos, startY+2*lineHeight, "Address:", true)
		drawLabel(combined, xPos+140, startY+2*lineHeight, truncateLabel(address, 30), false)

		drawLabel(combined, xPos, startY+3*lineHeight, "Crew:", true)
		drawLabel(combined, xPos+140, startY+3*lineHeight, truncateLabel(crewName, 25), false)

		drawLabel(combined, xPos, startY+4*lineHeight, "Scheduled:", true)
		drawLabel(combined, xPos+140, startY+4*lineHeight,
			fmt.Sprintf("%s (%s)", scheduledStr, status), false)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, combined, nil); err != nil {
			c.String(http.StatusInternalServerError, "JPEG encoding failed")
			return
		}

		c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
	}
}
