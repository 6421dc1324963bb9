package handlers

import (
	"bytes"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func paymentLinkBase() string {
	if base := os.Getenv("PAYMENT_LINK_BASE"); base != "" {
		return base
	}
	return "https://pay.roofline.example.com"
}

// documentHeader draws the shared letterhead block.
func documentHeader(pdf *gofpdf.Fpdf, title, number string, issued time.Time) {
	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(190, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(95, 6, fmt.Sprintf("%s No: %s", title, number))
	pdf.Cell(95, 6, fmt.Sprintf("Date: %s", issued.Format("02-Jan-2006")))
	pdf.Ln(10)
}

// lineItemTable draws the item grid and returns the Y position after it.
func lineItemTable(pdf *gofpdf.Fpdf, rows [][5]string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(75, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Qty", "1", 0, "C", true, 0, "")
	pdf.CellFormat(20, 8, "Unit", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 8, "Unit Price", "1", 0, "C", true, 0, "")
	pdf.CellFormat(40, 8, "Line Total", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, r := range rows {
		desc := r[0]
		if len(desc) > 48 {
			desc = desc[:45] + "..."
		}
		pdf.CellFormat(75, 8, desc, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 8, r[1], "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 8, r[2], "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 8, r[3], "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 8, r[4], "1", 1, "R", false, 0, "")
	}
	pdf.Ln(5)
}

func totalsBlock(pdf *gofpdf.Fpdf, subtotal, discount, taxRate, taxAmount, total float64) {
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(150, 8, "Subtotal")
	pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", subtotal), "1", 1, "R", false, 0, "")
	if discount > 0 {
		pdf.Cell(150, 8, "Discount")
		pdf.CellFormat(40, 8, fmt.Sprintf("-%.2f", discount), "1", 1, "R", false, 0, "")
	}
	pdf.Cell(150, 8, fmt.Sprintf("Tax (%.2f%%)", taxRate*100))
	pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", taxAmount), "1", 1, "R", false, 0, "")
	pdf.Cell(150, 8, "Total")
	pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", total), "1", 1, "R", false, 0, "")
}

func documentFooter(pdf *gofpdf.Fpdf) {
	pdf.SetY(-20)
	pdf.SetFont("Arial", "I", 8)
	pdf.Cell(190, 6, "This is a computer-generated document. No signature required.")
	pdf.Ln(5)
	pdf.Cell(190, 6, "Generated on: "+time.Now().Format("2006-01-02 15:04:05"))
}

// GenerateQuotePDF godoc
// @Summary      Generate quote PDF
// @Tags         Quotes
// @Param        Authorization header string true "Session token"
// @Param        id   path  int  true  "Quote ID"
// @Success      200  "PDF file"
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/quotes/{id}/pdf [get]
func GenerateQuotePDF(db *sql.DB) gin.HandlerFunc {
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
		items, err := fetchQuoteItems(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote items", "details": err.Error()})
			return
		}

		var customerName, address, preparedBy string
		err = db.QueryRow(`
			SELECT l.customer_name, COALESCE(l.address, ''),
				   CONCAT(u.first_name, ' ', u.last_name)
			FROM leads l
			JOIN users u ON u.id = $2
			WHERE l.id = $1`, quote.LeadID, quote.CreatedBy).Scan(&customerName, &address, &preparedBy)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lead details", "details": err.Error()})
			return
		}

		titleCaser := cases.Title(language.Und)

		pdf := gofpdf.New("P", "mm", "A4", "")
		pdf.AddPage()
		pdf.SetMargins(10, 10, 10)
		documentHeader(pdf, "Estimate", quote.Number, quote.CreatedAt)

		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(190, 8, "Prepared For")
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(190, 6, fmt.Sprintf("%s\n%s", customerName, address), "", "", false)
		pdf.Ln(4)
		pdf.Cell(190, 6, "Prepared by: "+preparedBy)
		pdf.Ln(4)
		pdf.Cell(190, 6, "Status: "+titleCaser.String(quote.Status))
		pdf.Ln(10)

		rows := make([][5]string, 0, len(items))
		for _, li := range items {
			rows = append(rows, [5]string{
				li.Description,
				fmt.Sprintf("%.2f", li.Quantity),
				li.Unit,
				fmt.Sprintf("%.2f", li.UnitPrice),
				fmt.Sprintf("%.2f", li.LineTotal),
			})
		}
		lineItemTable(pdf, rows)
		totalsBlock(pdf, quote.Subtotal, quote.DiscountAmount, quote.TaxRate, quote.TaxAmount, quote.TotalAmount)

		pdf.Ln(8)
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(190, 5, "Prices are valid for 30 days from the estimate date. "+
			"Final quantities may vary with field conditions discovered during tear-off.", "", "L", false)

		documentFooter(pdf)

		c.Header("Content-Type", "application/pdf")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=quote_%s.pdf", quote.Number))
		if err := pdf.Output(c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate PDF"})
			return
		}
	}
}

// GenerateInvoicePDF godoc
// @Summary      Generate invoice PDF
// @Description  Render the invoice as a PDF with its payment history and a
// scannable payment link
// @Tags         Invoices
// @Param        Authorization header string true "Session token"
// @Param        id   path  int  true  "Invoice ID"
// @Success      200  "PDF file"
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/invoices/{id}/pdf [get]
func GenerateInvoicePDF(db *sql.DB) gin.HandlerFunc {
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
		items, err := fetchInvoiceItems(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invoice items", "details": err.Error()})
			return
		}

		var customerName, address string
		err = db.QueryRow(`
			SELECT customer_name, COALESCE(address, '') FROM leads WHERE id = $1`,
			inv.LeadID).Scan(&customerName, &address)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lead details", "details": err.Error()})
			return
		}

		type paymentRow struct {
			Amount     float64
			Method     string
			Reference  string
			ReceivedAt time.Time
		}
		var payments []paymentRow
		rows, err := db.Query(`
			SELECT amount, method, COALESCE(reference, ''), received_at
			FROM payment WHERE invoice_id = $1 ORDER BY received_at ASC`, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payments", "details": err.Error()})
			return
		}
		defer rows.Close()
		for rows.Next() {
			var p paymentRow
			if err := rows.Scan(&p.Amount, &p.Method, &p.Reference, &p.ReceivedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan payment", "details": err.Error()})
				return
			}
			payments = append(payments, p)
		}

		titleCaser := cases.Title(language.Und)

		pdf := gofpdf.New("P", "mm", "A4", "")
		pdf.AddPage()
		pdf.SetMargins(10, 10, 10)
		documentHeader(pdf, "Invoice", inv.Number, inv.CreatedAt)

		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(190, 8, "Bill To")
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(190, 6, fmt.Sprintf("%s\n%s", customerName, address), "", "", false)
		if inv.DueDate != nil {
			pdf.Ln(2)
			pdf.SetFont("Arial", "B", 10)
			pdf.Cell(190, 6, "Due Date: "+inv.DueDate.Format("02-Jan-2006"))
		}
		pdf.Ln(10)

		pdfRows := make([][5]string, 0, len(items))
		for _, li := range items {
			pdfRows = append(pdfRows, [5]string{
				li.Description,
				fmt.Sprintf("%.2f", li.Quantity),
				li.Unit,
				fmt.Sprintf("%.2f", li.UnitPrice),
				fmt.Sprintf("%.2f", li.LineTotal),
			})
		}
		lineItemTable(pdf, pdfRows)
		totalsBlock(pdf, inv.Subtotal, inv.DiscountAmount, inv.TaxRate, inv.TaxAmount, inv.TotalAmount)

		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(150, 8, "Amount Paid")
		pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", inv.TotalPaid), "1", 1, "R", false, 0, "")
		pdf.Cell(150, 8, "Balance Due")
		pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", inv.TotalAmount-inv.TotalPaid), "1", 1, "R", false, 0, "")

		pdf.Ln(8)
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(190, 8, "Payment Details:")
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 10)
		if len(payments) == 0 {
			pdf.Cell(190, 6, "Payment Status: "+titleCaser.String(inv.PaymentStatus))
			pdf.Ln(6)
		} else {
			for _, p := range payments {
				pdf.Cell(190, 6, fmt.Sprintf("Ref: %s | Amount: %.2f | Date: %s | Method: %s",
					p.Reference, p.Amount, p.ReceivedAt.Format("02-Jan-2006"), titleCaser.String(p.Method)))
				pdf.Ln(6)
			}
			pdf.Ln(2)
			pdf.SetFont("Arial", "B", 10)
			pdf.Cell(190, 6, fmt.Sprintf("Total Paid: %.2f | Status: %s",
				inv.TotalPaid, titleCaser.String(inv.PaymentStatus)))
			pdf.Ln(6)
		}

		// Scannable payment link for the balance due.
		if inv.PaymentStatus != "paid" {
			link := fmt.Sprintf("%s/invoices/%s", paymentLinkBase(), inv.Number)
			png, err := qrcode.Encode(link, qrcode.Medium, 256)
			if err == nil {
				pdf.RegisterImageOptionsReader("payment_qr",
					gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
				pdf.Ln(4)
				y := pdf.GetY()
				pdf.ImageOptions("payment_qr", 10, y, 35, 35, false,
					gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
				pdf.SetXY(50, y+14)
				pdf.SetFont("Arial", "", 9)
				pdf.Cell(140, 6, "Scan to pay online: "+link)
			}
		}

		documentFooter(pdf)

		c.Header("Content-Type", "application/pdf")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=invoice_%s.pdf", inv.Number))
		if err := pdf.Output(c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate PDF"})
			return
		}
	}
}
