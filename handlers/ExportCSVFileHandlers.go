package handlers

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// ExportLeadsCSV godoc
// @Summary      Export leads as CSV
// @Tags         Export
// @Produce      text/csv
// @Param        Authorization header string true "Session token"
// @Param        status query string false "Filter by status"
// @Success      200  {file}  file  "CSV file"
// @Router       /api/export/leads.csv [get]
func ExportLeadsCSV(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `
			SELECT l.id, l.customer_name, l.email, l.phone, l.address, l.city, l.state,
				   l.zip_code, l.status, l.source,
				   COALESCE(CONCAT(u.first_name, ' ', u.last_name), ''), l.created_at
			FROM leads l
			LEFT JOIN users u ON l.assigned_to = u.id
			WHERE 1=1`
		args := []interface{}{}
		if status := c.Query("status"); status != "" {
			args = append(args, status)
			query += " AND l.status = $" + strconv.Itoa(len(args))
		}
		query += " ORDER BY l.created_at DESC"

		ctx, cancel := utils.GetSlowQueryContext(c.Request.Context())
		defer cancel()
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching leads"})
			return
		}
		defer rows.Close()

		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", "attachment;filename=leads_export.csv")

		writer := csv.NewWriter(c.Writer)
		defer writer.Flush()

		header := []string{"ID", "Customer", "Email", "Phone", "Address", "City", "State", "Zip", "Status", "Source", "AssignedTo", "CreatedAt"}
		if err := writer.Write(header); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error writing CSV header"})
			return
		}

		for rows.Next() {
			var id int
			var customer, email, phone, address, city, state, zip, status, source, assigned string
			var createdAt time.Time
			if err := rows.Scan(&id, &customer, &email, &phone, &address, &city, &state,
				&zip, &status, &source, &assigned, &createdAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Error scanning lead"})
				return
			}
			row := []string{
				strconv.Itoa(id), customer, email, phone, address, city, state, zip,
				status, source, assigned, createdAt.Format("2006-01-02"),
			}
			if err := writer.Write(row); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Error writing CSV row"})
				return
			}
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating leads"})
			return
		}
	}
}

// ExportQuotesCSV godoc
// @Summary      Export quotes as CSV
// @Tags         Export
// @Produce      text/csv
// @Param        Authorization header string true "Session token"
// @Param        status query string false "Filter by status"
// @Success      200  {file}  file  "CSV file"
// @Router       /api/export/quotes.csv [get]
func ExportQuotesCSV(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `
			SELECT q.id, q.number, l.customer_name, q.status, q.subtotal, q.tax_amount,
				   q.discount_amount, q.total_amount, q.created_at
			FROM quote q
			JOIN leads l ON q.lead_id = l.id
			WHERE 1=1`
		args := []interface{}{}
		if status := c.Query("status"); status != "" {
			args = append(args, status)
			query += " AND q.status = $" + strconv.Itoa(len(args))
		}
		query += " ORDER BY q.created_at DESC"

		ctx, cancel := utils.GetSlowQueryContext(c.Request.Context())
		defer cancel()
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching quotes"})
			return
		}
		defer rows.Close()

		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", "attachment;filename=quotes_export.csv")

		writer := csv.NewWriter(c.Writer)
		defer writer.Flush()

		header := []string{"ID", "Number", "Customer", "Status", "Subtotal", "Tax", "Discount", "Total", "CreatedAt"}
		if err := writer.Write(header); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error writing CSV header"})
			return
		}

		for rows.Next() {
			var id int
			var number, customer, status string
			var subtotal, tax, discount, total float64
			var createdAt time.Time
			if err := rows.Scan(&id, &number, &customer, &status, &subtotal, &tax,
				&discount, &total, &createdAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Error scanning quote"})
				return
			}
			row := []string{
				strconv.Itoa(id), number, customer, status,
				fmt.Sprintf("%.2f", subtotal), fmt.Sprintf("%.2f", tax),
				fmt.Sprintf("%.2f", discount), fmt.Sprintf("%.2f", total),
				createdAt.Format("2006-01-02"),
			}
			if err := writer.Write(row); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Error writing CSV row"})
				return
			}
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating quotes"})
			return
		}
	}
}

// ExportMaterialOrdersCSV godoc
// @Summary      Export material orders as CSV
// @Tags         Export
// @Produce      text/csv
// @Param        Authorization header string true "Session token"
// @Param        status query string false "Filter by status"
// @Success      200  {file}  file  "CSV file"
// @Router       /api/export/material_orders.csv [get]
func ExportMaterialOrdersCSV(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `
			SELECT m.id, m.number, l.customer_name, m.supplier_name, m.status,
				   m.subtotal, m.tax_amount, m.total_amount, m.created_at
			FROM material_order m
			JOIN leads l ON m.lead_id = l.id
			WHERE 1=1`
		args := []interface{}{}
		if status := c.Query("status"); status != "" {
			args = append(args, status)
			query += " AND m.status = $" + strconv.Itoa(len(args))
		}
		query += " ORDER BY m.created_at DESC"

		ctx, cancel := utils.GetSlowQueryContext(c.Request.Context())
		defer cancel()
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching material orders"})
			return
		}
		defer rows.Close()

		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", "attachment;filename=material_orders_export.csv")

		writer := csv.NewWriter(c.Writer)
		defer writer.Flush()

		header := []string{"ID", "Number", "Customer", "Supplier", "Status", "Subtotal", "Tax", "Total", "CreatedAt"}
		if err := writer.Write(header); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error writing CSV header"})
			return
		}

		for rows.Next() {
			var id int
			var number, customer, supplier, status string
			var subtotal, tax, total float64
			var createdAt time.Time
			if err := rows.Scan(&id, &number, &customer, &supplier, &status,
				&subtotal, &tax, &total, &createdAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Error scanning material order"})
				return
			}
			row := []string{
				strconv.Itoa(id), number, customer, supplier, status,
				fmt.Sprintf("%.2f", subtotal), fmt.Sprintf("%.2f", tax),
				fmt.Sprintf("%.2f", total), createdAt.Format("2006-01-02"),
			}
			if err := writer.Write(row); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Error writing CSV row"})
				return
			}
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating material orders"})
			return
		}
	}
}

// quoteExportRow is one line of the quotes workbook.
type quoteExportRow struct {
	Number    string
	Customer  string
	Status    string
	Subtotal  float64
	Tax       float64
	Discount  float64
	Total     float64
	CreatedAt time.Time
}

func fetchQuoteExportRows(db *sql.DB, status string) ([]quoteExportRow, error) {
	query := `
		SELECT q.number, l.customer_name, q.status, q.subtotal, q.tax_amount,
			   q.discount_amount, q.total_amount, q.created_at
		FROM quote q
		JOIN leads l ON q.lead_id = l.id
		WHERE 1=1`
	args := []interface{}{}
	if status != "" {
		args = append(args, status)
		query += " AND q.status = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY q.created_at DESC"

	ctx, cancel := utils.GetSlowQueryContext(nil)
	defer cancel()
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []quoteExportRow
	for rows.Next() {
		var r quoteExportRow
		if err := rows.Scan(&r.Number, &r.Customer, &r.Status, &r.Subtotal, &r.Tax,
			&r.Discount, &r.Total, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// buildQuotesWorkbook writes the quotes workbook: a Summary sheet with
// rollup figures and a Quotes sheet with one row per quote.
func buildQuotesWorkbook(quotes []quoteExportRow) (*excelize.File, error) {
	f := excelize.NewFile()

	summarySheet := "Summary"
	index, err := f.NewSheet(summarySheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	var totalValue float64
	byStatus := map[string]int{}
	for _, q := range quotes {
		totalValue += q.Total
		byStatus[q.Status]++
	}

	f.SetCellValue(summarySheet, "A1", "Quote Export Summary")
	f.SetCellValue(summarySheet, "A2", "Exported")
	f.SetCellValue(summarySheet, "B2", time.Now().Format("2006-01-02 15:04:05"))
	f.SetCellValue(summarySheet, "A3", "Total Quotes")
	f.SetCellValue(summarySheet, "B3", len(quotes))
	f.SetCellValue(summarySheet, "A4", "Total Value")
	f.SetCellValue(summarySheet, "B4", totalValue)
	row := 5
	for _, status := range []string{"draft", "sent", "accepted", "declined"} {
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), "Status: "+status)
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), byStatus[status])
		row++
	}

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14, Family: "Arial", Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "left",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, err
	}
	f.SetCellStyle(summarySheet, "A1", "B1", titleStyle)
	f.SetColWidth(summarySheet, "A", "A", 25)
	f.SetColWidth(summarySheet, "B", "B", 22)

	sheetName := "Quotes"
	index, err = f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)

	headers := []string{"Number", "Customer", "Status", "Subtotal", "Tax", "Discount", "Total", "Created"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(sheetName, cell, h)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12, Family: "Arial", Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "#000000", Style: 1},
			{Type: "top", Color: "#000000", Style: 1},
			{Type: "right", Color: "#000000", Style: 1},
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}
	f.SetCellStyle(sheetName, "A1", "H1", headerStyle)
	f.SetRowHeight(sheetName, 1, 25)

	for i, q := range quotes {
		r := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", r), q.Number)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", r), q.Customer)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", r), q.Status)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", r), q.Subtotal)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", r), q.Tax)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", r), q.Discount)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", r), q.Total)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", r), q.CreatedAt.Format("2006-01-02"))
	}

	f.SetColWidth(sheetName, "A", "H", 20)

	return f, nil
}

// ExportQuotesExcel godoc
// @Summary      Export quotes to Excel
// @Description  Build an XLSX workbook of quotes with a summary sheet and
// stream it in the response
// @Tags         Export
// @Param        Authorization header string true "Session token"
// @Param        status query string false "Filter by status"
// @Success      200  {file}  file  "Excel file"
// @Failure      500  {object}  models.ErrorResponse
// @Router       /api/export/quotes.xlsx [get]
func ExportQuotesExcel(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		quotes, err := fetchQuoteExportRows(db, c.Query("status"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching quotes", "details": err.Error()})
			return
		}

		f, err := buildQuotesWorkbook(quotes)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error building workbook", "details": err.Error()})
			return
		}
		defer f.Close()

		filename := fmt.Sprintf("quotes_export_%s.xlsx", time.Now().Format("20060102"))
		escaped := url.PathEscape(filename)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", filename, escaped))
		if err := f.Write(c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error writing Excel file"})
			return
		}
	}
}
