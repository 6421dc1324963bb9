package repository

import (
	"database/sql"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"backend/models"
)

// Document number prefixes. Numbers look like "QT-000042" and come from a
// per-prefix row in the document_sequence table so they never repeat even
// across deletes.
const (
	QuotePrefix         = "QT"
	InvoicePrefix       = "INV"
	MaterialOrderPrefix = "MO"
	WorkOrderPrefix     = "WO"
)

// NextDocumentNumber reserves and returns the next number for a prefix
// inside the caller's transaction, so a rolled-back create does not burn
// a visible gap mid-sequence.
func NextDocumentNumber(tx *sql.Tx, prefix string) (string, error) {
	var seq int
	err := tx.QueryRow(`
		INSERT INTO document_sequence (prefix, last_value)
		VALUES ($1, 1)
		ON CONFLICT (prefix) DO UPDATE SET last_value = document_sequence.last_value + 1
		RETURNING last_value`, prefix).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("failed to reserve %s number: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%06d", prefix, seq), nil
}

// GenerateVersionCode returns the revision code following previousVersion.
// An empty previous version starts the sequence at "RV-01".
func GenerateVersionCode(previousVersion string) string {
	if previousVersion == "" {
		return "RV-01"
	}

	versionNumberStr := strings.TrimPrefix(previousVersion, "RV-")
	versionNumber, err := strconv.Atoi(versionNumberStr)
	if err != nil {
		return "RV-01"
	}

	return "RV-" + fmt.Sprintf("%02d", versionNumber+1)
}

// GenerateRandomCode returns a short human-readable code, used for payment
// references when none is supplied.
func GenerateRandomCode() string {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	letters := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	prefix := string(letters[rng.Intn(len(letters))]) + string(letters[rng.Intn(len(letters))])
	number := rng.Intn(90000) + 10000

	return fmt.Sprintf("%s%d", prefix, number)
}

// FetchLatestMeasurement returns the most recent measurement snapshot for a
// lead. sql.ErrNoRows passes through when the lead has never been measured.
func FetchLatestMeasurement(db *sql.DB, leadID int) (*models.Measurement, error) {
	query := `
		SELECT id, lead_id, total_squares, actual_squares, hip_feet, ridge_feet,
			   valley_feet, rake_feet, eave_feet, roof_pitch, roof_complexity,
			   created_by, created_at
		FROM measurement
		WHERE lead_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var m models.Measurement
	err := db.QueryRow(query, leadID).Scan(
		&m.ID, &m.LeadID, &m.TotalSquares, &m.ActualSquares, &m.HipFeet,
		&m.RidgeFeet, &m.ValleyFeet, &m.RakeFeet, &m.EaveFeet, &m.RoofPitch,
		&m.RoofComplexity, &m.CreatedBy, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FetchTemplateItems returns a template's items in sort order, joined with
// the catalog's current cost for priced materials.
func FetchTemplateItems(db *sql.DB, templateID int) ([]models.TemplateItem, error) {
	query := `
		SELECT ti.id, ti.template_id, COALESCE(ti.material_id, 0), ti.category,
			   ti.description, ti.measurement_type, ti.per_unit_quantity,
			   ti.unit, ti.default_unit_cost, ti.sort_order,
			   COALESCE(m.current_cost, 0)
		FROM template_item ti
		LEFT JOIN material m ON m.id = ti.material_id AND m.active = true
		WHERE ti.template_id = $1
		ORDER BY ti.sort_order, ti.id
	`
	rows, err := db.Query(query, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch template items: %w", err)
	}
	defer rows.Close()

	items := []models.TemplateItem{}
	for rows.Next() {
		var it models.TemplateItem
		err := rows.Scan(&it.ID, &it.TemplateID, &it.MaterialID, &it.Category,
			&it.Description, &it.MeasurementType, &it.PerUnitQuantity,
			&it.Unit, &it.DefaultUnitCost, &it.SortOrder, &it.CurrentCost)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// LocationPriceLookup returns a price lookup closure over a branch's
// material price overrides. A zero location yields a lookup that never
// matches, so callers fall through to catalog pricing.
func LocationPriceLookup(db *sql.DB, locationID int) (func(materialID int) (float64, bool), error) {
	if locationID == 0 {
		return func(int) (float64, bool) { return 0, false }, nil
	}

	rows, err := db.Query(`
		SELECT material_id, price FROM material_location_price WHERE location_id = $1`, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch location prices: %w", err)
	}
	defer rows.Close()

	prices := map[int]float64{}
	for rows.Next() {
		var materialID int
		var price float64
		if err := rows.Scan(&materialID, &price); err != nil {
			return nil, fmt.Errorf("failed to scan location price: %w", err)
		}
		prices[materialID] = price
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return func(materialID int) (float64, bool) {
		price, ok := prices[materialID]
		return price, ok
	}, nil
}

// MaxSortOrder returns the highest sort_order among a document's line items,
// or 0 for an empty document. itemTable is one of quote_item,
// material_order_item or work_order_item; parentColumn names its FK.
func MaxSortOrder(db *sql.DB, itemTable, parentColumn string, parentID int) (int, error) {
	switch itemTable {
	case "quote_item", "material_order_item", "work_order_item":
	default:
		return 0, fmt.Errorf("unknown item table: %s", itemTable)
	}
	switch parentColumn {
	case "quote_id", "material_order_id", "work_order_id":
	default:
		return 0, fmt.Errorf("unknown parent column: %s", parentColumn)
	}

	var max int
	query := fmt.Sprintf(`SELECT COALESCE(MAX(sort_order), 0) FROM %s WHERE %s = $1`, itemTable, parentColumn)
	err := db.QueryRow(query, parentID).Scan(&max)
	return max, err
}
