package services

import (
	"backend/models"
)

// PriceLookup resolves a location-specific override price for a material.
// It returns false when no override exists for the material.
type PriceLookup func(materialID int) (float64, bool)

// ResolveUnitPrice applies the three-tier price fallback for a template
// item, in this exact priority order:
//
//  1. location override supplied by lookup
//  2. the referenced material's current catalog cost
//  3. the template item's default unit cost
//
// and 0 when none apply.
func ResolveUnitPrice(item models.TemplateItem, lookup PriceLookup) float64 {
	if lookup != nil && item.MaterialID > 0 {
		if price, ok := lookup(item.MaterialID); ok {
			return price
		}
	}
	if item.CurrentCost > 0 {
		return item.CurrentCost
	}
	if item.DefaultUnitCost > 0 {
		return item.DefaultUnitCost
	}
	return 0
}

// ExpandTemplate turns the template items into concrete line items with
// quantities calculated from the measurement snapshot.
//
// Every template item produces a line item, including those whose
// calculated quantity is 0 - the user sees the row and corrects it
// manually, nothing is silently dropped. An empty template returns an
// empty slice and a nil error; the caller surfaces "template has no
// items" as an informational condition.
//
// Sort orders are assigned sequentially from nextSortOrder, which the
// caller sets to the target document's current max sort_order + 1
// (append semantics: existing items are never renumbered or replaced).
func ExpandTemplate(items []models.TemplateItem, m models.Measurement, nextSortOrder int, lookup PriceLookup) ([]models.LineItem, error) {
	lineItems := make([]models.LineItem, 0, len(items))
	for i, item := range items {
		qty, err := CalculateQuantity(MeasurementType(item.MeasurementType), item.PerUnitQuantity, m)
		if err != nil {
			return nil, err
		}
		unitPrice := ResolveUnitPrice(item, lookup)
		lineItems = append(lineItems, models.LineItem{
			Category:       item.Category,
			Description:    item.Description,
			Quantity:       qty,
			Unit:           item.Unit,
			UnitPrice:      unitPrice,
			LineTotal:      LineTotal(qty, unitPrice),
			SortOrder:      nextSortOrder + i,
			TemplateItemID: item.ID,
			MaterialID:     item.MaterialID,
		})
	}
	return lineItems, nil
}
