package services

import (
	"fmt"

	"backend/models"
)

// LineItemChange pairs the before and after snapshots of a modified item.
type LineItemChange struct {
	Before models.LineItem `json:"before"`
	After  models.LineItem `json:"after"`
}

// ComparisonResult is the diff of two line-item sets, e.g. a signed
// contract against the current estimate. Unchanged items appear in none
// of the lists. TotalChange is computed independently of the per-item
// lists from the two sums, so the lists and the figure cross-check.
type ComparisonResult struct {
	AddedItems    []models.LineItem `json:"added_items"`
	RemovedItems  []models.LineItem `json:"removed_items"`
	ModifiedItems []LineItemChange  `json:"modified_items"`
	TotalChange   float64           `json:"total_change" example:"500.00"`
}

// itemKey returns the identity used to match items across the two sets:
// the originating template item when present, then the material
// reference, then the exact description.
func itemKey(item models.LineItem) string {
	if item.TemplateItemID > 0 {
		return fmt.Sprintf("t:%d", item.TemplateItemID)
	}
	if item.MaterialID > 0 {
		return fmt.Sprintf("m:%d", item.MaterialID)
	}
	return "d:" + item.Description
}

// CompareLineItemSets diffs two ordered line-item collections.
// Items only in after are added, only in before removed, and present in
// both with a different quantity or unit price modified.
func CompareLineItemSets(before, after []models.LineItem) ComparisonResult {
	result := ComparisonResult{
		AddedItems:    []models.LineItem{},
		RemovedItems:  []models.LineItem{},
		ModifiedItems: []LineItemChange{},
	}

	beforeByKey := make(map[string]models.LineItem, len(before))
	for _, item := range before {
		beforeByKey[itemKey(item)] = item
	}

	seen := make(map[string]bool, len(after))
	for _, item := range after {
		key := itemKey(item)
		seen[key] = true
		prev, ok := beforeByKey[key]
		if !ok {
			result.AddedItems = append(result.AddedItems, item)
			continue
		}
		if prev.Quantity != item.Quantity || prev.UnitPrice != item.UnitPrice {
			result.ModifiedItems = append(result.ModifiedItems, LineItemChange{Before: prev, After: item})
		}
	}

	for _, item := range before {
		if !seen[itemKey(item)] {
			result.RemovedItems = append(result.RemovedItems, item)
		}
	}

	var beforeSum, afterSum float64
	for _, item := range before {
		beforeSum += item.Quantity * item.UnitPrice
	}
	for _, item := range after {
		afterSum += item.Quantity * item.UnitPrice
	}
	result.TotalChange = Round2(afterSum - beforeSum)

	return result
}
