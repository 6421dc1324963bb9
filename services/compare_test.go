package services

import (
	"math"
	"testing"

	"backend/models"
)

func TestCompareLineItemSetsScenario(t *testing.T) {
	// Contract at 5000, current estimate at 5500: one 500 item added.
	before := []models.LineItem{
		{TemplateItemID: 1, Description: "Shingles", Quantity: 100, UnitPrice: 50},
	}
	after := []models.LineItem{
		{TemplateItemID: 1, Description: "Shingles", Quantity: 100, UnitPrice: 50},
		{TemplateItemID: 2, Description: "Skylight flashing kit", Quantity: 1, UnitPrice: 500},
	}

	got := CompareLineItemSets(before, after)
	if len(got.AddedItems) != 1 {
		t.Fatalf("AddedItems = %d, want 1", len(got.AddedItems))
	}
	if len(got.RemovedItems) != 0 || len(got.ModifiedItems) != 0 {
		t.Fatalf("unexpected removed/modified items: %+v", got)
	}
	if got.TotalChange != 500 {
		t.Errorf("TotalChange = %v, want 500", got.TotalChange)
	}
}

func TestCompareLineItemSets(t *testing.T) {
	tests := []struct {
		name           string
		before, after  []models.LineItem
		added, removed int
		modified       int
		totalChange    float64
	}{
		{
			name:        "identical sets",
			before:      []models.LineItem{{MaterialID: 1, Quantity: 10, UnitPrice: 40}},
			after:       []models.LineItem{{MaterialID: 1, Quantity: 10, UnitPrice: 40}},
			totalChange: 0,
		},
		{
			name:        "quantity change is a modification",
			before:      []models.LineItem{{MaterialID: 1, Quantity: 10, UnitPrice: 40}},
			after:       []models.LineItem{{MaterialID: 1, Quantity: 12, UnitPrice: 40}},
			modified:    1,
			totalChange: 80,
		},
		{
			name:        "price change is a modification",
			before:      []models.LineItem{{MaterialID: 1, Quantity: 10, UnitPrice: 40}},
			after:       []models.LineItem{{MaterialID: 1, Quantity: 10, UnitPrice: 38}},
			modified:    1,
			totalChange: -20,
		},
		{
			name:        "removed item",
			before:      []models.LineItem{{MaterialID: 1, Quantity: 10, UnitPrice: 40}, {MaterialID: 2, Quantity: 1, UnitPrice: 250}},
			after:       []models.LineItem{{MaterialID: 1, Quantity: 10, UnitPrice: 40}},
			removed:     1,
			totalChange: -250,
		},
		{
			name:        "description fallback matching",
			before:      []models.LineItem{{Description: "Dump fees", Quantity: 1, UnitPrice: 300}},
			after:       []models.LineItem{{Description: "Dump fees", Quantity: 1, UnitPrice: 350}},
			modified:    1,
			totalChange: 50,
		},
		{
			name:        "empty before",
			after:       []models.LineItem{{Description: "Permit", Quantity: 1, UnitPrice: 250}},
			added:       1,
			totalChange: 250,
		},
		{
			name:        "empty after",
			before:      []models.LineItem{{Description: "Permit", Quantity: 1, UnitPrice: 250}},
			removed:     1,
			totalChange: -250,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareLineItemSets(tt.before, tt.after)
			if len(got.AddedItems) != tt.added {
				t.Errorf("AddedItems = %d, want %d", len(got.AddedItems), tt.added)
			}
			if len(got.RemovedItems) != tt.removed {
				t.Errorf("RemovedItems = %d, want %d", len(got.RemovedItems), tt.removed)
			}
			if len(got.ModifiedItems) != tt.modified {
				t.Errorf("ModifiedItems = %d, want %d", len(got.ModifiedItems), tt.modified)
			}
			if math.Abs(got.TotalChange-tt.totalChange) > 0.01 {
				t.Errorf("TotalChange = %v, want %v", got.TotalChange, tt.totalChange)
			}
		})
	}
}

func TestCompareReconciliation(t *testing.T) {
	// TotalChange must equal the sum of per-item deltas across the three
	// lists, within a cent.
	before := []models.LineItem{
		{TemplateItemID: 1, Quantity: 66, UnitPrice: 38.5},
		{TemplateItemID: 2, Quantity: 16, UnitPrice: 52.25},
		{Description: "Dump fees", Quantity: 1, UnitPrice: 300},
	}
	after := []models.LineItem{
		{TemplateItemID: 1, Quantity: 72, UnitPrice: 38.5},
		{Description: "Dump fees", Quantity: 1, UnitPrice: 350},
		{MaterialID: 9, Description: "Ice & water shield", Quantity: 4, UnitPrice: 62.99},
	}

	got := CompareLineItemSets(before, after)

	var fromLists float64
	for _, li := range got.AddedItems {
		fromLists += li.Quantity * li.UnitPrice
	}
	for _, li := range got.RemovedItems {
		fromLists -= li.Quantity * li.UnitPrice
	}
	for _, ch := range got.ModifiedItems {
		fromLists += ch.After.Quantity*ch.After.UnitPrice - ch.Before.Quantity*ch.Before.UnitPrice
	}

	if math.Abs(got.TotalChange-fromLists) > 0.01 {
		t.Errorf("TotalChange %v does not reconcile with per-item deltas %v", got.TotalChange, fromLists)
	}
}

func TestCompareModifiedKeepsBothSnapshots(t *testing.T) {
	before := []models.LineItem{{MaterialID: 4, Quantity: 10, UnitPrice: 40}}
	after := []models.LineItem{{MaterialID: 4, Quantity: 14, UnitPrice: 42}}

	got := CompareLineItemSets(before, after)
	if len(got.ModifiedItems) != 1 {
		t.Fatalf("ModifiedItems = %d, want 1", len(got.ModifiedItems))
	}
	ch := got.ModifiedItems[0]
	if ch.Before.Quantity != 10 || ch.After.Quantity != 14 {
		t.Errorf("snapshots wrong: before=%+v after=%+v", ch.Before, ch.After)
	}
}
