package services

import (
	"errors"
	"testing"

	"backend/models"
)

func TestExpandTemplateScenario(t *testing.T) {
	// One "squares" item at 3 bundles per square against 20 actual squares.
	items := []models.TemplateItem{
		{ID: 7, Description: "Architectural Shingles", MeasurementType: "squares", PerUnitQuantity: 3, Unit: "bundle", DefaultUnitCost: 45.00, Category: "materials"},
	}
	m := models.Measurement{ActualSquares: 20}

	got, err := ExpandTemplate(items, m, 1, nil)
	if err != nil {
		t.Fatalf("ExpandTemplate returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(got))
	}
	li := got[0]
	if li.Quantity != 60 {
		t.Errorf("Quantity = %v, want 60", li.Quantity)
	}
	if li.UnitPrice != 45.00 {
		t.Errorf("UnitPrice = %v, want 45.00", li.UnitPrice)
	}
	if li.LineTotal != 2700.00 {
		t.Errorf("LineTotal = %v, want 2700.00", li.LineTotal)
	}
	if li.TemplateItemID != 7 {
		t.Errorf("TemplateItemID = %v, want 7", li.TemplateItemID)
	}
}

func TestExpandTemplateCompleteness(t *testing.T) {
	// No item is ever dropped, even against an all-zero measurement.
	items := []models.TemplateItem{
		{Description: "Shingles", MeasurementType: "squares", PerUnitQuantity: 3, DefaultUnitCost: 45},
		{Description: "Hip & Ridge Cap", MeasurementType: "hip_ridge_total", PerUnitQuantity: 2, DefaultUnitCost: 52},
		{Description: "Drip Edge", MeasurementType: "perimeter_total", PerUnitQuantity: 0.1, DefaultUnitCost: 14},
		{Description: "Permit", MeasurementType: "fixed", PerUnitQuantity: 1, DefaultUnitCost: 250},
		{Description: "Misc", MeasurementType: "other", PerUnitQuantity: 0, DefaultUnitCost: 0},
	}

	measurements := []models.Measurement{
		{},
		{ActualSquares: 20, HipFeet: 40, RidgeFeet: 35, RakeFeet: 60, EaveFeet: 90},
	}

	for _, m := range measurements {
		got, err := ExpandTemplate(items, m, 1, nil)
		if err != nil {
			t.Fatalf("ExpandTemplate returned error: %v", err)
		}
		if len(got) != len(items) {
			t.Fatalf("expected %d line items, got %d", len(items), len(got))
		}
	}
}

func TestExpandTemplateZeroQuantityEmitted(t *testing.T) {
	// Scenario: all-zero measurement, hip_ridge item at factor 2.
	items := []models.TemplateItem{
		{Description: "Hip & Ridge Cap", MeasurementType: "hip_ridge_total", PerUnitQuantity: 2, DefaultUnitCost: 52, Unit: "bundle"},
	}
	got, err := ExpandTemplate(items, models.Measurement{}, 1, nil)
	if err != nil {
		t.Fatalf("ExpandTemplate returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("zero-quantity item was dropped")
	}
	if got[0].Quantity != 0 {
		t.Errorf("Quantity = %v, want 0", got[0].Quantity)
	}
	if got[0].UnitPrice != 52 {
		t.Errorf("UnitPrice = %v, want 52 (default cost still applied)", got[0].UnitPrice)
	}
}

func TestExpandTemplateEmpty(t *testing.T) {
	got, err := ExpandTemplate(nil, models.Measurement{ActualSquares: 20}, 1, nil)
	if err != nil {
		t.Fatalf("empty template must not be an error, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d items", len(got))
	}
}

func TestExpandTemplateSortOrderAppend(t *testing.T) {
	items := []models.TemplateItem{
		{Description: "A", MeasurementType: "fixed", PerUnitQuantity: 1},
		{Description: "B", MeasurementType: "fixed", PerUnitQuantity: 1},
		{Description: "C", MeasurementType: "fixed", PerUnitQuantity: 1},
	}
	got, err := ExpandTemplate(items, models.Measurement{}, 5, nil)
	if err != nil {
		t.Fatalf("ExpandTemplate returned error: %v", err)
	}
	for i, li := range got {
		if want := 5 + i; li.SortOrder != want {
			t.Errorf("item %d SortOrder = %d, want %d", i, li.SortOrder, want)
		}
	}
}

func TestExpandTemplateInvalidItemFailsFast(t *testing.T) {
	items := []models.TemplateItem{
		{Description: "OK", MeasurementType: "squares", PerUnitQuantity: 1},
		{Description: "Broken", MeasurementType: "cubits", PerUnitQuantity: 1},
	}
	_, err := ExpandTemplate(items, models.Measurement{TotalSquares: 10}, 1, nil)
	if !errors.Is(err, ErrInvalidMeasurementType) {
		t.Fatalf("expected ErrInvalidMeasurementType, got %v", err)
	}
}

func TestResolveUnitPrice(t *testing.T) {
	override := func(materialID int) (float64, bool) {
		if materialID == 3 {
			return 36.75, true
		}
		return 0, false
	}

	tests := []struct {
		name   string
		item   models.TemplateItem
		lookup PriceLookup
		expect float64
	}{
		{"location override wins", models.TemplateItem{MaterialID: 3, CurrentCost: 38.50, DefaultUnitCost: 45}, override, 36.75},
		{"current cost beats default", models.TemplateItem{MaterialID: 9, CurrentCost: 38.50, DefaultUnitCost: 45}, override, 38.50},
		{"default when no catalog cost", models.TemplateItem{MaterialID: 9, DefaultUnitCost: 45}, override, 45},
		{"no lookup falls through to current cost", models.TemplateItem{MaterialID: 3, CurrentCost: 38.50}, nil, 38.50},
		{"labor item without material", models.TemplateItem{DefaultUnitCost: 85}, override, 85},
		{"nothing resolves to zero", models.TemplateItem{}, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveUnitPrice(tt.item, tt.lookup); got != tt.expect {
				t.Errorf("ResolveUnitPrice = %v, want %v", got, tt.expect)
			}
		})
	}
}
