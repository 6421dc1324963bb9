package services

import (
	"errors"
	"math"
	"testing"

	"backend/models"
)

func item(qty, price float64) models.LineItem {
	return models.LineItem{Quantity: qty, UnitPrice: price, LineTotal: LineTotal(qty, price)}
}

func TestComputeTotalsStandard(t *testing.T) {
	tests := []struct {
		name     string
		items    []models.LineItem
		taxRate  float64
		discount float64
		expect   Totals
	}{
		{
			// Quote scenario: subtotal 1000, discount 50, 8% tax.
			name:     "quote with discount and tax",
			items:    []models.LineItem{item(10, 100)},
			taxRate:  0.08,
			discount: 50,
			expect:   Totals{Subtotal: 1000, DiscountAmount: 50, TaxRate: 0.08, TaxAmount: 76, Total: 1026},
		},
		{
			name:   "no discount no tax",
			items:  []models.LineItem{item(2, 25.5), item(1, 49)},
			expect: Totals{Subtotal: 100, Total: 100},
		},
		{
			name:     "discount exceeding subtotal is clamped",
			items:    []models.LineItem{item(1, 100)},
			taxRate:  0.1,
			discount: 250,
			expect:   Totals{Subtotal: 100, DiscountAmount: 100, TaxRate: 0.1, TaxAmount: 0, Total: 0, DiscountClamped: true},
		},
		{
			name:     "negative discount is clamped to zero",
			items:    []models.LineItem{item(1, 100)},
			discount: -20,
			expect:   Totals{Subtotal: 100, DiscountAmount: 0, Total: 100, DiscountClamped: true},
		},
		{
			name:   "empty items",
			items:  nil,
			expect: Totals{},
		},
		{
			// Three dime line items must sum to exactly 0.30.
			name:   "rounding stability",
			items:  []models.LineItem{item(0.1, 1), item(0.1, 1), item(0.1, 1)},
			expect: Totals{Subtotal: 0.3, Total: 0.3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeTotals(tt.items, tt.taxRate, tt.discount, TaxStandard)
			if err != nil {
				t.Fatalf("ComputeTotals returned error: %v", err)
			}
			if got != tt.expect {
				t.Errorf("ComputeTotals = %+v, want %+v", got, tt.expect)
			}
		})
	}
}

func TestComputeTotalsTaxInclusiveSource(t *testing.T) {
	// Invoice built from an accepted quote whose total (2700.00) already
	// includes tax: no re-taxing, whatever rate the caller passes.
	items := []models.LineItem{item(1, 2700)}

	got, err := ComputeTotals(items, 0.08, 0, TaxInclusiveSource)
	if err != nil {
		t.Fatalf("ComputeTotals returned error: %v", err)
	}
	want := Totals{Subtotal: 2700, TaxRate: 0, TaxAmount: 0, Total: 2700}
	if got != want {
		t.Errorf("ComputeTotals = %+v, want %+v", got, want)
	}

	// A discount on the source document was already baked into its total,
	// so the inclusive path must ignore it along with the rate.
	got, err = ComputeTotals(items, 0.08, 150, TaxInclusiveSource)
	if err != nil {
		t.Fatalf("ComputeTotals returned error: %v", err)
	}
	if got != want {
		t.Errorf("ComputeTotals with discount = %+v, want %+v", got, want)
	}
}

func TestComputeTotalsModeExclusivity(t *testing.T) {
	// The two modes must diverge whenever rate > 0 and subtotal > 0,
	// proving they are not accidentally aliased.
	items := []models.LineItem{item(3, 100), item(2, 45.5)}

	std, err := ComputeTotals(items, 0.07, 10, TaxStandard)
	if err != nil {
		t.Fatalf("standard mode error: %v", err)
	}
	incl, err := ComputeTotals(items, 0.07, 10, TaxInclusiveSource)
	if err != nil {
		t.Fatalf("inclusive mode error: %v", err)
	}
	if std.Total == incl.Total {
		t.Errorf("modes aliased: both totals = %v", std.Total)
	}
}

func TestComputeTotalsIdempotent(t *testing.T) {
	items := []models.LineItem{item(10, 38.5), item(6, 85)}
	first, err := ComputeTotals(items, 0.08, 25, TaxStandard)
	if err != nil {
		t.Fatalf("ComputeTotals returned error: %v", err)
	}
	second, err := ComputeTotals(items, 0.08, 25, TaxStandard)
	if err != nil {
		t.Fatalf("ComputeTotals returned error: %v", err)
	}
	if first != second {
		t.Errorf("not idempotent: %+v vs %+v", first, second)
	}
}

func TestComputeTotalsMonotonic(t *testing.T) {
	// Increasing any quantity or unit price never decreases the total.
	base := []models.LineItem{item(10, 38.5), item(6, 85)}
	baseTotals, err := ComputeTotals(base, 0.08, 25, TaxStandard)
	if err != nil {
		t.Fatalf("ComputeTotals returned error: %v", err)
	}

	bumps := [][]models.LineItem{
		{item(11, 38.5), item(6, 85)},
		{item(10, 40), item(6, 85)},
		{item(10, 38.5), item(6, 90)},
		{item(10, 38.5), item(7, 85)},
	}
	for i, bumped := range bumps {
		got, err := ComputeTotals(bumped, 0.08, 25, TaxStandard)
		if err != nil {
			t.Fatalf("ComputeTotals returned error: %v", err)
		}
		if got.Total < baseTotals.Total {
			t.Errorf("bump %d decreased total: %v -> %v", i, baseTotals.Total, got.Total)
		}
	}
}

func TestComputeTotalsRejectsPercentRate(t *testing.T) {
	// 8 passed where 0.08 was meant: the percent/decimal mixup must be
	// rejected, not silently produce an 800% tax.
	_, err := ComputeTotals([]models.LineItem{item(1, 100)}, 8, 0, TaxStandard)
	if !errors.Is(err, ErrTaxRateOutOfRange) {
		t.Fatalf("expected ErrTaxRateOutOfRange, got %v", err)
	}
	_, err = ComputeTotals([]models.LineItem{item(1, 100)}, -0.05, 0, TaxStandard)
	if !errors.Is(err, ErrTaxRateOutOfRange) {
		t.Fatalf("expected ErrTaxRateOutOfRange for negative rate, got %v", err)
	}
}

func TestComputeTotalsUnknownMode(t *testing.T) {
	_, err := ComputeTotals([]models.LineItem{item(1, 100)}, 0.05, 0, TaxMode(42))
	if !errors.Is(err, ErrUnknownTaxMode) {
		t.Fatalf("expected ErrUnknownTaxMode, got %v", err)
	}
}

func TestComputeTotalsRoundsOnlyAtOutput(t *testing.T) {
	// 100 items of 0.333 * 1.00: per-line rounding would give 33.00,
	// aggregate-then-round gives 33.30.
	items := make([]models.LineItem, 100)
	for i := range items {
		items[i] = item(0.333, 1)
	}
	got, err := ComputeTotals(items, 0, 0, TaxStandard)
	if err != nil {
		t.Fatalf("ComputeTotals returned error: %v", err)
	}
	if math.Abs(got.Subtotal-33.3) > 1e-9 {
		t.Errorf("Subtotal = %v, want 33.30", got.Subtotal)
	}
}

func TestTaxModeForSource(t *testing.T) {
	if TaxModeForSource("quote") != TaxInclusiveSource {
		t.Error("quote source must map to TaxInclusiveSource")
	}
	if TaxModeForSource("standalone") != TaxStandard {
		t.Error("standalone source must map to TaxStandard")
	}
}

func TestValidateTaxMode(t *testing.T) {
	if err := ValidateTaxMode("quote", TaxInclusiveSource); err != nil {
		t.Errorf("matching provenance rejected: %v", err)
	}
	if err := ValidateTaxMode("standalone", TaxStandard); err != nil {
		t.Errorf("matching provenance rejected: %v", err)
	}
	if err := ValidateTaxMode("quote", TaxStandard); !errors.Is(err, ErrAmbiguousTaxMode) {
		t.Errorf("expected ErrAmbiguousTaxMode, got %v", err)
	}
	if err := ValidateTaxMode("standalone", TaxInclusiveSource); !errors.Is(err, ErrAmbiguousTaxMode) {
		t.Errorf("expected ErrAmbiguousTaxMode, got %v", err)
	}
}

func TestLineTotal(t *testing.T) {
	tests := []struct {
		qty, price, expect float64
	}{
		{60, 45, 2700},
		{0, 52, 0},
		{2.5, 38.5, 96.25},
		{0.1, 1, 0.1},
	}
	for _, tt := range tests {
		if got := LineTotal(tt.qty, tt.price); got != tt.expect {
			t.Errorf("LineTotal(%v, %v) = %v, want %v", tt.qty, tt.price, got, tt.expect)
		}
	}
}
