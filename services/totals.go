package services

import (
	"errors"
	"fmt"

	"backend/models"
)

// TaxMode selects how ComputeTotals treats tax for a document.
type TaxMode int

const (
	// TaxStandard applies the tax rate to the discounted subtotal.
	// Used for quotes, material orders and standalone invoices.
	TaxStandard TaxMode = iota

	// TaxInclusiveSource is used when the line items were derived from an
	// already-tax-inclusive source, e.g. an invoice built from an
	// accepted quote: the quote's total already includes tax, so tax
	// must not be applied again.
	TaxInclusiveSource
)

// Totals is the computed money summary for a line-item document.
// It is a value object - handlers persist the fields onto the owning
// quote/invoice/order row.
type Totals struct {
	Subtotal       float64 `json:"subtotal" example:"1000.00"`
	DiscountAmount float64 `json:"discount_amount" example:"50.00"`
	TaxRate        float64 `json:"tax_rate" example:"0.08"`
	TaxAmount      float64 `json:"tax_amount" example:"76.00"`
	Total          float64 `json:"total" example:"1026.00"`

	// DiscountClamped is set when the requested discount fell outside
	// [0, subtotal] and was clamped. Callers should log it and prompt
	// for correction; it is never an error so totals stay renderable.
	DiscountClamped bool `json:"discount_clamped,omitempty" example:"false"`
}

var (
	// ErrTaxRateOutOfRange rejects tax rates outside [0, 1]. The engine
	// takes decimals only; a handler that receives a percentage divides
	// by 100 before calling in. Rejecting rates above 1 catches the
	// percent-passed-as-decimal mistake before it inflates a total.
	ErrTaxRateOutOfRange = errors.New("tax rate must be a decimal between 0 and 1")

	// ErrUnknownTaxMode rejects tax modes outside the defined set.
	ErrUnknownTaxMode = errors.New("unknown tax mode")

	// ErrAmbiguousTaxMode signals a caller mixing provenance and mode:
	// line items from a tax-inclusive source computed in standard mode
	// (or vice versa) would double-tax or under-tax the document.
	ErrAmbiguousTaxMode = errors.New("tax mode does not match line item provenance")
)

// LineTotal computes a persisted line total from quantity and unit price.
func LineTotal(quantity, unitPrice float64) float64 {
	return Round2(quantity * unitPrice)
}

// ComputeTotals aggregates line items into document totals.
//
// taxRate is a decimal in [0, 1]. In TaxStandard mode the discount is
// subtracted from the subtotal and tax applies to the remainder. In
// TaxInclusiveSource mode the subtotal already equals the taxed source
// total, so the rate and discount are forced to zero and the total is
// the subtotal unchanged.
//
// The discount is clamped to [0, subtotal] rather than rejected, so an
// over-generous discount still renders; Totals.DiscountClamped flags it.
// Rounding (half-up, 2 decimals) happens once, on the outputs.
func ComputeTotals(items []models.LineItem, taxRate, discount float64, mode TaxMode) (Totals, error) {
	if taxRate < 0 || taxRate > 1 {
		return Totals{}, fmt.Errorf("%w: got %v", ErrTaxRateOutOfRange, taxRate)
	}

	var subtotal float64
	for _, item := range items {
		subtotal += item.Quantity * item.UnitPrice
	}

	switch mode {
	case TaxStandard:
		clamped := false
		if discount < 0 {
			discount = 0
			clamped = true
		}
		if discount > subtotal {
			discount = subtotal
			clamped = true
		}
		taxable := subtotal - discount
		tax := taxable * taxRate
		return Totals{
			Subtotal:        Round2(subtotal),
			DiscountAmount:  Round2(discount),
			TaxRate:         taxRate,
			TaxAmount:       Round2(tax),
			Total:           Round2(taxable + tax),
			DiscountClamped: clamped,
		}, nil
	case TaxInclusiveSource:
		// The source total already carries tax and any discount; both
		// inputs are ignored so the figure cannot be taxed twice.
		return Totals{
			Subtotal:       Round2(subtotal),
			DiscountAmount: 0,
			TaxRate:        0,
			TaxAmount:      0,
			Total:          Round2(subtotal),
		}, nil
	default:
		return Totals{}, fmt.Errorf("%w: %d", ErrUnknownTaxMode, mode)
	}
}

// TaxModeForSource maps a document's provenance to the tax mode it must
// use. Keeping the mapping in one place stops call sites from drifting
// into the double-tax bug.
func TaxModeForSource(source string) TaxMode {
	if source == "quote" {
		return TaxInclusiveSource
	}
	return TaxStandard
}

// ValidateTaxMode checks a caller-chosen mode against document
// provenance. Handlers call it before ComputeTotals on derivation paths
// so a mismatch fails loudly instead of producing wrong money figures.
func ValidateTaxMode(source string, mode TaxMode) error {
	if mode != TaxStandard && mode != TaxInclusiveSource {
		return fmt.Errorf("%w: %d", ErrUnknownTaxMode, mode)
	}
	if TaxModeForSource(source) != mode {
		return fmt.Errorf("%w: source %q requires mode %d", ErrAmbiguousTaxMode, source, TaxModeForSource(source))
	}
	return nil
}
