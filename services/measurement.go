// Package services holds the estimate/order calculation engine and the
// supporting email and push-notification services. The calculation
// functions are pure: they take in-memory values and return results,
// leaving persistence and display to the handlers.
package services

import (
	"errors"
	"fmt"
	"math"

	"backend/models"
)

// MeasurementType names the roof measurement a template item scales against.
type MeasurementType string

const (
	MeasureSquares   MeasurementType = "squares"
	MeasureHipRidge  MeasurementType = "hip_ridge_total"
	MeasurePerimeter MeasurementType = "perimeter_total"
	MeasureFixed     MeasurementType = "fixed"
	MeasureOther     MeasurementType = "other"
)

// ErrInvalidMeasurementType is returned when a template item carries a
// measurement type outside the recognized set. This fails fast so a
// misconfigured template is caught when it is authored, not hidden as a
// silent zero quantity at import time.
var ErrInvalidMeasurementType = errors.New("invalid measurement type")

// ValidMeasurementType reports whether mt is one of the recognized values.
func ValidMeasurementType(mt MeasurementType) bool {
	switch mt {
	case MeasureSquares, MeasureHipRidge, MeasurePerimeter, MeasureFixed, MeasureOther:
		return true
	}
	return false
}

// Round2 rounds a monetary or quantity value to 2 decimal places, half up.
// Rounding is applied only at output boundaries, never on intermediate
// sums, so long item lists do not compound rounding error.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CalculateQuantity computes the suggested quantity for one template item:
// the named measurement field multiplied by the per-unit factor, rounded
// to 2 decimals.
//
// A zero or missing measurement field yields quantity 0, not an error -
// callers treat 0 as "needs manual entry". Only an unrecognized
// measurement type is an error.
func CalculateQuantity(mt MeasurementType, perUnit float64, m models.Measurement) (float64, error) {
	switch mt {
	case MeasureSquares:
		// Actual (waste-adjusted) squares win over the raw plan figure.
		sq := m.ActualSquares
		if sq == 0 {
			sq = m.TotalSquares
		}
		return Round2(sq * perUnit), nil
	case MeasureHipRidge:
		return Round2(m.HipRidgeTotal() * perUnit), nil
	case MeasurePerimeter:
		return Round2(m.PerimeterTotal() * perUnit), nil
	case MeasureFixed:
		// Fixed quantities do not scale with the roof; the per-unit
		// factor is the quantity itself.
		return Round2(perUnit), nil
	case MeasureOther:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMeasurementType, mt)
	}
}
