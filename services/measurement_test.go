package services

import (
	"errors"
	"math"
	"testing"

	"backend/models"
)

func TestCalculateQuantity(t *testing.T) {
	m := models.Measurement{
		TotalSquares:  24.5,
		ActualSquares: 20,
		HipFeet:       40,
		RidgeFeet:     35,
		RakeFeet:      60,
		EaveFeet:      90,
	}

	tests := []struct {
		name    string
		mt      MeasurementType
		perUnit float64
		m       models.Measurement
		expect  float64
	}{
		{"squares uses actual squares", MeasureSquares, 3, m, 60},
		{"squares falls back to total when actual is zero", MeasureSquares, 2, models.Measurement{TotalSquares: 10}, 20},
		{"hip ridge total", MeasureHipRidge, 1.1, m, 82.5},
		{"perimeter total", MeasurePerimeter, 0.5, m, 75},
		{"fixed ignores measurement", MeasureFixed, 4, m, 4},
		{"other is manual entry", MeasureOther, 7, m, 0},
		{"zero measurement yields zero not error", MeasureHipRidge, 2, models.Measurement{}, 0},
		{"zero per unit", MeasureSquares, 0, m, 0},
		{"rounds to two decimals", MeasureSquares, 0.333, m, 6.66},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateQuantity(tt.mt, tt.perUnit, tt.m)
			if err != nil {
				t.Fatalf("CalculateQuantity(%q, %v) returned error: %v", tt.mt, tt.perUnit, err)
			}
			if got != tt.expect {
				t.Errorf("CalculateQuantity(%q, %v) = %v, want %v", tt.mt, tt.perUnit, got, tt.expect)
			}
		})
	}
}

func TestCalculateQuantityInvalidType(t *testing.T) {
	_, err := CalculateQuantity("linear_magic", 2, models.Measurement{TotalSquares: 10})
	if !errors.Is(err, ErrInvalidMeasurementType) {
		t.Fatalf("expected ErrInvalidMeasurementType, got %v", err)
	}
}

func TestValidMeasurementType(t *testing.T) {
	for _, mt := range []MeasurementType{MeasureSquares, MeasureHipRidge, MeasurePerimeter, MeasureFixed, MeasureOther} {
		if !ValidMeasurementType(mt) {
			t.Errorf("ValidMeasurementType(%q) = false, want true", mt)
		}
	}
	if ValidMeasurementType("gutters") {
		t.Error("ValidMeasurementType(\"gutters\") = true, want false")
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in     float64
		expect float64
	}{
		{0.1 + 0.1 + 0.1, 0.30}, // decimal correctness, not 0.29999...
		{1.005, 1.0},            // binary 1.005 sits just below the midpoint
		{2.674, 2.67},
		{2.676, 2.68},
		{76.0, 76.0},
		{0.125, 0.13},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); math.Abs(got-tt.expect) > 1e-9 {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.expect)
		}
	}
}
