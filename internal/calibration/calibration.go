package calibration

import "math"

// Reference pair reserved as the untrusted default. A Calibration
// matching it was never backed by sensor data.
const (
	DefaultHorizontalReferenceMM = 150.0
	DefaultVerticalReferenceMM   = 200.0

	referenceFloorMM  = 1.0
	sentinelTolerance = 1e-6
)

// Calibration is the stabilized scale reference: how many millimeters
// the full normalized width and height of the crop span. It is only
// meaningful together with the crop rectangle it was finalized for;
// markers normalized against a different rectangle convert to wrong
// millimeters.
type Calibration struct {
	HorizontalReferenceMM float64 `json:"horizontal_reference_mm"`
	VerticalReferenceMM   float64 `json:"vertical_reference_mm"`
}

// Default returns the reserved sentinel pair.
func Default() Calibration {
	return Calibration{
		HorizontalReferenceMM: DefaultHorizontalReferenceMM,
		VerticalReferenceMM:   DefaultVerticalReferenceMM,
	}
}

// IsReliable reports whether the calibration came from sensor data: both
// references finite and positive, and the pair not matching the reserved
// default.
func (c Calibration) IsReliable() bool {
	if !isFinitePositive(c.HorizontalReferenceMM) || !isFinitePositive(c.VerticalReferenceMM) {
		return false
	}
	if math.Abs(c.HorizontalReferenceMM-DefaultHorizontalReferenceMM) <= sentinelTolerance &&
		math.Abs(c.VerticalReferenceMM-DefaultVerticalReferenceMM) <= sentinelTolerance {
		return false
	}
	return true
}

// Scale wraps a Calibration for marker conversion. The per-unit factors
// are floor clamped so a degenerate calibration cannot collapse a
// division.
type Scale struct {
	Calibration Calibration `json:"calibration"`
	MMPerUnitX  float64     `json:"mm_per_unit_x"`
	MMPerUnitY  float64     `json:"mm_per_unit_y"`
}

func NewScale(c Calibration) Scale {
	return Scale{
		Calibration: c,
		MMPerUnitX:  clampReference(c.HorizontalReferenceMM),
		MMPerUnitY:  clampReference(c.VerticalReferenceMM),
	}
}

// Reliable reports whether the backing calibration can be trusted.
func (s Scale) Reliable() bool {
	return s.Calibration.IsReliable()
}

// HorizontalMM converts a normalized horizontal span to millimeters.
func (s Scale) HorizontalMM(normalized float64) float64 {
	return normalized * s.MMPerUnitX
}

// VerticalMM converts a normalized vertical span to millimeters.
func (s Scale) VerticalMM(normalized float64) float64 {
	return normalized * s.MMPerUnitY
}

// NormalizedHorizontal converts millimeters back to a normalized span.
func (s Scale) NormalizedHorizontal(mm float64) float64 {
	return mm / s.MMPerUnitX
}

// NormalizedVertical converts millimeters back to a normalized span.
func (s Scale) NormalizedVertical(mm float64) float64 {
	return mm / s.MMPerUnitY
}

func clampReference(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < referenceFloorMM {
		return referenceFloorMM
	}
	return v
}

func isFinitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
