package calibration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalibrationReliability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cal  Calibration
		want bool
	}{
		{"sensor-derived pair", Calibration{HorizontalReferenceMM: 96, VerticalReferenceMM: 128}, true},
		{"reserved default pair", Default(), false},
		{"default pair within tolerance", Calibration{HorizontalReferenceMM: 150 + 1e-9, VerticalReferenceMM: 200 - 1e-9}, false},
		{"only horizontal matches default", Calibration{HorizontalReferenceMM: 150, VerticalReferenceMM: 210}, true},
		{"zero reference", Calibration{HorizontalReferenceMM: 0, VerticalReferenceMM: 128}, false},
		{"negative reference", Calibration{HorizontalReferenceMM: 96, VerticalReferenceMM: -1}, false},
		{"nan reference", Calibration{HorizontalReferenceMM: math.NaN(), VerticalReferenceMM: 128}, false},
		{"inf reference", Calibration{HorizontalReferenceMM: 96, VerticalReferenceMM: math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cal.IsReliable())
		})
	}
}

func TestScaleRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewScale(Calibration{HorizontalReferenceMM: 240, VerticalReferenceMM: 320})

	assert.InDelta(t, 0.5, s.NormalizedHorizontal(120), 1e-12)
	assert.InDelta(t, 120, s.HorizontalMM(s.NormalizedHorizontal(120)), 1e-12)
	assert.InDelta(t, 0.25, s.NormalizedVertical(80), 1e-12)
	assert.InDelta(t, 80, s.VerticalMM(s.NormalizedVertical(80)), 1e-12)
	assert.True(t, s.Reliable())
}

func TestScaleClampsDegenerateReferences(t *testing.T) {
	t.Parallel()

	s := NewScale(Calibration{HorizontalReferenceMM: 0.2, VerticalReferenceMM: -5})
	assert.Equal(t, 1.0, s.MMPerUnitX)
	assert.Equal(t, 1.0, s.MMPerUnitY)
	assert.False(t, s.Reliable())

	s = NewScale(Calibration{HorizontalReferenceMM: math.NaN(), VerticalReferenceMM: math.Inf(1)})
	assert.Equal(t, 1.0, s.MMPerUnitX)
	assert.Equal(t, 1.0, s.MMPerUnitY)

	// Conversions stay finite even on garbage calibrations.
	assert.False(t, math.IsNaN(s.HorizontalMM(0.5)))
	assert.False(t, math.IsNaN(s.NormalizedVertical(10)))
}
