package calibration

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/optical_ruler/internal/landmark"
)

// eyesAt builds landmarks with the given 3-D IPD (mm) and projected gap
// (image pixels), centered on the origin.
func eyesAt(ipdMM, gapPx float64) *landmark.EyeCenters {
	half := ipdMM / 2000 // meters
	return &landmark.EyeCenters{
		Left:       r3.Vector{X: -half, Z: 0.3},
		Right:      r3.Vector{X: half, Z: 0.3},
		LeftPixel:  r2.Point{X: -gapPx / 2, Y: 0},
		RightPixel: r2.Point{X: gapPx / 2, Y: 0},
	}
}

func TestFuseAnthropometric(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	base := AxisEstimate{Mean: 0.36, Weight: 100}

	t.Run("nil eyes leaves base untouched", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, base, FuseAnthropometric(base, nil, p))
	})

	t.Run("perfect agreement keeps mean, raises weight", func(t *testing.T) {
		t.Parallel()
		// 63 mm over 175 px is exactly 0.36 mm/px.
		fused := FuseAnthropometric(base, eyesAt(63, 175), p)
		assert.InDelta(t, 0.36, fused.Mean, 1e-9)
		assert.InDelta(t, 145, fused.Weight, 1e-9)
	})

	t.Run("agreement within tolerance shifts the mean", func(t *testing.T) {
		t.Parallel()
		b := AxisEstimate{Mean: 0.34, Weight: 100}
		// Candidate 0.36 differs by 0.02, inside max(12% of 0.34, 0.002).
		fused := FuseAnthropometric(b, eyesAt(63, 175), p)
		want := (0.34*100 + 0.36*45) / 145
		assert.InDelta(t, want, fused.Mean, 1e-9)
		assert.Greater(t, fused.Mean, b.Mean)
	})

	t.Run("disagreement beyond tolerance is discarded", func(t *testing.T) {
		t.Parallel()
		b := AxisEstimate{Mean: 0.30, Weight: 100}
		// Candidate 0.36 differs by 0.06, tolerance is 0.036.
		assert.Equal(t, b, FuseAnthropometric(b, eyesAt(63, 175), p))
	})

	t.Run("implausible ipd is discarded", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, base, FuseAnthropometric(base, eyesAt(90, 250), p))
		assert.Equal(t, base, FuseAnthropometric(base, eyesAt(30, 83), p))
	})

	t.Run("tiny projected gap is discarded", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, base, FuseAnthropometric(base, eyesAt(63, 5), p))
	})

	t.Run("fused weight clamps at the maximum", func(t *testing.T) {
		t.Parallel()
		b := AxisEstimate{Mean: 0.36, Weight: p.MaxWeight}
		fused := FuseAnthropometric(b, eyesAt(63, 175), p)
		assert.Equal(t, p.MaxWeight, fused.Weight)
	})
}
