// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/optical_ruler/internal/landmark"
)

// FuseAnthropometric folds an interpupillary-distance reading into the
// depth-derived horizontal estimate.
//
// The candidate scale is
//
//	mmPerPixelX = ipdMM / pixelGap
//
// and it only participates when the 3-D distance is a plausible human
// IPD, the projected gap is wide enough to divide by, and the candidate
// agrees with the depth estimate within tolerance. On any disagreement
// the depth estimate wins untouched; two landmark points near the sensor
// range limit lose to dense raster coverage.
func FuseAnthropometric(base AxisEstimate, eyes *landmark.EyeCenters, p Params) AxisEstimate {
	if eyes == nil {
		return base
	}
	ipd := eyes.IPDMM()
	if ipd < p.IPDMinMM || ipd > p.IPDMaxMM {
		return base
	}
	gap := eyes.PixelGap()
	if gap < p.MinPixelGap {
		return base
	}
	cand := ipd / gap
	tol := math.Max(p.AnthroTolerance*base.Mean, p.AnthroToleranceFloor)
	if math.Abs(cand-base.Mean) > tol {
		return base
	}

	w := p.AnthroWeightFactor * base.Weight
	mean := stat.Mean([]float64{base.Mean, cand}, []float64{base.Weight, w})
	return AxisEstimate{
		Mean:   mean,
		Weight: clamp(base.Weight+w, p.MinWeight, p.MaxWeight),
	}
}
