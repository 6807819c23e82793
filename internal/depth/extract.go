package depth

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// Params bounds the per-pixel candidate extraction. DefaultParams matches
// the sensor envelope of phone-class depth modules held at face distance.
type Params struct {
	// BorderFraction of each dimension is skipped on every side to avoid
	// lens-edge artifacts. The margin is only applied while at least half
	// of the raster survives on each axis.
	BorderFraction float64
	// MinConfidence gates pixels when a confidence raster is present.
	MinConfidence Confidence
	// Plausible mm-per-pixel envelope; candidates outside it are dropped.
	MinMMPerPixel float64
	MaxMMPerPixel float64
	// Depth stability filter: candidates whose distance deviates from the
	// median by more than max(DepthSpreadFactor*MAD, DepthSpreadFloorMM)
	// are dropped.
	DepthSpreadFactor  float64
	DepthSpreadFloorMM float64
	// Plausible mean subject distance, mm.
	MinDepthMM float64
	MaxDepthMM float64
	// Rasters smaller than this on either axis are rejected.
	MinRasterDim int
}

func DefaultParams() Params {
	return Params{
		BorderFraction:     0.08,
		MinConfidence:      ConfidenceHigh,
		MinMMPerPixel:      0.015,
		MaxMMPerPixel:      0.8,
		DepthSpreadFactor:  2.5,
		DepthSpreadFloorMM: 0.5,
		MinDepthMM:         80,
		MaxDepthMM:         1200,
		MinRasterDim:       16,
	}
}

// Counts are the diagnostic counters from one extraction pass.
type Counts struct {
	EvaluatedPixels      int `json:"evaluated_pixels"`
	RawCandidates        int `json:"raw_candidates"`
	FilteredCandidates   int `json:"filtered_candidates"`
	HighConfidencePixels int `json:"high_confidence_pixels"`
}

// Candidates holds the per-axis mm-per-pixel candidate lists produced
// from one frame, expressed in image pixel space.
type Candidates struct {
	X []float64
	Y []float64
	// MeanDepthMM is the mean subject distance of the surviving candidates.
	MeanDepthMM float64
	Counts      Counts
}

// Extract converts every usable raster pixel into per-axis scale
// candidates:
//
//	mmPerPixel = depth_m * (1/focal_axis) * 1000 / axisPixelScale
//
// Pixels are skipped when non-finite, non-positive, inside the border
// margin, or below the confidence gate. Candidates are then filtered for
// plausibility and depth stability. When the frame is rotated the axis
// lists are swapped so callers always see image-space X and Y.
func Extract(src Source, p Params) (Candidates, error) {
	m := src.Depth
	if m == nil {
		return Candidates{}, ErrNoDepthSource
	}
	if m.Width < p.MinRasterDim || m.Height < p.MinRasterDim {
		return Candidates{}, errors.Errorf("depth raster too small: %dx%d", m.Width, m.Height)
	}
	if !src.Intrinsics.Valid() {
		return Candidates{}, errors.Errorf("non-positive intrinsics: fx=%.2f fy=%.2f", src.Intrinsics.Fx, src.Intrinsics.Fy)
	}
	if src.ScaleX <= 0 || src.ScaleY <= 0 {
		return Candidates{}, errors.Errorf("non-positive pixel scales: x=%.3f y=%.3f", src.ScaleX, src.ScaleY)
	}

	marginX := int(float64(m.Width) * p.BorderFraction)
	marginY := int(float64(m.Height) * p.BorderFraction)
	if m.Width-2*marginX < m.Width/2 {
		marginX = 0
	}
	if m.Height-2*marginY < m.Height/2 {
		marginY = 0
	}

	invFx := 1.0 / src.Intrinsics.Fx
	invFy := 1.0 / src.Intrinsics.Fy
	conf := src.Confidence

	n := (m.Width - 2*marginX) * (m.Height - 2*marginY)
	xs := make([]float64, 0, n)
	xd := make([]float64, 0, n) // depths of the X candidates, mm
	ys := make([]float64, 0, n)
	yd := make([]float64, 0, n)

	var c Candidates
	for y := marginY; y < m.Height-marginY; y++ {
		for x := marginX; x < m.Width-marginX; x++ {
			c.Counts.EvaluatedPixels++
			d := m.At(x, y)
			if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
				continue
			}
			if conf != nil {
				if conf.At(x, y) < p.MinConfidence {
					continue
				}
				c.Counts.HighConfidencePixels++
			}
			depthMM := d * 1000
			mmX := d * invFx * 1000 / src.ScaleX
			if mmX >= p.MinMMPerPixel && mmX <= p.MaxMMPerPixel {
				xs = append(xs, mmX)
				xd = append(xd, depthMM)
			}
			mmY := d * invFy * 1000 / src.ScaleY
			if mmY >= p.MinMMPerPixel && mmY <= p.MaxMMPerPixel {
				ys = append(ys, mmY)
				yd = append(yd, depthMM)
			}
		}
	}
	c.Counts.RawCandidates = len(xs) + len(ys)
	if len(xs) == 0 && len(ys) == 0 {
		return c, errors.Errorf("no usable depth pixels (%d evaluated)", c.Counts.EvaluatedPixels)
	}

	// Depth stability: a face at 300 mm must not be polluted by the wall
	// behind it. Deviations are measured against the median distance of
	// all surviving candidates from both axes.
	all := make([]float64, 0, len(xd)+len(yd))
	all = append(all, xd...)
	all = append(all, yd...)
	medDepth, err := stats.Median(all)
	if err != nil {
		return c, errors.Wrap(err, "median depth")
	}
	madDepth, err := stats.MedianAbsoluteDeviation(all)
	if err != nil {
		return c, errors.Wrap(err, "depth MAD")
	}
	cut := math.Max(p.DepthSpreadFactor*madDepth, p.DepthSpreadFloorMM)

	fxs, fxd := filterByDepth(xs, xd, medDepth, cut)
	fys, fyd := filterByDepth(ys, yd, medDepth, cut)
	// An axis never goes empty because of the stability filter alone.
	if len(fxs) == 0 {
		fxs, fxd = xs, xd
	}
	if len(fys) == 0 {
		fys, fyd = ys, yd
	}
	c.Counts.FilteredCandidates = len(fxs) + len(fys)

	depths := make([]float64, 0, len(fxd)+len(fyd))
	depths = append(depths, fxd...)
	depths = append(depths, fyd...)
	meanDepth, err := stats.Mean(depths)
	if err != nil {
		return c, errors.Wrap(err, "mean depth")
	}
	if meanDepth < p.MinDepthMM || meanDepth > p.MaxDepthMM {
		return c, errors.Errorf("mean depth %.0f mm outside %.0f-%.0f mm", meanDepth, p.MinDepthMM, p.MaxDepthMM)
	}
	c.MeanDepthMM = meanDepth

	c.X, c.Y = fxs, fys
	if src.Rotated {
		c.X, c.Y = c.Y, c.X
	}
	return c, nil
}

func filterByDepth(mm, depthMM []float64, median, cut float64) ([]float64, []float64) {
	outMM := make([]float64, 0, len(mm))
	outDepth := make([]float64, 0, len(depthMM))
	for i, d := range depthMM {
		if math.Abs(d-median) <= cut {
			outMM = append(outMM, mm[i])
			outDepth = append(outDepth, d)
		}
	}
	return outMM, outDepth
}
