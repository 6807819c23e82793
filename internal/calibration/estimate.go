package calibration

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// AxisEstimate is the robust scale statistic for one axis of one frame.
// Weight grows with candidate count and shrinks with spread.
type AxisEstimate struct {
	Mean   float64 `json:"mean"`   // mm per image pixel
	Weight float64 `json:"weight"` // sqrt(count) / max(stddev, floor), clamped
}

// EstimateAxis reduces one axis's candidate list to a mean and a weight.
// Candidates further than max(RejectFactor*MADScale*MAD, RejectFloor)
// from the median are rejected first; if that empties the list, the
// unfiltered list is used instead.
func EstimateAxis(candidates []float64, p Params) (AxisEstimate, error) {
	if len(candidates) < p.MinCandidates {
		return AxisEstimate{}, errors.Wrapf(ErrInsufficientData, "%d candidates, need %d", len(candidates), p.MinCandidates)
	}
	med, err := stats.Median(candidates)
	if err != nil {
		return AxisEstimate{}, errors.Wrap(err, "median")
	}
	mad, err := stats.MedianAbsoluteDeviation(candidates)
	if err != nil {
		return AxisEstimate{}, errors.Wrap(err, "MAD")
	}
	cut := math.Max(p.RejectFactor*p.MADScale*mad, p.RejectFloor)

	kept := make([]float64, 0, len(candidates))
	for _, v := range candidates {
		if math.Abs(v-med) <= cut {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		kept = candidates
	}

	mean, err := stats.Mean(kept)
	if err != nil {
		return AxisEstimate{}, errors.Wrap(err, "mean")
	}
	var sd float64
	if len(kept) > 1 {
		sd, err = stats.StandardDeviationSample(kept)
		if err != nil {
			return AxisEstimate{}, errors.Wrap(err, "stddev")
		}
	}
	weight := math.Sqrt(float64(len(kept))) / math.Max(sd, p.StdDevFloor)
	return AxisEstimate{Mean: mean, Weight: clamp(weight, p.MinWeight, p.MaxWeight)}, nil
}
