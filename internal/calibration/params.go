package calibration

import (
	"time"

	"github.com/relabs-tech/optical_ruler/internal/depth"
)

// Params holds every tunable of the estimator. DefaultParams are the
// values the capture pipeline ships with; the config file can override
// the operationally relevant subset.
type Params struct {
	Depth depth.Params

	// Robust per-axis estimate
	MinCandidates int     // per-axis floor below which a frame yields nothing
	MADScale      float64 // normal-consistency factor applied to the MAD
	RejectFactor  float64 // rejection cut in scaled-MAD multiples
	RejectFloor   float64 // absolute rejection cut floor, mm/px
	StdDevFloor   float64 // keeps near-zero spreads from exploding the weight
	MinWeight     float64
	MaxWeight     float64

	// Anthropometric fusion
	IPDMinMM             float64
	IPDMaxMM             float64
	MinPixelGap          float64 // projected eye gap floor, image pixels
	AnthroTolerance      float64 // relative agreement gate vs the depth estimate
	AnthroToleranceFloor float64 // absolute agreement gate floor, mm/px
	AnthroWeightFactor   float64 // fraction of the base weight given to the IPD candidate

	// Sample pool and temporal fusion
	MaxSamples         int
	SampleTTL          time.Duration
	FallbackTTL        time.Duration // how stale the last-resort sample may be
	WeightFloor        float64       // both axis weights must clear this to pool a sample
	FusionRejectFactor float64       // cut in raw-MAD multiples across pooled values
	FusionRejectFloor  float64
}

func DefaultParams() Params {
	return Params{
		Depth: depth.DefaultParams(),

		MinCandidates: 24,
		MADScale:      1.4826, // normal consistency
		RejectFactor:  3,
		RejectFloor:   0.0002,
		StdDevFloor:   0.0003,
		MinWeight:     1,
		MaxWeight:     25000,

		IPDMinMM:             40,
		IPDMaxMM:             80,
		MinPixelGap:          8,
		AnthroTolerance:      0.12,
		AnthroToleranceFloor: 0.002,
		AnthroWeightFactor:   0.45,

		MaxSamples:         90,
		SampleTTL:          1500 * time.Millisecond,
		FallbackTTL:        3 * time.Second,
		WeightFloor:        3,
		FusionRejectFactor: 3,
		FusionRejectFloor:  0.0002,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
