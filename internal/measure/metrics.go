// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package measure

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/relabs-tech/optical_ruler/internal/calibration"
)

// ErrUnreliableCalibration is returned when the scale is not backed by a
// sensor-derived calibration. Terminal for the capture; the caller must
// ask for a retake instead of showing numbers.
var ErrUnreliableCalibration = errors.New("calibration is not reliable")

// EyeData is the editable marker set for one eye. All coordinates are
// normalized against the crop rectangle, 0..1.
type EyeData struct {
	Pupil     r2.Point `json:"pupil"`
	NasalX    float64  `json:"nasal_x"`
	TemporalX float64  `json:"temporal_x"`
	InferiorY float64  `json:"inferior_y"`
	SuperiorY float64  `json:"superior_y"`
}

// Markers is the full marker configuration a measurement is computed
// from, serialized alongside stored results.
type Markers struct {
	Right   EyeData  `json:"right"`
	Left    EyeData  `json:"left"`
	Central r2.Point `json:"central"`
}

// EyeMetrics are the per-eye outputs, millimeters rounded to 0.1.
type EyeMetrics struct {
	WidthMM       float64 `json:"width_mm"`
	HeightMM      float64 `json:"height_mm"`
	DNPMM         float64 `json:"dnp_mm"`
	PupilHeightMM float64 `json:"pupil_height_mm"`
}

// Metrics is the final measurement output.
type Metrics struct {
	Right    EyeMetrics `json:"right"`
	Left     EyeMetrics `json:"left"`
	BridgeMM float64    `json:"bridge_mm"`
}

// Compute converts normalized markers into millimeter measurements.
// Each eye is re-normalized first (the nasal bar is whichever vertical
// is nearer the central axis, the inferior bar is the lower one) since
// upstream marker editing may transiently violate both. Fails closed on
// an unreliable calibration.
func Compute(right, left EyeData, central r2.Point, scale calibration.Scale) (Metrics, error) {
	if !scale.Reliable() {
		return Metrics{}, ErrUnreliableCalibration
	}
	right = normalized(right, central.X)
	left = normalized(left, central.X)

	return Metrics{
		Right:    eyeMetrics(right, central, scale),
		Left:     eyeMetrics(left, central, scale),
		BridgeMM: roundMM(math.Abs(left.NasalX-right.NasalX) * scale.MMPerUnitX),
	}, nil
}

func eyeMetrics(e EyeData, central r2.Point, s calibration.Scale) EyeMetrics {
	return EyeMetrics{
		WidthMM:       roundMM(math.Abs(e.TemporalX-e.NasalX) * s.MMPerUnitX),
		HeightMM:      roundMM(math.Abs(e.InferiorY-e.SuperiorY) * s.MMPerUnitY),
		DNPMM:         roundMM(math.Abs(e.Pupil.X-central.X) * s.MMPerUnitX),
		PupilHeightMM: roundMM(math.Abs(e.InferiorY-e.Pupil.Y) * s.MMPerUnitY),
	}
}

// normalized restores the marker invariants for one eye.
func normalized(e EyeData, centralX float64) EyeData {
	if math.Abs(e.NasalX-centralX) > math.Abs(e.TemporalX-centralX) {
		e.NasalX, e.TemporalX = e.TemporalX, e.NasalX
	}
	if e.InferiorY < e.SuperiorY {
		e.InferiorY, e.SuperiorY = e.SuperiorY, e.InferiorY
	}
	return e
}

// roundMM sanitizes one output value and rounds it to the nearest
// 0.1 mm, halves away from zero.
func roundMM(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return math.Round(v*10) / 10
}
