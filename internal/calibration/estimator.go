// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/optical_ruler/internal/depth"
)

var (
	// ErrInsufficientData means no usable estimate could be formed from
	// the available frames and pooled samples.
	ErrInsufficientData = errors.New("insufficient calibration data")
	// ErrOutOfPlausibleRange means a fused result landed outside the sane
	// envelope and was refused.
	ErrOutOfPlausibleRange = errors.New("calibration outside plausible range")
)

// Sample is one frame's fused per-axis estimate, in mm per image pixel.
type Sample struct {
	MMPerPixelX float64   `json:"mm_per_pixel_x"`
	MMPerPixelY float64   `json:"mm_per_pixel_y"`
	WeightX     float64   `json:"weight_x"`
	WeightY     float64   `json:"weight_y"`
	Timestamp   time.Time `json:"timestamp"`
}

// Diagnostics is a read-only snapshot of the estimator for operator
// troubleshooting. Counts reflect the most recent ingest attempt whether
// or not it produced a sample.
type Diagnostics struct {
	PoolSize    int `json:"pool_size"`
	RecentCount int `json:"recent_count"`

	LastMMPerPixelX float64 `json:"last_mm_per_pixel_x"`
	LastMMPerPixelY float64 `json:"last_mm_per_pixel_y"`
	LastWeightX     float64 `json:"last_weight_x"`
	LastWeightY     float64 `json:"last_weight_y"`

	Counts       depth.Counts `json:"counts"`
	LastSampleAt time.Time    `json:"last_sample_at"`
}

// Estimator ingests depth frames and fuses a time-windowed pool of
// samples into a stabilized calibration. Construct one per capture
// session; there is no process-wide instance. Safe for concurrent use.
type Estimator struct {
	params Params

	mu      sync.RWMutex
	samples []Sample // sorted by Timestamp ascending
	diag    Diagnostics
}

func NewEstimator(p Params) *Estimator {
	return &Estimator{params: p}
}

// Params returns a copy of the estimator's tunables.
func (e *Estimator) Params() Params {
	return e.params
}

// Ingest folds one frame into the pool. Fire and forget: frames that
// fail extraction or land under the weight floor are dropped without an
// error. The heavy per-pixel work runs outside the lock.
func (e *Estimator) Ingest(f depth.Frame) {
	s, counts, err := e.sampleFrame(f)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.diag.Counts = counts
	if err != nil {
		return
	}
	e.diag.LastMMPerPixelX = s.MMPerPixelX
	e.diag.LastMMPerPixelY = s.MMPerPixelY
	e.diag.LastWeightX = s.WeightX
	e.diag.LastWeightY = s.WeightY
	e.diag.LastSampleAt = s.Timestamp

	if s.WeightX < e.params.WeightFloor || s.WeightY < e.params.WeightFloor {
		return
	}
	e.samples = append(e.samples, s)
	sort.Slice(e.samples, func(i, j int) bool {
		return e.samples[i].Timestamp.Before(e.samples[j].Timestamp)
	})
	e.prune(e.samples[len(e.samples)-1].Timestamp)
}

// prune drops samples older than the TTL relative to ref and trims the
// pool to MaxSamples, oldest first. Sample timestamps decide age, not
// arrival order, so out-of-order delivery is handled.
func (e *Estimator) prune(ref time.Time) {
	cutoff := ref.Add(-e.params.SampleTTL)
	i := 0
	for i < len(e.samples) && e.samples[i].Timestamp.Before(cutoff) {
		i++
	}
	if over := len(e.samples) - i - e.params.MaxSamples; over > 0 {
		i += over
	}
	if i > 0 {
		n := copy(e.samples, e.samples[i:])
		e.samples = e.samples[:n]
	}
}

// sampleFrame turns one frame into a calibration sample: candidate
// extraction, per-axis robust estimate, anthropometric fusion.
func (e *Estimator) sampleFrame(f depth.Frame) (Sample, depth.Counts, error) {
	src, err := depth.Resolve(f)
	if err != nil {
		return Sample{}, depth.Counts{}, err
	}
	cands, err := depth.Extract(src, e.params.Depth)
	if err != nil {
		return Sample{}, cands.Counts, err
	}
	ax, err := EstimateAxis(cands.X, e.params)
	if err != nil {
		return Sample{}, cands.Counts, err
	}
	ay, err := EstimateAxis(cands.Y, e.params)
	if err != nil {
		return Sample{}, cands.Counts, err
	}
	ax = FuseAnthropometric(ax, f.Eyes, e.params)

	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Sample{
		MMPerPixelX: ax.Mean,
		MMPerPixelY: ay.Mean,
		WeightX:     ax.Weight,
		WeightY:     ay.Weight,
		Timestamp:   ts,
	}, cands.Counts, nil
}

// Finalize fuses the live frame with the pooled samples into a final
// calibration for a crop of the given pixel dimensions. The fresh sample
// joins every pooled sample within the TTL of the frame's timestamp;
// when that group is empty the single most recent sample still inside
// the fallback window is used as a last resort.
func (e *Estimator) Finalize(f depth.Frame, cropW, cropH int) (Calibration, error) {
	if cropW <= 0 || cropH <= 0 {
		return Calibration{}, errors.Errorf("invalid crop dimensions %dx%d", cropW, cropH)
	}
	cur, _, curErr := e.sampleFrame(f)

	ref := f.Timestamp
	if ref.IsZero() {
		ref = time.Now()
	}
	cutoff := ref.Add(-e.params.SampleTTL)
	fallbackCutoff := ref.Add(-e.params.FallbackTTL)

	e.mu.RLock()
	group := make([]Sample, 0, len(e.samples)+1)
	for _, s := range e.samples {
		if !s.Timestamp.Before(cutoff) {
			group = append(group, s)
		}
	}
	if curErr == nil {
		group = append(group, cur)
	}
	if len(group) == 0 && len(e.samples) > 0 {
		if last := e.samples[len(e.samples)-1]; !last.Timestamp.Before(fallbackCutoff) {
			group = append(group, last)
		}
	}
	e.mu.RUnlock()

	if len(group) == 0 {
		return Calibration{}, errors.Wrap(ErrInsufficientData, "no recent samples")
	}
	return e.referencesFrom(group, cropW, cropH)
}

// InstantEstimate produces a calibration from the current frame alone,
// or from the most recent pooled sample when the frame is unusable.
// Lower quality than Finalize; meant for live feedback.
func (e *Estimator) InstantEstimate(f depth.Frame, cropW, cropH int) (Calibration, error) {
	if cropW <= 0 || cropH <= 0 {
		return Calibration{}, errors.Errorf("invalid crop dimensions %dx%d", cropW, cropH)
	}
	cur, _, err := e.sampleFrame(f)
	if err != nil {
		e.mu.RLock()
		if n := len(e.samples); n > 0 {
			cur = e.samples[n-1]
			err = nil
		}
		e.mu.RUnlock()
	}
	if err != nil {
		return Calibration{}, errors.Wrap(ErrInsufficientData, "no usable frame or pooled sample")
	}
	return e.referencesFrom([]Sample{cur}, cropW, cropH)
}

// Reset discards the pool and diagnostics. Called on tracking loss or
// session restart; samples from a different head position must never
// leak into a new capture.
func (e *Estimator) Reset() {
	e.mu.Lock()
	e.samples = nil
	e.diag = Diagnostics{}
	e.mu.Unlock()
}

// Diagnostics returns a snapshot of the pool and the last ingest.
// RecentCount is measured against the newest sample's timestamp.
func (e *Estimator) Diagnostics() Diagnostics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d := e.diag
	d.PoolSize = len(e.samples)
	if n := len(e.samples); n > 0 {
		cutoff := e.samples[n-1].Timestamp.Add(-e.params.SampleTTL)
		for _, s := range e.samples {
			if !s.Timestamp.Before(cutoff) {
				d.RecentCount++
			}
		}
	}
	return d
}

// referencesFrom fuses the group per axis and converts mm-per-pixel into
// the crop's reference millimeters.
func (e *Estimator) referencesFrom(group []Sample, cropW, cropH int) (Calibration, error) {
	xs := make([]float64, len(group))
	xw := make([]float64, len(group))
	ys := make([]float64, len(group))
	yw := make([]float64, len(group))
	for i, s := range group {
		xs[i], xw[i] = s.MMPerPixelX, s.WeightX
		ys[i], yw[i] = s.MMPerPixelY, s.WeightY
	}
	mmX, err := fuseSampleValues(xs, xw, e.params)
	if err != nil {
		return Calibration{}, err
	}
	mmY, err := fuseSampleValues(ys, yw, e.params)
	if err != nil {
		return Calibration{}, err
	}

	p := e.params.Depth
	if mmX < p.MinMMPerPixel || mmX > p.MaxMMPerPixel || mmY < p.MinMMPerPixel || mmY > p.MaxMMPerPixel {
		return Calibration{}, errors.Wrapf(ErrOutOfPlausibleRange, "fused %.4f x %.4f mm/px", mmX, mmY)
	}

	c := Calibration{
		HorizontalReferenceMM: mmX * float64(cropW),
		VerticalReferenceMM:   mmY * float64(cropH),
	}
	if !isFinitePositive(c.HorizontalReferenceMM) || !isFinitePositive(c.VerticalReferenceMM) {
		return Calibration{}, errors.Wrap(ErrOutOfPlausibleRange, "non-positive reference")
	}
	return c, nil
}

// fuseSampleValues applies the outlier-rejecting weighted mean across
// pooled values: median, raw MAD, cut, then a weighted mean of the
// survivors. If the cut rejects everything the full group is used.
func fuseSampleValues(values, weights []float64, p Params) (float64, error) {
	if len(values) == 0 {
		return 0, errors.Wrap(ErrInsufficientData, "empty sample group")
	}
	if len(values) == 1 {
		return values[0], nil
	}
	med, err := stats.Median(values)
	if err != nil {
		return 0, errors.Wrap(err, "median")
	}
	mad, err := stats.MedianAbsoluteDeviation(values)
	if err != nil {
		return 0, errors.Wrap(err, "MAD")
	}
	cut := math.Max(p.FusionRejectFactor*mad, p.FusionRejectFloor)

	kv := make([]float64, 0, len(values))
	kw := make([]float64, 0, len(values))
	for i, v := range values {
		if math.Abs(v-med) <= cut {
			kv = append(kv, v)
			kw = append(kw, weights[i])
		}
	}
	if len(kv) == 0 {
		kv, kw = values, weights
	}
	return stat.Mean(kv, kw), nil
}
