// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package depth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatSource builds a constant-depth raster with unit pixel scales.
func flatSource(w, h int, meters, fx, fy float64) Source {
	m := NewMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, meters)
		}
	}
	return Source{
		Kind:       KindSingleShot,
		Depth:      m,
		Intrinsics: Intrinsics{Fx: fx, Fy: fy},
		ScaleX:     1,
		ScaleY:     1,
	}
}

func TestExtractFlatPlane(t *testing.T) {
	t.Parallel()

	// 64x64 at 30 cm with focal 1000 puts every pixel at 0.3 mm/px.
	src := flatSource(64, 64, 0.3, 1000, 1000)
	c, err := Extract(src, DefaultParams())
	require.NoError(t, err)

	// Border margin is int(64*0.08)=5, leaving a 54x54 window.
	assert.Equal(t, 2916, c.Counts.EvaluatedPixels)
	assert.Equal(t, 2*2916, c.Counts.RawCandidates)
	assert.Equal(t, 2*2916, c.Counts.FilteredCandidates)
	assert.Zero(t, c.Counts.HighConfidencePixels)

	require.Len(t, c.X, 2916)
	require.Len(t, c.Y, 2916)
	assert.InDelta(t, 0.3, c.X[0], 1e-6)
	assert.InDelta(t, 0.3, c.Y[len(c.Y)-1], 1e-6)
	assert.InDelta(t, 300, c.MeanDepthMM, 0.001)
}

func TestExtractConfidenceGate(t *testing.T) {
	t.Parallel()

	src := flatSource(64, 64, 0.3, 1000, 1000)
	src.Kind = KindSceneDepth
	src.Confidence = NewConfidenceMap(64, 64)
	src.Confidence.Fill(ConfidenceHigh)
	// A 10x10 low-confidence patch well inside the border margin.
	for y := 20; y < 30; y++ {
		for x := 20; x < 30; x++ {
			src.Confidence.Set(x, y, ConfidenceLow)
		}
	}

	c, err := Extract(src, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 2916, c.Counts.EvaluatedPixels)
	assert.Equal(t, 2816, c.Counts.HighConfidencePixels)
	assert.Len(t, c.X, 2816)
	assert.Len(t, c.Y, 2816)
}

func TestExtractMarginSuppression(t *testing.T) {
	t.Parallel()

	// On a 16-pixel axis a 0.35 fraction would eat more than half of the
	// raster, so the margin collapses to zero.
	src := flatSource(16, 16, 0.3, 1000, 1000)
	p := DefaultParams()
	p.BorderFraction = 0.35

	c, err := Extract(src, p)
	require.NoError(t, err)
	assert.Equal(t, 256, c.Counts.EvaluatedPixels)

	p.BorderFraction = 0.08
	c, err = Extract(src, p)
	require.NoError(t, err)
	assert.Equal(t, 196, c.Counts.EvaluatedPixels)
}

func TestExtractIgnoresBorderArtifacts(t *testing.T) {
	t.Parallel()

	src := flatSource(64, 64, 0.3, 1000, 1000)
	// Lens-edge garbage inside the 5-pixel margin must never be sampled.
	src.Depth.Set(0, 0, 5.0)
	src.Depth.Set(2, 2, 5.0)
	src.Depth.Set(63, 63, 5.0)

	c, err := Extract(src, DefaultParams())
	require.NoError(t, err)
	assert.Len(t, c.X, 2916)
	assert.InDelta(t, 300, c.MeanDepthMM, 0.001)
}

func TestExtractRotationSwapsAxes(t *testing.T) {
	t.Parallel()

	src := flatSource(64, 64, 0.3, 1000, 2000)
	c, err := Extract(src, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 0.3, c.X[0], 1e-6)
	assert.InDelta(t, 0.15, c.Y[0], 1e-6)

	src.Rotated = true
	c, err = Extract(src, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 0.15, c.X[0], 1e-6)
	assert.InDelta(t, 0.3, c.Y[0], 1e-6)
}

func TestExtractRejectsBackgroundDepth(t *testing.T) {
	t.Parallel()

	// Face plane at 30 cm with a wall at 90 cm across the lower rows. Both
	// map to plausible mm/px values, so only the depth stability filter
	// separates them.
	src := flatSource(64, 64, 0.3, 2000, 2000)
	for y := 49; y < 64; y++ {
		for x := 0; x < 64; x++ {
			src.Depth.Set(x, y, 0.9)
		}
	}

	c, err := Extract(src, DefaultParams())
	require.NoError(t, err)

	// 10 of the 54 evaluated rows are wall pixels.
	assert.Equal(t, 2*2916, c.Counts.RawCandidates)
	assert.Equal(t, 2*2376, c.Counts.FilteredCandidates)
	require.Len(t, c.X, 2376)
	assert.InDelta(t, 0.15, c.X[0], 1e-6)
	assert.InDelta(t, 300, c.MeanDepthMM, 0.001)
}

func TestExtractMeanDepthGate(t *testing.T) {
	t.Parallel()

	// 2 m with a long focal keeps mm/px plausible while the subject is far
	// beyond the supported envelope.
	src := flatSource(64, 64, 2.0, 10000, 10000)
	c, err := Extract(src, DefaultParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mean depth")

	// Diagnostics survive the rejection.
	assert.Equal(t, 2916, c.Counts.EvaluatedPixels)
	assert.Equal(t, 2*2916, c.Counts.RawCandidates)
}

func TestExtractValidation(t *testing.T) {
	t.Parallel()

	t.Run("missing raster", func(t *testing.T) {
		t.Parallel()
		src := flatSource(64, 64, 0.3, 1000, 1000)
		src.Depth = nil
		_, err := Extract(src, DefaultParams())
		assert.ErrorIs(t, err, ErrNoDepthSource)
	})

	t.Run("raster too small", func(t *testing.T) {
		t.Parallel()
		_, err := Extract(flatSource(8, 8, 0.3, 1000, 1000), DefaultParams())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too small")
	})

	t.Run("non-positive intrinsics", func(t *testing.T) {
		t.Parallel()
		_, err := Extract(flatSource(64, 64, 0.3, 0, 1000), DefaultParams())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "intrinsics")
	})

	t.Run("non-positive pixel scale", func(t *testing.T) {
		t.Parallel()
		src := flatSource(64, 64, 0.3, 1000, 1000)
		src.ScaleY = 0
		_, err := Extract(src, DefaultParams())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pixel scales")
	})

	t.Run("no usable pixels", func(t *testing.T) {
		t.Parallel()
		src := flatSource(64, 64, 0, 1000, 1000)
		c, err := Extract(src, DefaultParams())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no usable depth pixels")
		assert.Equal(t, 2916, c.Counts.EvaluatedPixels)
	})
}
