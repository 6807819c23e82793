// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package depth

import (
	"math"
	"math/rand"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/relabs-tech/optical_ruler/internal/landmark"
)

// SyntheticSource generates flat-plane depth frames whose distance sways
// slowly over time, with per-pixel noise, matching eye landmarks and
// optional simulated tracking dropouts. Used by the local consoles and as
// the producer's default input when no recording is configured.
type SyntheticSource struct {
	Width, Height  int
	Fx, Fy         float64 // raster pixels
	ScaleX, ScaleY float64 // raster pixel to image pixel
	BaseDepthM     float64 // distance the plane sways around
	SwayM          float64 // amplitude of the slow distance sway
	NoiseM         float64 // sigma of the per-pixel noise
	IPDMM          float64 // synthetic interpupillary distance
	DropEvery      int     // every Nth frame loses tracking; 0 disables

	start time.Time
	n     int
	rng   *rand.Rand
}

// NewSyntheticSource returns a generator resembling a face held around
// 30 cm from a phone-class depth module.
func NewSyntheticSource(seed int64) *SyntheticSource {
	return &SyntheticSource{
		Width:      96,
		Height:     96,
		Fx:         110,
		Fy:         110,
		ScaleX:     7.5,
		ScaleY:     7.5,
		BaseDepthM: 0.30,
		SwayM:      0.01,
		NoiseM:     0.002,
		IPDMM:      63,
		start:      time.Now(),
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (s *SyntheticSource) Next() (Frame, error) {
	s.n++
	elapsed := time.Since(s.start).Seconds()
	d := s.BaseDepthM + s.SwayM*math.Sin(elapsed*0.8)

	m := NewMap(s.Width, s.Height)
	conf := NewConfidenceMap(s.Width, s.Height)
	conf.Fill(ConfidenceHigh)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			v := d
			if s.NoiseM > 0 {
				v += s.rng.NormFloat64() * s.NoiseM
			}
			m.Set(x, y, v)
		}
	}

	tracked := true
	if s.DropEvery > 0 && s.n%s.DropEvery == 0 {
		tracked = false
	}

	// Landmarks consistent with the plane distance: the projected gap is
	// exactly IPD divided by the horizontal scale at depth d.
	mmPerImagePixelX := d * 1000 / s.Fx / s.ScaleX
	gap := s.IPDMM / mmPerImagePixelX
	cx := float64(s.Width) * s.ScaleX / 2
	cy := float64(s.Height) * s.ScaleY / 2
	eyes := &landmark.EyeCenters{
		Left:       r3.Vector{X: -s.IPDMM / 2000, Y: 0, Z: d},
		Right:      r3.Vector{X: s.IPDMM / 2000, Y: 0, Z: d},
		LeftPixel:  r2.Point{X: cx - gap/2, Y: cy},
		RightPixel: r2.Point{X: cx + gap/2, Y: cy},
	}

	return Frame{
		SceneDepth:      m,
		SceneConfidence: conf,
		Intrinsics:      Intrinsics{Fx: s.Fx, Fy: s.Fy},
		ScaleX:          s.ScaleX,
		ScaleY:          s.ScaleY,
		Timestamp:       time.Now(),
		Eyes:            eyes,
		Tracked:         tracked,
	}, nil
}
