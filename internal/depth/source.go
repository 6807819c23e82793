// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package depth

import "github.com/pkg/errors"

// ErrNoDepthSource means a frame carried no usable depth raster at all.
var ErrNoDepthSource = errors.New("no depth source available")

// Kind tags which raster a resolved Source is backed by.
type Kind int

const (
	KindSceneDepth Kind = iota
	KindSingleShot
)

func (k Kind) String() string {
	switch k {
	case KindSceneDepth:
		return "scene_depth"
	case KindSingleShot:
		return "single_shot"
	default:
		return "unknown"
	}
}

// Source is the normalized view over whichever raster a frame carries,
// together with the geometry needed to interpret it.
type Source struct {
	Kind       Kind
	Depth      *Map
	Confidence *ConfidenceMap // nil for single-shot captures
	Intrinsics Intrinsics
	ScaleX     float64
	ScaleY     float64
	Rotated    bool
}

// Resolve selects the depth raster for a frame. Dense scene depth wins
// over a single-shot capture; the two are never mixed.
func Resolve(f Frame) (Source, error) {
	switch {
	case f.SceneDepth != nil:
		return Source{
			Kind:       KindSceneDepth,
			Depth:      f.SceneDepth,
			Confidence: f.SceneConfidence,
			Intrinsics: f.Intrinsics,
			ScaleX:     f.ScaleX,
			ScaleY:     f.ScaleY,
			Rotated:    f.Rotated,
		}, nil
	case f.SingleShot != nil:
		return Source{
			Kind:       KindSingleShot,
			Depth:      f.SingleShot,
			Intrinsics: f.Intrinsics,
			ScaleX:     f.ScaleX,
			ScaleY:     f.ScaleY,
			Rotated:    f.Rotated,
		}, nil
	default:
		return Source{}, ErrNoDepthSource
	}
}
