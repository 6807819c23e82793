// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package depth

import (
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/relabs-tech/optical_ruler/internal/landmark"
)

// replayMeta is the JSON sidecar stored next to every recorded raster.
type replayMeta struct {
	Kind    string               `json:"kind"` // "scene" (default) or "single_shot"
	Fx      float64              `json:"fx"`
	Fy      float64              `json:"fy"`
	ScaleX  float64              `json:"scale_x"`
	ScaleY  float64              `json:"scale_y"`
	Rotated bool                 `json:"rotated"`
	Tracked *bool                `json:"tracked,omitempty"`
	Eyes    *landmark.EyeCenters `json:"eyes,omitempty"`
}

// ReplaySource feeds recorded frames from a directory in filename order,
// wrapping around at the end. Rasters are 16-bit grayscale PNGs holding
// millimeter distances; each NNNN.png pairs with an NNNN.json sidecar
// and an optional NNNN_conf.png confidence raster.
type ReplaySource struct {
	dir   string
	files []string
	idx   int
}

func NewReplaySource(dir string) (*ReplaySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read replay directory")
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".png") || strings.HasSuffix(name, "_conf.png") {
			continue
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no recorded frames in %s", dir)
	}
	sort.Strings(files)
	return &ReplaySource{dir: dir, files: files}, nil
}

func (r *ReplaySource) Next() (Frame, error) {
	name := r.files[r.idx]
	r.idx = (r.idx + 1) % len(r.files)
	base := strings.TrimSuffix(name, ".png")

	m, err := readDepthPNG(filepath.Join(r.dir, name))
	if err != nil {
		return Frame{}, errors.Wrapf(err, "frame %s", name)
	}
	meta, err := readReplayMeta(filepath.Join(r.dir, base+".json"))
	if err != nil {
		return Frame{}, errors.Wrapf(err, "frame %s", name)
	}

	var conf *ConfidenceMap
	confPath := filepath.Join(r.dir, base+"_conf.png")
	if _, err := os.Stat(confPath); err == nil {
		conf, err = readConfidencePNG(confPath)
		if err != nil {
			return Frame{}, errors.Wrapf(err, "frame %s confidence", name)
		}
	}

	f := Frame{
		Intrinsics: Intrinsics{Fx: meta.Fx, Fy: meta.Fy},
		ScaleX:     meta.ScaleX,
		ScaleY:     meta.ScaleY,
		Rotated:    meta.Rotated,
		Timestamp:  time.Now(), // replayed as if captured live
		Eyes:       meta.Eyes,
		Tracked:    true,
	}
	if meta.Tracked != nil {
		f.Tracked = *meta.Tracked
	}
	if meta.Kind == "single_shot" {
		f.SingleShot = m
	} else {
		f.SceneDepth = m
		f.SceneConfidence = conf
	}
	return f, nil
}

func readDepthPNG(path string) (*Map, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	img, err := png.Decode(fh)
	if err != nil {
		return nil, err
	}
	gray, ok := img.(*image.Gray16)
	if !ok {
		return nil, errors.Errorf("expected 16-bit grayscale depth, got %T", img)
	}
	b := gray.Bounds()
	m := NewMap(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			mm := gray.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			m.Set(x, y, float64(mm)/1000) // stored in mm, frames carry meters
		}
	}
	return m, nil
}

func readConfidencePNG(path string) (*ConfidenceMap, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	img, err := png.Decode(fh)
	if err != nil {
		return nil, err
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		return nil, errors.Errorf("expected 8-bit grayscale confidence, got %T", img)
	}
	b := gray.Bounds()
	c := NewConfidenceMap(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			level := Confidence(v / 85) // thirds of the 8-bit range
			if level > ConfidenceHigh {
				level = ConfidenceHigh
			}
			c.Set(x, y, level)
		}
	}
	return c, nil
}

func readReplayMeta(path string) (replayMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return replayMeta{}, errors.Wrap(err, "read sidecar")
	}
	meta := replayMeta{ScaleX: 1, ScaleY: 1}
	if err := json.Unmarshal(data, &meta); err != nil {
		return replayMeta{}, errors.Wrap(err, "parse sidecar")
	}
	return meta, nil
}
