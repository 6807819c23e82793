package app

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"

	draw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/relabs-tech/optical_ruler/internal/calibration"
	"github.com/relabs-tech/optical_ruler/internal/depth"
	"github.com/relabs-tech/optical_ruler/internal/logging"
)

const previewMaxDim = 384

// HandlePreview renders the most recent depth raster as an 8-bit
// grayscale PNG, near pixels bright, rescaled to a browser-friendly
// size, with the estimator state stamped along the bottom edge.
func (c *captureRig) HandlePreview(w http.ResponseWriter, r *http.Request) {
	frame := c.latest()
	if frame == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	src, err := depth.Resolve(*frame)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	img := scalePreview(renderDepth(src.Depth))
	stampStatus(img, c.est.Diagnostics())

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		logging.S().Warnf("preview: png encode error: %v", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(buf.Bytes()); err != nil {
		logging.S().Warnf("preview: write error: %v", err)
	}
}

// renderDepth maps the raster's depth range onto 8-bit gray. Invalid
// pixels render black.
func renderDepth(m *depth.Map) *image.Gray {
	lo, hi := math.Inf(1), math.Inf(-1)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			d := m.At(x, y)
			if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
				continue
			}
			if d < lo {
				lo = d
			}
			if d > hi {
				hi = d
			}
		}
	}

	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	if lo >= hi {
		return img
	}
	span := hi - lo
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			d := m.At(x, y)
			if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
				continue
			}
			v := uint8(255 - (d-lo)/span*255)
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// stampStatus draws a one-line pool summary onto the bottom of the
// preview.
func stampStatus(img *image.Gray, d calibration.Diagnostics) {
	b := img.Bounds()
	if b.Dy() < 24 {
		return
	}
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{color.Gray{Y: 255}},
		Face: basicfont.Face7x13,
		Dot:  fixed.P(4, b.Max.Y-6),
	}
	drawer.DrawString(fmt.Sprintf("pool %d  x %.4f  y %.4f",
		d.PoolSize, d.LastMMPerPixelX, d.LastMMPerPixelY))
}

// scalePreview fits the image into previewMaxDim, preserving aspect.
func scalePreview(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if longest == previewMaxDim || longest == 0 {
		return img
	}
	scale := float64(previewMaxDim) / float64(longest)
	dst := image.NewGray(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
