package landmark

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// EyeCenters carries one frame's landmark hints from the face-tracking
// collaborator: both eye centers in sensor space plus their projections
// into image pixel space.
type EyeCenters struct {
	Left  r3.Vector `json:"left"` // meters, sensor space
	Right r3.Vector `json:"right"`

	LeftPixel  r2.Point `json:"left_px"` // image pixels
	RightPixel r2.Point `json:"right_px"`
}

// IPDMM is the interpupillary distance in millimeters, measured in 3-D
// sensor space.
func (e EyeCenters) IPDMM() float64 {
	return e.Left.Sub(e.Right).Norm() * 1000
}

// PixelGap is the distance between the projected eye centers, in image
// pixels.
func (e EyeCenters) PixelGap() float64 {
	return e.LeftPixel.Sub(e.RightPixel).Norm()
}
