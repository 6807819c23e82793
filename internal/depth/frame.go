package depth

import (
	"time"

	"github.com/relabs-tech/optical_ruler/internal/landmark"
)

// Intrinsics carries the pinhole focal lengths of a depth raster, in
// raster pixels. The principal point is not needed for scale estimation.
type Intrinsics struct {
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
}

func (i Intrinsics) Valid() bool {
	return i.Fx > 0 && i.Fy > 0
}

// Frame is a single capture from the depth collaborator. Either depth
// raster may be absent; Resolve picks between them.
type Frame struct {
	SceneDepth      *Map           // dense scene depth, preferred when present
	SceneConfidence *ConfidenceMap // optional, same resolution as SceneDepth
	SingleShot      *Map           // single-shot fallback capture, no confidence

	Intrinsics Intrinsics // scaled to the depth raster resolution
	ScaleX     float64    // raster pixel to image pixel scale, horizontal
	ScaleY     float64    // vertical
	Rotated    bool       // image is rotated a quarter turn from the raster

	Timestamp time.Time
	Eyes      *landmark.EyeCenters // optional landmark hints
	Tracked   bool                 // face tracking state from the collaborator
}

// FrameSource is anything that can provide depth frames over time: a
// synthetic generator, a replay directory, or a live capture feed.
type FrameSource interface {
	Next() (Frame, error)
}
