package depth

// Confidence classifies how reliable a single depth pixel is.
type Confidence uint8

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

// Map is a dense depth raster: row-major distances from the sensor in
// meters, Width*Height entries.
type Map struct {
	Width  int
	Height int
	Depths []float32
}

func NewMap(w, h int) *Map {
	return &Map{Width: w, Height: h, Depths: make([]float32, w*h)}
}

// At returns the depth in meters at (x, y). No bounds checking.
func (m *Map) At(x, y int) float64 {
	return float64(m.Depths[y*m.Width+x])
}

func (m *Map) Set(x, y int, meters float64) {
	m.Depths[y*m.Width+x] = float32(meters)
}

// ConfidenceMap mirrors a depth raster with a per-pixel reliability level.
type ConfidenceMap struct {
	Width  int
	Height int
	Levels []Confidence
}

func NewConfidenceMap(w, h int) *ConfidenceMap {
	return &ConfidenceMap{Width: w, Height: h, Levels: make([]Confidence, w*h)}
}

func (c *ConfidenceMap) At(x, y int) Confidence {
	return c.Levels[y*c.Width+x]
}

func (c *ConfidenceMap) Set(x, y int, level Confidence) {
	c.Levels[y*c.Width+x] = level
}

// Fill sets every pixel to the given level.
func (c *ConfidenceMap) Fill(level Confidence) {
	for i := range c.Levels {
		c.Levels[i] = level
	}
}
