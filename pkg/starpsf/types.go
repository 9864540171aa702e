package starpsf

import (
	"fmt"
	"math"
)

// bigValue flags bad vignette pixels: anything at or below -bigValue.
const bigValue = 1e30

// Point2d represents a 2D point with float64 coordinates.
type Point2d struct {
	X, Y float64
}

// ContextNorm is the (offset, scale) pair normalizing one covariate:
// normalized = (raw - Offset) / Scale.
type ContextNorm struct {
	Offset float64
	Scale  float64
}

// Apply normalizes a raw covariate value.
func (n ContextNorm) Apply(raw float64) float64 {
	return (raw - n.Offset) / n.Scale
}

// NormFromRange centers a covariate on its range and scales it by the range
// width. A degenerate range keeps a unit scale.
func NormFromRange(min, max float64) ContextNorm {
	scale := max - min
	if scale == 0 || math.IsNaN(scale) {
		scale = 1
	}
	return ContextNorm{Offset: (min + max) / 2, Scale: scale}
}

// Image is an evaluated PSF: row-major pixels whose (0, 0) pixel sits at
// (X0, Y0) relative to the query position.
type Image struct {
	Width  int
	Height int
	X0     int
	Y0     int
	Pix    []float32
}

// NewImage allocates a zeroed image centered on the origin.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		X0:     -width / 2,
		Y0:     -height / 2,
		Pix:    make([]float32, width*height),
	}
}

// At returns the pixel at column x and row y of the buffer.
func (im *Image) At(x, y int) float32 {
	return im.Pix[y*im.Width+x]
}

// Sum returns the total flux.
func (im *Image) Sum() float64 {
	var s float64
	for _, v := range im.Pix {
		s += float64(v)
	}
	return s
}

// Peak returns the maximum pixel value and its buffer coordinates.
func (im *Image) Peak() (float32, int, int) {
	if len(im.Pix) == 0 {
		return 0, 0, 0
	}
	best := 0
	for i, v := range im.Pix {
		if v > im.Pix[best] {
			best = i
		}
	}
	return im.Pix[best], best % im.Width, best / im.Width
}

func (im *Image) String() string {
	return fmt.Sprintf("{Size=%dx%d, Origin=(%d,%d), Sum=%f}", im.Width, im.Height, im.X0, im.Y0, im.Sum())
}
