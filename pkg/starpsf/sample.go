package starpsf

import "fmt"

// Sample is one star vignette and its fit bookkeeping. Samples are owned by
// the SampleSet that reserved them.
type Sample struct {
	CatIndex int
	ExtIndex int

	X, Y   float64
	DX, DY float64

	// Context holds the normalized covariates.
	Context []float64

	Norm       float32
	BackNoise2 float32
	Gain       float32
	FluxRad    float32

	Vig       []float32
	VigResi   []float32
	VigChi    []float32
	VigWeight []float32

	Chi2    float64
	ModResi float64
}

func newSample(nvig, ncontext int) *Sample {
	s := &Sample{
		Vig:       make([]float32, nvig),
		VigResi:   make([]float32, nvig),
		VigChi:    make([]float32, nvig),
		VigWeight: make([]float32, nvig),
	}
	if ncontext > 0 {
		s.Context = make([]float64, ncontext)
	}
	return s
}

// SetX sets the x position and derives the sub-pixel offset from the nearest
// pixel center.
func (s *Sample) SetX(x float64) {
	s.X = x
	s.DX = x - float64(int(x+0.49999))
}

// SetY sets the y position and derives the sub-pixel offset from the nearest
// pixel center.
func (s *Sample) SetY(y float64) {
	s.Y = y
	s.DY = y - float64(int(y+0.49999))
}

// SetVig copies a row-major vignette into the sample.
func (s *Sample) SetVig(pix []float32) error {
	if len(pix) != len(s.Vig) {
		return fmt.Errorf("%w: vignette has %d pixels, want %d", ErrConfiguration, len(pix), len(s.Vig))
	}
	copy(s.Vig, pix)
	return nil
}

// CropVignette cuts a cw x ch window out of a row-major w x h vignette,
// keeping the center pixel (w/2, h/2) at the center of the window.
func CropVignette(pix []float32, w, h, cw, ch int) ([]float32, error) {
	if len(pix) != w*h {
		return nil, fmt.Errorf("%w: vignette has %d pixels, want %dx%d", ErrConfiguration, len(pix), w, h)
	}
	if cw <= 0 || ch <= 0 || cw > w || ch > h {
		return nil, fmt.Errorf("%w: cannot cut %dx%d out of a %dx%d vignette", ErrConfiguration, cw, ch, w, h)
	}
	if cw == w && ch == h {
		return append([]float32(nil), pix...), nil
	}
	x0, y0 := w/2-cw/2, h/2-ch/2
	out := make([]float32, 0, cw*ch)
	for y := y0; y < y0+ch; y++ {
		out = append(out, pix[y*w+x0:y*w+x0+cw]...)
	}
	return out, nil
}

func (s *Sample) String() string {
	return fmt.Sprintf("{Cat=%d, Ext=%d, Pos=(%f,%f), Offset=(%f,%f), Norm=%f, Chi2=%f}",
		s.CatIndex, s.ExtIndex, s.X, s.Y, s.DX, s.DY, s.Norm, s.Chi2)
}
