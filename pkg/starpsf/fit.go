package starpsf

import (
	"context"
	"fmt"
)

// FitBuilder is the view of a sample set a fitting engine works from. It
// exposes the fit inputs read-only and a single way to record the residuals.
type FitBuilder interface {
	Len() int
	VigSize() (int, int)
	NContext() int
	ContextNorm(i int) ContextNorm
	// Context returns the normalized covariates of sample i.
	Context(i int) []float64
	Vig(i int) []float32
	Weight(i int) []float32
	Norm(i int) float32
	Offset(i int) (float64, float64)
	// SetResidual records the fit residual image and chi2 of sample i.
	SetResidual(i int, resi []float32, chi2 float64) error
}

// SetView adapts a SampleSet to FitBuilder.
type SetView struct {
	set *SampleSet
}

// Builder returns the fitting view of s.
func (s *SampleSet) Builder() *SetView { return &SetView{set: s} }

func (v *SetView) Len() int                      { return v.set.n }
func (v *SetView) VigSize() (int, int)           { return v.set.vigW, v.set.vigH }
func (v *SetView) NContext() int                 { return v.set.ncontext }
func (v *SetView) ContextNorm(i int) ContextNorm { return v.set.contextNorm[i] }
func (v *SetView) Context(i int) []float64       { return v.set.samples[i].Context }
func (v *SetView) Vig(i int) []float32           { return v.set.samples[i].Vig }
func (v *SetView) Weight(i int) []float32        { return v.set.samples[i].VigWeight }
func (v *SetView) Norm(i int) float32            { return v.set.samples[i].Norm }

func (v *SetView) Offset(i int) (float64, float64) {
	s := v.set.samples[i]
	return s.DX, s.DY
}

func (v *SetView) SetResidual(i int, resi []float32, chi2 float64) error {
	s, err := v.set.At(i)
	if err != nil {
		return err
	}
	if len(resi) != len(s.VigResi) {
		return fmt.Errorf("%w: residual has %d pixels, want %d", ErrConfiguration, len(resi), len(s.VigResi))
	}
	copy(s.VigResi, resi)
	var modResi float64
	for j, r := range resi {
		w := s.VigWeight[j]
		if w > 0 {
			s.VigChi[j] = r * r * w
		} else {
			s.VigChi[j] = 0
		}
		if s.Norm != 0 {
			modResi += float64(r / s.Norm)
		}
	}
	s.Chi2 = chi2
	s.ModResi = modResi
	return nil
}

// Fit is the output of a fitting engine.
type Fit struct {
	Poly *Poly
	// PixStep is the basis image sampling step in image pixels.
	PixStep float32
	// Size holds the basis width, height and, when there is more than one
	// basis image, their count.
	Size []int
	// Comp holds every basis image back to back.
	Comp []float32
	// Context normalizes the query coordinates, one pair per dimension.
	Context []ContextNorm
}

// NComp returns the number of basis images.
func (f *Fit) NComp() int {
	if len(f.Size) > 2 {
		return f.Size[2]
	}
	return 1
}

// Validate checks that the shapes of the fit agree with each other.
func (f *Fit) Validate() error {
	if f.Poly == nil {
		return fmt.Errorf("%w: fit has no polynomial", ErrConfiguration)
	}
	if len(f.Size) < 2 || len(f.Size) > 3 {
		return fmt.Errorf("%w: basis size has %d axes", ErrConfiguration, len(f.Size))
	}
	npix := 1
	for _, s := range f.Size {
		if s <= 0 {
			return fmt.Errorf("%w: basis size %v", ErrConfiguration, f.Size)
		}
		npix *= s
	}
	if len(f.Comp) != npix {
		return fmt.Errorf("%w: %d basis pixels for size %v", ErrConfiguration, len(f.Comp), f.Size)
	}
	if f.NComp() > f.Poly.NCoeff() {
		return fmt.Errorf("%w: %d basis images but %d polynomial terms", ErrConfiguration, f.NComp(), f.Poly.NCoeff())
	}
	if len(f.Context) != f.Poly.NDim() {
		return fmt.Errorf("%w: %d context normalizations for %d dimensions", ErrConfiguration, len(f.Context), f.Poly.NDim())
	}
	for i, c := range f.Context {
		if c.Scale == 0 {
			return fmt.Errorf("%w: zero scale for context %d", ErrConfiguration, i)
		}
	}
	return nil
}

// FittingEngine produces basis images and coefficients from samples. Errors
// are returned to the caller unchanged.
type FittingEngine interface {
	Fit(ctx context.Context, b FitBuilder, poly *Poly) (*Fit, error)
}
