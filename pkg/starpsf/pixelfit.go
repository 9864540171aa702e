package starpsf

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// defaultRidge is added to the normal-equation diagonal, relative to its
// trace, when a pixel system is singular.
const defaultRidge = 1e-9

// PixelFitter is a reference FittingEngine. For every basis pixel it solves
// the weighted least-squares problem vig/norm = sum_k comp_k * basis_k(context)
// over all samples, so that component k varies as polynomial term k.
//
// The basis is sampled at the vignette resolution: PixStep must be 1 (or
// unset). Sub-pixel offsets from FitBuilder.Offset are not applied, so the
// vignettes must already be centered on their stars.
type PixelFitter struct {
	PixStep float32
	Ridge   float64
	Logger  *zap.Logger
}

// NewPixelFitter returns an engine configured from p.
func NewPixelFitter(p Params, logger *zap.Logger) *PixelFitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PixelFitter{PixStep: p.PSFStep, Ridge: defaultRidge, Logger: logger}
}

// Fit implements FittingEngine.
func (pf *PixelFitter) Fit(ctx context.Context, b FitBuilder, poly *Poly) (*Fit, error) {
	logger := pf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	step := pf.PixStep
	if step <= 0 {
		step = 1
	}
	if step != 1 {
		return nil, fmt.Errorf("%w: basis step %g, this engine does not resample vignettes", ErrConfiguration, step)
	}
	nsample := b.Len()
	ncoeff := poly.NCoeff()
	if b.NContext() != poly.NDim() {
		return nil, fmt.Errorf("%w: %d sample contexts for a %d-dimensional polynomial", ErrConfiguration, b.NContext(), poly.NDim())
	}
	if nsample < ncoeff {
		return nil, fmt.Errorf("%w: %d samples cannot constrain %d polynomial terms", ErrConfiguration, nsample, ncoeff)
	}
	w, h := b.VigSize()
	npix := w * h

	basis := make([][]float64, nsample)
	scaled := make([]float64, nsample)
	for i := 0; i < nsample; i++ {
		basis[i] = poly.Func(b.Context(i))
		scaled[i] = float64(b.Norm(i))
	}

	comp := make([]float32, npix*ncoeff)
	a := mat.NewSymDense(ncoeff, nil)
	rhs := mat.NewVecDense(ncoeff, nil)
	sol := mat.NewVecDense(ncoeff, nil)
	var chol mat.Cholesky
	singular := 0

	for p := 0; p < npix; p++ {
		if p%w == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		a.Zero()
		rhs.Zero()
		for i := 0; i < nsample; i++ {
			norm := scaled[i]
			wt := float64(b.Weight(i)[p])
			if wt <= 0 || norm == 0 {
				continue
			}
			// Dividing the data by norm scales its variance by norm^2.
			wt *= norm * norm
			y := float64(b.Vig(i)[p]) / norm
			bi := basis[i]
			for k := 0; k < ncoeff; k++ {
				rhs.SetVec(k, rhs.AtVec(k)+wt*y*bi[k])
				for l := k; l < ncoeff; l++ {
					a.SetSym(k, l, a.At(k, l)+wt*bi[k]*bi[l])
				}
			}
		}
		if mat.Trace(a) == 0 {
			continue
		}
		if !chol.Factorize(a) {
			singular++
			ridge := pf.Ridge * mat.Trace(a) / float64(ncoeff)
			for k := 0; k < ncoeff; k++ {
				a.SetSym(k, k, a.At(k, k)+ridge)
			}
			if !chol.Factorize(a) {
				continue
			}
		}
		if err := chol.SolveVecTo(sol, rhs); err != nil {
			continue
		}
		for k := 0; k < ncoeff; k++ {
			comp[k*npix+p] = float32(sol.AtVec(k))
		}
	}
	if singular > 0 {
		logger.Debug("regularized singular pixel systems", zap.Int("pixels", singular))
	}

	fitted := poly.Clone()
	pixels := make([]float64, npix)
	for k := 0; k < ncoeff; k++ {
		for p := range pixels {
			pixels[p] = float64(comp[k*npix+p])
		}
		fitted.Coeff[k] = floats.Sum(pixels)
	}
	fitted.Snapshot(b.Context(nsample - 1))

	resi := make([]float32, npix)
	for i := 0; i < nsample; i++ {
		var chi2 float64
		vig, wts := b.Vig(i), b.Weight(i)
		norm := float32(scaled[i])
		for p := 0; p < npix; p++ {
			var model float32
			for k := 0; k < ncoeff; k++ {
				model += comp[k*npix+p] * float32(basis[i][k])
			}
			r := vig[p] - norm*model
			resi[p] = r
			chi2 += float64(wts[p]) * float64(r) * float64(r)
		}
		if err := b.SetResidual(i, resi, chi2); err != nil {
			return nil, err
		}
	}

	size := []int{w, h}
	if ncoeff > 1 {
		size = append(size, ncoeff)
	}
	norms := make([]ContextNorm, b.NContext())
	for i := range norms {
		norms[i] = b.ContextNorm(i)
	}
	logger.Info("fitted PSF basis",
		zap.Int("samples", nsample),
		zap.Int("terms", ncoeff),
		zap.Int("width", w),
		zap.Int("height", h))
	return &Fit{Poly: fitted, PixStep: step, Size: size, Comp: comp, Context: norms}, nil
}
