package starpsf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func gaussian(w, h int, sigma float64) []float32 {
	out := make([]float32, w*h)
	cx, cy := float64(w/2), float64(h/2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r2 := (float64(x)-cx)*(float64(x)-cx) + (float64(y)-cy)*(float64(y)-cy)
			out[y*w+x] = float32(math.Exp(-r2 / (2 * sigma * sigma)))
		}
	}
	return out
}

// varyingSet fills a set with stars whose profile is g + 0.1*x*g at the
// normalized position (x, y).
func varyingSet(t *testing.T) (*SampleSet, []float32) {
	t.Helper()
	set, err := NewSampleSet(2, 5, 5)
	require.NoError(t, err)
	g := gaussian(5, 5, 1.2)
	for _, y := range []float64{-1, 0, 1} {
		for _, x := range []float64{-1, -0.5, 0, 0.5, 1} {
			s, err := set.Append()
			require.NoError(t, err)
			s.Context[0], s.Context[1] = x, y
			s.Norm = 2
			for p := range s.Vig {
				s.Vig[p] = 2 * (g[p] + float32(0.1*x)*g[p])
				s.VigWeight[p] = 1
			}
		}
	}
	return set, g
}

func TestPixelFitter_RecoversVaryingProfile(t *testing.T) {
	t.Parallel()

	set, g := varyingSet(t)
	poly, err := NewPoly([]int{1, 1}, []int{1})
	require.NoError(t, err)

	pf := &PixelFitter{Ridge: defaultRidge, Logger: zaptest.NewLogger(t)}
	fit, err := pf.Fit(context.Background(), set.Builder(), poly)
	require.NoError(t, err)
	require.NoError(t, fit.Validate())

	assert.Equal(t, []int{5, 5, 3}, fit.Size)
	assert.Equal(t, float32(1), fit.PixStep)
	npix := 25
	for p := 0; p < npix; p++ {
		assert.InDelta(t, g[p], fit.Comp[p], 1e-4, "constant term pixel %d", p)
		assert.InDelta(t, 0.1*g[p], fit.Comp[npix+p], 1e-4, "x term pixel %d", p)
		assert.InDelta(t, 0, fit.Comp[2*npix+p], 1e-4, "y term pixel %d", p)
	}

	var sum float64
	for _, v := range g {
		sum += float64(v)
	}
	assert.InDelta(t, sum, fit.Poly.Coeff[0], 1e-3)
	assert.Equal(t, []float64{1, 1, 1}, fit.Poly.Basis, "snapshot at the last sample")

	for _, s := range set.Samples() {
		assert.InDelta(t, 0, s.Chi2, 1e-6)
		assert.InDelta(t, 0, s.ModResi, 1e-4)
	}

	m, err := NewModel(fit, Point2d{})
	require.NoError(t, err)
	img, err := m.Evaluate([]float64{0.5, -1})
	require.NoError(t, err)
	assert.InDelta(t, 1.05*float64(g[12]), float64(img.Pix[12]), 1e-4)
}

func TestPixelFitter_Errors(t *testing.T) {
	t.Parallel()

	set, _ := varyingSet(t)
	pf := NewPixelFitter(NewParams(), nil)

	poly, err := NewPoly([]int{1, 1}, []int{1})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pf.Fit(ctx, set.Builder(), poly)
	assert.ErrorIs(t, err, context.Canceled)

	wide, err := NewPoly([]int{1, 1, 1}, []int{1})
	require.NoError(t, err)
	_, err = pf.Fit(context.Background(), set.Builder(), wide)
	assert.ErrorIs(t, err, ErrConfiguration)

	halfStep := NewParams()
	halfStep.PSFStep = 0.5
	_, err = NewPixelFitter(halfStep, nil).Fit(context.Background(), set.Builder(), poly)
	assert.ErrorIs(t, err, ErrConfiguration, "the engine works at the vignette resolution only")

	// Degree 5 has 21 terms for 15 samples.
	steep, err := NewPoly([]int{1, 1}, []int{5})
	require.NoError(t, err)
	_, err = pf.Fit(context.Background(), set.Builder(), steep)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestPixelFitter_IgnoresSubPixelOffsets(t *testing.T) {
	t.Parallel()

	set, _ := varyingSet(t)
	poly, err := NewPoly([]int{1, 1}, []int{1})
	require.NoError(t, err)
	pf := NewPixelFitter(NewParams(), zaptest.NewLogger(t))

	centered, err := pf.Fit(context.Background(), set.Builder(), poly)
	require.NoError(t, err)

	for i, s := range set.Samples() {
		s.DX = 0.4 - 0.1*float64(i%5)
		s.DY = -0.3
	}
	shifted, err := pf.Fit(context.Background(), set.Builder(), poly.Clone())
	require.NoError(t, err)
	assert.Equal(t, centered.Comp, shifted.Comp)
}
