package starpsf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewPoly_TermOrder(t *testing.T) {
	t.Parallel()

	p, err := NewPoly([]int{1, 1}, []int{2})
	require.NoError(t, err)
	require.Equal(t, 6, p.NCoeff())

	want := [][]int{{0, 0}, {1, 0}, {2, 0}, {0, 1}, {1, 1}, {0, 2}}
	for i, w := range want {
		assert.Equal(t, w, p.Exponents(i), "term %d", i)
	}
	assert.Equal(t, []float64{1, 2, 4, 3, 6, 9}, p.Func([]float64{2, 3}))
}

func TestNewPoly_TermCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		groups  []int
		degrees []int
		want    int
	}{
		{"no dimension", nil, nil, 1},
		{"one dim degree 3", []int{1}, []int{3}, 4},
		{"two dims one group", []int{1, 1}, []int{3}, 10},
		{"two groups", []int{1, 2}, []int{2, 3}, 12},
		{"degree zero group", []int{1, 2}, []int{1, 0}, 2},
		{"three dims mixed", []int{1, 1, 2}, []int{2, 1}, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPoly(tt.groups, tt.degrees)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.NCoeff())
			assert.Len(t, p.Coeff, tt.want)
			assert.Len(t, p.Basis, tt.want)
		})
	}
}

func TestNewPoly_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		groups  []int
		degrees []int
	}{
		{"too many dims", []int{1, 1, 1, 1, 1}, []int{1}},
		{"group zero", []int{0}, []int{1}},
		{"group beyond count", []int{2}, []int{1}},
		{"empty group", []int{1}, []int{1, 2}},
		{"negative degree", []int{1}, []int{-1}},
		{"degree too high", []int{1}, []int{MaxPolyDegree + 1}},
		{"dims without group", []int{1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPoly(tt.groups, tt.degrees)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestPoly_EvalAndSnapshot(t *testing.T) {
	t.Parallel()

	p, err := NewPoly([]int{1, 1}, []int{1})
	require.NoError(t, err)
	copy(p.Coeff, []float64{1, 2, 3})

	assert.InDelta(t, 1+2*0.5+3*-1.0, p.Eval([]float64{0.5, -1}), 1e-12)
	assert.Equal(t, []float64{0, 0, 0}, p.Basis, "Eval must not touch the snapshot")

	p.Snapshot([]float64{0.5, -1})
	assert.Equal(t, []float64{1, 0.5, -1}, p.Basis)
}

func TestPoly_CloneIsDeep(t *testing.T) {
	t.Parallel()

	p, err := NewPoly([]int{1, 2}, []int{2, 1})
	require.NoError(t, err)
	p.Coeff[0] = 7

	c := p.Clone()
	c.Coeff[0] = 8
	c.Group[0] = 2
	c.expo[1][0] = 9

	assert.Equal(t, 7.0, p.Coeff[0])
	assert.Equal(t, 1, p.Group[0])
	assert.Equal(t, []int{1, 0}, p.Exponents(1))
}

func TestBinomial(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, binomial(5, 0))
	assert.Equal(t, 10, binomial(5, 2))
	assert.Equal(t, 0, binomial(2, 3))
	assert.Equal(t, 861, binomial(42, 2))
}
