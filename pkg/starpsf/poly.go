package starpsf

import "fmt"

const (
	// MaxPolyDim is the largest number of polynomial dimensions supported.
	MaxPolyDim = 4
	// MaxPolyDegree is the largest degree allowed for one group.
	MaxPolyDegree = 40
)

// Poly is a multivariate polynomial whose dimensions are partitioned into
// groups, each group bounded by its own total degree. The basis terms are the
// cross product of the per-group monomials, with the first dimension varying
// fastest: one group of degree 2 over (x, y) yields 1, x, x², y, xy, y².
type Poly struct {
	// Group holds the one-based group of each dimension.
	Group []int
	// Degree holds the maximum total degree of each group.
	Degree []int
	// Coeff holds one coefficient per basis term.
	Coeff []float64
	// Basis is a snapshot of the basis values from the last evaluation made
	// while the polynomial was being built. Evaluation never updates it.
	Basis []float64

	ngroup int
	expo   [][]int
}

// NewPoly validates the group/degree layout and enumerates the basis terms.
// groups are one-based and len(degrees) is the group count.
func NewPoly(groups, degrees []int) (*Poly, error) {
	ndim := len(groups)
	ngroup := len(degrees)
	if ndim > MaxPolyDim {
		return nil, fmt.Errorf("%w: %d polynomial dimensions, at most %d supported", ErrConfiguration, ndim, MaxPolyDim)
	}
	if ndim > 0 && ngroup == 0 {
		return nil, fmt.Errorf("%w: %d dimensions but no group", ErrConfiguration, ndim)
	}

	groupDims := make([]int, ngroup)
	for d, g := range groups {
		if g < 1 || g > ngroup {
			return nil, fmt.Errorf("%w: dimension %d has group %d, want 1..%d", ErrConfiguration, d, g, ngroup)
		}
		groupDims[g-1]++
	}
	for g, deg := range degrees {
		if deg < 0 || deg > MaxPolyDegree {
			return nil, fmt.Errorf("%w: group %d degree %d, want 0..%d", ErrConfiguration, g+1, deg, MaxPolyDegree)
		}
		if groupDims[g] == 0 {
			return nil, fmt.Errorf("%w: group %d has no dimension", ErrConfiguration, g+1)
		}
	}

	p := &Poly{
		Group:  append([]int(nil), groups...),
		Degree: append([]int(nil), degrees...),
		ngroup: ngroup,
	}
	p.expo = enumerateTerms(p.Group, p.Degree)

	want := 1
	for g, deg := range degrees {
		want *= binomial(deg+groupDims[g], groupDims[g])
	}
	if len(p.expo) != want {
		return nil, fmt.Errorf("%w: enumerated %d terms, expected %d", ErrConfiguration, len(p.expo), want)
	}

	p.Coeff = make([]float64, len(p.expo))
	p.Basis = make([]float64, len(p.expo))
	return p, nil
}

// enumerateTerms walks the exponent odometer: the first dimension increments
// first and a dimension rolls over once its group exceeds the group degree.
func enumerateTerms(groups, degrees []int) [][]int {
	ndim := len(groups)
	cur := make([]int, ndim)
	gsum := make([]int, len(degrees))
	terms := [][]int{append([]int(nil), cur...)}
	if ndim == 0 {
		return terms
	}
	for {
		d := 0
		for d < ndim {
			g := groups[d] - 1
			if gsum[g] < degrees[g] {
				cur[d]++
				gsum[g]++
				break
			}
			gsum[g] -= cur[d]
			cur[d] = 0
			d++
		}
		if d == ndim {
			return terms
		}
		terms = append(terms, append([]int(nil), cur...))
	}
}

func binomial(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	r := 1
	for i := 1; i <= k; i++ {
		r = r * (n - k + i) / i
	}
	return r
}

// NDim returns the number of polynomial dimensions.
func (p *Poly) NDim() int { return len(p.Group) }

// NGroup returns the number of groups.
func (p *Poly) NGroup() int { return p.ngroup }

// NCoeff returns the number of basis terms.
func (p *Poly) NCoeff() int { return len(p.expo) }

// Exponents returns the per-dimension exponents of term t.
func (p *Poly) Exponents(t int) []int {
	return append([]int(nil), p.expo[t]...)
}

// Func returns the value of every basis term at pos. It depends only on the
// term structure and pos.
func (p *Poly) Func(pos []float64) []float64 {
	basis := make([]float64, len(p.expo))
	p.funcInto(pos, basis)
	return basis
}

func (p *Poly) funcInto(pos []float64, basis []float64) {
	ndim := len(p.Group)
	// powers[d][e] = pos[d]^e
	powers := make([][]float64, ndim)
	for d := 0; d < ndim; d++ {
		maxe := p.Degree[p.Group[d]-1]
		pw := make([]float64, maxe+1)
		pw[0] = 1
		for e := 1; e <= maxe; e++ {
			pw[e] = pw[e-1] * pos[d]
		}
		powers[d] = pw
	}
	for t, ex := range p.expo {
		v := 1.0
		for d, e := range ex {
			v *= powers[d][e]
		}
		basis[t] = v
	}
}

// Eval returns the polynomial value sum(Coeff[t] * basis[t]) at pos.
func (p *Poly) Eval(pos []float64) float64 {
	basis := p.Func(pos)
	var v float64
	for t, b := range basis {
		v += p.Coeff[t] * b
	}
	return v
}

// Snapshot evaluates the basis at pos and stores the result in Basis. It is
// meant for the build stage; models never call it after construction.
func (p *Poly) Snapshot(pos []float64) {
	p.funcInto(pos, p.Basis)
}

// Clone returns a deep copy.
func (p *Poly) Clone() *Poly {
	c := &Poly{
		Group:  append([]int(nil), p.Group...),
		Degree: append([]int(nil), p.Degree...),
		Coeff:  append([]float64(nil), p.Coeff...),
		Basis:  append([]float64(nil), p.Basis...),
		ngroup: p.ngroup,
		expo:   make([][]int, len(p.expo)),
	}
	for t, ex := range p.expo {
		c.expo[t] = append([]int(nil), ex...)
	}
	return c
}
