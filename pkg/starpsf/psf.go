package starpsf

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
)

// Model is a fitted PSF: basis images combined with polynomial weights of the
// normalized query position. A Model owns all of its storage and is never
// modified by evaluation, so one Model may be evaluated from many goroutines.
type Model struct {
	poly            *Poly
	pixStep         float32
	size            []int
	comp            []float32
	context         []ContextNorm
	averagePosition Point2d
}

// NewModel deep-copies fit into a standalone model. avg is the reference
// position recorded with the model.
func NewModel(fit *Fit, avg Point2d) (*Model, error) {
	if err := fit.Validate(); err != nil {
		return nil, err
	}
	return &Model{
		poly:            fit.Poly.Clone(),
		pixStep:         fit.PixStep,
		size:            append([]int(nil), fit.Size...),
		comp:            append([]float32(nil), fit.Comp...),
		context:         append([]ContextNorm(nil), fit.Context...),
		averagePosition: avg,
	}, nil
}

// NDim returns the number of context dimensions.
func (m *Model) NDim() int { return m.poly.NDim() }

// NCoeff returns the number of polynomial terms.
func (m *Model) NCoeff() int { return m.poly.NCoeff() }

// PixStep returns the basis sampling step.
func (m *Model) PixStep() float32 { return m.pixStep }

// Size returns a copy of the basis image size array.
func (m *Model) Size() []int { return append([]int(nil), m.size...) }

// Width returns the basis image width.
func (m *Model) Width() int { return m.size[0] }

// Height returns the basis image height.
func (m *Model) Height() int { return m.size[1] }

// NComp returns the number of basis images.
func (m *Model) NComp() int {
	if len(m.size) > 2 {
		return m.size[2]
	}
	return 1
}

// Context returns a copy of the per-dimension normalizations.
func (m *Model) Context() []ContextNorm { return append([]ContextNorm(nil), m.context...) }

// AveragePosition returns the reference position.
func (m *Model) AveragePosition() Point2d { return m.averagePosition }

// Poly returns a deep copy of the polynomial.
func (m *Model) Poly() *Poly { return m.poly.Clone() }

// Component returns a copy of basis image k.
func (m *Model) Component(k int) ([]float32, error) {
	if k < 0 || k >= m.NComp() {
		return nil, fmt.Errorf("%w: component %d, have %d", ErrRange, k, m.NComp())
	}
	npix := m.size[0] * m.size[1]
	return append([]float32(nil), m.comp[k*npix:(k+1)*npix]...), nil
}

// BasisChecksum hashes the basis pixels and coefficients.
func (m *Model) BasisChecksum() uint32 {
	h := crc32.NewIEEE()
	var buf [8]byte
	for _, v := range m.comp {
		binary.BigEndian.PutUint32(buf[:4], math.Float32bits(v))
		h.Write(buf[:4])
	}
	for _, v := range m.poly.Coeff {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return h.Sum32()
}

// Evaluate reconstructs the PSF at pos, given in raw context units. Only
// two-dimensional contexts are supported.
func (m *Model) Evaluate(pos []float64) (*Image, error) {
	ndim := m.poly.NDim()
	if ndim != 2 {
		return nil, fmt.Errorf("%w: evaluation needs 2 context dimensions, model has %d", ErrConfiguration, ndim)
	}
	if len(pos) != ndim {
		return nil, fmt.Errorf("%w: query has %d coordinates, want %d", ErrConfiguration, len(pos), ndim)
	}

	norm := make([]float64, ndim)
	for i, c := range m.context {
		norm[i] = c.Apply(pos[i])
	}
	weights := m.poly.Func(norm)

	w, h := m.size[0], m.size[1]
	npix := w * h
	img := NewImage(w, h)
	acc := NewMatWithSize(h, w)
	defer acc.Close()
	for k := 0; k < m.NComp(); k++ {
		basis := NewMatFromFloat32(h, w, m.comp[k*npix:(k+1)*npix])
		addWeighted(&acc, basis, float32(weights[k]))
		basis.Close()
	}
	copy(img.Pix, acc.DataFloat32())
	return img, nil
}

// String summarizes the model.
func (m *Model) String() string {
	return fmt.Sprintf("{NDim=%d, Terms=%d, Size=%v, Step=%f, Ref=(%f,%f)}",
		m.poly.NDim(), m.poly.NCoeff(), m.size, m.pixStep, m.averagePosition.X, m.averagePosition.Y)
}
