package starpsf

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// DefaultNSnap is the default number of areas per side of the per-extension
// statistics grid.
const DefaultNSnap = 9

// CountKind selects which per-area counter Count increments.
type CountKind int

const (
	CountLoaded CountKind = 1 << iota
	CountAccepted
)

// Extension is one chip of an exposure. The mapping is supplied by the
// caller and only read.
type Extension struct {
	Mapping CoordMapping
	Width   int
	Height  int
	NDet    int

	// Per-area grids, nsnap*nsnap entries each, allocated by Finalize.
	Loaded   []int
	Accepted []int
	Count    []int
	ModChi2  []float64
	ModResi  []float64
}

// Field is one exposure made of one or more extensions, with its derived
// location statistics.
type Field struct {
	CatName   string
	RCatName  string
	RTCatName string
	Ident     string
	NDet      int

	Extensions []*Extension

	MeanPos   []float64
	MeanScale []float64
	MaxRadius float64

	nsnap int
}

// NewField creates an empty field named after its catalog path.
func NewField(catName string, nsnap int) *Field {
	if nsnap <= 0 {
		nsnap = DefaultNSnap
	}
	rcat := filepath.Base(catName)
	return &Field{
		CatName:   catName,
		RCatName:  rcat,
		RTCatName: strings.TrimSuffix(rcat, filepath.Ext(rcat)),
		Ident:     "??",
		nsnap:     nsnap,
	}
}

// NSnap returns the number of statistics areas per side.
func (f *Field) NSnap() int { return f.nsnap }

// AddExtension appends a chip. Every extension of a field must share the
// coordinate family of the first one.
func (f *Field) AddExtension(m CoordMapping, width, height, nobj int) error {
	if m == nil {
		return fmt.Errorf("%w: nil coordinate mapping", ErrConfiguration)
	}
	if len(m.ScalePos()) != m.NAxis() || len(m.Scale()) != m.NAxis() {
		return fmt.Errorf("%w: mapping has %d axes but %d positions and %d scales",
			ErrConfiguration, m.NAxis(), len(m.ScalePos()), len(m.Scale()))
	}
	if lng, lat := m.LngAxis(), m.LatAxis(); lng != lat &&
		(lng < 0 || lng >= m.NAxis() || lat < 0 || lat >= m.NAxis()) {
		return fmt.Errorf("%w: sky axes lng=%d lat=%d outside a %d-axis mapping",
			ErrConfiguration, lng, lat, m.NAxis())
	}
	if len(f.Extensions) > 0 {
		first := f.Extensions[0].Mapping
		if first.NAxis() != m.NAxis() || first.LngAxis() != m.LngAxis() || first.LatAxis() != m.LatAxis() {
			return fmt.Errorf("%w: extension %d coordinate family (naxis=%d lng=%d lat=%d) differs from (naxis=%d lng=%d lat=%d)",
				ErrConfiguration, len(f.Extensions), m.NAxis(), m.LngAxis(), m.LatAxis(),
				first.NAxis(), first.LngAxis(), first.LatAxis())
		}
	}
	f.Extensions = append(f.Extensions, &Extension{
		Mapping: m,
		Width:   width,
		Height:  height,
		NDet:    nobj,
	})
	f.NDet += nobj
	return nil
}

// Finalize locates the field and allocates the per-area grids.
func (f *Field) Finalize() {
	f.Locate()
	size := f.nsnap * f.nsnap
	for _, e := range f.Extensions {
		e.Loaded = make([]int, size)
		e.Accepted = make([]int, size)
		e.Count = make([]int, size)
		e.ModChi2 = make([]float64, size)
		e.ModResi = make([]float64, size)
	}
}

// Locate computes the mean world position, median pixel scale and maximum
// radius of the field. A field without extensions keeps zero statistics.
func (f *Field) Locate() {
	if len(f.Extensions) == 0 {
		f.MeanPos, f.MeanScale, f.MaxRadius = nil, nil, 0
		return
	}

	first := f.Extensions[0].Mapping
	naxis := first.NAxis()
	lng, lat := first.LngAxis(), first.LatAxis()
	sky := lat != lng

	var cosAlpha, sinAlpha, sinDelta []float64
	linear := make([][]float64, naxis)
	scales := make([][]float64, naxis)
	for _, e := range f.Extensions {
		m := e.Mapping
		pos, scale := m.ScalePos(), m.Scale()
		if sky {
			cosAlpha = append(cosAlpha, math.Cos(pos[lng]*deg))
			sinAlpha = append(sinAlpha, math.Sin(pos[lng]*deg))
			sinDelta = append(sinDelta, math.Sin(pos[lat]*deg))
		}
		for i := 0; i < naxis; i++ {
			if !sky || (i != lng && i != lat) {
				linear[i] = append(linear[i], pos[i])
			}
			scales[i] = append(scales[i], scale[i])
		}
	}

	f.MeanPos = make([]float64, naxis)
	f.MeanScale = make([]float64, naxis)
	for i := 0; i < naxis; i++ {
		switch {
		case sky && i == lng:
			mean := math.Atan2(stat.Mean(sinAlpha, nil), stat.Mean(cosAlpha, nil)) / deg
			f.MeanPos[i] = math.Mod(mean+360, 360)
		case sky && i == lat:
			f.MeanPos[i] = math.Asin(stat.Mean(sinDelta, nil)) / deg
		default:
			f.MeanPos[i] = stat.Mean(linear[i], nil)
		}
		f.MeanScale[i] = medianFloat64(scales[i])
	}

	maxRadius := 0.0
	for _, e := range f.Extensions {
		m := e.Mapping
		dist := SkyDistance(naxis, lng, lat, m.ScalePos(), f.MeanPos) + m.MaxRadius()
		if dist > maxRadius {
			maxRadius = dist
		}
	}
	f.MaxRadius = maxRadius
}

// snapIndex maps a pixel position onto the nsnap x nsnap area grid.
func snapIndex(x, y float64, width, height, nsnap int) int {
	col := clampInt(int((x-0.5)*float64(nsnap))/width, 0, nsnap-1)
	row := clampInt(int((y-0.5)*float64(nsnap))/height, 0, nsnap-1)
	return row*nsnap + col
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (f *Field) extensionFor(s *Sample) (*Extension, error) {
	if s.ExtIndex < 0 || s.ExtIndex >= len(f.Extensions) {
		return nil, fmt.Errorf("%w: sample extension %d, field %s has %d", ErrRange, s.ExtIndex, f.RCatName, len(f.Extensions))
	}
	e := f.Extensions[s.ExtIndex]
	if e.Count == nil {
		return nil, fmt.Errorf("%w: field %s not finalized", ErrConfiguration, f.RCatName)
	}
	if e.Width <= 0 || e.Height <= 0 {
		return nil, fmt.Errorf("%w: extension %d of %s has no pixel size", ErrConfiguration, s.ExtIndex, f.RCatName)
	}
	return e, nil
}

func fieldFor(fields []*Field, s *Sample) (*Field, error) {
	if s.CatIndex < 0 || s.CatIndex >= len(fields) {
		return nil, fmt.Errorf("%w: sample catalog %d, have %d fields", ErrRange, s.CatIndex, len(fields))
	}
	return fields[s.CatIndex], nil
}

// Count tallies the samples of set per image area of their extension.
func Count(fields []*Field, set *SampleSet, kind CountKind) error {
	for _, s := range set.Samples() {
		f, err := fieldFor(fields, s)
		if err != nil {
			return err
		}
		e, err := f.extensionFor(s)
		if err != nil {
			return err
		}
		n := snapIndex(s.X, s.Y, e.Width, e.Height, f.nsnap)
		if kind&CountLoaded != 0 {
			e.Loaded[n]++
		}
		if kind&CountAccepted != 0 {
			e.Accepted[n]++
		}
	}
	return nil
}

// Stats accumulates the fit chi2 and residual of each sample per image area.
func Stats(fields []*Field, set *SampleSet) error {
	for _, s := range set.Samples() {
		f, err := fieldFor(fields, s)
		if err != nil {
			return err
		}
		e, err := f.extensionFor(s)
		if err != nil {
			return err
		}
		n := snapIndex(s.X, s.Y, e.Width, e.Height, f.nsnap)
		e.Count[n]++
		e.ModChi2[n] += s.Chi2
		e.ModResi[n] += s.ModResi
	}
	return nil
}

// MeanChi2 returns the average chi2 of each area, zero where no sample fell.
func (e *Extension) MeanChi2() []float64 {
	out := make([]float64, len(e.Count))
	for i, c := range e.Count {
		if c > 0 {
			out[i] = e.ModChi2[i] / float64(c)
		}
	}
	return out
}

func medianFloat64(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}
