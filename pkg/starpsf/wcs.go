package starpsf

import "math"

const deg = math.Pi / 180

// CoordMapping is the read-only view of an extension's pixel-to-sky mapping
// needed to locate a field. Angles are in degrees.
type CoordMapping interface {
	// NAxis returns the number of world axes.
	NAxis() int
	// LngAxis and LatAxis return the longitude and latitude axis indices.
	// They are equal when the system has no distinguished sky axes.
	LngAxis() int
	LatAxis() int
	// ScalePos returns the world position where the pixel scale was measured.
	ScalePos() []float64
	// Scale returns the pixel scale along each axis at ScalePos.
	Scale() []float64
	// MaxRadius returns the largest distance from ScalePos to the footprint.
	MaxRadius() float64
}

// StaticMapping is a CoordMapping holding precomputed values.
type StaticMapping struct {
	Lng         int       `yaml:"lng"`
	Lat         int       `yaml:"lat"`
	ScalePosDeg []float64 `yaml:"scale_pos"`
	ScaleDeg    []float64 `yaml:"scale"`
	Radius      float64   `yaml:"max_radius"`
}

func (m StaticMapping) NAxis() int          { return len(m.ScalePosDeg) }
func (m StaticMapping) LngAxis() int        { return m.Lng }
func (m StaticMapping) LatAxis() int        { return m.Lat }
func (m StaticMapping) ScalePos() []float64 { return m.ScalePosDeg }
func (m StaticMapping) Scale() []float64    { return m.ScaleDeg }
func (m StaticMapping) MaxRadius() float64  { return m.Radius }

// SkyDistance returns the distance between two world positions: the
// great-circle angle in degrees when lng and lat differ, the Euclidean
// distance over the naxis axes otherwise.
func SkyDistance(naxis, lng, lat int, a, b []float64) float64 {
	if lat != lng {
		s := math.Sin(a[lat]*deg)*math.Sin(b[lat]*deg) +
			math.Cos(a[lat]*deg)*math.Cos(b[lat]*deg)*math.Cos((b[lng]-a[lng])*deg)
		switch {
		case s <= -1:
			return 180
		case s >= 1:
			return 0
		}
		return math.Acos(s) / deg
	}
	var d float64
	for i := 0; i < naxis; i++ {
		t := b[i] - a[i]
		d += t * t
	}
	return math.Sqrt(d)
}
