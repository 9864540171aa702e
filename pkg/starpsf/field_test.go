package starpsf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skyMapping(lng, lat, scale, radius float64) StaticMapping {
	return StaticMapping{
		Lng:         0,
		Lat:         1,
		ScalePosDeg: []float64{lng, lat},
		ScaleDeg:    []float64{scale, scale},
		Radius:      radius,
	}
}

func TestNewField_Names(t *testing.T) {
	t.Parallel()

	f := NewField("/data/run1/field.cat", 0)
	assert.Equal(t, "field.cat", f.RCatName)
	assert.Equal(t, "field", f.RTCatName)
	assert.Equal(t, DefaultNSnap, f.NSnap())
}

func TestField_LocateEmpty(t *testing.T) {
	t.Parallel()

	f := NewField("empty.cat", 3)
	f.Locate()
	assert.Nil(t, f.MeanPos)
	assert.Nil(t, f.MeanScale)
	assert.Zero(t, f.MaxRadius)
}

func TestField_LocateSingleExtension(t *testing.T) {
	t.Parallel()

	f := NewField("single.cat", 3)
	require.NoError(t, f.AddExtension(skyMapping(150.25, 20.5, 0.0002, 0.1), 2048, 4096, 12))
	f.Locate()

	require.Len(t, f.MeanPos, 2)
	assert.InDelta(t, 150.25, f.MeanPos[0], 1e-9)
	assert.InDelta(t, 20.5, f.MeanPos[1], 1e-9)
	assert.Equal(t, []float64{0.0002, 0.0002}, f.MeanScale)
	assert.InDelta(t, 0.1, f.MaxRadius, 1e-5)
	assert.Equal(t, 12, f.NDet)
}

func TestField_LocateLongitudeWrap(t *testing.T) {
	t.Parallel()

	f := NewField("wrap.cat", 3)
	require.NoError(t, f.AddExtension(skyMapping(350, 0, 0.0003, 0.5), 100, 100, 1))
	require.NoError(t, f.AddExtension(skyMapping(10, 0, 0.0003, 0.5), 100, 100, 1))
	f.Locate()

	lng := f.MeanPos[0]
	assert.GreaterOrEqual(t, lng, 0.0)
	assert.Less(t, lng, 360.0)
	assert.Less(t, math.Min(lng, 360-lng), 1e-9, "mean longitude %f should be near 0", lng)
	assert.InDelta(t, 0, f.MeanPos[1], 1e-9)
	assert.InDelta(t, 10.5, f.MaxRadius, 1e-9)
}

func TestField_LocateLatitude(t *testing.T) {
	t.Parallel()

	f := NewField("lat.cat", 3)
	require.NoError(t, f.AddExtension(skyMapping(0, 30, 1, 0), 10, 10, 0))
	require.NoError(t, f.AddExtension(skyMapping(0, -30, 1, 0), 10, 10, 0))
	require.NoError(t, f.AddExtension(skyMapping(0, 90, 1, 0), 10, 10, 0))
	f.Locate()

	want := math.Asin((math.Sin(30*deg)+math.Sin(-30*deg)+1)/3) / deg
	assert.InDelta(t, want, f.MeanPos[1], 1e-9)
}

func TestField_LocateLinearAxes(t *testing.T) {
	t.Parallel()

	flat := func(x, y, scale, radius float64) StaticMapping {
		return StaticMapping{ScalePosDeg: []float64{x, y}, ScaleDeg: []float64{scale, scale * 2}, Radius: radius}
	}
	f := NewField("flat.cat", 3)
	require.NoError(t, f.AddExtension(flat(1, 2, 1, 0.5), 10, 10, 0))
	require.NoError(t, f.AddExtension(flat(3, 4, 2, 0.5), 10, 10, 0))
	require.NoError(t, f.AddExtension(flat(5, 6, 100, 0.5), 10, 10, 0))
	f.Locate()

	assert.Equal(t, []float64{3, 4}, f.MeanPos)
	assert.Equal(t, []float64{2, 4}, f.MeanScale, "median rejects the outlier chip")
	assert.InDelta(t, math.Sqrt(8)+0.5, f.MaxRadius, 1e-12)
}

func TestField_MedianScaleEvenCount(t *testing.T) {
	t.Parallel()

	f := NewField("even.cat", 3)
	require.NoError(t, f.AddExtension(skyMapping(10, 10, 1, 0), 10, 10, 0))
	require.NoError(t, f.AddExtension(skyMapping(10, 10, 3, 0), 10, 10, 0))
	f.Locate()
	assert.Equal(t, []float64{2, 2}, f.MeanScale)
}

func TestField_AddExtensionRejectsMixedFamilies(t *testing.T) {
	t.Parallel()

	f := NewField("mixed.cat", 3)
	require.NoError(t, f.AddExtension(skyMapping(10, 10, 1, 0), 10, 10, 0))

	flat := StaticMapping{ScalePosDeg: []float64{1, 2}, ScaleDeg: []float64{1, 1}}
	assert.ErrorIs(t, f.AddExtension(flat, 10, 10, 0), ErrConfiguration)

	swapped := StaticMapping{Lng: 1, Lat: 0, ScalePosDeg: []float64{1, 2}, ScaleDeg: []float64{1, 1}}
	assert.ErrorIs(t, f.AddExtension(swapped, 10, 10, 0), ErrConfiguration)

	short := StaticMapping{Lng: 0, Lat: 1, ScalePosDeg: []float64{1, 2}, ScaleDeg: []float64{1}}
	assert.ErrorIs(t, f.AddExtension(short, 10, 10, 0), ErrConfiguration)

	assert.ErrorIs(t, f.AddExtension(nil, 10, 10, 0), ErrConfiguration)
	assert.Len(t, f.Extensions, 1)
}

func TestField_AddExtensionRejectsSkyAxesOutOfRange(t *testing.T) {
	t.Parallel()

	for _, m := range []StaticMapping{
		{Lng: 2, Lat: 3, ScalePosDeg: []float64{10, 20}, ScaleDeg: []float64{1, 1}},
		{Lng: 0, Lat: 2, ScalePosDeg: []float64{10, 20}, ScaleDeg: []float64{1, 1}},
		{Lng: -1, Lat: 1, ScalePosDeg: []float64{10, 20}, ScaleDeg: []float64{1, 1}},
	} {
		f := NewField("axes.cat", 3)
		assert.ErrorIs(t, f.AddExtension(m, 10, 10, 0), ErrConfiguration, "lng=%d lat=%d", m.Lng, m.Lat)
		assert.Empty(t, f.Extensions)
		assert.NotPanics(t, f.Locate)
	}
}

func TestSkyDistance(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 90, SkyDistance(2, 0, 1, []float64{0, 0}, []float64{0, 90}), 1e-9)
	assert.InDelta(t, 20, SkyDistance(2, 0, 1, []float64{350, 0}, []float64{10, 0}), 1e-9)
	assert.InDelta(t, 180, SkyDistance(2, 0, 1, []float64{0, 0}, []float64{180, 0}), 1e-6)
	assert.InDelta(t, 5, SkyDistance(2, 0, 0, []float64{0, 0}, []float64{3, 4}), 1e-12)
}

func TestCountAndStats(t *testing.T) {
	t.Parallel()

	f := NewField("counts.cat", 2)
	require.NoError(t, f.AddExtension(skyMapping(10, 10, 1, 0), 100, 100, 2))

	set, err := NewSampleSet(0, 3, 3)
	require.NoError(t, err)
	positions := []Point2d{{10, 10}, {90, 90}, {95, 85}}
	for i, p := range positions {
		s, err := set.Append()
		require.NoError(t, err)
		s.SetX(p.X)
		s.SetY(p.Y)
		s.Chi2 = float64(i + 1)
		s.ModResi = 0.5
	}

	fields := []*Field{f}
	assert.ErrorIs(t, Count(fields, set, CountLoaded), ErrConfiguration, "grids exist only after Finalize")

	f.Finalize()
	require.NoError(t, Count(fields, set, CountLoaded))
	require.NoError(t, Count(fields, set, CountLoaded|CountAccepted))
	require.NoError(t, Stats(fields, set))

	ext := f.Extensions[0]
	assert.Equal(t, []int{2, 0, 0, 4}, ext.Loaded)
	assert.Equal(t, []int{1, 0, 0, 2}, ext.Accepted)
	assert.Equal(t, []int{1, 0, 0, 2}, ext.Count)
	assert.Equal(t, []float64{1, 0, 0, 5}, ext.ModChi2)
	assert.Equal(t, []float64{0.5, 0, 0, 1}, ext.ModResi)
	assert.Equal(t, []float64{1, 0, 0, 2.5}, ext.MeanChi2())

	s, err := set.At(0)
	require.NoError(t, err)
	s.ExtIndex = 3
	assert.ErrorIs(t, Stats(fields, set), ErrRange)
	s.ExtIndex = 0
	s.CatIndex = 1
	assert.ErrorIs(t, Count(fields, set, CountLoaded), ErrRange)
}
