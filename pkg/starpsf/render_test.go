package starpsf

import (
	"bytes"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPNG(t *testing.T) {
	t.Parallel()

	m, err := NewModel(twoComponentFit(t), Point2d{})
	require.NoError(t, err)
	img, err := m.Evaluate([]float64{0.5, 0})
	require.NoError(t, err)
	img.Pix[12] = 10

	data, err := RenderPNGBytes(img, "x=0.5 y=0")
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 400, decoded.Bounds().Dx())
	assert.Equal(t, 420, decoded.Bounds().Dy())

	// The peak is the brightest pixel, the flat surroundings are darker.
	r, _, _, _ := decoded.At(2*80+40, 2*80+40).RGBA()
	bg, _, _, _ := decoded.At(40, 40).RGBA()
	assert.Greater(t, r, bg)
}

func TestRenderJPEG(t *testing.T) {
	t.Parallel()

	img := NewImage(50, 10)
	img.Pix[3] = 1
	var buf bytes.Buffer
	require.NoError(t, RenderJPEG(&buf, img, ""))
	cfg, err := jpeg.DecodeConfig(&buf)
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 8*10+labelHeight, cfg.Height)
}

func TestRender_NoImage(t *testing.T) {
	t.Parallel()

	_, err := RenderPNGBytes(nil, "")
	assert.Error(t, err)
	assert.Error(t, RenderPNG(&bytes.Buffer{}, NewImage(0, 0), ""))
}
