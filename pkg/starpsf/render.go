package starpsf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	renderTarget = 400
	labelHeight  = 20
)

// RenderPNG writes a stretched grayscale snapshot of img with label below it.
func RenderPNG(w io.Writer, img *Image, label string) error {
	rgba, err := renderImage(img, label)
	if err != nil {
		return err
	}
	return png.Encode(w, rgba)
}

// RenderJPEG writes the same snapshot as RenderPNG in JPEG form.
func RenderJPEG(w io.Writer, img *Image, label string) error {
	rgba, err := renderImage(img, label)
	if err != nil {
		return err
	}
	return jpeg.Encode(w, rgba, &jpeg.Options{Quality: 90})
}

// RenderPNGBytes returns the PNG snapshot as bytes.
func RenderPNGBytes(img *Image, label string) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderPNG(&buf, img, label); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderImage upsamples img to about renderTarget pixels wide with an
// asinh stretch between the background and the peak.
func renderImage(img *Image, label string) (*image.RGBA, error) {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return nil, fmt.Errorf("no PSF image to render")
	}
	zoom := max(1, renderTarget/img.Width)
	imgW := img.Width * zoom
	imgH := img.Height * zoom
	out := image.NewRGBA(image.Rect(0, 0, imgW, imgH+labelHeight))
	for i := range out.Pix {
		out.Pix[i] = 0
		if i%4 == 3 {
			out.Pix[i] = 255
		}
	}

	m := NewMatFromFloat32(img.Height, img.Width, img.Pix)
	mean, std := matMeanStdDev(m)
	m.Close()
	peak, _, _ := img.Peak()
	lo := mean - std
	hi := float64(peak)
	if hi <= lo {
		hi = lo + 1
	}
	norm := math.Asinh(10)

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			t := (float64(img.At(x, y)) - lo) / (hi - lo)
			t = math.Min(math.Max(t, 0), 1)
			v := uint8(255 * math.Asinh(10*t) / norm)
			c := color.RGBA{v, v, v, 255}
			for dy := 0; dy < zoom; dy++ {
				for dx := 0; dx < zoom; dx++ {
					out.SetRGBA(x*zoom+dx, y*zoom+dy, c)
				}
			}
		}
	}

	drawText(out, basicfont.Face7x13, label, 5, imgH+labelHeight-6, color.RGBA{220, 220, 220, 255})
	return out, nil
}

// drawText draws a string at (x, y) using the given font face.
func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
