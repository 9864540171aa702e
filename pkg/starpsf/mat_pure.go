//go:build !gocv

package starpsf

import "math"

// Mat is a pure Go 2D float32 matrix.
type Mat struct {
	data []float32
}

func NewMatWithSize(rows, cols int) Mat {
	return Mat{data: make([]float32, rows*cols)}
}

// NewMatFromFloat32 copies pix into a rows x cols matrix.
func NewMatFromFloat32(rows, cols int, pix []float32) Mat {
	m := NewMatWithSize(rows, cols)
	copy(m.data, pix)
	return m
}

func (m *Mat) Close() {
	m.data = nil
}

// DataFloat32 returns the backing float32 slice.
func (m Mat) DataFloat32() []float32 { return m.data }

// addWeighted computes dst += weight * src over the whole matrix.
func addWeighted(dst *Mat, src Mat, weight float32) {
	d := dst.data
	for i, v := range src.data[:len(d)] {
		d[i] += weight * v
	}
}

func matMeanStdDev(src Mat) (float64, float64) {
	n := len(src.data)
	if n == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for _, v := range src.data {
		f := float64(v)
		sum += f
		sumSq += f * f
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}
