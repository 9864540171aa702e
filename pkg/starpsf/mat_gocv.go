//go:build gocv

package starpsf

import "gocv.io/x/gocv"

// Mat wraps gocv.Mat for the native OpenCV backend.
type Mat struct {
	m gocv.Mat
}

func NewMatWithSize(rows, cols int) Mat {
	return Mat{m: gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)}
}

// NewMatFromFloat32 copies pix into a rows x cols matrix.
func NewMatFromFloat32(rows, cols int, pix []float32) Mat {
	m := NewMatWithSize(rows, cols)
	copy(m.DataFloat32(), pix)
	return m
}

func (mat *Mat) Close() { mat.m.Close() }

func (mat Mat) DataFloat32() []float32 {
	data, _ := mat.m.DataPtrFloat32()
	return data
}

// addWeighted computes dst += weight * src over the whole matrix.
func addWeighted(dst *Mat, src Mat, weight float32) {
	gocv.AddWeighted(dst.m, 1, src.m, float64(weight), 0, &dst.m)
}

func matMeanStdDev(src Mat) (float64, float64) {
	meanMat := gocv.NewMat()
	defer meanMat.Close()
	stdMat := gocv.NewMat()
	defer stdMat.Close()
	gocv.MeanStdDev(src.m, &meanMat, &stdMat)
	return meanMat.GetDoubleAt(0, 0), stdMat.GetDoubleAt(0, 0)
}
