//go:build js && wasm

package main

import (
	"syscall/js"

	"starpsf/pkg/starpsf"
)

var (
	lastModel *starpsf.Model
	lastImage *starpsf.Image
)

func main() {
	js.Global().Set("loadPSF", js.FuncOf(loadPSF))
	js.Global().Set("evaluatePSF", js.FuncOf(evaluatePSF))
	js.Global().Set("renderPSF", js.FuncOf(renderPSF))
	select {} // block forever
}

// loadPSF(modelBytes) decodes a model and reports its structure.
func loadPSF(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("usage: loadPSF(modelBytes)")
	}
	data := make([]byte, args[0].Get("length").Int())
	js.CopyBytesToGo(data, args[0])

	m, err := starpsf.Unmarshal(data)
	if err != nil {
		return errorResult("model decode error: " + err.Error())
	}
	lastModel = m

	avg := m.AveragePosition()
	return js.ValueOf(map[string]interface{}{
		"ndim":     m.NDim(),
		"terms":    m.NCoeff(),
		"width":    m.Width(),
		"height":   m.Height(),
		"ncomp":    m.NComp(),
		"pixStep":  float64(m.PixStep()),
		"refX":     avg.X,
		"refY":     avg.Y,
		"checksum": int(m.BasisChecksum()),
	})
}

// evaluatePSF(x, y) evaluates the last loaded model.
func evaluatePSF(this js.Value, args []js.Value) interface{} {
	if lastModel == nil {
		return errorResult("no model loaded")
	}
	if len(args) < 2 {
		return errorResult("usage: evaluatePSF(x, y)")
	}
	img, err := lastModel.Evaluate([]float64{args[0].Float(), args[1].Float()})
	if err != nil {
		return errorResult(err.Error())
	}
	lastImage = img

	pix := make([]interface{}, len(img.Pix))
	for i, v := range img.Pix {
		pix[i] = float64(v)
	}
	peak, px, py := img.Peak()
	return js.ValueOf(map[string]interface{}{
		"width":  img.Width,
		"height": img.Height,
		"x0":     img.X0,
		"y0":     img.Y0,
		"flux":   img.Sum(),
		"peak":   float64(peak),
		"peakX":  px + img.X0,
		"peakY":  py + img.Y0,
		"pixels": pix,
	})
}

// renderPSF() returns a PNG snapshot of the last evaluation.
func renderPSF(this js.Value, args []js.Value) interface{} {
	if lastImage == nil {
		return js.Null()
	}
	pngBytes, err := starpsf.RenderPNGBytes(lastImage, "PSF")
	if err != nil {
		return js.Null()
	}

	uint8Array := js.Global().Get("Uint8Array").New(len(pngBytes))
	js.CopyBytesToJS(uint8Array, pngBytes)
	return uint8Array
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}
