package starpsf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	byteOrder = binary.BigEndian
	magic     = [4]byte{'P', 'S', 'F', 'M'}
)

// maxArrayLen bounds every array length read from block 1.
const maxArrayLen = 1 << 26

// header is block 1 of the model layout.
type header struct {
	NDim       int32
	NGroup     int32
	NCoeff     int32
	SizeLen    int32
	CompLen    int32
	ContextLen int32
	AvgX       float64
	AvgY       float64
	PixStep    float32
}

// Encode writes m: the container header, then block 1 (scalars and array
// lengths), then block 2 (arrays). Group indices are written zero-based.
func Encode(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)
	if err := writeContainer(bw, FormatTag, FormatVersion); err != nil {
		return err
	}

	hdr := header{
		NDim:       int32(m.poly.NDim()),
		NGroup:     int32(m.poly.NGroup()),
		NCoeff:     int32(m.poly.NCoeff()),
		SizeLen:    int32(len(m.size)),
		CompLen:    int32(len(m.comp)),
		ContextLen: int32(len(m.context)),
		AvgX:       m.averagePosition.X,
		AvgY:       m.averagePosition.Y,
		PixStep:    m.pixStep,
	}
	if err := binary.Write(bw, byteOrder, &hdr); err != nil {
		return fmt.Errorf("write metadata block: %w", err)
	}

	group := make([]int32, len(m.poly.Group))
	for i, g := range m.poly.Group {
		group[i] = int32(g - 1)
	}
	offset := make([]float64, len(m.context))
	scale := make([]float64, len(m.context))
	for i, c := range m.context {
		offset[i], scale[i] = c.Offset, c.Scale
	}
	arrays := []any{
		group,
		toInt32(m.poly.Degree),
		m.poly.Basis,
		m.poly.Coeff,
		toInt32(m.size),
		m.comp,
		offset,
		scale,
	}
	for _, a := range arrays {
		if err := binary.Write(bw, byteOrder, a); err != nil {
			return fmt.Errorf("write array block: %w", err)
		}
	}
	return bw.Flush()
}

// Decode reads a model written by Encode, dispatching on the stored format
// tag and version.
func Decode(r io.Reader) (*Model, error) {
	br := bufio.NewReader(r)
	tag, version, err := readContainer(br)
	if err != nil {
		return nil, err
	}
	dec, err := lookupDecoder(tag, version)
	if err != nil {
		return nil, err
	}
	return dec(br)
}

// Marshal encodes m into a byte slice.
func Marshal(m *Model) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a model from data.
func Unmarshal(data []byte) (*Model, error) {
	return Decode(bytes.NewReader(data))
}

func writeContainer(w io.Writer, tag string, version uint16) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, byteOrder, uint16(len(tag))); err != nil {
		return fmt.Errorf("write tag: %w", err)
	}
	if _, err := io.WriteString(w, tag); err != nil {
		return fmt.Errorf("write tag: %w", err)
	}
	if err := binary.Write(w, byteOrder, version); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	return nil
}

func readContainer(r io.Reader) (string, uint16, error) {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return "", 0, fmt.Errorf("read magic: %w", err)
	}
	if got != magic {
		return "", 0, fmt.Errorf("%w: bad magic %q", ErrUnknownFormat, got[:])
	}
	var n uint16
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return "", 0, fmt.Errorf("read tag: %w", err)
	}
	tag := make([]byte, n)
	if _, err := io.ReadFull(r, tag); err != nil {
		return "", 0, fmt.Errorf("read tag: %w", err)
	}
	var version uint16
	if err := binary.Read(r, byteOrder, &version); err != nil {
		return "", 0, fmt.Errorf("read version: %w", err)
	}
	return string(tag), version, nil
}

func decodePsfexV1(r io.Reader) (*Model, error) {
	var hdr header
	if err := binary.Read(r, byteOrder, &hdr); err != nil {
		return nil, fmt.Errorf("read metadata block: %w", truncated(err))
	}
	if err := hdr.validate(); err != nil {
		return nil, err
	}

	// Each declared length is checked against what the earlier arrays imply
	// before the next array is allocated.
	group, err := readArray[int32](r, int(hdr.NDim))
	if err != nil {
		return nil, fmt.Errorf("read groups: %w", err)
	}
	degree, err := readArray[int32](r, int(hdr.NGroup))
	if err != nil {
		return nil, fmt.Errorf("read degrees: %w", err)
	}
	groups := make([]int, len(group))
	for i, g := range group {
		groups[i] = int(g) + 1
	}
	poly, err := NewPoly(groups, fromInt32(degree))
	if err != nil {
		return nil, fmt.Errorf("%w: stored polynomial: %v", ErrRange, err)
	}
	if poly.NCoeff() != int(hdr.NCoeff) {
		return nil, fmt.Errorf("%w: stored %d terms, layout implies %d", ErrRange, hdr.NCoeff, poly.NCoeff())
	}
	basis, err := readArray[float64](r, poly.NCoeff())
	if err != nil {
		return nil, fmt.Errorf("read basis: %w", err)
	}
	coeff, err := readArray[float64](r, poly.NCoeff())
	if err != nil {
		return nil, fmt.Errorf("read coefficients: %w", err)
	}
	copy(poly.Basis, basis)
	copy(poly.Coeff, coeff)

	size, err := readArray[int32](r, int(hdr.SizeLen))
	if err != nil {
		return nil, fmt.Errorf("read size: %w", err)
	}
	npix := 1
	for _, n := range size {
		if n <= 0 || n > maxArrayLen {
			return nil, fmt.Errorf("%w: basis size %v", ErrRange, size)
		}
		npix *= int(n)
		if npix > maxArrayLen {
			return nil, fmt.Errorf("%w: basis size %v exceeds %d pixels", ErrRange, size, maxArrayLen)
		}
	}
	if len(size) == 0 || npix != int(hdr.CompLen) {
		return nil, fmt.Errorf("%w: %d stored pixels for basis size %v", ErrRange, hdr.CompLen, size)
	}
	comp, err := readArray[float32](r, npix)
	if err != nil {
		return nil, fmt.Errorf("read basis images: %w", err)
	}
	offset, err := readArray[float64](r, int(hdr.ContextLen))
	if err != nil {
		return nil, fmt.Errorf("read context offsets: %w", err)
	}
	scale, err := readArray[float64](r, int(hdr.ContextLen))
	if err != nil {
		return nil, fmt.Errorf("read context scales: %w", err)
	}

	context := make([]ContextNorm, hdr.ContextLen)
	for i := range context {
		context[i] = ContextNorm{Offset: offset[i], Scale: scale[i]}
	}
	fit := &Fit{
		Poly:    poly,
		PixStep: hdr.PixStep,
		Size:    fromInt32(size),
		Comp:    comp,
		Context: context,
	}
	if err := fit.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRange, err)
	}
	return &Model{
		poly:            poly,
		pixStep:         hdr.PixStep,
		size:            fit.Size,
		comp:            comp,
		context:         context,
		averagePosition: Point2d{X: hdr.AvgX, Y: hdr.AvgY},
	}, nil
}

// readChunk bounds each read so that memory grows with the bytes actually
// present rather than with the declared length.
const readChunk = 1 << 16

func readArray[T int32 | float32 | float64](r io.Reader, n int) ([]T, error) {
	out := make([]T, 0, min(n, readChunk))
	buf := make([]T, min(n, readChunk))
	for len(out) < n {
		part := buf[:min(n-len(out), readChunk)]
		if err := binary.Read(r, byteOrder, part); err != nil {
			return nil, truncated(err)
		}
		out = append(out, part...)
	}
	return out, nil
}

func (h header) validate() error {
	lens := []struct {
		name string
		n    int32
		max  int32
	}{
		{"dimension", h.NDim, MaxPolyDim},
		{"group", h.NGroup, MaxPolyDim},
		{"term", h.NCoeff, maxArrayLen},
		{"size", h.SizeLen, 3},
		{"pixel", h.CompLen, maxArrayLen},
		{"context", h.ContextLen, MaxPolyDim},
	}
	for _, l := range lens {
		if l.n < 0 || l.n > l.max {
			return fmt.Errorf("%w: %s count %d, want 0..%d", ErrRange, l.name, l.n, l.max)
		}
	}
	if h.ContextLen != h.NDim {
		return fmt.Errorf("%w: %d context pairs for %d dimensions", ErrRange, h.ContextLen, h.NDim)
	}
	return nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated model: %v", ErrRange, err)
	}
	return err
}

func toInt32(v []int) []int32 {
	out := make([]int32, len(v))
	for i, x := range v {
		out[i] = int32(x)
	}
	return out
}

func fromInt32(v []int32) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}
