// Package fitsio reads and writes the primary HDU of FITS files holding star
// vignettes: one 2-D image or a 3-D cube of equally sized planes.
package fitsio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	recordSize = 80
	blockSize  = 2880
)

// Metadata holds parsed FITS header key-value pairs.
type Metadata struct {
	Headers map[string]string
}

// NewMetadata creates an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{Headers: make(map[string]string)}
}

func (m *Metadata) GetString(key string) string {
	if v, ok := m.Headers[strings.ToUpper(key)]; ok {
		return v
	}
	return ""
}

func (m *Metadata) GetDouble(key string) (float64, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(strings.Replace(v, "D", "E", 1)), 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

func (m *Metadata) GetInt(key string) (int, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return i, true
}

func (m *Metadata) ObjectName() string { return m.GetString("OBJECT") }
func (m *Metadata) Gain() (float64, bool) { return m.GetDouble("GAIN") }

// Image holds the planes of a FITS primary array as physical values.
type Image struct {
	Width    int
	Height   int
	BitPix   int
	Planes   [][]float32
	Metadata *Metadata
}

// Depth returns the number of planes.
func (im *Image) Depth() int { return len(im.Planes) }

// Read reads the headers and pixel data of a FITS file.
func Read(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return ReadFrom(bufio.NewReader(f), false)
}

// ReadHeader reads only the headers of a FITS file.
func ReadHeader(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return ReadFrom(bufio.NewReader(f), true)
}

// ReadBytes reads a FITS image held in memory.
func ReadBytes(data []byte) (*Image, error) {
	return ReadFrom(bytes.NewReader(data), false)
}

// ReadFrom parses a primary HDU from r.
func ReadFrom(r io.Reader, skipPixelData bool) (*Image, error) {
	var bitpix, naxis int
	axes := make([]int, 0, 3)
	bzero := 0.0
	bscale := 1.0
	headerDone := false
	metadata := NewMetadata()
	recordBuf := make([]byte, recordSize)

	for !headerDone {
		for i := 0; i < blockSize/recordSize; i++ {
			if _, err := io.ReadFull(r, recordBuf); err != nil {
				return nil, fmt.Errorf("reading FITS header record: %w", err)
			}
			record := string(recordBuf)
			keyword := strings.TrimSpace(record[:8])

			if keyword == "END" {
				headerDone = true
				if remaining := blockSize/recordSize - 1 - i; remaining > 0 {
					if _, err := io.CopyN(io.Discard, r, int64(remaining*recordSize)); err != nil {
						return nil, fmt.Errorf("skipping FITS header padding: %w", err)
					}
				}
				break
			}
			if record[8] != '=' || record[9] != ' ' {
				continue
			}
			rawValue := splitComment(record[10:])
			if parsed := parseValue(rawValue); keyword != "" && parsed != "" {
				metadata.Headers[strings.ToUpper(keyword)] = parsed
			}

			switch {
			case keyword == "BITPIX":
				bitpix, _ = strconv.Atoi(rawValue)
			case keyword == "NAXIS":
				naxis, _ = strconv.Atoi(rawValue)
			case strings.HasPrefix(keyword, "NAXIS"):
				n, err := strconv.Atoi(keyword[5:])
				if err == nil && n >= 1 && n <= 3 {
					for len(axes) < n {
						axes = append(axes, 0)
					}
					axes[n-1], _ = strconv.Atoi(rawValue)
				}
			case keyword == "BZERO":
				bzero, _ = strconv.ParseFloat(rawValue, 64)
			case keyword == "BSCALE":
				bscale, _ = strconv.ParseFloat(rawValue, 64)
			}
		}
	}

	if naxis < 2 || naxis > 3 || len(axes) < naxis || axes[0] <= 0 || axes[1] <= 0 {
		return nil, fmt.Errorf("invalid FITS: NAXIS=%d, axes=%v", naxis, axes)
	}
	depth := 1
	if naxis == 3 {
		depth = axes[2]
		if depth <= 0 {
			return nil, fmt.Errorf("invalid FITS: NAXIS3=%d", depth)
		}
	}

	img := &Image{
		Width:    axes[0],
		Height:   axes[1],
		BitPix:   bitpix,
		Metadata: metadata,
	}
	if skipPixelData {
		return img, nil
	}

	bytesPer := int(math.Abs(float64(bitpix))) / 8
	decode, ok := decoders[bitpix]
	if !ok {
		return nil, fmt.Errorf("unsupported BITPIX: %d", bitpix)
	}
	npix := img.Width * img.Height
	raw := make([]byte, npix*bytesPer)
	img.Planes = make([][]float32, depth)
	for p := 0; p < depth; p++ {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("reading plane %d of BITPIX %d data: %w", p, bitpix, err)
		}
		plane := make([]float32, npix)
		for i := range plane {
			plane[i] = float32(decode(raw[i*bytesPer:])*bscale + bzero)
		}
		img.Planes[p] = plane
	}
	return img, nil
}

var decoders = map[int]func([]byte) float64{
	8:   func(b []byte) float64 { return float64(b[0]) },
	16:  func(b []byte) float64 { return float64(int16(binary.BigEndian.Uint16(b))) },
	32:  func(b []byte) float64 { return float64(int32(binary.BigEndian.Uint32(b))) },
	-32: func(b []byte) float64 { return float64(math.Float32frombits(binary.BigEndian.Uint32(b))) },
	-64: func(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) },
}

// splitComment strips the trailing "/ comment" of a value field, ignoring
// slashes inside quoted strings.
func splitComment(field string) string {
	inQuote := false
	for i, c := range field {
		switch c {
		case '\'':
			inQuote = !inQuote
		case '/':
			if !inQuote {
				return strings.TrimSpace(field[:i])
			}
		}
	}
	return strings.TrimSpace(field)
}

func parseValue(rawValue string) string {
	if rawValue == "" {
		return ""
	}
	if rawValue == "T" {
		return "True"
	}
	if rawValue == "F" {
		return "False"
	}
	if strings.HasPrefix(rawValue, "'") {
		endQuote := strings.LastIndex(rawValue, "'")
		if endQuote > 0 {
			return strings.ReplaceAll(strings.TrimRight(rawValue[1:endQuote], " "), "''", "'")
		}
		return strings.TrimLeft(strings.TrimRight(rawValue, " "), "'")
	}
	return rawValue
}

// Write stores planes as a BITPIX -32 primary array, with one plane written
// as a 2-D image. Extra headers are written in key order.
func Write(w io.Writer, width, height int, planes [][]float32, headers map[string]string) error {
	if len(planes) == 0 {
		return fmt.Errorf("no plane to write")
	}
	for i, p := range planes {
		if len(p) != width*height {
			return fmt.Errorf("plane %d has %d pixels, want %d", i, len(p), width*height)
		}
	}
	var hdr bytes.Buffer
	card := func(key, value string) {
		fmt.Fprintf(&hdr, "%-8s= %20s", key, value)
		hdr.WriteString(strings.Repeat(" ", recordSize-30))
	}
	card("SIMPLE", "T")
	card("BITPIX", "-32")
	if len(planes) == 1 {
		card("NAXIS", "2")
	} else {
		card("NAXIS", "3")
	}
	card("NAXIS1", strconv.Itoa(width))
	card("NAXIS2", strconv.Itoa(height))
	if len(planes) > 1 {
		card("NAXIS3", strconv.Itoa(len(planes)))
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := headers[k]
		if _, err := strconv.ParseFloat(v, 64); err != nil && v != "T" && v != "F" {
			v = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
		if len(k) > 8 || len(v) > recordSize-10 {
			return fmt.Errorf("header %s does not fit one record", k)
		}
		line := fmt.Sprintf("%-8s= %20s", strings.ToUpper(k), v)
		hdr.WriteString(line + strings.Repeat(" ", max(0, recordSize-len(line))))
	}
	hdr.WriteString("END" + strings.Repeat(" ", recordSize-3))
	pad(&hdr, ' ')
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("writing FITS header: %w", err)
	}

	var data bytes.Buffer
	var b [4]byte
	for _, p := range planes {
		for _, v := range p {
			binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
			data.Write(b[:])
		}
	}
	pad(&data, 0)
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("writing FITS data: %w", err)
	}
	return nil
}

func pad(buf *bytes.Buffer, c byte) {
	if rem := buf.Len() % blockSize; rem != 0 {
		buf.Write(bytes.Repeat([]byte{c}, blockSize-rem))
	}
}
