package fitsio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead_Image(t *testing.T) {
	plane := []float32{0, 1.5, -2, 3, 4, 5}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, 3, 2, [][]float32{plane}, map[string]string{
		"OBJECT": "M31 / core",
		"GAIN":   "2.5",
	}))
	assert.Zero(t, buf.Len()%blockSize)

	img, err := ReadBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Equal(t, -32, img.BitPix)
	assert.Equal(t, 1, img.Depth())
	assert.Equal(t, plane, img.Planes[0])

	assert.Equal(t, "M31 / core", img.Metadata.ObjectName())
	gain, ok := img.Metadata.Gain()
	require.True(t, ok)
	assert.Equal(t, 2.5, gain)
	naxis, ok := img.Metadata.GetInt("naxis")
	require.True(t, ok)
	assert.Equal(t, 2, naxis)
}

func TestWriteRead_Cube(t *testing.T) {
	planes := make([][]float32, 4)
	for p := range planes {
		planes[p] = make([]float32, 25)
		planes[p][12] = float32(p + 1)
	}
	path := filepath.Join(t.TempDir(), "vignettes.fits")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, Write(f, 5, 5, planes, nil))
	require.NoError(t, f.Close())

	hdr, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Nil(t, hdr.Planes)
	n3, ok := hdr.Metadata.GetInt("NAXIS3")
	require.True(t, ok)
	assert.Equal(t, 4, n3)

	img, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, 4, img.Depth())
	for p := range planes {
		assert.Equal(t, planes[p], img.Planes[p], "plane %d", p)
	}
}

func TestWrite_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, 2, 2, nil, nil))
	assert.Error(t, Write(&buf, 2, 2, [][]float32{{1, 2, 3}}, nil))
	assert.Error(t, Write(&buf, 1, 1, [][]float32{{1}}, map[string]string{"TOOLONGKEY": "1"}))
	assert.Error(t, Write(&buf, 1, 1, [][]float32{{1}}, map[string]string{"NOTE": strings.Repeat("x", 80)}))
}

// header builds a primary header from pre-formatted cards.
func header(cards ...string) []byte {
	var buf bytes.Buffer
	for _, c := range cards {
		buf.WriteString(fmt.Sprintf("%-80s", c))
	}
	buf.WriteString(fmt.Sprintf("%-80s", "END"))
	pad(&buf, ' ')
	return buf.Bytes()
}

func TestReadBytes_ScaledIntegers(t *testing.T) {
	data := header(
		"SIMPLE  =                    T",
		"BITPIX  =                   16",
		"NAXIS   =                    2",
		"NAXIS1  =                    2",
		"NAXIS2  =                    1",
		"BZERO   =                32768 / unsigned",
		"BSCALE  =                  0.5",
		"EXPTIME =               3.0D+1",
		"FILTER  = 'r / wide'           / passband",
	)
	var pix bytes.Buffer
	require.NoError(t, binary.Write(&pix, binary.BigEndian, []int16{-32768, 100}))
	data = append(data, pix.Bytes()...)

	img, err := ReadBytes(data)
	require.NoError(t, err)
	assert.Equal(t, []float32{16384, 32818}, img.Planes[0])

	exp, ok := img.Metadata.GetDouble("EXPTIME")
	require.True(t, ok)
	assert.Equal(t, 30.0, exp)
	assert.Equal(t, "r / wide", img.Metadata.GetString("filter"))
	_, ok = img.Metadata.GetInt("FILTER")
	assert.False(t, ok)
}

func TestReadBytes_Invalid(t *testing.T) {
	_, err := ReadBytes(header("SIMPLE  =                    T", "NAXIS   =                    1", "NAXIS1  =                   10"))
	assert.Error(t, err)

	_, err = ReadBytes(header(
		"BITPIX  =                   24",
		"NAXIS   =                    2",
		"NAXIS1  =                    1",
		"NAXIS2  =                    1",
	))
	assert.ErrorContains(t, err, "unsupported BITPIX")

	_, err = ReadBytes(header(
		"BITPIX  =                  -32",
		"NAXIS   =                    2",
		"NAXIS1  =                    4",
		"NAXIS2  =                    4",
	))
	assert.Error(t, err, "missing pixel data")

	_, err = ReadBytes([]byte("SIMPLE"))
	assert.Error(t, err)
}
