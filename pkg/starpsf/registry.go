package starpsf

import (
	"fmt"
	"io"
	"sort"
)

const (
	// FormatTag names the model layout written by Encode.
	FormatTag = "psfexPsf"
	// FormatVersion is the layout version written by Encode.
	FormatVersion uint16 = 1
)

type formatKey struct {
	tag     string
	version uint16
}

type decodeFunc func(r io.Reader) (*Model, error)

// decoders maps every readable (tag, version) pair to its decoder. New
// layouts get a new entry; existing entries never change meaning.
var decoders = map[formatKey]decodeFunc{
	{FormatTag, 1}: decodePsfexV1,
}

func lookupDecoder(tag string, version uint16) (decodeFunc, error) {
	dec, ok := decoders[formatKey{tag, version}]
	if !ok {
		return nil, fmt.Errorf("%w: %q version %d", ErrUnknownFormat, tag, version)
	}
	return dec, nil
}

// Formats lists the readable formats as "tag/version".
func Formats() []string {
	out := make([]string, 0, len(decoders))
	for k := range decoders {
		out = append(out, fmt.Sprintf("%s/%d", k.tag, k.version))
	}
	sort.Strings(out)
	return out
}
