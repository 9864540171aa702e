package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"starpsf/pkg/starpsf"
)

// catalog describes the stars of one exposure whose vignettes are stored,
// in the same order, as the planes of a FITS cube.
type catalog struct {
	Field      string             `yaml:"field"`
	Ident      string             `yaml:"ident"`
	FWHM       float64            `yaml:"fwhm"`
	Extensions []catalogExtension `yaml:"extensions"`
	Stars      []catalogStar      `yaml:"stars"`
}

type catalogExtension struct {
	Width   int                   `yaml:"width"`
	Height  int                   `yaml:"height"`
	NObj    int                   `yaml:"nobj"`
	Mapping starpsf.StaticMapping `yaml:"mapping"`
}

type catalogStar struct {
	Ext        int                `yaml:"ext"`
	X          float64            `yaml:"x"`
	Y          float64            `yaml:"y"`
	Norm       float32            `yaml:"norm"`
	BackNoise2 float32            `yaml:"backnoise2"`
	Gain       float32            `yaml:"gain"`
	FluxRad    float32            `yaml:"fluxrad"`
	Context    map[string]float64 `yaml:"context"`
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// rawContext returns covariate name of star. Image coordinates come from
// the star position, anything else from its context map.
func (s catalogStar) rawContext(name string) (float64, error) {
	switch name {
	case "X_IMAGE":
		return s.X, nil
	case "Y_IMAGE":
		return s.Y, nil
	}
	v, ok := s.Context[name]
	if !ok {
		return 0, fmt.Errorf("star at (%.1f, %.1f) has no %s value", s.X, s.Y, name)
	}
	return v, nil
}

// buildField registers the catalog extensions into a finalized field.
func buildField(cat *catalog, nsnap int) (*starpsf.Field, error) {
	field := starpsf.NewField(cat.Field, nsnap)
	if cat.Ident != "" {
		field.Ident = cat.Ident
	}
	for i, e := range cat.Extensions {
		if err := field.AddExtension(e.Mapping, e.Width, e.Height, e.NObj); err != nil {
			return nil, fmt.Errorf("extension %d: %w", i, err)
		}
	}
	field.Finalize()
	return field, nil
}
