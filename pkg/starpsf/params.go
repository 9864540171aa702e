package starpsf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Params holds the configuration of a PSF run. It is a plain value handed to
// each component at construction.
type Params struct {
	PSFStep       float32  `yaml:"psf_step"`
	PSFSize       []int    `yaml:"psf_size"`
	ProfAccuracy  float32  `yaml:"prof_accuracy"`
	ContextNames  []string `yaml:"context_names"`
	ContextGroups []int    `yaml:"context_groups"` // one-based
	GroupDegrees  []int    `yaml:"group_degrees"`
	ContextNSnap  int      `yaml:"context_nsnap"`
	// SampleCapacity is the first allocation of a sample set.
	SampleCapacity int  `yaml:"sample_capacity"`
	MaxSamples     int  `yaml:"max_samples"`
	RemoveHidden   bool `yaml:"remove_hidden"`
}

// NewParams returns the default parameters.
func NewParams() Params {
	return Params{
		PSFStep:        1,
		PSFSize:        []int{25, 25},
		ProfAccuracy:   0.01,
		ContextNames:   []string{"X_IMAGE", "Y_IMAGE"},
		ContextGroups:  []int{1, 1},
		GroupDegrees:   []int{2},
		ContextNSnap:   DefaultNSnap,
		SampleCapacity: DefaultSampleCapacity,
	}
}

// LoadParams reads a YAML parameter file on top of the defaults.
func LoadParams(path string) (Params, error) {
	p := NewParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read params: %w", err)
	}
	if err := decodeStrict(string(data), &p); err != nil {
		return p, fmt.Errorf("parse params %s: %w", path, err)
	}
	return p, nil
}

// ApplyOverrides sets fields from key=value pairs. List values may be given
// as comma-separated items.
func (p *Params) ApplyOverrides(overrides []string) error {
	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("%w: override %q is not key=value", ErrConfiguration, o)
		}
		value = strings.TrimSpace(value)
		if strings.Contains(value, ",") && !strings.HasPrefix(value, "[") {
			value = "[" + value + "]"
		}
		if err := decodeStrict(key+": "+value+"\n", p); err != nil {
			return fmt.Errorf("%w: override %q: %v", ErrConfiguration, o, err)
		}
	}
	return nil
}

func decodeStrict(doc string, out *Params) error {
	dec := yaml.NewDecoder(strings.NewReader(doc))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the parameters for consistency.
func (p Params) Validate() error {
	if p.PSFStep < 0 {
		return fmt.Errorf("%w: psf_step %f", ErrConfiguration, p.PSFStep)
	}
	if len(p.PSFSize) != 2 || p.PSFSize[0] <= 0 || p.PSFSize[1] <= 0 {
		return fmt.Errorf("%w: psf_size %v, want two positive values", ErrConfiguration, p.PSFSize)
	}
	if p.ProfAccuracy < 0 {
		return fmt.Errorf("%w: prof_accuracy %f", ErrConfiguration, p.ProfAccuracy)
	}
	if len(p.ContextNames) != len(p.ContextGroups) {
		return fmt.Errorf("%w: %d context names but %d context groups", ErrConfiguration, len(p.ContextNames), len(p.ContextGroups))
	}
	for i, g := range p.ContextGroups {
		if g < 1 || g > len(p.GroupDegrees) {
			return fmt.Errorf("%w: context %q in group %d, want 1..%d", ErrConfiguration, p.ContextNames[i], g, len(p.GroupDegrees))
		}
	}
	if p.ContextNSnap <= 0 {
		return fmt.Errorf("%w: context_nsnap %d", ErrConfiguration, p.ContextNSnap)
	}
	if p.SampleCapacity <= 0 {
		return fmt.Errorf("%w: sample_capacity %d", ErrConfiguration, p.SampleCapacity)
	}
	if p.MaxSamples < 0 {
		return fmt.Errorf("%w: max_samples %d", ErrConfiguration, p.MaxSamples)
	}
	return nil
}

// ContextSpec builds the context specification described by p.
func (p Params) ContextSpec() (*ContextSpec, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	groups := make([]int, len(p.ContextGroups))
	for i, g := range p.ContextGroups {
		groups[i] = g - 1
	}
	return NewContextSpec(p.ContextNames, groups, p.GroupDegrees, len(p.GroupDegrees), p.RemoveHidden)
}

// SetOptions returns the sample set options described by p.
func (p Params) SetOptions() []SetOption {
	return []SetOption{
		WithInitialCapacity(p.SampleCapacity),
		WithMaxSamples(p.MaxSamples),
	}
}
