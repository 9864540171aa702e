package starpsf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParams_Defaults(t *testing.T) {
	t.Parallel()

	p := NewParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, []int{25, 25}, p.PSFSize)
	assert.Equal(t, DefaultNSnap, p.ContextNSnap)
	assert.Equal(t, DefaultSampleCapacity, p.SampleCapacity)

	spec, err := p.ContextSpec()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, spec.Groups())
	assert.Equal(t, []int{2}, spec.Degrees())
}

func TestParams_ApplyOverrides(t *testing.T) {
	t.Parallel()

	p := NewParams()
	err := p.ApplyOverrides([]string{
		"psf_size=31,33",
		"psf_step = 0.5",
		"context_names=X_IMAGE,Y_IMAGE,MAG_AUTO",
		"context_groups=1,1,2",
		"group_degrees=[3, 1]",
		"remove_hidden=true",
	})
	require.NoError(t, err)
	assert.Equal(t, []int{31, 33}, p.PSFSize)
	assert.Equal(t, float32(0.5), p.PSFStep)
	assert.Equal(t, []string{"X_IMAGE", "Y_IMAGE", "MAG_AUTO"}, p.ContextNames)
	assert.Equal(t, []int{1, 1, 2}, p.ContextGroups)
	assert.Equal(t, []int{3, 1}, p.GroupDegrees)
	assert.True(t, p.RemoveHidden)
	require.NoError(t, p.Validate())

	spec, err := p.ContextSpec()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1}, spec.Groups())
}

func TestParams_ApplyOverridesErrors(t *testing.T) {
	t.Parallel()

	for _, o := range []string{"psf_size", "=3", "no_such_key=1", "psf_step=fast"} {
		p := NewParams()
		assert.ErrorIs(t, p.ApplyOverrides([]string{o}), ErrConfiguration, o)
	}
}

func TestLoadParams(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "psf.yaml")
	doc := "psf_size: [15, 15]\nprof_accuracy: 0.02\nmax_samples: 500\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, []int{15, 15}, p.PSFSize)
	assert.Equal(t, float32(0.02), p.ProfAccuracy)
	assert.Equal(t, 500, p.MaxSamples)
	assert.Equal(t, []string{"X_IMAGE", "Y_IMAGE"}, p.ContextNames, "unset keys keep defaults")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	p, err = LoadParams(empty)
	require.NoError(t, err)
	assert.Equal(t, NewParams(), p)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("psf_sise: [1, 1]\n"), 0o644))
	_, err = LoadParams(bad)
	assert.Error(t, err)

	_, err = LoadParams(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestParams_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"negative step", func(p *Params) { p.PSFStep = -1 }},
		{"three axes", func(p *Params) { p.PSFSize = []int{5, 5, 5} }},
		{"zero height", func(p *Params) { p.PSFSize = []int{5, 0} }},
		{"negative accuracy", func(p *Params) { p.ProfAccuracy = -0.1 }},
		{"names and groups differ", func(p *Params) { p.ContextGroups = []int{1} }},
		{"group out of range", func(p *Params) { p.ContextGroups = []int{1, 2} }},
		{"zero-based group", func(p *Params) { p.ContextGroups = []int{0, 1} }},
		{"no snapshots", func(p *Params) { p.ContextNSnap = 0 }},
		{"no capacity", func(p *Params) { p.SampleCapacity = 0 }},
		{"negative limit", func(p *Params) { p.MaxSamples = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParams()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrConfiguration)
			_, err := p.ContextSpec()
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestParams_SetOptions(t *testing.T) {
	t.Parallel()

	p := NewParams()
	p.SampleCapacity = 2
	p.MaxSamples = 2
	set, err := NewSampleSet(2, 3, 3, p.SetOptions()...)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := set.Append()
		require.NoError(t, err)
	}
	assert.Equal(t, 2, set.Cap())
	_, err = set.Append()
	assert.ErrorIs(t, err, ErrResourceExhausted)
}
