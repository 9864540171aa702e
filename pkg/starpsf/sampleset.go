package starpsf

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

const (
	// DefaultSampleCapacity is the capacity of the first allocation.
	DefaultSampleCapacity = 1000
	// sampleGrowth is the geometric growth factor of the sample arena.
	sampleGrowth = 1.62
)

// RejectCounts tallies the reasons stars were refused while loading a set.
type RejectCounts struct {
	Flags  int
	SN     int
	FrMin  int
	FrMax  int
	Elong  int
	Pixels int
}

// SampleSet owns a growable arena of samples sharing one vignette size and
// context dimensionality. It is not safe for concurrent mutation.
type SampleSet struct {
	ncontext int
	vigW     int
	vigH     int

	contextNorm  []ContextNorm
	contextNames []string

	samples []*Sample // len(samples) is the capacity
	n       int

	initialCap int
	maxSamples int
	logger     *zap.Logger

	FWHM     float64
	Rejected RejectCounts
}

// SetOption customizes a SampleSet.
type SetOption func(*SampleSet)

// WithInitialCapacity sets the capacity of the first allocation.
func WithInitialCapacity(n int) SetOption {
	return func(s *SampleSet) {
		if n > 0 {
			s.initialCap = n
		}
	}
}

// WithMaxSamples bounds the capacity; growing past it fails with
// ErrResourceExhausted. Zero means no bound beyond address-space limits.
func WithMaxSamples(n int) SetOption {
	return func(s *SampleSet) { s.maxSamples = n }
}

// WithLogger routes growth and trim events to logger.
func WithLogger(logger *zap.Logger) SetOption {
	return func(s *SampleSet) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSampleSet creates an empty set. A zero ncontext is legal.
func NewSampleSet(ncontext, vigWidth, vigHeight int, opts ...SetOption) (*SampleSet, error) {
	if ncontext < 0 {
		return nil, fmt.Errorf("%w: negative context count %d", ErrConfiguration, ncontext)
	}
	if vigWidth <= 0 || vigHeight <= 0 {
		return nil, fmt.Errorf("%w: vignette size %dx%d", ErrConfiguration, vigWidth, vigHeight)
	}
	if vigWidth > math.MaxInt32/vigHeight {
		return nil, fmt.Errorf("%w: vignette size %dx%d", ErrResourceExhausted, vigWidth, vigHeight)
	}
	s := &SampleSet{
		ncontext:     ncontext,
		vigW:         vigWidth,
		vigH:         vigHeight,
		contextNorm:  make([]ContextNorm, ncontext),
		contextNames: make([]string, ncontext),
		initialCap:   DefaultSampleCapacity,
		logger:       zap.NewNop(),
	}
	for i := range s.contextNorm {
		s.contextNorm[i] = ContextNorm{Offset: 0, Scale: 1}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewSampleSetForContext creates an empty set shaped after c, with its
// covariate names.
func NewSampleSetForContext(c *ContextSpec, vigWidth, vigHeight int, opts ...SetOption) (*SampleSet, error) {
	s, err := NewSampleSet(c.NContext(), vigWidth, vigHeight, opts...)
	if err != nil {
		return nil, err
	}
	copy(s.contextNames, c.Names())
	return s, nil
}

// NContext returns the number of covariates per sample.
func (s *SampleSet) NContext() int { return s.ncontext }

// VigSize returns the vignette width and height.
func (s *SampleSet) VigSize() (int, int) { return s.vigW, s.vigH }

// Len returns the number of live samples.
func (s *SampleSet) Len() int { return s.n }

// Cap returns the number of allocated sample slots.
func (s *SampleSet) Cap() int { return len(s.samples) }

// Empty reports whether the set holds no live sample.
func (s *SampleSet) Empty() bool { return s.n == 0 }

// At returns live sample i.
func (s *SampleSet) At(i int) (*Sample, error) {
	if i < 0 || i >= s.n {
		return nil, fmt.Errorf("%w: sample %d, have %d", ErrRange, i, s.n)
	}
	return s.samples[i], nil
}

// Samples returns the live samples. The slice aliases the arena and is only
// valid until the next mutation.
func (s *SampleSet) Samples() []*Sample { return s.samples[:s.n] }

// ContextName returns the name of covariate i.
func (s *SampleSet) ContextName(i int) string { return s.contextNames[i] }

// ContextNames returns all covariate names.
func (s *SampleSet) ContextNames() []string { return append([]string(nil), s.contextNames...) }

// SetContextName names covariate i.
func (s *SampleSet) SetContextName(i int, name string) { s.contextNames[i] = name }

// ContextNorm returns the normalization of covariate i.
func (s *SampleSet) ContextNorm(i int) ContextNorm { return s.contextNorm[i] }

// SetContextNorm sets the normalization of covariate i. A zero scale is
// rejected since it cannot be inverted.
func (s *SampleSet) SetContextNorm(i int, n ContextNorm) error {
	if i < 0 || i >= s.ncontext {
		return fmt.Errorf("%w: context %d, have %d", ErrRange, i, s.ncontext)
	}
	if n.Scale == 0 {
		return fmt.Errorf("%w: zero scale for context %q", ErrConfiguration, s.contextNames[i])
	}
	s.contextNorm[i] = n
	return nil
}

// SetContext stores raw covariate i of sample, normalized with the set's
// offset and scale.
func (s *SampleSet) SetContext(sample *Sample, i int, raw float64) {
	sample.Context[i] = s.contextNorm[i].Apply(raw)
}

// Append reserves a new sample slot, growing the arena geometrically when it
// is full. Every per-sample buffer is allocated by the growth.
func (s *SampleSet) Append() (*Sample, error) {
	if s.n >= len(s.samples) {
		newCap := s.initialCap
		if len(s.samples) > 0 {
			newCap = int(sampleGrowth*float64(len(s.samples)) + 1)
		}
		if s.maxSamples > 0 && newCap > s.maxSamples {
			newCap = s.maxSamples
		}
		if newCap <= s.n {
			return nil, fmt.Errorf("%w: sample set full at %d samples", ErrResourceExhausted, s.n)
		}
		if err := s.realloc(newCap); err != nil {
			return nil, err
		}
	}
	sample := s.samples[s.n]
	s.n++
	return sample, nil
}

// Trim releases every slot beyond the live samples.
func (s *SampleSet) Trim() {
	if len(s.samples) == s.n {
		return
	}
	s.logger.Debug("trimming sample set", zap.Int("capacity", len(s.samples)), zap.Int("samples", s.n))
	// Shrinking never allocates buffers.
	_ = s.realloc(s.n)
}

// RemoveAt drops sample i by moving the last live sample into its slot and
// shrinking the arena to the new live count. Order is not preserved. It
// returns the sample now at i, or nil when i was the last slot.
func (s *SampleSet) RemoveAt(i int) (*Sample, error) {
	if i < 0 || i >= s.n {
		return nil, fmt.Errorf("%w: remove sample %d, have %d", ErrRange, i, s.n)
	}
	last := s.n - 1
	s.samples[i], s.samples[last] = s.samples[last], s.samples[i]
	_ = s.realloc(last)
	s.n = last
	if i < s.n {
		return s.samples[i], nil
	}
	return nil, nil
}

// realloc resizes the arena to exactly n slots.
func (s *SampleSet) realloc(n int) error {
	old := len(s.samples)
	switch {
	case n == 0:
		s.samples = nil
	case n > old:
		nvig := s.vigW * s.vigH
		if n > math.MaxInt/(4*nvig+s.ncontext+1) {
			return fmt.Errorf("%w: %d samples of %d pixels", ErrResourceExhausted, n, nvig)
		}
		grown := make([]*Sample, n)
		copy(grown, s.samples)
		for i := old; i < n; i++ {
			grown[i] = newSample(nvig, s.ncontext)
		}
		s.samples = grown
		s.logger.Debug("grew sample set", zap.Int("from", old), zap.Int("to", n))
	case n < old:
		shrunk := make([]*Sample, n)
		copy(shrunk, s.samples[:n])
		s.samples = shrunk
	}
	return nil
}

// FinalizeSample recomputes the weights of sample and re-centers it.
func (s *SampleSet) FinalizeSample(sample *Sample, profAccuracy float32) {
	makeWeights(sample, profAccuracy)
	recenterSample(sample, s.vigW, s.vigH)
}
