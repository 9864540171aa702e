package starpsf

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// HiddenPrefix marks principal-component covariates: a name made of this
// prefix followed by exactly one character (HIDDEN1, HIDDEN2, ...).
const HiddenPrefix = "HIDDEN"

// ContextSpec names the covariates the PSF depends on, how they are grouped
// and the polynomial degree of each group. It is immutable once built, apart
// from the derived component matrix installed by SetPC.
type ContextSpec struct {
	names   []string
	groups  []int // zero-based
	degrees []int
	pcflag  []bool
	npc     int

	pcMu    sync.Mutex
	pc      *mat.Dense
	pcCache [][]float64
}

// NewContextSpec validates and builds a context specification. groups are
// zero-based with max(groups) < ngroup == len(degrees). When removeHidden is
// set, hidden covariates are dropped and the remaining groups are renumbered
// so that no group is left empty.
func NewContextSpec(names []string, groups, degrees []int, ngroup int, removeHidden bool) (*ContextSpec, error) {
	if len(names) != len(groups) {
		return nil, fmt.Errorf("%w: %d context names but %d groups", ErrConfiguration, len(names), len(groups))
	}
	if ngroup != len(degrees) {
		return nil, fmt.Errorf("%w: ngroup %d but %d degrees", ErrConfiguration, ngroup, len(degrees))
	}
	for i, g := range groups {
		if g < 0 || g >= ngroup {
			return nil, fmt.Errorf("%w: context %q in group %d, want 0..%d", ErrConfiguration, names[i], g, ngroup-1)
		}
	}

	c := &ContextSpec{}
	used := make([]bool, ngroup)
	for i, name := range names {
		hidden := isHidden(name)
		if hidden {
			c.npc++
			if removeHidden {
				continue
			}
		}
		c.names = append(c.names, name)
		c.groups = append(c.groups, groups[i])
		c.pcflag = append(c.pcflag, hidden)
		used[groups[i]] = true
	}

	remap := make([]int, ngroup)
	for g := 0; g < ngroup; g++ {
		if used[g] {
			remap[g] = len(c.degrees)
			c.degrees = append(c.degrees, degrees[g])
		}
	}
	for i, g := range c.groups {
		c.groups[i] = remap[g]
	}
	c.pcCache = make([][]float64, c.npc)
	return c, nil
}

func isHidden(name string) bool {
	return len(name) == len(HiddenPrefix)+1 && name[:len(HiddenPrefix)] == HiddenPrefix
}

// Names returns the covariate names kept in the polynomial.
func (c *ContextSpec) Names() []string { return append([]string(nil), c.names...) }

// NContext returns the number of covariates kept in the polynomial.
func (c *ContextSpec) NContext() int { return len(c.names) }

// Groups returns the zero-based group of each kept covariate.
func (c *ContextSpec) Groups() []int { return append([]int(nil), c.groups...) }

// Degrees returns the degree of each remaining group.
func (c *ContextSpec) Degrees() []int { return append([]int(nil), c.degrees...) }

// NGroup returns the number of remaining groups.
func (c *ContextSpec) NGroup() int { return len(c.degrees) }

// NPC returns the number of principal-component covariates seen in the input
// names, whether or not they were removed.
func (c *ContextSpec) NPC() int { return c.npc }

// PCFlag reports whether kept covariate i is a principal component.
func (c *ContextSpec) PCFlag(i int) bool { return c.pcflag[i] }

// NewPoly builds the polynomial term structure of this context.
func (c *ContextSpec) NewPoly() (*Poly, error) {
	groups := make([]int, len(c.groups))
	for i, g := range c.groups {
		groups[i] = g + 1
	}
	return NewPoly(groups, c.degrees)
}

// SetPC installs the NPC x NPC derived component matrix, row-major. Vectors
// already returned by PC stay valid; the cache is reset.
func (c *ContextSpec) SetPC(data []float64) error {
	if len(data) != c.npc*c.npc {
		return fmt.Errorf("%w: %d principal component values, want %d", ErrRange, len(data), c.npc*c.npc)
	}
	c.pcMu.Lock()
	defer c.pcMu.Unlock()
	if c.npc == 0 {
		c.pc = nil
	} else {
		c.pc = mat.NewDense(c.npc, c.npc, append([]float64(nil), data...))
	}
	c.pcCache = make([][]float64, c.npc)
	return nil
}

// PC returns derived component vector i, extracting it on first use.
func (c *ContextSpec) PC(i int) ([]float64, error) {
	if i < 0 || i >= c.npc {
		return nil, fmt.Errorf("%w: principal component %d, have %d", ErrRange, i, c.npc)
	}
	c.pcMu.Lock()
	defer c.pcMu.Unlock()
	if c.pc == nil {
		return nil, fmt.Errorf("%w: principal components not computed", ErrConfiguration)
	}
	if c.pcCache[i] == nil {
		c.pcCache[i] = mat.Row(nil, i, c.pc)
	}
	return c.pcCache[i], nil
}
