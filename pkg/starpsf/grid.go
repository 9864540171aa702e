package starpsf

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// EvaluateGrid evaluates m at every position concurrently. Results keep the
// order of positions. The first failure cancels the remaining work.
func EvaluateGrid(ctx context.Context, m *Model, positions [][]float64) ([]*Image, error) {
	out := make([]*Image, len(positions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, pos := range positions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := m.Evaluate(pos)
			if err != nil {
				return fmt.Errorf("position %d: %w", i, err)
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RegularGrid returns n x n positions spanning [x0, x1] x [y0, y1], x fastest.
func RegularGrid(x0, x1, y0, y1 float64, n int) [][]float64 {
	if n <= 0 {
		return nil
	}
	step := func(lo, hi float64, i int) float64 {
		if n == 1 {
			return (lo + hi) / 2
		}
		return lo + (hi-lo)*float64(i)/float64(n-1)
	}
	out := make([][]float64, 0, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			out = append(out, []float64{step(x0, x1, i), step(y0, y1, j)})
		}
	}
	return out
}
