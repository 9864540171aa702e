package starpsf

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	noiseBorder        = 2
	noiseKappa         = 3.0
	noiseAllowedError  = 1e-4
	noiseMaxIterations = 10
)

// NoiseEstimate holds the result of a clipped background estimate.
type NoiseEstimate struct {
	Sigma          float64
	BackgroundMean float64
	NumIterations  int
	// NumPixels is the number of border pixels left after clipping.
	NumPixels int
}

// Variance returns Sigma squared as stored in Sample.BackNoise2.
func (n NoiseEstimate) Variance() float32 { return float32(n.Sigma * n.Sigma) }

// EstimateBackground runs an iterative kappa-sigma estimate over the border
// ring of a w x h vignette. Pixels brighter than mean+3 sigma are dropped
// until sigma changes by less than the allowed error. Bad pixels are
// ignored. The zero value is returned when the ring has no valid pixel.
func EstimateBackground(vig []float32, w, h int) NoiseEstimate {
	var ring []float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= noiseBorder && x < w-noiseBorder && y >= noiseBorder && y < h-noiseBorder {
				continue
			}
			if v := vig[y*w+x]; v > -bigValue {
				ring = append(ring, float64(v))
			}
		}
	}
	if len(ring) == 0 {
		return NoiseEstimate{}
	}

	threshold := math.Inf(1)
	lastSigma := 1.0
	lastMean := 1.0
	n := 0
	kept := ring
	for n < noiseMaxIterations {
		if n > 0 {
			kept = nil
			for _, v := range ring {
				if v < threshold {
					kept = append(kept, v)
				}
			}
			if len(kept) == 0 {
				break
			}
		}
		mean, sigma := meanStdDev(kept)
		n++
		if n > 1 && math.Abs(sigma-lastSigma) <= noiseAllowedError {
			lastSigma, lastMean = sigma, mean
			break
		}
		threshold = mean + noiseKappa*sigma
		lastSigma, lastMean = sigma, mean
	}
	return NoiseEstimate{Sigma: lastSigma, BackgroundMean: lastMean, NumIterations: n, NumPixels: len(kept)}
}

// meanStdDev returns the mean and population standard deviation of v.
func meanStdDev(v []float64) (float64, float64) {
	mean := stat.Mean(v, nil)
	return mean, math.Sqrt(stat.MomentAbout(2, v, mean, nil))
}
