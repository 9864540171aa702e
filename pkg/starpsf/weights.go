package starpsf

import "math"

const (
	recenterMaxIter = 16
	recenterStepMin = 0.001
)

// makeWeights turns background noise, gain and profile accuracy into an
// inverse-variance weight per pixel. Bad pixels get a zero value and weight.
func makeWeights(s *Sample, profAccuracy float32) {
	profAccu2 := float64(profAccuracy) * float64(profAccuracy) * float64(s.Norm) * float64(s.Norm)
	gain := float64(s.Gain)
	backNoise2 := float64(s.BackNoise2)
	for i, v := range s.Vig {
		if v <= -bigValue {
			s.Vig[i] = 0
			s.VigWeight[i] = 0
			continue
		}
		pix := float64(v)
		noise2 := backNoise2 + profAccu2*pix*pix
		if pix > 0 && gain > 0 {
			noise2 += pix / gain
		}
		if noise2 <= 0 {
			s.VigWeight[i] = 0
			continue
		}
		s.VigWeight[i] = float32(1 / noise2)
	}
}

// recenterSample refines the sub-pixel offset with a flux-weighted centroid
// inside a window of twice the flux radius. Offsets that would leave the
// vignette are discarded.
func recenterSample(s *Sample, w, h int) {
	radius := 2 * float64(s.FluxRad)
	if radius <= 0 {
		radius = float64(min(w, h)) / 4
	}
	r2 := radius * radius
	xc := float64(w / 2)
	yc := float64(h / 2)
	cx := xc + s.DX
	cy := yc + s.DY

	for iter := 0; iter < recenterMaxIter; iter++ {
		var sum, sx, sy float64
		for y := 0; y < h; y++ {
			dy := float64(y) - cy
			row := s.Vig[y*w : (y+1)*w]
			for x, v := range row {
				dx := float64(x) - cx
				if v <= 0 || dx*dx+dy*dy > r2 {
					continue
				}
				pix := float64(v)
				sum += pix
				sx += pix * dx
				sy += pix * dy
			}
		}
		if sum <= 0 {
			break
		}
		stepX := sx / sum
		stepY := sy / sum
		cx += stepX
		cy += stepY
		if math.Hypot(stepX, stepY) < recenterStepMin {
			break
		}
	}

	newDX := cx - xc
	newDY := cy - yc
	if math.Abs(newDX) >= float64(w)/2 || math.Abs(newDY) >= float64(h)/2 {
		return
	}
	s.DX = newDX
	s.DY = newDY
}
