package audio

import "math"

// RMS computes the root-mean-square energy of a frame of normalized
// samples. The result is in [0, 1]; an empty or silent frame yields 0.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the maximum absolute amplitude in the frame, in [0, 1] for
// in-range input.
func Peak(samples []float32) float64 {
	var maxAbs float64
	for _, s := range samples {
		if abs := math.Abs(float64(s)); abs > maxAbs {
			maxAbs = abs
		}
	}
	return maxAbs
}
