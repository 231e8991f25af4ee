package stats

import (
	"math"
	"slices"
)

// CalculateMedianContinuous finds the median value in a slice of floats.
func CalculateMedianContinuous(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	temp := make([]float64, len(values))
	copy(temp, values)
	slices.Sort(temp)

	n := len(temp)
	if n%2 == 1 {
		return temp[n/2]
	}
	return (temp[n/2-1] + temp[n/2]) / 2.0
}

// Percentile returns the p-th percentile (0-100) using linear interpolation
// between closest ranks. The input is not modified. ok is false for an empty
// slice or a p outside [0, 100].
func Percentile(values []float64, p float64) (value float64, ok bool) {
	if len(values) == 0 || p < 0 || p > 100 || math.IsNaN(p) {
		return 0, false
	}

	temp := make([]float64, len(values))
	copy(temp, values)
	slices.Sort(temp)

	rank := p / 100 * float64(len(temp)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return temp[lo], true
	}
	frac := rank - float64(lo)
	return temp[lo] + (temp[hi]-temp[lo])*frac, true
}

// Clamp01 bounds x to [0, 1].
func Clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
