package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical helpers shared by the chroma and tonal packages, backed by gonum

// PopVariance calculates the population variance (divides by N, not N-1)
func PopVariance(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	_, variance := stat.PopMeanVariance(data, nil)
	return variance
}

// PopStandardDeviation calculates the population standard deviation
func PopStandardDeviation(data []float64) float64 {
	return math.Sqrt(PopVariance(data))
}

// constantTolerance is the standard deviation, relative to the largest magnitude,
// at or below which a series counts as constant
const constantTolerance = 1e-12

// IsConstant reports whether every value is equal up to rounding. The cutoff scales
// with the data, so scaling a series never changes the answer.
func IsConstant(data []float64) bool {
	if len(data) == 0 {
		return true
	}
	return PopStandardDeviation(data) <= constantTolerance*floats.Norm(data, math.Inf(1))
}

// AllFinite reports whether every value is neither NaN nor infinite.
// It returns the index of the first offending value, or -1.
func AllFinite(data []float64) (bool, int) {
	for i, val := range data {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return false, i
		}
	}
	return true, -1
}

// MaxNormalize divides every value by the maximum so the largest becomes 1.
// Data whose maximum is not positive is returned as a zeroed copy.
func MaxNormalize(data []float64) []float64 {
	normalized := make([]float64, len(data))
	if len(data) == 0 {
		return normalized
	}

	maxVal := floats.Max(data)
	if maxVal <= 0 {
		return normalized
	}

	copy(normalized, data)
	floats.Scale(1.0/maxVal, normalized)
	return normalized
}

// Mod returns the non-negative remainder of a modulo n, for any sign of a
func Mod(a, n int) int {
	return ((a % n) + n) % n
}
