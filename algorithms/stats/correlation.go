package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/sonido-key/algorithms/common"
)

var (
	// ErrLengthMismatch is returned when the two series differ in length or are empty
	ErrLengthMismatch = errors.New("series lengths differ or are empty")

	// ErrZeroVariance is returned when either series is constant, leaving the
	// correlation coefficient undefined
	ErrZeroVariance = errors.New("series has zero variance")
)

// PearsonCorrelation computes the Pearson correlation coefficient between x and y
// using population statistics:
//
//	r = cov(x, y) / (std(x) * std(y))
//
// where cov and std both divide by N. The coefficient itself is identical to the
// sample-statistics form since the normalisation cancels, but the intermediate
// quantities follow the population convention.
//
// References:
// - Pearson, K. (1895). "Notes on regression and inheritance in the case of two parents"
// - Krumhansl, C.L. (1990). "Cognitive Foundations of Musical Pitch", ch. 4
func PearsonCorrelation(x, y []float64) (float64, error) {
	if len(x) != len(y) || len(x) == 0 {
		return 0.0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(x), len(y))
	}

	meanX, varX := stat.PopMeanVariance(x, nil)
	meanY, varY := stat.PopMeanVariance(y, nil)

	if common.IsConstant(x) || common.IsConstant(y) {
		return 0.0, ErrZeroVariance
	}
	stdX := math.Sqrt(varX)
	stdY := math.Sqrt(varY)

	centeredX := make([]float64, len(x))
	centeredY := make([]float64, len(y))
	copy(centeredX, x)
	copy(centeredY, y)
	floats.AddConst(-meanX, centeredX)
	floats.AddConst(-meanY, centeredY)

	covariance := floats.Dot(centeredX, centeredY) / float64(len(x))

	return clampCorrelation(covariance / (stdX * stdY)), nil
}

// clampCorrelation ensures correlation is in valid range [-1, 1]
func clampCorrelation(correlation float64) float64 {
	if correlation > 1.0 {
		return 1.0
	} else if correlation < -1.0 {
		return -1.0
	}
	return correlation
}
