package readout

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var ErrLengthMismatch = errors.New("prediction and target lengths differ")

// SquaredCorrelation returns the squared Pearson correlation between the
// flattened prediction and target. A constant series carries no linear
// information about the other, so it scores 0.
func SquaredCorrelation(prediction, target []float64) (float64, error) {
	if len(prediction) != len(target) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(prediction), len(target))
	}
	if len(prediction) < 2 {
		return 0, fmt.Errorf("squared correlation needs at least 2 samples, got %d", len(prediction))
	}
	if _, v := stat.PopMeanVariance(prediction, nil); v == 0 {
		return 0, nil
	}
	if _, v := stat.PopMeanVariance(target, nil); v == 0 {
		return 0, nil
	}
	r := stat.Correlation(prediction, target, nil)
	if math.IsNaN(r) {
		return 0, errors.New("correlation is undefined")
	}
	return math.Min(r*r, 1), nil
}

// NRMSE is the root-mean-square error normalized by the target RMS.
func NRMSE(prediction, target []float64) (float64, error) {
	if len(prediction) != len(target) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(prediction), len(target))
	}
	if len(target) == 0 {
		return 0, errors.New("nrmse needs at least 1 sample")
	}
	var mse, power float64
	for i, t := range target {
		d := prediction[i] - t
		mse += d * d
		power += t * t
	}
	n := float64(len(target))
	if power == 0 {
		return 0, errors.New("nrmse undefined for zero-power target")
	}
	return math.Sqrt(mse/n) / math.Sqrt(power/n), nil
}
