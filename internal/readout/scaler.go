// Package readout fits and scores the linear map from reservoir states to
// the delayed target.
package readout

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes feature columns to zero mean and unit variance using
// statistics fitted once on training states.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler computes per-column population mean and standard deviation.
// Constant columns get a unit scale.
func FitScaler(x mat.Matrix) (*Scaler, error) {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.New("cannot fit scaler on empty matrix")
	}
	s := &Scaler{Mean: make([]float64, cols), Scale: make([]float64, cols)}
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(column, j, x)
		mean, variance := stat.PopMeanVariance(column, nil)
		s.Mean[j] = mean
		std := math.Sqrt(variance)
		if std == 0 {
			std = 1
		}
		s.Scale[j] = std
	}
	return s, nil
}

// Transform returns a standardized copy of x.
func (s *Scaler) Transform(x mat.Matrix) (*mat.Dense, error) {
	_, cols := x.Dims()
	if cols != len(s.Mean) {
		return nil, fmt.Errorf("scaler fitted on %d features, got %d", len(s.Mean), cols)
	}
	out := mat.DenseCopyOf(x)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, out)
	return out, nil
}
