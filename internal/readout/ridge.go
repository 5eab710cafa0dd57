package readout

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const DefaultAlpha = 1.0

var ErrSingularSystem = errors.New("ridge normal equations are singular")

// Ridge is an L2-regularized least-squares readout with an unpenalized
// intercept.
type Ridge struct {
	Alpha     float64
	Weights   []float64
	Intercept float64
}

// FitRidge solves (XcᵀXc + αI)w = Xcᵀ(y - ȳ) on column-centered features.
func FitRidge(x mat.Matrix, y []float64, alpha float64) (*Ridge, error) {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.New("cannot fit ridge on empty matrix")
	}
	if rows != len(y) {
		return nil, fmt.Errorf("ridge features have %d rows, target has %d samples", rows, len(y))
	}
	if alpha < 0 {
		return nil, fmt.Errorf("ridge alpha must be >= 0, got %g", alpha)
	}

	means := make([]float64, cols)
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(column, j, x)
		means[j] = stat.Mean(column, nil)
	}
	yMean := stat.Mean(y, nil)

	xc := mat.DenseCopyOf(x)
	xc.Apply(func(_, j int, v float64) float64 { return v - means[j] }, xc)
	yc := make([]float64, rows)
	for i, v := range y {
		yc[i] = v - yMean
	}

	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for i := 0; i < cols; i++ {
		gram.SetSym(i, i, gram.At(i, i)+alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(xc.T(), mat.NewVecDense(rows, yc))

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, ErrSingularSystem
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &rhs); err != nil {
		return nil, fmt.Errorf("solve ridge system: %w", err)
	}

	weights := make([]float64, cols)
	intercept := yMean
	for j := range weights {
		weights[j] = w.AtVec(j)
		intercept -= means[j] * weights[j]
	}
	return &Ridge{Alpha: alpha, Weights: weights, Intercept: intercept}, nil
}

func (r *Ridge) Predict(x mat.Matrix) ([]float64, error) {
	rows, cols := x.Dims()
	if cols != len(r.Weights) {
		return nil, fmt.Errorf("ridge fitted on %d features, got %d", len(r.Weights), cols)
	}
	var out mat.VecDense
	out.MulVec(x, mat.NewVecDense(cols, r.Weights))
	pred := make([]float64, rows)
	for i := range pred {
		pred[i] = out.AtVec(i) + r.Intercept
	}
	return pred, nil
}
