package reservoir

import (
	"errors"
	"math/cmplx"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// uniformDense fills a rows x cols matrix with values in [-scale, scale).
func uniformDense(rng *rand.Rand, rows, cols int, scale float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * scale
	}
	return mat.NewDense(rows, cols, data)
}

func uniformVec(rng *rand.Rand, n int, scale float64) *mat.VecDense {
	data := make([]float64, n)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * scale
	}
	return mat.NewVecDense(n, data)
}

// sparseDense draws an n x n matrix with exactly perRow uniform non-zeros in
// every row.
func sparseDense(rng *rand.Rand, n, perRow int) *mat.Dense {
	if perRow < 1 {
		perRow = 1
	}
	if perRow > n {
		perRow = n
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for _, j := range rng.Perm(n)[:perRow] {
			m.Set(i, j, rng.Float64()*2-1)
		}
	}
	return m
}

// SpectralRadius returns the largest eigenvalue modulus of a square matrix.
func SpectralRadius(m mat.Matrix) (float64, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(m, mat.EigenNone); !ok {
		return 0, errors.New("eigen decomposition did not converge")
	}
	radius := 0.0
	for _, v := range eig.Values(nil) {
		if abs := cmplx.Abs(v); abs > radius {
			radius = abs
		}
	}
	return radius, nil
}

// scaleSpectralRadius rescales m in place so its spectral radius equals rho.
// A nilpotent matrix is left untouched.
func scaleSpectralRadius(m *mat.Dense, rho float64) error {
	radius, err := SpectralRadius(m)
	if err != nil {
		return err
	}
	if radius == 0 {
		return nil
	}
	m.Scale(rho/radius, m)
	return nil
}

func antisymmetric(m *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Sub(m, m.T())
	return &out
}

func addDiagonal(m *mat.Dense, v float64) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		m.Set(i, i, m.At(i, i)+v)
	}
}

// recurrentMatrix builds the hidden-to-hidden matrix for the given topology
// at spectral radius rho.
func recurrentMatrix(rng *rand.Rand, n int, topology string, rho float64) (*mat.Dense, error) {
	w := uniformDense(rng, n, n, 1)
	if topology == TopologyAntisymmetric {
		w = antisymmetric(w)
	}
	if err := scaleSpectralRadius(w, rho); err != nil {
		return nil, err
	}
	return w, nil
}
