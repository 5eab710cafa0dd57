package reservoir

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"rescap/internal/nn"
)

// EchoState is a single-layer leaky echo-state network.
type EchoState struct {
	width      int
	leaky      float64
	win        *mat.VecDense
	w          *mat.Dense
	bias       *mat.VecDense
	activation nn.ActivationFunc
}

func newEchoState(cfg Config, rng *rand.Rand) (*EchoState, error) {
	n := cfg.HiddenWidth
	if n <= 0 {
		return nil, fmt.Errorf("esn hidden width must be > 0, got %d", n)
	}
	leaky := cfg.Leaky
	if leaky <= 0 || leaky > 1 {
		return nil, fmt.Errorf("esn leaky rate must be in (0, 1], got %g", leaky)
	}
	activation, err := nn.GetActivation(cfg.Activation)
	if err != nil {
		return nil, err
	}

	win := uniformVec(rng, n, cfg.InputScaling)
	perRow := int((1 - cfg.Sparsity) * float64(n))
	w := sparseDense(rng, n, perRow)
	if leaky == 1 {
		if err := scaleSpectralRadius(w, cfg.SpectralRadius); err != nil {
			return nil, fmt.Errorf("scale esn recurrent matrix: %w", err)
		}
	} else {
		// The effective leaky map (1-a)I + aW is what must sit at rho.
		w.Scale(leaky, w)
		addDiagonal(w, 1-leaky)
		if err := scaleSpectralRadius(w, cfg.SpectralRadius); err != nil {
			return nil, fmt.Errorf("scale esn recurrent matrix: %w", err)
		}
		addDiagonal(w, leaky-1)
		w.Scale(1/leaky, w)
	}
	bias := uniformVec(rng, n, cfg.BiasScaling)

	return &EchoState{
		width:      n,
		leaky:      leaky,
		win:        win,
		w:          w,
		bias:       bias,
		activation: activation,
	}, nil
}

func (e *EchoState) Kind() Kind { return KindESN }

func (e *EchoState) Width() int { return e.width }

func (e *EchoState) Run(input []float64) (*mat.Dense, error) {
	if len(input) == 0 {
		return nil, ErrEmptyInput
	}
	states := mat.NewDense(len(input), e.width, nil)
	h := mat.NewVecDense(e.width, nil)
	pre := mat.NewVecDense(e.width, nil)
	for t, x := range input {
		pre.MulVec(e.w, h)
		pre.AddScaledVec(pre, x, e.win)
		pre.AddVec(pre, e.bias)
		raw := pre.RawVector().Data
		nn.ApplyInPlace(e.activation, raw)
		hs := h.RawVector().Data
		for i := range hs {
			hs[i] = (1-e.leaky)*hs[i] + e.leaky*raw[i]
			if math.IsNaN(hs[i]) || math.IsInf(hs[i], 0) {
				return nil, fmt.Errorf("esn state diverged at step %d", t)
			}
		}
		states.SetRow(t, hs)
	}
	return states, nil
}
