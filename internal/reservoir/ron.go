package reservoir

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"rescap/internal/nn"
)

// oscillatorLayer is a population of damped, forced oscillators integrated
// with a symplectic Euler step:
//
//	z <- z + dt*(f(Win*u + H*y + b) - gamma*y - epsilon*z)
//	y <- y + dt*z
type oscillatorLayer struct {
	width      int
	dt         float64
	win        *mat.Dense
	h2h        *mat.Dense
	bias       *mat.VecDense
	gamma      []float64
	epsilon    []float64
	activation nn.ActivationFunc

	y   *mat.VecDense
	z   *mat.VecDense
	pre *mat.VecDense
	rec *mat.VecDense
}

func newOscillatorLayer(cfg Config, rng *rand.Rand, inputs, width int) (*oscillatorLayer, error) {
	if width <= 0 {
		return nil, fmt.Errorf("oscillator layer width must be > 0, got %d", width)
	}
	if cfg.DT <= 0 {
		return nil, fmt.Errorf("oscillator time step must be > 0, got %g", cfg.DT)
	}
	activation, err := nn.GetActivation(cfg.Activation)
	if err != nil {
		return nil, err
	}
	h2h, err := recurrentMatrix(rng, width, cfg.Topology, cfg.SpectralRadius)
	if err != nil {
		return nil, fmt.Errorf("scale oscillator coupling matrix: %w", err)
	}
	if cfg.DiffusiveGamma != 0 {
		addDiagonal(h2h, -cfg.DiffusiveGamma)
	}
	win := uniformDense(rng, width, inputs, cfg.InputScaling)
	bias := uniformVec(rng, width, cfg.InputScaling)

	gamma := make([]float64, width)
	epsilon := make([]float64, width)
	for i := 0; i < width; i++ {
		gamma[i] = cfg.Gamma.sample(rng)
		epsilon[i] = cfg.Epsilon.sample(rng)
	}

	return &oscillatorLayer{
		width:      width,
		dt:         cfg.DT,
		win:        win,
		h2h:        h2h,
		bias:       bias,
		gamma:      gamma,
		epsilon:    epsilon,
		activation: activation,
		y:          mat.NewVecDense(width, nil),
		z:          mat.NewVecDense(width, nil),
		pre:        mat.NewVecDense(width, nil),
		rec:        mat.NewVecDense(width, nil),
	}, nil
}

func (l *oscillatorLayer) reset() {
	l.y.Zero()
	l.z.Zero()
}

// step advances the layer by one input vector and returns the position state.
func (l *oscillatorLayer) step(u mat.Vector) (*mat.VecDense, error) {
	l.pre.MulVec(l.win, u)
	l.rec.MulVec(l.h2h, l.y)
	l.pre.AddVec(l.pre, l.rec)
	l.pre.AddVec(l.pre, l.bias)
	drive := l.pre.RawVector().Data
	nn.ApplyInPlace(l.activation, drive)

	ys := l.y.RawVector().Data
	zs := l.z.RawVector().Data
	for i := range zs {
		zs[i] += l.dt * (drive[i] - l.gamma[i]*ys[i] - l.epsilon[i]*zs[i])
		ys[i] += l.dt * zs[i]
		if math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) {
			return nil, fmt.Errorf("oscillator state diverged")
		}
	}
	return l.y, nil
}

// Oscillators is a single-layer randomized oscillators network.
type Oscillators struct {
	layer *oscillatorLayer
}

func newOscillators(cfg Config, rng *rand.Rand) (*Oscillators, error) {
	layer, err := newOscillatorLayer(cfg, rng, 1, cfg.HiddenWidth)
	if err != nil {
		return nil, err
	}
	return &Oscillators{layer: layer}, nil
}

func (o *Oscillators) Kind() Kind { return KindRON }

func (o *Oscillators) Width() int { return o.layer.width }

func (o *Oscillators) Run(input []float64) (*mat.Dense, error) {
	if len(input) == 0 {
		return nil, ErrEmptyInput
	}
	o.layer.reset()
	states := mat.NewDense(len(input), o.layer.width, nil)
	u := mat.NewVecDense(1, nil)
	for t, x := range input {
		u.SetVec(0, x)
		y, err := o.layer.step(u)
		if err != nil {
			return nil, fmt.Errorf("ron step %d: %w", t, err)
		}
		states.SetRow(t, y.RawVector().Data)
	}
	return states, nil
}
