package reservoir

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// DeepOscillators stacks oscillator layers; layer k is driven by the
// position state of layer k-1. The reported state concatenates every layer.
type DeepOscillators struct {
	layers []*oscillatorLayer
	width  int
}

func newDeepOscillators(cfg Config, rng *rand.Rand) (*DeepOscillators, error) {
	widths := cfg.LayerWidths
	if len(widths) == 0 {
		if cfg.HiddenWidth <= 0 {
			return nil, errors.New("deep ron requires layer widths or a hidden width")
		}
		widths = []int{cfg.HiddenWidth}
	}
	layers := make([]*oscillatorLayer, 0, len(widths))
	inputs := 1
	total := 0
	for i, width := range widths {
		layer, err := newOscillatorLayer(cfg, rng, inputs, width)
		if err != nil {
			return nil, fmt.Errorf("deep ron layer %d: %w", i, err)
		}
		layers = append(layers, layer)
		inputs = width
		total += width
	}
	return &DeepOscillators{layers: layers, width: total}, nil
}

func (d *DeepOscillators) Kind() Kind { return KindDeepRON }

func (d *DeepOscillators) Width() int { return d.width }

// LayerWidths reports the width of each stacked layer.
func (d *DeepOscillators) LayerWidths() []int {
	out := make([]int, len(d.layers))
	for i, layer := range d.layers {
		out[i] = layer.width
	}
	return out
}

func (d *DeepOscillators) Run(input []float64) (*mat.Dense, error) {
	if len(input) == 0 {
		return nil, ErrEmptyInput
	}
	for _, layer := range d.layers {
		layer.reset()
	}
	states := mat.NewDense(len(input), d.width, nil)
	row := make([]float64, d.width)
	u := mat.NewVecDense(1, nil)
	for t, x := range input {
		u.SetVec(0, x)
		var drive mat.Vector = u
		offset := 0
		for k, layer := range d.layers {
			y, err := layer.step(drive)
			if err != nil {
				return nil, fmt.Errorf("deep ron layer %d step %d: %w", k, t, err)
			}
			copy(row[offset:offset+layer.width], y.RawVector().Data)
			offset += layer.width
			drive = y
		}
		states.SetRow(t, row)
	}
	return states, nil
}
