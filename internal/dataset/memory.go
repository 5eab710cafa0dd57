// Package dataset generates delayed-copy sequences for memory-capacity probing.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"
)

const (
	DefaultTotalLength = 6000
	DefaultTrainRatio  = 0.8
	DefaultTestSize    = 1000
	DefaultAmplitude   = 0.8
)

var ErrShortSequence = errors.New("sequence not longer than washout")

// Sequence pairs a scalar input stream with its delayed target.
type Sequence struct {
	Input  []float64
	Target []float64
}

func (s Sequence) Len() int { return len(s.Input) }

// Splits holds the three disjoint partitions generated for one delay.
type Splits struct {
	Delay      int
	Train      Sequence
	Validation Sequence
	Test       Sequence
}

// Generator produces fresh splits for a delay value.
type Generator interface {
	Generate(delay int) (Splits, error)
}

// UniformGenerator draws i.i.d. inputs uniformly from [-Amplitude, Amplitude]
// and targets y[t] = u[t-delay]. The final TestSize pairs form the test
// block; the remainder is cut TrainRatio train / rest validation.
type UniformGenerator struct {
	Rand        *rand.Rand
	TotalLength int
	TrainRatio  float64
	TestSize    int
	Amplitude   float64
}

// NewUniformGenerator returns a generator with the reference lengths.
func NewUniformGenerator(rng *rand.Rand) *UniformGenerator {
	return &UniformGenerator{
		Rand:        rng,
		TotalLength: DefaultTotalLength,
		TrainRatio:  DefaultTrainRatio,
		TestSize:    DefaultTestSize,
		Amplitude:   DefaultAmplitude,
	}
}

func (g *UniformGenerator) Generate(delay int) (Splits, error) {
	if g.Rand == nil {
		return Splits{}, errors.New("generator rng is required")
	}
	if delay < 1 {
		return Splits{}, fmt.Errorf("delay must be >= 1, got %d", delay)
	}
	total := g.TotalLength
	if total <= g.TestSize {
		return Splits{}, fmt.Errorf("total length %d must exceed test size %d", total, g.TestSize)
	}
	if g.TrainRatio <= 0 || g.TrainRatio >= 1 {
		return Splits{}, fmt.Errorf("train ratio must be in (0, 1), got %g", g.TrainRatio)
	}

	raw := make([]float64, total+delay)
	for i := range raw {
		raw[i] = (g.Rand.Float64()*2 - 1) * g.Amplitude
	}
	input := raw[delay:]
	target := raw[:total]

	remainder := total - g.TestSize
	trainEnd := int(float64(remainder) * g.TrainRatio)
	return Splits{
		Delay:      delay,
		Train:      slice(input, target, 0, trainEnd),
		Validation: slice(input, target, trainEnd, remainder),
		Test:       slice(input, target, remainder, total),
	}, nil
}

func slice(input, target []float64, start, end int) Sequence {
	return Sequence{
		Input:  append([]float64(nil), input[start:end]...),
		Target: append([]float64(nil), target[start:end]...),
	}
}

// Washout drops the first w samples of values.
func Washout(values []float64, w int) ([]float64, error) {
	if w < 0 {
		return nil, fmt.Errorf("washout must be >= 0, got %d", w)
	}
	if len(values) <= w {
		return nil, fmt.Errorf("%w: len=%d washout=%d", ErrShortSequence, len(values), w)
	}
	return values[w:], nil
}
