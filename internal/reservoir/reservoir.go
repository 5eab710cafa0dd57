// Package reservoir implements the untrained recurrent models probed by the
// memory-capacity benchmark. Every model maps a scalar input sequence to a
// trajectory of fixed-width internal states, one row per input step.
package reservoir

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/mat"
)

type Kind string

const (
	KindESN     Kind = "ESN"
	KindRON     Kind = "RON"
	KindDeepRON Kind = "DEEPRON"
)

const (
	TopologyFull          = "full"
	TopologyAntisymmetric = "antisymmetric"
)

var (
	ErrUnknownKind     = errors.New("unknown reservoir kind")
	ErrUnknownTopology = errors.New("unknown reservoir topology")
	ErrEmptyInput      = errors.New("input sequence is empty")
)

// Interval is a closed range sampled uniformly for per-unit constants.
type Interval struct {
	Min float64
	Max float64
}

// Centered returns the interval (center - width/2, center + width/2).
func Centered(center, width float64) Interval {
	return Interval{Min: center - width/2.0, Max: center + width/2.0}
}

func (i Interval) sample(rng *rand.Rand) float64 {
	return i.Min + rng.Float64()*(i.Max-i.Min)
}

type Config struct {
	Kind           Kind
	HiddenWidth    int
	LayerWidths    []int
	DT             float64
	Gamma          Interval
	Epsilon        Interval
	DiffusiveGamma float64
	SpectralRadius float64
	InputScaling   float64
	BiasScaling    float64
	Leaky          float64
	Sparsity       float64
	Topology       string
	Activation     string
}

// Model is a stateless-between-calls sequence-to-state transform. Each Run
// starts from the zero state.
type Model interface {
	Kind() Kind
	Width() int
	Run(input []float64) (*mat.Dense, error)
}

// ParseKind maps a user-facing model name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ESN":
		return KindESN, nil
	case "RON":
		return KindRON, nil
	case "DEEPRON":
		return KindDeepRON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
}

// New builds one reservoir with fresh random parameters drawn from rng.
func New(cfg Config, rng *rand.Rand) (Model, error) {
	if rng == nil {
		return nil, errors.New("reservoir rng is required")
	}
	switch cfg.Topology {
	case "":
		cfg.Topology = TopologyFull
	case TopologyFull, TopologyAntisymmetric:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopology, cfg.Topology)
	}
	switch cfg.Kind {
	case KindESN:
		return newEchoState(cfg, rng)
	case KindRON:
		return newOscillators(cfg, rng)
	case KindDeepRON:
		return newDeepOscillators(cfg, rng)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}
