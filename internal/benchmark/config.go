package benchmark

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rescap/internal/readout"
	"rescap/internal/reservoir"
)

const (
	DefaultWashout = 100
	DeviceCPU      = "cpu"
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrNoModel        = fmt.Errorf("%w: wrong model choice, select one of esn|ron|deepron", ErrInvalidConfig)
	ErrAmbiguousModel = fmt.Errorf("%w: more than one model selected", ErrInvalidConfig)
)

// Config is the immutable hyper-parameter record of one run.
type Config struct {
	ResultRoot     string
	Tracking       bool
	MaxDelay       int
	SinMemory      bool
	CPU            bool
	ESN            bool
	RON            bool
	DeepRON        bool
	Batch          int
	HiddenWidth    int
	DT             float64
	Gamma          float64
	Epsilon        float64
	GammaRange     float64
	EpsilonRange   float64
	SpectralRadius float64
	InputScaling   float64
	Leaky          float64
	LayerWidths    []int
	Sparsity       float64
	DiffusiveGamma float64
	Topology       string
	UseTest        bool
	Trials         int
	ResultSuffix   string
	Seed           int64
	Washout        int
	RidgeAlpha     float64
}

func DefaultConfig() Config {
	return Config{
		MaxDelay:       100,
		Batch:          4,
		HiddenWidth:    100,
		DT:             0.0075,
		Gamma:          0.5,
		Epsilon:        1.0,
		GammaRange:     0.5,
		EpsilonRange:   1,
		SpectralRadius: 0.99,
		InputScaling:   1,
		Leaky:          1.0,
		LayerWidths:    []int{256, 256},
		Topology:       reservoir.TopologyFull,
		Trials:         1,
		Seed:           1,
		Washout:        DefaultWashout,
		RidgeAlpha:     readout.DefaultAlpha,
	}
}

// Kind resolves the single selected model flag.
func (c Config) Kind() (reservoir.Kind, error) {
	selected := make([]reservoir.Kind, 0, 1)
	if c.ESN {
		selected = append(selected, reservoir.KindESN)
	}
	if c.RON {
		selected = append(selected, reservoir.KindRON)
	}
	if c.DeepRON {
		selected = append(selected, reservoir.KindDeepRON)
	}
	switch len(selected) {
	case 0:
		return "", ErrNoModel
	case 1:
		return selected[0], nil
	default:
		return "", fmt.Errorf("%w: %v", ErrAmbiguousModel, selected)
	}
}

func (c Config) Validate() error {
	if _, err := c.Kind(); err != nil {
		return err
	}
	if c.HiddenWidth <= 0 {
		return fmt.Errorf("%w: n_hid must be > 0", ErrInvalidConfig)
	}
	if c.Trials <= 0 {
		return fmt.Errorf("%w: trials must be > 0", ErrInvalidConfig)
	}
	if c.MaxDelay <= 0 {
		return fmt.Errorf("%w: delay must be > 0", ErrInvalidConfig)
	}
	if c.Washout < 0 {
		return fmt.Errorf("%w: washout must be >= 0", ErrInvalidConfig)
	}
	if c.Sparsity < 0 || c.Sparsity >= 1 {
		return fmt.Errorf("%w: sparsity must be in [0, 1)", ErrInvalidConfig)
	}
	if c.RidgeAlpha < 0 {
		return fmt.Errorf("%w: ridge_alpha must be >= 0", ErrInvalidConfig)
	}
	switch c.Topology {
	case reservoir.TopologyFull, reservoir.TopologyAntisymmetric:
	default:
		return fmt.Errorf("%w: topology must be full|antisymmetric, got %q", ErrInvalidConfig, c.Topology)
	}
	if c.DeepRON {
		if len(c.LayerWidths) == 0 {
			return fmt.Errorf("%w: deepron requires n_hid_layers", ErrInvalidConfig)
		}
		for _, w := range c.LayerWidths {
			if w <= 0 {
				return fmt.Errorf("%w: n_hid_layers entries must be > 0", ErrInvalidConfig)
			}
		}
	}
	return nil
}

// ReservoirConfig maps the run configuration onto reservoir construction
// parameters.
func (c Config) ReservoirConfig() (reservoir.Config, error) {
	kind, err := c.Kind()
	if err != nil {
		return reservoir.Config{}, err
	}
	return reservoir.Config{
		Kind:           kind,
		HiddenWidth:    c.HiddenWidth,
		LayerWidths:    append([]int(nil), c.LayerWidths...),
		DT:             c.DT,
		Gamma:          reservoir.Centered(c.Gamma, c.GammaRange),
		Epsilon:        reservoir.Centered(c.Epsilon, c.EpsilonRange),
		DiffusiveGamma: c.DiffusiveGamma,
		SpectralRadius: c.SpectralRadius,
		InputScaling:   c.InputScaling,
		Leaky:          c.Leaky,
		Sparsity:       c.Sparsity,
		Topology:       c.Topology,
	}, nil
}

// Device reports the compute target. Only the CPU backend exists.
func (c Config) Device() string {
	return DeviceCPU
}

// Field is one key/value pair of the configuration in log order.
type Field struct {
	Key   string
	Value string
}

func (c Config) Fields() []Field {
	f := strconv.FormatFloat
	b := strconv.FormatBool
	return []Field{
		{"resultroot", c.ResultRoot},
		{"wandb", b(c.Tracking)},
		{"delay", strconv.Itoa(c.MaxDelay)},
		{"sinmemory", b(c.SinMemory)},
		{"cpu", b(c.CPU)},
		{"esn", b(c.ESN)},
		{"ron", b(c.RON)},
		{"deepron", b(c.DeepRON)},
		{"batch", strconv.Itoa(c.Batch)},
		{"n_hid", strconv.Itoa(c.HiddenWidth)},
		{"dt", f(c.DT, 'g', -1, 64)},
		{"gamma", f(c.Gamma, 'g', -1, 64)},
		{"epsilon", f(c.Epsilon, 'g', -1, 64)},
		{"gamma_range", f(c.GammaRange, 'g', -1, 64)},
		{"epsilon_range", f(c.EpsilonRange, 'g', -1, 64)},
		{"rho", f(c.SpectralRadius, 'g', -1, 64)},
		{"inp_scaling", f(c.InputScaling, 'g', -1, 64)},
		{"leaky", f(c.Leaky, 'g', -1, 64)},
		{"n_hid_layers", FormatLayerWidths(c.LayerWidths)},
		{"sparsity", f(c.Sparsity, 'g', -1, 64)},
		{"diffusive_gamma", f(c.DiffusiveGamma, 'g', -1, 64)},
		{"topology", c.Topology},
		{"use_test", b(c.UseTest)},
		{"trials", strconv.Itoa(c.Trials)},
		{"resultsuffix", c.ResultSuffix},
		{"seed", strconv.FormatInt(c.Seed, 10)},
		{"washout", strconv.Itoa(c.Washout)},
		{"ridge_alpha", f(c.RidgeAlpha, 'g', -1, 64)},
	}
}

// ParseLayerWidths parses a comma separated width list such as "256, 256".
func ParseLayerWidths(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	widths := make([]int, 0, len(parts))
	for _, part := range parts {
		w, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: n_hid_layers entry %q: %v", ErrInvalidConfig, part, err)
		}
		widths = append(widths, w)
	}
	return widths, nil
}

func FormatLayerWidths(widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strconv.Itoa(w)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
