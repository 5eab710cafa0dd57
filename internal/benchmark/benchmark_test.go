package benchmark

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rescap/internal/dataset"
	"rescap/internal/model"
	"rescap/internal/reservoir"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func esnConfig() Config {
	cfg := DefaultConfig()
	cfg.ESN = true
	cfg.HiddenWidth = 50
	cfg.MaxDelay = 3
	cfg.Trials = 1
	return cfg
}

type recordingTracker struct {
	samples map[model.Split]int
}

func (r *recordingTracker) LogSamples(split string, _ int, prediction, target []float64) error {
	if len(prediction) != len(target) {
		return errors.New("length mismatch")
	}
	r.samples[model.Split(split)]++
	return nil
}
func (r *recordingTracker) LogArtifact(string, string) error { return nil }
func (r *recordingTracker) Close() error                     { return nil }

func TestConfigKindSelection(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.Kind()
	assert.ErrorIs(t, err, ErrNoModel)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.RON = true
	kind, err := cfg.Kind()
	require.NoError(t, err)
	assert.Equal(t, reservoir.KindRON, kind)

	cfg.ESN = true
	_, err = cfg.Kind()
	assert.ErrorIs(t, err, ErrAmbiguousModel)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigValidate(t *testing.T) {
	mutations := map[string]func(*Config){
		"width":    func(c *Config) { c.HiddenWidth = 0 },
		"trials":   func(c *Config) { c.Trials = 0 },
		"delay":    func(c *Config) { c.MaxDelay = 0 },
		"washout":  func(c *Config) { c.Washout = -1 },
		"sparsity": func(c *Config) { c.Sparsity = 1 },
		"alpha":    func(c *Config) { c.RidgeAlpha = -1 },
		"topology": func(c *Config) { c.Topology = "ring" },
		"layers": func(c *Config) {
			c.ESN = false
			c.DeepRON = true
			c.LayerWidths = []int{4, 0}
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := esnConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
	assert.NoError(t, esnConfig().Validate())
}

func TestConfigReservoirConfigRanges(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RON = true
	rc, err := cfg.ReservoirConfig()
	require.NoError(t, err)
	assert.Equal(t, reservoir.Interval{Min: 0.25, Max: 0.75}, rc.Gamma)
	assert.Equal(t, reservoir.Interval{Min: 0.5, Max: 1.5}, rc.Epsilon)
	assert.Equal(t, DeviceCPU, cfg.Device())
}

func TestConfigFieldsOrderAndFormatting(t *testing.T) {
	cfg := esnConfig()
	cfg.ResultRoot = "/tmp/out"
	fields := cfg.Fields()
	require.NotEmpty(t, fields)
	assert.Equal(t, Field{Key: "resultroot", Value: "/tmp/out"}, fields[0])

	byKey := make(map[string]string, len(fields))
	for _, f := range fields {
		byKey[f.Key] = f.Value
	}
	assert.Equal(t, "true", byKey["esn"])
	assert.Equal(t, "50", byKey["n_hid"])
	assert.Equal(t, "0.99", byKey["rho"])
	assert.Equal(t, "[256, 256]", byKey["n_hid_layers"])
}

func TestParseLayerWidths(t *testing.T) {
	widths, err := ParseLayerWidths("256, 128,64")
	require.NoError(t, err)
	assert.Equal(t, []int{256, 128, 64}, widths)

	widths, err = ParseLayerWidths("  ")
	require.NoError(t, err)
	assert.Nil(t, widths)

	_, err = ParseLayerWidths("12, x")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSummarizeSingleTrialSumsMeans(t *testing.T) {
	table := ScoreTable{0: {0.9}, 1: {0.6}, 2: {0.3}}
	s, err := Summarize(table, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, s.Delays)
	assert.InDelta(t, 1.8, s.Memory, 1e-12)
	sum := 0.0
	for _, m := range s.Means {
		sum += m
	}
	assert.InDelta(t, sum, s.Memory, 1e-12)
	assert.InDelta(t, 0.06, s.Var, 1e-12)
	assert.InDelta(t, 0.2449489742783178, s.Std, 1e-12)
}

func TestSummarizeAveragesOverTrials(t *testing.T) {
	table := ScoreTable{0: {1.0, 0.5}, 1: {0.2, 0.4}}
	s, err := Summarize(table, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.75, 0.3}, s.Means, 1e-12)
	assert.InDelta(t, 1.05, s.Memory, 1e-12)

	_, err = Summarize(ScoreTable{}, 1)
	assert.Error(t, err)
	_, err = Summarize(table, 0)
	assert.Error(t, err)
}

func TestRunnerESNScenario(t *testing.T) {
	tracker := &recordingTracker{samples: map[model.Split]int{}}
	r := NewRunner(esnConfig(), quietLogger(), tracker)
	var progress []int
	r.Progress = func(done, total int) {
		assert.Equal(t, 3, total)
		progress = append(progress, done)
	}

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, res.Train.Delays())
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.Len(t, res.Records, 9)
	assert.Equal(t, 3, tracker.samples[model.SplitTrain])
	assert.Equal(t, 3, tracker.samples[model.SplitValidation])
	assert.Equal(t, 0, tracker.samples[model.SplitTest])

	for _, d := range res.Train.Delays() {
		require.Len(t, res.Train[d], 1)
		assert.GreaterOrEqual(t, res.Train[d][0], 0.0)
		assert.LessOrEqual(t, res.Train[d][0], 1.0)
		assert.Equal(t, 0.0, res.Test[d][0])
	}
	// Short delays are almost perfectly recoverable from a 50-unit ESN.
	assert.Greater(t, res.Train[0][0], 0.5)

	agg, err := res.Aggregate(1)
	require.NoError(t, err)
	sum := 0.0
	for _, m := range agg.Train.Means {
		sum += m
	}
	assert.InDelta(t, sum, agg.Train.Memory, 1e-12)
	series := agg.Series()
	require.Len(t, series, 3)
	assert.Equal(t, 1, series[0].Delay)
	assert.Equal(t, 3, series[2].Delay)
}

func TestRunnerUseTestZeroesValidation(t *testing.T) {
	cfg := esnConfig()
	cfg.UseTest = true
	res, err := NewRunner(cfg, quietLogger(), nil).Run(context.Background())
	require.NoError(t, err)

	nonZeroTest := false
	for _, d := range res.Valid.Delays() {
		assert.Equal(t, 0.0, res.Valid[d][0])
		if res.Test[d][0] != 0 {
			nonZeroTest = true
		}
	}
	assert.True(t, nonZeroTest)
}

func TestRunnerDeterministicForSeed(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) {},
		func(c *Config) { c.ESN, c.RON = false, true },
		func(c *Config) { c.ESN, c.DeepRON, c.LayerWidths = false, true, []int{10, 10} },
	} {
		cfg := esnConfig()
		cfg.MaxDelay = 2
		cfg.Trials = 2
		mutate(&cfg)

		a, err := NewRunner(cfg, quietLogger(), nil).Run(context.Background())
		require.NoError(t, err)
		b, err := NewRunner(cfg, quietLogger(), nil).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, a.Train, b.Train)
		assert.Equal(t, a.Valid, b.Valid)
		assert.Len(t, a.Train[0], 2)
	}
}

func TestRunnerRejectsMissingModelBeforeWork(t *testing.T) {
	cfg := esnConfig()
	cfg.ESN = false
	called := false
	r := NewRunner(cfg, quietLogger(), nil)
	r.NewGenerator = func(*rand.Rand) dataset.Generator {
		called = true
		return nil
	}
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoModel)
	assert.False(t, called)
}

type shortGenerator struct{}

func (shortGenerator) Generate(delay int) (dataset.Splits, error) {
	seq := dataset.Sequence{Input: make([]float64, 10), Target: make([]float64, 10)}
	return dataset.Splits{Delay: delay, Train: seq, Validation: seq, Test: seq}, nil
}

func TestRunnerFailsOnSequencesShorterThanWashout(t *testing.T) {
	r := NewRunner(esnConfig(), quietLogger(), nil)
	r.NewGenerator = func(*rand.Rand) dataset.Generator { return shortGenerator{} }
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, dataset.ErrShortSequence)
}

func TestRunnerHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(esnConfig(), quietLogger(), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
