// Package benchmark drives the memory-capacity sweep: trials over fresh
// reservoirs, a delay sweep per trial, one ridge readout per delay.
package benchmark

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"rescap/internal/dataset"
	"rescap/internal/model"
	"rescap/internal/readout"
	"rescap/internal/reservoir"
	"rescap/internal/tracking"
)

// GeneratorFactory builds the dataset source for one trial.
type GeneratorFactory func(rng *rand.Rand) dataset.Generator

// ModelFactory builds the reservoir for one trial.
type ModelFactory func(cfg reservoir.Config, rng *rand.Rand) (reservoir.Model, error)

type Runner struct {
	Config       Config
	Logger       *logrus.Logger
	Tracker      tracking.Tracker
	NewGenerator GeneratorFactory
	NewModel     ModelFactory
	// Progress is invoked after every (trial, delay) step.
	Progress func(done, total int)
}

func NewRunner(cfg Config, logger *logrus.Logger, tracker tracking.Tracker) *Runner {
	return &Runner{Config: cfg, Logger: logger, Tracker: tracker}
}

// trialSeeds derives independent model and dataset streams for trial t.
func trialSeeds(seed int64, trial int) (modelSeed, dataSeed int64) {
	base := seed + int64(trial)*7919
	return base, base + 104729
}

func (r *Runner) Run(ctx context.Context) (*Result, error) {
	cfg := r.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	resCfg, err := cfg.ReservoirConfig()
	if err != nil {
		return nil, err
	}
	logger := r.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	tracker := r.Tracker
	if tracker == nil {
		tracker = tracking.Nop{}
	}
	newGenerator := r.NewGenerator
	if newGenerator == nil {
		newGenerator = func(rng *rand.Rand) dataset.Generator { return dataset.NewUniformGenerator(rng) }
	}
	newModel := r.NewModel
	if newModel == nil {
		newModel = reservoir.New
	}

	result := newResult()
	total := cfg.Trials * cfg.MaxDelay
	done := 0
	for t := 0; t < cfg.Trials; t++ {
		modelSeed, dataSeed := trialSeeds(cfg.Seed, t)
		m, err := newModel(resCfg, rand.New(rand.NewSource(modelSeed)))
		if err != nil {
			return nil, fmt.Errorf("trial %d: build reservoir: %w", t, err)
		}
		gen := newGenerator(rand.New(rand.NewSource(dataSeed)))

		for i := 0; i < cfg.MaxDelay; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			scores, err := r.evaluateDelay(m, gen, tracker, i+1)
			if err != nil {
				return nil, fmt.Errorf("trial %d delay %d: %w", t, i+1, err)
			}
			for _, s := range scores {
				result.table(s.Split).Add(i, s.Memory)
				s.Trial = t
				result.Records = append(result.Records, s)
			}
			done++
			logger.WithFields(logrus.Fields{
				"trial":        t,
				"delay":        fmt.Sprintf("%d/%d", i+1, cfg.MaxDelay),
				"train_memory": roundTo(scores[0].Memory, 2),
				"valid_memory": roundTo(scores[1].Memory, 2),
				"test_memory":  roundTo(scores[2].Memory, 2),
			}).Info("memory capacity step")
			if r.Progress != nil {
				r.Progress(done, total)
			}
		}
	}
	return result, nil
}

// evaluateDelay fits one readout for delay and scores it on every split.
// The returned slice is ordered train, valid, test.
func (r *Runner) evaluateDelay(m reservoir.Model, gen dataset.Generator, tracker tracking.Tracker, delay int) ([]TrialScore, error) {
	cfg := r.Config
	splits, err := gen.Generate(delay)
	if err != nil {
		return nil, fmt.Errorf("generate dataset: %w", err)
	}
	trainTarget, err := dataset.Washout(splits.Train.Target, cfg.Washout)
	if err != nil {
		return nil, fmt.Errorf("washout train target: %w", err)
	}
	validTarget, err := dataset.Washout(splits.Validation.Target, cfg.Washout)
	if err != nil {
		return nil, fmt.Errorf("washout valid target: %w", err)
	}
	testTarget, err := dataset.Washout(splits.Test.Target, cfg.Washout)
	if err != nil {
		return nil, fmt.Errorf("washout test target: %w", err)
	}

	states, err := r.washedStates(m, splits.Train.Input)
	if err != nil {
		return nil, fmt.Errorf("drive train input: %w", err)
	}
	scaler, err := readout.FitScaler(states)
	if err != nil {
		return nil, err
	}
	scaled, err := scaler.Transform(states)
	if err != nil {
		return nil, err
	}
	ridge, err := readout.FitRidge(scaled, trainTarget, cfg.RidgeAlpha)
	if err != nil {
		return nil, fmt.Errorf("fit readout: %w", err)
	}

	score := func(split model.Split, input, target []float64) (TrialScore, error) {
		s := TrialScore{Delay: delay, Split: split}
		states, err := r.washedStates(m, input)
		if err != nil {
			return s, fmt.Errorf("drive %s input: %w", split, err)
		}
		scaled, err := scaler.Transform(states)
		if err != nil {
			return s, err
		}
		pred, err := ridge.Predict(scaled)
		if err != nil {
			return s, err
		}
		if err := tracker.LogSamples(string(split), delay, pred, target); err != nil {
			return s, fmt.Errorf("track %s samples: %w", split, err)
		}
		if s.Memory, err = readout.SquaredCorrelation(pred, target); err != nil {
			return s, fmt.Errorf("score %s: %w", split, err)
		}
		if s.NRMSE, err = readout.NRMSE(pred, target); err != nil {
			return s, fmt.Errorf("nrmse %s: %w", split, err)
		}
		return s, nil
	}

	train, err := score(model.SplitTrain, splits.Train.Input, trainTarget)
	if err != nil {
		return nil, err
	}
	valid := TrialScore{Delay: delay, Split: model.SplitValidation}
	test := TrialScore{Delay: delay, Split: model.SplitTest}
	if cfg.UseTest {
		if test, err = score(model.SplitTest, splits.Test.Input, testTarget); err != nil {
			return nil, err
		}
	} else {
		if valid, err = score(model.SplitValidation, splits.Validation.Input, validTarget); err != nil {
			return nil, err
		}
	}
	return []TrialScore{train, valid, test}, nil
}

// washedStates drives the reservoir over input and drops the washout rows.
func (r *Runner) washedStates(m reservoir.Model, input []float64) (mat.Matrix, error) {
	states, err := m.Run(input)
	if err != nil {
		return nil, err
	}
	rows, cols := states.Dims()
	w := r.Config.Washout
	if rows <= w {
		return nil, fmt.Errorf("%w: states=%d washout=%d", dataset.ErrShortSequence, rows, w)
	}
	return states.Slice(w, rows, 0, cols), nil
}

func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
