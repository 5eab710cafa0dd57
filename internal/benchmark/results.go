package benchmark

import (
	"errors"
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"rescap/internal/model"
)

// ScoreTable accumulates per-trial scores keyed by zero-based delay index.
type ScoreTable map[int][]float64

func (s ScoreTable) Add(delayIndex int, score float64) {
	s[delayIndex] = append(s[delayIndex], score)
}

// Delays returns the recorded delay indices in ascending order.
func (s ScoreTable) Delays() []int {
	keys := make([]int, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// TrialScore is one (trial, delay, split) evaluation.
type TrialScore struct {
	Trial  int         `json:"trial"`
	Delay  int         `json:"delay"`
	Split  model.Split `json:"split"`
	Memory float64     `json:"memory"`
	NRMSE  float64     `json:"nrmse"`
}

// Summary is the trial aggregate of one split.
//
// Var and Std are taken across the per-delay means, not across trials, so
// they describe how memory spreads over the delay axis.
type Summary struct {
	Delays []int     `json:"delays"`
	Means  []float64 `json:"means"`
	Var    float64   `json:"var"`
	Std    float64   `json:"std"`
	Memory float64   `json:"memory"`
}

// Summarize averages each delay's scores over trials and sums everything
// into the overall memory capacity.
func Summarize(table ScoreTable, trials int) (Summary, error) {
	if trials <= 0 {
		return Summary{}, fmt.Errorf("trials must be > 0, got %d", trials)
	}
	if len(table) == 0 {
		return Summary{}, errors.New("score table is empty")
	}
	delays := table.Delays()
	means := make([]float64, 0, len(delays))
	total := 0.0
	for _, d := range delays {
		sum, err := stats.Sum(table[d])
		if err != nil {
			return Summary{}, fmt.Errorf("sum delay %d: %w", d, err)
		}
		means = append(means, sum/float64(trials))
		total += sum
	}
	variance, err := stats.Variance(means)
	if err != nil {
		return Summary{}, fmt.Errorf("variance across delays: %w", err)
	}
	std, err := stats.StandardDeviation(means)
	if err != nil {
		return Summary{}, fmt.Errorf("std across delays: %w", err)
	}
	return Summary{
		Delays: delays,
		Means:  means,
		Var:    variance,
		Std:    std,
		Memory: total / float64(trials),
	}, nil
}

// Result collects every score of a run.
type Result struct {
	Train   ScoreTable   `json:"train"`
	Valid   ScoreTable   `json:"valid"`
	Test    ScoreTable   `json:"test"`
	Records []TrialScore `json:"records"`
}

func newResult() *Result {
	return &Result{
		Train: make(ScoreTable),
		Valid: make(ScoreTable),
		Test:  make(ScoreTable),
	}
}

func (r *Result) table(split model.Split) ScoreTable {
	switch split {
	case model.SplitTrain:
		return r.Train
	case model.SplitValidation:
		return r.Valid
	default:
		return r.Test
	}
}

type Aggregate struct {
	Train Summary `json:"train"`
	Valid Summary `json:"valid"`
	Test  Summary `json:"test"`
}

func (r *Result) Aggregate(trials int) (Aggregate, error) {
	var agg Aggregate
	var err error
	if agg.Train, err = Summarize(r.Train, trials); err != nil {
		return Aggregate{}, fmt.Errorf("aggregate train: %w", err)
	}
	if agg.Valid, err = Summarize(r.Valid, trials); err != nil {
		return Aggregate{}, fmt.Errorf("aggregate valid: %w", err)
	}
	if agg.Test, err = Summarize(r.Test, trials); err != nil {
		return Aggregate{}, fmt.Errorf("aggregate test: %w", err)
	}
	return agg, nil
}

// Series flattens the aggregate into per-delay rows with one-based delays.
func (a Aggregate) Series() []model.DelayMemory {
	out := make([]model.DelayMemory, len(a.Train.Delays))
	for i, d := range a.Train.Delays {
		out[i] = model.DelayMemory{Delay: d + 1, Train: a.Train.Means[i]}
		if i < len(a.Valid.Means) {
			out[i].Valid = a.Valid.Means[i]
		}
		if i < len(a.Test.Means) {
			out[i].Test = a.Test.Means[i]
		}
	}
	return out
}

func (a Aggregate) Memory() model.MemoryAggregate {
	return model.MemoryAggregate{
		TrainMemory: a.Train.Memory,
		ValidMemory: a.Valid.Memory,
		TestMemory:  a.Test.Memory,
		TrainStd:    a.Train.Std,
		TrainVar:    a.Train.Var,
	}
}
