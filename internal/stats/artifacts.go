package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"rescap/internal/benchmark"
	"rescap/internal/model"
)

const runIndexFile = "run_index.json"

const (
	configFile  = "config.json"
	scoresFile  = "scores.json"
	seriesFile  = "memory_series.csv"
	summaryFile = "summary.json"
)

// RunConfig is the persisted form of a benchmark configuration. JSON keys
// follow the command-line flag names.
type RunConfig struct {
	RunID          string  `json:"run_id"`
	ResultRoot     string  `json:"resultroot"`
	Tracking       bool    `json:"wandb"`
	MaxDelay       int     `json:"delay"`
	SinMemory      bool    `json:"sinmemory"`
	CPU            bool    `json:"cpu"`
	ESN            bool    `json:"esn"`
	RON            bool    `json:"ron"`
	DeepRON        bool    `json:"deepron"`
	Batch          int     `json:"batch"`
	HiddenWidth    int     `json:"n_hid"`
	DT             float64 `json:"dt"`
	Gamma          float64 `json:"gamma"`
	Epsilon        float64 `json:"epsilon"`
	GammaRange     float64 `json:"gamma_range"`
	EpsilonRange   float64 `json:"epsilon_range"`
	SpectralRadius float64 `json:"rho"`
	InputScaling   float64 `json:"inp_scaling"`
	Leaky          float64 `json:"leaky"`
	LayerWidths    []int   `json:"n_hid_layers"`
	Sparsity       float64 `json:"sparsity"`
	DiffusiveGamma float64 `json:"diffusive_gamma"`
	Topology       string  `json:"topology"`
	UseTest        bool    `json:"use_test"`
	Trials         int     `json:"trials"`
	ResultSuffix   string  `json:"resultsuffix"`
	Seed           int64   `json:"seed"`
	Washout        int     `json:"washout"`
	RidgeAlpha     float64 `json:"ridge_alpha"`
}

func NewRunConfig(runID string, cfg benchmark.Config) RunConfig {
	return RunConfig{
		RunID:          runID,
		ResultRoot:     cfg.ResultRoot,
		Tracking:       cfg.Tracking,
		MaxDelay:       cfg.MaxDelay,
		SinMemory:      cfg.SinMemory,
		CPU:            cfg.CPU,
		ESN:            cfg.ESN,
		RON:            cfg.RON,
		DeepRON:        cfg.DeepRON,
		Batch:          cfg.Batch,
		HiddenWidth:    cfg.HiddenWidth,
		DT:             cfg.DT,
		Gamma:          cfg.Gamma,
		Epsilon:        cfg.Epsilon,
		GammaRange:     cfg.GammaRange,
		EpsilonRange:   cfg.EpsilonRange,
		SpectralRadius: cfg.SpectralRadius,
		InputScaling:   cfg.InputScaling,
		Leaky:          cfg.Leaky,
		LayerWidths:    append([]int(nil), cfg.LayerWidths...),
		Sparsity:       cfg.Sparsity,
		DiffusiveGamma: cfg.DiffusiveGamma,
		Topology:       cfg.Topology,
		UseTest:        cfg.UseTest,
		Trials:         cfg.Trials,
		ResultSuffix:   cfg.ResultSuffix,
		Seed:           cfg.Seed,
		Washout:        cfg.Washout,
		RidgeAlpha:     cfg.RidgeAlpha,
	}
}

// BenchmarkConfig converts the persisted record back into a runnable
// configuration.
func (c RunConfig) BenchmarkConfig() benchmark.Config {
	return benchmark.Config{
		ResultRoot:     c.ResultRoot,
		Tracking:       c.Tracking,
		MaxDelay:       c.MaxDelay,
		SinMemory:      c.SinMemory,
		CPU:            c.CPU,
		ESN:            c.ESN,
		RON:            c.RON,
		DeepRON:        c.DeepRON,
		Batch:          c.Batch,
		HiddenWidth:    c.HiddenWidth,
		DT:             c.DT,
		Gamma:          c.Gamma,
		Epsilon:        c.Epsilon,
		GammaRange:     c.GammaRange,
		EpsilonRange:   c.EpsilonRange,
		SpectralRadius: c.SpectralRadius,
		InputScaling:   c.InputScaling,
		Leaky:          c.Leaky,
		LayerWidths:    append([]int(nil), c.LayerWidths...),
		Sparsity:       c.Sparsity,
		DiffusiveGamma: c.DiffusiveGamma,
		Topology:       c.Topology,
		UseTest:        c.UseTest,
		Trials:         c.Trials,
		ResultSuffix:   c.ResultSuffix,
		Seed:           c.Seed,
		Washout:        c.Washout,
		RidgeAlpha:     c.RidgeAlpha,
	}
}

type MemorySummary struct {
	RunID    string            `json:"run_id"`
	Model    string            `json:"model"`
	Topology string            `json:"topology,omitempty"`
	Trials   int               `json:"trials"`
	MaxDelay int               `json:"max_delay"`
	Train    benchmark.Summary `json:"train"`
	Valid    benchmark.Summary `json:"valid"`
	Test     benchmark.Summary `json:"test"`
	LogFile  string            `json:"log_file,omitempty"`
	PlotFile string            `json:"plot_file,omitempty"`
}

type RunArtifacts struct {
	Config  RunConfig              `json:"config"`
	Scores  []benchmark.TrialScore `json:"scores"`
	Series  []model.DelayMemory    `json:"series"`
	Summary MemorySummary          `json:"summary"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Model        string  `json:"model"`
	Topology     string  `json:"topology,omitempty"`
	HiddenWidth  int     `json:"n_hid"`
	MaxDelay     int     `json:"delay"`
	Trials       int     `json:"trials"`
	Seed         int64   `json:"seed"`
	UseTest      bool    `json:"use_test"`
	TrainMemory  float64 `json:"train_memory"`
	ValidMemory  float64 `json:"valid_memory"`
	TestMemory   float64 `json:"test_memory"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, scoresFile), artifacts.Scores); err != nil {
		return "", err
	}
	if err := WriteMemorySeries(runDir, artifacts.Series); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), artifacts.Summary); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	order := make(map[string]int, len(entries))
	for i, e := range entries {
		order[e.RunID] = i
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAtUTC == entries[j].CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return order[entries[i].RunID] > order[entries[j].RunID]
		}
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, scoresFile, seriesFile, summaryFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	workbookPath := filepath.Join(src, WorkbookFile)
	if _, err := os.Stat(workbookPath); err == nil {
		if err := copyFile(workbookPath, filepath.Join(dst, WorkbookFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadMemorySummary(baseDir, runID string) (MemorySummary, bool, error) {
	var summary MemorySummary
	ok, err := readJSON(filepath.Join(baseDir, runID, summaryFile), &summary)
	return summary, ok, err
}

func ReadTrialScores(baseDir, runID string) ([]benchmark.TrialScore, bool, error) {
	var scores []benchmark.TrialScore
	ok, err := readJSON(filepath.Join(baseDir, runID, scoresFile), &scores)
	return scores, ok, err
}

func WriteMemorySeries(runDir string, series []model.DelayMemory) error {
	file, err := os.Create(filepath.Join(runDir, seriesFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"delay", "train", "valid", "test"}); err != nil {
		return err
	}
	for _, row := range series {
		if err := writer.Write([]string{
			strconv.Itoa(row.Delay),
			strconv.FormatFloat(row.Train, 'f', -1, 64),
			strconv.FormatFloat(row.Valid, 'f', -1, 64),
			strconv.FormatFloat(row.Test, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadMemorySeries(baseDir, runID string) ([]model.DelayMemory, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, seriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []model.DelayMemory{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 4 {
		return nil, false, fmt.Errorf("memory series header must have 4 columns")
	}

	series := make([]model.DelayMemory, 0, 128)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 4 {
			return nil, false, fmt.Errorf("memory series row must have 4 columns")
		}
		delay, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, false, fmt.Errorf("memory series delay %q: %w", record[0], err)
		}
		values := make([]float64, 3)
		for i := range values {
			if values[i], err = strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64); err != nil {
				return nil, false, fmt.Errorf("memory series value %q: %w", record[i+1], err)
			}
		}
		series = append(series, model.DelayMemory{Delay: delay, Train: values[0], Valid: values[1], Test: values[2]})
	}
	return series, true, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
