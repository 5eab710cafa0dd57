// Package rescap runs reservoir memory-capacity benchmarks and manages their
// results.
package rescap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rescap/internal/benchmark"
	"rescap/internal/model"
	"rescap/internal/stats"
	"rescap/internal/storage"
	"rescap/internal/tracking"
)

const (
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultTrackingDir   = "tracking"
	defaultDBPath        = "rescap.db"

	plotArtifactName = "Memory Capacity.png"
)

type Options struct {
	StoreKind  string
	DBPath     string
	ResultRoot string
	ExportsDir string
	Logger     *logrus.Logger
	// Now and NewRunID are replaceable for reproducible tests.
	Now      func() time.Time
	NewRunID func() string
}

type Client struct {
	store  storage.Store
	logger *logrus.Logger

	resultRoot string
	exportsDir string
	now        func() time.Time
	newRunID   func() string

	mu          sync.Mutex
	initialized bool
}

type RunRequest struct {
	Config benchmark.Config
	// Progress receives (done, total) after every trial and delay step.
	Progress func(done, total int)
}

type RunSummary struct {
	RunID        string
	ResultRoot   string
	ArtifactsDir string
	LogFile      string
	PlotFile     string
	Memory       model.MemoryAggregate
	Series       []model.DelayMemory
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string  `json:"run_id"`
	CreatedAtUTC string  `json:"created_at_utc"`
	Model        string  `json:"model"`
	Topology     string  `json:"topology,omitempty"`
	HiddenWidth  int     `json:"n_hid"`
	MaxDelay     int     `json:"delay"`
	Trials       int     `json:"trials"`
	Seed         int64   `json:"seed"`
	TrainMemory  float64 `json:"train_memory"`
	ValidMemory  float64 `json:"valid_memory"`
	TestMemory   float64 `json:"test_memory"`
}

type ShowRequest struct {
	RunID  string
	Latest bool
}

type ExportRequest struct {
	RunID    string
	Latest   bool
	OutDir   string
	Workbook bool
}

type ExportSummary struct {
	RunID     string
	Directory string
	Workbook  string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		logger:     logger,
		resultRoot: opts.ResultRoot,
		exportsDir: opts.ExportsDir,
		now:        now,
		newRunID:   newRunID,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Store returns the initialized run store.
func (c *Client) Store(ctx context.Context) (storage.Store, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	return c.store, nil
}

// Run executes one benchmark and persists the result log line, the plot, the
// run artifacts and the store record. The configuration is validated before
// anything is written.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	kind, err := cfg.Kind()
	if err != nil {
		return RunSummary{}, err
	}
	if cfg.ResultRoot == "" {
		cfg.ResultRoot = c.resultRoot
	}
	if cfg.ResultRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return RunSummary{}, fmt.Errorf("resolve result root: %w", err)
		}
		c.logger.WithField("resultroot", cwd).Warn("no result root given, writing results to the working directory")
		cfg.ResultRoot = cwd
	}
	if !cfg.CPU {
		c.logger.WithField("device", cfg.Device()).Info("no accelerator backend available, running on cpu")
	}
	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}

	runID := c.newRunID()
	log := c.logger.WithFields(logrus.Fields{"run_id": runID, "model": kind})

	var tracker tracking.Tracker = tracking.Nop{}
	if cfg.Tracking {
		ft, err := tracking.NewFileTracker(filepath.Join(cfg.ResultRoot, defaultTrackingDir), tracking.DefaultProject, runID, trackingConfig(cfg))
		if err != nil {
			return RunSummary{}, err
		}
		tracker = ft
		log.WithField("dir", ft.Dir()).Info("tracking enabled")
	} else {
		log.Warn("tracking disabled, per-sample predictions are not recorded")
	}
	defer tracker.Close()

	runner := benchmark.NewRunner(cfg, c.logger, tracker)
	runner.Progress = req.Progress
	result, err := runner.Run(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	agg, err := result.Aggregate(cfg.Trials)
	if err != nil {
		return RunSummary{}, err
	}

	plotPath := filepath.Join(cfg.ResultRoot, stats.PlotFileName(cfg.ResultSuffix, cfg.MaxDelay))
	if err := stats.WriteMemoryPlot(plotPath, agg.Train); err != nil {
		return RunSummary{}, err
	}
	if err := tracker.LogArtifact(plotArtifactName, plotPath); err != nil {
		return RunSummary{}, err
	}

	logName, err := stats.LogFileName(kind, cfg.Topology, cfg.ResultSuffix)
	if err != nil {
		return RunSummary{}, err
	}
	memory := agg.Memory()
	logPath, err := stats.AppendLogLine(cfg.ResultRoot, logName,
		stats.FormatLogLine(cfg.Fields(), memory.TrainMemory, memory.ValidMemory, memory.TestMemory))
	if err != nil {
		return RunSummary{}, fmt.Errorf("append result log: %w", err)
	}

	createdAt := c.now().UTC().Format(time.RFC3339Nano)
	series := agg.Series()
	benchmarksDir := filepath.Join(cfg.ResultRoot, defaultBenchmarksDir)
	runDir, err := stats.WriteRunArtifacts(benchmarksDir, stats.RunArtifacts{
		Config: stats.NewRunConfig(runID, cfg),
		Scores: result.Records,
		Series: series,
		Summary: stats.MemorySummary{
			RunID:    runID,
			Model:    string(kind),
			Topology: cfg.Topology,
			Trials:   cfg.Trials,
			MaxDelay: cfg.MaxDelay,
			Train:    agg.Train,
			Valid:    agg.Valid,
			Test:     agg.Test,
			LogFile:  logPath,
			PlotFile: plotPath,
		},
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(benchmarksDir, stats.RunIndexEntry{
		RunID:        runID,
		Model:        string(kind),
		Topology:     cfg.Topology,
		HiddenWidth:  cfg.HiddenWidth,
		MaxDelay:     cfg.MaxDelay,
		Trials:       cfg.Trials,
		Seed:         cfg.Seed,
		UseTest:      cfg.UseTest,
		TrainMemory:  memory.TrainMemory,
		ValidMemory:  memory.ValidMemory,
		TestMemory:   memory.TestMemory,
		CreatedAtUTC: createdAt,
	}); err != nil {
		return RunSummary{}, err
	}

	if err := c.store.SaveRun(ctx, model.MemoryRun{
		VersionedRecord: storage.CurrentVersion(),
		ID:              runID,
		Model:           string(kind),
		Topology:        cfg.Topology,
		HiddenWidth:     cfg.HiddenWidth,
		Trials:          cfg.Trials,
		MaxDelay:        cfg.MaxDelay,
		Seed:            cfg.Seed,
		UseTest:         cfg.UseTest,
		Series:          series,
		Aggregate:       memory,
		CreatedAtUTC:    createdAt,
	}); err != nil {
		return RunSummary{}, fmt.Errorf("save run: %w", err)
	}

	log.WithFields(logrus.Fields{
		"train_memory": memory.TrainMemory,
		"valid_memory": memory.ValidMemory,
		"test_memory":  memory.TestMemory,
	}).Info("memory capacity run complete")

	return RunSummary{
		RunID:        runID,
		ResultRoot:   cfg.ResultRoot,
		ArtifactsDir: runDir,
		LogFile:      logPath,
		PlotFile:     plotPath,
		Memory:       memory,
		Series:       series,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	benchmarksDir, err := c.benchmarksDir()
	if err != nil {
		return nil, err
	}
	entries, err := stats.ListRunIndex(benchmarksDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Model:        e.Model,
			Topology:     e.Topology,
			HiddenWidth:  e.HiddenWidth,
			MaxDelay:     e.MaxDelay,
			Trials:       e.Trials,
			Seed:         e.Seed,
			TrainMemory:  e.TrainMemory,
			ValidMemory:  e.ValidMemory,
			TestMemory:   e.TestMemory,
		})
	}
	return out, nil
}

// Show loads one run, preferring the store and falling back to the on-disk
// artifacts for runs recorded by another process.
func (c *Client) Show(ctx context.Context, req ShowRequest) (model.MemoryRun, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return model.MemoryRun{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return model.MemoryRun{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.MemoryRun{}, err
	}
	if ok {
		return run, nil
	}

	benchmarksDir, err := c.benchmarksDir()
	if err != nil {
		return model.MemoryRun{}, err
	}
	cfg, ok, err := stats.ReadRunConfig(benchmarksDir, runID)
	if err != nil {
		return model.MemoryRun{}, err
	}
	if !ok {
		return model.MemoryRun{}, fmt.Errorf("run not found: %s", runID)
	}
	summary, _, err := stats.ReadMemorySummary(benchmarksDir, runID)
	if err != nil {
		return model.MemoryRun{}, err
	}
	series, _, err := stats.ReadMemorySeries(benchmarksDir, runID)
	if err != nil {
		return model.MemoryRun{}, err
	}
	return model.MemoryRun{
		VersionedRecord: storage.CurrentVersion(),
		ID:              runID,
		Model:           summary.Model,
		Topology:        summary.Topology,
		HiddenWidth:     cfg.HiddenWidth,
		Trials:          cfg.Trials,
		MaxDelay:        cfg.MaxDelay,
		Seed:            cfg.Seed,
		UseTest:         cfg.UseTest,
		Series:          series,
		Aggregate: model.MemoryAggregate{
			TrainMemory: summary.Train.Memory,
			ValidMemory: summary.Valid.Memory,
			TestMemory:  summary.Test.Memory,
			TrainStd:    summary.Train.Std,
			TrainVar:    summary.Train.Var,
		},
	}, nil
}

// ImportArtifacts copies runs that exist only as on-disk artifacts into the
// store and reports how many were added.
func (c *Client) ImportArtifacts(ctx context.Context) (int, error) {
	if err := c.ensureStore(ctx); err != nil {
		return 0, err
	}
	benchmarksDir, err := c.benchmarksDir()
	if err != nil {
		return 0, err
	}
	entries, err := stats.ListRunIndex(benchmarksDir)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, e := range entries {
		if _, ok, err := c.store.GetRun(ctx, e.RunID); err != nil {
			return added, err
		} else if ok {
			continue
		}
		run, err := c.Show(ctx, ShowRequest{RunID: e.RunID})
		if err != nil {
			return added, err
		}
		run.CreatedAtUTC = e.CreatedAtUTC
		if err := c.store.SaveRun(ctx, run); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	benchmarksDir, err := c.benchmarksDir()
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	if req.OutDir == "" {
		req.OutDir = filepath.Join(filepath.Dir(benchmarksDir), defaultExportsDir)
	}

	exportedDir, err := stats.ExportRunArtifacts(benchmarksDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	summary := ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}
	if !req.Workbook {
		return summary, nil
	}

	cfg, _, err := stats.ReadRunConfig(benchmarksDir, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	series, _, err := stats.ReadMemorySeries(benchmarksDir, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	scores, _, err := stats.ReadTrialScores(benchmarksDir, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	summary.Workbook = filepath.Join(summary.Directory, stats.WorkbookFile)
	if err := stats.WriteMemoryWorkbook(summary.Workbook, cfg.BenchmarkConfig().Fields(), series, scores); err != nil {
		return ExportSummary{}, err
	}
	return summary, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if !latest {
		return runID, nil
	}
	benchmarksDir, err := c.benchmarksDir()
	if err != nil {
		return "", err
	}
	entries, err := stats.ListRunIndex(benchmarksDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) benchmarksDir() (string, error) {
	root := c.resultRoot
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = cwd
	}
	return filepath.Join(root, defaultBenchmarksDir), nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

func trackingConfig(cfg benchmark.Config) map[string]any {
	fields := cfg.Fields()
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}
