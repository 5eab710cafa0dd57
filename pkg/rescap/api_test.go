package rescap

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rescap/internal/benchmark"
)

func newTestClient(t *testing.T, root string) (*Client, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	n := 0
	client, err := New(Options{
		StoreKind:  "memory",
		ResultRoot: root,
		Logger:     logger,
		Now: func() time.Time {
			n++
			return time.Date(2026, 1, 1, 0, 0, n, 0, time.UTC)
		},
		NewRunID: func() string { return fmt.Sprintf("run-%d", n+1) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, hook
}

func smallConfig() benchmark.Config {
	cfg := benchmark.DefaultConfig()
	cfg.ESN = true
	cfg.CPU = true
	cfg.HiddenWidth = 20
	cfg.MaxDelay = 3
	return cfg
}

func TestRunWritesLogPlotAndArtifacts(t *testing.T) {
	root := t.TempDir()
	client, _ := newTestClient(t, root)
	ctx := context.Background()

	cfg := smallConfig()
	cfg.ResultSuffix = "_unit"
	var steps int
	summary, err := client.Run(ctx, RunRequest{Config: cfg, Progress: func(done, total int) { steps = done }})
	require.NoError(t, err)
	assert.Equal(t, 3, steps)
	assert.Equal(t, "run-1", summary.RunID)
	require.Len(t, summary.Series, 3)

	assert.Equal(t, filepath.Join(root, "MemoryCapacity_log_ESN_unit.txt"), summary.LogFile)
	data, err := os.ReadFile(summary.LogFile)
	require.NoError(t, err)
	line := strings.TrimSuffix(string(data), "\n")
	assert.True(t, strings.HasPrefix(line, "resultroot: "+root+", wandb: false, delay: 3, "))
	assert.Contains(t, line, "Memory capacity for train: ")
	assert.Equal(t, 1, strings.Count(string(data), "\n"))

	assert.Equal(t, filepath.Join(root, "MemoryCapacity_plot_unit3.png"), summary.PlotFile)
	_, err = os.Stat(summary.PlotFile)
	require.NoError(t, err)
	for _, file := range []string{"config.json", "scores.json", "memory_series.csv", "summary.json"} {
		_, err := os.Stat(filepath.Join(summary.ArtifactsDir, file))
		require.NoError(t, err, file)
	}

	sum := 0.0
	for _, row := range summary.Series {
		sum += row.Train
		assert.Equal(t, 0.0, row.Test)
	}
	assert.InDelta(t, sum, summary.Memory.TrainMemory, 1e-9)

	run, err := client.Show(ctx, ShowRequest{RunID: summary.RunID})
	require.NoError(t, err)
	assert.Equal(t, "ESN", run.Model)
	assert.Equal(t, summary.Memory, run.Aggregate)

	// A second run appends to the same log file.
	_, err = client.Run(ctx, RunRequest{Config: cfg})
	require.NoError(t, err)
	data, err = os.ReadFile(summary.LogFile)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "Memory capacity for train:"))

	runs, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
}

func TestRunRejectsMissingModelBeforeWritingFiles(t *testing.T) {
	root := t.TempDir()
	client, _ := newTestClient(t, root)

	cfg := smallConfig()
	cfg.ESN = false
	_, err := client.Run(context.Background(), RunRequest{Config: cfg})
	require.ErrorIs(t, err, benchmark.ErrNoModel)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunLogsWarningsAndTracks(t *testing.T) {
	root := t.TempDir()
	client, hook := newTestClient(t, root)

	cfg := smallConfig()
	cfg.CPU = false
	cfg.MaxDelay = 1
	_, err := client.Run(context.Background(), RunRequest{Config: cfg})
	require.NoError(t, err)

	var sawCPU, sawTracking bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.InfoLevel && strings.Contains(e.Message, "running on cpu") {
			sawCPU = true
		}
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "tracking disabled") {
			sawTracking = true
		}
	}
	assert.True(t, sawCPU)
	assert.True(t, sawTracking)

	cfg.Tracking = true
	summary, err := client.Run(context.Background(), RunRequest{Config: cfg})
	require.NoError(t, err)
	events, err := os.ReadFile(filepath.Join(root, "tracking", summary.RunID, "events.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(events), `"kind":"samples"`)
	_, err = os.Stat(filepath.Join(root, "tracking", summary.RunID, plotArtifactName))
	require.NoError(t, err)
}

func TestRunDefaultsResultRootToWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	chdirForTest(t, dir)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client, err := New(Options{StoreKind: "memory", Logger: logger})
	require.NoError(t, err)
	defer client.Close()

	cfg := smallConfig()
	cfg.MaxDelay = 1
	summary, err := client.Run(context.Background(), RunRequest{Config: cfg})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "MemoryCapacity_log_ESN.txt"))
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)
}

func TestExportWithWorkbook(t *testing.T) {
	root := t.TempDir()
	client, _ := newTestClient(t, root)
	ctx := context.Background()

	cfg := smallConfig()
	cfg.MaxDelay = 2
	_, err := client.Run(ctx, RunRequest{Config: cfg})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "exports")
	exported, err := client.Export(ctx, ExportRequest{Latest: true, OutDir: out, Workbook: true})
	require.NoError(t, err)
	assert.Equal(t, "run-1", exported.RunID)
	_, err = os.Stat(filepath.Join(exported.Directory, "summary.json"))
	require.NoError(t, err)
	_, err = os.Stat(exported.Workbook)
	require.NoError(t, err)

	_, err = client.Export(ctx, ExportRequest{})
	assert.Error(t, err)
	_, err = client.Export(ctx, ExportRequest{RunID: "x", Latest: true})
	assert.Error(t, err)
}

func TestShowFallsBackToArtifacts(t *testing.T) {
	root := t.TempDir()
	writer, _ := newTestClient(t, root)
	ctx := context.Background()
	cfg := smallConfig()
	cfg.MaxDelay = 2
	summary, err := writer.Run(ctx, RunRequest{Config: cfg})
	require.NoError(t, err)

	reader, _ := newTestClient(t, root)
	run, err := reader.Show(ctx, ShowRequest{Latest: true})
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, run.ID)
	assert.Equal(t, 20, run.HiddenWidth)
	assert.Len(t, run.Series, 2)
	assert.InDelta(t, summary.Memory.TrainMemory, run.Aggregate.TrainMemory, 1e-12)

	_, err = reader.Show(ctx, ShowRequest{RunID: "missing"})
	assert.Error(t, err)

	added, err := reader.ImportArtifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	added, err = reader.ImportArtifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	store, err := reader.Store(ctx)
	require.NoError(t, err)
	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "2026-01-01T00:00:01Z", runs[0].CreatedAtUTC)
}

// chdirForTest changes the working directory for the duration of the test
// and restores it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
