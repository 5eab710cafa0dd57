package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"rescap/internal/server"
	rescapapi "rescap/pkg/rescap"
)

const envFile = ".env"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}
	e, err := loadEnv(envFile)
	if err != nil {
		return err
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:], e)
	case "runs":
		return runRuns(ctx, args[1:], e)
	case "show":
		return runShow(ctx, args[1:], e)
	case "export":
		return runExport(ctx, args[1:], e)
	case "serve":
		return runServe(ctx, args[1:], e)
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func newClient(e env, storeKind, dbPath, resultRoot string, logger *logrus.Logger) (*rescapapi.Client, error) {
	if resultRoot == "" {
		resultRoot = e.ResultRoot
	}
	return rescapapi.New(rescapapi.Options{
		StoreKind:  storeKind,
		DBPath:     dbPath,
		ResultRoot: resultRoot,
		Logger:     logger,
	})
}

func runRun(ctx context.Context, args []string, e env) error {
	cfg, opts, err := parseRunConfig(args, e)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, false)
	client, err := newClient(e, opts.storeKind, opts.dbPath, cfg.ResultRoot, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	summary, err := client.Run(ctx, rescapapi.RunRequest{
		Config:   cfg,
		Progress: progressFunc(os.Stdout),
	})
	if err != nil {
		return err
	}

	fmt.Printf("run completed run_id=%s train_memory=%.6f valid_memory=%.6f test_memory=%.6f train_std=%.6f train_var=%.6f\n",
		summary.RunID,
		summary.Memory.TrainMemory,
		summary.Memory.ValidMemory,
		summary.Memory.TestMemory,
		summary.Memory.TrainStd,
		summary.Memory.TrainVar,
	)
	fmt.Printf("log=%s plot=%s artifacts=%s\n", summary.LogFile, summary.PlotFile, summary.ArtifactsDir)
	return nil
}

func runRuns(ctx context.Context, args []string, e env) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	resultRoot := fs.String("resultroot", e.ResultRoot, "result root holding benchmarks/")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := newClient(e, "memory", "", *resultRoot, newLogger(os.Stderr, false))
	if err != nil {
		return err
	}
	defer client.Close()

	items, err := client.Runs(ctx, rescapapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("run_id=%s created=%s model=%s topology=%s n_hid=%d delay=%d trials=%d seed=%d train_memory=%.6f valid_memory=%.6f test_memory=%.6f\n",
			item.RunID,
			createdAge(item.CreatedAtUTC),
			item.Model,
			item.Topology,
			item.HiddenWidth,
			item.MaxDelay,
			item.Trials,
			item.Seed,
			item.TrainMemory,
			item.ValidMemory,
			item.TestMemory,
		)
	}
	return nil
}

// createdAge renders an RFC3339 timestamp as a relative age, falling back to
// the raw value when it does not parse.
func createdAge(createdAtUTC string) string {
	t, err := time.Parse(time.RFC3339Nano, createdAtUTC)
	if err != nil {
		return createdAtUTC
	}
	return humanize.Time(t)
}

func runShow(ctx context.Context, args []string, e env) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	resultRoot := fs.String("resultroot", e.ResultRoot, "result root holding benchmarks/")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run from run index")
	storeKind := fs.String("store", e.StoreKind, "store backend: memory|sqlite|postgres")
	dbPath := fs.String("db-path", e.DBPath, "sqlite database path or postgres dsn")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(e, *storeKind, *dbPath, *resultRoot, newLogger(os.Stderr, false))
	if err != nil {
		return err
	}
	defer client.Close()

	runRecord, err := client.Show(ctx, rescapapi.ShowRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	fmt.Printf("run_id=%s model=%s topology=%s n_hid=%d delay=%d trials=%d seed=%d use_test=%t\n",
		runRecord.ID,
		runRecord.Model,
		runRecord.Topology,
		runRecord.HiddenWidth,
		runRecord.MaxDelay,
		runRecord.Trials,
		runRecord.Seed,
		runRecord.UseTest,
	)
	fmt.Printf("train_memory=%.6f valid_memory=%.6f test_memory=%.6f train_std=%.6f train_var=%.6f\n",
		runRecord.Aggregate.TrainMemory,
		runRecord.Aggregate.ValidMemory,
		runRecord.Aggregate.TestMemory,
		runRecord.Aggregate.TrainStd,
		runRecord.Aggregate.TrainVar,
	)
	for _, row := range runRecord.Series {
		fmt.Printf("delay=%d train=%.6f valid=%.6f test=%.6f\n", row.Delay, row.Train, row.Valid, row.Test)
	}
	return nil
}

func runExport(ctx context.Context, args []string, e env) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	resultRoot := fs.String("resultroot", e.ResultRoot, "result root holding benchmarks/")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", "", "export output directory (default: <resultroot>/exports)")
	xlsx := fs.Bool("xlsx", false, "also write a spreadsheet of the per-delay table and trial scores")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := newClient(e, "memory", "", *resultRoot, newLogger(os.Stderr, false))
	if err != nil {
		return err
	}
	defer client.Close()

	exported, err := client.Export(ctx, rescapapi.ExportRequest{
		RunID:    *runID,
		Latest:   *latest,
		OutDir:   *outDir,
		Workbook: *xlsx,
	})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	if exported.Workbook != "" {
		fmt.Printf("workbook=%s\n", exported.Workbook)
	}
	return nil
}

func runServe(ctx context.Context, args []string, e env) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "listen address")
	resultRoot := fs.String("resultroot", e.ResultRoot, "result root holding benchmarks/")
	storeKind := fs.String("store", e.StoreKind, "store backend: memory|sqlite|postgres")
	dbPath := fs.String("db-path", e.DBPath, "sqlite database path or postgres dsn")
	verbose := fs.Bool("v", false, "log every request")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := newLogger(os.Stderr, *verbose)
	client, err := newClient(e, *storeKind, *dbPath, *resultRoot, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	imported, err := client.ImportArtifacts(ctx)
	if err != nil {
		return err
	}
	store, err := client.Store(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.New(store, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.WithFields(logrus.Fields{"addr": *addr, "imported_runs": imported}).Info("serving memory capacity runs")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: rescapctl <run|runs|show|export|serve> [flags]", msg)
}
