package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/tidwall/gjson"

	"rescap/internal/benchmark"
	"rescap/internal/storage"
)

const (
	envResultRoot = "RESCAP_RESULTROOT"
	envStore      = "RESCAP_STORE"
	envDBPath     = "RESCAP_DB_PATH"
	envSeed       = "RESCAP_SEED"

	defaultDBPath = "rescap.db"
)

// env holds the process-level defaults that flags may override.
type env struct {
	ResultRoot string
	StoreKind  string
	DBPath     string
	Seed       *int64
}

// loadEnv reads .env (when present) into the process environment and then
// collects the RESCAP_* defaults.
func loadEnv(path string) (env, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return env{}, fmt.Errorf("load %s: %w", path, err)
	}
	e := env{
		ResultRoot: os.Getenv(envResultRoot),
		StoreKind:  os.Getenv(envStore),
		DBPath:     os.Getenv(envDBPath),
	}
	if e.StoreKind == "" {
		e.StoreKind = storage.DefaultStoreKind()
	}
	if e.DBPath == "" {
		e.DBPath = defaultDBPath
	}
	if raw := os.Getenv(envSeed); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return env{}, fmt.Errorf("%s: %w", envSeed, err)
		}
		e.Seed = &seed
	}
	return e, nil
}

func (e env) baseConfig() benchmark.Config {
	cfg := benchmark.DefaultConfig()
	cfg.ResultRoot = e.ResultRoot
	if e.Seed != nil {
		cfg.Seed = *e.Seed
	}
	return cfg
}

type runOptions struct {
	configPath string
	storeKind  string
	dbPath     string
}

// newRunFlagSet binds every benchmark flag onto cfg, using cfg's current
// values as defaults.
func newRunFlagSet(cfg *benchmark.Config, opts *runOptions, e env) *flag.FlagSet {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "optional run config JSON path; explicit flags win over file values")
	fs.StringVar(&opts.storeKind, "store", e.StoreKind, "store backend: memory|sqlite|postgres")
	fs.StringVar(&opts.dbPath, "db-path", e.DBPath, "sqlite database path or postgres dsn")

	fs.StringVar(&cfg.ResultRoot, "resultroot", cfg.ResultRoot, "directory for logs, plots and artifacts (default: working directory)")
	fs.BoolVar(&cfg.Tracking, "wandb", cfg.Tracking, "record per-sample predictions and the plot with the tracking sink")
	fs.IntVar(&cfg.MaxDelay, "delay", cfg.MaxDelay, "max delay")
	fs.BoolVar(&cfg.SinMemory, "sinmemory", cfg.SinMemory, "accepted for compatibility; unused")
	fs.BoolVar(&cfg.CPU, "cpu", cfg.CPU, "run on cpu")
	fs.BoolVar(&cfg.ESN, "esn", cfg.ESN, "use echo state network")
	fs.BoolVar(&cfg.RON, "ron", cfg.RON, "use random oscillator network")
	fs.BoolVar(&cfg.DeepRON, "deepron", cfg.DeepRON, "use stacked oscillator network")
	fs.IntVar(&cfg.Batch, "batch", cfg.Batch, "accepted for compatibility; unused")
	fs.IntVar(&cfg.HiddenWidth, "n_hid", cfg.HiddenWidth, "hidden size of recurrent net")
	fs.Float64Var(&cfg.DT, "dt", cfg.DT, "step size <dt> of the coRNN")
	fs.Float64Var(&cfg.Gamma, "gamma", cfg.Gamma, "y controle parameter <gamma> of the coRNN")
	fs.Float64Var(&cfg.Epsilon, "epsilon", cfg.Epsilon, "z controle parameter <epsilon> of the coRNN")
	fs.Float64Var(&cfg.GammaRange, "gamma_range", cfg.GammaRange, "y controle parameter <gamma> range")
	fs.Float64Var(&cfg.EpsilonRange, "epsilon_range", cfg.EpsilonRange, "z controle parameter <epsilon> range")
	fs.Float64Var(&cfg.SpectralRadius, "rho", cfg.SpectralRadius, "ESN spectral radius")
	fs.Float64Var(&cfg.InputScaling, "inp_scaling", cfg.InputScaling, "ESN input scaling")
	fs.Float64Var(&cfg.Leaky, "leaky", cfg.Leaky, "ESN leakage")
	fs.Func("n_hid_layers", "comma separated hidden sizes of the stacked layers (default \"256, 256\")", func(s string) error {
		widths, err := benchmark.ParseLayerWidths(s)
		if err != nil {
			return err
		}
		cfg.LayerWidths = widths
		return nil
	})
	fs.Float64Var(&cfg.Sparsity, "sparsity", cfg.Sparsity, "sparsity of the recurrent matrix")
	fs.Float64Var(&cfg.DiffusiveGamma, "diffusive_gamma", cfg.DiffusiveGamma, "diffusive term")
	fs.StringVar(&cfg.Topology, "topology", cfg.Topology, "topology of the reservoir: full|antisymmetric")
	fs.BoolVar(&cfg.UseTest, "use_test", cfg.UseTest, "score the test split instead of validation")
	fs.IntVar(&cfg.Trials, "trials", cfg.Trials, "number of trials")
	fs.StringVar(&cfg.ResultSuffix, "resultsuffix", cfg.ResultSuffix, "suffix appended to log and plot file names")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "rng seed")
	fs.IntVar(&cfg.Washout, "washout", cfg.Washout, "leading states discarded before the readout")
	fs.Float64Var(&cfg.RidgeAlpha, "ridge_alpha", cfg.RidgeAlpha, "ridge regularization strength")
	return fs
}

// parseRunConfig resolves the run configuration with precedence
// flags > config file > environment > defaults.
func parseRunConfig(args []string, e env) (benchmark.Config, runOptions, error) {
	cfg := e.baseConfig()
	var opts runOptions
	if err := newRunFlagSet(&cfg, &opts, e).Parse(args); err != nil {
		return benchmark.Config{}, runOptions{}, err
	}
	if opts.configPath == "" {
		return cfg, opts, nil
	}

	data, err := os.ReadFile(opts.configPath)
	if err != nil {
		return benchmark.Config{}, runOptions{}, err
	}
	fileCfg := e.baseConfig()
	if err := applyConfigJSON(data, &fileCfg); err != nil {
		return benchmark.Config{}, runOptions{}, fmt.Errorf("config %s: %w", opts.configPath, err)
	}
	// Re-parsing onto the file values leaves only explicit flags applied.
	if err := newRunFlagSet(&fileCfg, &opts, e).Parse(args); err != nil {
		return benchmark.Config{}, runOptions{}, err
	}
	return fileCfg, opts, nil
}

// applyConfigJSON overlays keys present in data onto cfg. Keys match the
// flag names.
func applyConfigJSON(data []byte, cfg *benchmark.Config) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid json")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return errors.New("config must be a json object")
	}

	str := func(key string, dst *string) {
		if v := doc.Get(key); v.Exists() {
			*dst = v.String()
		}
	}
	boolean := func(key string, dst *bool) {
		if v := doc.Get(key); v.Exists() {
			*dst = v.Bool()
		}
	}
	integer := func(key string, dst *int) {
		if v := doc.Get(key); v.Exists() {
			*dst = int(v.Int())
		}
	}
	float := func(key string, dst *float64) {
		if v := doc.Get(key); v.Exists() {
			*dst = v.Float()
		}
	}

	str("resultroot", &cfg.ResultRoot)
	boolean("wandb", &cfg.Tracking)
	integer("delay", &cfg.MaxDelay)
	boolean("sinmemory", &cfg.SinMemory)
	boolean("cpu", &cfg.CPU)
	boolean("esn", &cfg.ESN)
	boolean("ron", &cfg.RON)
	boolean("deepron", &cfg.DeepRON)
	integer("batch", &cfg.Batch)
	integer("n_hid", &cfg.HiddenWidth)
	float("dt", &cfg.DT)
	float("gamma", &cfg.Gamma)
	float("epsilon", &cfg.Epsilon)
	float("gamma_range", &cfg.GammaRange)
	float("epsilon_range", &cfg.EpsilonRange)
	float("rho", &cfg.SpectralRadius)
	float("inp_scaling", &cfg.InputScaling)
	float("leaky", &cfg.Leaky)
	float("sparsity", &cfg.Sparsity)
	float("diffusive_gamma", &cfg.DiffusiveGamma)
	str("topology", &cfg.Topology)
	boolean("use_test", &cfg.UseTest)
	integer("trials", &cfg.Trials)
	str("resultsuffix", &cfg.ResultSuffix)
	integer("washout", &cfg.Washout)
	float("ridge_alpha", &cfg.RidgeAlpha)
	if v := doc.Get("seed"); v.Exists() {
		cfg.Seed = v.Int()
	}

	if v := doc.Get("n_hid_layers"); v.Exists() {
		if v.IsArray() {
			widths := make([]int, 0, len(v.Array()))
			for _, w := range v.Array() {
				widths = append(widths, int(w.Int()))
			}
			cfg.LayerWidths = widths
		} else {
			widths, err := benchmark.ParseLayerWidths(v.String())
			if err != nil {
				return err
			}
			cfg.LayerWidths = widths
		}
	}
	return nil
}
