package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"rescap/internal/benchmark"
)

func testEnv() env {
	return env{StoreKind: "memory", DBPath: defaultDBPath}
}

func TestParseRunConfigFlags(t *testing.T) {
	cfg, opts, err := parseRunConfig([]string{
		"--ron", "--n_hid", "64", "--topology", "antisymmetric", "--n_hid_layers", "32, 16",
		"--delay", "5", "--seed", "9", "--use_test", "--store", "sqlite",
	}, testEnv())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.RON || cfg.ESN || cfg.HiddenWidth != 64 || cfg.Topology != "antisymmetric" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.LayerWidths) != 2 || cfg.LayerWidths[0] != 32 || cfg.LayerWidths[1] != 16 {
		t.Fatalf("unexpected layer widths: %v", cfg.LayerWidths)
	}
	if cfg.MaxDelay != 5 || cfg.Seed != 9 || !cfg.UseTest {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if opts.storeKind != "sqlite" || opts.dbPath != defaultDBPath {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if cfg.Washout != benchmark.DefaultWashout || cfg.DT != 0.0075 {
		t.Fatalf("expected defaults to survive: %+v", cfg)
	}
}

func TestParseRunConfigFilePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := os.WriteFile(path, []byte(`{
		"esn": true,
		"n_hid": 30,
		"delay": 7,
		"rho": 0.9,
		"n_hid_layers": [8, 4],
		"resultsuffix": "_file"
	}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	e := testEnv()
	seed := int64(5)
	e.Seed = &seed
	cfg, _, err := parseRunConfig([]string{"--config", path, "--n_hid", "40"}, e)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.ESN || cfg.MaxDelay != 7 || cfg.SpectralRadius != 0.9 || cfg.ResultSuffix != "_file" {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	if cfg.HiddenWidth != 40 {
		t.Fatalf("expected explicit flag to win, got n_hid=%d", cfg.HiddenWidth)
	}
	if cfg.Seed != 5 {
		t.Fatalf("expected env seed, got %d", cfg.Seed)
	}
	if len(cfg.LayerWidths) != 2 || cfg.LayerWidths[0] != 8 {
		t.Fatalf("unexpected layer widths: %v", cfg.LayerWidths)
	}
}

func TestApplyConfigJSONErrors(t *testing.T) {
	cfg := benchmark.DefaultConfig()
	for _, raw := range []string{`{`, `[1, 2]`, `{"n_hid_layers": "1, x"}`} {
		if err := applyConfigJSON([]byte(raw), &cfg); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
	if err := applyConfigJSON([]byte(`{"n_hid_layers": "12, 6", "wandb": true}`), &cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !cfg.Tracking || len(cfg.LayerWidths) != 2 || cfg.LayerWidths[1] != 6 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv(envSeed, "42")
	t.Setenv(envStore, "postgres")
	t.Setenv(envDBPath, "postgres://localhost/rescap")
	t.Setenv(envResultRoot, "/tmp/results")

	e, err := loadEnv(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if e.Seed == nil || *e.Seed != 42 || e.StoreKind != "postgres" || e.ResultRoot != "/tmp/results" {
		t.Fatalf("unexpected env: %+v", e)
	}
	if got := e.baseConfig(); got.Seed != 42 || got.ResultRoot != "/tmp/results" {
		t.Fatalf("unexpected base config: %+v", got)
	}

	t.Setenv(envSeed, "nope")
	if _, err := loadEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected invalid seed error")
	}
}

func TestLoadEnvFile(t *testing.T) {
	const key = "RESCAP_DB_PATH"
	if _, ok := os.LookupEnv(key); ok {
		t.Skipf("%s already set", key)
	}
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(key+"=from-file.db\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	e, err := loadEnv(path)
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if e.DBPath != "from-file.db" {
		t.Fatalf("expected .env value, got %q", e.DBPath)
	}
}

func TestProgressWriter(t *testing.T) {
	var buf bytes.Buffer
	progress := progressWriter(&buf)
	progress(1, 2)
	progress(2, 2)
	if got := buf.String(); got != "\rstep 1/2 (50%)\rstep 2/2 (100%)\n" {
		t.Fatalf("unexpected progress output: %q", got)
	}
}
