package storage

import (
	"context"
	"errors"
	"testing"

	"rescap/internal/model"
)

func sampleRun(id, createdAt string) model.MemoryRun {
	return model.MemoryRun{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		Model:           "ESN",
		HiddenWidth:     50,
		Trials:          1,
		MaxDelay:        2,
		Seed:            1,
		Series: []model.DelayMemory{
			{Delay: 1, Train: 0.95, Valid: 0.9},
			{Delay: 2, Train: 0.7, Valid: 0.6},
		},
		Aggregate:    model.MemoryAggregate{TrainMemory: 1.65, ValidMemory: 1.5},
		CreatedAtUTC: createdAt,
	}
}

// exerciseStore runs the shared contract against an initialized backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%v err=%v", ok, err)
	}

	older := sampleRun("run-a", "2026-01-01T00:00:00Z")
	newer := sampleRun("run-b", "2026-01-02T00:00:00Z")
	for _, run := range []model.MemoryRun{older, newer} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	loaded, ok, err := store.GetRun(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if loaded.Model != "ESN" || len(loaded.Series) != 2 || loaded.Series[1].Train != 0.7 {
		t.Fatalf("unexpected run loaded: %+v", loaded)
	}

	older.Aggregate.TrainMemory = 2.5
	if err := store.SaveRun(ctx, older); err != nil {
		t.Fatalf("overwrite run: %v", err)
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-b" || runs[1].ID != "run-a" {
		t.Fatalf("unexpected run order: %+v", runs)
	}
	if runs[1].Aggregate.TrainMemory != 2.5 {
		t.Fatalf("expected overwritten aggregate, got %+v", runs[1].Aggregate)
	}

	stale := sampleRun("run-c", "2026-01-03T00:00:00Z")
	stale.SchemaVersion = 0
	if err := store.SaveRun(ctx, stale); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	exerciseStore(t, store)
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), sampleRun("r", "")); err == nil {
		t.Fatal("expected error before init")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	run := sampleRun("r", "")
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save: %v", err)
	}
	run.Series[0].Train = -1
	loaded, _, _ := store.GetRun(ctx, "r")
	if loaded.Series[0].Train != 0.95 {
		t.Fatalf("stored series aliased caller slice: %+v", loaded.Series)
	}
}

func TestDecodeRunRejectsVersionMismatch(t *testing.T) {
	run := sampleRun("r", "")
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != "r" || decoded.Aggregate.TrainMemory != 1.65 {
		t.Fatalf("unexpected decoded run: %+v", decoded)
	}

	if _, err := DecodeRun([]byte(`{"schema_version":2,"codec_version":1,"id":"r"}`)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
	if _, err := DecodeRun([]byte(`{`)); err == nil {
		t.Fatal("expected json error")
	}
}

func TestSQLStoreRequiresInit(t *testing.T) {
	store := NewPostgresStore("")
	if err := store.Init(context.Background()); err == nil {
		t.Fatal("expected missing dsn error")
	}
	if _, _, err := store.GetRun(context.Background(), "r"); err == nil {
		t.Fatal("expected uninitialized store error")
	}
}
