package storage

import (
	"context"

	"rescap/internal/model"
)

// Store persists memory-capacity run records.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.MemoryRun) error
	GetRun(ctx context.Context, id string) (model.MemoryRun, bool, error)
	// ListRuns returns every run newest first.
	ListRuns(ctx context.Context) ([]model.MemoryRun, error)
}
