package storage

import (
	"context"
	"errors"
	"sync"

	"rescap/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.MemoryRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.MemoryRun)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.MemoryRun) error {
	if err := checkVersion(run.VersionedRecord); err != nil {
		return err
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.MemoryRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.MemoryRun{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.MemoryRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.MemoryRun, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, cloneRun(run))
	}
	sortNewestFirst(runs)
	return runs, nil
}

func cloneRun(run model.MemoryRun) model.MemoryRun {
	run.Series = append([]model.DelayMemory(nil), run.Series...)
	return run
}
