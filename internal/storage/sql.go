package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"rescap/internal/model"
)

// SQLStore keeps run records in a single table through any database/sql
// driver sqlx can bind for.
type SQLStore struct {
	driver string
	dsn    string

	mu sync.RWMutex
	db *sqlx.DB
}

func NewSQLStore(driver, dsn string) *SQLStore {
	return &SQLStore{driver: driver, dsn: dsn}
}

func (s *SQLStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return fmt.Errorf("%s dsn is required", s.driver)
	}
	if s.db != nil {
		return nil
	}

	db, err := sqlx.ConnectContext(ctx, s.driver, s.dsn)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memory_runs (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			created_at_utc TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload TEXT NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLStore) SaveRun(ctx context.Context, run model.MemoryRun) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, db.Rebind(`
		INSERT INTO memory_runs (id, model, created_at_utc, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			model = excluded.model,
			created_at_utc = excluded.created_at_utc,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`), run.ID, run.Model, run.CreatedAtUTC, run.SchemaVersion, run.CodecVersion, string(payload))
	return err
}

func (s *SQLStore) GetRun(ctx context.Context, id string) (model.MemoryRun, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.MemoryRun{}, false, err
	}

	var payload string
	err = db.GetContext(ctx, &payload, db.Rebind(`SELECT payload FROM memory_runs WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.MemoryRun{}, false, nil
		}
		return model.MemoryRun{}, false, err
	}

	run, err := DecodeRun([]byte(payload))
	if err != nil {
		return model.MemoryRun{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLStore) ListRuns(ctx context.Context) ([]model.MemoryRun, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var payloads []string
	if err := db.SelectContext(ctx, &payloads, `SELECT payload FROM memory_runs ORDER BY created_at_utc DESC, id DESC`); err != nil {
		return nil, err
	}
	runs := make([]model.MemoryRun, 0, len(payloads))
	for _, payload := range payloads {
		run, err := DecodeRun([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLStore) getDB() (*sqlx.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}
