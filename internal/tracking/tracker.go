// Package tracking forwards per-sample predictions and run artifacts to an
// experiment-tracking sink.
package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const DefaultProject = "deep-ron-thesis"

type Tracker interface {
	LogSamples(split string, delay int, prediction, target []float64) error
	LogArtifact(name, path string) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) LogSamples(string, int, []float64, []float64) error { return nil }
func (Nop) LogArtifact(string, string) error                   { return nil }
func (Nop) Close() error                                       { return nil }

type Event struct {
	Kind       string         `json:"kind"`
	Project    string         `json:"project"`
	RunID      string         `json:"run_id"`
	Split      string         `json:"split,omitempty"`
	Delay      int            `json:"delay,omitempty"`
	Prediction []float64      `json:"prediction,omitempty"`
	Target     []float64      `json:"target,omitempty"`
	Artifact   string         `json:"artifact,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
	AtUTC      string         `json:"at_utc"`
}

// FileTracker appends JSON-lines events to <dir>/<run_id>/events.jsonl and
// copies artifacts next to them.
type FileTracker struct {
	project string
	runID   string
	dir     string

	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
	now func() time.Time
}

func NewFileTracker(baseDir, project, runID string, config map[string]any) (*FileTracker, error) {
	if runID == "" {
		return nil, errors.New("tracking run id is required")
	}
	if project == "" {
		project = DefaultProject
	}
	dir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tracking dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tracking events: %w", err)
	}
	t := &FileTracker{
		project: project,
		runID:   runID,
		dir:     dir,
		f:       f,
		enc:     json.NewEncoder(f),
		now:     time.Now,
	}
	if err := t.write(Event{Kind: "init", Config: config}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return t, nil
}

func (t *FileTracker) Dir() string { return t.dir }

func (t *FileTracker) LogSamples(split string, delay int, prediction, target []float64) error {
	return t.write(Event{
		Kind:       "samples",
		Split:      split,
		Delay:      delay,
		Prediction: prediction,
		Target:     target,
	})
}

func (t *FileTracker) LogArtifact(name, path string) error {
	dst := filepath.Join(t.dir, name)
	if err := copyFile(path, dst); err != nil {
		return fmt.Errorf("copy tracking artifact %s: %w", name, err)
	}
	return t.write(Event{Kind: "artifact", Artifact: name})
}

func (t *FileTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}

func (t *FileTracker) write(e Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return errors.New("tracker is closed")
	}
	e.Project = t.project
	e.RunID = t.runID
	e.AtUTC = t.now().UTC().Format(time.RFC3339Nano)
	return t.enc.Encode(e)
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
