// Package server exposes stored memory-capacity runs over a read-only HTTP
// API.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"rescap/internal/model"
	"rescap/internal/storage"
)

type Server struct {
	store  storage.Store
	logger *logrus.Logger
	router *chi.Mux
}

func New(store storage.Store, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/runs", s.handleListRuns)
	s.router.Get("/runs/{runID}", s.handleGetRun)
	s.router.Get("/runs/{runID}/series", s.handleRunSeries)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runSummary struct {
	ID           string                `json:"id"`
	Model        string                `json:"model"`
	Topology     string                `json:"topology,omitempty"`
	HiddenWidth  int                   `json:"hidden_width"`
	MaxDelay     int                   `json:"max_delay"`
	Trials       int                   `json:"trials"`
	Aggregate    model.MemoryAggregate `json:"aggregate"`
	CreatedAtUTC string                `json:"created_at_utc"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		s.fail(w, "list runs", err)
		return
	}
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, runSummary{
			ID:           run.ID,
			Model:        run.Model,
			Topology:     run.Topology,
			HiddenWidth:  run.HiddenWidth,
			MaxDelay:     run.MaxDelay,
			Trials:       run.Trials,
			Aggregate:    run.Aggregate,
			CreatedAtUTC: run.CreatedAtUTC,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunSeries(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run.Series)
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (model.MemoryRun, bool) {
	runID := chi.URLParam(r, "runID")
	run, ok, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.fail(w, "get run", err)
		return model.MemoryRun{}, false
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found: " + runID})
		return model.MemoryRun{}, false
	}
	return run, true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.logger.WithError(err).Error(op)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": op + " failed"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
