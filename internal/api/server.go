// Package api exposes a recorder over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crimson-sun/logbook/internal/logging"
	"github.com/crimson-sun/logbook/internal/metrics"
	"github.com/crimson-sun/logbook/internal/model"
	"github.com/crimson-sun/logbook/internal/pipeline"
	"github.com/crimson-sun/logbook/internal/store"
)

const (
	maxBody         = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Doer runs a function on the recorder's tick goroutine.
type Doer interface {
	Do(ctx context.Context, fn func(*pipeline.Recorder) error) error
}

// Capturer accepts events from any goroutine.
type Capturer interface {
	Capture(message, stackTrace string, sev model.Severity) error
}

// Lister reads the snapshot catalog.
type Lister interface {
	List(limit int) ([]store.Snapshot, error)
}

type Config struct {
	Addr        string
	SnapshotDir string
}

type Deps struct {
	Log      *logging.Logger
	Capturer Capturer
	Driver   Doer
	Catalog  Lister // optional
}

type Server struct {
	cfg  Config
	deps Deps
	log  *logging.Logger
}

func NewServer(d Deps, c Config) *Server {
	return &Server{cfg: c, deps: d, log: logging.OrNop(d.Log).With("api")}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { metrics.Handler().ServeHTTP(w, r) })
	r.Post("/capture", s.counted("/capture", s.handleCapture))
	r.Get("/export", s.counted("/export", s.handleExport))
	r.Get("/stats", s.counted("/stats", s.handleStats))
	r.Post("/snapshot", s.counted("/snapshot", s.handleSnapshot))
	r.Get("/snapshots", s.counted("/snapshots", s.handleSnapshots))
	return s.log.HTTP(r)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	s.log.Info().Str("addr", s.cfg.Addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) counted(route string, h http.HandlerFunc) http.HandlerFunc {
	c := metrics.APIRequests.WithLabelValues(route)
	return func(w http.ResponseWriter, r *http.Request) {
		c.Inc()
		h(w, r)
	}
}

type captureRequest struct {
	Message    string `json:"message"`
	StackTrace string `json:"stackTrace"`
	Severity   string `json:"severity"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	sev, err := model.ParseSeverity(req.Severity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.deps.Capturer.Capture(req.Message, req.StackTrace, sev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	collapsed := r.URL.Query().Get("collapsed")
	var text string
	err := s.deps.Driver.Do(r.Context(), func(rec *pipeline.Recorder) error {
		if collapsed == "1" || collapsed == "true" {
			text = rec.ExportCollapsed()
		} else {
			text = rec.ExportAll()
		}
		return nil
	})
	if err != nil {
		s.unavailable(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var st pipeline.Stats
	err := s.deps.Driver.Do(r.Context(), func(rec *pipeline.Recorder) error {
		st = rec.Stats()
		return nil
	})
	if err != nil {
		s.unavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.SnapshotDir == "" {
		http.Error(w, "snapshots disabled", http.StatusNotFound)
		return
	}
	var path string
	err := s.deps.Driver.Do(r.Context(), func(rec *pipeline.Recorder) error {
		p, err := rec.Snapshot(s.cfg.SnapshotDir, "api")
		path = p
		return err
	})
	if err != nil {
		if path == "" {
			s.log.Error().Err(err).Msg("snapshot failed")
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
		s.log.Warn().Err(err).Str("path", path).Msg("snapshot saved but not cataloged")
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		http.Error(w, "snapshot catalog disabled", http.StatusNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	snaps, err := s.deps.Catalog.List(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list snapshots failed")
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) unavailable(w http.ResponseWriter, err error) {
	s.log.Warn().Err(err).Msg("recorder unavailable")
	http.Error(w, "recorder unavailable", http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
