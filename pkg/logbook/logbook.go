package logbook

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/crimson-sun/logbook/internal/app"
	"github.com/crimson-sun/logbook/internal/config"
	"github.com/crimson-sun/logbook/internal/logging"
	"github.com/crimson-sun/logbook/internal/model"
	"github.com/crimson-sun/logbook/internal/pipeline"
	"github.com/crimson-sun/logbook/internal/sources"
)

// Severity classifies an event.
type Severity = model.Severity

const (
	Info      = model.Info
	Warning   = model.Warning
	Error     = model.Error
	Exception = model.Exception
	Assert    = model.Assert // recorded as Exception
)

// Filter is a set of severities to capture.
type Filter = model.Filter

const (
	FilterInfo      = model.FilterInfo
	FilterWarning   = model.FilterWarning
	FilterError     = model.FilterError
	FilterException = model.FilterException
	FilterAll       = model.FilterAll
	FilterNone      = model.FilterNone
)

// ErrUnsupportedSeverity is returned by Capture for unknown severities.
var ErrUnsupportedSeverity = model.ErrUnsupportedSeverity

// Stats summarizes a Logbook.
type Stats = pipeline.Stats

// Entry is one distinct event.
type Entry struct {
	Message    string
	StackTrace string
	Severity   Severity
	Count      int // how many times it was captured
}

// Logbook is a running recorder. Safe for concurrent use.
type Logbook struct {
	app         *app.App
	snapshotDir string
}

// New creates a Logbook and starts its tick loop. Call Close to stop it.
func New(opts ...Option) (*Logbook, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg := config.Default()
	cfg.SeverityFilter = o.filter.String()
	cfg.CaptureTimestamps = o.timestamps
	cfg.FullTimestampFormat = o.fullTimestamps
	cfg.TickInterval = o.tickInterval
	cfg.Persist = config.PersistConfig{
		Path:       o.persistPath,
		MaxSize:    o.maxSize,
		Async:      o.async,
		Echo:       o.echo,
		WebhookURL: o.webhookURL,
	}
	cfg.Persist.Incremental = o.persistPath != "" || o.echo || o.webhookURL != ""
	cfg.Snapshot.Dir = o.snapshotDir
	cfg.Snapshot.Catalog = o.catalogPath

	var log *logging.Logger
	if o.logger != nil {
		log = &logging.Logger{Logger: *o.logger}
	}
	a, err := app.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("logbook: %w", err)
	}
	a.Start()
	return &Logbook{app: a, snapshotDir: o.snapshotDir}, nil
}

// Capture records one event. It never blocks on I/O.
func (l *Logbook) Capture(message, stackTrace string, sev Severity) error {
	return l.app.Recorder.Capture(message, stackTrace, sev)
}

// Export returns every captured occurrence in arrival order.
func (l *Logbook) Export(ctx context.Context) (string, error) {
	var s string
	err := l.app.Driver.Do(ctx, func(r *pipeline.Recorder) error {
		s = r.ExportAll()
		return nil
	})
	return s, err
}

// ExportCollapsed returns each distinct event once, suffixed with " (xN)"
// when it was captured N > 1 times.
func (l *Logbook) ExportCollapsed(ctx context.Context) (string, error) {
	var s string
	err := l.app.Driver.Do(ctx, func(r *pipeline.Recorder) error {
		s = r.ExportCollapsed()
		return nil
	})
	return s, err
}

// Snapshot writes Export to a new file in the snapshot directory and
// returns its path.
func (l *Logbook) Snapshot(ctx context.Context) (string, error) {
	var path string
	err := l.app.Driver.Do(ctx, func(r *pipeline.Recorder) error {
		p, err := r.SaveSnapshot(l.snapshotDir)
		path = p
		return err
	})
	return path, err
}

// Entries returns the distinct events in first-seen order.
func (l *Logbook) Entries(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := l.app.Driver.Do(ctx, func(r *pipeline.Recorder) error {
		r.Drain()
		for _, e := range r.Entries() {
			out = append(out, Entry{Message: e.Message, StackTrace: e.StackTrace, Severity: e.Severity, Count: e.Count})
		}
		return nil
	})
	return out, err
}

// Stats returns counters for the recorder.
func (l *Logbook) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := l.app.Driver.Do(ctx, func(r *pipeline.Recorder) error {
		st = r.Stats()
		return nil
	})
	return st, err
}

// Hook returns a zerolog hook that captures log messages at or above min.
func (l *Logbook) Hook(min zerolog.Level) zerolog.Hook {
	return sources.NewHook(l.app.Recorder, min)
}

// Handler returns an HTTP handler exposing capture, export and snapshot
// endpoints.
func (l *Logbook) Handler() http.Handler {
	return l.app.API().Handler()
}

// Close drains and persists pending events, then releases the file and
// catalog. Capture is a no-op afterwards.
func (l *Logbook) Close() error {
	return l.app.Close()
}
