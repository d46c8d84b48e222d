// Package app assembles a recorder, its tick driver and the optional
// surfaces around it (sources, HTTP API, snapshot schedule) from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/crimson-sun/logbook/internal/api"
	"github.com/crimson-sun/logbook/internal/config"
	"github.com/crimson-sun/logbook/internal/logging"
	"github.com/crimson-sun/logbook/internal/metrics"
	"github.com/crimson-sun/logbook/internal/output"
	"github.com/crimson-sun/logbook/internal/output/async"
	"github.com/crimson-sun/logbook/internal/output/file"
	"github.com/crimson-sun/logbook/internal/output/flush"
	"github.com/crimson-sun/logbook/internal/output/multi"
	"github.com/crimson-sun/logbook/internal/output/stdout"
	"github.com/crimson-sun/logbook/internal/output/webhook"
	"github.com/crimson-sun/logbook/internal/pipeline"
	"github.com/crimson-sun/logbook/internal/scheduler"
	"github.com/crimson-sun/logbook/internal/sources"
	"github.com/crimson-sun/logbook/internal/store"
)

// App owns a recorder and everything driving it.
type App struct {
	cfg config.Config
	log *logging.Logger

	Recorder *pipeline.Recorder
	Driver   *pipeline.Driver
	Catalog  *store.Store // nil when no catalog is configured

	stopDriver context.CancelFunc
	started    bool
	closeOnce  sync.Once
}

// New validates cfg and builds the recorder, its writer and catalog.
// Nothing runs until Start.
func New(cfg config.Config, log *logging.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: invalid config: %w", err)
	}
	log = logging.OrNop(log)
	a := &App{cfg: cfg, log: log}
	metrics.MustRegister()

	opts := []pipeline.Option{
		pipeline.WithFilter(cfg.Filter()),
		pipeline.WithLogger(log),
	}
	if cfg.CaptureTimestamps {
		opts = append(opts, pipeline.WithTimestamps(cfg.FullTimestampFormat))
	}
	if cfg.Persist.Incremental {
		w, err := NewWriter(cfg.Persist, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithWriter(w))
	}
	if cfg.Snapshot.Catalog != "" {
		cat, err := store.Open(cfg.Snapshot.Catalog)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.Catalog = cat
		opts = append(opts, pipeline.WithCatalog(cat))
	}

	a.Recorder = pipeline.New(opts...)
	if cfg.Sources.SelfLog {
		a.log = &logging.Logger{Logger: log.Hook(sources.NewHook(a.Recorder, zerolog.WarnLevel))}
	}
	// Tick failures must not be captured: recording one would make the next
	// tick persist, fail and log again.
	a.Driver = pipeline.NewDriver(a.Recorder, cfg.TickInterval, log)
	return a, nil
}

// NewWriter builds the durable writer described by p: a file, stdout echo
// and webhook fanned out behind either the coalescing or the background
// writer.
func NewWriter(p config.PersistConfig, log *logging.Logger) (pipeline.LineWriter, error) {
	var outs []output.Output
	if p.Path != "" {
		f, err := file.New(p.Path,
			file.WithMaxSize(p.MaxSize),
			file.WithSync(p.Sync),
			file.WithLogger(log),
		)
		if err != nil {
			return nil, fmt.Errorf("app: persist file: %w", err)
		}
		outs = append(outs, f)
	}
	if p.Echo {
		outs = append(outs, stdout.New(nil))
	}
	if p.WebhookURL != "" {
		outs = append(outs, webhook.New(p.WebhookURL))
	}

	var out output.Output
	switch len(outs) {
	case 0:
		return nil, errors.New("app: persistence enabled without a destination")
	case 1:
		out = outs[0]
	default:
		out = multi.New(outs...)
	}

	if p.Async {
		return async.New(out, async.WithLogger(log)), nil
	}
	return flush.New(out, flush.WithLogger(log)), nil
}

// Logger returns the application logger, hooked into the recorder when
// self logging is on.
func (a *App) Logger() *logging.Logger { return a.log }

// Start runs the tick driver in the background.
func (a *App) Start() {
	if a.started {
		return
	}
	a.started = true
	ctx, cancel := context.WithCancel(context.Background())
	a.stopDriver = cancel
	go a.Driver.Run(ctx)
}

// Serve runs the configured sources, HTTP API and snapshot schedule until
// ctx is done or one of them fails. Sources that reach the end of their
// input do not stop the others.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}()
	}

	if m := a.Sources(); m.Len() > 0 {
		run("sources", func(ctx context.Context) error { return m.Run(ctx, a.Recorder) })
	}
	if a.cfg.HTTP.Addr != "" {
		srv := a.API()
		run("api", srv.Run)
	}
	if a.cfg.Snapshot.Schedule != "" {
		run("scheduler", func(ctx context.Context) error {
			return scheduler.Run(ctx, a.log, a.cfg.Snapshot.Schedule, a.cfg.Snapshot.Dir, a.Driver)
		})
	}

	<-ctx.Done()
	wg.Wait()
	return errors.Join(errs...)
}

// Sources builds the source manager for the configured inputs.
func (a *App) Sources() *sources.Manager {
	m := sources.NewManager(a.log)
	if a.cfg.Sources.Stdin {
		m.Add(sources.Stdin())
	}
	for _, p := range a.cfg.Sources.Tail {
		m.Add(sources.NewFileTail(p, a.cfg.Sources.FromStart, a.log))
	}
	return m
}

// API builds the HTTP server for the recorder.
func (a *App) API() *api.Server {
	deps := api.Deps{Log: a.log, Capturer: a.Recorder, Driver: a.Driver}
	if a.Catalog != nil {
		deps.Catalog = a.Catalog
	}
	return api.NewServer(deps, api.Config{Addr: a.cfg.HTTP.Addr, SnapshotDir: a.cfg.Snapshot.Dir})
}

// Close stops the driver after a final tick, then closes the recorder
// (and with it the writer) and the catalog.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.started {
			a.stopDriver()
			<-a.Driver.Done()
		} else {
			// Never started: drain and persist what was captured.
			if terr := a.Recorder.Tick(context.Background()); terr != nil {
				err = terr
			}
		}
		err = errors.Join(err, a.Recorder.Close())
		if a.Catalog != nil {
			err = errors.Join(err, a.Catalog.Close())
		}
	})
	return err
}
