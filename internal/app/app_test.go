package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/logbook/internal/config"
	"github.com/crimson-sun/logbook/internal/logging"
	"github.com/crimson-sun/logbook/internal/model"
	"github.com/crimson-sun/logbook/internal/output/async"
	"github.com/crimson-sun/logbook/internal/output/flush"
	"github.com/crimson-sun/logbook/internal/pipeline"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.TickInterval = 10 * time.Millisecond
	cfg.Persist.Path = filepath.Join(dir, "logs", "logbook.log")
	cfg.Snapshot.Dir = filepath.Join(dir, "snapshots")
	cfg.Snapshot.Catalog = filepath.Join(dir, "catalog.db")
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SeverityFilter = "bogus"
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestNewWriterKinds(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(config.PersistConfig{Path: filepath.Join(dir, "a.log")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &flush.Writer{}, w)
	require.NoError(t, w.Close())

	w, err = NewWriter(config.PersistConfig{Path: filepath.Join(dir, "b.log"), Async: true}, nil)
	require.NoError(t, err)
	assert.IsType(t, &async.Async{}, w)
	require.NoError(t, w.Close())

	_, err = NewWriter(config.PersistConfig{}, nil)
	require.Error(t, err)
}

func TestCapturePersistAndSnapshot(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)
	a.Start()

	rec := a.Recorder
	require.NoError(t, rec.Capture("A", "", model.Info))
	require.NoError(t, rec.Capture("B", "at b()", model.Error))
	require.NoError(t, rec.Capture("A", "", model.Info))

	var path string
	err = a.Driver.Do(context.Background(), func(r *pipeline.Recorder) error {
		var err error
		path, err = r.SaveSnapshot(cfg.Snapshot.Dir)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.Persist.Path)
	require.NoError(t, err)
	assert.Equal(t, "(Info)A\n \n(Error)B\n at b()\n(Info)A\n \n", string(data))

	snap, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSuffix(string(data), "\n"), string(snap))
}

func TestCloseWithoutStart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Snapshot.Catalog = ""
	a, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Recorder.Capture("queued", "", model.Warning))
	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.Persist.Path)
	require.NoError(t, err)
	assert.Equal(t, "(Warning)queued\n \n", string(data))
}

func TestServeRunsTailAndSchedule(t *testing.T) {
	cfg := testConfig(t)
	input := filepath.Join(t.TempDir(), "input.log")
	require.NoError(t, os.WriteFile(input, []byte("ERROR first\nwarn second\n"), 0o644))
	cfg.Sources.Tail = []string{input}
	cfg.Sources.FromStart = true
	cfg.Snapshot.Schedule = "@every 1s"

	a, err := New(cfg, nil)
	require.NoError(t, err)
	a.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool {
		snaps, err := a.Catalog.List(0)
		return err == nil && len(snaps) > 0
	}, 5*time.Second, 50*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.Persist.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "(Error)first")
	assert.Contains(t, string(data), "(Warning)second")
}

func TestSelfLogCapturesWarnings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.SelfLog = true
	a, err := New(cfg, logging.New(io.Discard, zerolog.InfoLevel, "json"))
	require.NoError(t, err)

	a.Logger().Info().Msg("not recorded")
	a.Logger().Warn().Msg("disk almost full")
	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.Persist.Path)
	require.NoError(t, err)
	assert.Equal(t, "(Warning)disk almost full\n \n", string(data))
}

func TestSelfLogIgnoresTickFailures(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Persist.Path = ""
	cfg.Persist.WebhookURL = srv.URL
	cfg.Sources.SelfLog = true
	a, err := New(cfg, logging.New(io.Discard, zerolog.InfoLevel, "json"))
	require.NoError(t, err)

	a.Start()
	require.NoError(t, a.Recorder.Capture("one event", "", model.Info))
	require.Eventually(t, func() bool { return posts.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, a.Close())

	st := a.Recorder.Stats()
	assert.Equal(t, 1, st.Occurrences)
	assert.Equal(t, 1, st.Distinct)
	assert.Equal(t, int32(1), posts.Load())
}
