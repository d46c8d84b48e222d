package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/logbook/internal/pipeline"
	"github.com/crimson-sun/logbook/internal/store"
)

type fixture struct {
	rec *pipeline.Recorder
	srv *httptest.Server
	dir string
}

func newFixture(t *testing.T, cat *store.Store) *fixture {
	t.Helper()
	var opts []pipeline.Option
	deps := Deps{}
	if cat != nil {
		opts = append(opts, pipeline.WithCatalog(cat))
		deps.Catalog = cat
	}
	rec := pipeline.New(opts...)
	d := pipeline.NewDriver(rec, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-d.Done()
	})

	dir := t.TempDir()
	deps.Capturer, deps.Driver = rec, d
	s := NewServer(deps, Config{SnapshotDir: dir})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{rec: rec, srv: srv, dir: dir}
}

func (f *fixture) capture(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.srv.URL+"/capture", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestCaptureAndExport(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusAccepted, f.capture(t, `{"message":"A","severity":"info"}`).StatusCode)
	assert.Equal(t, http.StatusAccepted, f.capture(t, `{"message":"B","stackTrace":"at b()","severity":"error"}`).StatusCode)
	assert.Equal(t, http.StatusAccepted, f.capture(t, `{"message":"A"}`).StatusCode)

	resp, body := f.get(t, "/export")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "(Info)A\n \n(Error)B\n at b()\n(Info)A\n ", body)

	_, body = f.get(t, "/export?collapsed=1")
	assert.Equal(t, "(Info)A\n  (x2)\n(Error)B\n at b()", body)
}

func TestCaptureRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{"not json", `message=A`},
		{"missing message", `{"severity":"info"}`},
		{"unknown severity", `{"message":"A","severity":"loud"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, f.capture(t, tt.body).StatusCode)
		})
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	f.capture(t, `{"message":"A"}`)
	_, _ = f.get(t, "/export") // drains

	resp, body := f.get(t, "/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st pipeline.Stats
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, 1, st.Occurrences)
	assert.Equal(t, f.rec.Session(), st.Session)
}

func TestSnapshotAndCatalog(t *testing.T) {
	cat, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	f := newFixture(t, cat)
	f.capture(t, `{"message":"A","severity":"warning"}`)

	resp, err := http.Post(f.srv.URL+"/snapshot", "", nil)
	require.NoError(t, err)
	body := readBody(t, resp)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	data, err := os.ReadFile(out["path"])
	require.NoError(t, err)
	assert.Equal(t, "(Warning)A\n ", string(data))
	assert.Equal(t, f.dir, filepath.Dir(out["path"]))

	resp, body = f.get(t, "/snapshots?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snaps []store.Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, out["path"], snaps[0].Path)
	assert.Equal(t, "api", snaps[0].Trigger)
}

func TestSnapshotsWithoutCatalog(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := f.get(t, "/snapshots")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type stoppedDriver struct{}

func (stoppedDriver) Do(context.Context, func(*pipeline.Recorder) error) error {
	return pipeline.ErrStopped
}

func TestExportWhenStopped(t *testing.T) {
	s := NewServer(Deps{Capturer: pipeline.New(), Driver: stoppedDriver{}}, Config{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshotDisabled(t *testing.T) {
	s := NewServer(Deps{Capturer: pipeline.New(), Driver: stoppedDriver{}}, Config{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/snapshot", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
