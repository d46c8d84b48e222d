package sources

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/logbook/internal/model"
)

type captured struct {
	msg, stack string
	sev        model.Severity
}

type mockCapturer struct {
	mu     sync.Mutex
	events []captured
}

func (m *mockCapturer) Capture(msg, st string, sev model.Severity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, captured{msg, st, sev})
	return nil
}

func (m *mockCapturer) snapshot() []captured {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]captured(nil), m.events...)
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		sev  model.Severity
		msg  string
	}{
		{"ERROR: disk full", model.Error, "disk full"},
		{"[warn] slow query", model.Warning, "slow query"},
		{"level=error db down", model.Error, "db down"},
		{"fatal out of memory", model.Exception, "out of memory"},
		{"assert index in range", model.Exception, "index in range"},
		{"DEBUG cache miss", model.Info, "cache miss"},
		{"hello world", model.Info, "hello world"},
		{"errors are values", model.Info, "errors are values"},
		{"plain\r\n", model.Info, "plain"},
		{"Error", model.Error, "Error"},
		{"  warning  ", model.Warning, "warning"},
		{"panic", model.Exception, "panic"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			sev, msg := ParseLine(tt.line)
			assert.Equal(t, tt.sev, sev)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestReaderGroupsStackTraces(t *testing.T) {
	in := strings.Join([]string{
		"info starting",
		"ERROR request failed",
		"    at handler (server.go:42)",
		"\tat main (main.go:7)",
		"",
		"warn retrying",
	}, "\n")
	c := &mockCapturer{}
	require.NoError(t, NewReader("test", strings.NewReader(in)).Run(context.Background(), c))

	assert.Equal(t, []captured{
		{"starting", "", model.Info},
		{"request failed", "at handler (server.go:42)\nat main (main.go:7)", model.Error},
		{"retrying", "", model.Warning},
	}, c.snapshot())
}

func TestReaderStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &mockCapturer{}
	err := NewReader("test", strings.NewReader("a\nb\n")).Run(ctx, c)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingCapturer struct{}

func (failingCapturer) Capture(string, string, model.Severity) error {
	return model.ErrUnsupportedSeverity
}

func TestReaderReportsCaptureError(t *testing.T) {
	err := NewReader("test", strings.NewReader("x\n")).Run(context.Background(), failingCapturer{})
	assert.ErrorIs(t, err, model.ErrUnsupportedSeverity)
}

func TestHook(t *testing.T) {
	c := &mockCapturer{}
	var buf bytes.Buffer
	log := zerolog.New(&buf).Hook(NewHook(c, zerolog.InfoLevel))

	log.Debug().Msg("ignored")
	log.Info().Msg("ready")
	log.Warn().Msg("slow")
	log.Error().Msg("failed")
	log.Log().Msg("no level")

	assert.Equal(t, []captured{
		{"ready", "", model.Info},
		{"slow", "", model.Warning},
		{"failed", "", model.Error},
	}, c.snapshot())
}

func TestSeverityForLevel(t *testing.T) {
	assert.Equal(t, model.Exception, SeverityForLevel(zerolog.PanicLevel))
	assert.Equal(t, model.Exception, SeverityForLevel(zerolog.FatalLevel))
	assert.Equal(t, model.Info, SeverityForLevel(zerolog.TraceLevel))
}

type stubSource struct {
	name string
	err  error
	msg  string
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Run(_ context.Context, c Capturer) error {
	if s.msg != "" {
		c.Capture(s.msg, "", model.Info)
	}
	return s.err
}

func TestManagerRunsAll(t *testing.T) {
	c := &mockCapturer{}
	m := NewManager(nil, stubSource{name: "a", msg: "from a"})
	m.Add(stubSource{name: "b", msg: "from b", err: errors.New("broken pipe")})
	m.Add(stubSource{name: "c", err: context.Canceled})
	assert.Equal(t, 3, m.Len())

	err := m.Run(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source b: broken pipe")
	assert.NotContains(t, err.Error(), "source c")
	assert.Len(t, c.snapshot(), 2)
}

func TestFileTailFollowsAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("old line\n"), 0o644))

	c := &mockCapturer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewFileTail(path, false, nil).Run(ctx, c) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("ERROR new line\nwarn second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []captured{
		{"new line", "", model.Error},
		{"second", "", model.Warning},
	}, c.snapshot())
}

func TestFileTailCapturesSingleAppendedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	c := &mockCapturer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tail := NewFileTail(path, false, nil)
	tail.idle = 20 * time.Millisecond
	done := make(chan error, 1)
	go func() { done <- tail.Run(ctx, c) }()

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("ERROR disk full\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Captured while the tail is still running, without a following line.
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []captured{{"disk full", "", model.Error}}, c.snapshot())

	cancel()
	require.NoError(t, <-done)
}

func TestFileTailKeepsStackWrittenInOneAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	c := &mockCapturer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- NewFileTail(path, false, nil).Run(ctx, c) }()

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("panic: boom\ngoroutine 1 [running]:\n\tmain.go:12\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []captured{{"boom", "goroutine 1 [running]:\nmain.go:12", model.Exception}}, c.snapshot())

	cancel()
	require.NoError(t, <-done)
}

func TestFileTailFromStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0o644))

	c := &mockCapturer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewFileTail(path, true, nil).Run(ctx, c) }()

	require.Eventually(t, func() bool { return len(c.snapshot()) >= 1 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []captured{{"one", "", model.Info}, {"two", "", model.Info}}, c.snapshot())
}
