// Package async provides a fire-and-forget line writer. Lines go into a
// buffered channel and a background goroutine appends them to the wrapped
// output, batching whatever has queued up since its last append.
package async

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/crimson-sun/logbook/internal/logging"
	"github.com/crimson-sun/logbook/internal/metrics"
	"github.com/crimson-sun/logbook/internal/output"
)

const (
	defaultBufferSize   = 1024
	defaultDrainTimeout = 5 * time.Second
	maxBatch            = 512
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("async: writer closed")

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the channel buffer capacity. Default: 1024.
func WithBufferSize(n int) Option {
	return func(a *Async) { a.bufSize = n }
}

// WithOnError sets the callback invoked when the inner output's Append fails.
// Default: logs the error.
func WithOnError(f func(error)) Option {
	return func(a *Async) { a.errFunc = f }
}

// WithDropOnFull makes Enqueue drop lines instead of blocking when the
// buffer is full.
func WithDropOnFull() Option {
	return func(a *Async) { a.dropOnFull = true }
}

// WithDrainTimeout bounds how long Close waits for queued lines.
func WithDrainTimeout(d time.Duration) Option {
	return func(a *Async) { a.drainTimeout = d }
}

// WithLogger sets the logger for dropped lines and append failures.
func WithLogger(l *logging.Logger) Option {
	return func(a *Async) { a.log = l }
}

// Async decouples callers from the output. Errors from the inner output
// go to errFunc rather than to the caller.
type Async struct {
	inner        output.Output
	ch           chan string
	done         chan struct{}
	errFunc      func(error)
	log          *logging.Logger
	bufSize      int
	dropOnFull   bool
	drainTimeout time.Duration

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New wraps inner and starts the drain goroutine.
func New(inner output.Output, opts ...Option) *Async {
	a := &Async{
		inner:        inner,
		bufSize:      defaultBufferSize,
		drainTimeout: defaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logging.OrNop(a.log).With("async")
	if a.errFunc == nil {
		a.errFunc = func(err error) { a.log.Warn().Err(err).Msg("async append failed") }
	}
	a.ch = make(chan string, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// EnqueueLine queues one line.
func (a *Async) EnqueueLine(ctx context.Context, line string) error {
	return a.Enqueue(ctx, line)
}

// Enqueue queues lines for the drain goroutine. It blocks while the buffer
// is full unless drop mode is set, and gives up when ctx is done.
func (a *Async) Enqueue(ctx context.Context, lines ...string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	for i, l := range lines {
		if a.dropOnFull {
			select {
			case a.ch <- l:
			default:
				a.log.Warn().Int("dropped", len(lines)-i).Msg("async buffer full, dropping lines")
				return nil
			}
			continue
		}
		select {
		case a.ch <- l:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops accepting lines, waits for the drain goroutine (up to the
// drain timeout), then closes the inner output.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()

		select {
		case <-a.done:
		case <-time.After(a.drainTimeout):
			a.log.Warn().Msg("async drain timed out")
		}
		err = a.inner.Close()
	})
	return err
}

func (a *Async) drain() {
	defer close(a.done)
	var sb strings.Builder
	for line := range a.ch {
		sb.Reset()
		n := 1
		sb.WriteString(line)
		sb.WriteByte('\n')
	batch:
		for n < maxBatch {
			select {
			case more, ok := <-a.ch:
				if !ok {
					break batch
				}
				sb.WriteString(more)
				sb.WriteByte('\n')
				n++
			default:
				break batch
			}
		}
		if err := a.inner.Append(context.Background(), []byte(sb.String())); err != nil {
			metrics.FlushErrors.Inc()
			a.errFunc(err)
			continue
		}
		metrics.Flushes.Inc()
		metrics.FlushedLines.Add(float64(n))
	}
}
