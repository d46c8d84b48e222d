// Package flush implements the synchronous durable writer: lines queued
// while an append is in flight are coalesced into the next append, and
// appends to the underlying output never overlap.
package flush

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/crimson-sun/logbook/internal/logging"
	"github.com/crimson-sun/logbook/internal/metrics"
	"github.com/crimson-sun/logbook/internal/output"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("flush: writer closed")

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger used to report failed appends.
func WithLogger(l *logging.Logger) Option {
	return func(w *Writer) { w.log = l }
}

type appendReq struct {
	ctx    context.Context
	blob   []byte
	result chan error
}

// Writer queues lines and appends them to an output.Output.
//
// The first caller to find the writer idle owns the flush loop: it takes
// the whole pending list, joins it into one blob and waits while the
// dedicated worker goroutine appends it, repeating until nothing is pending.
// Callers arriving while a loop is running only queue their lines.
type Writer struct {
	out output.Output
	log *logging.Logger

	mu       sync.Mutex
	pending  []string
	busy     bool
	closed   bool
	flushing sync.WaitGroup

	reqs chan appendReq
	done chan struct{}
}

// New creates a Writer over out and starts its worker goroutine.
func New(out output.Output, opts ...Option) *Writer {
	w := &Writer{
		out:  out,
		reqs: make(chan appendReq),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = logging.OrNop(w.log).With("flush")
	go w.worker()
	return w
}

// EnqueueLine queues a single line. See Enqueue.
func (w *Writer) EnqueueLine(ctx context.Context, line string) error {
	return w.Enqueue(ctx, line)
}

// Enqueue queues lines and, unless another flush loop is running, flushes
// until the pending list is empty. An append error is returned to the
// caller and the failed batch is dropped.
func (w *Writer) Enqueue(ctx context.Context, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.pending = append(w.pending, lines...)
	if w.busy {
		w.mu.Unlock()
		return nil
	}
	w.busy = true
	w.flushing.Add(1)
	w.mu.Unlock()

	defer w.flushing.Done()
	return w.flushLoop(ctx)
}

// Pending returns the number of queued lines not yet handed to the output.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Writer) flushLoop(ctx context.Context) error {
	for {
		w.mu.Lock()
		batch := w.pending
		w.pending = nil
		if len(batch) == 0 {
			w.busy = false
			w.mu.Unlock()
			return nil
		}
		w.mu.Unlock()

		if err := w.dispatch(ctx, join(batch)); err != nil {
			w.mu.Lock()
			w.busy = false
			w.mu.Unlock()
			metrics.FlushErrors.Inc()
			w.log.Error().Err(err).Int("lines", len(batch)).Msg("append failed, batch dropped")
			return fmt.Errorf("flush: append %d lines: %w", len(batch), err)
		}
		metrics.Flushes.Inc()
		metrics.FlushedLines.Add(float64(len(batch)))
	}
}

// dispatch hands blob to the worker and waits for the append to finish.
// The wait ignores ctx: an append that has started always completes.
func (w *Writer) dispatch(ctx context.Context, blob []byte) error {
	req := appendReq{ctx: ctx, blob: blob, result: make(chan error, 1)}
	w.reqs <- req
	return <-req.result
}

func (w *Writer) worker() {
	defer close(w.done)
	for req := range w.reqs {
		req.result <- w.out.Append(req.ctx, req.blob)
	}
}

// Close waits for a running flush loop, appends anything still pending,
// stops the worker and closes the output.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.flushing.Wait()

	var errs []error
	w.mu.Lock()
	rest := w.pending
	w.pending = nil
	w.mu.Unlock()
	if len(rest) > 0 {
		if err := w.dispatch(context.Background(), join(rest)); err != nil {
			errs = append(errs, fmt.Errorf("flush: final append: %w", err))
		}
	}

	close(w.reqs)
	<-w.done
	if err := w.out.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// join concatenates lines with a newline after each, so consecutive appends
// stay line separated.
func join(lines []string) []byte {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	var sb strings.Builder
	sb.Grow(n)
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}
