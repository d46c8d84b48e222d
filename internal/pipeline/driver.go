package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/crimson-sun/logbook/internal/logging"
)

// DefaultTickInterval is the tick period used when none is configured.
const DefaultTickInterval = 100 * time.Millisecond

// ErrStopped is returned by Do once Run has returned.
var ErrStopped = errors.New("driver: stopped")

type request struct {
	fn     func(*Recorder) error
	result chan error
}

// Driver owns the tick goroutine of a Recorder. Ticks and every function
// passed to Do run on that goroutine, one at a time.
type Driver struct {
	rec      *Recorder
	interval time.Duration
	log      *logging.Logger

	reqs chan request
	done chan struct{}
}

// NewDriver creates a Driver ticking rec every interval (DefaultTickInterval
// when interval <= 0).
func NewDriver(rec *Recorder, interval time.Duration, log *logging.Logger) *Driver {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Driver{
		rec:      rec,
		interval: interval,
		log:      logging.OrNop(log).With("driver"),
		reqs:     make(chan request),
		done:     make(chan struct{}),
	}
}

// Recorder returns the driven recorder. Only Capture may be called on it
// from outside Do.
func (d *Driver) Recorder() *Recorder { return d.rec }

// Run ticks until ctx is cancelled, then runs a final tick so events
// captured before cancellation are drained and persisted. Run must be
// called at most once.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.Debug().Dur("interval", d.interval).Msg("tick loop started")
	for {
		select {
		case <-ctx.Done():
			d.tick(context.WithoutCancel(ctx))
			d.log.Debug().Int64("ticks", d.rec.ticks.Load()).Msg("tick loop stopped")
			return nil
		case <-ticker.C:
			d.tick(ctx)
		case req := <-d.reqs:
			req.result <- req.fn(d.rec)
		}
	}
}

func (d *Driver) tick(ctx context.Context) {
	if err := d.rec.Tick(ctx); err != nil {
		d.log.Error().Err(err).Msg("tick failed")
	}
}

// Do runs fn on the tick goroutine and returns its error. It returns
// ctx.Err() if ctx ends first and ErrStopped after Run has returned; fn
// may still run if ctx ends after it was accepted.
func (d *Driver) Do(ctx context.Context, fn func(*Recorder) error) error {
	req := request{fn: fn, result: make(chan error, 1)}
	select {
	case d.reqs <- req:
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (d *Driver) Done() <-chan struct{} { return d.done }
