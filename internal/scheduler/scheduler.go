// Package scheduler saves snapshots on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/crimson-sun/logbook/internal/logging"
	"github.com/crimson-sun/logbook/internal/pipeline"
)

const stopTimeout = 5 * time.Second

// Doer runs a function on the recorder's tick goroutine.
type Doer interface {
	Do(ctx context.Context, fn func(*pipeline.Recorder) error) error
}

// Parse validates a five-field cron expression or a descriptor such as
// "@hourly" or "@every 30m".
func Parse(spec string) (cron.Schedule, error) {
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", spec, err)
	}
	return s, nil
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Run saves a snapshot into dir at every firing of spec until ctx is done.
// Failed snapshots are logged; the schedule keeps running.
func Run(ctx context.Context, log *logging.Logger, spec, dir string, d Doer) error {
	sched, err := Parse(spec)
	if err != nil {
		return err
	}
	log = logging.OrNop(log).With("scheduler")

	c := cron.New(cron.WithParser(parser))
	c.Schedule(sched, cron.FuncJob(func() {
		var path string
		err := d.Do(ctx, func(r *pipeline.Recorder) error {
			p, err := r.Snapshot(dir, "schedule")
			path = p
			return err
		})
		if err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("scheduled snapshot failed")
			return
		}
		log.Info().Str("path", path).Msg("scheduled snapshot saved")
	}))

	log.Info().Str("schedule", spec).Str("dir", dir).Msg("snapshot schedule started")
	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(stopTimeout):
		log.Warn().Msg("snapshot job still running at shutdown")
	}
	return nil
}
