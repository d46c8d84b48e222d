package logbook

import (
	"time"

	"github.com/rs/zerolog"
)

type options struct {
	filter         Filter
	timestamps     bool
	fullTimestamps bool
	tickInterval   time.Duration
	persistPath    string
	maxSize        int64
	async          bool
	echo           bool
	webhookURL     string
	snapshotDir    string
	catalogPath    string
	logger         *zerolog.Logger
}

// Option configures a Logbook.
type Option func(*options)

// WithFilter limits capture to the given severities. Default: FilterAll.
func WithFilter(f Filter) Option {
	return func(o *options) {
		o.filter = f
	}
}

// WithTimestamps records when each event was captured. full selects the
// "HH:MM:SS 1.25s at #42" form over plain "HH:MM:SS".
func WithTimestamps(full bool) Option {
	return func(o *options) {
		o.timestamps = true
		o.fullTimestamps = full
	}
}

// WithTickInterval sets how often captured events are collapsed and
// persisted. Default: 100ms.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		o.tickInterval = d
	}
}

// WithPersistPath appends every occurrence to the file at path as it is
// collapsed.
func WithPersistPath(path string) Option {
	return func(o *options) {
		o.persistPath = path
	}
}

// WithMaxSize rotates the persist file once it would exceed n bytes.
func WithMaxSize(n int64) Option {
	return func(o *options) {
		o.maxSize = n
	}
}

// WithAsyncPersist hands lines to a background writer so ticks never wait
// on disk.
func WithAsyncPersist() Option {
	return func(o *options) {
		o.async = true
	}
}

// WithEcho also writes persisted lines to stdout.
func WithEcho() Option {
	return func(o *options) {
		o.echo = true
	}
}

// WithWebhook also POSTs persisted lines to url.
func WithWebhook(url string) Option {
	return func(o *options) {
		o.webhookURL = url
	}
}

// WithSnapshotDir sets where Snapshot writes files. Default: "snapshots".
func WithSnapshotDir(dir string) Option {
	return func(o *options) {
		o.snapshotDir = dir
	}
}

// WithCatalog records every snapshot in a database at path.
func WithCatalog(path string) Option {
	return func(o *options) {
		o.catalogPath = path
	}
}

// WithLogger sets the logger for logbook's own diagnostics. Default: none.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &l
	}
}

func defaultOptions() options {
	return options{
		filter:       FilterAll,
		tickInterval: 100 * time.Millisecond,
		snapshotDir:  "snapshots",
	}
}
