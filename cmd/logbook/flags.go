package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/logbook/internal/config"
)

// recorderFlags are the recorder and persistence settings shared by run
// and pipe. A flag only overrides the config when set on the command line.
type recorderFlags struct {
	filter         string
	timestamps     bool
	fullTimestamps bool
	tick           time.Duration
	persist        bool
	persistPath    string
	async          bool
	maxSize        int64
	echo           bool
	webhook        string
	snapshotDir    string
	catalog        string
}

func (f *recorderFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.filter, "filter", "", `severities to capture, e.g. "error,exception" or "all"`)
	fl.BoolVar(&f.timestamps, "timestamps", false, "record capture timestamps")
	fl.BoolVar(&f.fullTimestamps, "full-timestamps", false, `long timestamp form "HH:MM:SS 1.25s at #42"`)
	fl.DurationVar(&f.tick, "tick", 0, "tick interval")
	fl.BoolVar(&f.persist, "persist", true, "append occurrences incrementally")
	fl.StringVarP(&f.persistPath, "out", "o", "", "persist file path")
	fl.BoolVar(&f.async, "async", false, "persist with the background writer")
	fl.Int64Var(&f.maxSize, "max-size", 0, "rotate the persist file after this many bytes")
	fl.BoolVar(&f.echo, "echo", false, "also write persisted lines to stdout")
	fl.StringVar(&f.webhook, "webhook", "", "also POST persisted lines to this URL")
	fl.StringVar(&f.snapshotDir, "snapshot-dir", "", "directory for snapshot files")
	fl.StringVar(&f.catalog, "catalog", "", "snapshot catalog database path")
}

func (f *recorderFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("filter") {
		cfg.SeverityFilter = f.filter
	}
	if fl.Changed("timestamps") {
		cfg.CaptureTimestamps = f.timestamps
	}
	if fl.Changed("full-timestamps") {
		cfg.FullTimestampFormat = f.fullTimestamps
		if f.fullTimestamps {
			cfg.CaptureTimestamps = true
		}
	}
	if fl.Changed("tick") {
		cfg.TickInterval = f.tick
	}
	if fl.Changed("persist") {
		cfg.Persist.Incremental = f.persist
	}
	if fl.Changed("out") {
		cfg.Persist.Path = f.persistPath
	}
	if fl.Changed("async") {
		cfg.Persist.Async = f.async
	}
	if fl.Changed("max-size") {
		cfg.Persist.MaxSize = f.maxSize
	}
	if fl.Changed("echo") {
		cfg.Persist.Echo = f.echo
	}
	if fl.Changed("webhook") {
		cfg.Persist.WebhookURL = f.webhook
	}
	if fl.Changed("snapshot-dir") {
		cfg.Snapshot.Dir = f.snapshotDir
	}
	if fl.Changed("catalog") {
		cfg.Snapshot.Catalog = f.catalog
	}
}
