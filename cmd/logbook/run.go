package main

import (
	"github.com/spf13/cobra"

	"github.com/crimson-sun/logbook/internal/app"
	"github.com/crimson-sun/logbook/internal/scheduler"
)

func newRunCmd(g *globals) *cobra.Command {
	var (
		rf        recorderFlags
		httpAddr  string
		tail      []string
		stdin     bool
		fromStart bool
		schedule  string
		selfLog   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the recorder with its sources, HTTP API and snapshot schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			rf.apply(cmd, &cfg)
			fl := cmd.Flags()
			if fl.Changed("http-addr") {
				cfg.HTTP.Addr = httpAddr
			}
			if fl.Changed("tail") {
				cfg.Sources.Tail = tail
			}
			if fl.Changed("stdin") {
				cfg.Sources.Stdin = stdin
			}
			if fl.Changed("from-start") {
				cfg.Sources.FromStart = fromStart
			}
			if fl.Changed("schedule") {
				cfg.Snapshot.Schedule = schedule
			}
			if fl.Changed("self-log") {
				cfg.Sources.SelfLog = selfLog
			}
			if cfg.Snapshot.Schedule != "" {
				if _, err := scheduler.Parse(cfg.Snapshot.Schedule); err != nil {
					return err
				}
			}

			log := newLogger(cfg)

			a, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			ctx, stop := withSignals()
			defer stop()

			a.Start()
			a.Logger().Info().
				Str("session", a.Recorder.Session()).
				Str("filter", cfg.Filter().String()).
				Bool("persist", cfg.Persist.Incremental).
				Str("http", cfg.HTTP.Addr).
				Msg("logbook running")

			serveErr := a.Serve(ctx)
			closeErr := a.Close()
			a.Logger().Info().Msg("logbook stopped")
			if serveErr != nil {
				return serveErr
			}
			return closeErr
		},
	}
	rf.register(cmd)
	fl := cmd.Flags()
	fl.StringVar(&httpAddr, "http-addr", "", `HTTP API listen address, e.g. ":8080"`)
	fl.StringSliceVar(&tail, "tail", nil, "files to follow (repeatable)")
	fl.BoolVar(&stdin, "stdin", false, "capture lines from stdin")
	fl.BoolVar(&fromStart, "from-start", false, "capture existing content of tailed files")
	fl.StringVar(&schedule, "schedule", "", `snapshot cron schedule, e.g. "@every 1h"`)
	fl.BoolVar(&selfLog, "self-log", false, "record logbook's own warnings and errors")
	return cmd
}
