package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/logbook/internal/app"
	"github.com/crimson-sun/logbook/internal/pipeline"
	"github.com/crimson-sun/logbook/internal/sources"
)

func newPipeCmd(g *globals) *cobra.Command {
	var (
		rf        recorderFlags
		snapshot  bool
		collapsed bool
	)
	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "Capture stdin until EOF, persisting collapsed events",
		Example: `  myserver 2>&1 | logbook pipe -o logs/server.log
  logbook pipe --persist=false --collapsed < app.log`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			rf.apply(cmd, &cfg)

			a, err := app.New(cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			ctx, stop := withSignals()
			defer stop()
			a.Start()

			src := sources.NewReader("stdin", cmd.InOrStdin())
			readErr := src.Run(ctx, a.Recorder)

			// Use a fresh context: the signal context may already be done.
			final := cmd.Context()
			if snapshot {
				var path string
				err := a.Driver.Do(final, func(r *pipeline.Recorder) error {
					p, err := r.Snapshot(cfg.Snapshot.Dir, "pipe")
					path = p
					return err
				})
				if err != nil {
					a.Close()
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "snapshot:", path)
			}
			if collapsed {
				var text string
				err := a.Driver.Do(final, func(r *pipeline.Recorder) error {
					text = r.ExportCollapsed()
					return nil
				})
				if err != nil {
					a.Close()
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}

			if err := a.Close(); err != nil {
				return err
			}
			if readErr != nil && ctx.Err() == nil {
				return readErr
			}
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "save a snapshot when input ends")
	cmd.Flags().BoolVar(&collapsed, "collapsed", false, "print the collapsed view to stdout when input ends")
	return cmd
}
