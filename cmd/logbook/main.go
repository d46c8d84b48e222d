package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/logbook/internal/config"
	"github.com/crimson-sun/logbook/internal/logging"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globals holds flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "logbook",
		Short:         "Capture, collapse and persist log events",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", os.Getenv("LOGBOOK_CONFIG"), "path to YAML config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "diagnostic log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "diagnostic log format (json, text)")

	root.AddCommand(newRunCmd(g), newPipeCmd(g), newExportCmd(g), newVersionCmd())
	return root
}

// load reads the config file and environment, then applies the global flags.
func (g *globals) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *logging.Logger {
	return logging.New(os.Stderr, logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
}

// withSignals returns a context cancelled on SIGINT or SIGTERM.
func withSignals() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "logbook %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
