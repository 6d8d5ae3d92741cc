// Command wat drives the pitch game end to end with one browser session
// per player, captures every checkpoint and compares the captures with
// approved baselines.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/wat/capture"
	"github.com/hazyhaar/wat/config"
	"github.com/hazyhaar/wat/history"
	"github.com/hazyhaar/wat/observability"
	"github.com/hazyhaar/wat/suite"
)

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "wat",
	Short:         "Multi-player end-to-end runs and screenshot regression for the pitch game",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = observability.NewLogger(os.Stderr, flagLogLevel, flagLogFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		cfg, err = config.LoadFile(flagConfig)
		return err
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", os.Getenv("WAT_CONFIG"), "YAML configuration file")
	pf.StringVar(&flagLogLevel, "log-level", "info", "debug, info, warn or error")
	pf.StringVar(&flagLogFormat, "log-format", "json", "json or text")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error("wat: failed", "error", err)
		} else {
			slog.Error("wat: failed", "error", err)
		}
		os.Exit(1)
	}
}

func store() capture.Store { return capture.Store{Root: cfg.Screenshots} }

// openHistory opens the run history; a nil store means history is disabled.
func openHistory() (*history.Store, error) {
	if cfg.History == "-" {
		return nil, nil
	}
	return history.Open(cfg.History)
}

// comparer builds a suite for the regression pass only.
func comparer(h *history.Store) *suite.Suite {
	return &suite.Suite{
		Store:       store(),
		History:     h,
		AppURL:      cfg.AppURL,
		Diff:        cfg.DiffOptions(),
		MaxMismatch: cfg.Diff.MaxMismatch,
		Logger:      logger,
	}
}
