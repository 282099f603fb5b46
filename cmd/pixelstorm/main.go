// Package main is the entry point for the pixelstorm command line tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/pixelstorm/internal/config"
	"github.com/dshills/pixelstorm/internal/engine"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "pixelstorm",
		Short:         "Scriptable sprite documents with branching undo",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (.toml, .yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(newDemoCmd(a), newRunCmd(a), newSnapshotsCmd(a))
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// documentOptions maps the configuration onto document options.
func (a *app) documentOptions() []engine.Option {
	return []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithMaxImageBytes(a.cfg.Limits.MaxImageBytes),
	}
}

// applyHistory sets the history limits of cfg on doc. It is called again
// when the config file changes.
func applyHistory(doc *engine.Document, cfg *config.Config) error {
	policy, err := cfg.History.Policy()
	if err != nil {
		return err
	}
	doc.SetHistoryLimits(cfg.History.MemoryLimit, cfg.History.MaxEntries)
	doc.SetEvictionPolicy(policy)
	return nil
}
