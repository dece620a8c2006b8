// Package cmd contains the warden CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wardenai/warden/internal/app"
	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/log"
)

var (
	verbose  bool
	jsonLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - security operations assistant",
	Long: `Warden answers security operations questions against your own
documentation: it routes each question to specialist agents (risk,
incident, compliance, reporting), grounds answers in the knowledge base,
and tracks documentation gaps against compliance frameworks.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")
}

// setupApp loads configuration, builds the logger, and assembles the
// application. The caller must Close the returned App.
func setupApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: jsonLogs})
	slog.SetDefault(logger)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, nil
}
