package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/callboard/internal/cli"
	"github.com/aretw0/callboard/internal/logging"
	"github.com/aretw0/callboard/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "callboard",
	Short: "Callboard coordinates calls across a small pool of phone lines",
	Long: `Callboard keeps a fixed set of lines, routes incoming and outgoing calls onto them,
and exposes hold, swap, DTMF and transfer operations over HTTP and MCP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().Int("lines", 0, "Override the number of lines")
	rootCmd.PersistentFlags().String("log-level", "", "Override the log level (debug, info, warn, error)")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("lines") {
		cfg.Lines, _ = cmd.Flags().GetInt("lines")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
}

// newApp loads configuration and builds the engine for a subcommand.
func newApp(cmd *cobra.Command) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := app.Ping(cmd.Context()); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}
