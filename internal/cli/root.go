// Package cli provides the command-line interface for LiveGate.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/livegate/internal/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "livegate",
		Short: "LiveGate - Live Query Gateway",
		Long: `LiveGate is a secure query gateway for analytical datasets.

It validates incoming SQL against a read-only allowlist, executes it under
strict resource limits, pages results with stable cursors, and keeps
subscribed clients current as the dataset advances.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./livegate.yaml)")
	rootCmd.PersistentFlags().String("host", config.DefaultHost, "Listen host")
	rootCmd.PersistentFlags().Int("port", config.DefaultPort, "Listen port")
	rootCmd.PersistentFlags().String("engine-type", "", "Engine type (sqlite|duckdb|postgres)")
	rootCmd.PersistentFlags().String("engine-path", "", "Dataset file path for file-based engines")
	rootCmd.PersistentFlags().String("engine-dsn", "", "Engine DSN for network engines")
	rootCmd.PersistentFlags().String("engine-schema", "", "Served schema")
	rootCmd.PersistentFlags().String("session-secret", "", "Cookie session secret")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig loads the effective configuration for a command.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cfgFile, cmd.Root().PersistentFlags())
}

// newLogger builds the process logger. Verbose enables debug level.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
