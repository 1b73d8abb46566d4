// Package cli implements the powerlens command-line interface using Cobra.
// Each subcommand lives in its own file and registers itself in init().
package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/powerlens/powerlens/internal/daemon"
	"github.com/powerlens/powerlens/internal/observability"
)

var homeDir string

var rootCmd = &cobra.Command{
	Use:   "powerlens",
	Short: "powerlens: Apple Silicon power analysis",
	Long: `powerlens samples macOS powermetrics, explains where the watts go and
tests whether moving bursty work onto efficiency cores actually saves power.

It also keeps a small client, invoice, lead and email-template book.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if homeDir != "" {
			if err := os.Setenv("POWERLENS_HOME", homeDir); err != nil {
				return err
			}
		}
		initTelemetry(cmd.Root().Version)
		return nil
	},
}

// flushTelemetry drains pending Sentry events. It is replaced once the
// config under the chosen home directory has been read.
var flushTelemetry = func() {}

// initTelemetry reads config.toml from the resolved home, after --home has
// been applied, and configures log level and error reporting from it. A
// broken config file only costs telemetry here; commands that need the
// config report the error themselves.
func initTelemetry(version string) daemon.Config {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		log.Printf("[cli] config: %v", err)
		cfg = daemon.DefaultConfig()
	}
	if err := observability.SetLogLevel(cfg.Logging.Level); err != nil {
		log.Printf("[cli] %v", err)
	}

	flushTelemetry()
	flush, _, err := observability.InitSentry(cfg.Sentry(version))
	if err != nil {
		log.Printf("[cli] sentry disabled: %v", err)
	}
	flushTelemetry = flush
	return cfg
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Data directory (default $POWERLENS_HOME or ~/.powerlens)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version
	daemon.Version = version

	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		observability.CaptureError(err, map[string]string{"command": cmd.CommandPath()}, nil)
		flushTelemetry()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	flushTelemetry()
}
