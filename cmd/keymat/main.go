package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"github.com/systmms/keymat/cmd/keymat/commands"
	"github.com/systmms/keymat/internal/config"
	dserrors "github.com/systmms/keymat/internal/errors"
	"github.com/systmms/keymat/internal/logging"
	"github.com/systmms/keymat/internal/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFile      string
		noColor         bool
		debug           bool
		nonInteractive  bool
		metricsTextfile string
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "keymat",
		Short: "Materialize docker credentials for the lifetime of a command",
		Long: `keymat writes docker daemon TLS keys and registry logins into private
temporary directories, runs a command with the environment pointing at them,
and shreds them when the command exits.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Logger = logging.New(debug, noColor)
			cfg.NonInteractive = nonInteractive
			if metricsTextfile != "" {
				cfg.Metrics = metrics.New()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Never prompt for confirmation")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(
		commands.NewExecCommand(cfg),
		commands.NewEnvCommand(cfg),
		commands.NewShredCommand(cfg),
		commands.NewCleanCommand(cfg),
	)

	// Interrupts cancel the context instead of killing keymat, so that key
	// material is still released on Ctrl-C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer memguard.Purge()

	err := rootCmd.ExecuteContext(ctx)

	if werr := cfg.Metrics.WriteTextfile(metricsTextfile); werr != nil {
		cfg.Logger.Warn("Failed to write metrics to %s: %v", metricsTextfile, werr)
	}

	if err != nil {
		// A child that ran and failed has already reported on its own stderr.
		var cmdErr dserrors.CommandError
		if !errors.As(err, &cmdErr) || cmdErr.ExitCode == 0 {
			fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		}
		return dserrors.ExitCode(err)
	}
	return 0
}
