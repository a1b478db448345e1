package commands

import (
	"github.com/spf13/cobra"
	"github.com/systmms/keymat/internal/config"
	"github.com/systmms/keymat/internal/execenv"
)

func NewExecCommand(cfg *config.Config) *cobra.Command {
	var (
		endpoints     endpointFlags
		printVars     bool
		allowOverride bool
		strictCleanup bool
		workingDir    string
		timeout       int
	)

	cmd := &cobra.Command{
		Use:   "exec [--server <name>] [--registry <name>] -- <command> [args...]",
		Short: "Run a command with materialized docker credentials",
		Long: `Materialize the selected docker servers and registry logins into private
temporary directories, run the command with DOCKER_HOST, DOCKER_CERT_PATH,
DOCKER_TLS_VERIFY and DOCKER_CONFIG pointing at them, and shred the
directories when the command exits.

The command must be separated from keymat arguments with '--'.

Examples:
  keymat exec --server prod -- docker ps
  keymat exec --server prod --registry hub -- docker push example/app
  keymat exec --registry hub --print -- docker pull example/app`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return noCommandError()
			}

			material, err := loadMaterial(cmd.Context(), cfg, endpoints)
			if err != nil {
				return err
			}

			executor := execenv.New(cfg.Logger)
			return executor.Exec(cmd.Context(), execenv.ExecOptions{
				Command:       args,
				Material:      material,
				AllowOverride: allowOverride,
				PrintVars:     printVars,
				StrictCleanup: strictCleanup,
				WorkingDir:    workingDir,
				Timeout:       timeout,
				Stdin:         cmd.InOrStdin(),
				Stdout:        cmd.OutOrStdout(),
				Stderr:        cmd.ErrOrStderr(),
			})
		},
	}

	endpoints.register(cmd)
	cmd.Flags().BoolVar(&printVars, "print", false, "Print the exposed variables (values masked)")
	cmd.Flags().BoolVar(&allowOverride, "allow-override", false, "Let existing environment variables override keymat values")
	cmd.Flags().BoolVar(&strictCleanup, "strict-cleanup", false, "Fail when key material cannot be removed afterwards")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "Working directory for the command")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Command timeout in seconds (0 for no timeout)")

	return cmd
}
