package commands

import (
	"github.com/spf13/cobra"
	"github.com/systmms/keymat/internal/config"
	"github.com/systmms/keymat/internal/execenv"
	"github.com/systmms/keymat/pkg/keymaterial"
)

func NewEnvCommand(cfg *config.Config) *cobra.Command {
	var endpoints endpointFlags

	cmd := &cobra.Command{
		Use:   "env [--server <name>] [--registry <name>]",
		Short: "Show the environment exec would set, then clean up",
		Long: `Materialize the selected endpoints, print the resulting environment with
values masked, and release the material again. Useful to check a
configuration without running anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			material, err := loadMaterial(cmd.Context(), cfg, endpoints)
			if err != nil {
				return err
			}

			return keymaterial.Use(material, func(env map[string]string) error {
				execenv.PrintEnvironment(cmd.OutOrStdout(), env)
				return nil
			})
		},
	}

	endpoints.register(cmd)
	return cmd
}
