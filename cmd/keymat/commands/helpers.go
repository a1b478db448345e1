package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/systmms/keymat/internal/config"
	dserrors "github.com/systmms/keymat/internal/errors"
	"github.com/systmms/keymat/internal/materialize"
	"github.com/systmms/keymat/pkg/keymaterial"
)

// endpointFlags are the selection flags shared by exec and env.
type endpointFlags struct {
	servers    []string
	registries []string
}

func (f *endpointFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.servers, "server", nil, "Docker server to materialize (repeatable)")
	cmd.Flags().StringSliceVar(&f.registries, "registry", nil, "Registry login to materialize (repeatable)")
}

// loadMaterial loads the configuration and materializes the selected
// endpoints. The caller owns the returned material.
func loadMaterial(ctx context.Context, cfg *config.Config, f endpointFlags) (keymaterial.Material, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	if len(f.servers) == 0 && len(f.registries) == 0 {
		cfg.Logger.Warn("No --server or --registry given; only the static env block is used")
	}

	m := materialize.New(cfg.Definition, cfg.Logger, cfg.Metrics)
	material, err := m.ForConfig(ctx, cfg, f.servers, f.registries)
	if err != nil {
		return nil, err
	}

	cfg.Logger.Debug("Materialized %d servers and %d registries", len(f.servers), len(f.registries))
	return material, nil
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s (y/N): ", prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func noCommandError() error {
	return dserrors.UserError{
		Message:    "No command specified",
		Suggestion: "Use: keymat exec --server <name> -- <command> [args...]",
	}
}
