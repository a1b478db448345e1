package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/keymat/internal/config"
	dserrors "github.com/systmms/keymat/internal/errors"
	"github.com/systmms/keymat/internal/shred"
)

func NewShredCommand(cfg *config.Config) *cobra.Command {
	var (
		force     bool
		verbose   bool
		passes    int
		recursive bool
	)

	cmd := &cobra.Command{
		Use:   "shred [paths...]",
		Short: "Securely delete leftover key material",
		Long: `Overwrite files with random data before deleting them, for key material
left behind when a keymat process was killed before it could clean up.

Examples:
  keymat shred key.pem
  keymat shred --recursive /tmp/keymat-123456
  keymat shred --passes 3 --verbose key.pem

Security Note:
Modern SSDs with wear leveling may still retain data. For maximum security,
use full disk encryption.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return dserrors.UserError{
					Message:    "No files specified",
					Suggestion: "Provide one or more file paths to shred",
				}
			}
			if passes < 1 || passes > shred.MaxPasses {
				return dserrors.UserError{
					Message:    "Invalid number of passes",
					Suggestion: fmt.Sprintf("Passes must be between 1 and %d", shred.MaxPasses),
				}
			}

			targets, err := collectTargets(args, recursive)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Paths to be securely deleted (%d passes):\n", passes)
			for _, t := range targets {
				fmt.Fprintf(out, "  %s\n", t.path)
			}
			fmt.Fprintln(out)

			if !force && !cfg.NonInteractive {
				if !confirm(cmd.InOrStdin(), out, "⚠️  This operation is IRREVERSIBLE. Continue?") {
					fmt.Fprintln(out, "Operation cancelled")
					return nil
				}
			}

			failed := 0
			for _, t := range targets {
				if verbose {
					fmt.Fprintf(out, "Shredding: %s\n", t.path)
				}
				if err := t.shred(passes); err != nil {
					failed++
					cfg.Logger.Error("Error shredding %s: %v", t.path, err)
				} else if verbose {
					fmt.Fprintf(out, "✅ Shredded: %s\n", t.path)
				}
			}

			if failed > 0 {
				return dserrors.UserError{
					Message:    fmt.Sprintf("Failed to shred %d of %d paths", failed, len(targets)),
					Suggestion: "Check the errors above; the remaining files may still contain key material",
				}
			}
			fmt.Fprintf(out, "✅ Securely deleted %d paths\n", len(targets))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Force deletion without confirmation")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")
	cmd.Flags().IntVarP(&passes, "passes", "n", 3, "Number of overwrite passes")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Recursively shred directories")

	return cmd
}

type shredTarget struct {
	path string
	dir  bool
}

func (t shredTarget) shred(passes int) error {
	if t.dir {
		return shred.Dir(t.path, passes)
	}
	return shred.File(t.path, passes)
}

func collectTargets(paths []string, recursive bool) ([]shredTarget, error) {
	targets := make([]shredTarget, 0, len(paths))
	for _, path := range paths {
		info, err := os.Lstat(path)
		if err != nil {
			return nil, dserrors.UserError{
				Message:    fmt.Sprintf("Cannot access path: %s", path),
				Details:    err.Error(),
				Suggestion: "Check that the file or directory exists and is accessible",
				Err:        err,
			}
		}
		if info.IsDir() && !recursive {
			return nil, dserrors.UserError{
				Message:    fmt.Sprintf("Path is a directory: %s", path),
				Suggestion: "Use --recursive to shred directories",
			}
		}
		targets = append(targets, shredTarget{path: path, dir: info.IsDir()})
	}
	return targets, nil
}
