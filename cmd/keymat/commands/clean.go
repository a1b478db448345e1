package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/keymat/internal/config"
	dserrors "github.com/systmms/keymat/internal/errors"
	"github.com/systmms/keymat/internal/materialize"
	"github.com/systmms/keymat/internal/shred"
)

func NewCleanCommand(cfg *config.Config) *cobra.Command {
	var (
		workdir   string
		olderThan time.Duration
		passes    int
		force     bool
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Shred stale keymat directories",
		Long: `Find keymat-* materialization directories under the workdir that are older
than --older-than and shred them. A directory is only left behind when a
keymat process died without cleaning up; a running process may still be
using a young one, so keep --older-than above your longest job.

The workdir is taken from --workdir, then from keymat.yaml, then the
system temporary directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passes < 0 || passes > shred.MaxPasses {
				return dserrors.UserError{
					Message:    "Invalid number of passes",
					Suggestion: fmt.Sprintf("Passes must be between 0 and %d", shred.MaxPasses),
				}
			}

			dir := workdir
			if dir == "" {
				dir = configuredWorkdir(cfg)
			}

			stale, err := staleDirs(dir, olderThan, time.Now())
			if err != nil {
				return dserrors.UserError{
					Message:    fmt.Sprintf("Cannot scan %s", dir),
					Details:    err.Error(),
					Suggestion: "Check that the workdir exists and is readable",
					Err:        err,
				}
			}

			out := cmd.OutOrStdout()
			if len(stale) == 0 {
				fmt.Fprintf(out, "No stale keymat directories in %s\n", dir)
				return nil
			}

			fmt.Fprintf(out, "Stale keymat directories (older than %s):\n", olderThan)
			for _, p := range stale {
				fmt.Fprintf(out, "  %s\n", p)
			}
			if dryRun {
				return nil
			}
			if !force && !cfg.NonInteractive {
				if !confirm(cmd.InOrStdin(), out, "Shred these directories?") {
					fmt.Fprintln(out, "Operation cancelled")
					return nil
				}
			}

			var failed []string
			for _, p := range stale {
				if err := shred.Dir(p, passes); err != nil {
					cfg.Logger.Error("Error shredding %s: %v", p, err)
					failed = append(failed, p)
				}
			}
			if len(failed) > 0 {
				return dserrors.UserError{
					Message:    fmt.Sprintf("Failed to clean %d of %d directories", len(failed), len(stale)),
					Suggestion: "Check permissions on the directories listed above",
				}
			}
			cfg.Logger.Info("Shredded %d stale directories", len(stale))
			return nil
		},
	}

	cmd.Flags().StringVar(&workdir, "workdir", "", "Directory holding keymat-* directories")
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Only clean directories older than this")
	cmd.Flags().IntVarP(&passes, "passes", "n", 1, "Number of overwrite passes")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list what would be cleaned")

	return cmd
}

// configuredWorkdir reads the workdir from the configuration when there is
// one. A missing or broken config is not an error for clean.
func configuredWorkdir(cfg *config.Config) string {
	if cfg.Definition == nil {
		if err := cfg.Load(); err != nil {
			cfg.Logger.Debug("No usable configuration, using the system temp dir: %v", err)
		}
	}
	if cfg.Definition != nil && cfg.Definition.Workdir != "" {
		return cfg.Definition.Workdir
	}
	return os.TempDir()
}

func staleDirs(workdir string, olderThan time.Duration, now time.Time) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(workdir, materialize.DirPattern))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(workdir); err != nil {
		return nil, err
	}

	var stale []string
	for _, p := range matches {
		info, err := os.Lstat(p)
		if err != nil || !info.IsDir() {
			continue
		}
		if now.Sub(info.ModTime()) >= olderThan {
			stale = append(stale, p)
		}
	}
	sort.Strings(stale)
	return stale, nil
}
