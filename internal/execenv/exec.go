package execenv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	dserrors "github.com/systmms/keymat/internal/errors"
	"github.com/systmms/keymat/internal/logging"
	"github.com/systmms/keymat/pkg/keymaterial"
)

// Executor runs commands with the environment of a keymaterial.Material and
// releases the material when the command is done.
type Executor struct {
	logger *logging.Logger
}

// New creates a new executor
func New(logger *logging.Logger) *Executor {
	return &Executor{
		logger: logger,
	}
}

// ExecOptions configures command execution
type ExecOptions struct {
	Command       []string             // Command and arguments to run
	Material      keymaterial.Material // Key material to expose; owned and closed by Exec
	AllowOverride bool                 // Existing env vars win over material values
	PrintVars     bool                 // Print the material's variables (values masked)
	StrictCleanup bool                 // Fail when the material cannot be released
	WorkingDir    string               // Working directory for the command
	Timeout       int                  // Timeout in seconds (0 for no timeout)

	Stdin  io.Reader // defaults to os.Stdin
	Stdout io.Writer // defaults to os.Stdout
	Stderr io.Writer // defaults to os.Stderr
}

// Exec runs the command and always closes options.Material before returning,
// whatever the outcome. A release failure is logged; it is returned only with
// StrictCleanup or when the command itself failed.
func (e *Executor) Exec(ctx context.Context, options ExecOptions) (err error) {
	material := options.Material
	if material == nil {
		material = keymaterial.Null
	}
	defer func() {
		cerr := material.Close()
		if cerr == nil {
			return
		}
		e.logger.Warn("Credential cleanup may be incomplete: %v", cerr)
		if options.StrictCleanup || err != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if len(options.Command) == 0 {
		return dserrors.UserError{
			Message:    "No command specified",
			Suggestion: "Provide a command after -- (e.g., keymat exec --server prod -- docker ps)",
		}
	}

	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(options.Timeout)*time.Second)
		defer cancel()
	}

	cmdName := options.Command[0]
	if _, err := exec.LookPath(cmdName); err != nil {
		return dserrors.WrapCommandNotFound(cmdName, err)
	}

	vars := material.Env()
	env := buildEnvironment(os.Environ(), vars, options.AllowOverride)

	stdout := writerOr(options.Stdout, os.Stdout)
	if options.PrintVars {
		PrintEnvironment(stdout, vars)
	}

	cmd := exec.CommandContext(ctx, cmdName, options.Command[1:]...)
	cmd.Env = env
	cmd.Stdout = stdout
	cmd.Stderr = writerOr(options.Stderr, os.Stderr)
	cmd.Stdin = options.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	e.logger.Debug("Executing command: %s", strings.Join(options.Command, " "))
	e.logger.Debug("Key material variables set: %d", len(vars))

	if err := cmd.Run(); err != nil {
		cmdErr := dserrors.CommandError{
			Command: strings.Join(options.Command, " "),
			Message: err.Error(),
			Err:     err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			cmdErr.ExitCode = exitErr.ExitCode()
		} else {
			cmdErr.Suggestion = "Check the command output above for details"
		}
		if ctx.Err() == context.DeadlineExceeded {
			cmdErr.Suggestion = fmt.Sprintf("The command exceeded the %ds timeout", options.Timeout)
		}
		return cmdErr
	}

	return nil
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}

// buildEnvironment overlays vars on base (KEY=VALUE entries). With
// allowOverride, entries already in base are kept.
func buildEnvironment(base []string, vars map[string]string, allowOverride bool) []string {
	envMap := make(map[string]string, len(base)+len(vars))
	for _, entry := range base {
		key, value, ok := strings.Cut(entry, "=")
		if ok {
			envMap[key] = value
		}
	}

	for key, value := range vars {
		if allowOverride {
			if _, exists := envMap[key]; exists {
				continue
			}
		}
		envMap[key] = value
	}

	result := make([]string, 0, len(envMap))
	for key, value := range envMap {
		result = append(result, key+"="+value)
	}

	// Sorted for reproducible debugging output.
	sort.Strings(result)
	return result
}

// PrintEnvironment writes the variables to w with their values masked.
func PrintEnvironment(w io.Writer, environment map[string]string) {
	if len(environment) == 0 {
		fmt.Fprintln(w, "No key material variables")
		return
	}

	fmt.Fprintf(w, "Key material exposes %d environment variables:\n", len(environment))

	keys := make([]string, 0, len(environment))
	for key := range environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fmt.Fprintf(w, "  %s=%s\n", key, logging.MaskValue(environment[key]))
	}
	fmt.Fprintln(w)
}
