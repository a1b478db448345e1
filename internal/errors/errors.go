package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/systmms/keymat/pkg/keymaterial"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
	Err        error
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

func (e ConfigError) Unwrap() error {
	return e.Err
}

// CommandError represents a failed child process. ExitCode is the child's exit
// status, or 0 when the process could not be started.
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
	Err        error
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

func (e CommandError) Unwrap() error {
	return e.Err
}

// WrapCommandNotFound wraps command not found errors with helpful suggestions
func WrapCommandNotFound(command string, err error) error {
	suggestions := map[string]string{
		"docker":         "Install Docker from https://docker.com/",
		"docker-compose": "Install Docker Compose from https://docs.docker.com/compose/install/",
		"podman":         "Install Podman from https://podman.io/",
		"buildah":        "Install Buildah from https://buildah.io/",
		"skopeo":         "Install Skopeo from https://github.com/containers/skopeo",
		"make":           "Install Make (usually comes with build tools)",
	}

	suggestion := suggestions[command]
	if suggestion == "" {
		suggestion = fmt.Sprintf("Make sure '%s' is installed and in your PATH", command)
	}

	return CommandError{
		Command:    command,
		Message:    "command not found",
		Suggestion: suggestion,
		Err:        err,
	}
}

// ExitCode returns the child exit status carried by err, or 1 for any other
// non-nil error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cmdErr CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode != 0 {
		return cmdErr.ExitCode
	}
	return 1
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	switch err.(type) {
	case UserError, ConfigError, CommandError:
		return err
	}

	var release *keymaterial.ReleaseError
	if errors.As(err, &release) {
		return UserError{
			Message:    "Credential cleanup may be incomplete",
			Details:    err.Error(),
			Suggestion: fmt.Sprintf("Remove the leftover key material with 'keymat shred --recursive %s'", release.Path),
			Err:        err,
		}
	}

	if errors.Is(err, fs.ErrPermission) {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if errors.Is(err, fs.ErrNotExist) {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	if strings.Contains(err.Error(), "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
