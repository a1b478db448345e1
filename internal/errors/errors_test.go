package errors_test

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dserrors "github.com/systmms/keymat/internal/errors"
	"github.com/systmms/keymat/pkg/keymaterial"
)

func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := dserrors.UserError{
		Message:    "Failed to materialize server 'prod'",
		Details:    "open key.pem: permission denied",
		Suggestion: "Check the key_file path",
	}

	errMsg := err.Error()
	assert.Contains(t, errMsg, "Failed to materialize server 'prod'")
	assert.Contains(t, errMsg, "Details: open key.pem: permission denied")
	assert.Contains(t, errMsg, "💡 Try: Check the key_file path")
}

func TestUserErrorFallsBackToCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying")
	err := dserrors.UserError{Err: cause}
	assert.Equal(t, "underlying", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := dserrors.ConfigError{
		Field:      "servers.prod.host",
		Value:      "docker.example.com",
		Message:    "host must be a URL",
		Suggestion: "Use tcp://docker.example.com:2376",
	}

	errMsg := err.Error()
	assert.Contains(t, errMsg, "servers.prod.host")
	assert.Contains(t, errMsg, "docker.example.com")
	assert.Contains(t, errMsg, "host must be a URL")
	assert.Contains(t, errMsg, "tcp://docker.example.com:2376")
}

func TestCommandErrorFormatting(t *testing.T) {
	t.Parallel()

	err := dserrors.CommandError{
		Command:  "docker ps",
		ExitCode: 125,
		Message:  "exit status 125",
	}

	errMsg := err.Error()
	assert.Contains(t, errMsg, "docker ps")
	assert.Contains(t, errMsg, "exit code: 125")
}

func TestWrapCommandNotFound(t *testing.T) {
	t.Parallel()

	cause := errors.New("executable file not found in $PATH")

	err := dserrors.WrapCommandNotFound("docker", cause)
	assert.Contains(t, err.Error(), "https://docker.com/")
	assert.ErrorIs(t, err, cause)

	err = dserrors.WrapCommandNotFound("frobnicate", cause)
	assert.Contains(t, err.Error(), "Make sure 'frobnicate' is installed")
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, dserrors.ExitCode(nil))
	assert.Equal(t, 1, dserrors.ExitCode(errors.New("x")))
	assert.Equal(t, 3, dserrors.ExitCode(dserrors.CommandError{Command: "false", ExitCode: 3}))
	assert.Equal(t, 3, dserrors.ExitCode(fmt.Errorf("wrapped: %w", dserrors.CommandError{ExitCode: 3})))
	assert.Equal(t, 1, dserrors.ExitCode(dserrors.CommandError{Command: "nope"}))
}

func TestSimplifyError(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, dserrors.SimplifyError(nil))
	})

	t.Run("user errors pass through", func(t *testing.T) {
		t.Parallel()
		in := dserrors.UserError{Message: "already friendly"}
		assert.Equal(t, in, dserrors.SimplifyError(in))
	})

	t.Run("release error names the leftover path", func(t *testing.T) {
		t.Parallel()
		in := errors.Join(&keymaterial.ReleaseError{Path: "/tmp/keymat-42", Err: fs.ErrPermission})

		out := dserrors.SimplifyError(in)
		var userErr dserrors.UserError
		require.ErrorAs(t, out, &userErr)
		assert.Contains(t, out.Error(), "Credential cleanup may be incomplete")
		assert.Contains(t, out.Error(), "keymat shred --recursive /tmp/keymat-42")
		assert.ErrorIs(t, out, fs.ErrPermission)
	})

	t.Run("permission denied", func(t *testing.T) {
		t.Parallel()
		out := dserrors.SimplifyError(fmt.Errorf("open key.pem: %w", fs.ErrPermission))
		assert.Contains(t, out.Error(), "Permission denied")
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		out := dserrors.SimplifyError(fmt.Errorf("open ca.pem: %w", fs.ErrNotExist))
		assert.Contains(t, out.Error(), "File or directory not found")
	})

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()
		out := dserrors.SimplifyError(errors.New("yaml: line 3: mapping values are not allowed"))
		var cfgErr dserrors.ConfigError
		assert.ErrorAs(t, out, &cfgErr)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		in := errors.New("something else")
		assert.Equal(t, in, dserrors.SimplifyError(in))
	})
}
