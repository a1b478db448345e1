package commands

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/keymat/internal/config"
	"github.com/systmms/keymat/internal/logging"
	"github.com/systmms/keymat/internal/metrics"
)

// testConfig writes a keymat.yaml whose workdir is a fresh temp dir and
// returns the config and that workdir.
func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()

	dir := t.TempDir()
	workdir := filepath.Join(dir, "work")
	require.NoError(t, os.Mkdir(workdir, 0o700))

	content := fmt.Sprintf(`version: 0
workdir: %s
shred_passes: 1
servers:
  prod:
    host: tcp://h1:2376
    tls:
      ca: { value: ca-data }
      cert: { value: cert-data }
      key: { value: key-data }
  local:
    host: unix:///var/run/docker.sock
registries:
  hub:
    username: ci-bot
    password: { value: token }
env:
  COMPOSE_PROJECT_NAME: ci
`, workdir)

	path := filepath.Join(dir, "keymat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return &config.Config{
		Path:    path,
		Logger:  logging.NewWriter(&bytes.Buffer{}, false, true),
		Metrics: metrics.New(),
	}, workdir
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	return list
}

func TestExecCommand_MissingCommand(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)

	cmd := NewExecCommand(cfg)
	cmd.SetArgs([]string{"--server", "prod"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No command specified")
}

func TestExecCommand_UnknownServer(t *testing.T) {
	t.Parallel()
	cfg, workdir := testConfig(t)

	cmd := NewExecCommand(cfg)
	cmd.SetArgs([]string{"--server", "staging", "--", "true"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Available: local, prod")
	assert.Empty(t, dirEntries(t, workdir))
}

func TestExecCommand_ExposesAndReleasesMaterial(t *testing.T) {
	requireShell(t)
	t.Parallel()
	cfg, workdir := testConfig(t)

	var stdout bytes.Buffer
	cmd := NewExecCommand(cfg)
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{
		"--server", "prod", "--registry", "hub", "--",
		"sh", "-c", `cat "$DOCKER_CERT_PATH/key.pem"; echo; echo "$DOCKER_HOST $DOCKER_TLS_VERIFY $COMPOSE_PROJECT_NAME"; test -f "$DOCKER_CONFIG/config.json" && echo config`,
	})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "key-data\ntcp://h1:2376 1 ci\nconfig\n", stdout.String())
	assert.Empty(t, dirEntries(t, workdir), "material must be shredded after the command")
}

func TestExecCommand_ReleasesOnFailure(t *testing.T) {
	requireShell(t)
	t.Parallel()
	cfg, workdir := testConfig(t)

	cmd := NewExecCommand(cfg)
	cmd.SetArgs([]string{"--server", "prod", "--", "sh", "-c", "exit 3"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code: 3")
	assert.Empty(t, dirEntries(t, workdir))
}

func TestEnvCommand(t *testing.T) {
	t.Parallel()
	cfg, workdir := testConfig(t)

	var stdout bytes.Buffer
	cmd := NewEnvCommand(cfg)
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"--server", "prod", "--server", "local"})

	require.NoError(t, cmd.Execute())

	out := stdout.String()
	assert.Contains(t, out, "Key material exposes 4 environment variables")
	assert.Contains(t, out, "DOCKER_HOST=uni********ck", "last server wins")
	assert.Contains(t, out, "DOCKER_CERT_PATH=")
	assert.Contains(t, out, "COMPOSE_PROJECT_NAME=**")
	assert.Empty(t, dirEntries(t, workdir))
}

func TestShredCommand_NoFilesError(t *testing.T) {
	t.Parallel()

	cmd := NewShredCommand(&config.Config{Logger: logging.New(false, true)})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No files specified")
}

func TestShredCommand_FileNotFound(t *testing.T) {
	t.Parallel()

	cmd := NewShredCommand(&config.Config{Logger: logging.New(false, true)})
	cmd.SetArgs([]string{"--force", "/nonexistent/key.pem"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot access path")
}

func TestShredCommand_InvalidPasses(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, []byte("k"), 0o600))

	for _, passes := range []string{"0", "11"} {
		cmd := NewShredCommand(&config.Config{Logger: logging.New(false, true)})
		cmd.SetArgs([]string{"--force", "--passes", passes, path})
		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid number of passes")
	}
	assert.FileExists(t, path)
}

func TestShredCommand_DirectoryRequiresRecursive(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "keymat-1")
	require.NoError(t, os.Mkdir(dir, 0o700))

	cmd := NewShredCommand(&config.Config{Logger: logging.New(false, true)})
	cmd.SetArgs([]string{"--force", dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--recursive")
	assert.DirExists(t, dir)
}

func TestShredCommand_RecursiveDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "keymat-1")
	require.NoError(t, os.Mkdir(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.pem"), []byte("key"), 0o600))
	file := filepath.Join(t.TempDir(), "cert.pem")
	require.NoError(t, os.WriteFile(file, []byte("cert"), 0o600))

	var stdout bytes.Buffer
	cmd := NewShredCommand(&config.Config{Logger: logging.New(false, true)})
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"--force", "--recursive", "--passes", "1", dir, file})

	require.NoError(t, cmd.Execute())
	assert.NoDirExists(t, dir)
	assert.NoFileExists(t, file)
	assert.Contains(t, stdout.String(), "Securely deleted 2 paths")
}

func TestShredCommand_Confirmation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		answer string
		kept   bool
	}{
		{"n\n", true},
		{"", true},
		{"yes\n", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.answer), func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "key.pem")
			require.NoError(t, os.WriteFile(path, []byte("k"), 0o600))

			var stdout bytes.Buffer
			cmd := NewShredCommand(&config.Config{Logger: logging.New(false, true)})
			cmd.SetIn(strings.NewReader(tt.answer))
			cmd.SetOut(&stdout)
			cmd.SetArgs([]string{path})

			require.NoError(t, cmd.Execute())
			if tt.kept {
				assert.FileExists(t, path)
				assert.Contains(t, stdout.String(), "Operation cancelled")
			} else {
				assert.NoFileExists(t, path)
			}
		})
	}
}

func TestCleanCommand(t *testing.T) {
	t.Parallel()

	workdir := t.TempDir()
	old := filepath.Join(workdir, "keymat-old")
	young := filepath.Join(workdir, "keymat-young")
	other := filepath.Join(workdir, "unrelated")
	for _, d := range []string{old, young, other} {
		require.NoError(t, os.Mkdir(d, 0o700))
		require.NoError(t, os.WriteFile(filepath.Join(d, "key.pem"), []byte("k"), 0o600))
	}
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	t.Run("dry run", func(t *testing.T) {
		var stdout bytes.Buffer
		cmd := NewCleanCommand(&config.Config{Logger: logging.New(false, true)})
		cmd.SetOut(&stdout)
		cmd.SetArgs([]string{"--workdir", workdir, "--dry-run"})

		require.NoError(t, cmd.Execute())
		assert.Contains(t, stdout.String(), old)
		assert.NotContains(t, stdout.String(), young)
		assert.DirExists(t, old)
	})

	t.Run("force", func(t *testing.T) {
		cmd := NewCleanCommand(&config.Config{Logger: logging.New(false, true)})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--workdir", workdir, "--force"})

		require.NoError(t, cmd.Execute())
		assert.NoDirExists(t, old)
		assert.DirExists(t, young)
		assert.DirExists(t, other)
	})
}

func TestCleanCommand_InvalidPasses(t *testing.T) {
	t.Parallel()

	workdir := t.TempDir()
	stale := filepath.Join(workdir, "keymat-old")
	key := filepath.Join(stale, "key.pem")
	require.NoError(t, os.Mkdir(stale, 0o700))
	require.NoError(t, os.WriteFile(key, []byte("k"), 0o600))

	for _, passes := range []string{"-1", "11"} {
		cmd := NewCleanCommand(&config.Config{Logger: logging.New(false, true)})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--workdir", workdir, "--older-than", "0s", "--force", "--passes", passes})

		err := cmd.Execute()
		require.Error(t, err, "passes=%s", passes)
		assert.Contains(t, err.Error(), "Invalid number of passes")
		assert.FileExists(t, key)
	}
}

func TestCleanCommand_UsesConfiguredWorkdir(t *testing.T) {
	t.Parallel()
	cfg, workdir := testConfig(t)
	cfg.NonInteractive = true

	stale := filepath.Join(workdir, "keymat-crashed")
	require.NoError(t, os.Mkdir(stale, 0o700))

	cmd := NewCleanCommand(cfg)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--older-than", "0s"})

	require.NoError(t, cmd.Execute())
	assert.NoDirExists(t, stale)
}

func TestStaleDirs_MissingWorkdir(t *testing.T) {
	t.Parallel()

	_, err := staleDirs(filepath.Join(t.TempDir(), "missing"), time.Hour, time.Now())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
