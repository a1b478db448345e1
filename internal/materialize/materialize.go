// Package materialize writes configured credentials into private temporary
// directories and returns them as keymaterial.Material.
package materialize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/systmms/keymat/internal/config"
	dserrors "github.com/systmms/keymat/internal/errors"
	"github.com/systmms/keymat/internal/logging"
	"github.com/systmms/keymat/internal/metrics"
	"github.com/systmms/keymat/internal/secure"
	"github.com/systmms/keymat/pkg/keymaterial"
)

// Environment variables understood by the docker CLI.
const (
	EnvDockerHost      = "DOCKER_HOST"
	EnvDockerTLSVerify = "DOCKER_TLS_VERIFY"
	EnvDockerCertPath  = "DOCKER_CERT_PATH"
	EnvDockerConfig    = "DOCKER_CONFIG"
)

// DockerHubAuthKey is the auths key docker uses for Docker Hub.
const DockerHubAuthKey = "https://index.docker.io/v1/"

const (
	kindServer   = "server"
	kindRegistry = "registry"
	filePerm     = 0o600
)

// Materializer turns endpoint configuration into key material on disk.
type Materializer struct {
	// Workdir is the parent of every materialization directory. Empty means
	// os.TempDir.
	Workdir string

	// ShredPasses is the number of overwrite passes before a key file is
	// removed.
	ShredPasses int

	Logger  *logging.Logger
	Metrics *metrics.Recorder
}

// New creates a Materializer using the workdir and shred settings of def.
func New(def *config.Definition, logger *logging.Logger, rec *metrics.Recorder) *Materializer {
	m := &Materializer{Logger: logger, Metrics: rec}
	if def != nil {
		m.Workdir = def.Workdir
		m.ShredPasses = def.ShredPasses
	}
	return m
}

// Server materializes the client credentials of a docker daemon. A server
// without TLS only needs DOCKER_HOST and owns no storage.
func (m *Materializer) Server(ctx context.Context, name string, s config.Server) (keymaterial.Material, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.TLS == nil {
		return keymaterial.Static(map[string]string{EnvDockerHost: s.Host}), nil
	}

	files := []struct {
		name   string
		source *config.Source
	}{
		{"ca.pem", s.TLS.CA},
		{"cert.pem", &s.TLS.Cert},
		{"key.pem", &s.TLS.Key},
	}

	dir, err := m.newDir(kindServer)
	if err != nil {
		return nil, m.failure(kindServer, name, err)
	}

	for _, f := range files {
		if f.source == nil {
			continue
		}
		if err := writeSource(*f.source, filepath.Join(dir.path, f.name)); err != nil {
			return nil, m.abandon(dir, m.failure(kindServer, name, err))
		}
	}

	dir.env[EnvDockerHost] = s.Host
	dir.env[EnvDockerTLSVerify] = "1"
	dir.env[EnvDockerCertPath] = dir.path

	m.Logger.Debug("Materialized server %s into %s", name, dir.path)
	return dir, nil
}

// Registry materializes a docker config.json holding the registry login. A
// registry without a username yields nil, which keymaterial.Plus treats as
// absent.
func (m *Materializer) Registry(ctx context.Context, name string, r config.Registry) (keymaterial.Material, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Username == "" {
		m.Logger.Debug("Registry %s has no credentials, nothing to materialize", name)
		return nil, nil
	}

	password := secure.FromString("")
	if r.Password != nil {
		opened, err := r.Password.Open()
		if err != nil {
			return nil, m.failure(kindRegistry, name, err)
		}
		password = opened
	}
	defer password.Destroy()

	dir, err := m.newDir(kindRegistry)
	if err != nil {
		return nil, m.failure(kindRegistry, name, err)
	}

	key := AuthKey(r.URL)
	err = password.With(func(pw []byte) error {
		return writeDockerConfig(filepath.Join(dir.path, "config.json"), key, r.Username, trimLineEnding(pw))
	})
	if err != nil {
		return nil, m.abandon(dir, m.failure(kindRegistry, name, err))
	}

	dir.env[EnvDockerConfig] = dir.path

	m.Logger.Debug("Materialized registry %s (%s) into %s", name, key, dir.path)
	return dir, nil
}

// ForConfig materializes the named servers and registries, in that order, and
// appends the static env block of the configuration. When any step fails,
// everything produced so far is released before returning.
func (m *Materializer) ForConfig(ctx context.Context, cfg *config.Config, servers, registries []string) (keymaterial.Material, error) {
	var parts []keymaterial.Material

	fail := func(err error) (keymaterial.Material, error) {
		if cerr := keymaterial.Merge(parts...).Close(); cerr != nil {
			m.Logger.Warn("Cleanup after failed materialization was incomplete: %v", cerr)
			err = errors.Join(err, cerr)
		}
		return nil, err
	}

	for _, name := range servers {
		s, err := cfg.Server(name)
		if err != nil {
			return fail(err)
		}
		mat, err := m.Server(ctx, name, s)
		if err != nil {
			return fail(err)
		}
		parts = append(parts, mat)
	}

	for _, name := range registries {
		r, err := cfg.Registry(name)
		if err != nil {
			return fail(err)
		}
		mat, err := m.Registry(ctx, name, r)
		if err != nil {
			return fail(err)
		}
		parts = append(parts, mat)
	}

	if cfg.Definition != nil && len(cfg.Definition.Env) > 0 {
		parts = append(parts, keymaterial.Static(cfg.Definition.Env))
	}

	return keymaterial.Merge(parts...), nil
}

func (m *Materializer) failure(kind, name string, err error) error {
	var userErr dserrors.UserError
	var cfgErr dserrors.ConfigError
	if errors.As(err, &userErr) || errors.As(err, &cfgErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return dserrors.UserError{
		Message:    fmt.Sprintf("Failed to materialize %s '%s'", kind, name),
		Details:    err.Error(),
		Suggestion: "Check that the workdir exists and is writable",
		Err:        err,
	}
}

// abandon releases a partially written directory.
func (m *Materializer) abandon(dir *Dir, err error) error {
	if cerr := dir.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

func writeSource(src config.Source, path string) error {
	buf, err := src.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	return buf.WriteFile(path, filePerm)
}

// trimLineEnding drops one trailing \n or \r\n, as docker login
// --password-stdin does, so token files written by echo still work.
func trimLineEnding(b []byte) []byte {
	if bytes.HasSuffix(b, []byte("\r\n")) {
		return b[:len(b)-2]
	}
	return bytes.TrimSuffix(b, []byte("\n"))
}

type dockerConfig struct {
	Auths map[string]dockerAuth `json:"auths"`
}

type dockerAuth struct {
	Auth string `json:"auth"`
}

func writeDockerConfig(path, key, username string, password []byte) error {
	cred := make([]byte, 0, len(username)+1+len(password))
	cred = append(cred, username...)
	cred = append(cred, ':')
	cred = append(cred, password...)

	data, err := json.Marshal(dockerConfig{
		Auths: map[string]dockerAuth{
			key: {Auth: base64.StdEncoding.EncodeToString(cred)},
		},
	})
	clear(cred)
	if err != nil {
		return err
	}

	buf := secure.NewBuffer(data)
	defer buf.Destroy()
	return buf.WriteFile(path, filePerm)
}

// AuthKey returns the key docker uses in config.json auths for a registry URL.
func AuthKey(registryURL string) string {
	raw := strings.TrimSpace(registryURL)
	if raw == "" {
		return DockerHubAuthKey
	}

	host := raw
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			host = u.Host
		}
	} else {
		host, _, _ = strings.Cut(raw, "/")
	}

	switch host {
	case "docker.io", "index.docker.io", "registry-1.docker.io":
		return DockerHubAuthKey
	}
	return host
}
