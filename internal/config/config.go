package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/keymat/internal/errors"
	"github.com/systmms/keymat/internal/logging"
	"github.com/systmms/keymat/internal/metrics"
	"github.com/systmms/keymat/internal/secure"
)

// DefaultPath is the configuration file used when --config is not given.
const DefaultPath = "keymat.yaml"

//go:embed schema.json
var schema []byte

var schemaLoader = gojsonschema.NewBytesLoader(schema)

// Config holds the runtime configuration
type Config struct {
	Path           string
	Logger         *logging.Logger
	Metrics        *metrics.Recorder
	NonInteractive bool
	Definition     *Definition
}

// Definition is the keymat.yaml document.
type Definition struct {
	Version     int                 `yaml:"version"`
	Workdir     string              `yaml:"workdir,omitempty"`
	ShredPasses int                 `yaml:"shred_passes,omitempty"`
	Servers     map[string]Server   `yaml:"servers,omitempty"`
	Registries  map[string]Registry `yaml:"registries,omitempty"`
	Env         map[string]string   `yaml:"env,omitempty"`
}

// Server is a docker daemon endpoint.
type Server struct {
	Host string `yaml:"host"`
	TLS  *TLS   `yaml:"tls,omitempty"`
}

// TLS holds the client credentials for a daemon. CA is optional.
type TLS struct {
	CA   *Source `yaml:"ca,omitempty"`
	Cert Source  `yaml:"cert"`
	Key  Source  `yaml:"key"`
}

// Registry is an image registry endpoint. Without a username it carries no
// credentials.
type Registry struct {
	URL      string  `yaml:"url,omitempty"`
	Username string  `yaml:"username,omitempty"`
	Password *Source `yaml:"password,omitempty"`
}

// Source says where a credential value comes from. Exactly one field is set.
type Source struct {
	File  string `yaml:"file,omitempty"`
	Env   string `yaml:"env,omitempty"`
	Value string `yaml:"value,omitempty"`
}

// Load reads, validates and parses the configuration file
func (c *Config) Load() error {
	path := c.Path
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      path,
				Message:    "configuration file not found",
				Suggestion: "Create keymat.yaml or pass --config",
				Err:        err,
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}

	c.Definition = def
	c.Logger.Debug("Loaded %s: %d servers, %d registries", path, len(def.Servers), len(def.Registries))
	return nil
}

// Parse validates data against the keymat.yaml schema and decodes it.
func Parse(data []byte) (*Definition, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
			Err:        err,
		}
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}

	if err := validate(raw); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, dserrors.ConfigError{
			Message: "configuration does not match the expected structure",
			Err:     err,
		}
	}
	return &def, nil
}

func validate(doc map[string]interface{}) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return dserrors.ConfigError{
			Message: "schema validation error",
			Err:     err,
		}
	}
	if result.Valid() {
		return nil
	}

	desc := result.Errors()
	messages := make([]string, 0, len(desc))
	for _, d := range desc {
		messages = append(messages, d.String())
	}
	return dserrors.ConfigError{
		Field:      desc[0].Field(),
		Message:    "schema validation failed:\n  - " + strings.Join(messages, "\n  - "),
		Suggestion: "Each credential source needs exactly one of file, env or value",
	}
}

// Server returns the named server endpoint.
func (c *Config) Server(name string) (Server, error) {
	if err := c.loaded(); err != nil {
		return Server{}, err
	}
	s, ok := c.Definition.Servers[name]
	if !ok {
		return Server{}, notFound("server", name, keys(c.Definition.Servers))
	}
	return s, nil
}

// Registry returns the named registry endpoint.
func (c *Config) Registry(name string) (Registry, error) {
	if err := c.loaded(); err != nil {
		return Registry{}, err
	}
	r, ok := c.Definition.Registries[name]
	if !ok {
		return Registry{}, notFound("registry", name, keys(c.Definition.Registries))
	}
	return r, nil
}

func (c *Config) loaded() error {
	if c.Definition == nil {
		return dserrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}
	return nil
}

func notFound(field, name string, available []string) error {
	suggestion := fmt.Sprintf("Check the %s entries in keymat.yaml", field)
	if len(available) > 0 {
		suggestion = fmt.Sprintf("Available: %s", strings.Join(available, ", "))
	}
	return dserrors.ConfigError{
		Field:      field,
		Value:      name,
		Message:    field + " not found",
		Suggestion: suggestion,
	}
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open reads the credential value into a sealed buffer.
func (s Source) Open() (*secure.Buffer, error) {
	switch {
	case s.File != "":
		path, err := ExpandHome(s.File)
		if err != nil {
			return nil, err
		}
		buf, err := secure.ReadFile(path)
		if err != nil {
			return nil, dserrors.UserError{
				Message:    fmt.Sprintf("Failed to read credential file %s", path),
				Details:    err.Error(),
				Suggestion: "Check that the file exists and is readable",
				Err:        err,
			}
		}
		return buf, nil
	case s.Env != "":
		value, ok := os.LookupEnv(s.Env)
		if !ok {
			return nil, dserrors.ConfigError{
				Field:      "env",
				Value:      s.Env,
				Message:    "environment variable is not set",
				Suggestion: fmt.Sprintf("Export %s before running keymat", s.Env),
			}
		}
		return secure.FromString(value), nil
	default:
		return secure.FromString(s.Value), nil
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
