// Package config loads datacommons-mcp settings from defaults, an optional
// YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JamesPrial/datacommons-mcp/internal/pathutil"
	"github.com/JamesPrial/datacommons-mcp/internal/storage"
)

// APIKeyEnv is the environment variable holding the Data Commons API key.
const APIKeyEnv = "DC_API_KEY"

// Environment overrides.
const (
	EnvBaseURL        = "DC_API_BASE_URL"
	EnvSearchURL      = "DC_SEARCH_URL"
	EnvCallLogBackend = "DC_MCP_CALL_LOG_BACKEND"
	EnvCallLogDir     = "DC_MCP_CALL_LOG_DIR"
	EnvCallLogPath    = "DC_MCP_CALL_LOG_PATH"
	EnvPostgresURL    = "DC_MCP_POSTGRES_URL"
)

// Config is the full application configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Search  SearchConfig  `yaml:"search"`
	CallLog CallLogConfig `yaml:"call_log"`
}

// APIConfig describes the remote Data Commons endpoints.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url" validate:"required,url"`
	SearchURL         string        `yaml:"search_url" validate:"required,url"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerMinute int           `yaml:"requests_per_minute" validate:"gt=0"`
	Burst             int           `yaml:"burst" validate:"gt=0"`
}

// SearchConfig tunes the indicator search endpoint.
type SearchConfig struct {
	Index         string `yaml:"index" validate:"required"`
	MaxCandidates int    `yaml:"max_candidates" validate:"gt=0,lte=100"`
}

// CallLogConfig selects where tool calls are recorded.
type CallLogConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=none json sqlite postgres"`
	Dir         string `yaml:"dir"`
	Path        string `yaml:"path"`
	PostgresURL string `yaml:"postgres_url" validate:"required_if=Backend postgres"`
}

// StorageOptions converts the call log settings for storage.GetStorageBackend.
func (c CallLogConfig) StorageOptions() storage.Options {
	return storage.Options{
		Backend:     c.Backend,
		Dir:         c.Dir,
		Path:        c.Path,
		PostgresURL: c.PostgresURL,
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           "https://api.datacommons.org/v2",
			SearchURL:         "https://datacommons.org/api/nl/search-indicators",
			Timeout:           30 * time.Second,
			RequestsPerMinute: 600,
			Burst:             10,
		},
		Search: SearchConfig{
			Index:         "base_uae_mem",
			MaxCandidates: 10,
		},
		CallLog: CallLogConfig{
			Backend: storage.BackendNone,
			Dir:     pathutil.DefaultStateDir(),
		},
	}
}

// LoadDotEnv loads ".env" from the working directory without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv() error {
	return loadDotEnv(".env")
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// Load builds the configuration. When path is empty the standard locations
// are searched; no file at all means defaults plus environment.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	if path == "" {
		path = findConfigFile()
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv(getenv)
	cfg.CallLog.Backend = strings.ToLower(strings.TrimSpace(cfg.CallLog.Backend))
	if cfg.CallLog.Backend == "" {
		cfg.CallLog.Backend = storage.BackendNone
	}
	cfg.CallLog.Dir = pathutil.ExpandHome(cfg.CallLog.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	overrides := []struct {
		env string
		dst *string
	}{
		{EnvBaseURL, &c.API.BaseURL},
		{EnvSearchURL, &c.API.SearchURL},
		{EnvCallLogBackend, &c.CallLog.Backend},
		{EnvCallLogDir, &c.CallLog.Dir},
		{EnvCallLogPath, &c.CallLog.Path},
		{EnvPostgresURL, &c.CallLog.PostgresURL},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(getenv(o.env)); v != "" {
			*o.dst = v
		}
	}
}

// findConfigFile returns the first existing file among the standard
// locations, or "".
func findConfigFile() string {
	locations := []string{
		"datacommons-mcp.yaml",
		".datacommons-mcp.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, ".config", "datacommons-mcp", "config.yaml"))
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and reports every offending field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fieldPath(fe), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldPath renders a validator namespace like "Config.API.BaseURL" as
// "api.base_url".
func fieldPath(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snakeCase(p)
	}
	return strings.Join(parts, ".")
}

func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
