package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "https://api.datacommons.org/v2", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "none", cfg.CallLog.Backend)
	assert.NotEmpty(t, cfg.CallLog.Dir)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://dc.example.org/v2
  timeout: 5s
search:
  max_candidates: 25
call_log:
  backend: SQLite
  dir: /var/lib/dcmcp
`)

	cfg, err := load(path, noEnv)
	require.NoError(t, err)

	assert.Equal(t, "https://dc.example.org/v2", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 25, cfg.Search.MaxCandidates)
	assert.Equal(t, "sqlite", cfg.CallLog.Backend, "backend is normalised to lower case")
	assert.Equal(t, "/var/lib/dcmcp", cfg.CallLog.Dir)

	// untouched keys keep their defaults
	assert.Equal(t, "base_uae_mem", cfg.Search.Index)
	assert.Equal(t, 600, cfg.API.RequestsPerMinute)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://file.example.org/v2
call_log:
  backend: json
`)

	cfg, err := load(path, envMap(map[string]string{
		EnvBaseURL:        "https://env.example.org/v2",
		EnvCallLogBackend: "postgres",
		EnvPostgresURL:    "postgres://u:p@localhost:5432/calls",
		EnvCallLogPath:    "audit.db",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.org/v2", cfg.API.BaseURL)
	assert.Equal(t, "postgres", cfg.CallLog.Backend)
	assert.Equal(t, "postgres://u:p@localhost:5432/calls", cfg.CallLog.PostgresURL)
	assert.Equal(t, "audit.db", cfg.CallLog.Path)
}

func TestLoad_BlankEnvIsIgnored(t *testing.T) {
	cfg, err := load(writeConfig(t, "{}\n"), envMap(map[string]string{EnvBaseURL: "   "}))
	require.NoError(t, err)
	assert.Equal(t, Default().API.BaseURL, cfg.API.BaseURL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			body:    "api: [unclosed",
			wantErr: "failed to parse config file",
		},
		{
			name:    "bad url",
			body:    "api:\n  base_url: not a url\n",
			wantErr: "api.base_url",
		},
		{
			name:    "unknown backend",
			body:    "call_log:\n  backend: redis\n",
			wantErr: "call_log.backend",
		},
		{
			name:    "postgres without url",
			body:    "call_log:\n  backend: postgres\n",
			wantErr: "call_log.postgres_url",
		},
		{
			name:    "non-positive rate",
			body:    "api:\n  requests_per_minute: 0\n",
			wantErr: "api.requests_per_minute",
		},
		{
			name:    "env produces invalid value",
			body:    "{}\n",
			env:     map[string]string{EnvSearchURL: "::nope"},
			wantErr: "api.search_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(writeConfig(t, tt.body), envMap(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_DiscoversFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "datacommons-mcp.yaml"),
		[]byte("search:\n  index: custom_index\n"), 0o644))

	cfg, err := load("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, "custom_index", cfg.Search.Index)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DC_API_KEY=from-dotenv\nDC_TEST_PRESET=from-dotenv\n"), 0o600))

	t.Setenv("DC_API_KEY", "")
	require.NoError(t, os.Unsetenv("DC_API_KEY"))
	t.Setenv("DC_TEST_PRESET", "already-set")

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("DC_API_KEY"))
	assert.Equal(t, "already-set", os.Getenv("DC_TEST_PRESET"), "existing variables are not overridden")
}

func TestLoadDotEnv_MissingFileIsIgnored(t *testing.T) {
	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestCallLogConfig_StorageOptions(t *testing.T) {
	c := CallLogConfig{Backend: "json", Dir: "/d", Path: "p.json", PostgresURL: "pg"}
	opts := c.StorageOptions()

	assert.Equal(t, "json", opts.Backend)
	assert.Equal(t, "/d", opts.Dir)
	assert.Equal(t, "p.json", opts.Path)
	assert.Equal(t, "pg", opts.PostgresURL)
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"BaseURL":           "base_url",
		"API":               "api",
		"CallLog":           "call_log",
		"RequestsPerMinute": "requests_per_minute",
		"PostgresURL":       "postgres_url",
	}
	for in, want := range tests {
		assert.Equal(t, want, snakeCase(in), in)
	}
}
