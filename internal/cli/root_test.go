package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesPrial/datacommons-mcp/internal/config"
	"github.com/JamesPrial/datacommons-mcp/internal/storage"
)

// harness records every collaborator call made by a command line run.
type harness struct {
	stdout, stderr bytes.Buffer
	env            map[string]string
	envReads       []string
	exit           exitRecorder
	validator      fakeValidator
	server         fakeServer
	serverErr      error
	cfg            *config.Config
	configPaths    []string
	validatorBuilt int
	serverBuilt    int
	serverLogger   *slog.Logger
}

func newHarness() *harness {
	return &harness{
		env:    map[string]string{config.APIKeyEnv: "test-key"},
		cfg:    config.Default(),
		server: fakeServer{tools: []string{"search_indicators", "get_observations"}},
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		Getenv: envFunc(h.env, &h.envReads),
		Exit:   h.exit.exit,
		LoadConfig: func(path string) (*config.Config, error) {
			h.configPaths = append(h.configPaths, path)
			return h.cfg, nil
		},
		NewValidator: func(*config.Config) KeyValidator {
			h.validatorBuilt++
			return &h.validator
		},
		NewServer: func(_ context.Context, _ *config.Config, logger *slog.Logger) (Server, error) {
			h.serverBuilt++
			h.serverLogger = logger
			if h.serverErr != nil {
				return nil, h.serverErr
			}
			return &h.server, nil
		},
	}
}

func (h *harness) run(args ...string) int {
	return run(context.Background(), args, h.deps())
}

func TestRun_StdioDefaults(t *testing.T) {
	h := newHarness()

	code := h.run("serve", "stdio")

	assert.Equal(t, 0, code, "stderr: %s", h.stderr.String())
	assert.True(t, h.server.stdio)
	assert.Empty(t, h.stdout.String())
	assert.Equal(t, []string{"test-key"}, h.validator.keys)
	assert.NotNil(t, h.serverLogger)
}

func TestRun_StdioRejectsHost(t *testing.T) {
	h := newHarness()

	code := h.run("serve", "stdio", "--host", "0.0.0.0")

	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "Error: The following option(s) are not applicable in 'stdio' mode: --host\n")
	assert.NotContains(t, h.stderr.String(), "--port")
	assert.Contains(t, h.stderr.String(), "Run 'datacommons-mcp serve --help' for usage.")
	assert.Empty(t, h.envReads, "credentials must not be read after a usage error")
	assert.Zero(t, h.validatorBuilt)
	assert.Zero(t, h.serverBuilt)
	assert.Empty(t, h.configPaths)
}

func TestRun_StdioRejectsHostAndPortSorted(t *testing.T) {
	h := newHarness()

	code := h.run("serve", "stdio", "--port", "1", "--host", "h")

	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "mode: --host, --port\n")
}

func TestRun_HTTPPort(t *testing.T) {
	h := newHarness()

	code := h.run("serve", "http", "--port", "9999")

	require.Equal(t, 0, code, "stderr: %s", h.stderr.String())
	assert.Contains(t, h.stdout.String(), "http://localhost:9999/health")
	assert.Contains(t, h.stdout.String(), "http://localhost:9999/mcp")
	assert.Equal(t, "localhost", h.server.httpHost)
	assert.Equal(t, 9999, h.server.httpPort)
}

func TestRun_HTTPToolEnumerationFailure(t *testing.T) {
	h := newHarness()
	h.server.toolsErr = errors.New("boom")

	code := h.run("serve", "http")

	assert.Equal(t, 0, code)
	assert.Contains(t, h.stdout.String(), "[diag] tools: error: boom")
	assert.Equal(t, defaultPort, h.server.httpPort)
}

func TestRun_SkipValidation(t *testing.T) {
	h := newHarness()
	delete(h.env, config.APIKeyEnv)

	code := h.run("serve", "stdio", "--skip-api-key-validation")

	assert.Equal(t, 0, code)
	assert.Contains(t, h.stderr.String(), "Skipping API key validation as requested.")
	assert.Empty(t, h.envReads)
	assert.Zero(t, h.validatorBuilt)
	assert.Empty(t, h.validator.keys)
	assert.True(t, h.server.stdio)
}

func TestRun_MissingKey(t *testing.T) {
	h := newHarness()
	delete(h.env, config.APIKeyEnv)

	code := h.run("serve", "http")

	assert.Equal(t, 1, code)
	assert.Equal(t, []int{1}, h.exit.codes)
	assert.Contains(t, h.stderr.String(), "DC_API_KEY is not set.")
	assert.Contains(t, h.stderr.String(), apiKeyHint)
	assert.NotContains(t, h.stderr.String(), "Error:", "credential failures are reported once")
	assert.Zero(t, h.serverBuilt)
	assert.Empty(t, h.stdout.String())
}

func TestRun_ServerInitError(t *testing.T) {
	h := newHarness()
	h.serverErr = errors.New("failed to open call log: nope")

	code := h.run("serve", "stdio")

	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "Error starting server: failed to open call log: nope\n")
}

func TestRun_ServeError(t *testing.T) {
	h := newHarness()
	h.server.serveErr = errors.New("listen tcp: address already in use")

	code := h.run("serve", "http")

	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "Error: listen tcp: address already in use\n")
}

func TestRun_InvalidInvocations(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown mode", args: []string{"serve", "sse"}, want: `invalid argument "sse"`},
		{name: "no mode", args: []string{"serve"}, want: "accepts 1 arg(s), received 0"},
		{name: "two modes", args: []string{"serve", "http", "stdio"}, want: "accepts 1 arg(s), received 2"},
		{name: "unknown flag", args: []string{"serve", "http", "--bogus"}, want: "unknown flag: --bogus"},
		{name: "bad log level", args: []string{"serve", "stdio", "--log-level", "loud"}, want: `invalid --log-level "loud"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()

			code := h.run(tt.args...)

			assert.Equal(t, 1, code)
			assert.Contains(t, h.stderr.String(), tt.want)
			assert.Contains(t, h.stderr.String(), "--help' for usage.")
			assert.Zero(t, h.serverBuilt)
			assert.Empty(t, h.envReads)
		})
	}
}

func TestRun_ConfigFlagIsCommon(t *testing.T) {
	h := newHarness()

	code := h.run("serve", "stdio", "--config", "custom.yaml", "--log-level", "debug")

	assert.Equal(t, 0, code, "stderr: %s", h.stderr.String())
	assert.Equal(t, []string{"custom.yaml"}, h.configPaths)
}

func TestRun_ConfigError(t *testing.T) {
	h := newHarness()
	d := h.deps()
	d.LoadConfig = func(string) (*config.Config, error) { return nil, errors.New("bad yaml") }

	code := run(context.Background(), []string{"serve", "stdio"}, d)

	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "Error: failed to load config: bad yaml")
	assert.Empty(t, h.envReads)
}

func TestRun_Version(t *testing.T) {
	h := newHarness()

	code := h.run("--version")

	assert.Equal(t, 0, code)
	assert.Contains(t, h.stdout.String(), Version)
}

func TestNewServer_BuildsManagedServer(t *testing.T) {
	cfg := config.Default()
	cfg.CallLog.Backend = storage.BackendJSON
	cfg.CallLog.Dir = t.TempDir()

	srv, err := NewServer(context.Background(), cfg, "key", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	names, err := srv.ToolNames(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"search_indicators", "get_observations"}, names)
}

func TestNewServer_BadCallLog(t *testing.T) {
	cfg := config.Default()
	cfg.CallLog.Backend = "redis"

	_, err := NewServer(context.Background(), cfg, "key", nil)
	assert.ErrorContains(t, err, "failed to open call log")
}
