package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JamesPrial/datacommons-mcp/internal/config"
	"github.com/JamesPrial/datacommons-mcp/internal/datacommons"
	"github.com/JamesPrial/datacommons-mcp/internal/mcpserver"
	"github.com/JamesPrial/datacommons-mcp/internal/storage"
)

// NewClient builds a Data Commons client from cfg.
func NewClient(cfg *config.Config, apiKey string) *datacommons.Client {
	return datacommons.NewClient(cfg.API.BaseURL, cfg.API.SearchURL, apiKey,
		datacommons.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		datacommons.WithLimiter(datacommons.LimiterFor(cfg.API.RequestsPerMinute, cfg.API.Burst)),
		datacommons.WithSearchIndex(cfg.Search.Index),
		datacommons.WithMaxCandidates(cfg.Search.MaxCandidates),
	)
}

// NewKeyValidator checks keys against the Data Commons endpoint in cfg.
func NewKeyValidator(cfg *config.Config) KeyValidator {
	return datacommons.KeyValidatorFunc(NewClient(cfg, "").ValidateAPIKey)
}

// ManagedServer is an MCP server that owns its call log.
type ManagedServer struct {
	*mcpserver.Server
	calls storage.StorageBackend
}

// Close releases the call log.
func (m *ManagedServer) Close() error {
	return storage.Close(m.calls)
}

// NewServer builds the MCP server backed by Data Commons and the configured
// call log.
func NewServer(_ context.Context, cfg *config.Config, apiKey string, logger *slog.Logger) (*ManagedServer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	calls, err := storage.GetStorageBackend(cfg.CallLog.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open call log: %w", err)
	}

	svc := datacommons.NewService(NewClient(cfg, apiKey), logger)
	srv, err := mcpserver.NewServer(svc,
		mcpserver.WithCallLog(calls),
		mcpserver.WithLogger(logger),
		mcpserver.WithVersion(Version),
	)
	if err != nil {
		_ = storage.Close(calls)
		return nil, err
	}
	return &ManagedServer{Server: srv, calls: calls}, nil
}
