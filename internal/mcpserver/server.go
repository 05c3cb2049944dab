package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/JamesPrial/datacommons-mcp/internal/datacommons"
	"github.com/JamesPrial/datacommons-mcp/internal/storage"
)

// Name is the server name reported during MCP initialization.
const Name = "datacommons-mcp"

const shutdownTimeout = 10 * time.Second

// Service is the Data Commons functionality behind the tools.
type Service interface {
	SearchIndicators(ctx context.Context, req datacommons.SearchRequest) (*datacommons.SearchResponse, error)
	GetObservations(ctx context.Context, req datacommons.ObservationRequest) (*datacommons.ObservationResponse, error)
}

// Server is an MCP server exposing search_indicators and get_observations.
type Server struct {
	mcp     *server.MCPServer
	svc     Service
	calls   storage.StorageBackend
	logger  *slog.Logger
	version string
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithCallLog records every tool call to b.
func WithCallLog(b storage.StorageBackend) Option {
	return func(s *Server) {
		if b != nil {
			s.calls = b
		}
	}
}

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVersion sets the version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// NewServer creates an MCP server with both Data Commons tools registered.
func NewServer(svc Service, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, errors.New("mcpserver: nil service")
	}
	s := &Server{
		svc:     svc,
		calls:   storage.NopBackend{},
		logger:  slog.Default(),
		version: "dev",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		Name,
		s.version,
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
	)
	for _, t := range s.tools() {
		s.mcp.AddTool(t.Tool, t.Handler)
	}
	return s, nil
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: searchIndicatorsTool(), Handler: s.recorded(ToolSearchIndicators, s.handleSearchIndicators)},
		{Tool: getObservationsTool(), Handler: s.recorded(ToolGetObservations, s.handleGetObservations)},
	}
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ToolNames lists the registered tools through a tools/list round trip.
func (s *Server) ToolNames(ctx context.Context) ([]string, error) {
	req := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	raw, err := json.Marshal(s.mcp.HandleMessage(ctx, req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode tools/list response: %w", err)
	}

	var resp struct {
		Result *struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode tools/list response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list failed: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}
	if resp.Result == nil {
		return nil, errors.New("tools/list returned no result")
	}

	names := make([]string, 0, len(resp.Result.Tools))
	for _, t := range resp.Result.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

// ServeStdio serves MCP over stdin/stdout until stdin closes or ctx is
// cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.serveStdio(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serveStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	srv := server.NewStdioServer(s.mcp)
	srv.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.DebugContext(ctx, "mcp server listening on stdio")
	if err := srv.Listen(ctx, in, out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mcp stdio server error: %w", err)
	}
	return nil
}

// Handler returns the HTTP routes: GET /health and the MCP endpoint at /mcp.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "OK")
	})
	r.Handle("/mcp", server.NewStreamableHTTPServer(s.mcp))
	return r
}

// ServeHTTP listens on host:port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ServeHTTP(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.InfoContext(gctx, "mcp server listening on http", "addr", ln.Addr().String())
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.InfoContext(gctx, "mcp server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("mcp http server shutdown error: %w", err)
		}
		return nil
	})
	return g.Wait()
}
