// Package main runs the MCP server over HTTP with debug logging, for poking
// at it by hand with curl or an MCP inspector. It never validates DC_API_KEY.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/JamesPrial/datacommons-mcp/internal/cli"
	"github.com/JamesPrial/datacommons-mcp/internal/config"
	"github.com/JamesPrial/datacommons-mcp/internal/mcpserver"
)

// run contains the main logic, returning an exit code.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("debug-http", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	host := fs.String("host", "localhost", "host to bind")
	port := fs.Int("port", 8080, "port to bind")
	configPath := fs.String("config", "", "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: failed to load config: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv, err := cli.NewServer(ctx, cfg, getenv(config.APIKeyEnv), logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error starting server: %v\n", err)
		return 1
	}
	defer func() { _ = srv.Close() }()

	_, _ = fmt.Fprintf(stdout, "Server: %s %s\n", mcpserver.Name, cli.Version)
	names, err := srv.ToolNames(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stdout, "Tools: error: %v\n", err)
	} else {
		_, _ = fmt.Fprintf(stdout, "Tools: %s\n", strings.Join(names, ", "))
	}
	_, _ = fmt.Fprintf(stdout, "Listening on http://%s:%d/mcp\n", *host, *port)

	if err := srv.ServeHTTP(ctx, *host, *port); err != nil {
		_, _ = fmt.Fprintf(stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
