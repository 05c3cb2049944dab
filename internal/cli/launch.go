package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Server is the MCP server as seen by the launcher.
type Server interface {
	ToolNames(ctx context.Context) ([]string, error)
	ServeHTTP(ctx context.Context, host string, port int) error
	ServeStdio(ctx context.Context) error
}

// ServerInitError is a failure to construct the server.
type ServerInitError struct {
	Err error
}

func (e *ServerInitError) Error() string { return e.Err.Error() }

func (e *ServerInitError) Unwrap() error { return e.Err }

// Launcher prints the startup banner for a mode and hands off to the
// server's blocking serve loop.
type Launcher struct {
	Stdout    io.Writer
	Stderr    io.Writer
	Version   string
	NewServer func(ctx context.Context) (Server, error)
}

// RunHTTP serves streamable HTTP on host:port until ctx is cancelled.
func (l *Launcher) RunHTTP(ctx context.Context, host string, port int) error {
	srv, err := l.newServer(ctx)
	if err != nil {
		return err
	}
	defer closeServer(srv)

	base := fmt.Sprintf("http://%s:%d", host, port)
	w := l.Stdout
	_, _ = fmt.Fprintln(w, "Starting DataCommons MCP server (http)")
	_, _ = fmt.Fprintf(w, "Version: %s\n", l.Version)
	_, _ = fmt.Fprintf(w, "Health: %s/health\n", base)
	_, _ = fmt.Fprintf(w, "MCP: %s/mcp\n", base)
	_, _ = fmt.Fprintln(w, "Press CTRL+C to stop")
	_, _ = fmt.Fprintf(w, "[diag] tools: %s\n", describeTools(ctx, srv))
	_, _ = fmt.Fprintln(w, "[diag] starting http server")

	return srv.ServeHTTP(ctx, host, port)
}

// RunStdio serves MCP over stdin/stdout until stdin closes. Nothing but
// protocol traffic is written to stdout.
func (l *Launcher) RunStdio(ctx context.Context) error {
	srv, err := l.newServer(ctx)
	if err != nil {
		return err
	}
	defer closeServer(srv)

	w := l.Stderr
	_, _ = fmt.Fprintln(w, "Starting DataCommons MCP server in stdio mode")
	_, _ = fmt.Fprintf(w, "Version: %s\n", l.Version)
	_, _ = fmt.Fprintln(w, "Ready for stdin/stdout requests")
	_, _ = fmt.Fprintln(w, "[diag] entering stdio loop")

	if err := srv.ServeStdio(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, "[diag] stdio loop returned - stdin closed")
	return nil
}

func (l *Launcher) newServer(ctx context.Context) (Server, error) {
	srv, err := l.NewServer(ctx)
	if err != nil {
		return nil, &ServerInitError{Err: err}
	}
	return srv, nil
}

func closeServer(srv Server) {
	if c, ok := srv.(io.Closer); ok {
		_ = c.Close()
	}
}

// toolList is the outcome of enumerating tools for the banner.
type toolList struct {
	names []string
	err   error
}

func (t toolList) String() string {
	if t.err != nil {
		return "error: " + t.err.Error()
	}
	if len(t.names) == 0 {
		return "none"
	}
	return strings.Join(t.names, ", ")
}

// describeTools renders the registered tool names. Enumeration failures
// become part of the text and are never returned.
func describeTools(ctx context.Context, srv Server) string {
	names, err := srv.ToolNames(ctx)
	return toolList{names: names, err: err}.String()
}
