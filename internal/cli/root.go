// Package cli implements the datacommons-mcp command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JamesPrial/datacommons-mcp/internal/config"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// Deps are the process-level collaborators of the command tree.
type Deps struct {
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	Exit   func(code int)

	LoadConfig   func(path string) (*config.Config, error)
	NewValidator func(cfg *config.Config) KeyValidator
	NewServer    func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Server, error)
}

// DefaultDeps wires the real process environment and Data Commons.
func DefaultDeps() Deps {
	return Deps{
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Getenv:       os.Getenv,
		Exit:         os.Exit,
		LoadConfig:   config.Load,
		NewValidator: NewKeyValidator,
		NewServer: func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Server, error) {
			srv, err := NewServer(ctx, cfg, os.Getenv(config.APIKeyEnv), logger)
			if err != nil {
				return nil, err
			}
			return srv, nil
		},
	}
}

// invocationError is a malformed command line rejected by cobra.
type invocationError struct {
	err error
}

func (e *invocationError) Error() string { return e.err.Error() }

func (e *invocationError) Unwrap() error { return e.err }

// app carries state shared by subcommands after flag parsing.
type app struct {
	deps       Deps
	configPath string
	logLevel   string
	logger     *slog.Logger
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := a.deps.LoadConfig(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// NewRootCommand builds the datacommons-mcp command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	a := &app{deps: deps}

	root := &cobra.Command{
		Use:           "datacommons-mcp",
		Short:         "MCP server for Data Commons statistics",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(deps.Stderr, a.logLevel)
			if err != nil {
				return &invocationError{err: err}
			}
			a.logger = logger
			return nil
		},
	}
	root.SetOut(deps.Stdout)
	root.SetErr(deps.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &invocationError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, flagConfig, "", "path to a YAML config file")
	pf.StringVar(&a.logLevel, flagLogLevel, "info", "log level: debug, info, warn or error")

	root.AddCommand(newServeCommand(a), newHistoryCommand(a))
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string) int {
	deps := DefaultDeps()
	if err := config.LoadDotEnv(); err != nil {
		_, _ = fmt.Fprintf(deps.Stderr, "Warning: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, args, deps)
}

func run(ctx context.Context, args []string, deps Deps) int {
	root := NewRootCommand(deps)
	root.SetArgs(args)

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}

	var (
		credErr  *CredentialError
		initErr  *ServerInitError
		usageErr *UsageError
		invErr   *invocationError
	)
	switch {
	case errors.As(err, &credErr):
		// Already reported by the guard.
	case errors.As(err, &initErr):
		_, _ = fmt.Fprintf(deps.Stderr, "Error starting server: %v\n", initErr.Err)
	case errors.As(err, &usageErr), errors.As(err, &invErr):
		_, _ = fmt.Fprintf(deps.Stderr, "Error: %v\n", err)
		if cmd != nil {
			_, _ = fmt.Fprintf(deps.Stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
		}
	default:
		_, _ = fmt.Fprintf(deps.Stderr, "Error: %v\n", err)
	}
	return 1
}
