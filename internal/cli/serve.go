package cli

import (
	"context"

	"github.com/spf13/cobra"
)

const (
	defaultHost = "localhost"
	defaultPort = 8080
)

func newServeCommand(a *app) *cobra.Command {
	var (
		skip bool
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:       "serve <http|stdio>",
		Short:     "Start the MCP server",
		Long:      "Start the Data Commons MCP server over streamable HTTP or stdin/stdout.",
		ValidArgs: []string{string(ModeHTTP), string(ModeStdio)},
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs)(cmd, args); err != nil {
				return &invocationError{err: err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := Mode(args[0])
			if err := ValidateModeOptions(mode, explicitFlags(cmd)); err != nil {
				return err
			}
			return a.serve(cmd.Context(), mode, skip, host, port)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&skip, flagSkipValidation, false, "skip the DC_API_KEY check at startup")
	f.StringVar(&host, flagHost, defaultHost, "host to bind (http mode only)")
	f.IntVar(&port, flagPort, defaultPort, "port to bind (http mode only)")
	return cmd
}

func (a *app) serve(ctx context.Context, mode Mode, skip bool, host string, port int) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	guard := &CredentialGuard{
		Getenv: a.deps.Getenv,
		Stderr: a.deps.Stderr,
		Exit:   a.deps.Exit,
	}
	if !skip {
		guard.Validator = a.deps.NewValidator(cfg)
	}
	if err := guard.Enforce(ctx, skip); err != nil {
		return err
	}

	l := &Launcher{
		Stdout:  a.deps.Stdout,
		Stderr:  a.deps.Stderr,
		Version: Version,
		NewServer: func(ctx context.Context) (Server, error) {
			return a.deps.NewServer(ctx, cfg, a.logger)
		},
	}
	a.logger.Debug("launching", "mode", mode, "config", a.configPath)

	if mode == ModeHTTP {
		return l.RunHTTP(ctx, host, port)
	}
	return l.RunStdio(ctx)
}
