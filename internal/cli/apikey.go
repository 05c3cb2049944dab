package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/JamesPrial/datacommons-mcp/internal/config"
	"github.com/JamesPrial/datacommons-mcp/internal/datacommons"
)

const (
	skipValidationMessage = "Skipping API key validation as requested."
	apiKeyHint            = "To obtain an API key, go to https://apikeys.datacommons.org and request a key for the api.datacommons.org domain."
)

// KeyValidator checks an API key against Data Commons.
type KeyValidator interface {
	ValidateKey(ctx context.Context, apiKey string) error
}

// CredentialError is a missing or rejected API key. It has already been
// reported to the user when returned.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string { return e.Err.Error() }

func (e *CredentialError) Unwrap() error { return e.Err }

// CredentialGuard verifies the API key before any server starts.
type CredentialGuard struct {
	Getenv    func(string) string
	Validator KeyValidator
	Stderr    io.Writer
	// Exit terminates the process. Production code passes os.Exit.
	Exit func(code int)
}

// Enforce checks the key unless skip is set. On failure it prints the error
// and where to get a key, calls Exit(1), and returns a *CredentialError in
// case Exit returns.
func (g *CredentialGuard) Enforce(ctx context.Context, skip bool) error {
	if skip {
		_, _ = fmt.Fprintln(g.Stderr, skipValidationMessage)
		return nil
	}

	err := g.check(ctx)
	if err == nil {
		return nil
	}
	_, _ = fmt.Fprintln(g.Stderr, err)
	_, _ = fmt.Fprintln(g.Stderr, apiKeyHint)
	if g.Exit != nil {
		g.Exit(1)
	}
	return &CredentialError{Err: err}
}

func (g *CredentialGuard) check(ctx context.Context) error {
	key := strings.TrimSpace(g.Getenv(config.APIKeyEnv))
	if key == "" {
		return datacommons.ErrMissingAPIKey
	}
	return g.Validator.ValidateKey(ctx, key)
}
