package datacommons

import (
	"context"
	"errors"
	"net/url"
)

// KeyValidatorFunc adapts a function to the validator interface consumed by
// the credential guard.
type KeyValidatorFunc func(ctx context.Context, apiKey string) error

// ValidateKey calls f.
func (f KeyValidatorFunc) ValidateKey(ctx context.Context, apiKey string) error {
	return f(ctx, apiKey)
}

// ValidateAPIKey checks apiKey with one cheap authenticated request. A 401
// or 403 yields *InvalidAPIKeyError; any other failure, including an
// unreachable API, yields *APIKeyValidationError.
func (c *Client) ValidateAPIKey(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return ErrMissingAPIKey
	}
	q := url.Values{}
	q.Set("nodes", "country/USA")
	q.Set("property", "->name")

	err := c.get(ctx, c.baseURL+"/node", q, apiKey, nil)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
		return &InvalidAPIKeyError{StatusCode: apiErr.StatusCode}
	}
	return &APIKeyValidationError{Err: err}
}
