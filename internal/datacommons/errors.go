package datacommons

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("DC_API_KEY is not set.")

// InvalidAPIKeyError reports that Data Commons rejected the API key.
type InvalidAPIKeyError struct {
	StatusCode int
}

func (e *InvalidAPIKeyError) Error() string {
	return fmt.Sprintf("Invalid DC_API_KEY: Data Commons rejected the key (HTTP %d).", e.StatusCode)
}

// APIKeyValidationError reports that the key could not be checked at all,
// for example because the API was unreachable.
type APIKeyValidationError struct {
	Err error
}

func (e *APIKeyValidationError) Error() string {
	return fmt.Sprintf("Could not validate DC_API_KEY: %v", e.Err)
}

func (e *APIKeyValidationError) Unwrap() error { return e.Err }

// RequestError is an invalid tool request. Its message is meant for the
// caller of the tool.
type RequestError struct {
	Msg string
}

func (e *RequestError) Error() string { return "invalid request: " + e.Msg }

// APIError is a non-2xx response from a Data Commons endpoint.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsUnauthorized reports whether the response was 401 or 403.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
