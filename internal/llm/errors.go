package llm

import (
	"errors"
	"fmt"
)

// ErrIncompleteStream: the connection closed before the end-of-stream
// sentinel; no partial candidates are ever surfaced.
var ErrIncompleteStream = errors.New("response stream ended before completion")

// AuthenticationError wraps a 401/403 from the endpoint. Never retried.
type AuthenticationError struct {
	Status int
	Body   string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (HTTP %d): %s", e.Status, e.Body)
}

// InvalidRequestError wraps a 400. Never retried.
type InvalidRequestError struct {
	Message string
	Param   string
}

func (e *InvalidRequestError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("invalid request (parameter %q): %s", e.Param, e.Message)
	}
	return fmt.Sprintf("invalid request: %s", e.Message)
}

// RateLimitedError: the endpoint returned 429 twice in a row.
type RateLimitedError struct {
	Body string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by the API: %s", e.Body)
}

// UnsupportedParameterError reports a request parameter the target
// model cannot honor. Raised locally, before any network traffic.
type UnsupportedParameterError struct {
	Parameter string
	Model     string
	Detail    string
}

func (e *UnsupportedParameterError) Error() string {
	return fmt.Sprintf("model %s does not support %s: %s", e.Model, e.Parameter, e.Detail)
}

// APIError covers non-2xx statuses with no dedicated type.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Body)
}
