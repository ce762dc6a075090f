package blizzard

import (
	"errors"
	"fmt"
)

// AuthError means the credential exchange was rejected. Not retried beyond
// the gateway's own refresh attempt; fatal for the current cycle.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("blizzard auth failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// UpstreamUnavailableError means retries were exhausted against the upstream
// API. Carries the last observed status code.
type UpstreamUnavailableError struct {
	StatusCode int
	Attempts   int
	LastErr    error
}

func (e *UpstreamUnavailableError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("blizzard API unavailable after %d attempts: %v", e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("blizzard API unavailable after %d attempts (last HTTP %d)", e.Attempts, e.StatusCode)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.LastErr }

// BadRequestError means the upstream rejected the request as malformed
// (4xx other than 429). Never retried: it indicates caller error.
type BadRequestError struct {
	StatusCode int
	Message    string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("blizzard API rejected request (HTTP %d): %s", e.StatusCode, e.Message)
}

// ErrorKind maps an error to its taxonomy name for logging and tool-layer
// responses. Unknown errors report as "internal".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		authErr *AuthError
		upErr   *UpstreamUnavailableError
		badErr  *BadRequestError
	)
	switch {
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.As(err, &upErr):
		return "upstream_unavailable"
	case errors.As(err, &badErr):
		return "bad_request"
	}
	return "internal"
}
