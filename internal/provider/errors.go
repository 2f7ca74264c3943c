package provider

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mandalnilabja/streamgate/internal/catalog"
)

// Sentinel errors for the failure classes adapters must distinguish.
// Check with errors.Is().
var (
	// ErrInvalidAPIKey indicates the upstream rejected our credential.
	ErrInvalidAPIKey = errors.New("provider: invalid API key")

	// ErrRateLimited indicates the upstream rate limit was exceeded.
	ErrRateLimited = errors.New("provider: rate limit exceeded")

	// ErrUnavailable indicates a transport failure or upstream outage.
	ErrUnavailable = errors.New("provider: upstream unavailable")

	// ErrContentPolicy indicates the upstream refused the request on
	// content-policy grounds.
	ErrContentPolicy = errors.New("provider: content policy violation")

	// ErrInvalidRequest indicates the upstream rejected the request shape.
	ErrInvalidRequest = errors.New("provider: invalid request")

	// ErrNoAPIKey is returned at startup when a provider has no key configured.
	ErrNoAPIKey = errors.New("provider: no API key configured")
)

// ValidationError is a local request-validation failure, produced before any
// upstream call is made.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %q (value: %v): %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// UpstreamError is an error reported by a provider API. Message holds the
// parsed upstream error text (never the raw response body).
type UpstreamError struct {
	Tag        catalog.ProviderTag
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Tag, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q error: %s", e.Tag, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StatusError builds an UpstreamError classified by HTTP status code. The
// message should be the parsed error text from the upstream body.
func StatusError(tag catalog.ProviderTag, status int, message string) *UpstreamError {
	e := &UpstreamError{
		Tag:        tag,
		StatusCode: status,
		Message:    message,
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Err = ErrInvalidAPIKey
	case status == http.StatusTooManyRequests:
		e.Err = ErrRateLimited
		e.Retryable = true
	case status >= 500:
		e.Err = ErrUnavailable
		e.Retryable = true
	default:
		e.Err = ErrInvalidRequest
	}
	return e
}

// TransportError wraps a connection or timeout failure talking to the
// upstream. These are always retryable.
func TransportError(tag catalog.ProviderTag, err error) *UpstreamError {
	return &UpstreamError{
		Tag:       tag,
		Message:   err.Error(),
		Retryable: true,
		Err:       ErrUnavailable,
	}
}
