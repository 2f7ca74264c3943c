package gateway

import (
	"context"
	"errors"
	"net"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/provider"
)

// ErrorKind is the shared failure taxonomy exposed to clients. Provider
// error vocabularies are collapsed into these kinds; vendor specifics never
// leak past normalization.
type ErrorKind string

const (
	KindInvalidRequest      ErrorKind = "InvalidRequest"
	KindAuthFailure         ErrorKind = "AuthFailure"
	KindRateLimited         ErrorKind = "RateLimited"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindContentPolicy       ErrorKind = "ContentPolicy"
	KindUnknownModel        ErrorKind = "UnknownModel"
	KindCapacityExceeded    ErrorKind = "CapacityExceeded"
	KindInternal            ErrorKind = "Internal"
)

// Retriable reports whether a request failing with this kind may be retried.
// Only rate limiting and upstream unavailability are transient.
func (k ErrorKind) Retriable() bool {
	return k == KindRateLimited || k == KindUpstreamUnavailable
}

// NormalizedError is the uniform failure shape delivered to clients. Message
// is always safe to forward; raw upstream bodies stay in server logs.
type NormalizedError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *NormalizedError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// ErrCapacity marks a local concurrency-limit rejection.
var ErrCapacity = errors.New("gateway: concurrency limit reached")

// Normalize maps any failure signal from the given provider into the shared
// taxonomy. It distinguishes transport-level failures, upstream-reported
// errors, and local validation failures; anything unrecognized becomes
// Internal with a generic message so raw error detail is never forwarded.
func Normalize(tag catalog.ProviderTag, err error) *NormalizedError {
	if err == nil {
		return nil
	}

	var nerr *NormalizedError
	if errors.As(err, &nerr) {
		return nerr
	}

	switch {
	case errors.Is(err, catalog.ErrUnknownModel):
		return &NormalizedError{Kind: KindUnknownModel, Message: err.Error()}
	case errors.Is(err, ErrCapacity):
		return &NormalizedError{Kind: KindCapacityExceeded, Message: err.Error()}
	case errors.Is(err, provider.ErrContentPolicy):
		return &NormalizedError{Kind: KindContentPolicy, Message: upstreamMessage(err)}
	case errors.Is(err, provider.ErrRateLimited):
		return &NormalizedError{Kind: KindRateLimited, Message: upstreamMessage(err)}
	case errors.Is(err, provider.ErrInvalidAPIKey), errors.Is(err, provider.ErrNoAPIKey):
		return &NormalizedError{Kind: KindAuthFailure, Message: "upstream credential rejected"}
	case errors.Is(err, provider.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		isNetError(err):
		return &NormalizedError{Kind: KindUpstreamUnavailable, Message: "upstream provider unavailable"}
	case errors.Is(err, provider.ErrInvalidRequest):
		return &NormalizedError{Kind: KindInvalidRequest, Message: validationMessage(err)}
	default:
		return &NormalizedError{Kind: KindInternal, Message: "internal error"}
	}
}

// upstreamMessage prefers the parsed upstream error text when present.
func upstreamMessage(err error) string {
	var uerr *provider.UpstreamError
	if errors.As(err, &uerr) && uerr.Message != "" {
		return uerr.Message
	}
	return err.Error()
}

// validationMessage keeps local validation detail, which is always safe.
func validationMessage(err error) string {
	var verr *provider.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	return upstreamMessage(err)
}

func isNetError(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr)
}
