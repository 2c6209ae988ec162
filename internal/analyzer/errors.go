package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"trailblazer_ai/internal/providers"
)

// ErrorKind is the externally visible failure class of an analysis call.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindRateLimited         ErrorKind = "rate_limited"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindInternal            ErrorKind = "internal"
)

// Error is the only error type Analyze and FindTrails return.
type Error struct {
	Kind    ErrorKind
	Message string
	// RetryAfter is set for rate_limited errors when a hint is known.
	RetryAfter time.Duration
	// ImageIndex names the offending image of a validation error, -1 otherwise.
	ImageIndex int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func validationError(msg string, index int, err error) *Error {
	return &Error{Kind: KindValidation, Message: msg, ImageIndex: index, Err: err}
}

func unavailableError(msg string, err error) *Error {
	return &Error{Kind: KindProviderUnavailable, Message: msg, ImageIndex: -1, Err: err}
}

func internalError(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, ImageIndex: -1, Err: err}
}

func rateLimitedError(msg string, retryAfter time.Duration, err error) *Error {
	return &Error{Kind: KindRateLimited, Message: msg, RetryAfter: retryAfter, ImageIndex: -1, Err: err}
}

// classify turns a provider call failure into an *Error.
//
//	ImageValidationError          -> validation
//	RateLimitError                -> rate_limited (+ vendor retry hint)
//	ProviderError, auth/not found -> provider_unavailable
//	ProviderError, other client   -> validation
//	ProviderError, transient      -> provider_unavailable
//	caller cancellation           -> internal
func classify(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var ive *providers.ImageValidationError
	if errors.As(err, &ive) {
		return validationError(ive.Reason, ive.Index, err)
	}
	var rl *providers.RateLimitError
	if errors.As(err, &rl) {
		return rateLimitedError("provider rate limit reached", rl.RetryAfter, err)
	}
	var pe *providers.ProviderError
	if errors.As(err, &pe) {
		if pe.Kind == providers.KindClient {
			switch pe.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, 0:
				return unavailableError("provider rejected the configured credential", err)
			}
			return validationError(pe.Message, -1, err)
		}
		return unavailableError("provider is unavailable", err)
	}
	if errors.Is(err, context.Canceled) {
		return internalError("request cancelled", err)
	}
	return internalError("analysis failed", err)
}
