package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trailblazer_ai/internal/models"
)

var (
	// ErrStreamingUnsupported is returned by every ChatStream implementation
	ErrStreamingUnsupported = errors.New("streaming responses are not supported")

	// ErrNoImages is returned when AnalyzeImages receives an empty image list
	ErrNoImages = errors.New("at least one image is required")
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	// KindClient is a 4xx-equivalent failure: bad key, bad request, unsupported format
	KindClient ErrorKind = "client"
	// KindTransient is a 5xx-equivalent failure or timeout; the caller may retry
	KindTransient ErrorKind = "transient"
	// KindUnknown is anything the client could not classify
	KindUnknown ErrorKind = "unknown"
)

// ProviderError is a non rate-limit provider failure.
type ProviderError struct {
	Provider   models.ProviderIdentity
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry. Clients never retry themselves.
func (e *ProviderError) Retryable() bool { return e.Kind == KindTransient }

// RateLimitError is returned when the vendor throttles the caller.
type RateLimitError struct {
	Provider   models.ProviderIdentity
	RetryAfter time.Duration // zero when the vendor gave no hint
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited (retry after %s): %s", e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("%s: rate limited: %s", e.Provider, e.Message)
}

// Retryable is always true for rate limits.
func (e *RateLimitError) Retryable() bool { return true }

// ImageValidationError is returned before any network call when an image breaks a limit.
type ImageValidationError struct {
	Index  int
	Reason string
}

func (e *ImageValidationError) Error() string {
	return fmt.Sprintf("image %d: %s", e.Index, e.Reason)
}

// IsRetryable reports whether err is worth retrying by the caller.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// ClassifyStatus turns a non-2xx vendor response into a typed error.
func ClassifyStatus(provider models.ProviderIdentity, status int, header http.Header, body []byte) error {
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Provider: provider, RetryAfter: parseRetryAfter(header, time.Now()), Message: msg}
	case status == http.StatusRequestTimeout, status >= 500 && status <= 599:
		return &ProviderError{Provider: provider, Kind: KindTransient, StatusCode: status, Message: msg}
	case status >= 400 && status <= 499:
		return &ProviderError{Provider: provider, Kind: KindClient, StatusCode: status, Message: msg}
	default:
		return &ProviderError{Provider: provider, Kind: KindUnknown, StatusCode: status, Message: msg}
	}
}

// ClassifyTransportError maps a failure that produced no HTTP response.
// Caller cancellation is returned unchanged.
func ClassifyTransportError(provider models.ProviderIdentity, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: provider, Kind: KindTransient, Message: "request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ProviderError{Provider: provider, Kind: KindTransient, Message: netErr.Error(), Err: err}
	}
	return &ProviderError{Provider: provider, Kind: KindUnknown, Message: err.Error(), Err: err}
}

// parseRetryAfter understands retry-after-ms, Retry-After seconds and Retry-After HTTP dates.
func parseRetryAfter(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}
	if ms := header.Get("retry-after-ms"); ms != "" {
		if v, err := strconv.ParseFloat(ms, 64); err == nil && v > 0 {
			return time.Duration(v * float64(time.Millisecond))
		}
	}
	ra := strings.TrimSpace(header.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if v, err := strconv.ParseFloat(ra, 64); err == nil {
		if v <= 0 {
			return 0
		}
		return time.Duration(v * float64(time.Second))
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// errorMessage pulls a human readable message out of the common vendor error bodies.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var shaped struct {
		Error   json.RawMessage `json:"error"`
		Detail  any             `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &shaped); err == nil {
		if len(shaped.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(shaped.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var flat string
			if json.Unmarshal(shaped.Error, &flat) == nil && flat != "" {
				return flat
			}
		}
		if s, ok := shaped.Detail.(string); ok && s != "" {
			return s
		}
		if shaped.Message != "" {
			return shaped.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
