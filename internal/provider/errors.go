package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoData is returned when an upstream answered but carried no usable payload.
	ErrNoData = errors.New("no data")

	// ErrPaidFeature is returned when the upstream requires a paid plan for the endpoint.
	// It is never worth retrying against the same provider.
	ErrPaidFeature = errors.New("paid feature required")

	// ErrRateLimited is returned when the upstream (or a local limiter) refused the call.
	ErrRateLimited = errors.New("rate limited")

	// ErrOutOfRange is returned when a price falls outside the plausible range for its symbol.
	ErrOutOfRange = errors.New("price outside plausible range")
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status code: %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status code: %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Unwrap exposes the sentinel matching the status code.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusForbidden, http.StatusPaymentRequired:
		return ErrPaidFeature
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}

// NewStatusError truncates long bodies so they stay readable in logs.
func NewStatusError(provider string, code int, body []byte) *StatusError {
	const maxBody = 256
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &StatusError{Provider: provider, StatusCode: code, Body: string(body)}
}

// IsEntitlement reports whether err means the provider will not serve this request on the current plan.
func IsEntitlement(err error) bool {
	return errors.Is(err, ErrPaidFeature)
}

// IsTransient reports whether err may succeed on a later attempt.
func IsTransient(err error) bool {
	if err == nil || IsEntitlement(err) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, ErrOutOfRange) && !errors.Is(err, context.Canceled)
}
