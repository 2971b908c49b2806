// Package ai builds workout plans with a language model and normalizes its answers into plans the safety validator
// understands.
//
// The model is an opaque [Client]. Transport failures are classified by [Classify] and, when transient, retried by
// [Generator] with bounded backoff. Anything the model returns goes through [AdaptSuggestion], which fails closed.
// When the model cannot deliver, [FallbackPlan] provides a deterministic canned plan.
package ai

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/myrjola/liftguard/internal/errors"
	"github.com/openai/openai-go/v3"
)

// Prompt is the natural language request sent to the model.
type Prompt struct {
	System string
	User   string
}

// Client returns the raw structured suggestion for a prompt.
type Client interface {
	Suggest(ctx context.Context, prompt Prompt) (string, error)
}

// ClientFunc adapts a function to [Client].
type ClientFunc func(ctx context.Context, prompt Prompt) (string, error)

func (f ClientFunc) Suggest(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

// UpstreamErrorKind classifies model call failures.
type UpstreamErrorKind string

const (
	UpstreamTimeout        UpstreamErrorKind = "timeout"
	UpstreamRateLimit      UpstreamErrorKind = "rate_limit"
	UpstreamServer         UpstreamErrorKind = "server_error"
	UpstreamConnection     UpstreamErrorKind = "connection"
	UpstreamAuthentication UpstreamErrorKind = "authentication"
	UpstreamInvalidRequest UpstreamErrorKind = "invalid_request"
	UpstreamCanceled       UpstreamErrorKind = "canceled"
	UpstreamUnknown        UpstreamErrorKind = "unknown"
)

// UpstreamError is a classified model call failure.
type UpstreamError struct {
	Kind       UpstreamErrorKind
	StatusCode int
	// RetryAfter is the delay requested by the upstream, zero when none was given.
	RetryAfter time.Duration
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ai upstream %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ai upstream %s: %v", e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *UpstreamError) Retryable() bool {
	switch e.Kind { //nolint:exhaustive // everything else is terminal.
	case UpstreamTimeout, UpstreamRateLimit, UpstreamServer, UpstreamConnection:
		return true
	default:
		return false
	}
}

// Classify converts err into an [*UpstreamError]. Errors that already are one are returned unchanged.
//
// A deadline exceeded is a transient timeout. Cancellation is terminal because it means the caller gave up.
func Classify(err error) *UpstreamError {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}

	classified := &UpstreamError{Kind: UpstreamUnknown, StatusCode: 0, RetryAfter: 0, Err: err}

	var apiErr *openai.Error
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		classified.Kind = UpstreamCanceled
	case errors.Is(err, context.DeadlineExceeded):
		classified.Kind = UpstreamTimeout
	case errors.As(err, &apiErr):
		classified.StatusCode = apiErr.StatusCode
		classified.Kind = kindForStatus(apiErr.StatusCode)
		if apiErr.Response != nil {
			classified.RetryAfter = retryAfter(apiErr.Response.Header)
		}
	case errors.As(err, &netErr):
		classified.Kind = UpstreamConnection
		if netErr.Timeout() {
			classified.Kind = UpstreamTimeout
		}
	}
	return classified
}

// StatusError builds a classified error for an HTTP status, for clients not backed by the OpenAI SDK.
func StatusError(status int, err error) *UpstreamError {
	return &UpstreamError{Kind: kindForStatus(status), StatusCode: status, RetryAfter: 0, Err: err}
}

func kindForStatus(status int) UpstreamErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return UpstreamRateLimit
	case status == http.StatusRequestTimeout:
		return UpstreamTimeout
	case status >= http.StatusInternalServerError:
		return UpstreamServer
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return UpstreamAuthentication
	case status >= http.StatusBadRequest:
		return UpstreamInvalidRequest
	default:
		return UpstreamUnknown
	}
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
		return d
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
