// Package apierr maps internal failure kinds onto OpenAI-shaped error
// responses, generalizing the single writeOpenAIError helper
// (internal/proxy/handlers/openai.go) into the closed kind→status→type table
// the proxy and admin surfaces need.
package apierr

import (
	"encoding/json"
	"net/http"
	"time"
)

// Kind is the closed set of surfaced failure categories.
type Kind string

const (
	KindInvalidRequest   Kind = "invalid_request_error"
	KindModelNotFound    Kind = "model_not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindAuthentication   Kind = "authentication_error"
	KindRateLimit        Kind = "rate_limit_error"
	KindTimeout          Kind = "timeout"
	KindUpstreamError    Kind = "upstream_error"
	KindInternal         Kind = "internal_error"
)

var statusByKind = map[Kind]int{
	KindInvalidRequest:   http.StatusBadRequest,
	KindModelNotFound:    http.StatusNotFound,
	KindPermissionDenied: http.StatusForbidden,
	KindAuthentication:   http.StatusUnauthorized,
	KindRateLimit:        http.StatusTooManyRequests,
	KindTimeout:          http.StatusGatewayTimeout,
	KindUpstreamError:    http.StatusBadGateway,
	KindInternal:         http.StatusInternalServerError,
}

// typeByKind is the OpenAI "type" field each Kind reports as, which is
// coarser than Kind itself: model_not_found and permission_denied are both
// client-request problems, so both report as invalid_request_error (matching
// OpenAI's own error shape, where "code" carries the specific reason and
// "type" the broad category).
var typeByKind = map[Kind]Kind{
	KindInvalidRequest:   KindInvalidRequest,
	KindModelNotFound:    KindInvalidRequest,
	KindPermissionDenied: KindInvalidRequest,
	KindAuthentication:   KindAuthentication,
	KindRateLimit:        KindRateLimit,
	KindTimeout:          KindTimeout,
	KindUpstreamError:    KindUpstreamError,
	KindInternal:         KindInternal,
}

// Status returns the HTTP status code a Kind maps to.
func (k Kind) Status() int {
	if status, ok := statusByKind[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Type returns the broad OpenAI error type a Kind reports under.
func (k Kind) Type() Kind {
	if t, ok := typeByKind[k]; ok {
		return t
	}
	return KindInternal
}

// Error is an apierr-flavored error carrying the kind an HTTP handler should
// surface, separate from whatever Go error wraps it internally.
type Error struct {
	Kind       Kind
	Message    string
	Param      string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that also carries the underlying cause, for logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithParam sets the OpenAI-style "param" field (e.g. "model") and returns e for chaining.
func (e *Error) WithParam(param string) *Error {
	e.Param = param
	return e
}

// WithRetryAfter sets how long the client should wait before retrying
// (surfaced on rate_limit_error bodies) and returns e for chaining. A
// non-positive d leaves the field unset.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	if d > 0 {
		e.RetryAfter = d
	}
	return e
}

type body struct {
	Message      string `json:"message"`
	Type         Kind   `json:"type"`
	Param        string `json:"param,omitempty"`
	Code         Kind   `json:"code"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

// Write serializes err as an OpenAI-shaped error body and writes it with the
// status code err.Kind maps to. The upstream's own error body is never
// forwarded verbatim — only its message, if the caller chose to include it.
func Write(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Kind.Status())
	json.NewEncoder(w).Encode(map[string]body{
		"error": {
			Message:      err.Message,
			Type:         err.Kind.Type(),
			Param:        err.Param,
			Code:         err.Kind,
			RetryAfterMs: err.RetryAfter.Milliseconds(),
		},
	})
}
