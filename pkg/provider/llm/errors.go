package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrorKind classifies provider failures so callers can select a recovery
// action without inspecting error strings.
type ErrorKind int

const (
	// KindUnknown covers failures that fit no other category.
	KindUnknown ErrorKind = iota

	// KindConnection: the backend could not be reached (DNS, refused,
	// reset, TLS).
	KindConnection

	// KindTimeout: the request exceeded its deadline.
	KindTimeout

	// KindRateLimit: the backend rejected the request due to quota or
	// throughput limits (HTTP 429 and equivalents).
	KindRateLimit

	// KindInvalidRequest: the request itself is unacceptable (bad model
	// name, malformed tools, context overflow). Retrying is pointless.
	KindInvalidRequest
)

// String returns the wire name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate_limit"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per kind, usable with errors.Is.
var (
	ErrConnection     = errors.New("llm: connection failed")
	ErrTimeout        = errors.New("llm: request timed out")
	ErrRateLimit      = errors.New("llm: rate limited")
	ErrInvalidRequest = errors.New("llm: invalid request")
)

// Error is the typed failure returned by providers. It wraps the underlying
// SDK or transport error and matches the kind's sentinel under errors.Is.
type Error struct {
	// Kind is the failure classification.
	Kind ErrorKind

	// Provider names the backend that produced the failure.
	Provider string

	cause error
}

// NewError wraps cause as a classified provider error.
func NewError(kind ErrorKind, provider string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("llm: %s: %s error: %v", e.Provider, e.Kind, e.cause)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// Is matches both the kind sentinel and the wrapped cause.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConnection:
		return e.Kind == KindConnection
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrRateLimit:
		return e.Kind == KindRateLimit
	case ErrInvalidRequest:
		return e.Kind == KindInvalidRequest
	}
	return false
}

// KindOf returns the classification of err, or KindUnknown for nil and
// unclassified errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrRateLimit):
		return KindRateLimit
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

// Retryable reports whether a failure of this kind may succeed on retry.
// Invalid requests never do; unknown failures are treated as non-retryable
// to avoid hammering a broken backend.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindConnection, KindTimeout, KindRateLimit:
		return true
	default:
		return false
	}
}

// Classify wraps an arbitrary SDK or transport error as a typed *Error for
// the named provider. Already-classified errors pass through unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return NewError(classifyKind(err), provider, err)
}

func classifyKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindConnection
	}
	// Last resort: recognise the status phrases the SDKs put in their
	// error strings.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		return KindRateLimit
	case strings.Contains(msg, "400") || strings.Contains(msg, "404") ||
		strings.Contains(msg, "invalid") || strings.Contains(msg, "not found"):
		return KindInvalidRequest
	case strings.Contains(msg, "connection") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "eof"):
		return KindConnection
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return KindTimeout
	default:
		return KindUnknown
	}
}
