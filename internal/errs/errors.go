// Package errs defines the service-wide error taxonomy. Errors carry a
// semantic kind plus structured details so transport layers can map them to
// status codes without string matching.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies an error semantically.
type Kind string

const (
	KindConfiguration      Kind = "configuration"
	KindUnsupportedModel   Kind = "unsupported_model"
	KindGreeksCalculation  Kind = "greeks_calculation"
	KindDataAccess         Kind = "data_access"
	KindServiceUnavailable Kind = "service_unavailable"
	KindCacheUnavailable   Kind = "cache_unavailable"
	KindTimeout            Kind = "timeout"
	KindNotAuthorized      Kind = "not_authorized"
	KindValidation         Kind = "validation"
	KindCircuitOpen        Kind = "circuit_open"
)

// Retryable reports whether callers may reasonably retry errors of this kind.
// Leaf components never retry on their own; this informs outer layers only.
func (k Kind) Retryable() bool {
	switch k {
	case KindServiceUnavailable, KindTimeout, KindCircuitOpen, KindCacheUnavailable:
		return true
	default:
		return false
	}
}

// Error is the structured error surfaced to callers.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches against another *Error by kind, letting callers write
// errors.Is(err, errs.ServiceUnavailable("")) style checks via sentinel kinds.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// MarshalJSON renders the user-visible {kind, message, details} envelope.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    Kind           `json:"kind"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	}{e.Kind, e.Message, e.Details})
}

// With attaches a detail field, returning the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Configuration(format string, args ...any) *Error {
	return newf(KindConfiguration, format, args...)
}

func UnsupportedModel(format string, args ...any) *Error {
	return newf(KindUnsupportedModel, format, args...)
}

func GreeksCalculation(format string, args ...any) *Error {
	return newf(KindGreeksCalculation, format, args...)
}

func DataAccess(format string, args ...any) *Error {
	return newf(KindDataAccess, format, args...)
}

func ServiceUnavailable(format string, args ...any) *Error {
	return newf(KindServiceUnavailable, format, args...)
}

func CacheUnavailable(format string, args ...any) *Error {
	return newf(KindCacheUnavailable, format, args...)
}

func Timeout(format string, args ...any) *Error {
	return newf(KindTimeout, format, args...)
}

func NotAuthorized(format string, args ...any) *Error {
	return newf(KindNotAuthorized, format, args...)
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func CircuitOpen(format string, args ...any) *Error {
	return newf(KindCircuitOpen, format, args...)
}

// Wrap annotates err with a kind and message. A nil err returns nil.
func Wrap(err error, kind Kind, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	e := newf(kind, format, args...)
	e.Err = err
	return e
}

// KindOf extracts the Kind from err, or empty string for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
