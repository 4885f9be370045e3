// Package errs defines the pipeline-wide error kind taxonomy. Every
// component wraps failures in an *Error carrying a Kind rather than
// returning ad-hoc error strings, so the retry executor, orchestrator, and
// metrics layer can classify a failure without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and propagation decisions (§7).
type Kind string

const (
	Validation     Kind = "validation"
	Authentication Kind = "authentication" // fatal, non-retriable
	RateLimit      Kind = "rate_limit"     // retriable; carries RetryAfter
	Network        Kind = "network"        // retriable
	API            Kind = "api"            // HTTP 5xx retriable, 4xx non-retriable
	Parsing        Kind = "parsing"        // non-retriable at the API layer
	Cache          Kind = "cache"          // never surfaced; degraded to miss
	CircuitOpen    Kind = "circuit_open"   // non-retriable at call site
	Database       Kind = "database"
	Timeout        Kind = "timeout" // retriable
	Configuration  Kind = "configuration" // fatal at startup
)

// Retriable reports whether the retry executor should attempt this kind
// again, independent of any specific error instance's override.
func (k Kind) Retriable() bool {
	switch k {
	case RateLimit, Network, API, Timeout:
		return true
	default:
		return false
	}
}

// Error is the structured error type every component returns. Detail carries
// a human-readable message; RetryAfterSeconds is populated by RateLimit errors per
// the server's advised backoff; Service names the circuit breaker for
// CircuitOpen errors; Fields lists the Parsing error's failing field names.
type Error struct {
	Kind       Kind
	Detail     string
	RetryAfterSeconds float64
	Service    string
	Fields     []string
	cause      error
}

func (e *Error) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s: %s (service=%s)", e.Kind, e.Detail, e.Service)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// Is supports errors.Is(err, errs.New(k, "")) comparisons by kind: a target
// with no Detail and no Service matches any error of the same Kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	if other.Detail == "" && other.Service == "" {
		return e.Kind == other.Kind
	}
	return e.Kind == other.Kind && e.Detail == other.Detail
}

// New builds a structured error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf builds a structured error of the given kind with a formatted detail.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error, preserving it for Unwrap.
func Wrap(kind Kind, cause error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, cause: cause}
}

// WithRetryAfter returns a copy of e carrying a server-advised retry delay.
func (e *Error) WithRetryAfter(seconds float64) *Error {
	cp := *e
	cp.RetryAfterSeconds = seconds
	return &cp
}

// WithService returns a copy of e naming the circuit breaker service.
func (e *Error) WithService(service string) *Error {
	cp := *e
	cp.Service = service
	return &cp
}

// WithFields returns a copy of e naming the parser's failing fields.
func (e *Error) WithFields(fields []string) *Error {
	cp := *e
	cp.Fields = fields
	return &cp
}

// KindOf extracts the Kind of err if it (or something it wraps) is an *Error,
// returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Retriable reports whether err should be retried: it is an *Error whose
// Kind is inherently retriable. RetryAfterSeconds does not affect the answer.
func Retriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.Retriable()
	}
	return false
}
