// Package llm defines the Provider interface for text completion backends.
//
// Every backend speaks its own wire format and reports failures in its own
// way: HTTP status codes, error objects inside a 200 body, safety verdicts or
// simply a missing field. Provider adapters hide all of that behind a single
// tagged [Result] so callers can route on the failure kind without knowing
// which backend produced it.
//
// Implementations must be safe for concurrent use and must never panic on a
// partial or unexpected payload.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoCredentials is returned by adapter constructors when the credential
// needed to reach the backend is missing. A provider that fails this way is
// treated as not configured rather than as failing.
var ErrNoCredentials = errors.New("llm: no credentials configured")

// Kind classifies the outcome of a completion call.
type Kind int

const (
	// Success means Result.Text holds a usable answer.
	Success Kind = iota

	// SchemaMismatch means the backend answered, but the payload did not have
	// the expected shape: unparseable JSON, no candidates, no text.
	SchemaMismatch

	// TransportFailure covers network errors, timeouts, non-2xx statuses and
	// provider-declared errors other than rate limiting.
	TransportFailure

	// RateLimited means the backend refused the call due to quota or rate
	// limits.
	RateLimited

	// Blocked means the backend declined to answer on content-safety grounds.
	Blocked
)

// String returns the lower-case name of the kind, used as a log and metric label.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case SchemaMismatch:
		return "schema_mismatch"
	case TransportFailure:
		return "transport_failure"
	case RateLimited:
		return "rate_limited"
	case Blocked:
		return "blocked"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Request is the backend-neutral completion request.
type Request struct {
	// Prompt is the fully assembled prompt text.
	Prompt string

	// MaxOutputTokens caps the answer length. Zero means the provider default.
	MaxOutputTokens int

	// Temperature controls randomness. Zero means the provider default.
	Temperature float64
}

// Result is the outcome of a single completion call.
// Exactly one of Text (for Success) or Detail (for every other kind) is
// meaningful.
type Result struct {
	// Kind classifies the outcome.
	Kind Kind

	// Text is the answer. Set only when Kind is Success.
	Text string

	// Detail is a short human-readable description of the failure.
	Detail string

	// Provider is the ID of the provider that produced the result.
	Provider string
}

// OK reports whether r carries an answer.
func (r Result) OK() bool { return r.Kind == Success }

// Succeeded builds a Success result.
func Succeeded(provider, text string) Result {
	return Result{Kind: Success, Text: text, Provider: provider}
}

// Failed builds a failure result of the given kind.
func Failed(provider string, kind Kind, format string, args ...any) Result {
	return Result{Kind: kind, Detail: fmt.Sprintf(format, args...), Provider: provider}
}

// Provider is the abstraction over any completion backend.
type Provider interface {
	// Name returns the provider ID used in configuration, logs and metrics.
	Name() string

	// Ask sends req to the backend and classifies the response. Ask makes at
	// most one attempt and never returns a Go error: every failure is
	// reported as a Result with a non-Success Kind.
	Ask(ctx context.Context, req Request) Result
}

// TransportFailed builds a TransportFailure result for an error returned by
// the HTTP client, naming timeouts explicitly.
func TransportFailed(provider string, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return Failed(provider, TransportFailure, "timeout: %v", err)
	}
	return Failed(provider, TransportFailure, "%v", err)
}
