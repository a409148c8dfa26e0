// Package routeerr defines the error taxonomy shared by the host-selection
// and proxy packages: the kinds that are genuinely Go errors, propagated
// with %w and matched with errors.Is/errors.As. Terminal request outcomes
// that are reported to operators/metrics rather than propagated as errors
// (missing processId, pool exhaustion) live in internal/lifecycle's Result
// enum instead — that's the seam the Request Lifecycle Interface observes,
// and duplicating it here as errors.New values nobody constructed would
// just be two names for the same thing.
package routeerr

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", Kind) to attach detail
// while keeping errors.Is working.
var (
	// TransportError means a single attempt's connect/TLS/read/write/timeout failed.
	// Never surfaced directly; triggers failover to the next attempt.
	TransportError = errors.New("upstream transport error")

	// BailoutLookupError means the surrogate call failed or returned malformed JSON.
	// Never surfaced to the client; treated as "no override".
	BailoutLookupError = errors.New("bailout lookup error")

	// ConfigurationError means a startup-time validation failure. Aborts boot.
	ConfigurationError = errors.New("configuration error")
)

// BackendStatusError is not a Go error in the traditional sense: a non-2xx
// backend response is a Success outcome per spec §4.5/§7 and is passed
// through to the client verbatim, never wrapped or retried. It has no
// sentinel here on purpose — callers must not construct one to represent it.
