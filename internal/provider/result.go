package provider

import (
	"time"

	"github.com/taste-trails/localguide/internal/model"
)

// ResultKind discriminates the three Result variants.
type ResultKind int

const (
	// KindSuccess carries a live payload.
	KindSuccess ResultKind = iota
	// KindDegraded carries a payload from the fallback knowledge base.
	KindDegraded
	// KindFailure carries no payload, only the failure classification.
	KindFailure
)

func (k ResultKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindDegraded:
		return "degraded"
	default:
		return "failure"
	}
}

// FailureKind classifies a Failure result.
type FailureKind string

const (
	FailTransient   FailureKind = "transient"
	FailRateLimited FailureKind = "rate_limited"
	FailCircuitOpen FailureKind = "circuit_open"
	FailMalformed   FailureKind = "malformed"
	FailTimeout     FailureKind = "timeout"
	FailUpstream    FailureKind = "upstream"
)

// Result is the tagged union every adapter call resolves to. The
// orchestrator never sees raw payloads or errors outside of it.
type Result struct {
	Provider model.ProviderID
	Kind     ResultKind

	// Payload is set for Success and Degraded.
	Payload *Payload

	// Latency is the wall-clock cost of the call. Near zero on cache
	// hits.
	Latency   time.Duration
	FromCache bool

	// Failure classification, set only for KindFailure.
	Failure       FailureKind
	Detail        string
	RetryEstimate time.Duration
}

// OK reports whether the result carries a usable payload.
func (r Result) OK() bool {
	return r.Kind != KindFailure && r.Payload != nil
}
