package model

import "time"

// SummaryKind tells the caller how the summary text was produced.
type SummaryKind string

const (
	// SummaryProse is natural language from the generation provider.
	SummaryProse SummaryKind = "prose"
	// SummaryStructured is the deterministic non-prose rendering used
	// when generation is unavailable or the request budget ran out.
	SummaryStructured SummaryKind = "structured"
)

// RankedRecommendation is the final output of one orchestration request.
// Candidate ordering is significant and is the contract surfaced to the
// caller. The core never returns an error in place of one of these:
// degradation is expressed through Notice, SummaryKind and Degraded.
type RankedRecommendation struct {
	RequestID  string      `json:"request_id"`
	Candidates []Candidate `json:"candidates"`

	Summary     string      `json:"summary"`
	SummaryKind SummaryKind `json:"summary_kind"`

	// Notice carries an advisory when the response is degraded
	// (provider outages, fallback-only data). Empty on a clean run.
	Notice string `json:"notice,omitempty"`

	// Degraded is true when any contributing provider fell back to
	// local knowledge or failed outright.
	Degraded bool `json:"degraded"`

	// Sources lists the providers (or "fallback") that contributed at
	// least one candidate.
	Sources []string `json:"sources"`

	Elapsed     time.Duration `json:"elapsed"`
	GeneratedAt time.Time     `json:"generated_at"`
}
