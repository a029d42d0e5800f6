// Package observe collects per-provider call outcomes and exposes a
// point-in-time status snapshot for the status command and endpoint.
package observe

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taste-trails/localguide/internal/resilience"
)

// Outcome classifies one provider call as seen by the orchestrator.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailure  Outcome = "failure"
	OutcomeCacheHit Outcome = "cache_hit"
)

// Event is one provider call outcome.
type Event struct {
	Provider string
	Outcome  Outcome
	Latency  time.Duration
	Detail   string
	At       time.Time
}

// Sink receives call events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(Event)
}

// ProviderSnapshot aggregates one provider's counters.
type ProviderSnapshot struct {
	Success      int64         `json:"success"`
	Degraded     int64         `json:"degraded"`
	Failure      int64         `json:"failure"`
	CacheHits    int64         `json:"cache_hits"`
	AvgLatency   time.Duration `json:"avg_latency"`
	LastFailure  time.Time     `json:"last_failure,omitempty"`
	CircuitState string        `json:"circuit_state"`
}

// GateSnapshot aggregates one provider's rate-gate decisions.
type GateSnapshot struct {
	Permits  int64 `json:"permits"`
	Queued   int64 `json:"queued"`
	Rejected int64 `json:"rejected"`
	Timeouts int64 `json:"timeouts"`
}

// Snapshot is the full status view at one instant.
type Snapshot struct {
	Providers   map[string]ProviderSnapshot `json:"providers"`
	Gate        map[string]GateSnapshot     `json:"gate"`
	CacheHits   uint64                      `json:"cache_hits"`
	CacheMisses uint64                      `json:"cache_misses"`
	QueueDepths map[string]int              `json:"queue_depths"`
	GeneratedAt time.Time                   `json:"generated_at"`
}

type providerStats struct {
	success, degraded, failure, cacheHits int64
	totalLatency                          time.Duration
	timedCalls                            int64
	lastFailure                           time.Time
}

// Collector is the default Sink. It counts outcomes per provider and
// logs each event; snapshots fold in circuit, cache, and queue state
// via registered probes.
type Collector struct {
	mu    sync.Mutex
	stats map[string]*providerStats
	gates map[string]*GateSnapshot

	circuitProbe func() map[string]resilience.CircuitState
	cacheProbe   func() (hits, misses uint64)
	queueProbe   func() map[string]int

	log *zap.Logger
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithCircuitProbe registers the circuit-state source for snapshots.
func WithCircuitProbe(fn func() map[string]resilience.CircuitState) CollectorOption {
	return func(c *Collector) { c.circuitProbe = fn }
}

// WithCacheProbe registers the cache-counter source for snapshots.
func WithCacheProbe(fn func() (hits, misses uint64)) CollectorOption {
	return func(c *Collector) { c.cacheProbe = fn }
}

// WithQueueProbe registers the rate-gate queue-depth source.
func WithQueueProbe(fn func() map[string]int) CollectorOption {
	return func(c *Collector) { c.queueProbe = fn }
}

// NewCollector creates an empty collector.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		stats: make(map[string]*providerStats),
		gates: make(map[string]*GateSnapshot),
		log:   zap.L(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Record implements Sink.
func (c *Collector) Record(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	c.mu.Lock()
	s, ok := c.stats[e.Provider]
	if !ok {
		s = &providerStats{}
		c.stats[e.Provider] = s
	}
	switch e.Outcome {
	case OutcomeSuccess:
		s.success++
		s.totalLatency += e.Latency
		s.timedCalls++
	case OutcomeDegraded:
		s.degraded++
	case OutcomeFailure:
		s.failure++
		s.lastFailure = e.At
	case OutcomeCacheHit:
		s.cacheHits++
	}
	c.mu.Unlock()

	fields := []zap.Field{
		zap.String("provider", e.Provider),
		zap.String("outcome", string(e.Outcome)),
		zap.Duration("latency", e.Latency),
	}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}
	if e.Outcome == OutcomeFailure {
		c.log.Warn("provider call", fields...)
	} else {
		c.log.Debug("provider call", fields...)
	}
}

// RecordGateDecision counts one rate-gate admission decision. Outcomes
// follow the gate's vocabulary: permit, queued, rejected, timeout.
func (c *Collector) RecordGateDecision(provider, outcome string, queueDepth int, estimatedWait time.Duration) {
	c.mu.Lock()
	g, ok := c.gates[provider]
	if !ok {
		g = &GateSnapshot{}
		c.gates[provider] = g
	}
	switch outcome {
	case "permit":
		g.Permits++
	case "queued":
		g.Queued++
	case "rejected":
		g.Rejected++
	case "timeout":
		g.Timeouts++
	}
	c.mu.Unlock()

	fields := []zap.Field{
		zap.String("provider", provider),
		zap.String("outcome", outcome),
		zap.Int("queue_depth", queueDepth),
	}
	if estimatedWait > 0 {
		fields = append(fields, zap.Duration("estimated_wait", estimatedWait))
	}
	if outcome == "rejected" || outcome == "timeout" {
		c.log.Warn("rate gate decision", fields...)
	} else {
		c.log.Debug("rate gate decision", fields...)
	}
}

// Snapshot returns the current status view.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{
		Providers:   make(map[string]ProviderSnapshot),
		Gate:        make(map[string]GateSnapshot),
		GeneratedAt: time.Now().UTC(),
	}

	var circuits map[string]resilience.CircuitState
	if c.circuitProbe != nil {
		circuits = c.circuitProbe()
	}

	c.mu.Lock()
	for id, s := range c.stats {
		ps := ProviderSnapshot{
			Success:     s.success,
			Degraded:    s.degraded,
			Failure:     s.failure,
			CacheHits:   s.cacheHits,
			LastFailure: s.lastFailure,
		}
		if s.timedCalls > 0 {
			ps.AvgLatency = s.totalLatency / time.Duration(s.timedCalls)
		}
		snap.Providers[id] = ps
	}
	for id, g := range c.gates {
		snap.Gate[id] = *g
	}
	c.mu.Unlock()

	for id, state := range circuits {
		ps := snap.Providers[id]
		ps.CircuitState = state.String()
		snap.Providers[id] = ps
	}
	if c.cacheProbe != nil {
		snap.CacheHits, snap.CacheMisses = c.cacheProbe()
	}
	if c.queueProbe != nil {
		snap.QueueDepths = c.queueProbe()
	}
	return snap
}
