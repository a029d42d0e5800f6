package observe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taste-trails/localguide/internal/resilience"
)

func TestCollector_CountsOutcomes(t *testing.T) {
	c := NewCollector()

	c.Record(Event{Provider: "search-index", Outcome: OutcomeSuccess, Latency: 100 * time.Millisecond})
	c.Record(Event{Provider: "search-index", Outcome: OutcomeSuccess, Latency: 300 * time.Millisecond})
	c.Record(Event{Provider: "search-index", Outcome: OutcomeCacheHit})
	c.Record(Event{Provider: "map-places", Outcome: OutcomeFailure, Detail: "timeout"})
	c.Record(Event{Provider: "map-places", Outcome: OutcomeDegraded})

	snap := c.Snapshot()

	search := snap.Providers["search-index"]
	assert.Equal(t, int64(2), search.Success)
	assert.Equal(t, int64(1), search.CacheHits)
	assert.Equal(t, 200*time.Millisecond, search.AvgLatency)

	places := snap.Providers["map-places"]
	assert.Equal(t, int64(1), places.Failure)
	assert.Equal(t, int64(1), places.Degraded)
	assert.False(t, places.LastFailure.IsZero())
}

func TestCollector_SnapshotFoldsInProbes(t *testing.T) {
	c := NewCollector(
		WithCircuitProbe(func() map[string]resilience.CircuitState {
			return map[string]resilience.CircuitState{"search-index": resilience.CircuitOpen}
		}),
		WithCacheProbe(func() (uint64, uint64) { return 7, 3 }),
		WithQueueProbe(func() map[string]int { return map[string]int{"map-places": 2} }),
	)
	c.Record(Event{Provider: "search-index", Outcome: OutcomeFailure})

	snap := c.Snapshot()
	require.Contains(t, snap.Providers, "search-index")
	assert.Equal(t, "open", snap.Providers["search-index"].CircuitState)
	assert.Equal(t, uint64(7), snap.CacheHits)
	assert.Equal(t, uint64(3), snap.CacheMisses)
	assert.Equal(t, 2, snap.QueueDepths["map-places"])
}

func TestCollector_CountsGateDecisions(t *testing.T) {
	c := NewCollector()

	c.RecordGateDecision("cultural-similarity", "permit", 0, 0)
	c.RecordGateDecision("cultural-similarity", "permit", 0, 0)
	c.RecordGateDecision("cultural-similarity", "queued", 3, 0)
	c.RecordGateDecision("cultural-similarity", "rejected", 16, 2*time.Second)
	c.RecordGateDecision("map-places", "timeout", 0, 0)

	snap := c.Snapshot()

	cultural := snap.Gate["cultural-similarity"]
	assert.Equal(t, int64(2), cultural.Permits)
	assert.Equal(t, int64(1), cultural.Queued)
	assert.Equal(t, int64(1), cultural.Rejected)
	assert.Equal(t, int64(1), snap.Gate["map-places"].Timeouts)
}

func TestCollector_ProbeOnlyProviderAppears(t *testing.T) {
	c := NewCollector(WithCircuitProbe(func() map[string]resilience.CircuitState {
		return map[string]resilience.CircuitState{"cultural-similarity": resilience.CircuitClosed}
	}))

	snap := c.Snapshot()
	assert.Equal(t, "closed", snap.Providers["cultural-similarity"].CircuitState)
}
