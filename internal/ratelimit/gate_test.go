package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/taste-trails/localguide/internal/resilience"
)

func drainBucket(t *testing.T, g *Gate, provider string, burst int) {
	t.Helper()
	for i := 0; i < burst; i++ {
		require.NoError(t, g.Acquire(context.Background(), provider, PriorityAuthenticated))
	}
}

func TestGate_ImmediatePermitWhileTokensRemain(t *testing.T) {
	g := NewGate(map[string]ProviderConfig{
		"search-index": {Rate: 1, Burst: 3, QueueDepth: 2},
	})
	for i := 0; i < 3; i++ {
		assert.NoError(t, g.Acquire(context.Background(), "search-index", PriorityAnonymous))
	}
}

func TestGate_RejectsWhenQueueFull_WithWaitEstimate(t *testing.T) {
	g := NewGate(map[string]ProviderConfig{
		"map-places": {Rate: 0.001, Burst: 1, QueueDepth: 1},
	})
	drainBucket(t, g, "map-places", 1)

	// One waiter fits in the queue.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queued := make(chan error, 1)
	go func() { queued <- g.Acquire(ctx, "map-places", PriorityAnonymous) }()

	require.Eventually(t, func() bool { return g.QueueDepth("map-places") == 1 },
		time.Second, time.Millisecond)

	// The next request finds the queue full and is rejected immediately.
	err := g.Acquire(context.Background(), "map-places", PriorityAnonymous)
	var rl *resilience.RateLimitedError
	require.True(t, errors.As(err, &rl), "expected RateLimitedError, got %v", err)
	assert.Equal(t, "map-places", rl.Provider)
	assert.Greater(t, rl.EstimatedWait, time.Duration(0))

	cancel()
	<-queued
}

func TestGate_QueuedDeadlineBecomesTimeout(t *testing.T) {
	g := NewGate(map[string]ProviderConfig{
		"cultural-similarity": {Rate: 0.001, Burst: 1, QueueDepth: 4},
	})
	drainBucket(t, g, "cultural-similarity", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx, "cultural-similarity", PriorityAnonymous)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGate_AuthenticatedServedBeforeAnonymous(t *testing.T) {
	g := NewGate(map[string]ProviderConfig{
		"search-index": {Rate: rate.Limit(20), Burst: 1, QueueDepth: 16},
	})
	drainBucket(t, g, "search-index", 1)

	var mu sync.Mutex
	var order []Priority
	var wg sync.WaitGroup

	enqueue := func(p Priority) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(context.Background(), "search-index", p); err == nil {
				mu.Lock()
				order = append(order, p)
				mu.Unlock()
			}
		}()
	}

	// Two anonymous requests queue first...
	enqueue(PriorityAnonymous)
	enqueue(PriorityAnonymous)
	require.Eventually(t, func() bool { return g.QueueDepth("search-index") >= 2 },
		time.Second, time.Millisecond)

	// ...then two authenticated ones arrive late.
	enqueue(PriorityAuthenticated)
	enqueue(PriorityAuthenticated)

	wg.Wait()

	require.Len(t, order, 4)
	assert.Equal(t, PriorityAuthenticated, order[0])
	assert.Equal(t, PriorityAuthenticated, order[1])
	assert.Equal(t, PriorityAnonymous, order[2])
	assert.Equal(t, PriorityAnonymous, order[3])
}

func TestGate_DecisionSink(t *testing.T) {
	var mu sync.Mutex
	var outcomes []string
	g := NewGate(map[string]ProviderConfig{
		"search-index": {Rate: 1, Burst: 1, QueueDepth: 1},
	}, WithDecisionSink(func(d Decision) {
		mu.Lock()
		outcomes = append(outcomes, d.Outcome)
		mu.Unlock()
	}))

	require.NoError(t, g.Acquire(context.Background(), "search-index", PriorityAuthenticated))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 1)
	assert.Equal(t, "permit", outcomes[0])
}

func TestGate_UnknownProviderUsesDefaults(t *testing.T) {
	g := NewGate(nil)
	assert.NoError(t, g.Acquire(context.Background(), "brand-new", PriorityAnonymous))
}
