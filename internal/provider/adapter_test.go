package provider

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taste-trails/localguide/internal/cache"
	"github.com/taste-trails/localguide/internal/model"
	"github.com/taste-trails/localguide/internal/observe"
	"github.com/taste-trails/localguide/internal/ratelimit"
	"github.com/taste-trails/localguide/internal/resilience"
)

type stubProvider struct {
	id    model.ProviderID
	ttl   time.Duration
	fetch func(ctx context.Context, req Request) (*Payload, error)
	calls atomic.Int32
}

func (s *stubProvider) Name() model.ProviderID { return s.id }
func (s *stubProvider) TTL() time.Duration     { return s.ttl }
func (s *stubProvider) CacheKey(req Request) string {
	return cache.Key(string(s.id), req.Query.Text)
}
func (s *stubProvider) Fetch(ctx context.Context, req Request) (*Payload, error) {
	s.calls.Add(1)
	return s.fetch(ctx, req)
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func newTestAdapter(p Provider, opts ...AdapterOption) *Adapter {
	gate := ratelimit.NewGate(nil)
	breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	opts = append([]AdapterOption{WithRetryConfig(fastRetry())}, opts...)
	return NewAdapter(p, gate, cache.New(), breaker, opts...)
}

func onePlace(name string) *Payload {
	return &Payload{Candidates: []model.Candidate{{ID: "p1", Name: name, Category: "restaurant"}}}
}

func TestAdapter_SuccessIsCached(t *testing.T) {
	p := &stubProvider{
		id:  model.ProviderSearch,
		ttl: time.Minute,
		fetch: func(ctx context.Context, req Request) (*Payload, error) {
			return onePlace("Gwangjang Market"), nil
		},
	}
	a := newTestAdapter(p)
	req := Request{Query: model.Query{Text: "street food"}}

	first := a.Call(context.Background(), req, ratelimit.PriorityAnonymous)
	require.Equal(t, KindSuccess, first.Kind)
	assert.False(t, first.FromCache)

	second := a.Call(context.Background(), req, ratelimit.PriorityAnonymous)
	require.Equal(t, KindSuccess, second.Kind)
	assert.True(t, second.FromCache)
	assert.Zero(t, second.Latency)
	assert.Equal(t, int32(1), p.calls.Load(), "cache hit must not reach the network")
}

func TestAdapter_ZeroTTLSkipsCache(t *testing.T) {
	p := &stubProvider{
		id:  model.ProviderTextGen,
		ttl: 0,
		fetch: func(ctx context.Context, req Request) (*Payload, error) {
			return &Payload{Text: "prose"}, nil
		},
	}
	a := newTestAdapter(p)
	req := Request{Prompt: "summarize"}

	a.Call(context.Background(), req, ratelimit.PriorityAuthenticated)
	a.Call(context.Background(), req, ratelimit.PriorityAuthenticated)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestAdapter_TransientRetriedThenSucceeds(t *testing.T) {
	p := &stubProvider{id: model.ProviderCultural, ttl: time.Minute}
	p.fetch = func(ctx context.Context, req Request) (*Payload, error) {
		if p.calls.Load() < 3 {
			return nil, resilience.NewTransientError(eris.New("bad gateway"), 502)
		}
		return onePlace("Insadong"), nil
	}
	a := newTestAdapter(p)

	res := a.Call(context.Background(), Request{Query: model.Query{Text: "tea"}}, ratelimit.PriorityAnonymous)
	assert.Equal(t, KindSuccess, res.Kind)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestAdapter_MalformedNotRetried(t *testing.T) {
	p := &stubProvider{id: model.ProviderSearch, ttl: time.Minute}
	p.fetch = func(ctx context.Context, req Request) (*Payload, error) {
		return nil, &resilience.MalformedError{Provider: "search-index", Err: eris.New("bad json")}
	}
	a := newTestAdapter(p)

	res := a.Call(context.Background(), Request{Query: model.Query{Text: "x"}}, ratelimit.PriorityAnonymous)
	require.Equal(t, KindFailure, res.Kind)
	assert.Equal(t, FailMalformed, res.Failure)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestAdapter_TerminalFailureFallsBackDegraded(t *testing.T) {
	p := &stubProvider{id: model.ProviderPlaces, ttl: time.Minute}
	p.fetch = func(ctx context.Context, req Request) (*Payload, error) {
		return nil, eris.New("hard upstream error")
	}
	a := newTestAdapter(p, WithFallback(func(req Request) (*Payload, bool) {
		return onePlace("Bukchon Hanok Village"), true
	}))

	res := a.Call(context.Background(), Request{Query: model.Query{Text: "palace"}}, ratelimit.PriorityAnonymous)
	require.Equal(t, KindDegraded, res.Kind)
	require.NotNil(t, res.Payload)
	assert.Equal(t, "Bukchon Hanok Village", res.Payload.Candidates[0].Name)
}

func TestAdapter_CircuitOpenFailsFast(t *testing.T) {
	p := &stubProvider{id: model.ProviderCultural, ttl: time.Minute}
	p.fetch = func(ctx context.Context, req Request) (*Payload, error) {
		return nil, eris.New("down")
	}
	a := newTestAdapter(p)

	// Trip the breaker with distinct queries so the cache never hits.
	queries := []string{"a", "b", "c", "d", "e"}
	for _, q := range queries {
		a.Call(context.Background(), Request{Query: model.Query{Text: q}}, ratelimit.PriorityAnonymous)
	}

	before := p.calls.Load()
	res := a.Call(context.Background(), Request{Query: model.Query{Text: "f"}}, ratelimit.PriorityAnonymous)
	require.Equal(t, KindFailure, res.Kind)
	assert.Equal(t, FailCircuitOpen, res.Failure)
	assert.Equal(t, before, p.calls.Load(), "open circuit must not reach the network")
}

func TestAdapter_RateLimitedCarriesWaitEstimate(t *testing.T) {
	p := &stubProvider{id: model.ProviderSearch, ttl: time.Minute}
	p.fetch = func(ctx context.Context, req Request) (*Payload, error) {
		return onePlace("x"), nil
	}
	gate := ratelimit.NewGate(map[string]ratelimit.ProviderConfig{
		"search-index": {Rate: 0.001, Burst: 1, QueueDepth: 1},
	})
	a := NewAdapter(p, gate, cache.New(),
		resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		WithRetryConfig(fastRetry()))

	// Drain the bucket, then park one waiter in the queue.
	require.NoError(t, gate.Acquire(context.Background(), "search-index", ratelimit.PriorityAuthenticated))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = gate.Acquire(ctx, "search-index", ratelimit.PriorityAnonymous)
		close(done)
	}()
	require.Eventually(t, func() bool { return gate.QueueDepth("search-index") == 1 },
		time.Second, time.Millisecond)

	res := a.Call(context.Background(), Request{Query: model.Query{Text: "x"}}, ratelimit.PriorityAnonymous)
	require.Equal(t, KindFailure, res.Kind)
	assert.Equal(t, FailRateLimited, res.Failure)
	assert.Greater(t, res.RetryEstimate, time.Duration(0))
	assert.Equal(t, int32(0), p.calls.Load())

	cancel()
	<-done
}

func TestAdapter_EmitsEvents(t *testing.T) {
	collector := observe.NewCollector()
	p := &stubProvider{
		id:  model.ProviderSearch,
		ttl: time.Minute,
		fetch: func(ctx context.Context, req Request) (*Payload, error) {
			return onePlace("x"), nil
		},
	}
	a := newTestAdapter(p, WithSink(collector))
	req := Request{Query: model.Query{Text: "x"}}

	a.Call(context.Background(), req, ratelimit.PriorityAnonymous)
	a.Call(context.Background(), req, ratelimit.PriorityAnonymous)

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.Providers["search-index"].Success)
	assert.Equal(t, int64(1), snap.Providers["search-index"].CacheHits)
}
