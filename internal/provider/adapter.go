package provider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/taste-trails/localguide/internal/cache"
	"github.com/taste-trails/localguide/internal/model"
	"github.com/taste-trails/localguide/internal/observe"
	"github.com/taste-trails/localguide/internal/ratelimit"
	"github.com/taste-trails/localguide/internal/resilience"
)

// Fallback produces a degraded payload from local knowledge when the
// live provider is unavailable. ok=false means no coverage for this
// request.
type Fallback func(req Request) (payload *Payload, ok bool)

// Adapter wraps one Provider with the full resilience pipeline: rate
// gate, cache read-through, circuit-protected retried call, and
// knowledge base fallback. Every call resolves to exactly one Result.
type Adapter struct {
	provider Provider
	gate     *ratelimit.Gate
	cache    *cache.Cache
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	fallback Fallback
	sink     observe.Sink

	nowFunc func() time.Time
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithFallback sets the degraded-payload source.
func WithFallback(fn Fallback) AdapterOption {
	return func(a *Adapter) { a.fallback = fn }
}

// WithSink routes call events to an observability sink.
func WithSink(s observe.Sink) AdapterOption {
	return func(a *Adapter) { a.sink = s }
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) AdapterOption {
	return func(a *Adapter) { a.retry = cfg }
}

// NewAdapter wires one provider into the shared gate and cache with its
// own circuit breaker.
func NewAdapter(p Provider, gate *ratelimit.Gate, c *cache.Cache, breaker *resilience.CircuitBreaker, opts ...AdapterOption) *Adapter {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger(string(p.Name()), "fetch")
	a := &Adapter{
		provider: p,
		gate:     gate,
		cache:    c,
		breaker:  breaker,
		retry:    retry,
		nowFunc:  time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Name returns the wrapped provider's id.
func (a *Adapter) Name() model.ProviderID { return a.provider.Name() }

// Call runs the full pipeline for one request. It never returns an
// error: every outcome, including total provider failure, is a Result
// variant.
func (a *Adapter) Call(ctx context.Context, req Request, priority ratelimit.Priority) Result {
	id := a.provider.Name()

	if err := a.gate.Acquire(ctx, string(id), priority); err != nil {
		var rl *resilience.RateLimitedError
		if errors.As(err, &rl) {
			return a.settle(req, Result{
				Provider:      id,
				Failure:       FailRateLimited,
				Detail:        err.Error(),
				RetryEstimate: rl.EstimatedWait,
			})
		}
		return a.settle(req, Result{Provider: id, Failure: FailTimeout, Detail: err.Error()})
	}

	key := a.provider.CacheKey(req)
	ttl := a.provider.TTL()
	if ttl > 0 {
		if v, ok := a.cache.Get(key); ok {
			payload := v.(*Payload)
			a.emit(observe.Event{Provider: string(id), Outcome: observe.OutcomeCacheHit})
			return Result{Provider: id, Kind: KindSuccess, Payload: payload, FromCache: true}
		}
	}

	start := a.nowFunc()
	payload, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*Payload, error) {
		return resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*Payload, error) {
			return a.provider.Fetch(ctx, req)
		})
	})
	latency := a.nowFunc().Sub(start)

	if err == nil {
		a.cache.Put(key, payload, ttl)
		a.emit(observe.Event{Provider: string(id), Outcome: observe.OutcomeSuccess, Latency: latency})
		return Result{Provider: id, Kind: KindSuccess, Payload: payload, Latency: latency}
	}

	return a.settle(req, Result{
		Provider: id,
		Latency:  latency,
		Failure:  classify(ctx, err),
		Detail:   err.Error(),
	})
}

// settle resolves a terminal failure: a Degraded result when the
// knowledge base covers this provider kind, otherwise the Failure
// itself. The observability event is emitted here.
func (a *Adapter) settle(req Request, failed Result) Result {
	if a.fallback != nil {
		if payload, ok := a.fallback(req); ok {
			a.emit(observe.Event{
				Provider: string(failed.Provider),
				Outcome:  observe.OutcomeDegraded,
				Latency:  failed.Latency,
				Detail:   string(failed.Failure),
			})
			return Result{
				Provider: failed.Provider,
				Kind:     KindDegraded,
				Payload:  payload,
				Latency:  failed.Latency,
			}
		}
	}
	a.emit(observe.Event{
		Provider: string(failed.Provider),
		Outcome:  observe.OutcomeFailure,
		Latency:  failed.Latency,
		Detail:   string(failed.Failure),
	})
	failed.Kind = KindFailure
	return failed
}

func (a *Adapter) emit(e observe.Event) {
	if a.sink != nil {
		a.sink.Record(e)
		return
	}
	zap.L().Debug("provider call",
		zap.String("provider", e.Provider),
		zap.String("outcome", string(e.Outcome)),
		zap.Duration("latency", e.Latency),
	)
}

// classify maps a terminal error onto the failure taxonomy.
func classify(ctx context.Context, err error) FailureKind {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return FailCircuitOpen
	case isMalformed(err):
		return FailMalformed
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		return FailTimeout
	case resilience.IsTransient(err):
		return FailTransient
	default:
		return FailUpstream
	}
}

func isMalformed(err error) bool {
	var me *resilience.MalformedError
	return errors.As(err, &me)
}
