// Package ratelimit implements the per-provider admission gate: a token
// bucket in front of each external API plus a bounded priority queue that
// serves authenticated callers ahead of anonymous ones.
package ratelimit

import (
	"container/heap"
	"context"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taste-trails/localguide/internal/resilience"
)

// Priority orders queued requests. Authenticated callers outrank
// anonymous ones; within a class the queue is FIFO.
type Priority int

const (
	PriorityAnonymous Priority = iota
	PriorityAuthenticated
)

func (p Priority) String() string {
	if p == PriorityAuthenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Decision describes one gate outcome for the observability sink.
type Decision struct {
	Provider      string
	Priority      Priority
	Outcome       string // "permit", "queued", "rejected", "timeout"
	QueueDepth    int
	EstimatedWait time.Duration
}

// ProviderConfig sizes one provider's bucket and queue, matching that
// provider's external quota.
type ProviderConfig struct {
	Rate       rate.Limit // tokens per second
	Burst      int
	QueueDepth int
}

// ErrTimeout is returned when a queued request's deadline expires before
// a token frees up.
var ErrTimeout = eris.New("rate gate: queued request timed out")

type waiter struct {
	priority  Priority
	seq       uint64
	ready     chan struct{}
	cancelled bool
	index     int
}

type waiterQueue []*waiter

func (q waiterQueue) Len() int { return len(q) }

func (q waiterQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q waiterQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waiterQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waiterQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return w
}

type providerGate struct {
	id      string
	limiter *rate.Limiter
	depth   int

	mu    sync.Mutex
	queue waiterQueue
	seq   uint64
	// dispatching is true while the drain goroutine is running.
	dispatching bool

	onDecision func(Decision)
}

// Gate is the process-wide admission gate. Each provider's bucket and
// queue are independent; a single provider's state is serialized.
type Gate struct {
	mu         sync.RWMutex
	providers  map[string]*providerGate
	defaults   ProviderConfig
	onDecision func(Decision)
}

// Option configures the gate.
type Option func(*Gate)

// WithDecisionSink routes every gate decision to fn.
func WithDecisionSink(fn func(Decision)) Option {
	return func(g *Gate) { g.onDecision = fn }
}

// DefaultProviderConfig is used for providers without explicit quota
// configuration.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{Rate: 5, Burst: 5, QueueDepth: 16}
}

// NewGate creates a gate with per-provider quota configs.
func NewGate(configs map[string]ProviderConfig, opts ...Option) *Gate {
	g := &Gate{
		providers: make(map[string]*providerGate),
		defaults:  DefaultProviderConfig(),
	}
	for _, o := range opts {
		o(g)
	}
	for id, cfg := range configs {
		g.providers[id] = g.newProviderGate(id, cfg)
	}
	return g
}

func (g *Gate) newProviderGate(id string, cfg ProviderConfig) *providerGate {
	if cfg.Rate <= 0 {
		cfg.Rate = g.defaults.Rate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = g.defaults.Burst
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = g.defaults.QueueDepth
	}
	return &providerGate{
		id:         id,
		limiter:    rate.NewLimiter(cfg.Rate, cfg.Burst),
		depth:      cfg.QueueDepth,
		onDecision: g.onDecision,
	}
}

func (g *Gate) gateFor(provider string) *providerGate {
	g.mu.RLock()
	pg, ok := g.providers[provider]
	g.mu.RUnlock()
	if ok {
		return pg
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if pg, ok = g.providers[provider]; ok {
		return pg
	}
	pg = g.newProviderGate(provider, g.defaults)
	g.providers[provider] = pg
	return pg
}

// QueueDepth reports the current queue length for a provider.
func (g *Gate) QueueDepth(provider string) int {
	pg := g.gateFor(provider)
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return len(pg.queue)
}

// Acquire obtains a permit for one call to provider. Tokens available:
// immediate permit. Bucket empty: the request queues (authenticated
// ahead of anonymous) until a token refills or ctx expires. Queue full:
// an immediate RateLimitedError carrying the estimated wait.
func (g *Gate) Acquire(ctx context.Context, provider string, priority Priority) error {
	pg := g.gateFor(provider)

	if pg.limiter.Allow() {
		pg.decide(Decision{Provider: provider, Priority: priority, Outcome: "permit"})
		return nil
	}

	pg.mu.Lock()
	if len(pg.queue) >= pg.depth {
		wait := pg.estimateWaitLocked(len(pg.queue))
		pg.mu.Unlock()
		pg.decide(Decision{
			Provider: provider, Priority: priority,
			Outcome: "rejected", QueueDepth: pg.depth, EstimatedWait: wait,
		})
		return &resilience.RateLimitedError{Provider: provider, EstimatedWait: wait}
	}

	pg.seq++
	w := &waiter{priority: priority, seq: pg.seq, ready: make(chan struct{})}
	heap.Push(&pg.queue, w)
	depth := len(pg.queue)
	if !pg.dispatching {
		pg.dispatching = true
		go pg.drain()
	}
	pg.mu.Unlock()

	pg.decide(Decision{Provider: provider, Priority: priority, Outcome: "queued", QueueDepth: depth})

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		pg.mu.Lock()
		w.cancelled = true
		pg.mu.Unlock()
		pg.decide(Decision{Provider: provider, Priority: priority, Outcome: "timeout"})
		return eris.Wrap(ErrTimeout, provider)
	}
}

// drain serves queued waiters as tokens refill. The winner is chosen
// only once a token is in hand, so late-arriving authenticated requests
// still move ahead of anonymous ones already waiting. Exits when the
// queue empties.
func (pg *providerGate) drain() {
	for {
		pg.mu.Lock()
		// Discard waiters whose deadline already fired.
		for len(pg.queue) > 0 && pg.queue[0].cancelled {
			heap.Pop(&pg.queue)
		}
		if len(pg.queue) == 0 {
			pg.dispatching = false
			pg.mu.Unlock()
			return
		}
		pg.mu.Unlock()

		res := pg.limiter.Reserve()
		if !res.OK() {
			// Burst misconfiguration; drop a waiter rather than hang.
			zap.L().Error("rate gate: unreservable token", zap.String("provider", pg.id))
			pg.mu.Lock()
			if len(pg.queue) > 0 {
				close(heap.Pop(&pg.queue).(*waiter).ready)
			}
			pg.mu.Unlock()
			continue
		}
		if delay := res.Delay(); delay > 0 {
			time.Sleep(delay)
		}

		pg.mu.Lock()
		var w *waiter
		for len(pg.queue) > 0 {
			cand := heap.Pop(&pg.queue).(*waiter)
			if !cand.cancelled {
				w = cand
				break
			}
		}
		pg.mu.Unlock()

		if w == nil {
			res.Cancel()
			continue
		}
		close(w.ready)
	}
}

// estimateWaitLocked projects how long a caller at the given queue
// position would wait for a token, from queue depth over refill rate.
func (pg *providerGate) estimateWaitLocked(position int) time.Duration {
	r := float64(pg.limiter.Limit())
	if r <= 0 {
		return time.Duration(math.MaxInt64)
	}
	seconds := float64(position+1) / r
	return time.Duration(seconds * float64(time.Second))
}

func (pg *providerGate) decide(d Decision) {
	if pg.onDecision != nil {
		pg.onDecision(d)
	}
}
