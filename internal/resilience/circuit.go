package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the state of one provider's circuit breaker.
type CircuitState int

const (
	// CircuitClosed is normal operation; requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects all requests without touching the network.
	CircuitOpen
	// CircuitHalfOpen allows exactly one probe request through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit
// is open (or a half-open probe is already in flight).
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls one breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens. Default: 5.
	FailureThreshold int

	// CoolDown is how long the circuit stays open before allowing a
	// half-open probe. A probe failure doubles the cool-down, up to
	// CoolDownCap. Default: 30s, cap 8x.
	CoolDown    time.Duration
	CoolDownCap time.Duration

	// ShouldTrip overrides which errors count toward the threshold.
	// Nil counts every error.
	ShouldTrip func(err error) bool

	// OnStateChange is invoked on every transition.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the production defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
		CoolDownCap:      4 * time.Minute,
	}
}

// CircuitBreaker guards a single provider. Access to its state is
// serialized; breakers for different providers are independent.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failures        int
	openedAt        time.Time
	currentCoolDown time.Duration
	probeInFlight   bool

	nowFunc func() time.Time // test injection
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.CoolDownCap <= 0 {
		cfg.CoolDownCap = 8 * cfg.CoolDown
	}
	return &CircuitBreaker{
		cfg:             cfg,
		state:           CircuitClosed,
		currentCoolDown: cfg.CoolDown,
		nowFunc:         time.Now,
	}
}

// Execute runs fn through the breaker. Returns ErrCircuitOpen without
// calling fn when the circuit is open or a probe is already running.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allowRequest(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.recordResult(err)
	return err
}

// ExecuteVal is Execute preserving a return value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.allowRequest(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	cb.recordResult(err)
	return val, err
}

// State returns the effective state, accounting for cool-down expiry.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.currentCoolDown {
		return CircuitHalfOpen
	}
	return cb.state
}

// Counters exposes failure count and state for observability.
func (cb *CircuitBreaker) Counters() (failures int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures, cb.state
}

// Reset forces the breaker closed. Used by tests and manual recovery.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	old := cb.state
	cb.state = CircuitClosed
	cb.failures = 0
	cb.probeInFlight = false
	cb.currentCoolDown = cb.cfg.CoolDown
	if old != CircuitClosed && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(old, CircuitClosed)
	}
}

func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if cb.nowFunc().Sub(cb.openedAt) >= cb.currentCoolDown {
			cb.transition(CircuitHalfOpen)
			cb.probeInFlight = true
			return nil
		}
		return ErrCircuitOpen
	case CircuitHalfOpen:
		// One probe at a time.
		if cb.probeInFlight {
			return ErrCircuitOpen
		}
		cb.probeInFlight = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	shouldTrip := cb.cfg.ShouldTrip
	if shouldTrip == nil {
		shouldTrip = func(e error) bool { return e != nil }
	}

	if err == nil || !shouldTrip(err) {
		switch cb.state {
		case CircuitHalfOpen:
			// Probe succeeded: close and reset everything.
			cb.transition(CircuitClosed)
			cb.failures = 0
			cb.probeInFlight = false
			cb.currentCoolDown = cb.cfg.CoolDown
		case CircuitClosed:
			cb.failures = 0
		}
		return
	}

	cb.failures++

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.open()
		}
	case CircuitHalfOpen:
		// Probe failed: reopen with a doubled cool-down.
		cb.probeInFlight = false
		cb.currentCoolDown *= 2
		if cb.currentCoolDown > cb.cfg.CoolDownCap {
			cb.currentCoolDown = cb.cfg.CoolDownCap
		}
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.nowFunc()
	cb.transition(CircuitOpen)
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// ProviderBreakers holds one breaker per provider id.
type ProviderBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
	onChange func(provider string, from, to CircuitState)
}

// NewProviderBreakers creates a registry of per-provider breakers.
// onChange, if non-nil, receives every state transition.
func NewProviderBreakers(cfg CircuitBreakerConfig, onChange func(provider string, from, to CircuitState)) *ProviderBreakers {
	return &ProviderBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
		onChange: onChange,
	}
}

// Get returns the breaker for provider, creating one if needed.
func (pb *ProviderBreakers) Get(provider string) *CircuitBreaker {
	pb.mu.RLock()
	cb, ok := pb.breakers[provider]
	pb.mu.RUnlock()
	if ok {
		return cb
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()
	if cb, ok = pb.breakers[provider]; ok {
		return cb
	}
	cfg := pb.cfg
	if pb.onChange != nil {
		cfg.OnStateChange = func(from, to CircuitState) {
			pb.onChange(provider, from, to)
		}
	}
	cb = NewCircuitBreaker(cfg)
	pb.breakers[provider] = cb
	return cb
}

// States snapshots all breaker states.
func (pb *ProviderBreakers) States() map[string]CircuitState {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	states := make(map[string]CircuitState, len(pb.breakers))
	for name, cb := range pb.breakers {
		states[name] = cb.State()
	}
	return states
}
