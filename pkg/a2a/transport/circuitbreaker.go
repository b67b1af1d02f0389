package transport

import (
	"sync"
	"time"

	"github.com/agentcore/platform/pkg/agenterrors"
)

// breakerState is a destination's circuit state (spec §4.6).
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// BreakerConfig configures one destination's circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures to open (default 5)
	Cooldown         time.Duration // time before a half-open probe (default 30s)
}

// DefaultBreakerConfig matches spec §4.6's defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second}
}

// breaker is a single destination's circuit breaker. State is mutated
// under a short critical section (spec §5).
type breaker struct {
	mu                  sync.Mutex
	cfg                 BreakerConfig
	state               breakerState
	consecutiveFailures int
	consecutiveSuccesses int
	openedAt            time.Time
}

func newBreaker(cfg BreakerConfig) *breaker {
	return &breaker{cfg: cfg, state: stateClosed}
}

// Allow reports whether a call may proceed, transitioning open->half-open
// once the cooldown has elapsed.
func (b *breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateClosed:
		return nil
	case stateOpen:
		if time.Since(b.openedAt) >= b.cfg.Cooldown {
			b.state = stateHalfOpen
			b.consecutiveSuccesses = 0
			return nil
		}
		return agenterrors.New(agenterrors.KindCircuitOpen, "circuit breaker open for destination", nil)
	case stateHalfOpen:
		return nil // admit the probe
	}
	return nil
}

// RecordSuccess closes the breaker after two consecutive successes while
// half-open (spec §4.6), or simply resets the failure counter while closed.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateHalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= 2 {
			b.state = stateClosed
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		}
	case stateClosed:
		b.consecutiveFailures = 0
	}
}

// RecordFailure opens the breaker after FailureThreshold consecutive
// failures, or immediately re-opens it on a failed half-open probe.
func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateHalfOpen:
		b.state = stateOpen
		b.openedAt = time.Now()
		b.consecutiveSuccesses = 0
	case stateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.state = stateOpen
			b.openedAt = time.Now()
		}
	}
}

// breakerRegistry owns one breaker per destination endpoint.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	cfg      BreakerConfig
}

func newBreakerRegistry(cfg BreakerConfig) *breakerRegistry {
	return &breakerRegistry{breakers: make(map[string]*breaker), cfg: cfg}
}

func (r *breakerRegistry) get(destination string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[destination]
	if !ok {
		b = newBreaker(r.cfg)
		r.breakers[destination] = b
	}
	return b
}
