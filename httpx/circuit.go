package httpx

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/normanking/contentpipe/logging"
	"github.com/normanking/contentpipe/perr"
)

// CircuitState is the state of a per-host circuit breaker.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitConfig configures a per-host breaker. Grounded on the teacher's
// resilience.CircuitBreakerConfig, simplified from an error-rate sliding
// window to the consecutive-failure counter spec.md §4.5 describes ("open
// after N consecutive failures; half-open probe after cooldown").
type CircuitConfig struct {
	FailureThreshold int           // consecutive failures before opening
	Cooldown         time.Duration // wait before a half-open probe
	HalfOpenAllowed  int           // concurrent probes permitted while half-open
}

func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{FailureThreshold: 5, Cooldown: 30 * time.Second, HalfOpenAllowed: 1}
}

// CircuitBreaker is a single host's breaker; HostBreakers keeps one per host.
type CircuitBreaker struct {
	name   string
	cfg    CircuitConfig
	logger logging.Logger

	state          atomic.Int32
	stateChangedAt atomic.Int64 // unix nano
	consecFail     atomic.Int32
	halfOpenInUse  atomic.Int32
}

func NewCircuitBreaker(name string, cfg CircuitConfig, logger logging.Logger) *CircuitBreaker {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	cb := &CircuitBreaker{name: name, cfg: cfg, logger: logger}
	cb.state.Store(int32(StateClosed))
	cb.stateChangedAt.Store(time.Now().UnixNano())
	return cb
}

func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(cb.state.Load())
}

// CanExecute reports whether a request may proceed, transitioning
// open->half-open once the cooldown elapses.
func (cb *CircuitBreaker) CanExecute() bool {
	switch cb.State() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenInUse.Add(1) <= int32(cb.cfg.HalfOpenAllowed) {
			return true
		}
		cb.halfOpenInUse.Add(-1)
		return false
	case StateOpen:
		changedAt := time.Unix(0, cb.stateChangedAt.Load())
		if time.Since(changedAt) >= cb.cfg.Cooldown {
			cb.transition(StateOpen, StateHalfOpen)
			return cb.CanExecute()
		}
		return false
	default:
		return false
	}
}

// RecordSuccess closes the circuit (or keeps it closed).
func (cb *CircuitBreaker) RecordSuccess() {
	cb.consecFail.Store(0)
	if cb.State() == StateHalfOpen {
		cb.halfOpenInUse.Add(-1)
		cb.transition(StateHalfOpen, StateClosed)
	}
}

// RecordFailure counts a failure and opens the circuit past threshold.
func (cb *CircuitBreaker) RecordFailure() {
	if cb.State() == StateHalfOpen {
		cb.halfOpenInUse.Add(-1)
		cb.transition(StateHalfOpen, StateOpen)
		return
	}
	n := cb.consecFail.Add(1)
	if n >= int32(cb.cfg.FailureThreshold) {
		cb.transition(StateClosed, StateOpen)
	}
}

func (cb *CircuitBreaker) transition(from, to CircuitState) {
	if !cb.state.CompareAndSwap(int32(from), int32(to)) {
		return
	}
	cb.stateChangedAt.Store(time.Now().UnixNano())
	cb.logger.Info("circuit breaker state change", map[string]interface{}{
		"host": cb.name, "from": from.String(), "to": to.String(),
	})
}

// HostBreakers lazily creates and retains one CircuitBreaker per host.
type HostBreakers struct {
	mu       sync.Mutex
	cfg      CircuitConfig
	logger   logging.Logger
	breakers map[string]*CircuitBreaker
}

func NewHostBreakers(cfg CircuitConfig, logger logging.Logger) *HostBreakers {
	return &HostBreakers{cfg: cfg, logger: logger, breakers: make(map[string]*CircuitBreaker)}
}

func (h *HostBreakers) For(host string) *CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	cb, ok := h.breakers[host]
	if !ok {
		cb = NewCircuitBreaker(host, h.cfg, h.logger)
		h.breakers[host] = cb
	}
	return cb
}

func circuitOpenError(host string) error {
	return fmt.Errorf("%s: %w", host, perr.ErrCircuitOpen)
}
