package retry

import (
	"fmt"
	"sync"
	"time"
)

// ── Circuit breaker state ────────────────────────────────────────────

// State is where a [CircuitBreaker] stands.
type State int

const (
	// StateClosed lets every attempt through.
	StateClosed State = iota
	// StateOpen rejects attempts until the reset timeout has passed.
	StateOpen
	// StateHalfOpen lets probes through to see whether the host recovered.
	StateHalfOpen
)

func (s State) String() string {
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

// OpenError is returned instead of calling the operation while the
// breaker is open.
type OpenError struct {
	Key      string
	Failures int
	RetryIn  time.Duration
}

func (e *OpenError) Error() string {
	target := "host"
	if e.Key != "" {
		target = e.Key
	}
	return fmt.Sprintf("%s unreachable after %d consecutive failures, retry in %v",
		target, e.Failures, e.RetryIn)
}

// ── Configuration ────────────────────────────────────────────────────

// CircuitBreakerConfig configures a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// MaxFailures opens the circuit after that many consecutive
	// failures (default 3).
	MaxFailures int
	// ResetTimeout is how long the circuit stays open (default 30s).
	ResetTimeout time.Duration
	// HalfOpenMax successes in a row close the circuit again (default 1).
	HalfOpenMax int
	// IsFailure decides which errors count against the host.  A nil
	// func counts every error.  A wrong password says nothing about
	// whether the server is up, so callers usually filter those out.
	IsFailure func(err error) bool
	// OnStateChange runs under the lock on every transition.
	OnStateChange func(from, to State)
}

// DefaultCircuitBreakerConfig returns the settings used for `open`.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  3,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  1,
	}
}

// ── CircuitBreaker ───────────────────────────────────────────────────

// CircuitBreaker short-circuits attempts against a host that keeps
// failing.
type CircuitBreaker struct {
	mu            sync.Mutex
	key           string
	state         State
	failures      int
	successes     int
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	lastFailure   time.Time
	isFailure     func(error) bool
	onStateChange func(from, to State)
	now           func() time.Time
}

// NewCircuitBreaker creates a breaker from cfg; nil means defaults.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	cb := &CircuitBreaker{
		state:         StateClosed,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		isFailure:     cfg.IsFailure,
		onStateChange: cfg.OnStateChange,
		now:           time.Now,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = 3
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = 30 * time.Second
	}
	if cb.halfOpenMax <= 0 {
		cb.halfOpenMax = 1
	}
	return cb
}

// Execute runs fn unless the circuit is open, in which case an
// [*OpenError] is returned and fn is not called.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err)
	return err
}

// CurrentState returns the breaker's state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the circuit and forgets past failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.successes = 0
	cb.transition(StateClosed)
}

// ── internal ─────────────────────────────────────────────────────────

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	elapsed := cb.now().Sub(cb.lastFailure)
	if elapsed >= cb.resetTimeout {
		cb.transition(StateHalfOpen)
		return nil
	}
	return &OpenError{
		Key:      cb.key,
		Failures: cb.failures,
		RetryIn:  (cb.resetTimeout - elapsed).Round(time.Second),
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && (cb.isFailure == nil || cb.isFailure(err)) {
		cb.failures++
		cb.successes = 0
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return
	}

	// The host answered, even if the operation itself was refused.
	cb.successes++
	switch cb.state {
	case StateHalfOpen:
		if cb.successes >= cb.halfOpenMax {
			cb.failures = 0
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

// ── Per-host breakers ────────────────────────────────────────────────

// Breakers hands out one [CircuitBreaker] per server address, all built
// from the same config.
type Breakers struct {
	cfg CircuitBreakerConfig
	mu  sync.Mutex
	m   map[string]*CircuitBreaker
}

// NewBreakers returns an empty set; nil cfg means defaults.
func NewBreakers(cfg *CircuitBreakerConfig) *Breakers {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	return &Breakers{cfg: *cfg, m: make(map[string]*CircuitBreaker)}
}

// For returns the breaker for key, creating it on first use.
func (b *Breakers) For(key string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.m[key]
	if !ok {
		cfg := b.cfg
		cb = NewCircuitBreaker(&cfg)
		cb.key = key
		b.m[key] = cb
	}
	return cb
}
