package syncbox

import (
	"sync"
	"time"
)

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// BreakerState is the circuit breaker's current mode.
type BreakerState string

const (
	// BreakerClosed allows all requests.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen rejects all requests until the cooldown elapses.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen allows exactly one probe request.
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerSnapshot is a point-in-time view of the breaker for monitoring.
type BreakerSnapshot struct {
	State        BreakerState `json:"state"`
	FailureCount int          `json:"failureCount"`
	SuccessCount int          `json:"successCount"`
	LastFailure  time.Time    `json:"lastFailure,omitzero"`
}

// CircuitBreaker gates remote calls based on recent availability failures.
// It must be fed only remote-health signals: conflicts and permanent
// client-side failures do not count against it.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        BreakerState
	failureCount int
	successCount int
	lastFailure  time.Time
	probing      bool

	threshold int
	cooldown  time.Duration
	window    time.Duration
	clock     Clock
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerThreshold sets the consecutive-failure count that opens the breaker.
func WithBreakerThreshold(threshold int) BreakerOption {
	return func(b *CircuitBreaker) {
		b.threshold = threshold
	}
}

// WithBreakerCooldown sets how long the breaker stays open before a half-open probe.
func WithBreakerCooldown(cooldown time.Duration) BreakerOption {
	return func(b *CircuitBreaker) {
		b.cooldown = cooldown
	}
}

// WithBreakerWindow sets the rolling window; failures older than the window
// no longer count toward the threshold. Defaults to the cooldown.
func WithBreakerWindow(window time.Duration) BreakerOption {
	return func(b *CircuitBreaker) {
		b.window = window
	}
}

// WithBreakerClock sets the time source.
func WithBreakerClock(clock Clock) BreakerOption {
	return func(b *CircuitBreaker) {
		b.clock = clock
	}
}

// NewCircuitBreaker constructs a closed breaker with defaults applied.
func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	b := &CircuitBreaker{state: BreakerClosed}
	for _, opt := range opts {
		opt(b)
	}
	if b.threshold <= 0 {
		b.threshold = defaultBreakerThreshold
	}
	if b.cooldown <= 0 {
		b.cooldown = defaultBreakerCooldown
	}
	if b.window <= 0 {
		b.window = b.cooldown
	}
	if b.clock == nil {
		b.clock = SystemClock{}
	}

	return b
}

// Allow reports whether a request may be attempted. While open it returns
// false until the cooldown elapses, then transitions to half-open and admits
// exactly one in-flight probe until RecordSuccess or RecordFailure resolves it.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.clock.Now().Sub(b.lastFailure) < b.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probing = true

		return true
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true

		return true
	default:
		return false
	}
}

// RecordSuccess notes a successful request. In half-open it closes the
// breaker and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount++
	b.probing = false
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.failureCount = 0
	}
}

// RecordFailure notes a remote-availability failure. It reopens a half-open
// breaker immediately and opens a closed one when the failure count within
// the rolling window reaches the threshold.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.window {
		b.failureCount = 0
	}
	b.failureCount++
	b.lastFailure = now
	b.probing = false

	if b.state == BreakerHalfOpen || b.failureCount >= b.threshold {
		b.state = BreakerOpen
	}
}

// releaseProbe returns an unused half-open probe slot when an Allow call was
// not followed by a send (for example a lost lease race).
func (b *CircuitBreaker) releaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
}

// Reset forces the breaker closed with counts zeroed (operator override).
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failureCount = 0
	b.successCount = 0
	b.lastFailure = time.Time{}
	b.probing = false
}

// Snapshot returns the breaker's current state for monitoring. An open
// breaker whose cooldown has elapsed reports half-open, matching what the
// next Allow call would observe.
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.state
	if state == BreakerOpen && b.clock.Now().Sub(b.lastFailure) >= b.cooldown {
		state = BreakerHalfOpen
	}

	return BreakerSnapshot{
		State:        state,
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
		LastFailure:  b.lastFailure,
	}
}
