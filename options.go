package syncbox

import "time"

const (
	defaultTickInterval = 15 * time.Second
	defaultStaleLease   = 2 * time.Minute
)

// ProcessorFailureHandler is called when a send attempt returns an error.
type ProcessorFailureHandler func(item Item, err error)

// ProcessorConfig defines how the Processor drains the outbox.
type ProcessorConfig struct {
	// TickInterval is the period between automatic cycles in Run.
	TickInterval time.Duration
	// StaleLease is how long an item may sit in processing before the
	// startup/cycle sweep returns it to queued.
	StaleLease time.Duration
	// SendTimeout bounds a single send when positive.
	SendTimeout time.Duration
	// Backoff schedules retries after transient failures.
	Backoff Backoff
	Clock   Clock
	Logger  Logger
	Metrics Metrics
	// FailureHandler observes every failed send attempt.
	FailureHandler ProcessorFailureHandler
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.StaleLease <= 0 {
		c.StaleLease = defaultStaleLease
	}
	c.Backoff = c.Backoff.withDefaults()
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}

	return c
}

// ProcessorOption configures Processor behavior.
type ProcessorOption func(*Processor)

// WithTickInterval sets the period between automatic processing cycles.
func WithTickInterval(interval time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.cfg.TickInterval = interval
	}
}

// WithStaleLease sets the staleness timeout for orphaned processing leases.
func WithStaleLease(timeout time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.cfg.StaleLease = timeout
	}
}

// WithSendTimeout sets a per-send timeout.
func WithSendTimeout(timeout time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.cfg.SendTimeout = timeout
	}
}

// WithBackoff sets the retry backoff policy.
func WithBackoff(backoff Backoff) ProcessorOption {
	return func(p *Processor) {
		p.cfg.Backoff = backoff
	}
}

// WithClock sets the processor clock.
func WithClock(clock Clock) ProcessorOption {
	return func(p *Processor) {
		p.cfg.Clock = clock
	}
}

// WithLogger sets the processor logger.
func WithLogger(logger Logger) ProcessorOption {
	return func(p *Processor) {
		p.cfg.Logger = logger
	}
}

// WithMetrics sets the processor metrics recorder.
func WithMetrics(metrics Metrics) ProcessorOption {
	return func(p *Processor) {
		p.cfg.Metrics = metrics
	}
}

// WithFailureHandler registers a callback for failed send attempts.
func WithFailureHandler(handler ProcessorFailureHandler) ProcessorOption {
	return func(p *Processor) {
		p.cfg.FailureHandler = handler
	}
}

// WithBreaker sets the circuit breaker guarding the remote endpoint.
func WithBreaker(breaker *CircuitBreaker) ProcessorOption {
	return func(p *Processor) {
		p.breaker = breaker
	}
}
