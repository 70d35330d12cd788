package sqlite

import "github.com/velmie/syncbox"

const (
	defaultTable       = "outbox"
	defaultMaxAttempts = 5
)

// Config defines SQLite store behavior.
type Config struct {
	Table       string
	MaxAttempts int
	Clock       syncbox.Clock
	Generator   syncbox.IDGenerator
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Clock == nil {
		c.Clock = syncbox.SystemClock{}
	}
	if c.Generator == nil {
		c.Generator = syncbox.NewUUIDv7Generator(c.Clock)
	}

	return c
}

// Option configures the SQLite store.
type Option func(*Config)

// WithTable sets the outbox table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithMaxAttempts sets the default retry budget for appended items.
func WithMaxAttempts(attempts int) Option {
	return func(c *Config) {
		c.MaxAttempts = attempts
	}
}

// WithClock sets the time source used by the store.
func WithClock(clock syncbox.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithGenerator sets the UUID generator.
func WithGenerator(gen syncbox.IDGenerator) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}
