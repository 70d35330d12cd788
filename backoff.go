package syncbox

import "time"

const (
	defaultBackoffBase       = 1 * time.Second
	defaultBackoffMultiplier = 2.0
	defaultBackoffMax        = 5 * time.Minute
)

// Backoff computes the delay before the next retry of a failed send.
// The delay grows exponentially with the attempt count and is capped at Max.
type Backoff struct {
	// Base is the delay after the first failed attempt.
	Base time.Duration
	// Multiplier is the growth factor per additional attempt.
	Multiplier float64
	// Max caps the delay.
	Max time.Duration
}

func (b Backoff) withDefaults() Backoff {
	if b.Base <= 0 {
		b.Base = defaultBackoffBase
	}
	if b.Multiplier < 1 {
		b.Multiplier = defaultBackoffMultiplier
	}
	if b.Max <= 0 {
		b.Max = defaultBackoffMax
	}

	return b
}

// Delay returns the backoff delay after the given number of attempts.
// Attempts below one yield the base delay.
func (b Backoff) Delay(attempts int) time.Duration {
	b = b.withDefaults()

	delay := b.Base
	for i := 1; i < attempts; i++ {
		next := time.Duration(float64(delay) * b.Multiplier)
		if next <= delay || next >= b.Max {
			return b.Max
		}
		delay = next
	}
	if delay > b.Max {
		return b.Max
	}

	return delay
}
