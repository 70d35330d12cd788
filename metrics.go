package syncbox

import "time"

// Metrics captures processor-level telemetry.
type Metrics interface {
	// ObserveCycleDuration records the time to run one processing cycle.
	ObserveCycleDuration(duration time.Duration)
	// AddCompleted increments the count of acknowledged items.
	AddCompleted(count int)
	// AddRetries increments the count of retries scheduled.
	AddRetries(count int)
	// AddFailed increments the count of terminally failed items.
	AddFailed(count int)
	// AddConflicts increments the count of items parked in conflict.
	AddConflicts(count int)
	// SetQueued updates the current queued item count.
	SetQueued(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveCycleDuration implements Metrics.
func (NopMetrics) ObserveCycleDuration(time.Duration) {}

// AddCompleted implements Metrics.
func (NopMetrics) AddCompleted(int) {}

// AddRetries implements Metrics.
func (NopMetrics) AddRetries(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// AddConflicts implements Metrics.
func (NopMetrics) AddConflicts(int) {}

// SetQueued implements Metrics.
func (NopMetrics) SetQueued(int) {}
