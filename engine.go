package syncbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Engine is the client-facing surface of the sync subsystem. It gates new
// mutations (schema validation per kind, drift block per project), exposes
// the conflict-resolution actions, and serves the monitoring interface.
type Engine struct {
	store    Store
	breaker  *CircuitBreaker
	registry *KindRegistry
	detector *Detector
	clock    Clock
	logger   Logger

	mu      sync.Mutex
	drifted map[string]struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineBreaker shares a circuit breaker between the engine's monitoring
// surface and a Processor.
func WithEngineBreaker(breaker *CircuitBreaker) EngineOption {
	return func(e *Engine) {
		e.breaker = breaker
	}
}

// WithEngineRegistry enables per-kind JSON Schema validation at append time.
func WithEngineRegistry(registry *KindRegistry) EngineOption {
	return func(e *Engine) {
		e.registry = registry
	}
}

// WithEngineComparer enables drift detection against the remote compare endpoint.
func WithEngineComparer(comparer Comparer) EngineOption {
	return func(e *Engine) {
		e.detector = NewDetector(comparer, e.logger)
	}
}

// WithEngineClock sets the engine clock.
func WithEngineClock(clock Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine constructs an Engine over a store.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	if store == nil {
		panic("syncbox: nil Store")
	}

	e := &Engine{
		store:   store,
		logger:  NopLogger{},
		drifted: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.breaker == nil {
		e.breaker = NewCircuitBreaker(WithBreakerClock(e.clock))
	}
	if e.detector != nil {
		e.detector.logger = e.logger
	}

	return e
}

// Breaker returns the circuit breaker, for sharing with a Processor.
func (e *Engine) Breaker() *CircuitBreaker {
	return e.breaker
}

// Append validates and queues a local mutation. It fails with
// ErrResourceDrifted while the mutation's project awaits a state refresh, and
// with ErrInvalidPayload / ErrUnknownKind when a registry is configured and
// the payload does not match its kind's schema.
func (e *Engine) Append(ctx context.Context, mutation Mutation) (Item, error) {
	if err := mutation.Validate(); err != nil {
		return Item{}, err
	}
	if e.registry != nil {
		if err := e.registry.Validate(mutation.Kind, mutation.Payload); err != nil {
			return Item{}, err
		}
	}

	e.mu.Lock()
	_, blocked := e.drifted[mutation.ProjectID]
	e.mu.Unlock()
	if blocked {
		return Item{}, fmt.Errorf("%w: %s", ErrResourceDrifted, mutation.ProjectID)
	}

	return e.store.Append(ctx, mutation)
}

// CheckDrift compares the local document against the server's state for a
// project. A drift result blocks further Append calls for that project until
// MarkRefreshed; an unknown result changes nothing.
func (e *Engine) CheckDrift(ctx context.Context, projectID string, document any) (DriftResult, error) {
	if e.detector == nil {
		return DriftResult{}, fmt.Errorf("syncbox: no comparer configured")
	}

	result, err := e.detector.Detect(ctx, projectID, document)
	if err != nil {
		return DriftResult{}, err
	}
	if result.Status == DriftDetected {
		e.mu.Lock()
		e.drifted[projectID] = struct{}{}
		e.mu.Unlock()
		e.logger.Warn("syncbox project drifted, queueing blocked", "project", projectID)
	}

	return result, nil
}

// MarkRefreshed clears the drift block for a project after a full state refresh.
func (e *Engine) MarkRefreshed(projectID string) {
	e.mu.Lock()
	delete(e.drifted, projectID)
	e.mu.Unlock()
}

// Conflicts lists items awaiting manual conflict resolution, oldest first.
func (e *Engine) Conflicts(ctx context.Context) ([]Item, error) {
	return e.store.ListByStatus(ctx, StatusConflict)
}

// Discard drops a failed or conflicted item, abandoning the local change.
func (e *Engine) Discard(ctx context.Context, id ID) error {
	item, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != StatusFailed && item.Status != StatusConflict {
		return ErrNotDiscardable
	}

	return e.store.Remove(ctx, id)
}

// Overwrite resolves a conflict by re-enqueueing a fresh mutation built from
// the current local state against the latest base version, then removing the
// conflicted item. The new item gets a new ID and a fresh attempt budget.
func (e *Engine) Overwrite(ctx context.Context, id ID, payload json.RawMessage, baseVersion int64) (Item, error) {
	item, err := e.store.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if item.Status != StatusConflict {
		return Item{}, ErrNotConflicted
	}

	mutation := Mutation{
		Kind:        item.Kind,
		Payload:     payload,
		ProjectID:   item.ProjectID,
		BaseVersion: baseVersion,
		MaxAttempts: item.MaxAttempts,
	}
	if err := mutation.Validate(); err != nil {
		return Item{}, err
	}
	if e.registry != nil {
		if err := e.registry.Validate(mutation.Kind, mutation.Payload); err != nil {
			return Item{}, err
		}
	}

	replacement, err := e.store.Append(ctx, mutation)
	if err != nil {
		return Item{}, err
	}
	if err := e.store.Remove(ctx, id); err != nil {
		// Roll the replacement back so a retried Overwrite starts from the
		// untouched conflict instead of enqueueing a second copy.
		if rollbackErr := e.store.Remove(ctx, replacement.ID); rollbackErr != nil {
			return Item{}, errors.Join(err, rollbackErr)
		}

		return Item{}, err
	}

	return replacement, nil
}

// Stats returns the monitoring snapshot: counts per status, the processing
// flag, and the breaker state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	counts, err := e.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}

	return statsFromCounts(counts, e.breaker.Snapshot()), nil
}

// RetryFailed requeues all failed items with a fresh attempt budget, due
// immediately. It returns how many items were requeued.
func (e *Engine) RetryFailed(ctx context.Context) (int, error) {
	failed, err := e.store.ListByStatus(ctx, StatusFailed)
	if err != nil {
		return 0, err
	}

	now := e.clock.Now()
	requeued := 0
	for _, item := range failed {
		item.Status = StatusQueued
		item.Attempts = 0
		item.NextRunAt = now
		item.LastError = ""
		if err := e.store.Update(ctx, item); err != nil {
			return requeued, err
		}
		requeued++
	}

	return requeued, nil
}

// ClearCompleted removes all completed items and returns how many were removed.
// Items in any other status are untouched.
func (e *Engine) ClearCompleted(ctx context.Context) (int, error) {
	completed, err := e.store.ListByStatus(ctx, StatusCompleted)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, item := range completed {
		if err := e.store.Remove(ctx, item.ID); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

// ResetBreaker forces the circuit breaker closed (operator override).
func (e *Engine) ResetBreaker() {
	e.breaker.Reset()
}

// RemoveItem deletes a single item regardless of status.
func (e *Engine) RemoveItem(ctx context.Context, id ID) error {
	return e.store.Remove(ctx, id)
}
