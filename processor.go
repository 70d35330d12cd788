package syncbox

import (
	"context"
	"errors"
	"time"
)

// Processor is the single active worker draining due outbox items. It is
// woken by a recurring tick and by connectivity-restored events, preserves
// strict FIFO order within each project, and consults the circuit breaker
// before every send.
type Processor struct {
	store   Store
	sender  Sender
	breaker *CircuitBreaker
	cfg     ProcessorConfig
	wake    chan struct{}
}

// NewProcessor constructs a Processor with defaults and optional settings.
func NewProcessor(store Store, sender Sender, opts ...ProcessorOption) *Processor {
	if store == nil {
		panic("syncbox: nil Store")
	}
	if sender == nil {
		panic("syncbox: nil Sender")
	}

	p := &Processor{
		store:  store,
		sender: sender,
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cfg = p.cfg.withDefaults()
	if p.breaker == nil {
		p.breaker = NewCircuitBreaker(WithBreakerClock(p.cfg.Clock))
	}

	return p
}

// Breaker returns the circuit breaker guarding the remote endpoint.
func (p *Processor) Breaker() *CircuitBreaker {
	return p.breaker
}

// Wake schedules an immediate cycle, typically from a connectivity-restored
// event. It never blocks; a pending wake coalesces with later ones.
func (p *Processor) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run drives Tick on the configured interval and on Wake until ctx ends.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := p.Tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.cfg.Logger.Error("syncbox cycle failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-p.wake:
		}
	}
}

// Tick runs a single processing cycle: recover stale leases, then drain due
// items project by project. It is deterministic given an injected clock,
// which makes it the single entry point for timer ticks, connectivity
// events and tests alike.
func (p *Processor) Tick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		p.cfg.Metrics.ObserveCycleDuration(time.Since(start))
	}()
	defer p.recordQueued(ctx)

	now := p.cfg.Clock.Now()
	if reset, err := p.store.SweepStale(ctx, now.Add(-p.cfg.StaleLease)); err != nil {
		return err
	} else if reset > 0 {
		p.cfg.Logger.Warn("syncbox recovered stale leases", "count", reset)
	}

	// The due list holds at most one item per project: its head. A head
	// that fails here stays the head, so followers cannot overtake it in
	// this or any later cycle.
	due, err := p.store.ListDue(ctx, now)
	if err != nil {
		return err
	}

	for _, item := range due {
		if err := ctx.Err(); err != nil {
			return err
		}

		// The breaker is consulted before every send. A closed-breaker
		// refusal or a failed half-open probe ends the whole cycle; the
		// next tick after the cooldown retries.
		if !p.breaker.Allow() {
			p.cfg.Logger.Debug("syncbox circuit open, ending cycle")

			return nil
		}

		if _, err := p.processItem(ctx, item); err != nil {
			return err
		}
	}

	return nil
}

// processItem leases, sends and settles a single item. The returned error is
// only non-nil for storage failures or context cancellation; send failures
// are settled into the item's state.
func (p *Processor) processItem(ctx context.Context, item Item) (Outcome, error) {
	leased, err := p.store.TryLease(ctx, item.ID)
	if err != nil {
		p.breaker.releaseProbe()
		if errors.Is(err, ErrNotFound) {
			return OutcomeSuccess, nil
		}

		return OutcomeSuccess, err
	}
	if !leased {
		// Another context holds the item; treat it as this project's head
		// still being in flight.
		p.breaker.releaseProbe()

		return OutcomeTransient, nil
	}

	sendErr := p.send(ctx, item)
	if sendErr != nil && ctx.Err() != nil {
		// Teardown mid-send: the outcome is unknown, which is exactly why
		// the idempotency key exists. The stale-lease sweep requeues the
		// item, and an admitted half-open probe must be handed back or the
		// breaker would reject every later cycle.
		p.breaker.releaseProbe()

		return OutcomeSuccess, ctx.Err()
	}

	outcome := Classify(sendErr)
	if sendErr != nil && p.cfg.FailureHandler != nil {
		p.cfg.FailureHandler(item, sendErr)
	}

	switch outcome {
	case OutcomeSuccess:
		item.Status = StatusCompleted
		item.LastError = ""
		p.breaker.RecordSuccess()
		p.cfg.Metrics.AddCompleted(1)
	case OutcomeConflict:
		item.Status = StatusConflict
		item.LastError = sendErr.Error()
		var conflict *ConflictError
		if errors.As(sendErr, &conflict) && conflict.ServerVersion > 0 {
			item.BaseVersion = conflict.ServerVersion
		}
		// The remote answered, so a half-open probe resolves as healthy;
		// conflicts are a data signal, not an availability one.
		p.breaker.RecordSuccess()
		p.cfg.Metrics.AddConflicts(1)
		p.cfg.Logger.Warn("syncbox mutation conflicted", "id", item.ID, "project", item.ProjectID)
	case OutcomePermanent:
		item.Status = StatusFailed
		item.LastError = sendErr.Error()
		p.breaker.RecordSuccess()
		p.cfg.Metrics.AddFailed(1)
		p.cfg.Logger.Warn("syncbox mutation rejected", "id", item.ID, "err", sendErr)
	case OutcomeTransient:
		item.Attempts++
		item.LastError = sendErr.Error()
		p.breaker.RecordFailure()
		if item.Attempts >= item.MaxAttempts {
			item.Status = StatusFailed
			p.cfg.Metrics.AddFailed(1)
			p.cfg.Logger.Warn("syncbox mutation exhausted retries",
				"id", item.ID, "attempts", item.Attempts, "err", sendErr)
		} else {
			item.Status = StatusQueued
			item.NextRunAt = p.cfg.Clock.Now().Add(p.cfg.Backoff.Delay(item.Attempts))
			p.cfg.Metrics.AddRetries(1)
			p.cfg.Logger.Debug("syncbox retry scheduled",
				"id", item.ID, "attempts", item.Attempts, "nextRunAt", item.NextRunAt)
		}
	}

	if err := p.store.Update(ctx, item); err != nil {
		return outcome, err
	}

	return outcome, nil
}

func (p *Processor) send(ctx context.Context, item Item) error {
	sendCtx := ctx
	cancel := func() {}
	if p.cfg.SendTimeout > 0 {
		sendCtx, cancel = context.WithTimeout(ctx, p.cfg.SendTimeout)
	}
	defer cancel()

	return p.sender.Send(sendCtx, SendRequest{
		IdempotencyKey: item.ID,
		Kind:           item.Kind,
		Payload:        item.Payload,
		ProjectID:      item.ProjectID,
		BaseVersion:    item.BaseVersion,
	})
}

func (p *Processor) recordQueued(ctx context.Context) {
	counts, err := p.store.CountByStatus(ctx)
	if err != nil {
		return
	}
	p.cfg.Metrics.SetQueued(counts[StatusQueued])
}
