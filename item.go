package syncbox

import (
	"encoding/json"
	"time"
)

// Kind names a mutation type. Each kind carries its own payload schema.
type Kind string

// Mutation describes a new local mutation to be queued for delivery.
type Mutation struct {
	// Kind selects the payload schema and the remote operation.
	Kind Kind
	// Payload is the kind-specific body, stored as JSON.
	Payload json.RawMessage
	// ProjectID scopes the mutation to its owning resource; delivery is FIFO per project.
	ProjectID string
	// BaseVersion is the remote version this mutation was built against.
	BaseVersion int64
	// MaxAttempts overrides the store's retry budget when positive.
	MaxAttempts int
}

// Validate checks required fields and JSON validity of the payload.
func (m Mutation) Validate() error {
	if m.Kind == "" {
		return ErrKindRequired
	}
	if m.ProjectID == "" {
		return ErrProjectRequired
	}
	if len(m.Payload) == 0 {
		return ErrPayloadRequired
	}
	if !json.Valid(m.Payload) {
		return ErrInvalidPayload
	}

	return nil
}

// Item is a stored outbox record. Its ID doubles as the idempotency key sent
// with every delivery attempt.
type Item struct {
	ID          ID
	Kind        Kind
	Payload     json.RawMessage
	ProjectID   string
	BaseVersion int64
	Status      Status
	Attempts    int
	MaxAttempts int
	NextRunAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Due reports whether a queued item is eligible for processing at now.
func (it Item) Due(now time.Time) bool {
	return it.Status == StatusQueued && !it.NextRunAt.After(now)
}
