package syncbox

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that no item exists with the requested ID.
	ErrNotFound = errors.New("syncbox item not found")
	// ErrStorage wraps failures of the underlying durable store.
	ErrStorage = errors.New("syncbox storage failure")
	// ErrKindRequired is returned when Mutation.Kind is empty.
	ErrKindRequired = errors.New("syncbox mutation kind is required")
	// ErrProjectRequired is returned when Mutation.ProjectID is empty.
	ErrProjectRequired = errors.New("syncbox project id is required")
	// ErrPayloadRequired is returned when Mutation.Payload is empty.
	ErrPayloadRequired = errors.New("syncbox payload is required")
	// ErrInvalidPayload is returned when Mutation.Payload is not valid JSON
	// or does not match the schema registered for its kind.
	ErrInvalidPayload = errors.New("syncbox payload is invalid")
	// ErrUnknownKind is returned when a registry is configured and the kind has no schema.
	ErrUnknownKind = errors.New("syncbox mutation kind is not registered")
	// ErrInvalidID is returned when parsing or scanning an ID fails.
	ErrInvalidID = errors.New("syncbox id is invalid")
	// ErrNotConflicted is returned when a conflict action targets an item
	// that is not in the conflict state.
	ErrNotConflicted = errors.New("syncbox item is not in conflict")
	// ErrNotDiscardable is returned when Discard targets an item that is
	// neither failed nor conflicted.
	ErrNotDiscardable = errors.New("syncbox item is not failed or conflicted")
	// ErrResourceDrifted is returned by Append while a project awaits a state refresh.
	ErrResourceDrifted = errors.New("syncbox project has drifted from remote state")
)

// TransientError marks a send failure as retryable (timeouts, 5xx, network).
// It is the only failure class that penalizes the circuit breaker.
type TransientError struct {
	Err error
}

// Error implements error.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a send failure as non-retryable (validation, 4xx).
type PermanentError struct {
	Err error
}

// Error implements error.
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// ConflictError reports that the remote's current version differs from the
// base version the mutation was built against.
type ConflictError struct {
	// ServerVersion is the remote's current version of the resource, when known.
	ServerVersion int64
	Err           error
}

// Error implements error.
func (e *ConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("conflict: server version %d", e.ServerVersion)
	}

	return fmt.Sprintf("conflict: server version %d: %v", e.ServerVersion, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConflictError) Unwrap() error {
	return e.Err
}

// Outcome classifies the result of a send attempt.
type Outcome int

const (
	// OutcomeSuccess indicates the remote applied the mutation.
	OutcomeSuccess Outcome = iota
	// OutcomeTransient indicates a retryable remote-availability failure.
	OutcomeTransient
	// OutcomePermanent indicates a terminal client or data failure.
	OutcomePermanent
	// OutcomeConflict indicates a stale base version.
	OutcomeConflict
)

// Classify maps a send error to its outcome. Unclassified errors are treated
// as transient so an ambiguous failure never drops a mutation.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return OutcomeConflict
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return OutcomePermanent
	}

	return OutcomeTransient
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
