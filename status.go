package syncbox

// Status represents the lifecycle state of an outbox item.
type Status string

const (
	// StatusQueued indicates the item is waiting to be sent.
	StatusQueued Status = "queued"
	// StatusProcessing indicates a processor holds an exclusive lease on the item.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates the remote acknowledged the mutation.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the item exhausted its retries or failed permanently.
	StatusFailed Status = "failed"
	// StatusConflict indicates the remote rejected the mutation due to a stale base version.
	StatusConflict Status = "conflict"
)

// Terminal reports whether the status requires user action or cleanup
// rather than further processing.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusConflict:
		return true
	default:
		return false
	}
}

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusConflict:
		return true
	default:
		return false
	}
}
