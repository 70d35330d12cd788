package syncbox

import "context"

// SendRequest is the payload delivered to the remote mutation endpoint.
type SendRequest struct {
	// IdempotencyKey lets the server recognize duplicate delivery of the
	// same logical mutation after an ambiguous outcome.
	IdempotencyKey ID
	Kind           Kind
	Payload        []byte
	ProjectID      string
	BaseVersion    int64
}

// Sender delivers a mutation to the remote endpoint. A nil error means the
// remote applied the mutation; failures should be wrapped in TransientError,
// PermanentError or ConflictError so the processor can classify them. Errors
// of other types are treated as transient.
type Sender interface {
	// Send delivers a single mutation.
	Send(ctx context.Context, req SendRequest) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, req SendRequest) error

// Send implements Sender.
func (fn SenderFunc) Send(ctx context.Context, req SendRequest) error {
	return fn(ctx, req)
}
