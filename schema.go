package syncbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// KindRegistry validates mutation payloads against a JSON Schema per kind.
// Kinds without a registered schema are rejected, which keeps the outbox a
// tagged union rather than an untyped bag of fields.
type KindRegistry struct {
	mu      sync.RWMutex
	schemas map[Kind]*jsonschema.Schema
}

// NewKindRegistry creates an empty registry.
func NewKindRegistry() *KindRegistry {
	return &KindRegistry{schemas: make(map[Kind]*jsonschema.Schema)}
}

// Register compiles and stores the JSON Schema for a kind, replacing any
// previous schema for the same kind.
func (r *KindRegistry) Register(kind Kind, schemaJSON []byte) error {
	if kind == "" {
		return ErrKindRequired
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("syncbox: parse schema for kind %q: %w", kind, err)
	}

	compiler := jsonschema.NewCompiler()
	resource := fmt.Sprintf("syncbox://kinds/%s.json", kind)
	if err := compiler.AddResource(resource, doc); err != nil {
		return fmt.Errorf("syncbox: add schema for kind %q: %w", kind, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("syncbox: compile schema for kind %q: %w", kind, err)
	}

	r.mu.Lock()
	r.schemas[kind] = schema
	r.mu.Unlock()

	return nil
}

// Kinds returns the registered kinds.
func (r *KindRegistry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.schemas))
	for kind := range r.schemas {
		kinds = append(kinds, kind)
	}

	return kinds
}

// Validate checks a payload against the schema registered for its kind.
func (r *KindRegistry) Validate(kind Kind, payload json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.schemas[kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	return nil
}
