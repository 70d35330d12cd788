package syncbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestComputeHashDeterministic(t *testing.T) {
	doc := map[string]any{"title": "plan", "tasks": []string{"a", "b"}}

	first, err := ComputeHash(doc)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := ComputeHash(doc)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable hash, got %s and %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected sha-256 hex digest, got %q", first)
	}
}

func TestComputeHashIgnoresKeyOrderAndWhitespace(t *testing.T) {
	a, err := ComputeHash(json.RawMessage(`{"b": 1, "a": 2}`))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := ComputeHash(json.RawMessage(`{"a":2,"b":1}`))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a != b {
		t.Fatalf("expected canonical form to ignore key order, got %s and %s", a, b)
	}
}

func TestComputeHashDiffersForDifferentDocuments(t *testing.T) {
	a, err := ComputeHash(map[string]any{"title": "plan"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := ComputeHash(map[string]any{"title": "other"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Fatalf("expected different documents to hash differently")
	}
}

func TestDetectorEqual(t *testing.T) {
	detector := NewDetector(ComparerFunc(func(_ context.Context, _, _ string) (bool, error) {
		return true, nil
	}), nil)

	result, err := detector.Detect(context.Background(), "p1", map[string]any{"v": 1})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if result.Status != DriftEqual {
		t.Fatalf("expected equal, got %s", result.Status)
	}
	if result.LocalHash == "" {
		t.Fatalf("expected local hash to be reported")
	}
}

func TestDetectorDrift(t *testing.T) {
	detector := NewDetector(ComparerFunc(func(_ context.Context, _, _ string) (bool, error) {
		return false, nil
	}), nil)

	result, err := detector.Detect(context.Background(), "p1", map[string]any{"v": 1})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if result.Status != DriftDetected {
		t.Fatalf("expected drift, got %s", result.Status)
	}
}

func TestDetectorUnreachableRemoteIsUnknown(t *testing.T) {
	detector := NewDetector(ComparerFunc(func(_ context.Context, _, _ string) (bool, error) {
		return false, errors.New("connection refused")
	}), nil)

	result, err := detector.Detect(context.Background(), "p1", map[string]any{"v": 1})
	if err != nil {
		t.Fatalf("expected transport failure to be swallowed, got %v", err)
	}
	if result.Status != DriftUnknown {
		t.Fatalf("expected unknown, got %s", result.Status)
	}
}

func TestDetectorLocalHashFailure(t *testing.T) {
	detector := NewDetector(ComparerFunc(func(_ context.Context, _, _ string) (bool, error) {
		t.Fatalf("comparer must not be called when hashing fails")
		return false, nil
	}), nil)

	_, err := detector.Detect(context.Background(), "p1", make(chan int))
	if err == nil {
		t.Fatalf("expected error for unhashable document")
	}
}
