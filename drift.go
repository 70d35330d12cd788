package syncbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// DriftStatus classifies how a local document relates to the server's state.
type DriftStatus string

const (
	// DriftEqual means local and remote hashes match.
	DriftEqual DriftStatus = "equal"
	// DriftDetected means the hashes differ; local queueing for the
	// resource must pause until a full state refresh.
	DriftDetected DriftStatus = "drift"
	// DriftUnknown means the remote could not be reached. Callers must
	// treat it as unknown, never as safe to proceed.
	DriftUnknown DriftStatus = "no_remote"
)

// DriftResult is the outcome of a drift check.
type DriftResult struct {
	Status DriftStatus
	// LocalHash is the canonical hash that was compared.
	LocalHash string
}

// Comparer asks the remote compare endpoint whether a local hash matches the
// server's current hash for a resource.
type Comparer interface {
	// Compare returns true when the hashes are equal.
	Compare(ctx context.Context, resourceID, localHash string) (bool, error)
}

// ComparerFunc adapts a function to Comparer.
type ComparerFunc func(ctx context.Context, resourceID, localHash string) (bool, error)

// Compare implements Comparer.
func (fn ComparerFunc) Compare(ctx context.Context, resourceID, localHash string) (bool, error) {
	return fn(ctx, resourceID, localHash)
}

// ComputeHash returns the SHA-256 hex digest of the document's RFC 8785
// canonical JSON form. Equal documents always hash equally regardless of map
// ordering or whitespace.
func ComputeHash(document any) (string, error) {
	raw, err := json.Marshal(document)
	if err != nil {
		return "", fmt.Errorf("syncbox: marshal document: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("syncbox: canonicalize document: %w", err)
	}

	digest := sha256.Sum256(canonical)

	return hex.EncodeToString(digest[:]), nil
}

// Detector compares local authoritative documents against the server's view.
type Detector struct {
	comparer Comparer
	logger   Logger
}

// NewDetector constructs a Detector. A nil logger falls back to NopLogger.
func NewDetector(comparer Comparer, logger Logger) *Detector {
	if comparer == nil {
		panic("syncbox: nil Comparer")
	}
	if logger == nil {
		logger = NopLogger{}
	}

	return &Detector{comparer: comparer, logger: logger}
}

// Detect hashes the local document and classifies the remote's answer. A
// transport failure yields DriftUnknown with a nil error; only local hashing
// failures are returned as errors.
func (d *Detector) Detect(ctx context.Context, resourceID string, document any) (DriftResult, error) {
	hash, err := ComputeHash(document)
	if err != nil {
		return DriftResult{}, err
	}

	equal, err := d.comparer.Compare(ctx, resourceID, hash)
	if err != nil {
		d.logger.Warn("syncbox drift check unreachable", "resource", resourceID, "err", err)

		return DriftResult{Status: DriftUnknown, LocalHash: hash}, nil
	}
	if !equal {
		return DriftResult{Status: DriftDetected, LocalHash: hash}, nil
	}

	return DriftResult{Status: DriftEqual, LocalHash: hash}, nil
}
