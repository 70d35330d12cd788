package sqlite

import (
	"context"
	"time"

	"github.com/velmie/syncbox"
)

const defaultCleanupLimit = 10000

// CleanupOptions defines how to delete settled records.
type CleanupOptions struct {
	// Before removes rows last updated before this timestamp (required).
	Before time.Time
	// Limit caps the number of rows deleted per status per call (0 uses the default).
	Limit int
	// IncludeFailed removes failed rows in addition to completed ones.
	// Conflict rows are never cleaned up automatically; they await manual
	// resolution.
	IncludeFailed bool
}

// CleanupResult reports how many rows were removed.
type CleanupResult struct {
	Completed int64
	Failed    int64
}

// Cleanup removes completed rows (and optionally failed rows) older than
// opts.Before. Queued, processing and conflict rows are untouched.
func (s *Store) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	if opts.Before.IsZero() {
		return CleanupResult{}, ErrCleanupBeforeRequired
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultCleanupLimit
	}

	var result CleanupResult

	completed, err := s.cleanupStatus(ctx, syncbox.StatusCompleted, opts.Before, limit)
	if err != nil {
		return result, err
	}
	result.Completed = completed

	if opts.IncludeFailed {
		failed, err := s.cleanupStatus(ctx, syncbox.StatusFailed, opts.Before, limit)
		if err != nil {
			return result, err
		}
		result.Failed = failed
	}

	return result, nil
}

func (s *Store) cleanupStatus(ctx context.Context, status syncbox.Status, before time.Time, limit int) (int64, error) {
	cutoff := toMillis(before)
	result, err := s.db.ExecContext(
		ctx,
		s.queries.cleanupStatus,
		string(status),
		cutoff,
		string(status),
		cutoff,
		limit,
	)
	if err != nil {
		return 0, storageErr("cleanup", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("cleanup result", err)
	}

	return affected, nil
}
