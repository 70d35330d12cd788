package syncbox

import (
	"context"
	"time"
)

// Store is the durable outbox. Implementations must be crash consistent:
// Append is all-or-nothing and TryLease is an atomic compare-and-swap on
// status so that two execution contexts sharing the store cannot both lease
// the same item.
type Store interface {
	// Append validates the mutation, assigns an ID and persists a queued item.
	Append(ctx context.Context, mutation Mutation) (Item, error)
	// Get returns the item with the given ID or ErrNotFound.
	Get(ctx context.Context, id ID) (Item, error)
	// ListByStatus returns items in the given status, oldest first.
	ListByStatus(ctx context.Context, status Status) ([]Item, error)
	// ListDue returns, for each project, the project's head item (its
	// oldest item still queued or processing) when that head is queued
	// with NextRunAt <= now, ordered by project, then creation time, then
	// ID. A project whose head is backing off or leased yields nothing,
	// so followers can never overtake the head across cycles.
	ListDue(ctx context.Context, now time.Time) ([]Item, error)
	// CountByStatus returns the number of items per status.
	CountByStatus(ctx context.Context) (map[Status]int, error)
	// TryLease atomically transitions the item from queued to processing.
	// It returns false without error when the item is not queued.
	TryLease(ctx context.Context, id ID) (bool, error)
	// Update persists the item's mutable fields (status, attempts,
	// next run time, base version, last error) and refreshes UpdatedAt.
	Update(ctx context.Context, item Item) error
	// Remove deletes the item.
	Remove(ctx context.Context, id ID) error
	// SweepStale resets items stuck in processing since before the cutoff
	// back to queued and returns how many were reset. It recovers leases
	// orphaned by a crash mid-send.
	SweepStale(ctx context.Context, before time.Time) (int, error)
}
