package syncbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreAppendGetRoundtrip(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	item, err := store.Append(context.Background(), Mutation{
		Kind:        "task.update",
		Payload:     []byte(`{"title":"x"}`),
		ProjectID:   "p1",
		BaseVersion: 3,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if item.Status != StatusQueued {
		t.Fatalf("expected queued, got %s", item.Status)
	}
	if item.MaxAttempts != defaultMaxAttempts {
		t.Fatalf("expected default budget, got %d", item.MaxAttempts)
	}

	stored, err := store.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.BaseVersion != 3 || string(stored.Payload) != `{"title":"x"}` {
		t.Fatalf("unexpected stored item: %+v", stored)
	}
}

func TestMemoryStoreAppendRejectsInvalidMutation(t *testing.T) {
	store := newTestStore(newFakeClock())

	_, err := store.Append(context.Background(), Mutation{Kind: "task.update", ProjectID: "p1"})
	if !errors.Is(err, ErrPayloadRequired) {
		t.Fatalf("expected payload required, got %v", err)
	}
}

func TestMemoryStoreTryLeaseCAS(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	item := mustAppend(t, store, "p1")

	leased, err := store.TryLease(context.Background(), item.ID)
	if err != nil || !leased {
		t.Fatalf("expected first lease to win, leased=%v err=%v", leased, err)
	}

	leased, err = store.TryLease(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("second lease: %v", err)
	}
	if leased {
		t.Fatalf("expected second lease to lose")
	}

	_, err = store.TryLease(context.Background(), ID{15: 99})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreListDueReturnsProjectHeads(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	b1 := mustAppend(t, store, "pb")
	clock.Advance(time.Millisecond)
	a1 := mustAppend(t, store, "pa")
	clock.Advance(time.Millisecond)
	a2 := mustAppend(t, store, "pa")

	// Only each project's head is due; followers stay hidden behind it.
	due, err := store.ListDue(context.Background(), clock.Now())
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected one head per project, got %d items", len(due))
	}
	if due[0].ID != a1.ID || due[1].ID != b1.ID {
		t.Fatalf("expected heads %s and %s, got %s and %s", a1.ID, b1.ID, due[0].ID, due[1].ID)
	}

	// A backing-off head hides its follower even though the follower's own
	// NextRunAt has passed.
	a1.NextRunAt = clock.Now().Add(time.Minute)
	if err := store.Update(context.Background(), a1); err != nil {
		t.Fatalf("update: %v", err)
	}
	due, err = store.ListDue(context.Background(), clock.Now())
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != b1.ID {
		t.Fatalf("expected only pb's head, got %v", due)
	}

	// A leased head hides the follower too.
	if _, err := store.TryLease(context.Background(), b1.ID); err != nil {
		t.Fatalf("lease: %v", err)
	}
	due, err = store.ListDue(context.Background(), clock.Now())
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected nothing due, got %v", due)
	}

	// Once the head settles terminally the follower becomes the head.
	a1.Status = StatusCompleted
	a1.NextRunAt = clock.Now()
	if err := store.Update(context.Background(), a1); err != nil {
		t.Fatalf("update: %v", err)
	}
	due, err = store.ListDue(context.Background(), clock.Now())
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != a2.ID {
		t.Fatalf("expected follower promoted to head, got %v", due)
	}
}

func TestMemoryStoreSweepStale(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	stale := mustAppend(t, store, "p1")
	if _, err := store.TryLease(context.Background(), stale.ID); err != nil {
		t.Fatalf("lease: %v", err)
	}

	clock.Advance(5 * time.Minute)
	fresh := mustAppend(t, store, "p1")
	if _, err := store.TryLease(context.Background(), fresh.ID); err != nil {
		t.Fatalf("lease: %v", err)
	}

	reset, err := store.SweepStale(context.Background(), clock.Now().Add(-2*time.Minute))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset, got %d", reset)
	}

	stored, _ := store.Get(context.Background(), stale.ID)
	if stored.Status != StatusQueued {
		t.Fatalf("expected stale lease requeued, got %s", stored.Status)
	}
	if !stored.NextRunAt.Equal(clock.Now()) {
		t.Fatalf("expected recovered item due now, got %s", stored.NextRunAt)
	}
	stored, _ = store.Get(context.Background(), fresh.ID)
	if stored.Status != StatusProcessing {
		t.Fatalf("expected fresh lease untouched, got %s", stored.Status)
	}
}

func TestMemoryStoreCountByStatus(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	mustAppend(t, store, "p1")
	failed := mustAppend(t, store, "p1")
	failed.Status = StatusFailed
	if err := store.Update(context.Background(), failed); err != nil {
		t.Fatalf("update: %v", err)
	}

	counts, err := store.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[StatusQueued] != 1 || counts[StatusFailed] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestMemoryStoreUpdateAndRemoveMissing(t *testing.T) {
	store := newTestStore(newFakeClock())

	if err := store.Update(context.Background(), Item{ID: ID{15: 1}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Remove(context.Background(), ID{15: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
