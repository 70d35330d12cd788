package syncbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

const defaultMaxAttempts = 5

// MemoryStore is an in-process Store for tests and single-context consumers.
// The sqlite package provides the durable backend.
type MemoryStore struct {
	mu    sync.Mutex
	items map[ID]Item

	clock       Clock
	generator   IDGenerator
	maxAttempts int
}

var _ Store = (*MemoryStore)(nil)

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryClock sets the time source used by the store.
func WithMemoryClock(clock Clock) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.clock = clock
	}
}

// WithMemoryGenerator sets the ID generator.
func WithMemoryGenerator(gen IDGenerator) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.generator = gen
	}
}

// WithMemoryMaxAttempts sets the default retry budget for appended items.
func WithMemoryMaxAttempts(attempts int) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.maxAttempts = attempts
	}
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{items: make(map[ID]Item)}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.generator == nil {
		s.generator = NewUUIDv7Generator(s.clock)
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}

	return s
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, mutation Mutation) (Item, error) {
	if err := mutation.Validate(); err != nil {
		return Item{}, err
	}

	id, err := s.generator.New()
	if err != nil {
		return Item{}, storageErr("generate id", err)
	}

	maxAttempts := mutation.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}

	now := s.clock.Now()
	item := Item{
		ID:          id,
		Kind:        mutation.Kind,
		Payload:     append([]byte(nil), mutation.Payload...),
		ProjectID:   mutation.ProjectID,
		BaseVersion: mutation.BaseVersion,
		Status:      StatusQueued,
		MaxAttempts: maxAttempts,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.items[id] = item
	s.mu.Unlock()

	return item, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id ID) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}

	return item, nil
}

// ListByStatus implements Store.
func (s *MemoryStore) ListByStatus(_ context.Context, status Status) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]Item, 0)
	for _, item := range s.items {
		if item.Status == status {
			items = append(items, item)
		}
	}
	sortItems(items)

	return items, nil
}

// ListDue implements Store. Only project heads are eligible: a queued item
// behind an older queued or processing sibling stays hidden until the head
// settles, which keeps per-project delivery FIFO across cycles.
func (s *MemoryStore) ListDue(_ context.Context, now time.Time) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	heads := make(map[string]Item)
	for _, item := range s.items {
		if item.Status != StatusQueued && item.Status != StatusProcessing {
			continue
		}
		head, ok := heads[item.ProjectID]
		if !ok || itemBefore(item, head) {
			heads[item.ProjectID] = item
		}
	}

	items := make([]Item, 0)
	for _, head := range heads {
		if head.Due(now) {
			items = append(items, head)
		}
	}
	sortItems(items)

	return items, nil
}

// CountByStatus implements Store.
func (s *MemoryStore) CountByStatus(_ context.Context) (map[Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Status]int)
	for _, item := range s.items {
		counts[item.Status]++
	}

	return counts, nil
}

// TryLease implements Store.
func (s *MemoryStore) TryLease(_ context.Context, id ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return false, ErrNotFound
	}
	if item.Status != StatusQueued {
		return false, nil
	}

	item.Status = StatusProcessing
	item.UpdatedAt = s.clock.Now()
	s.items[id] = item

	return true, nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[item.ID]
	if !ok {
		return ErrNotFound
	}

	stored.Status = item.Status
	stored.Attempts = item.Attempts
	stored.NextRunAt = item.NextRunAt
	stored.BaseVersion = item.BaseVersion
	stored.LastError = item.LastError
	stored.UpdatedAt = s.clock.Now()
	s.items[item.ID] = stored

	return nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)

	return nil
}

// SweepStale implements Store.
func (s *MemoryStore) SweepStale(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset := 0
	now := s.clock.Now()
	for id, item := range s.items {
		if item.Status != StatusProcessing || !item.UpdatedAt.Before(before) {
			continue
		}
		item.Status = StatusQueued
		item.NextRunAt = now
		item.UpdatedAt = now
		s.items[id] = item
		reset++
	}

	return reset, nil
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].ProjectID != items[j].ProjectID {
			return items[i].ProjectID < items[j].ProjectID
		}

		return itemBefore(items[i], items[j])
	})
}

// itemBefore orders items within a project: creation time, then ID.
func itemBefore(a, b Item) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}

	return a.ID.String() < b.ID.String()
}
