package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/velmie/syncbox"
)

const maxErrorLen = 1024

// Store implements syncbox.Store on an embedded SQLite database.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var _ syncbox.Store = (*Store)(nil)

// NewStore constructs a SQLite store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a SQLite store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// InitSchema creates the outbox table and indexes when missing.
func (s *Store) InitSchema(ctx context.Context) error {
	statements, err := Schema(s.table)
	if err != nil {
		return err
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return storageErr("init schema", err)
		}
	}

	return nil
}

// Append implements syncbox.Store. The insert is a single statement, so a
// failure leaves no partial item behind.
func (s *Store) Append(ctx context.Context, mutation syncbox.Mutation) (syncbox.Item, error) {
	if err := mutation.Validate(); err != nil {
		return syncbox.Item{}, err
	}

	id, err := s.cfg.Generator.New()
	if err != nil {
		return syncbox.Item{}, storageErr("generate id", err)
	}

	maxAttempts := mutation.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.MaxAttempts
	}

	now := s.cfg.Clock.Now()
	item := syncbox.Item{
		ID:          id,
		Kind:        mutation.Kind,
		Payload:     append([]byte(nil), mutation.Payload...),
		ProjectID:   mutation.ProjectID,
		BaseVersion: mutation.BaseVersion,
		Status:      syncbox.StatusQueued,
		MaxAttempts: maxAttempts,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.db.ExecContext(
		ctx,
		s.queries.insert,
		id,
		string(item.Kind),
		string(item.Payload),
		item.ProjectID,
		item.BaseVersion,
		string(item.Status),
		item.MaxAttempts,
		toMillis(item.NextRunAt),
		toMillis(item.CreatedAt),
		toMillis(item.UpdatedAt),
	); err != nil {
		return syncbox.Item{}, storageErr("insert", err)
	}

	return item, nil
}

// Get implements syncbox.Store.
func (s *Store) Get(ctx context.Context, id syncbox.ID) (syncbox.Item, error) {
	row := s.db.QueryRowContext(ctx, s.queries.selectOne, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return syncbox.Item{}, syncbox.ErrNotFound
		}

		return syncbox.Item{}, storageErr("select", err)
	}

	return item, nil
}

// ListByStatus implements syncbox.Store.
func (s *Store) ListByStatus(ctx context.Context, status syncbox.Status) ([]syncbox.Item, error) {
	return s.list(ctx, s.queries.selectStatus, string(status))
}

// ListDue implements syncbox.Store: due project heads only, see the query
// comment in queries.go.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]syncbox.Item, error) {
	return s.list(
		ctx,
		s.queries.selectDue,
		string(syncbox.StatusQueued),
		toMillis(now),
		string(syncbox.StatusQueued),
		string(syncbox.StatusProcessing),
	)
}

// CountByStatus implements syncbox.Store.
func (s *Store) CountByStatus(ctx context.Context) (map[syncbox.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.countStatus)
	if err != nil {
		return nil, storageErr("count", err)
	}
	defer rows.Close()

	counts := make(map[syncbox.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storageErr("count scan", err)
		}
		counts[syncbox.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("count rows", err)
	}

	return counts, nil
}

// TryLease implements syncbox.Store: a compare-and-swap UPDATE guarded by the
// current status, safe across multiple contexts sharing the database file.
func (s *Store) TryLease(ctx context.Context, id syncbox.ID) (bool, error) {
	result, err := s.db.ExecContext(
		ctx,
		s.queries.lease,
		string(syncbox.StatusProcessing),
		toMillis(s.cfg.Clock.Now()),
		id,
		string(syncbox.StatusQueued),
	)
	if err != nil {
		return false, storageErr("lease", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("lease result", err)
	}
	if affected > 0 {
		return true, nil
	}

	// Distinguish a lost CAS race from a missing item.
	if _, err := s.Get(ctx, id); err != nil {
		if errors.Is(err, syncbox.ErrNotFound) {
			return false, syncbox.ErrNotFound
		}

		return false, err
	}

	return false, nil
}

// Update implements syncbox.Store.
func (s *Store) Update(ctx context.Context, item syncbox.Item) error {
	result, err := s.db.ExecContext(
		ctx,
		s.queries.update,
		string(item.Status),
		item.Attempts,
		toMillis(item.NextRunAt),
		item.BaseVersion,
		truncateError(item.LastError),
		toMillis(s.cfg.Clock.Now()),
		item.ID,
	)
	if err != nil {
		return storageErr("update", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("update result", err)
	}
	if affected == 0 {
		return syncbox.ErrNotFound
	}

	return nil
}

// Remove implements syncbox.Store.
func (s *Store) Remove(ctx context.Context, id syncbox.ID) error {
	result, err := s.db.ExecContext(ctx, s.queries.remove, id)
	if err != nil {
		return storageErr("delete", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("delete result", err)
	}
	if affected == 0 {
		return syncbox.ErrNotFound
	}

	return nil
}

// SweepStale implements syncbox.Store.
func (s *Store) SweepStale(ctx context.Context, before time.Time) (int, error) {
	now := toMillis(s.cfg.Clock.Now())
	result, err := s.db.ExecContext(
		ctx,
		s.queries.sweep,
		string(syncbox.StatusQueued),
		now,
		now,
		string(syncbox.StatusProcessing),
		toMillis(before),
	)
	if err != nil {
		return 0, storageErr("sweep", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("sweep result", err)
	}

	return int(affected), nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]syncbox.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("select", err)
	}
	defer rows.Close()

	items := make([]syncbox.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storageErr("scan", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("rows", err)
	}

	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (syncbox.Item, error) {
	var (
		id          syncbox.ID
		kind        string
		payload     string
		projectID   string
		baseVersion int64
		status      string
		attempts    int
		maxAttempts int
		nextRunAt   int64
		createdAt   int64
		updatedAt   int64
		lastError   string
	)

	if err := row.Scan(
		&id, &kind, &payload, &projectID, &baseVersion, &status,
		&attempts, &maxAttempts, &nextRunAt, &createdAt, &updatedAt, &lastError,
	); err != nil {
		return syncbox.Item{}, err
	}

	return syncbox.Item{
		ID:          id,
		Kind:        syncbox.Kind(kind),
		Payload:     []byte(payload),
		ProjectID:   projectID,
		BaseVersion: baseVersion,
		Status:      syncbox.Status(status),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		NextRunAt:   fromMillis(nextRunAt),
		CreatedAt:   fromMillis(createdAt),
		UpdatedAt:   fromMillis(updatedAt),
		LastError:   lastError,
	}, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: sqlite %s: %w", syncbox.ErrStorage, op, err)
}

func truncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	runes := []rune(msg)

	return string(runes[:maxErrorLen])
}
