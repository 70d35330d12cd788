// Package sqlite provides the durable outbox store on an embedded SQLite
// database (modernc.org/sqlite, pure Go).
//
// The store is designed for a client-local, crash-consistent outbox:
//   - TryLease is a compare-and-swap UPDATE on status, so two execution
//     contexts sharing the same database file cannot both lease an item.
//   - SweepStale returns leases orphaned by a crash mid-send to queued.
//   - Times are stored as UTC unix milliseconds.
//
// See Schema for the table definition and Store.InitSchema to apply it.
package sqlite
