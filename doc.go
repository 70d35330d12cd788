// Package syncbox provides an offline-first sync engine: a durable outbox of
// local mutations, a single-flight processor that delivers them to a remote
// endpoint in per-project FIFO order, a circuit breaker guarding the remote,
// and a content-hash drift detector.
//
// Typical flow:
//  1. Local mutations are appended to a Store (see the sqlite package for the
//     durable backend) through an Engine, which validates payloads per kind.
//  2. A Processor drains due items on a tick or a connectivity-restored wake,
//     consulting the CircuitBreaker before each send and carrying the item ID
//     as an idempotency key.
//  3. Transient failures are retried with exponential backoff up to the item's
//     attempt budget; version conflicts become terminal conflict items that
//     the Engine surfaces for manual resolution (discard or overwrite).
//
// The Detector compares a canonical SHA-256 hash of a local document against
// the server's hash to decide whether local queueing must pause for a refresh.
package syncbox
