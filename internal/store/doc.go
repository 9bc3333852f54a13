// Package store provides durable key-addressed storage of entries keyed by
// (exchange, coin, timestamp).
//
// Three backends implement the Store interface: an in-memory reference store,
// a PostgreSQL store and a Redis store. All backends guarantee idempotent
// upsert-by-timestamp writes and deduplicated ascending range reads, and are
// safe for concurrent use.
package store
