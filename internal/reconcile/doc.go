// Package reconcile merges persisted time-series data with selectively
// backfilled upstream data for one chunk at a time.
//
// For each chunk the engine reads what is stored, detects missing grid
// points, fetches only those subranges from the exchange, writes the fetched
// entries back idempotently, and returns the ordered union. A failure to fill
// one gap never aborts the rest of the chunk; a failure to persist never
// discards fetched data from the in-memory merge.
package reconcile
