package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cyberbuild/cb-trade-data-service/internal/model"
)

// Store is the raw data store boundary consumed by the reconciliation engine.
type Store interface {
	// GetRange returns stored entries with timestamps in [start, end),
	// ascending and deduplicated by timestamp.
	GetRange(ctx context.Context, exchange, coin string, start, end time.Time) ([]model.Entry, error)

	// SaveBulk upserts entries by timestamp. Repeating a call with the same
	// input produces the same stored state; overlapping concurrent calls for
	// identical keys are safe.
	SaveBulk(ctx context.Context, exchange, coin string, entries []model.Entry) error

	// LatestTimestamp returns the most recent stored timestamp for the key,
	// with ok=false when nothing is stored.
	LatestTimestamp(ctx context.Context, exchange, coin string) (time.Time, bool, error)

	// Exists reports whether any entry is stored for (exchange, coin).
	Exists(ctx context.Context, exchange, coin string) (bool, error)
}

// StorageError classifies a read or write failure against the store.
type StorageError struct {
	Op  string // "get_range", "save_bulk", "latest", "exists"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
