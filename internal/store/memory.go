package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cyberbuild/cb-trade-data-service/internal/model"
)

// MemoryStore is the in-memory reference backend. It is used in tests and for
// local runs without external storage.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[string]map[int64]model.Entry // key -> unix-nano -> entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		series: make(map[string]map[int64]model.Entry),
	}
}

// GetRange returns stored entries in [start, end), ascending by timestamp.
func (s *MemoryStore) GetRange(ctx context.Context, exchange, coin string, start, end time.Time) ([]model.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("get_range", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.series[Key(exchange, coin)]
	var out []model.Entry
	for _, e := range entries {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// SaveBulk upserts entries by timestamp.
func (s *MemoryStore) SaveBulk(ctx context.Context, exchange, coin string, entries []model.Entry) error {
	if err := ctx.Err(); err != nil {
		return storageErr("save_bulk", err)
	}
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(exchange, coin)
	series := s.series[key]
	if series == nil {
		series = make(map[int64]model.Entry, len(entries))
		s.series[key] = series
	}
	for _, e := range entries {
		series[e.Timestamp.UnixNano()] = e
	}
	return nil
}

// LatestTimestamp returns the most recent stored timestamp for the key.
func (s *MemoryStore) LatestTimestamp(ctx context.Context, exchange, coin string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, storageErr("latest", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest time.Time
		found  bool
	)
	for _, e := range s.series[Key(exchange, coin)] {
		if !found || e.Timestamp.After(latest) {
			latest = e.Timestamp
			found = true
		}
	}
	return latest, found, nil
}

// Exists reports whether any entry is stored for (exchange, coin).
func (s *MemoryStore) Exists(ctx context.Context, exchange, coin string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storageErr("exists", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[Key(exchange, coin)]) > 0, nil
}
