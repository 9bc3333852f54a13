package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cyberbuild/cb-trade-data-service/internal/exchange"
	"github.com/cyberbuild/cb-trade-data-service/internal/gap"
	"github.com/cyberbuild/cb-trade-data-service/internal/model"
	"github.com/cyberbuild/cb-trade-data-service/internal/store"
)

// Config holds reconciliation engine configuration.
type Config struct {
	// Interval is the grid spacing between expected data points.
	Interval time.Duration
}

// Engine reconciles stored data with upstream data for one (exchange, coin).
type Engine struct {
	cfg       Config
	store     store.Store
	connector exchange.Connector
	logger    *slog.Logger
}

// New creates an engine bound to one store and one exchange connector.
func New(cfg Config, st store.Store, connector exchange.Connector, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		store:     st,
		connector: connector,
		logger:    logger,
	}
}

// Reconcile assembles the complete series for [chunkStart, chunkEnd):
//
//  1. read what is stored,
//  2. detect gaps on the grid,
//  3. fetch each gap from the upstream (failures leave the gap unfilled and
//     are reported, not fatal),
//  4. write fetched entries back (failure reported, fetched data kept),
//  5. merge with freshly fetched winning on timestamp collisions.
//
// A non-nil error is fatal (the initial store read failed, or the context
// was cancelled); every other condition is carried in MergedResult.Reported.
func (e *Engine) Reconcile(ctx context.Context, coin string, chunkStart, chunkEnd time.Time) (model.MergedResult, error) {
	stored, err := e.store.GetRange(ctx, e.connector.Name(), coin, chunkStart, chunkEnd)
	if err != nil {
		return model.MergedResult{}, err
	}

	gaps := gap.FindGaps(gap.Timestamps(stored), chunkStart, chunkEnd, e.cfg.Interval)

	var (
		fetched  []model.Entry
		unfilled []model.GapRange
		reported []error
	)

	for _, g := range gaps {
		// Cancellation is checked between per-gap fetches; an in-flight
		// upstream call is not preempted.
		if err := ctx.Err(); err != nil {
			return model.MergedResult{}, err
		}

		entries, err := e.connector.FetchRange(ctx, coin, g.Start, g.End)
		if err != nil {
			if ctx.Err() != nil {
				return model.MergedResult{}, ctx.Err()
			}
			e.logger.Warn("gap fetch failed",
				"exchange", e.connector.Name(), "coin", coin,
				"gap_start", g.Start, "gap_end", g.End, "error", err,
			)
			unfilled = append(unfilled, g)
			reported = append(reported, fmt.Errorf("gap [%s, %s): %w",
				g.Start.Format(time.RFC3339), g.End.Format(time.RFC3339), err))
			continue
		}

		fetched = append(fetched, entries...)

		// Whatever the upstream did not return inside this gap stays missing;
		// it is recorded, never interpolated.
		still := gap.FindGaps(gap.Timestamps(entries), g.Start, g.End, e.cfg.Interval)
		unfilled = append(unfilled, still...)
	}

	if len(fetched) > 0 {
		if err := e.store.SaveBulk(ctx, e.connector.Name(), coin, fetched); err != nil {
			// Persistence failure is a separate condition from data
			// availability: the fetched entries still reach the caller.
			e.logger.Error("write-back failed",
				"exchange", e.connector.Name(), "coin", coin,
				"count", len(fetched), "error", err,
			)
			reported = append(reported, err)
		}
	}

	result := model.MergedResult{
		Entries:  merge(stored, fetched),
		Unfilled: unfilled,
		Reported: errors.Join(reported...),
	}

	e.logger.Debug("chunk reconciled",
		"exchange", e.connector.Name(), "coin", coin,
		"chunk_start", chunkStart, "chunk_end", chunkEnd,
		"stored", len(stored), "fetched", len(fetched),
		"gaps", len(gaps), "unfilled", len(unfilled),
	)
	return result, nil
}

// merge unions stored and fetched entries keyed by timestamp, ascending.
// On collision the freshly fetched entry wins: the upstream is authoritative
// over a potentially stale local copy.
func merge(stored, fetched []model.Entry) []model.Entry {
	if len(fetched) == 0 {
		return stored
	}

	byTS := make(map[int64]model.Entry, len(stored)+len(fetched))
	for _, e := range stored {
		byTS[e.Timestamp.UnixNano()] = e
	}
	for _, e := range fetched {
		byTS[e.Timestamp.UnixNano()] = e
	}

	out := make([]model.Entry, 0, len(byTS))
	for _, e := range byTS {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
