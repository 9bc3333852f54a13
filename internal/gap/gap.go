package gap

import (
	"time"

	"github.com/cyberbuild/cb-trade-data-service/internal/model"
)

// FindGaps walks the expected grid over [start, end) in steps of interval and
// returns the maximal contiguous runs of grid points absent from existing.
//
// existing must be sorted ascending; timestamps that do not fall on the grid
// are ignored. The returned ranges are disjoint, ascending, grid-aligned and
// never empty. A nil result means full coverage.
func FindGaps(existing []time.Time, start, end time.Time, interval time.Duration) []model.GapRange {
	if interval <= 0 || !start.Before(end) {
		return nil
	}

	present := make(map[int64]struct{}, len(existing))
	for _, ts := range existing {
		present[ts.UnixNano()] = struct{}{}
	}

	var (
		gaps     []model.GapRange
		open     bool
		gapStart time.Time
	)

	for t := start; t.Before(end); t = t.Add(interval) {
		if _, ok := present[t.UnixNano()]; ok {
			if open {
				gaps = append(gaps, model.GapRange{Start: gapStart, End: t})
				open = false
			}
			continue
		}
		if !open {
			gapStart = t
			open = true
		}
	}

	// Close a trailing gap at the range end.
	if open {
		gaps = append(gaps, model.GapRange{Start: gapStart, End: end})
	}

	return gaps
}

// Timestamps extracts the timestamps of entries, preserving order.
func Timestamps(entries []model.Entry) []time.Time {
	if len(entries) == 0 {
		return nil
	}
	out := make([]time.Time, len(entries))
	for i, e := range entries {
		out[i] = e.Timestamp
	}
	return out
}
