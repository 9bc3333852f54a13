package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Stored Types
// -----------------------------------------------------------------------------

// Candle is one fixed-interval OHLCV record as reported by an exchange.
type Candle struct {
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
	Trades int64           `json:"trades"` // Number of trades in the interval, 0 if not reported
}

// Entry is a single stored data point. At most one Entry exists per
// (exchange, coin, timestamp); writes to an existing key overwrite it.
type Entry struct {
	Exchange  string    `json:"exchange"`
	Coin      string    `json:"coin"`
	Timestamp time.Time `json:"timestamp"` // Grid-aligned, UTC
	Candle    Candle    `json:"candle"`
}

// -----------------------------------------------------------------------------
// Reconciliation Types
// -----------------------------------------------------------------------------

// GapRange is a maximal contiguous run of grid points missing from storage.
// Start is inclusive, End exclusive, both grid-aligned, Start < End.
type GapRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the time span covered by the gap.
func (g GapRange) Duration() time.Duration {
	return g.End.Sub(g.Start)
}

// Points returns the number of grid points inside the gap.
func (g GapRange) Points(interval time.Duration) int {
	if interval <= 0 || !g.Start.Before(g.End) {
		return 0
	}
	return int((g.Duration() + interval - 1) / interval)
}

// Contains reports whether t falls inside [Start, End).
func (g GapRange) Contains(t time.Time) bool {
	return !t.Before(g.Start) && t.Before(g.End)
}

// MergedResult is the outcome of reconciling one chunk: stored and freshly
// fetched entries merged in ascending timestamp order, plus any gap subranges
// the upstream could not fill.
//
// Reported carries non-fatal conditions encountered during reconciliation
// (per-gap upstream failures, write-back failures). A non-nil Reported does
// not invalidate Entries; the data that could be assembled is still usable.
type MergedResult struct {
	Entries  []Entry
	Unfilled []GapRange
	Reported error
}
