package exchange

import (
	"context"
	"time"

	"github.com/cyberbuild/cb-trade-data-service/internal/model"
)

// Connector is the boundary to one exchange's upstream API.
type Connector interface {
	// Name returns the registry name of the exchange, e.g. "binance".
	Name() string

	// CheckAvailability reports whether the coin is listed and tradable.
	// A false result is not an error; errors are upstream failures.
	CheckAvailability(ctx context.Context, coin string) (bool, error)

	// FetchRange returns entries with timestamps in [start, end), ascending.
	// The upstream may legitimately return fewer points than the requested
	// grid coverage, or none at all; that is not an error.
	FetchRange(ctx context.Context, coin string, start, end time.Time) ([]model.Entry, error)
}
