package exchange

import (
	"errors"
	"fmt"
)

// ErrUnknownExchange is returned by the registry when no connector is
// registered under the requested name.
var ErrUnknownExchange = errors.New("unknown exchange")

// ErrCoinUnavailable indicates the coin is not listed on the named exchange.
var ErrCoinUnavailable = errors.New("coin unavailable")

// UpstreamError classifies a connectivity, authorization or rate-limit
// failure from an exchange API. It is distinct from a legitimate empty-range
// response, which is not an error at all.
type UpstreamError struct {
	Exchange  string
	Op        string // "check_availability", "fetch_range"
	Retryable bool   // Hint: throttling and transient connectivity are retryable
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s %s: %v", e.Exchange, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
