package exchange

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle bounds a connector's outgoing request rate. It is shared by all
// in-flight client requests hitting the same exchange.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle creates a throttle allowing requestsPerSec with the given burst.
// A non-positive rate disables throttling.
func NewThrottle(requestsPerSec float64, burst int) *Throttle {
	if requestsPerSec <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(requestsPerSec), burst)}
}

// Wait blocks until the next request is allowed or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
