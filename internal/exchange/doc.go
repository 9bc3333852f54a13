// Package exchange defines the upstream connector contract and the registry
// that routes requests by exchange name.
//
// A connector wraps one exchange's API. Empty or partial results for a time
// range are legitimate responses (e.g. before a coin's listing date), never
// errors; connectivity, authorization and rate-limit failures surface as a
// classified UpstreamError. Each connector throttles its own outgoing calls,
// since upstream rate ceilings apply per exchange regardless of how many
// local requests are in flight.
package exchange
