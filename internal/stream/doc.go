// Package stream drives chunked, cancellable delivery of reconciled
// historical data over an abstract sink.
//
// One client request runs as one sequential task: chunks are reconciled and
// emitted strictly in time order, one in flight at a time, so delivery order
// is preserved and memory use stays bounded. The coordinator's lifecycle is
// an explicit state machine (Idle, CheckingAvailability, Streaming and the
// terminal Completed/Failed/Cancelled states) so error and cancellation
// transitions are testable independently of the transport.
package stream
