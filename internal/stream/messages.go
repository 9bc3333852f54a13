package stream

import (
	"context"
	"time"

	"github.com/cyberbuild/cb-trade-data-service/internal/model"
)

// Message types on the client-facing wire.
const (
	MsgHistoricalChunk       = "historical_chunk"
	MsgHistoricalComplete    = "historical_complete"
	MsgHistoricalUnavailable = "historical_unavailable"
	MsgError                 = "error"
)

// Message is one frame sent to the client. Every frame carries the request id
// so clients multiplexing several requests on one connection can demux.
type Message struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`

	Exchange string `json:"exchange,omitempty"`
	Coin     string `json:"coin,omitempty"`

	ChunkStart *time.Time `json:"chunk_start,omitempty"`
	ChunkEnd   *time.Time `json:"chunk_end,omitempty"`

	Entries  []model.Entry    `json:"entries,omitempty"`
	Unfilled []model.GapRange `json:"unfilled,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`

	Error string `json:"error,omitempty"`
}

// Sink delivers messages to one client. A Send error means the client is
// unreachable and the task must stop; the coordinator will not retry.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}
