package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cyberbuild/cb-trade-data-service/internal/exchange"
	"github.com/cyberbuild/cb-trade-data-service/internal/model"
	"github.com/cyberbuild/cb-trade-data-service/internal/reconcile"
	"github.com/cyberbuild/cb-trade-data-service/internal/store"
)

// Config holds streaming coordinator configuration.
type Config struct {
	// ChunkSpan is the time span covered by one delivered chunk.
	ChunkSpan time.Duration
	// Interval is the grid spacing between expected data points.
	Interval time.Duration
}

// Request identifies one historical data request.
type Request struct {
	ID       uuid.UUID
	Exchange string
	Coin     string
	Start    time.Time
	End      time.Time
}

// Coordinator runs historical streaming tasks: availability check, then
// sequential reconcile-and-deliver per chunk.
type Coordinator struct {
	cfg      Config
	store    store.Store
	registry *exchange.Registry
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator over the given store and exchange
// registry.
func NewCoordinator(cfg Config, st store.Store, registry *exchange.Registry, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		store:    st,
		registry: registry,
		logger:   logger,
	}
}

// Stream executes one request to completion, sending frames to sink. The
// returned state is always terminal: Completed when every chunk was
// delivered, Failed on an unrecoverable error (reported to the client first
// when the sink still works), Cancelled when the context was cancelled or
// the sink broke. Once the sink breaks no further store or upstream calls
// are made.
func (c *Coordinator) Stream(ctx context.Context, req Request, sink Sink) (State, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	reqID := req.ID.String()
	exchangeName := store.NormalizeExchange(req.Exchange)
	coin := store.NormalizeCoin(req.Coin)

	logger := c.logger.With("request_id", reqID, "exchange", exchangeName, "coin", coin)

	state := StateCheckingAvailability
	logger.Info("streaming task started", "state", state, "start", req.Start, "end", req.End)

	connector, err := c.registry.Get(exchangeName)
	if err != nil {
		return c.fail(ctx, sink, reqID, logger, err)
	}

	available, err := connector.CheckAvailability(ctx, coin)
	if err != nil {
		if ctx.Err() != nil {
			return c.cancelled(logger, ctx.Err())
		}
		return c.fail(ctx, sink, reqID, logger, fmt.Errorf("check availability: %w", err))
	}
	if !available {
		logger.Info("coin unavailable on exchange")
		msg := Message{
			Type:      MsgHistoricalUnavailable,
			RequestID: reqID,
			Exchange:  exchangeName,
			Coin:      coin,
		}
		if err := sink.Send(ctx, msg); err != nil {
			return c.cancelled(logger, err)
		}
		logger.Info("streaming task finished", "state", StateFailed)
		return StateFailed, fmt.Errorf("%w: %s on %s", exchange.ErrCoinUnavailable, coin, exchangeName)
	}

	state = StateStreaming
	engine := reconcile.New(reconcile.Config{Interval: c.cfg.Interval}, c.store, connector, logger)
	chunks := SplitChunks(req.Start, req.End, c.chunkSpan())
	logger.Debug("availability confirmed", "state", state, "chunks", len(chunks))

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return c.cancelled(logger, err)
		}

		result, err := engine.Reconcile(ctx, coin, chunk.Start, chunk.End)
		if err != nil {
			if ctx.Err() != nil {
				return c.cancelled(logger, ctx.Err())
			}
			return c.fail(ctx, sink, reqID, logger,
				fmt.Errorf("reconcile chunk [%s, %s): %w",
					chunk.Start.Format(time.RFC3339), chunk.End.Format(time.RFC3339), err))
		}

		msg := chunkMessage(reqID, exchangeName, coin, chunk, result)
		if err := sink.Send(ctx, msg); err != nil {
			return c.cancelled(logger, err)
		}

		logger.Debug("chunk delivered",
			"chunk", i+1, "chunks", len(chunks),
			"entries", len(result.Entries), "unfilled", len(result.Unfilled),
		)
	}

	complete := Message{
		Type:      MsgHistoricalComplete,
		RequestID: reqID,
		Exchange:  exchangeName,
		Coin:      coin,
	}
	if err := sink.Send(ctx, complete); err != nil {
		return c.cancelled(logger, err)
	}

	logger.Info("streaming task finished", "state", StateCompleted, "chunks", len(chunks))
	return StateCompleted, nil
}

// chunkSpan returns the configured span floored to a whole number of
// intervals. Chunk boundaries anchor each chunk's grid walk, so an off-grid
// span would make fully cached ranges look gappy from the second chunk on.
func (c *Coordinator) chunkSpan() time.Duration {
	span := c.cfg.ChunkSpan
	if c.cfg.Interval > 0 {
		span -= span % c.cfg.Interval
		if span < c.cfg.Interval {
			span = c.cfg.Interval
		}
	}
	return span
}

// fail reports the error to the client on a best-effort basis and returns
// the Failed state.
func (c *Coordinator) fail(ctx context.Context, sink Sink, reqID string, logger *slog.Logger, cause error) (State, error) {
	logger.Error("streaming task failed", "error", cause)

	msg := Message{
		Type:      MsgError,
		RequestID: reqID,
		Error:     cause.Error(),
	}
	if err := sink.Send(ctx, msg); err != nil {
		logger.Warn("error frame not delivered", "error", err)
	}
	return StateFailed, cause
}

func (c *Coordinator) cancelled(logger *slog.Logger, cause error) (State, error) {
	logger.Info("streaming task cancelled", "cause", cause)
	return StateCancelled, cause
}

// chunkMessage builds the wire frame for one reconciled chunk. Reconcile-level
// conditions that did not abort the chunk travel as warnings.
func chunkMessage(reqID, exchangeName, coin string, chunk Chunk, result model.MergedResult) Message {
	msg := Message{
		Type:       MsgHistoricalChunk,
		RequestID:  reqID,
		Exchange:   exchangeName,
		Coin:       coin,
		ChunkStart: &chunk.Start,
		ChunkEnd:   &chunk.End,
		Entries:    result.Entries,
		Unfilled:   result.Unfilled,
	}
	if result.Reported != nil {
		msg.Warnings = strings.Split(result.Reported.Error(), "\n")
	}
	return msg
}
