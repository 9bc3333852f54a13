package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cyberbuild/cb-trade-data-service/internal/config"
	"github.com/cyberbuild/cb-trade-data-service/internal/model"
)

const candlesSchema = `
CREATE TABLE IF NOT EXISTS candles (
	exchange TEXT        NOT NULL,
	coin     TEXT        NOT NULL,
	ts       TIMESTAMPTZ NOT NULL,
	open     NUMERIC     NOT NULL,
	high     NUMERIC     NOT NULL,
	low      NUMERIC     NOT NULL,
	close    NUMERIC     NOT NULL,
	volume   NUMERIC     NOT NULL,
	trades   BIGINT      NOT NULL DEFAULT 0,
	PRIMARY KEY (exchange, coin, ts)
)`

// PostgresStore persists entries in a PostgreSQL candles table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects a pool, verifies the connection and ensures the
// candles table exists.
func OpenPostgres(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, candlesSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure candles table: %w", err)
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies the connection is healthy.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetRange returns stored entries in [start, end), ascending by timestamp.
func (s *PostgresStore) GetRange(ctx context.Context, exchange, coin string, start, end time.Time) ([]model.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ts, open, high, low, close, volume, trades
		FROM candles
		WHERE exchange = $1 AND coin = $2 AND ts >= $3 AND ts < $4
		ORDER BY ts
	`, NormalizeExchange(exchange), NormalizeCoin(coin), start, end)
	if err != nil {
		return nil, storageErr("get_range", err)
	}
	defer rows.Close()

	var out []model.Entry
	for rows.Next() {
		var (
			ts     time.Time
			c      model.Candle
			trades int64
		)
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &trades); err != nil {
			return nil, storageErr("get_range", err)
		}
		c.Trades = trades
		out = append(out, model.Entry{
			Exchange:  NormalizeExchange(exchange),
			Coin:      NormalizeCoin(coin),
			Timestamp: ts.UTC(),
			Candle:    c,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get_range", err)
	}
	return out, nil
}

// SaveBulk upserts entries using a pgx batch with ON CONFLICT DO UPDATE, so
// repeated and overlapping writes converge on the same stored state.
func (s *PostgresStore) SaveBulk(ctx context.Context, exchange, coin string, entries []model.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ex, c := NormalizeExchange(exchange), NormalizeCoin(coin)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO candles (exchange, coin, ts, open, high, low, close, volume, trades)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (exchange, coin, ts) DO UPDATE SET
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				volume = EXCLUDED.volume,
				trades = EXCLUDED.trades
		`, ex, c, e.Timestamp.UTC(),
			e.Candle.Open, e.Candle.High, e.Candle.Low, e.Candle.Close,
			e.Candle.Volume, e.Candle.Trades)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return storageErr("save_bulk", err)
		}
	}

	s.logger.Debug("saved entries", "exchange", ex, "coin", c, "count", len(entries))
	return nil
}

// LatestTimestamp returns the most recent stored timestamp for the key.
func (s *PostgresStore) LatestTimestamp(ctx context.Context, exchange, coin string) (time.Time, bool, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT max(ts) FROM candles WHERE exchange = $1 AND coin = $2
	`, NormalizeExchange(exchange), NormalizeCoin(coin)).Scan(&ts)
	if err != nil {
		return time.Time{}, false, storageErr("latest", err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}

// Exists reports whether any entry is stored for (exchange, coin).
func (s *PostgresStore) Exists(ctx context.Context, exchange, coin string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM candles WHERE exchange = $1 AND coin = $2)
	`, NormalizeExchange(exchange), NormalizeCoin(coin)).Scan(&exists)
	if err != nil {
		return false, storageErr("exists", err)
	}
	return exists, nil
}
