package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberbuild/cb-trade-data-service/internal/config"
	"github.com/cyberbuild/cb-trade-data-service/internal/model"
)

// RedisStore persists entries in Redis: a sorted set per (exchange, coin)
// indexes timestamps, a hash holds the candle payloads. Member identity is
// the timestamp, which makes repeated writes idempotent by construction.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// OpenRedis connects a client and verifies the connection.
func OpenRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, logger: logger}, nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping verifies the connection is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func indexKey(exchange, coin string) string {
	return "candles:" + Key(exchange, coin) + ":idx"
}

func dataKey(exchange, coin string) string {
	return "candles:" + Key(exchange, coin) + ":data"
}

// GetRange returns stored entries in [start, end), ascending by timestamp.
func (s *RedisStore) GetRange(ctx context.Context, exchange, coin string, start, end time.Time) ([]model.Entry, error) {
	members, err := s.client.ZRangeByScore(ctx, indexKey(exchange, coin), &redis.ZRangeBy{
		Min: strconv.FormatInt(start.UnixMilli(), 10),
		Max: "(" + strconv.FormatInt(end.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, storageErr("get_range", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	payloads, err := s.client.HMGet(ctx, dataKey(exchange, coin), members...).Result()
	if err != nil {
		return nil, storageErr("get_range", err)
	}

	ex, c := NormalizeExchange(exchange), NormalizeCoin(coin)
	out := make([]model.Entry, 0, len(members))
	for i, member := range members {
		raw, ok := payloads[i].(string)
		if !ok {
			// Index entry without payload: skip rather than invent data.
			s.logger.Warn("missing payload for indexed timestamp",
				"exchange", ex, "coin", c, "ts", member)
			continue
		}

		ms, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, storageErr("get_range", fmt.Errorf("bad index member %q: %w", member, err))
		}

		var candle model.Candle
		if err := json.Unmarshal([]byte(raw), &candle); err != nil {
			return nil, storageErr("get_range", fmt.Errorf("decode payload at %s: %w", member, err))
		}

		out = append(out, model.Entry{
			Exchange:  ex,
			Coin:      c,
			Timestamp: time.UnixMilli(ms).UTC(),
			Candle:    candle,
		})
	}
	return out, nil
}

// SaveBulk upserts entries: ZADD keeps one index member per timestamp, HSET
// overwrites the payload for that timestamp.
func (s *RedisStore) SaveBulk(ctx context.Context, exchange, coin string, entries []model.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(entries))
	payloads := make(map[string]any, len(entries))
	for _, e := range entries {
		ms := e.Timestamp.UnixMilli()
		field := strconv.FormatInt(ms, 10)

		raw, err := json.Marshal(e.Candle)
		if err != nil {
			return storageErr("save_bulk", fmt.Errorf("encode payload at %s: %w", field, err))
		}

		members = append(members, redis.Z{Score: float64(ms), Member: field})
		payloads[field] = string(raw)
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, indexKey(exchange, coin), members...)
	pipe.HSet(ctx, dataKey(exchange, coin), payloads)
	if _, err := pipe.Exec(ctx); err != nil {
		return storageErr("save_bulk", err)
	}

	s.logger.Debug("saved entries",
		"exchange", NormalizeExchange(exchange),
		"coin", NormalizeCoin(coin),
		"count", len(entries),
	)
	return nil
}

// LatestTimestamp returns the most recent stored timestamp for the key.
func (s *RedisStore) LatestTimestamp(ctx context.Context, exchange, coin string) (time.Time, bool, error) {
	members, err := s.client.ZRevRangeWithScores(ctx, indexKey(exchange, coin), 0, 0).Result()
	if err != nil {
		return time.Time{}, false, storageErr("latest", err)
	}
	if len(members) == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(int64(members[0].Score)).UTC(), true, nil
}

// Exists reports whether any entry is stored for (exchange, coin).
func (s *RedisStore) Exists(ctx context.Context, exchange, coin string) (bool, error) {
	n, err := s.client.Exists(ctx, indexKey(exchange, coin)).Result()
	if err != nil {
		return false, storageErr("exists", err)
	}
	return n > 0, nil
}
