package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServiceConfig) Validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if err := c.Storage.Postgres.validate("storage.postgres"); err != nil {
			return err
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, postgres, redis; got %q", c.Storage.Backend)
	}

	if c.Grid.Interval <= 0 {
		return errors.New("grid.interval must be positive")
	}
	if c.Grid.ChunkSpan < c.Grid.Interval {
		return fmt.Errorf("grid.chunk_span (%s) must be at least grid.interval (%s)",
			c.Grid.ChunkSpan, c.Grid.Interval)
	}
	// Chunk boundaries anchor each chunk's grid walk. A span that is not a
	// whole number of intervals would put every boundary after the first off
	// the request-level grid.
	if c.Grid.ChunkSpan%c.Grid.Interval != 0 {
		return fmt.Errorf("grid.chunk_span (%s) must be a multiple of grid.interval (%s)",
			c.Grid.ChunkSpan, c.Grid.Interval)
	}

	if !c.Exchanges.Binance.Enabled && !c.Exchanges.Kraken.Enabled {
		return errors.New("at least one exchange must be enabled")
	}
	if c.Exchanges.Binance.Enabled && c.Exchanges.Binance.RateLimit <= 0 {
		return errors.New("exchanges.binance.rate_limit must be positive")
	}
	if c.Exchanges.Kraken.Enabled && c.Exchanges.Kraken.RateLimit <= 0 {
		return errors.New("exchanges.kraken.rate_limit must be positive")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
