package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cyberbuild/cb-trade-data-service/internal/config"
)

// Open creates the store backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "postgres":
		return OpenPostgres(ctx, cfg.Postgres, logger)
	case "redis":
		return OpenRedis(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
