package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cyberbuild/cb-trade-data-service/internal/config"
	"github.com/cyberbuild/cb-trade-data-service/internal/exchange"
	"github.com/cyberbuild/cb-trade-data-service/internal/exchange/binance"
	"github.com/cyberbuild/cb-trade-data-service/internal/exchange/kraken"
	"github.com/cyberbuild/cb-trade-data-service/internal/server"
	"github.com/cyberbuild/cb-trade-data-service/internal/store"
	"github.com/cyberbuild/cb-trade-data-service/internal/stream"
	"github.com/cyberbuild/cb-trade-data-service/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/dataservice.yaml", "path to config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	// Set up structured logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting data service",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"listen_addr", cfg.Server.ListenAddr,
		"backend", cfg.Storage.Backend,
		"interval", cfg.Grid.Interval,
		"chunk_span", cfg.Grid.ChunkSpan,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Open the store backend
	st, err := store.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore(st, logger)

	logger.Info("store opened", "backend", cfg.Storage.Backend)

	// Build the exchange registry from enabled connectors
	registry := exchange.NewRegistry()

	if cfg.Exchanges.Binance.Enabled {
		conn, err := binance.New(cfg.Exchanges.Binance, cfg.Grid.Interval, logger)
		if err != nil {
			logger.Error("failed to create binance connector", "error", err)
			os.Exit(1)
		}
		registry.Register(conn)
	}
	if cfg.Exchanges.Kraken.Enabled {
		conn, err := kraken.New(cfg.Exchanges.Kraken, cfg.Grid.Interval, logger)
		if err != nil {
			logger.Error("failed to create kraken connector", "error", err)
			os.Exit(1)
		}
		registry.Register(conn)
	}

	logger.Info("exchanges registered", "exchanges", registry.Names())

	// Streaming coordinator and server
	coordinator := stream.NewCoordinator(stream.Config{
		ChunkSpan: cfg.Grid.ChunkSpan,
		Interval:  cfg.Grid.Interval,
	}, st, registry, logger)

	srv := server.New(cfg.Server, st, registry, coordinator, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("data service running", "addr", cfg.Server.ListenAddr)

	if err := g.Wait(); err != nil {
		logger.Error("data service stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("data service stopped")
}

// closeStore releases backend resources for stores that hold connections.
func closeStore(st store.Store, logger *slog.Logger) {
	switch s := st.(type) {
	case *store.PostgresStore:
		s.Close()
	case *store.RedisStore:
		if err := s.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}
}
