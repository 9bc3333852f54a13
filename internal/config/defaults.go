package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultListenAddr      = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBackend         = "memory"
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultRedisAddr       = "localhost:6379"
	DefaultInterval        = 5 * time.Minute
	DefaultChunkSpan       = 6 * time.Hour
	DefaultRateLimit       = 5.0
	DefaultBurst           = 1
	DefaultKrakenBaseURL   = "https://api.kraken.com"
	DefaultKrakenTimeout   = 30 * time.Second
	DefaultKrakenRetries   = 3
)

func (c *ServiceConfig) applyDefaults() {
	// Server defaults
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultBackend
	}
	applyDBDefaults(&c.Storage.Postgres)
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = DefaultRedisAddr
	}

	// Grid defaults
	if c.Grid.Interval == 0 {
		c.Grid.Interval = DefaultInterval
	}
	if c.Grid.ChunkSpan == 0 {
		c.Grid.ChunkSpan = DefaultChunkSpan
	}

	// Exchange defaults
	if c.Exchanges.Binance.RateLimit == 0 {
		c.Exchanges.Binance.RateLimit = DefaultRateLimit
	}
	if c.Exchanges.Binance.Burst == 0 {
		c.Exchanges.Binance.Burst = DefaultBurst
	}
	if c.Exchanges.Kraken.BaseURL == "" {
		c.Exchanges.Kraken.BaseURL = DefaultKrakenBaseURL
	}
	if c.Exchanges.Kraken.Timeout == 0 {
		c.Exchanges.Kraken.Timeout = DefaultKrakenTimeout
	}
	if c.Exchanges.Kraken.MaxRetries == 0 {
		c.Exchanges.Kraken.MaxRetries = DefaultKrakenRetries
	}
	if c.Exchanges.Kraken.RateLimit == 0 {
		c.Exchanges.Kraken.RateLimit = DefaultRateLimit
	}
	if c.Exchanges.Kraken.Burst == 0 {
		c.Exchanges.Kraken.Burst = DefaultBurst
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
