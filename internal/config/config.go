package config

import "time"

// ServiceConfig is the root configuration for a data service instance.
type ServiceConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Grid      GridConfig      `yaml:"grid"`
	Exchanges ExchangesConfig `yaml:"exchanges"`
}

// ServerConfig holds the streaming server settings.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects and configures the raw data store backend.
type StorageConfig struct {
	// Backend selects the store implementation: "memory", "postgres" or "redis".
	Backend  string      `yaml:"backend"`
	Postgres DBConfig    `yaml:"postgres"`
	Redis    RedisConfig `yaml:"redis"`
}

// DBConfig holds a PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds a Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GridConfig defines the expected timestamp lattice and chunked delivery.
type GridConfig struct {
	// Interval is the spacing between expected data points.
	Interval time.Duration `yaml:"interval"`
	// ChunkSpan is the time span reconciled and emitted as one unit.
	ChunkSpan time.Duration `yaml:"chunk_span"`
}

// ExchangesConfig holds per-exchange connector settings.
type ExchangesConfig struct {
	Binance BinanceConfig `yaml:"binance"`
	Kraken  KrakenConfig  `yaml:"kraken"`
}

// BinanceConfig configures the Binance connector.
type BinanceConfig struct {
	Enabled   bool    `yaml:"enabled"`
	APIKey    string  `yaml:"api_key"`
	APISecret string  `yaml:"api_secret"`
	RateLimit float64 `yaml:"rate_limit"` // Upstream requests per second
	Burst     int     `yaml:"burst"`
}

// KrakenConfig configures the Kraken connector.
type KrakenConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  float64       `yaml:"rate_limit"`
	Burst      int           `yaml:"burst"`
}
