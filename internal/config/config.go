package config

import (
	"fmt"
	"time"

	"github.com/marmota-alpina/gostack-desafio-08/internal/domain"
	pkgconfig "github.com/marmota-alpina/gostack-desafio-08/pkg/config"
	"github.com/marmota-alpina/gostack-desafio-08/pkg/database"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the cart store service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CART_HTTP_PORT" envDefault:"8008"`

	// Cart store
	StorageBackend     string `env:"CART_STORAGE_BACKEND" envDefault:"memory"`
	StorageKey         string `env:"CART_STORAGE_KEY" envDefault:"@appStore:products"`
	Namespace          string `env:"CART_NAMESPACE" envDefault:"default"`
	ZeroQuantityPolicy string `env:"CART_ZERO_QUANTITY_POLICY" envDefault:"retain"`
	CommandBuffer      int    `env:"CART_COMMAND_BUFFER" envDefault:"64"`
	BreakerEnabled     bool   `env:"CART_BREAKER_ENABLED" envDefault:"true"`

	// Snapshot TTL in hours for the redis backend. 0 keeps it forever.
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"0"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"cart"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	// Kafka. No brokers disables cart events.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Policy returns the parsed zero-quantity policy. Load has already validated it.
func (c *Config) Policy() domain.ZeroQuantityPolicy {
	p, err := domain.ParseZeroQuantityPolicy(c.ZeroQuantityPolicy)
	if err != nil {
		return domain.RetainZeroQuantity
	}
	return p
}

// SnapshotTTL returns the redis TTL for the snapshot key.
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// Postgres returns the connection settings for the postgres backend.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPassword,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSLMode,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 10 * time.Minute,
	}
}

// Redis returns the connection settings for the redis backend.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPass, DB: c.RedisDB}
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.StorageBackend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("invalid CART_STORAGE_BACKEND %q: want memory, redis or postgres", c.StorageBackend)
	}
	if c.StorageKey == "" {
		return fmt.Errorf("CART_STORAGE_KEY must not be empty")
	}
	if c.Namespace == "" {
		return fmt.Errorf("CART_NAMESPACE must not be empty")
	}
	if _, err := domain.ParseZeroQuantityPolicy(c.ZeroQuantityPolicy); err != nil {
		return fmt.Errorf("invalid CART_ZERO_QUANTITY_POLICY: %w", err)
	}
	if c.CommandBuffer < 0 {
		return fmt.Errorf("invalid CART_COMMAND_BUFFER: %d", c.CommandBuffer)
	}
	if c.CartTTL < 0 {
		return fmt.Errorf("invalid CART_TTL_HOURS: %d", c.CartTTL)
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("invalid OTEL_SAMPLE_RATE: %v", c.OTelSampleRate)
	}
	return nil
}
