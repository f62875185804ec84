// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"timelock/internal/timelock/models"
	platformstrings "timelock/pkg/platform/strings"
)

// Store selects the action ledger backend.
type Store string

const (
	StoreMemory   Store = "memory"
	StoreRedis    Store = "redis"
	StorePostgres Store = "postgres"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string `env:"TIMELOCK_ADDR" envDefault:":8080"`
	JWTSigningKey string `env:"JWT_SIGNING_KEY,required,notEmpty"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	// RateLimit is requests per caller per RateLimitWindow; 0 disables it.
	RateLimit       int           `env:"TIMELOCK_RATE_LIMIT" envDefault:"120"`
	RateLimitWindow time.Duration `env:"TIMELOCK_RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Timelock holds the settings shared by every engine the server hosts.
type Timelock struct {
	Governance string   `env:"TIMELOCK_GOVERNANCE,required,notEmpty"`
	RootAdmins []string `env:"TIMELOCK_ROOT_ADMINS" envSeparator:","`
	// Guardians receive disable-only authority over every boolean-style kind.
	Guardians    []string `env:"TIMELOCK_GUARDIANS" envSeparator:","`
	MinDelay     uint64   `env:"TIMELOCK_MIN_DELAY" envDefault:"60"`
	MaxDelay     uint64   `env:"TIMELOCK_MAX_DELAY" envDefault:"2592000"`
	InitialDelay uint64   `env:"TIMELOCK_INITIAL_DELAY" envDefault:"86400"`
	// ExpirationWindow has no default: 0 must be chosen explicitly to mean
	// actions never expire.
	ExpirationWindow uint64        `env:"TIMELOCK_EXPIRATION_WINDOW,required"`
	Store            Store         `env:"TIMELOCK_STORE" envDefault:"memory"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
}

// RedisConfig configures the shared redis client.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

type PostgresConfig struct {
	URL          string `env:"DATABASE_URL"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
}

// AuditConfig enables kafka fan-out of audit events when brokers are set.
type AuditConfig struct {
	Brokers       []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic         string        `env:"AUDIT_TOPIC" envDefault:"timelock.audit"`
	Partitions    int32         `env:"AUDIT_TOPIC_PARTITIONS" envDefault:"3"`
	Replication   int16         `env:"AUDIT_TOPIC_REPLICATION" envDefault:"1"`
	RelayInterval time.Duration `env:"AUDIT_RELAY_INTERVAL" envDefault:"2s"`
}

// Config is the full server configuration.
type Config struct {
	Server   Server
	Timelock Timelock
	Redis    RedisConfig
	Postgres PostgresConfig
	Audit    AuditConfig
}

// FromEnv parses and validates the configuration.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Timelock.RootAdmins = platformstrings.DedupeAndTrim(cfg.Timelock.RootAdmins)
	cfg.Timelock.Guardians = platformstrings.DedupeAndTrim(cfg.Timelock.Guardians)
	cfg.Audit.Brokers = platformstrings.DedupeAndTrim(cfg.Audit.Brokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	delay, err := c.Timelock.DelayConfig()
	if err != nil {
		return fmt.Errorf("timelock delay: %w", err)
	}
	if w := models.Tick(c.Timelock.ExpirationWindow); delay.MaxDelay > models.MaxTick || w > models.MaxTick-delay.MaxDelay {
		return fmt.Errorf("TIMELOCK_MAX_DELAY plus TIMELOCK_EXPIRATION_WINDOW exceeds %d", models.MaxTick)
	}
	switch c.Timelock.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for store %q", c.Timelock.Store)
		}
	case StorePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for store %q", c.Timelock.Store)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Timelock.Store)
	}
	if c.Server.RateLimit > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("TIMELOCK_RATE_LIMIT_WINDOW must be positive")
	}
	if c.Timelock.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return nil
}

// DelayConfig builds the validated delay bounds.
func (t Timelock) DelayConfig() (models.DelayConfig, error) {
	return models.NewDelayConfig(models.Tick(t.MinDelay), models.Tick(t.MaxDelay), models.Tick(t.InitialDelay))
}

// Expiration returns the configured window; 0 means actions never expire.
func (t Timelock) Expiration() models.Expiration {
	return models.ExpiresAfter(models.Tick(t.ExpirationWindow))
}
