// Package config loads service configuration with viper.
//
// Values come from, in increasing priority: defaults, an optional
// config.yaml (., ./config, /etc/kardex) and environment variables. Keys map
// to env vars by upper-casing and replacing dots with underscores, so
// database.url is DATABASE_URL and outbox.batch_size is OUTBOX_BATCH_SIZE.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration.
type Config struct {
	App         AppConfig
	Log         LogConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Periods     PeriodsConfig
	Idempotency IdempotencyConfig
	Outbox      OutboxConfig
	Audit       AuditConfig
}

// AppConfig holds process level settings.
type AppConfig struct {
	Env             string
	Port            string
	ShutdownTimeout time.Duration
}

// IsDevelopment reports whether the service runs in development mode.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level string
}

// DatabaseConfig configures the pgx pool and transactions.
type DatabaseConfig struct {
	URL              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	StatementTimeout time.Duration
}

// RedisConfig configures the opening balance cache and event channel.
// An empty Addr disables redis.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	Channel    string
	OpeningTTL time.Duration
}

// Enabled reports whether redis is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// PeriodsConfig configures the retroactive policy.
type PeriodsConfig struct {
	// DepthExpression is a CEL expression over depth_days, owner_id and
	// weekday that must evaluate to true for a retroactive date.
	DepthExpression string
}

// IdempotencyConfig configures Idempotency-Key handling.
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
}

// OutboxConfig configures the relay worker.
type OutboxConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetentionDays int
}

// AuditConfig configures cascade audit storage.
type AuditConfig struct {
	CompressThreshold int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.shutdown_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.statement_timeout", 30*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "kardex.events")
	v.SetDefault("redis.opening_ttl", 24*time.Hour)

	v.SetDefault("periods.depth_expression", "depth_days <= 365")

	v.SetDefault("idempotency.enabled", true)
	v.SetDefault("idempotency.ttl", 24*time.Hour)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retention_days", 7)

	v.SetDefault("audit.compress_threshold", 10*1024)
}

// Load reads configuration. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/kardex")

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Env:             v.GetString("app.env"),
			Port:            v.GetString("app.port"),
			ShutdownTimeout: v.GetDuration("app.shutdown_timeout"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		Database: DatabaseConfig{
			URL:              v.GetString("database.url"),
			MaxConns:         v.GetInt32("database.max_conns"),
			MinConns:         v.GetInt32("database.min_conns"),
			MaxConnLifetime:  v.GetDuration("database.max_conn_lifetime"),
			StatementTimeout: v.GetDuration("database.statement_timeout"),
		},
		Redis: RedisConfig{
			Addr:       v.GetString("redis.addr"),
			Password:   v.GetString("redis.password"),
			DB:         v.GetInt("redis.db"),
			Channel:    v.GetString("redis.channel"),
			OpeningTTL: v.GetDuration("redis.opening_ttl"),
		},
		Periods: PeriodsConfig{
			DepthExpression: v.GetString("periods.depth_expression"),
		},
		Idempotency: IdempotencyConfig{
			Enabled: v.GetBool("idempotency.enabled"),
			TTL:     v.GetDuration("idempotency.ttl"),
		},
		Outbox: OutboxConfig{
			BatchSize:     v.GetInt("outbox.batch_size"),
			PollInterval:  v.GetDuration("outbox.poll_interval"),
			RetentionDays: v.GetInt("outbox.retention_days"),
		},
		Audit: AuditConfig{
			CompressThreshold: v.GetInt("audit.compress_threshold"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: DATABASE_URL is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("config: database.min_conns (%d) exceeds database.max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("config: outbox.batch_size must be positive, got %d", c.Outbox.BatchSize)
	}
	return nil
}
