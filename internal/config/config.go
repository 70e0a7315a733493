// Package config provides configuration management for the event log service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the event log service.
type Config struct {
	// Environment is the deployment environment tag stamped onto every
	// emitted event (e.g. "development", "staging", "production").
	Environment string `mapstructure:"environment"`
	// Server contains metrics listener settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings for the outbox store.
	Database DatabaseConfig `mapstructure:"database"`
	// ClickHouse contains event store sink settings.
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	// Temporal contains relay scheduling settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Sentry contains error aggregation settings.
	Sentry SentryConfig `mapstructure:"sentry"`
	// Outbox contains relay worker settings.
	Outbox OutboxConfig `mapstructure:"outbox"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind listeners to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password. Loaded exclusively from
	// EVENTLOG_DATABASE_PASSWORD; never from config files.
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	// Default is "require" for production security. Use "disable" only for local development.
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 2).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// ClickHouseConfig holds event store sink configuration.
type ClickHouseConfig struct {
	// Addr is the list of ClickHouse server addresses (host:port).
	Addr []string `mapstructure:"addr"`
	// Database is the target database name.
	Database string `mapstructure:"database"`
	// Table is the target table for relayed events.
	Table string `mapstructure:"table"`
	// User is the ClickHouse username.
	User string `mapstructure:"user"`
	// Password is loaded exclusively from EVENTLOG_CLICKHOUSE_PASSWORD.
	Password string `mapstructure:"-"`
	// DialTimeout is the maximum time to establish a connection.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// ReadTimeout is the maximum time to wait for a query response.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// Compression enables LZ4 compression on the wire.
	Compression bool `mapstructure:"compression"`
}

// TemporalConfig holds relay scheduling configuration.
type TemporalConfig struct {
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
	// TaskQueue is the task queue name for relay runs.
	TaskQueue string `mapstructure:"task_queue"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// SentryConfig holds error aggregation configuration.
type SentryConfig struct {
	// Enabled enables error reporting to Sentry.
	Enabled bool `mapstructure:"enabled"`
	// DSN is loaded exclusively from EVENTLOG_SENTRY_DSN.
	DSN string `mapstructure:"-"`
	// Environment tags reported events (e.g. "production").
	Environment string `mapstructure:"environment"`
	// FlushTimeout is the maximum time to wait for buffered events on shutdown.
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

// OutboxConfig holds relay worker settings.
type OutboxConfig struct {
	// BatchSize is the maximum number of records claimed per relay run.
	BatchSize int `mapstructure:"batch_size"`
	// StaleThreshold is how long a record may sit in processing before it is
	// presumed abandoned and reclaimed as failed.
	StaleThreshold time.Duration `mapstructure:"stale_threshold"`
	// SoftTimeLimit is the run duration past which a slow-run warning is logged.
	SoftTimeLimit time.Duration `mapstructure:"soft_time_limit"`
	// HardTimeLimit is the run duration after which the scheduler terminates the run.
	HardTimeLimit time.Duration `mapstructure:"hard_time_limit"`
	// RetryBackoff is the initial delay before the scheduler retries a failed run.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// MaxRetries is the number of scheduler-level retries after a failed run.
	MaxRetries int `mapstructure:"max_retries"`
	// CronSchedule is the cron expression that triggers relay runs.
	CronSchedule string `mapstructure:"cron_schedule"`
}

// MetricsAddress returns the host:port combination for the metrics server.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("EVENTLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/event-log-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv("EVENTLOG_DATABASE_PASSWORD")
	cfg.ClickHouse.Password = os.Getenv("EVENTLOG_CLICKHOUSE_PASSWORD")
	cfg.Sentry.DSN = os.Getenv("EVENTLOG_SENTRY_DSN")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "eventlog")
	v.SetDefault("database.name", "event_log_service")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// ClickHouse defaults
	v.SetDefault("clickhouse.addr", []string{"localhost:9000"})
	v.SetDefault("clickhouse.database", "default")
	v.SetDefault("clickhouse.table", "event_logs")
	v.SetDefault("clickhouse.user", "default")
	v.SetDefault("clickhouse.dial_timeout", "10s")
	v.SetDefault("clickhouse.read_timeout", "30s")
	v.SetDefault("clickhouse.compression", true)

	// Temporal defaults
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "event-log")
	v.SetDefault("temporal.task_queue", "event-log-relay")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Sentry defaults
	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.flush_timeout", "2s")

	// Relay worker defaults
	v.SetDefault("outbox.batch_size", 500)
	v.SetDefault("outbox.stale_threshold", "10m")
	v.SetDefault("outbox.soft_time_limit", "300s")
	v.SetDefault("outbox.hard_time_limit", "330s")
	v.SetDefault("outbox.retry_backoff", "60s")
	v.SetDefault("outbox.max_retries", 3)
	v.SetDefault("outbox.cron_schedule", "* * * * *")
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}

	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Validate sink config
	if len(c.ClickHouse.Addr) == 0 {
		return fmt.Errorf("clickhouse address is required")
	}
	if c.ClickHouse.Table == "" {
		return fmt.Errorf("clickhouse table is required")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate sentry config
	if c.Sentry.Enabled && c.Sentry.DSN == "" {
		return fmt.Errorf("sentry DSN is required when sentry is enabled (set EVENTLOG_SENTRY_DSN)")
	}

	// Validate relay worker config
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox batch_size must be positive")
	}
	if c.Outbox.StaleThreshold <= 0 {
		return fmt.Errorf("outbox stale_threshold must be positive")
	}
	if c.Outbox.HardTimeLimit <= c.Outbox.SoftTimeLimit {
		return fmt.Errorf("outbox hard_time_limit (%s) must exceed soft_time_limit (%s)",
			c.Outbox.HardTimeLimit, c.Outbox.SoftTimeLimit)
	}
	if c.Outbox.MaxRetries < 0 {
		return fmt.Errorf("outbox max_retries must not be negative")
	}

	return nil
}
