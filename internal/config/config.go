// Package config provides configuration loading and management for pmengine.
// It supports loading configuration from YAML files with defaults applied to
// any field left unset.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageMode represents the backend used to persist the mode setting and
// the mode switch history.
type StorageMode string

const (
	// StorageModeMemory keeps everything in process.
	StorageModeMemory StorageMode = "memory"
	// StorageModeStorage uses Redis for the mode setting and PostgreSQL for
	// the switch history.
	StorageModeStorage StorageMode = "storage"
)

// IsValid returns true if the storage mode is valid.
func (m StorageMode) IsValid() bool {
	return m == StorageModeMemory || m == StorageModeStorage
}

// Config represents the complete application configuration.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logger   LoggerConfig   `yaml:"logger"`
	Loadgen  LoadgenConfig  `yaml:"loadgen"`
}

// EngineConfig holds message engine settings.
type EngineConfig struct {
	// DefaultTimeout governs how long Get waits for content before
	// reporting emptiness.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// Capacity bounds pending messages. Zero means unbounded.
	Capacity int `yaml:"capacity"`

	// HighPriority selects the mode used when nothing has been persisted.
	HighPriority bool `yaml:"high_priority"`

	// SwitchTimeout bounds how long a mode switch waits for in-flight
	// operations when requested through the admin API.
	SwitchTimeout time.Duration `yaml:"switch_timeout"`
}

// StorageConfig holds the storage mode configuration.
type StorageConfig struct {
	Mode StorageMode `yaml:"mode"`

	// ModeBackend selects where the mode setting lives in storage mode:
	// "redis" or "postgres". The switch history always goes to PostgreSQL.
	ModeBackend string `yaml:"mode_backend"`
}

// UseMemory returns true if in-memory storage should be used.
func (c *StorageConfig) UseMemory() bool {
	return c.Mode == StorageModeMemory
}

// UseStorage returns true if real storage backends should be used.
func (c *StorageConfig) UseStorage() bool {
	return c.Mode == StorageModeStorage
}

// ServerConfig holds admin HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int32  `yaml:"max_open_conns"`
	MaxIdleConns int32  `yaml:"max_idle_conns"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// LoadgenConfig holds settings for the load generator.
type LoadgenConfig struct {
	Producers           int           `yaml:"producers"`
	Consumers           int           `yaml:"consumers"`
	MessagesPerProducer int           `yaml:"messages_per_producer"`
	SwitchInterval      time.Duration `yaml:"switch_interval"`
	ProducerRate        float64       `yaml:"producer_rate"` // messages/second per producer, 0 = unlimited
	ReportInterval      time.Duration `yaml:"report_interval"`
}

// Load reads configuration from the specified YAML file path.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	// Clean the path to prevent path traversal attacks
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if !c.Storage.Mode.IsValid() {
		return fmt.Errorf("invalid storage mode %q", c.Storage.Mode)
	}
	if b := c.Storage.ModeBackend; b != "redis" && b != "postgres" {
		return fmt.Errorf("invalid mode backend %q", b)
	}
	if c.Engine.Capacity < 0 {
		return fmt.Errorf("engine capacity must not be negative, got %d", c.Engine.Capacity)
	}
	if f := strings.ToLower(c.Logger.Format); f != "json" && f != "text" {
		return fmt.Errorf("invalid logger format %q", c.Logger.Format)
	}
	return nil
}

// applyDefaults sets sensible default values for configuration fields
// that are not explicitly set in the config file.
func applyDefaults(cfg *Config) {
	// Engine defaults
	if cfg.Engine.DefaultTimeout == 0 {
		cfg.Engine.DefaultTimeout = 2 * time.Second
	}
	if cfg.Engine.SwitchTimeout == 0 {
		cfg.Engine.SwitchTimeout = 30 * time.Second
	}

	// Storage defaults
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StorageModeMemory
	}
	if cfg.Storage.ModeBackend == "" {
		cfg.Storage.ModeBackend = "redis"
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "pmengine:"
	}

	// Postgres defaults
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}

	// Loadgen defaults
	if cfg.Loadgen.Producers == 0 {
		cfg.Loadgen.Producers = 100
	}
	if cfg.Loadgen.Consumers == 0 {
		cfg.Loadgen.Consumers = 30
	}
	if cfg.Loadgen.MessagesPerProducer == 0 {
		cfg.Loadgen.MessagesPerProducer = 50000
	}
	if cfg.Loadgen.SwitchInterval == 0 {
		cfg.Loadgen.SwitchInterval = 4 * time.Second
	}
	if cfg.Loadgen.ReportInterval == 0 {
		cfg.Loadgen.ReportInterval = time.Second
	}
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode, c.MaxOpenConns,
	)
}

// RedisAddr returns the Redis address in host:port format.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps the configured level name to a slog level.
// Unknown names fall back to info.
func (c *LoggerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the application logger described by the config.
func (c *LoggerConfig) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: c.SlogLevel(),
	}

	var handler slog.Handler
	if strings.ToLower(c.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
