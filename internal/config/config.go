// Package config provides configuration management for streampulse using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8090
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultPollInterval     = 7 * time.Second
	defaultStaleThreshold   = 7 * time.Second
	defaultWindowSpan       = 12 * time.Minute
	defaultMaxConcurrent    = 4
	defaultErrorRetention   = 7 * 24 * time.Hour
	defaultMetricsRetention = 7 * 24 * time.Hour
	defaultFetchTimeout     = 10 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// MonitorConfig holds the monitor engine configuration.
type MonitorConfig struct {
	// PollInterval is the fixed delay between the end of one sweep and the
	// start of the next.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// StaleThreshold is the default per-stream freshness threshold. A stream
	// whose media sequence has not advanced for longer than this is marked
	// stale. Stream records may override it.
	StaleThreshold time.Duration `mapstructure:"stale_threshold"`

	// WindowSpan is the sliding window used for recent-issue counts.
	WindowSpan time.Duration `mapstructure:"window_span"`

	// MaxConcurrentAnalysis bounds the number of external analysis processes
	// running at any one time.
	MaxConcurrentAnalysis int `mapstructure:"max_concurrent_analysis"`

	// ErrorRetention is how long ledger entries are kept on stream records.
	ErrorRetention time.Duration `mapstructure:"error_retention"`

	// MetricsRetention is how long metric samples are kept.
	MetricsRetention time.Duration `mapstructure:"metrics_retention"`

	// FetchTimeout is the total timeout for a single manifest fetch.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = auto-detect)
	ProbePath  string `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = auto-detect)
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with STREAMPULSE_ and use underscores
// for nesting. Example: STREAMPULSE_SERVER_PORT=8090.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/streampulse")
		v.AddConfigPath("$HOME/.streampulse")
	}

	v.SetEnvPrefix("STREAMPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "streampulse.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Monitor defaults
	v.SetDefault("monitor.poll_interval", defaultPollInterval)
	v.SetDefault("monitor.stale_threshold", defaultStaleThreshold)
	v.SetDefault("monitor.window_span", defaultWindowSpan)
	v.SetDefault("monitor.max_concurrent_analysis", defaultMaxConcurrent)
	v.SetDefault("monitor.error_retention", defaultErrorRetention)
	v.SetDefault("monitor.metrics_retention", defaultMetricsRetention)
	v.SetDefault("monitor.fetch_timeout", defaultFetchTimeout)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if c.Monitor.StaleThreshold <= 0 {
		return fmt.Errorf("monitor.stale_threshold must be positive")
	}
	if c.Monitor.WindowSpan <= 0 {
		return fmt.Errorf("monitor.window_span must be positive")
	}
	if c.Monitor.MaxConcurrentAnalysis < 1 {
		return fmt.Errorf("monitor.max_concurrent_analysis must be at least 1")
	}
	if c.Monitor.FetchTimeout <= 0 {
		return fmt.Errorf("monitor.fetch_timeout must be positive")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
