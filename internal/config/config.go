// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix namespaces environment overrides, e.g. PAPERSCROLL_SERVER_PORT.
const EnvPrefix = "PAPERSCROLL"

// Storage drivers.
const (
	DriverBolt     = "bolt"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Crossref CrossrefConfig `mapstructure:"crossref"`
	OpenAlex OpenAlexConfig `mapstructure:"openalex"`
	Pacing   PacingConfig   `mapstructure:"pacing"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Feed     FeedConfig     `mapstructure:"feed"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// CrossrefConfig configures the listing client.
type CrossrefConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
}

// OpenAlexConfig configures the sampler client.
type OpenAlexConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PacingConfig sets the minimum spacing between OpenAlex requests.
type PacingConfig struct {
	WithEmail    time.Duration `mapstructure:"with_email"`
	WithoutEmail time.Duration `mapstructure:"without_email"`
}

// RetryConfig bounds OpenAlex retries.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// FeedConfig sets batch sizes for the paper feed.
type FeedConfig struct {
	InitialBatch  int `mapstructure:"initial_batch"`
	LoadMoreBatch int `mapstructure:"load_more_batch"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	UserAgent    string `mapstructure:"user_agent"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DefaultDataPath is the bolt file location under the XDG data directory.
func DefaultDataPath() string {
	return filepath.Join(xdg.DataHome, "paper-scroll", "paperscroll.db")
}

// Load builds a Config from .env, the optional file at path, and the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.request_timeout", "2m")
	v.SetDefault("storage.driver", DriverBolt)
	v.SetDefault("storage.path", DefaultDataPath())
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_conns", 4)
	v.SetDefault("crossref.base_url", "https://api.crossref.org")
	v.SetDefault("crossref.timeout", "45s")
	v.SetDefault("crossref.page_size", 200)
	v.SetDefault("openalex.base_url", "https://api.openalex.org")
	v.SetDefault("openalex.timeout", "30s")
	v.SetDefault("pacing.with_email", "200ms")
	v.SetDefault("pacing.without_email", "1s")
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "8s")
	v.SetDefault("feed.initial_batch", 5)
	v.SetDefault("feed.load_more_batch", 3)
	v.SetDefault("http.user_agent", "paper-scroll/0.1")
	v.SetDefault("http.max_body_bytes", 8<<20)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Storage.Driver {
	case DriverBolt:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the bolt driver")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q is not one of bolt, memory, postgres", c.Storage.Driver)
	}
	if c.Crossref.Timeout <= 0 || c.OpenAlex.Timeout <= 0 {
		return fmt.Errorf("crossref.timeout and openalex.timeout must be > 0")
	}
	if c.Crossref.PageSize <= 0 || c.Crossref.PageSize > 1000 {
		return fmt.Errorf("crossref.page_size must be within 1..1000")
	}
	if c.Pacing.WithEmail < 0 || c.Pacing.WithoutEmail < 0 {
		return fmt.Errorf("pacing intervals must be >= 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.base_delay must be > 0 and <= retry.max_delay")
	}
	if c.Feed.InitialBatch <= 0 || c.Feed.LoadMoreBatch <= 0 {
		return fmt.Errorf("feed batch sizes must be > 0")
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	return nil
}

// Addr is the listen address for the HTTP API.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
