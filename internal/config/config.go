package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "KFOCUS"

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Usage   UsageConfig   `mapstructure:"usage_tracking"`
	Policy  PolicyConfig  `mapstructure:"policy"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"` // bridge WebSocket and HTTP API
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type   string       `mapstructure:"type"` // "sqlite" or "redis"
	Redis  RedisConfig  `mapstructure:"redis"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

// SQLiteConfig defines the SQLite database location
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UsageConfig defines usage tracking settings
type UsageConfig struct {
	IdleThreshold  string `mapstructure:"idle_threshold"`
	DailyResetTime string `mapstructure:"daily_reset_time"`
	ResetPeriod    string `mapstructure:"reset_period"`
	CatchUpReset   bool   `mapstructure:"catch_up_reset"`
}

// PolicyConfig defines policy engine settings
type PolicyConfig struct {
	OPAPolicyDir string `mapstructure:"opa_policy_dir"` // optional overrides for the embedded decision
}

// BridgeConfig defines the browser shim connection
type BridgeConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	TabCacheSize    int      `mapstructure:"tab_cache_size"`
	EventsPerSecond float64  `mapstructure:"events_per_second"`
	Burst           int      `mapstructure:"burst"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := New()

	if configPath != "" {
		v.SetConfigFile(configPath)

		// Read config file
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.sqlite.path", "/var/lib/kfocus/kfocus.db")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.key_prefix", "kfocus")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Usage tracking defaults
	v.SetDefault("usage_tracking.idle_threshold", "60s")
	v.SetDefault("usage_tracking.daily_reset_time", "00:00")
	v.SetDefault("usage_tracking.reset_period", "24h")
	v.SetDefault("usage_tracking.catch_up_reset", true)

	// Policy defaults
	v.SetDefault("policy.opa_policy_dir", "")

	// Bridge defaults
	v.SetDefault("bridge.allowed_origins", []string{"chrome-extension://*", "moz-extension://*"})
	v.SetDefault("bridge.tab_cache_size", 256)
	v.SetDefault("bridge.events_per_second", 20.0)
	v.SetDefault("bridge.burst", 40)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "sqlite":
		if cfg.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required")
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required")
		}
	default:
		return fmt.Errorf("unsupported storage type %q (want sqlite or redis)", cfg.Storage.Type)
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format %q", cfg.Logging.Format)
	}

	idle, err := time.ParseDuration(cfg.Usage.IdleThreshold)
	if err != nil {
		return fmt.Errorf("invalid usage_tracking.idle_threshold: %w", err)
	}
	if idle < 15*time.Second {
		// browsers reject idle detection intervals below 15 seconds
		return fmt.Errorf("usage_tracking.idle_threshold must be at least 15s, got %s", idle)
	}

	period, err := time.ParseDuration(cfg.Usage.ResetPeriod)
	if err != nil {
		return fmt.Errorf("invalid usage_tracking.reset_period: %w", err)
	}
	if period <= 0 {
		return fmt.Errorf("usage_tracking.reset_period must be positive")
	}

	if _, _, err := ParseClock(cfg.Usage.DailyResetTime); err != nil {
		return fmt.Errorf("invalid usage_tracking.daily_reset_time: %w", err)
	}

	if cfg.Bridge.TabCacheSize <= 0 {
		return fmt.Errorf("bridge.tab_cache_size must be positive")
	}
	if cfg.Bridge.EventsPerSecond <= 0 || cfg.Bridge.Burst <= 0 {
		return fmt.Errorf("bridge rate limit must be positive")
	}

	return nil
}

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
