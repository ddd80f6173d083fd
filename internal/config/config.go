package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	APRS    APRSConfig    `mapstructure:"aprs"`
	Beacon  BeaconConfig  `mapstructure:"beacon"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// APRSConfig defines the APRS-IS uplink settings
type APRSConfig struct {
	ServerHost     string `mapstructure:"server_host"`
	ServerPort     int    `mapstructure:"server_port"`
	LoginCall      string `mapstructure:"login_call"` // empty = anonymous N0CALL, read-only
	DialTimeout    string `mapstructure:"dial_timeout"`
	ConnectRetries int    `mapstructure:"connect_retries"`
}

// BeaconConfig defines session and sweeper settings
type BeaconConfig struct {
	SweepInterval    string `mapstructure:"sweep_interval"`
	LogRetentionDays int    `mapstructure:"log_retention_days"`
}

// GatewayConfig defines the bridge-facing HTTP API settings
type GatewayConfig struct {
	Port        int    `mapstructure:"port"`
	BindAddress string `mapstructure:"bind_address"`
	BridgeToken string `mapstructure:"bridge_token"`
	AdminUserID int64  `mapstructure:"admin_user_id"`
	CallbackURL string `mapstructure:"callback_url"` // bridge webhook for user notifications
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
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
}

// MetricsConfig defines the Prometheus endpoint settings
type MetricsConfig struct {
	Port        int    `mapstructure:"port"`
	BindAddress string `mapstructure:"bind_address"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("APRSGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// APRS-IS defaults
	v.SetDefault("aprs.server_host", "rotate.aprs2.net")
	v.SetDefault("aprs.server_port", 14580)
	v.SetDefault("aprs.dial_timeout", "10s")
	v.SetDefault("aprs.connect_retries", 3)

	// Beacon defaults
	v.SetDefault("beacon.sweep_interval", "59s")
	v.SetDefault("beacon.log_retention_days", 7)

	// Gateway defaults
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.bind_address", "0.0.0.0")

	// Storage defaults
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.path", "/var/lib/aprsgate/aprsgate.db")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Metrics defaults
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.bind_address", "0.0.0.0")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.APRS.ServerHost == "" {
		return fmt.Errorf("aprs.server_host is required")
	}
	if cfg.APRS.ServerPort <= 0 || cfg.APRS.ServerPort > 65535 {
		return fmt.Errorf("invalid APRS server port: %d", cfg.APRS.ServerPort)
	}
	if _, err := time.ParseDuration(cfg.APRS.DialTimeout); err != nil {
		return fmt.Errorf("invalid aprs.dial_timeout: %w", err)
	}
	if cfg.APRS.ConnectRetries <= 0 {
		return fmt.Errorf("aprs.connect_retries must be positive")
	}

	if _, err := time.ParseDuration(cfg.Beacon.SweepInterval); err != nil {
		return fmt.Errorf("invalid beacon.sweep_interval: %w", err)
	}

	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", cfg.Gateway.Port)
	}
	if cfg.Gateway.BridgeToken == "" {
		return fmt.Errorf("gateway.bridge_token is required")
	}

	switch cfg.Storage.Type {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}

	return nil
}
