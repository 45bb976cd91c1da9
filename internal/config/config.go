// Package config loads formwork configuration from formwork.yml with
// environment variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the formwork configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Store    StoreConfig    `mapstructure:"store"`
	Lookup   LookupConfig   `mapstructure:"lookup"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Contexts []string       `mapstructure:"contexts"`
}

// UpstreamConfig points at the backend supplying metadata, lookup options,
// and entity persistence.
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StoreConfig selects the durable key-value backend.
type StoreConfig struct {
	// Driver is one of "memory", "sqlite", "postgres", "redis".
	Driver string `mapstructure:"driver"`

	// DSN is the database connection string for sqlite/postgres drivers.
	DSN string `mapstructure:"dsn"`

	// RedisAddr is the Redis address for the redis driver.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// LookupConfig configures the lookup cache.
type LookupConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads the configuration from formwork.yml or formwork.yaml in the
// working directory, with FORMWORK_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 4400)
	v.SetDefault("upstream.base_url", "http://localhost:3000")
	v.SetDefault("upstream.timeout", "10s")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "formwork.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("lookup.default_ttl", "5m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("contexts", []string{"table", "detail-view", "form"})

	v.SetConfigName("formwork")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FORMWORK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine; defaults and env apply
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validate(c *Config) error {
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}
