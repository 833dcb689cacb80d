// Package config loads daemon configuration from a config file,
// environment variables and command-line flags via viper.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/ranmori/anidb-catalog-client/pkg/logging"
)

// Config holds the settings for the catalog daemon.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string

	// RedisAddr is the address of the Redis instance backing the cache.
	RedisAddr string

	// RedisDB selects the Redis logical database.
	RedisDB int

	// ClientName and ClientVersion identify this client towards the
	// catalog API. The catalog requires a registered client name.
	ClientName    string
	ClientVersion int

	// MinInterval is the minimum gap between live catalog requests.
	MinInterval time.Duration

	// OrderingDelay is the artificial delay applied to cache hits.
	OrderingDelay time.Duration

	// RequestTimeout bounds a single live request.
	RequestTimeout time.Duration

	// TitlesPath points to the anime-titles dataset. Optional; search
	// degrades to an empty index when missing.
	TitlesPath string

	// Logging.
	LogLevel  logging.LogLevel
	LogPretty bool
}

// Load builds a Config from viper state. Flags and environment
// variables must already be bound by the command layer.
func Load() (*Config, error) {
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("redis_addr", "localhost:6379")
	viper.SetDefault("redis_db", 0)
	viper.SetDefault("client_version", 1)
	viper.SetDefault("min_interval", "10s")
	viper.SetDefault("ordering_delay", "100ms")
	viper.SetDefault("request_timeout", "10s")
	viper.SetDefault("log_level", "info")

	cfg := &Config{
		ListenAddr:     viper.GetString("listen_addr"),
		RedisAddr:      viper.GetString("redis_addr"),
		RedisDB:        viper.GetInt("redis_db"),
		ClientName:     viper.GetString("client_name"),
		ClientVersion:  viper.GetInt("client_version"),
		MinInterval:    viper.GetDuration("min_interval"),
		OrderingDelay:  viper.GetDuration("ordering_delay"),
		RequestTimeout: viper.GetDuration("request_timeout"),
		TitlesPath:     viper.GetString("titles_path"),
		LogLevel:       logging.LogLevel(viper.GetString("log_level")),
		LogPretty:      viper.GetBool("log_pretty"),
	}

	if cfg.ClientName == "" {
		return nil, errors.New("client_name is required (set via config file or CATALOGD_CLIENT_NAME)")
	}
	if cfg.ClientVersion <= 0 {
		return nil, errors.Errorf("client_version must be positive (got %d)", cfg.ClientVersion)
	}
	if cfg.MinInterval <= 0 {
		return nil, errors.Errorf("min_interval must be positive (got %s)", cfg.MinInterval)
	}
	if cfg.OrderingDelay < 0 {
		return nil, errors.Errorf("ordering_delay must be non-negative (got %s)", cfg.OrderingDelay)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, errors.Errorf("request_timeout must be positive (got %s)", cfg.RequestTimeout)
	}

	return cfg, nil
}
