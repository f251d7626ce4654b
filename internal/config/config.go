// Package config loads connectiond's server-side configuration from a YAML
// file with environment-variable overrides, in the teacher's convention
// (apps/gateway/src/config.go): defaults, then file, then env, then
// validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "/etc/morrigan-connectiond/config.yaml"

// Config holds all configuration for the connectiond server.
type Config struct {
	// ListenAddr is the address the HTTP/WebSocket server binds to.
	ListenAddr string `yaml:"listen_addr"`

	// ProviderRoute is the path prefix the Connection Provider mounts under.
	ProviderRoute string `yaml:"provider_route"`

	// ProviderName names this deployment for report-URL construction
	// ("{EndpointBase}/{ProviderName}/connect").
	ProviderName string `yaml:"provider_name"`

	// EndpointBase is the externally reachable scheme+host clients dial.
	EndpointBase string `yaml:"endpoint_base"`

	// ServerID is this process's instance id, stamped into promoted records.
	ServerID string `yaml:"server_id"`

	// APIToken gates the operator-facing read/send routes.
	APIToken string `yaml:"api_token"`

	// ConnectionTokenSecret is the HMAC secret for the default JWT token broker.
	ConnectionTokenSecret string `yaml:"connection_token_secret"`

	// RedisAddr, if set, switches the Registry's Store to the Redis backend.
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`

	// HeartbeatIntervalSeconds overrides the 30s default ping interval.
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
}

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:               ":8080",
		ProviderRoute:            "",
		ProviderName:             "connection",
		EndpointBase:             "ws://localhost:8080",
		ServerID:                 "srvA",
		HeartbeatIntervalSeconds: 30,
	}
}

// Load loads configuration from a YAML file and applies environment
// variable overrides, which take precedence.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := defaultConfigPath
	if envPath := os.Getenv("MORRIGAN_CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}

	if err := loadConfigFile(cfg, configPath); err != nil {
		slog.Warn("could not load config file, using defaults and env vars", "path", configPath, "error", err)
	} else {
		slog.Info("loaded config file", "path", configPath)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MORRIGAN_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("MORRIGAN_PROVIDER_ROUTE"); v != "" {
		cfg.ProviderRoute = v
	}
	if v := os.Getenv("MORRIGAN_PROVIDER_NAME"); v != "" {
		cfg.ProviderName = v
	}
	if v := os.Getenv("MORRIGAN_ENDPOINT_BASE"); v != "" {
		cfg.EndpointBase = v
	}
	if v := os.Getenv("MORRIGAN_SERVER_ID"); v != "" {
		cfg.ServerID = v
	}
	if v := os.Getenv("MORRIGAN_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("MORRIGAN_CONNECTION_TOKEN_SECRET"); v != "" {
		cfg.ConnectionTokenSecret = v
	}
	if v := os.Getenv("MORRIGAN_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("MORRIGAN_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("MORRIGAN_HEARTBEAT_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HeartbeatIntervalSeconds = n
		}
	}
}

func validate(cfg *Config) error {
	if cfg.ConnectionTokenSecret == "" {
		return fmt.Errorf("connection token secret is required (set MORRIGAN_CONNECTION_TOKEN_SECRET or connection_token_secret in config)")
	}
	if cfg.ServerID == "" {
		return fmt.Errorf("server id is required (set MORRIGAN_SERVER_ID or server_id in config)")
	}
	return nil
}
