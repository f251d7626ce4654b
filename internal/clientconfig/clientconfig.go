// Package clientconfig loads connect-agent's configuration with viper, the
// way apps/host-agent/internal/config does: defaults, then config file,
// then CONNECTAGENT_-prefixed environment variables.
package clientconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "/etc/morrigan-connect-agent/agent.yaml"

// Config holds all configuration for the connect-agent CLI.
type Config struct {
	IdentityToken            string `mapstructure:"identity_token" yaml:"identity_token"`
	ReportURL                string `mapstructure:"report_url" yaml:"report_url"`
	AlwaysReconnect          bool   `mapstructure:"always_reconnect" yaml:"always_reconnect"`
	ReconnectIntervalSeconds int    `mapstructure:"reconnect_interval_seconds" yaml:"reconnect_interval_seconds"`
	LogLevel                 string `mapstructure:"log_level" yaml:"log_level"`
}

// Load reads configuration from configPath (or DefaultConfigPath if empty),
// with CONNECTAGENT_-prefixed environment variables taking precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("always_reconnect", true)
	v.SetDefault("reconnect_interval_seconds", 30)
	v.SetDefault("log_level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(DefaultConfigPath)
	}

	v.SetEnvPrefix("CONNECTAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	envBindings := map[string]string{
		"identity_token":             "CONNECTAGENT_IDENTITY_TOKEN",
		"report_url":                 "CONNECTAGENT_REPORT_URL",
		"always_reconnect":           "CONNECTAGENT_ALWAYS_RECONNECT",
		"reconnect_interval_seconds": "CONNECTAGENT_RECONNECT_INTERVAL_SECONDS",
		"log_level":                  "CONNECTAGENT_LOG_LEVEL",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			if _, ok := err.(*os.PathError); !ok {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
		// Config file not found; rely on env vars and defaults.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if c.IdentityToken == "" {
		return fmt.Errorf("identity_token is required")
	}
	if c.ReportURL == "" {
		return fmt.Errorf("report_url is required")
	}
	return nil
}
