// Package config loads the gateway's JSON configuration file via viper and
// watches it for changes via fsnotify.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	apperrors "github.com/soilSpoon/llmux/pkg/errors"
)

// Config is the top-level {server, routing, amp} document read from
// $HOME/.llmux/config.json.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Routing RoutingConfig `mapstructure:"routing"`
	AMP     AMPConfig     `mapstructure:"amp"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig controls the HTTP ingress.
type ServerConfig struct {
	Port     int         `mapstructure:"port"`
	Hostname string      `mapstructure:"hostname"`
	CORS     interface{} `mapstructure:"cors"` // bool or []string
}

// ModelMapping is one `from -> to[...]` routing rule, matching
// modelmap.Mapping's shape for direct conversion.
type ModelMapping struct {
	From string   `mapstructure:"from"`
	To   []string `mapstructure:"to"`
}

// RoutingConfig configures ModelMapper and Router.
type RoutingConfig struct {
	ModelMapping  map[string]ModelMapping `mapstructure:"modelMapping"`
	FallbackOrder []string                `mapstructure:"fallbackOrder"`
	RotateOn429   bool                    `mapstructure:"rotateOn429"`
}

// AMPConfig configures the Amp-branded management passthrough surface.
type AMPConfig struct {
	Enabled                   bool                    `mapstructure:"enabled"`
	UpstreamURL               string                  `mapstructure:"upstreamUrl"`
	UpstreamAPIKey            string                  `mapstructure:"upstreamApiKey"`
	RestrictManagementToLocal bool                    `mapstructure:"restrictManagementToLocalhost"`
	ModelMappings             map[string]ModelMapping `mapstructure:"modelMappings"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfigDir returns $HOME/.llmux, honoring USERPROFILE on Windows.
func DefaultConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home = os.Getenv("USERPROFILE")
	}
	return filepath.Join(home, ".llmux")
}

// Load reads $HOME/.llmux/config.json over the built-in defaults below. A
// missing file is not an error; Load returns the defaults.
func Load() (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(DefaultConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, apperrors.NewInternalErrorWithCause("read config.json", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, apperrors.NewInternalErrorWithCause("unmarshal config.json", err)
	}

	return &cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8743)
	v.SetDefault("server.hostname", "localhost")
	v.SetDefault("server.cors", false)

	v.SetDefault("routing.rotateOn429", true)
	v.SetDefault("routing.fallbackOrder", []string{})

	v.SetDefault("amp.enabled", false)
	v.SetDefault("amp.restrictManagementToLocalhost", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// RouterMappings returns the routing.modelMapping section unchanged.
// BuildRouterMappings (in config_watcher.go) reads the same section
// directly from cfg.Routing to produce the router.Mapping table.
func (c *Config) RouterMappings() map[string]ModelMapping {
	return c.Routing.ModelMapping
}
