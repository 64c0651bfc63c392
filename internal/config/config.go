// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/sakumikko/lammonsaato-sub000/internal/hass"
	"github.com/sakumikko/lammonsaato-sub000/internal/timeseries"
)

// Config represents the complete application configuration.
type Config struct {
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
	Graphs        GraphsConfig        `mapstructure:"graphs"`
	Smoothing     SmoothingConfig     `mapstructure:"smoothing"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// HomeAssistantConfig holds connection parameters.
type HomeAssistantConfig struct {
	URL               string        `mapstructure:"url"`
	RESTURL           string        `mapstructure:"rest_url"`
	Token             string        `mapstructure:"token"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
}

// GraphsConfig holds per-entity chart normalization ranges.
type GraphsConfig struct {
	Ranges map[string]RangeConfig `mapstructure:"ranges"`
}

// RangeConfig is one entity's normalization range.
type RangeConfig struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// SmoothingConfig holds the pool-sensor spike thresholds. They are tuned per
// physical sensor, hence configuration.
type SmoothingConfig struct {
	CeilingC        float64 `mapstructure:"ceiling_c"`
	BaselineMarginC float64 `mapstructure:"baseline_margin_c"`
	BaselineCutoffC float64 `mapstructure:"baseline_cutoff_c"`
	LookbackCount   int     `mapstructure:"lookback_count"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from path with environment overrides
// (prefix LAMMONSAATO).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("LAMMONSAATO")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("homeassistant.reconnect_delay", "2s")
	v.SetDefault("homeassistant.max_reconnect_delay", "30s")
	v.SetDefault("homeassistant.request_timeout", "10s")
	v.SetDefault("homeassistant.handshake_timeout", "10s")
	v.SetDefault("homeassistant.ping_interval", "30s")

	v.SetDefault("smoothing.ceiling_c", 28.0)
	v.SetDefault("smoothing.baseline_margin_c", 1.0)
	v.SetDefault("smoothing.baseline_cutoff_c", 26.0)
	v.SetDefault("smoothing.lookback_count", 20)

	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logging.level", "info")
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.HomeAssistant.URL == "" {
		return fmt.Errorf("homeassistant.url is required")
	}
	if c.HomeAssistant.Token == "" {
		return fmt.Errorf("homeassistant.token is required")
	}
	if c.HomeAssistant.ReconnectDelay <= 0 {
		return fmt.Errorf("homeassistant.reconnect_delay must be positive")
	}
	if c.HomeAssistant.MaxReconnectDelay < c.HomeAssistant.ReconnectDelay {
		return fmt.Errorf("homeassistant.max_reconnect_delay must not be below reconnect_delay")
	}
	if c.HomeAssistant.RequestTimeout <= 0 {
		return fmt.Errorf("homeassistant.request_timeout must be positive")
	}
	if c.Smoothing.LookbackCount < 1 {
		return fmt.Errorf("smoothing.lookback_count must be at least 1")
	}
	for id, r := range c.Graphs.Ranges {
		if r.Max < r.Min {
			return fmt.Errorf("graphs.ranges[%s]: max below min", id)
		}
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	return nil
}

// ClientConfig converts to the websocket client configuration.
func (c *Config) ClientConfig() hass.Config {
	cfg := hass.DefaultConfig()
	cfg.Endpoint = c.HomeAssistant.URL
	cfg.Token = c.HomeAssistant.Token
	cfg.ReconnectDelay = c.HomeAssistant.ReconnectDelay
	cfg.MaxReconnectDelay = c.HomeAssistant.MaxReconnectDelay
	cfg.RequestTimeout = c.HomeAssistant.RequestTimeout
	cfg.HandshakeTimeout = c.HomeAssistant.HandshakeTimeout
	cfg.PingInterval = c.HomeAssistant.PingInterval
	return cfg
}

// SmoothConfig converts to the timeseries smoothing configuration.
func (c *Config) SmoothConfig() timeseries.SmoothConfig {
	return timeseries.SmoothConfig{
		CeilingC:        c.Smoothing.CeilingC,
		BaselineMarginC: c.Smoothing.BaselineMarginC,
		BaselineCutoffC: c.Smoothing.BaselineCutoffC,
		LookbackCount:   c.Smoothing.LookbackCount,
	}
}

// GraphRanges converts the configured ranges to timeseries form.
func (c *Config) GraphRanges() map[hass.EntityID]timeseries.Range {
	out := make(map[hass.EntityID]timeseries.Range, len(c.Graphs.Ranges))
	for id, r := range c.Graphs.Ranges {
		out[hass.EntityID(id)] = timeseries.Range{Min: r.Min, Max: r.Max}
	}
	return out
}
