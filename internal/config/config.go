package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Reconnect policy names accepted in the config file.
const (
	PolicyFixed   = "fixed"
	PolicyBackoff = "backoff"
)

// Config represents configuration data for the dashboard client.
type Config struct {
	APIBaseURL        string `yaml:"api_base_url"`
	WebsocketURL      string `yaml:"ws_url"`
	RequestTimeoutSec int    `yaml:"request_timeout_seconds"`
	PollIntervalSec   int    `yaml:"poll_interval_seconds"`
	ReconnectDelaySec int    `yaml:"reconnect_delay_seconds"`
	ReconnectPolicy   string `yaml:"reconnect_policy"`
	RecentChecksLimit int    `yaml:"recent_checks_limit"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:        "http://localhost:8000/api/",
		WebsocketURL:      "ws://localhost:8000/ws/monitor/",
		RequestTimeoutSec: 15,
		PollIntervalSec:   60,
		ReconnectDelaySec: 3,
		ReconnectPolicy:   PolicyFixed,
		RecentChecksLimit: 50,
	}
}

// Load reads configuration from a yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.RequestTimeoutSec <= 0 {
		cfg.RequestTimeoutSec = 15
	}
	if cfg.PollIntervalSec <= 0 {
		cfg.PollIntervalSec = 60
	}
	if cfg.ReconnectDelaySec <= 0 {
		cfg.ReconnectDelaySec = 3
	}
	if cfg.ReconnectPolicy == "" {
		cfg.ReconnectPolicy = PolicyFixed
	}
	if cfg.RecentChecksLimit <= 0 {
		cfg.RecentChecksLimit = 50
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	api, err := url.Parse(cfg.APIBaseURL)
	if err != nil || api.Host == "" {
		return fmt.Errorf("api_base_url %q is not a valid URL", cfg.APIBaseURL)
	}
	if api.Scheme != "http" && api.Scheme != "https" {
		return fmt.Errorf("api_base_url scheme must be http or https, got %q", api.Scheme)
	}

	ws, err := url.Parse(cfg.WebsocketURL)
	if err != nil || ws.Host == "" {
		return fmt.Errorf("ws_url %q is not a valid URL", cfg.WebsocketURL)
	}
	if ws.Scheme != "ws" && ws.Scheme != "wss" {
		return fmt.Errorf("ws_url scheme must be ws or wss, got %q", ws.Scheme)
	}

	if cfg.ReconnectPolicy != PolicyFixed && cfg.ReconnectPolicy != PolicyBackoff {
		return fmt.Errorf("reconnect_policy must be %q or %q, got %q", PolicyFixed, PolicyBackoff, cfg.ReconnectPolicy)
	}
	return nil
}
