package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	Remote         Remote `toml:"remote"`
	Sync           Sync   `toml:"sync"`
}

// Remote holds the remote endpoint connection settings.
type Remote struct {
	BaseURL string `toml:"base_url"`
	FeedURL string `toml:"feed_url"`
	APIKey  string `toml:"api_key"`
}

// Sync holds overrides for the periodic sync loop.
type Sync struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// Interval returns the periodic sync interval, falling back to 60s when unset.
func (s Sync) Interval() time.Duration {
	if s.IntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
