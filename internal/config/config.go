// Package config handles loading and managing unimail configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the unimail configuration.
type Config struct {
	OAuth  OAuthConfig  `toml:"oauth"`
	Fetch  FetchConfig  `toml:"fetch"`
	Server ServerConfig `toml:"server"`

	// Computed home directory (not from config file)
	HomeDir string `toml:"-"`
}

// OAuthConfig holds the Google OAuth application credential.
// Environment variables GOOGLE_OAUTH_CLIENT_ID and
// GOOGLE_OAUTH_CLIENT_SECRET override the file values.
type OAuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// FetchConfig controls provider request pacing and fan-out.
type FetchConfig struct {
	RateLimitQPS int `toml:"rate_limit_qps"` // Per-account request rate (default: 5)
	Concurrency  int `toml:"concurrency"`    // Max parallel sub-requests per operation (default: 10)
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort int    `toml:"api_port"` // HTTP server port (default: 8080)
	APIKey  string `toml:"api_key"`  // API authentication key
}

// DefaultHome returns the default unimail home directory.
// Respects the UNIMAIL_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("UNIMAIL_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".unimail"
	}
	return filepath.Join(home, ".unimail")
}

// Load reads the configuration from the specified file. If path is empty,
// uses the default location (~/.unimail/config.toml). A missing config
// file is not an error; defaults apply.
func Load(path, home string) (*Config, error) {
	if home == "" {
		home = DefaultHome()
	}
	if path == "" {
		path = filepath.Join(home, "config.toml")
	}

	cfg := &Config{
		HomeDir: home,
		Fetch: FetchConfig{
			RateLimitQPS: 5,
			Concurrency:  10,
		},
		Server: ServerConfig{
			APIPort: 8080,
		},
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("GOOGLE_OAUTH_CLIENT_ID"); v != "" {
		cfg.OAuth.ClientID = v
	}
	if v := os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"); v != "" {
		cfg.OAuth.ClientSecret = v
	}

	if cfg.Fetch.RateLimitQPS <= 0 {
		cfg.Fetch.RateLimitQPS = 5
	}
	if cfg.Fetch.Concurrency <= 0 {
		cfg.Fetch.Concurrency = 10
	}
	if cfg.Server.APIPort <= 0 {
		cfg.Server.APIPort = 8080
	}

	return cfg, nil
}

// DatabasePath returns the path to the credentials database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.HomeDir, "accounts.db")
}

// EnsureHomeDir creates the home directory if it does not exist.
func (c *Config) EnsureHomeDir() error {
	return os.MkdirAll(c.HomeDir, 0700)
}
