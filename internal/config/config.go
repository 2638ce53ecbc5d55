// Package config loads CLI settings from a YAML file, the environment and
// flags. Later sources override earlier ones field by field.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of a vgo invocation.
type Config struct {
	URL         string        `yaml:"url"`          // API base URL
	Token       string        `yaml:"token"`        // Bearer token
	DownloadDir string        `yaml:"download_dir"` // Where downloads are saved
	Timeout     time.Duration `yaml:"timeout"`      // Per-request timeout
	RateLimit   float64       `yaml:"rate_limit"`   // Requests per second, 0 disables limiting
	LogLevel    string        `yaml:"log_level"`    // debug, info, warn or error
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DownloadDir: ".",
		Timeout:     30 * time.Second,
		LogLevel:    "info",
	}
}

// Path returns the config file location: $VAULT_CONFIG, else
// $XDG_CONFIG_HOME/vault-go/config.yaml, else ~/.config/vault-go/config.yaml.
func Path(getenv func(string) string) (string, error) {
	if p := getenv("VAULT_CONFIG"); p != "" {
		return p, nil
	}
	if dir := getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "vault-go", "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vault-go", "config.yaml"), nil
}

// LoadFile reads the config file at path. A missing file yields an empty
// Config.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// FromEnv reads VAULT_URL and VAULT_TOKEN.
func FromEnv(getenv func(string) string) Config {
	return Config{
		URL:   getenv("VAULT_URL"),
		Token: getenv("VAULT_TOKEN"),
	}
}

// Merge returns c with every non-zero field of o applied over it.
func (c Config) Merge(o Config) Config {
	if o.URL != "" {
		c.URL = o.URL
	}
	if o.Token != "" {
		c.Token = o.Token
	}
	if o.DownloadDir != "" {
		c.DownloadDir = o.DownloadDir
	}
	if o.Timeout != 0 {
		c.Timeout = o.Timeout
	}
	if o.RateLimit != 0 {
		c.RateLimit = o.RateLimit
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	return c
}

// Validate checks the settings needed to talk to the API.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("vault URL is required (use -url flag, VAULT_URL env var or url in the config file)")
	}
	if c.Token == "" {
		return errors.New("API token is required (use -token flag, VAULT_TOKEN env var or token in the config file)")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout %v", c.Timeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit %v", c.RateLimit)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return l, nil
}
