// Package config loads the graphsync client configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/graphsync/internal/model"
)

// Environment variables that override file values.
const (
	EnvBaseURL   = "GRAPHSYNC_BASE_URL"
	EnvToken     = "GRAPHSYNC_TOKEN"
	EnvUserID    = "GRAPHSYNC_USER_ID"
	EnvUserEmail = "GRAPHSYNC_USER_EMAIL"
)

type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type UserConfig struct {
	ID    int64  `yaml:"id"`
	Email string `yaml:"email"`
}

type SyncConfig struct {
	// Sources lists what `sync` refreshes. Accepts source names and the
	// candidate kind shorthands.
	Sources          []string `yaml:"sources"`
	SubscriberBuffer int      `yaml:"subscriber_buffer"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Backend BackendConfig `yaml:"backend"`
	User    UserConfig    `yaml:"user"`
	Sync    SyncConfig    `yaml:"sync"`
	Log     LogConfig     `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{Timeout: 15 * time.Second},
		Sync:    SyncConfig{SubscriberBuffer: 16},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.Backend.BaseURL = v
	}
	if v, ok := lookup(EnvToken); ok && v != "" {
		c.Backend.Token = v
	}
	if v, ok := lookup(EnvUserEmail); ok && v != "" {
		c.User.Email = v
	}
	if v, ok := lookup(EnvUserID); ok && v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvUserID, err)
		}
		c.User.ID = id
	}
	return nil
}

// Validate checks required fields and enumerations.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.User.ID <= 0 {
		return fmt.Errorf("user.id must be positive")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if _, err := c.SyncSources(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: must be one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: must be text or json", c.Log.Format)
	}
	return nil
}

// Self returns the configured current user.
func (c *Config) Self() model.Identity {
	return model.NewIdentity(c.User.ID, c.User.Email)
}

// SyncSources parses sync.sources. Empty means every source.
func (c *Config) SyncSources() ([]model.Source, error) {
	if len(c.Sync.Sources) == 0 {
		return model.AllSources, nil
	}
	out := make([]model.Source, 0, len(c.Sync.Sources))
	for i, s := range c.Sync.Sources {
		src, err := model.ParseSource(s)
		if err != nil {
			return nil, fmt.Errorf("sync.sources[%d]: %w", i, err)
		}
		out = append(out, src)
	}
	return out, nil
}
