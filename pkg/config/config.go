package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pario-ai/evalview/pkg/models"
)

// Config holds all evalview configuration.
type Config struct {
	API        APIConfig          `yaml:"api"`
	Poll       PollConfig         `yaml:"poll"`
	Operations OperationsConfig   `yaml:"operations"`
	Cache      CacheConfig        `yaml:"cache"`
	Audit      models.AuditConfig `yaml:"audit"`
	Log        LogConfig          `yaml:"log"`
}

// APIConfig locates the results backend. Token, when set, is sent as a
// bearer token. Timeout is off unless set: a request without one runs
// until the backend answers or the caller's context ends.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// PollConfig controls comparative job polling.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// OperationsConfig controls how long finished operations stay visible.
type OperationsConfig struct {
	GracePeriod time.Duration `yaml:"grace_period"`
}

// CacheConfig controls the bulk payload cache.
type CacheConfig struct {
	// Persist keeps payloads in SQLite between invocations.
	Persist bool   `yaml:"persist"`
	DBPath  string `yaml:"db_path"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
		},
		Poll: PollConfig{
			Interval: 2 * time.Second,
		},
		Operations: OperationsConfig{
			GracePeriod: 3 * time.Second,
		},
		Cache: CacheConfig{
			DBPath: "evalview.db",
		},
		Audit: models.AuditConfig{
			Enabled:       true,
			DBPath:        "evalview-audit.db",
			RetentionDays: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist and missingOK is set.
func LoadOrDefault(path string, missingOK bool) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && missingOK && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative, got %v", c.API.Timeout)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %v", c.Poll.Interval)
	}
	if c.Operations.GracePeriod <= 0 {
		return fmt.Errorf("operations.grace_period must be positive, got %v", c.Operations.GracePeriod)
	}
	if c.Cache.Persist && c.Cache.DBPath == "" {
		return errors.New("cache.db_path is required when cache.persist is set")
	}
	if c.Audit.Enabled && c.Audit.DBPath == "" {
		return errors.New("audit.db_path is required when audit is enabled")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
