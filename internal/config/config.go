package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teemow/cozictl/internal/cozi"
	"github.com/teemow/cozictl/internal/logging"
)

// RetryConfig controls the transport retry policy.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// BaseDelay is the wait before the first retry; each further retry doubles it.
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay"`
}

// Config is the client configuration. Credentials are deliberately absent:
// they come from flags or COZI_USERNAME / COZI_PASSWORD only.
type Config struct {
	// BaseURL is the Cozi REST endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// UserAgent overrides the default "cozictl/<version> (read-only)".
	UserAgent string `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	Retry RetryConfig `yaml:"retry" json:"retry"`

	// ItemVersions is the API version order tried by calendar item lookups.
	ItemVersions []string `yaml:"item_versions" json:"item_versions"`

	// AttendeeConcurrency bounds parallel item lookups during attendee resolution.
	AttendeeConcurrency int `yaml:"attendee_concurrency" json:"attendee_concurrency"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: cozi.DefaultBaseURL,
		Timeout: cozi.DefaultTimeout,
		Retry: RetryConfig{
			MaxRetries: cozi.DefaultMaxRetries,
			BaseDelay:  cozi.DefaultInitialDelay,
		},
		ItemVersions:        slices.Clone(cozi.DefaultItemVersions),
		AttendeeConcurrency: cozi.DefaultAttendeeConcurrency,
	}
}

// Normalize fills zero values with defaults so partial files behave like
// complete ones.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if len(c.ItemVersions) == 0 {
		c.ItemVersions = def.ItemVersions
	}
	if c.AttendeeConcurrency <= 0 {
		c.AttendeeConcurrency = def.AttendeeConcurrency
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.BaseURL, "https://") && !strings.HasPrefix(c.BaseURL, "http://") {
		return fmt.Errorf("base_url must be an http(s) URL, got %q", c.BaseURL)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	for _, v := range c.ItemVersions {
		if v == "" || strings.ContainsAny(v, "/ ") {
			return fmt.Errorf("item_versions contains invalid version %q", v)
		}
	}
	return nil
}

// ClientOptions converts c into options for cozi.New. Logger and metrics are
// left for the caller.
func (c *Config) ClientOptions() cozi.Options {
	return cozi.Options{
		BaseURL:    c.BaseURL,
		UserAgent:  c.UserAgent,
		HTTPClient: &http.Client{Timeout: c.Timeout},
		Retry: cozi.RetryPolicy{
			MaxRetries:   c.Retry.MaxRetries,
			InitialDelay: c.Retry.BaseDelay,
		},
		ItemVersions:        slices.Clone(c.ItemVersions),
		AttendeeConcurrency: c.AttendeeConcurrency,
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/cozictl/config.yaml, or the
// platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cozictl", "config.yaml")
}

// Load reads the YAML file at path, applies environment overrides, normalizes
// and validates the result. A missing file is not an error: the defaults are
// used. An empty path means DefaultPath.
func Load(path string, log logging.Logger) (*Config, error) {
	if log == nil {
		log = logging.Discard()
	}
	if path == "" {
		path = DefaultPath()
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Debug("config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			log.Debug("loaded config file", "path", path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML with 0600 permissions, creating parent directories.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Environment variables overriding file values.
const (
	EnvBaseURL             = "COZI_BASE_URL"
	EnvUserAgent           = "COZI_USER_AGENT"
	EnvTimeout             = "COZI_TIMEOUT"
	EnvMaxRetries          = "COZI_MAX_RETRIES"
	EnvRetryBaseDelay      = "COZI_RETRY_BASE_DELAY"
	EnvItemVersions        = "COZI_ITEM_VERSIONS"
	EnvAttendeeConcurrency = "COZI_ATTENDEE_CONCURRENCY"
)

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvUserAgent); ok && v != "" {
		c.UserAgent = v
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v, ok := lookup(EnvMaxRetries); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxRetries, err)
		}
		c.Retry.MaxRetries = n
	}
	if v, ok := lookup(EnvRetryBaseDelay); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetryBaseDelay, err)
		}
		c.Retry.BaseDelay = d
	}
	if v, ok := lookup(EnvItemVersions); ok && v != "" {
		var versions []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				versions = append(versions, part)
			}
		}
		c.ItemVersions = versions
	}
	if v, ok := lookup(EnvAttendeeConcurrency); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAttendeeConcurrency, err)
		}
		c.AttendeeConcurrency = n
	}
	return nil
}
