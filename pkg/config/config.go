package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Fetch FetchConfig `yaml:"fetch" json:"fetch" jsonschema:"description=Anti-detection HTTP fetching configuration"`

	Browser BrowserConfig `yaml:"browser" json:"browser" jsonschema:"description=Headless browser fallback configuration"`

	Validation ValidationConfig `yaml:"validation" json:"validation" jsonschema:"description=Recipe validation thresholds"`

	Caption struct {
		MaxBatch      int `yaml:"max_batch" json:"max_batch" jsonschema:"default=10,description=Maximum captions per batch request"`
		MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent" jsonschema:"default=4,description=Concurrent caption parses per batch"`
	} `yaml:"caption" json:"caption" jsonschema:"description=Caption parsing configuration"`
}

// FetchConfig holds anti-detection HTTP client settings
type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Per-request timeout"`
	MaxBodySize   int64         `yaml:"max_body_size" json:"max_body_size" jsonschema:"default=10485760,description=Response body cap in bytes"`
	RateBaseDelay time.Duration `yaml:"rate_base_delay" json:"rate_base_delay" jsonschema:"default=2s,description=Base per-domain delay between requests"`
	RateMaxDelay  time.Duration `yaml:"rate_max_delay" json:"rate_max_delay" jsonschema:"default=30s,description=Per-domain delay ceiling after repeated failures"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts" jsonschema:"default=3,description=Attempts per fetch before giving up"`
	RetryBase     time.Duration `yaml:"retry_base" json:"retry_base" jsonschema:"default=1s,description=Initial retry backoff"`
	RetryMaxDelay time.Duration `yaml:"retry_max_delay" json:"retry_max_delay" jsonschema:"default=60s,description=Retry backoff ceiling"`
	Proxies       []string      `yaml:"proxies" json:"proxies,omitempty" jsonschema:"description=Optional proxy URLs rotated between requests"`
	SessionEvict  time.Duration `yaml:"session_evict" json:"session_evict" jsonschema:"default=1h,description=How often idle cookie sessions are evicted"`
}

// BrowserConfig holds headless browser settings. The fallback is on by
// default and opts out with disabled, so a zero config still escalates to
// the browser when a site blocks plain HTTP.
type BrowserConfig struct {
	Disabled bool          `yaml:"disabled" json:"disabled" jsonschema:"default=false,description=Disable the headless browser fallback"`
	Windowed bool          `yaml:"windowed" json:"windowed" jsonschema:"default=false,description=Run Chrome with a visible window for debugging"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=60s,description=Per-page rendering budget"`
}

// Enabled reports whether the browser fallback should be wired in
func (b BrowserConfig) Enabled() bool { return !b.Disabled }

// ValidationConfig holds confidence thresholds for the review pipeline
type ValidationConfig struct {
	Minimum        float64 `yaml:"minimum" json:"minimum" jsonschema:"default=0.2,minimum=0,maximum=1,description=Confidence below this is an error"`
	ReviewRequired float64 `yaml:"review_required" json:"review_required" jsonschema:"default=0.5,minimum=0,maximum=1,description=Confidence below this warns and queues for review"`
	AutoApprove    float64 `yaml:"auto_approve" json:"auto_approve" jsonschema:"default=0.8,minimum=0,maximum=1,description=Confidence at or above this auto-approves"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

// Default returns a config with every default applied, used when no config
// file is given
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	// set defaults for server
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}

	// set defaults for fetching
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBodySize == 0 {
		c.Fetch.MaxBodySize = 10 * 1024 * 1024
	}
	if c.Fetch.RateBaseDelay == 0 {
		c.Fetch.RateBaseDelay = 2 * time.Second
	}
	if c.Fetch.RateMaxDelay == 0 {
		c.Fetch.RateMaxDelay = 30 * time.Second
	}
	if c.Fetch.RetryAttempts == 0 {
		c.Fetch.RetryAttempts = 3
	}
	if c.Fetch.RetryBase == 0 {
		c.Fetch.RetryBase = time.Second
	}
	if c.Fetch.RetryMaxDelay == 0 {
		c.Fetch.RetryMaxDelay = 60 * time.Second
	}
	if c.Fetch.SessionEvict == 0 {
		c.Fetch.SessionEvict = time.Hour
	}

	// set defaults for browser
	if c.Browser.Timeout == 0 {
		c.Browser.Timeout = 60 * time.Second
	}

	// set defaults for validation thresholds
	if c.Validation.Minimum == 0 {
		c.Validation.Minimum = 0.2
	}
	if c.Validation.ReviewRequired == 0 {
		c.Validation.ReviewRequired = 0.5
	}
	if c.Validation.AutoApprove == 0 {
		c.Validation.AutoApprove = 0.8
	}

	// set defaults for caption batches
	if c.Caption.MaxBatch == 0 {
		c.Caption.MaxBatch = 10
	}
	if c.Caption.MaxConcurrent == 0 {
		c.Caption.MaxConcurrent = 4
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	// validate server config
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	// validate fetch config
	if cfg.Fetch.Timeout < time.Second {
		return fmt.Errorf("fetch timeout must be at least 1 second")
	}
	if cfg.Fetch.RetryAttempts < 1 {
		return fmt.Errorf("fetch retry_attempts must be at least 1")
	}
	if cfg.Fetch.RateMaxDelay < cfg.Fetch.RateBaseDelay {
		return fmt.Errorf("fetch rate_max_delay must be at least rate_base_delay")
	}

	// validate browser config
	if cfg.Browser.Enabled() && cfg.Browser.Timeout < time.Second {
		return fmt.Errorf("browser timeout must be at least 1 second")
	}

	// validate validation thresholds, they must be ordered
	v := cfg.Validation
	if v.Minimum < 0 || v.AutoApprove > 1 {
		return fmt.Errorf("validation thresholds must be within [0, 1]")
	}
	if !(v.Minimum <= v.ReviewRequired && v.ReviewRequired <= v.AutoApprove) {
		return fmt.Errorf("validation thresholds must be ordered minimum <= review_required <= auto_approve")
	}

	// validate caption config
	if cfg.Caption.MaxConcurrent < 1 {
		return fmt.Errorf("caption max_concurrent must be at least 1")
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// GetFetchConfig returns anti-detection fetching configuration
func (c *Config) GetFetchConfig() FetchConfig {
	return c.Fetch
}

// GetBrowserConfig returns headless browser configuration
func (c *Config) GetBrowserConfig() BrowserConfig {
	return c.Browser
}
