package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the research client
type Config struct {
	// TikTok Research API settings
	API APIConfig `yaml:"api" json:"api"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry behavior for page requests
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// APIConfig holds vendor API settings and credentials
type APIConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	ClientKey      string        `yaml:"client_key" json:"client_key"`
	ClientSecret   string        `yaml:"client_secret" json:"client_secret"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// MaxSpanDays is the widest date window the vendor accepts per query.
	MaxSpanDays int `yaml:"max_span_days" json:"max_span_days"`

	// PageSize is the max_count sent per page request.
	PageSize int `yaml:"page_size" json:"page_size"`

	// CommentsMax is the vendor's hard cap on comments per video.
	CommentsMax int `yaml:"comments_max" json:"comments_max"`

	// Regions, when set, restricts video queries to these region codes.
	Regions []string `yaml:"regions" json:"regions"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RetryConfig holds retry configuration for page requests
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
	Format        string `yaml:"format" json:"format"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "https://open.tiktokapis.com",
			RequestTimeout: 30 * time.Second,
			MaxSpanDays:    30,
			PageSize:       100,
			CommentsMax:    1000,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    60 * time.Second,
		},
		Output: OutputConfig{
			BaseDirectory: "data",
			Format:        "json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// (if any), then environment variables, then CLI flag overrides.
func Load(configFile string, flags map[string]interface{}) (*Config, error) {
	cfg := DefaultConfig()

	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := cfg.loadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()
	cfg.applyFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile looks for a config file in standard locations
func findConfigFile() string {
	candidates := []string{".tikresearch.yaml", "tikresearch.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".tikresearch.yaml"),
			filepath.Join(home, ".config", "tikresearch", "config.yaml"),
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// loadFromEnv applies environment overrides. A local .env file is loaded
// first if present, matching how credentials are usually supplied.
func (c *Config) loadFromEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("TIKTOK_CLIENT_KEY"); v != "" {
		c.API.ClientKey = v
	}
	if v := os.Getenv("TIKTOK_CLIENT_SECRET"); v != "" {
		c.API.ClientSecret = v
	}
	if v := os.Getenv("TIKTOK_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("TIKRESEARCH_OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := os.Getenv("TIKRESEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// applyFlags overrides configuration with explicitly set CLI flags
func (c *Config) applyFlags(flags map[string]interface{}) {
	for name, value := range flags {
		switch name {
		case "client-key":
			if v, ok := value.(string); ok {
				c.API.ClientKey = v
			}
		case "client-secret":
			if v, ok := value.(string); ok {
				c.API.ClientSecret = v
			}
		case "output":
			if v, ok := value.(string); ok {
				c.Output.BaseDirectory = v
			}
		case "format":
			if v, ok := value.(string); ok {
				c.Output.Format = v
			}
		case "rate-limit":
			if v, ok := value.(int); ok {
				c.RateLimit.RequestsPerMinute = v
			}
		case "max-retries":
			if v, ok := value.(int); ok {
				c.Retry.MaxAttempts = v
			}
		case "timeout":
			if v, ok := value.(time.Duration); ok {
				c.API.RequestTimeout = v
			}
		case "log-level":
			if v, ok := value.(string); ok {
				c.Logging.Level = v
			}
		}
	}
}

// Validate checks the configuration for invalid values. Credential
// presence is checked separately, before any network call.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("api.request_timeout must be positive")
	}
	if c.API.MaxSpanDays <= 0 {
		return fmt.Errorf("api.max_span_days must be positive")
	}
	if c.API.PageSize <= 0 || c.API.PageSize > 100 {
		return fmt.Errorf("api.page_size must be between 1 and 100")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}
	switch strings.ToLower(c.Output.Format) {
	case "json", "csv":
	default:
		return fmt.Errorf("output.format must be json or csv, got %q", c.Output.Format)
	}
	return nil
}

// HasCredentials reports whether a client key and secret are configured
func (c *Config) HasCredentials() bool {
	return c.API.ClientKey != "" && c.API.ClientSecret != ""
}
