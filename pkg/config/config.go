// Package config provides configuration structures and loading logic for the gatekeeper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/polisai/gatekeeper/internal/governance"
	"github.com/polisai/gatekeeper/pkg/domain"
	"github.com/polisai/gatekeeper/pkg/llm"
	"github.com/polisai/gatekeeper/pkg/telemetry"
)

// Reasoning providers.
const (
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Config holds the global configuration for the gatekeeper.
type Config struct {
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Policy    PolicyConfig    `yaml:"policy"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ReasoningConfig configures the secondary assessment engine.
type ReasoningConfig struct {
	Provider    string        `yaml:"provider"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	JSONMode    bool          `yaml:"json_mode"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// PolicyConfig locates the rule document. An empty path selects the built-in rules.
type PolicyConfig struct {
	Path     string `yaml:"path"`
	Required bool   `yaml:"required"`
	Watch    bool   `yaml:"watch"`
}

// ServerConfig holds configuration for the HTTP service.
type ServerConfig struct {
	Address         string          `yaml:"address"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds per-client request rates. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
	// Redaction maps span attribute keys to drop, mask, hash, replace or keep.
	Redaction map[string]string `yaml:"redaction"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file or environment overrides are present.
func Default() *Config {
	return &Config{
		Reasoning: ReasoningConfig{
			Provider:   ProviderOpenAI,
			Model:      llm.DefaultModel,
			BaseURL:    llm.DefaultBaseURL,
			Timeout:    governance.DefaultRequestTimeout,
			MaxRetries: governance.DefaultRetryConfig().MaxRetries,
		},
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "gatekeeper",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a file, the .env file in the working directory and
// the environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read config file %s: %v", domain.ErrConfigInvalid, path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file %s: %v", domain.ErrConfigInvalid, path, err)
		}
	}

	// Variables already in the environment win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to read .env: %v", domain.ErrConfigInvalid, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		cfg.Reasoning.APIKey = val
	}
	if val := os.Getenv("OPENAI_MODEL"); val != "" {
		cfg.Reasoning.Model = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		cfg.Reasoning.BaseURL = val
	}
	if val := os.Getenv("GATEKEEPER_PROVIDER"); val != "" {
		cfg.Reasoning.Provider = val
	}
	if val := os.Getenv("GATEKEEPER_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return envError("GATEKEEPER_TIMEOUT", val, err)
		}
		cfg.Reasoning.Timeout = d
	}
	if val := os.Getenv("GATEKEEPER_MAX_RETRIES"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return envError("GATEKEEPER_MAX_RETRIES", val, err)
		}
		cfg.Reasoning.MaxRetries = n
	}
	if val := os.Getenv("GATEKEEPER_TEMPERATURE"); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return envError("GATEKEEPER_TEMPERATURE", val, err)
		}
		cfg.Reasoning.Temperature = f
	}

	if val := os.Getenv("POLICY_PATH"); val != "" {
		cfg.Policy.Path = val
	}
	if val := os.Getenv("GATEKEEPER_POLICY_REQUIRED"); val == "true" {
		cfg.Policy.Required = true
	}
	if val := os.Getenv("GATEKEEPER_POLICY_WATCH"); val == "true" {
		cfg.Policy.Watch = true
	}

	if val := os.Getenv("GATEKEEPER_ADDR"); val != "" {
		cfg.Server.Address = val
	}

	if val := os.Getenv("GATEKEEPER_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("GATEKEEPER_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("GATEKEEPER_LOG_PRETTY"); val == "true" {
		cfg.Logging.Pretty = true
	}
	return nil
}

func envError(name, val string, err error) error {
	return fmt.Errorf("%w: environment variable %s=%q: %v", domain.ErrConfigInvalid, name, val, err)
}

// Validate normalises the configuration and rejects values the gatekeeper cannot run with.
// Errors wrap domain.ErrConfigInvalid.
func (c *Config) Validate() error {
	if err := c.Reasoning.Validate(); err != nil {
		return fmt.Errorf("%w: reasoning configuration: %v", domain.ErrConfigInvalid, err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("%w: server configuration: %v", domain.ErrConfigInvalid, err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("%w: telemetry configuration: %v", domain.ErrConfigInvalid, err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: logging configuration: %v", domain.ErrConfigInvalid, err)
	}

	return nil
}

// Validate performs validation of reasoning configuration
func (c *ReasoningConfig) Validate() error {
	provider := strings.TrimSpace(strings.ToLower(c.Provider))
	switch provider {
	case "":
		c.Provider = ProviderOpenAI
	case ProviderOpenAI, ProviderNone:
		c.Provider = provider
	default:
		return fmt.Errorf("unknown provider %q, supported providers: openai, none", c.Provider)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %g", c.Temperature)
	}

	if strings.TrimSpace(c.Model) == "" {
		c.Model = llm.DefaultModel
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = llm.DefaultBaseURL
	}
	return nil
}

// Validate performs validation of server configuration
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = ":8080"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second must not be negative")
	}
	if c.RateLimit.BurstSize < 0 {
		return fmt.Errorf("rate_limit.burst_size must not be negative")
	}
	return nil
}

// Validate performs validation of telemetry configuration
func (c *TelemetryConfig) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "gatekeeper"
	}
	for key, strategy := range c.Redaction {
		switch strategy {
		case telemetry.RedactDrop, telemetry.RedactMask, telemetry.RedactHash, telemetry.RedactReplace, telemetry.RedactKeep:
		default:
			return fmt.Errorf("invalid redaction strategy %q for %q, supported strategies: drop, mask, hash, replace, keep", strategy, key)
		}
	}
	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	// Set default log level if not provided
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level // Normalize to lowercase
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
}
