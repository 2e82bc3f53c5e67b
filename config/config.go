// Package config provides configuration management for the IVF Copilot relay.
// Configuration is assembled once at startup from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// CredentialEnvVar names the environment variable holding the upstream API key.
const CredentialEnvVar = "OPENAI_API_KEY"

// Config represents the complete server configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Upstream       UpstreamConfig       `yaml:"upstream"`
	Validation     ValidationConfig     `yaml:"validation"`
	Logging        LoggingConfig        `yaml:"logging"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds server-specific configuration for the HTTP server.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 3000)
	Port int `yaml:"port" env:"PORT"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It must exceed the upstream timeout (default: 90s)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes caps the JSON request body (default: 1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// ShutdownTimeout specifies how long to wait for the server to shutdown
	// gracefully before forcing termination (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// HealthMessage is the plain-text body of GET /
	HealthMessage string `yaml:"health_message"`
}

// UpstreamConfig describes the completion service.
type UpstreamConfig struct {
	// Endpoint is the Responses API URL
	Endpoint string `yaml:"endpoint" env:"OPENAI_ENDPOINT"`

	// Model is the model identifier sent with every request
	Model string `yaml:"model" env:"OPENAI_MODEL"`

	// APIKey is the bearer credential. Use ${OPENAI_API_KEY} in YAML or set
	// the variable directly.
	APIKey string `yaml:"api_key" env:"OPENAI_API_KEY"`

	// Timeout bounds a single upstream attempt. Zero disables the bound.
	Timeout time.Duration `yaml:"timeout" env:"UPSTREAM_TIMEOUT"`

	// Retry configures retries. The default performs no retries.
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig defines the retry behavior for failed upstream calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 0)
	MaxRetries int `yaml:"max_retries"`

	// InitialDelay is the delay before the first retry (default: 500ms)
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the maximum delay between retries (default: 5s)
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier increases the delay after each retry (default: 2)
	Multiplier float64 `yaml:"multiplier"`

	// RetryableErrors selects what triggers a retry:
	// "rate_limit" (429), "timeout" (transport errors) and "server_error" (5xx)
	RetryableErrors []string `yaml:"retryable_errors"`
}

// ValidationConfig holds request validation limits.
type ValidationConfig struct {
	// MaxQuestionTokens rejects longer questions when positive (default: 0, disabled)
	MaxQuestionTokens int `yaml:"max_question_tokens"`

	// Encoding is the tiktoken encoding used for counting (default: o200k_base)
	Encoding string `yaml:"encoding"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level" env:"LOG_LEVEL"`

	// Format specifies log output format: json or text
	Format string `yaml:"format"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// RequestsPerMinute is the sustained rate per client IP
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// Burst is the number of requests allowed at once
	Burst int `yaml:"burst"`
}

// CircuitBreakerConfig configures the upstream circuit breaker.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxRequests is maximum number of requests allowed to pass through when in half-open state
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period of the closed state for the circuit breaker
	Interval time.Duration `yaml:"interval"`

	// Timeout is the period of the open state until it becomes half-open
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold is the number of consecutive failures needed to trip the circuit
	FailureThreshold uint32 `yaml:"failure_threshold"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			MaxHeaderBytes:  1 << 20,
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 30 * time.Second,
			HealthMessage:   "IVF Copilot server is running",
		},
		Upstream: UpstreamConfig{
			Endpoint: "https://api.openai.com/v1/responses",
			Model:    "gpt-4.1-mini",
			Timeout:  60 * time.Second,
			Retry: RetryConfig{
				MaxRetries:   0,
				InitialDelay: 500 * time.Millisecond,
				MaxDelay:     5 * time.Second,
				Multiplier:   2,
				RetryableErrors: []string{
					"rate_limit",
					"timeout",
					"server_error",
				},
			},
		},
		Validation: ValidationConfig{
			MaxQuestionTokens: 0,
			Encoding:          "o200k_base",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 30,
			Burst:             10,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          false,
			MaxRequests:      1,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
	}
}

// LoadFile loads configuration from a YAML file. An empty filename yields
// the defaults with environment overrides applied.
func LoadFile(filename string) (*Config, error) {
	if filename == "" {
		return Load(strings.NewReader(""))
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// expandEnvVars resolves ${VAR} and ${VAR:-default} references. Unset
// variables without a default expand to the empty string.
func expandEnvVars(s string) (string, error) {
	if strings.Count(s, "${") > strings.Count(s, "}") {
		return "", fmt.Errorf("invalid syntax: unterminated variable reference")
	}

	return os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			if val := os.Getenv(key[:i]); val != "" {
				return val
			}
			return key[i+2:]
		}
		return os.Getenv(key)
	}), nil
}

// Load loads configuration from an io.Reader. The YAML is decoded on top of
// DefaultConfig, then environment variables override tagged fields.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expandedData, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expand environment variables: %w", err)
	}

	config := DefaultConfig()

	if strings.TrimSpace(expandedData) != "" {
		dec := yaml.NewDecoder(strings.NewReader(expandedData))
		if err := dec.Decode(config); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// HasCredential reports whether the upstream API key is configured.
func (c *Config) HasCredential() bool {
	return strings.TrimSpace(c.Upstream.APIKey) != ""
}

// Validate checks if the configuration is valid. A missing credential is not
// a validation failure: requests report it individually.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("negative read timeout: %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("negative write timeout: %v", c.Server.WriteTimeout)
	}
	if c.Server.MaxHeaderBytes < 0 {
		return fmt.Errorf("negative max header bytes: %d", c.Server.MaxHeaderBytes)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive: %d", c.Server.MaxBodyBytes)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("negative shutdown timeout: %v", c.Server.ShutdownTimeout)
	}

	if c.Upstream.Endpoint == "" {
		return fmt.Errorf("empty upstream endpoint")
	}
	if c.Upstream.Model == "" {
		return fmt.Errorf("empty upstream model")
	}
	if c.Upstream.Timeout < 0 {
		return fmt.Errorf("negative upstream timeout: %v", c.Upstream.Timeout)
	}

	retry := c.Upstream.Retry
	if retry.MaxRetries < 0 {
		return fmt.Errorf("negative max retries: %d", retry.MaxRetries)
	}
	if retry.MaxRetries > 0 {
		if retry.InitialDelay <= 0 {
			return fmt.Errorf("retry initial delay must be positive")
		}
		if retry.MaxDelay < retry.InitialDelay {
			return fmt.Errorf("retry max delay must not be below initial delay")
		}
		if retry.Multiplier < 1 {
			return fmt.Errorf("retry multiplier must be at least 1")
		}
	}
	for _, kind := range retry.RetryableErrors {
		switch kind {
		case "rate_limit", "timeout", "server_error":
		default:
			return fmt.Errorf("invalid retryable error: %s", kind)
		}
	}

	if c.Validation.MaxQuestionTokens < 0 {
		return fmt.Errorf("negative max question tokens: %d", c.Validation.MaxQuestionTokens)
	}
	if c.Validation.MaxQuestionTokens > 0 && c.Validation.Encoding == "" {
		return fmt.Errorf("token encoding required when max question tokens is set")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate limit requests per minute must be positive")
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate limit burst must be positive")
		}
	}

	if c.CircuitBreaker.Enabled && c.CircuitBreaker.FailureThreshold == 0 {
		return fmt.Errorf("circuit breaker failure threshold must be positive")
	}

	return nil
}
