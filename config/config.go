// Package config provides configuration management for the parley chat server.
// It covers the HTTP listener, the completion provider, conversation memory
// retention, moderation, uploads, and logging.
//
// Configuration is layered: built-in defaults, then an optional YAML file
// (with ${VAR} and ${VAR:-default} expansion), then the well-known
// environment variables of the Azure OpenAI deployment, then validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted after the YAML file is applied.
const (
	EnvAPIKey     = "AZURE_OPENAI_API_KEY"
	EnvEndpoint   = "AZURE_OPENAI_ENDPOINT"
	EnvDeployment = "AZURE_DEPLOYMENT_NAME"
	EnvAPIVersion = "AZURE_OPENAI_API_VERSION"
	EnvPort       = "PORT"
	EnvHost       = "HOST"
)

// Config represents the complete server configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	LLM            LLMConfig            `yaml:"llm"`
	Memory         MemoryConfig         `yaml:"memory"`
	Moderation     ModerationConfig     `yaml:"moderation"`
	Upload         UploadConfig         `yaml:"upload"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// ServerConfig holds server-specific configuration for the HTTP server.
// It defines timeouts, limits, and operational parameters.
type ServerConfig struct {
	// Host is the interface to bind (default: 0.0.0.0)
	Host string `yaml:"host"`

	// Port specifies the HTTP server port (default: 5000)
	Port int `yaml:"port" validate:"gte=0,lte=65535"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including uploaded files (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gte=0"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// It must leave room for the completion call (default: 90s)
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes" validate:"gte=0"`

	// ShutdownTimeout specifies how long to wait for the server to shutdown
	// gracefully before forcing termination (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig holds the completion provider configuration.
type LLMConfig struct {
	// Provider selects the backend: "azure" and "openai" use the OpenAI
	// client, anything else ("anthropic", "ollama", ...) goes through gollm.
	Provider string `yaml:"provider" validate:"required"`

	// Model is the model name sent to the provider (e.g., "gpt-4o")
	Model string `yaml:"model"`

	// Deployment is the Azure deployment name; requests are routed to it
	// regardless of Model.
	Deployment string `yaml:"deployment"`

	// Endpoint is the API base URL. Required for Azure; optional for OpenAI.
	Endpoint string `yaml:"endpoint"`

	// APIKey is the authentication key for the provider's API.
	// Use environment variables (e.g., ${AZURE_OPENAI_API_KEY}) rather than literals.
	APIKey string `yaml:"api_key"`

	// APIVersion is the Azure REST API version.
	APIVersion string `yaml:"api_version"`

	// SystemPrompt is prepended to every request and never stored.
	SystemPrompt string `yaml:"system_prompt" validate:"required"`

	// MaxOutputTokens caps the generated answer (default: 350)
	MaxOutputTokens int `yaml:"max_output_tokens" validate:"gt=0"`

	// Temperature is the sampling temperature (default: 0.7)
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`

	// Timeout bounds a single completion call (default: 60s)
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// CircuitBreakerConfig configures the fail-fast breaker around the provider.
// Nothing is retried; an open breaker only short-circuits calls.
type CircuitBreakerConfig struct {
	// Enabled turns the breaker on (default: false)
	Enabled bool `yaml:"enabled"`

	// MaxRequests is maximum number of requests allowed to pass through when in half-open state
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period of the closed state for the circuit breaker
	Interval time.Duration `yaml:"interval" validate:"gte=0"`

	// Timeout is the period of the open state until it becomes half-open
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// FailureThreshold is the number of consecutive failures needed to trip the circuit
	FailureThreshold uint32 `yaml:"failure_threshold"`
}

// RateLimitConfig configures per-client inbound rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" validate:"gte=0"`
	Burst             int  `yaml:"burst" validate:"gte=0"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format specifies log output format: json or text
	Format string `yaml:"format" validate:"oneof=json text"`
}

// DefaultConfig returns the configuration used when no file is given.
// Generation defaults match the values the chat page was tuned with.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:        "azure",
			Model:           "gpt-4o",
			APIVersion:      "2024-02-01",
			SystemPrompt:    "You are an AI assistant that remembers past conversations.",
			MaxOutputTokens: 350,
			Temperature:     0.7,
			Timeout:         60 * time.Second,
		},
		Memory: MemoryConfig{
			MaxTurns:    0,
			MaxTokens:   0,
			Tokenizer:   "estimate",
			MaxSessions: 10000,
		},
		Moderation: ModerationConfig{
			BlockedTerms: []string{"hate speech", "violence", "discrimination"},
			Refusal:      "I'm sorry, but I can't provide a response to that request.",
		},
		Upload: UploadConfig{
			MaxUploadBytes:   20 << 20,
			MaxDocumentPages: 0,
			DefaultCaption:   "Describe the image.",
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          false,
			MaxRequests:      1,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 30,
			Burst:             10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFile loads configuration from a YAML file
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Resolve loads the file at path. An empty path means defaults plus
// environment; a named file that does not exist is an error.
func Resolve(path string) (*Config, error) {
	if path == "" {
		return FromEnv()
	}
	return LoadFile(path)
}

// FromEnv builds a configuration from defaults and environment variables only.
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars resolves ${VAR} and ${VAR:-default} references. Nested
// references are expanded until the string stops changing.
func expandEnvVars(s string) string {
	result := os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			if val := os.Getenv(key[:i]); val != "" {
				return val
			}
			return key[i+2:]
		}
		return os.Getenv(key)
	})

	prev := ""
	for prev != result {
		prev = result
		result = os.Expand(result, os.Getenv)
	}
	return result
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config := DefaultConfig()

	// Decode YAML on top of defaults
	dec := yaml.NewDecoder(strings.NewReader(expandEnvVars(string(data))))
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// ApplyEnv overlays the Azure deployment environment variables. Unset or
// empty variables leave the current value alone.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv(EnvDeployment); v != "" {
		c.LLM.Deployment = v
	}
	if v := os.Getenv(EnvAPIVersion); v != "" {
		c.LLM.APIVersion = v
	}
	if v := os.Getenv(EnvHost); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", EnvPort, v)
		}
		c.Server.Port = port
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			return fmt.Errorf("invalid %s: %v fails %q", field, fe.Value(), fe.Tag())
		}
		return err
	}

	switch c.LLM.Provider {
	case "azure":
		if c.LLM.APIKey == "" || c.LLM.Endpoint == "" || c.LLM.Deployment == "" {
			return fmt.Errorf("azure provider requires api_key, endpoint and deployment (set %s, %s, %s)",
				EnvAPIKey, EnvEndpoint, EnvDeployment)
		}
		if c.LLM.APIVersion == "" {
			return fmt.Errorf("azure provider requires api_version")
		}
	case "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("openai provider requires api_key")
		}
		if c.LLM.Model == "" {
			return fmt.Errorf("empty LLM model")
		}
	default:
		if c.LLM.Model == "" {
			return fmt.Errorf("empty LLM model")
		}
	}

	if c.CircuitBreaker.Enabled && c.CircuitBreaker.FailureThreshold == 0 {
		return fmt.Errorf("circuit breaker enabled with zero failure threshold")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute == 0 {
		return fmt.Errorf("rate limit enabled with zero requests per minute")
	}

	return nil
}
