// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

const (
	// ServiceName for keyring storage
	ServiceName = "conductor"
	// DefaultConfigFileName is the name of the config file
	DefaultConfigFileName = "conductord"
)

// Config holds all configuration for the conductor server.
// Priority: CLI flags > config file > env vars > defaults
type Config struct {
	// DataDir is the conductor data directory (computed from CONDUCTOR_DATA_DIR
	// env var or ~/.conductor). Set during config initialization, read-only,
	// and never loaded from the config file.
	DataDir string `mapstructure:"-"`

	// Server configuration (HTTP/SSE ingress)
	Server ServerConfig `mapstructure:"server"`

	// LLM provider configuration
	LLM LLMConfig `mapstructure:"llm"`

	// Checkpoint store configuration
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`

	// ToolService configuration (backend gRPC tool service)
	ToolService ToolServiceConfig `mapstructure:"tool_service"`

	// Agents configuration (routing, aliases, workflow flags)
	Agents AgentsConfig `mapstructure:"agents"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`

	// Observability configuration
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string     `mapstructure:"host"`
	Port int        `mapstructure:"port"`
	CORS CORSConfig `mapstructure:"cors"`

	// ReadHeaderTimeoutSeconds bounds request header reads. The server
	// never sets a write timeout because chat responses stream over SSE
	// for as long as a turn takes.
	ReadHeaderTimeoutSeconds int `mapstructure:"read_header_timeout_seconds"`
}

// CORSConfig holds CORS configuration for HTTP endpoints.
//
// The default configuration uses wildcard origins (["*"]) which is only
// appropriate for development. For production set allowed_origins to
// specific domains.
type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider string `mapstructure:"provider"` // anthropic, bedrock, bedrock-sdk

	// Anthropic-specific
	AnthropicAPIKey  string `mapstructure:"anthropic_api_key"` // From CLI/env/keyring only
	AnthropicModel   string `mapstructure:"anthropic_model"`
	AnthropicBaseURL string `mapstructure:"anthropic_base_url"`

	// Bedrock-specific
	BedrockRegion          string `mapstructure:"bedrock_region"`
	BedrockAccessKeyID     string `mapstructure:"bedrock_access_key_id"`     // From CLI/env/keyring only
	BedrockSecretAccessKey string `mapstructure:"bedrock_secret_access_key"` // From CLI/env/keyring only
	BedrockSessionToken    string `mapstructure:"bedrock_session_token"`     // From CLI/env/keyring only
	BedrockProfile         string `mapstructure:"bedrock_profile"`
	BedrockModelID         string `mapstructure:"bedrock_model_id"`

	// Common generation parameters
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Timeout     int     `mapstructure:"timeout_seconds"`

	// Rate limiting (shared across all agents via the global limiter)
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds LLM rate limiter configuration.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	TokensPerMinute   int64   `mapstructure:"tokens_per_minute"`
	BurstCapacity     int     `mapstructure:"burst_capacity"`
	MinDelayMs        int     `mapstructure:"min_delay_ms"`
	MaxRetries        int     `mapstructure:"max_retries"`
}

// CheckpointConfig holds checkpoint store configuration.
type CheckpointConfig struct {
	// Backend selects the store: memory, sqlite, postgres
	Backend string `mapstructure:"backend"`

	// Path is the SQLite database path (sqlite backend only)
	Path string `mapstructure:"path"`

	// EncryptionKey enables SQLCipher at-rest encryption when non-empty
	// (sqlite backend built with CGO only). From CLI/env/keyring only.
	EncryptionKey string `mapstructure:"encryption_key"`

	// PostgresDSN is the connection string for the postgres backend.
	// From CLI/env/keyring only.
	PostgresDSN string `mapstructure:"postgres_dsn"`

	// Compression enables zstd compression of checkpoint payloads
	Compression bool `mapstructure:"compression"`

	// Retention controls the background checkpoint sweeper
	Retention RetentionConfig `mapstructure:"retention"`
}

// RetentionConfig holds checkpoint retention sweeper configuration.
type RetentionConfig struct {
	// Enabled turns the cron sweeper on (default: true)
	Enabled bool `mapstructure:"enabled"`

	// Schedule is a cron expression for sweep runs (default: "0 3 * * *")
	Schedule string `mapstructure:"schedule"`

	// MaxAgeDays is how long non-latest checkpoints are kept (default: 30)
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// ToolServiceConfig holds backend tool service connection configuration.
type ToolServiceConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`

	// MaxMessageBytes caps gRPC send/recv message sizes. Document payloads
	// and search results can be large; default is 100MB.
	MaxMessageBytes int `mapstructure:"max_message_bytes"`
}

// Address returns the host:port dial target.
func (c ToolServiceConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AgentsConfig holds agent routing and workflow configuration.
type AgentsConfig struct {
	// DefaultAgent receives turns the intent classifier cannot place
	DefaultAgent string `mapstructure:"default_agent"`

	// AliasPath is the agent alias table YAML (hot reloaded when it changes)
	AliasPath string `mapstructure:"alias_path"`

	// Research holds research workflow flags
	Research ResearchConfig `mapstructure:"research"`
}

// ResearchConfig holds research workflow configuration.
type ResearchConfig struct {
	// SkipQuickAnswer disables the quick-answer short circuit
	SkipQuickAnswer bool `mapstructure:"skip_quick_answer"`

	// HITLWebSearch pauses the workflow for approval before the first
	// web search round
	HITLWebSearch bool `mapstructure:"hitl_web_search"`

	// MaxSearchWorkers caps the parallel local search fan-out (default: 4)
	MaxSearchWorkers int `mapstructure:"max_search_workers"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
	File   string `mapstructure:"file"`   // File path for log output (optional, defaults to stderr)
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads configuration from multiple sources with proper priority:
// 1. Command line flags (highest priority)
// 2. Config file
// 3. Environment variables
// 4. Defaults (lowest priority)
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in standard locations (in order of priority)
		viper.AddConfigPath(GetDataDir())          // Conductor data directory (respects CONDUCTOR_DATA_DIR)
		viper.AddConfigPath(".")                   // Current directory
		viper.AddConfigPath("/etc/conductor/")     // System-wide
		viper.SetConfigName(DefaultConfigFileName) // conductord.yaml
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error occurred
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	// Bind environment variables: CONDUCTOR_SERVER_PORT -> server.port
	viper.SetEnvPrefix("CONDUCTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set DataDir from environment or default. This must be done after
	// unmarshal since it's not loaded from the config file.
	config.DataDir = GetDataDir()

	// Load secrets from keyring if not provided via CLI/env.
	// Non-fatal: keyring might not be available.
	_ = loadSecretsFromKeyring(&config)

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 2024)
	viper.SetDefault("server.read_header_timeout_seconds", 10)

	// CORS defaults (permissive for development)
	viper.SetDefault("server.cors.enabled", true)
	viper.SetDefault("server.cors.allowed_origins", []string{"*"})
	viper.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("server.cors.allowed_headers", []string{"*"})
	viper.SetDefault("server.cors.max_age", 86400)

	// LLM defaults
	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("llm.anthropic_model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("llm.anthropic_base_url", "https://api.anthropic.com")
	viper.SetDefault("llm.bedrock_region", "us-west-2")
	viper.SetDefault("llm.bedrock_model_id", "us.anthropic.claude-sonnet-4-5-20250929-v1:0")
	viper.SetDefault("llm.temperature", 1.0)
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.timeout_seconds", 120)

	// Rate limiter defaults
	viper.SetDefault("llm.rate_limit.enabled", true)
	viper.SetDefault("llm.rate_limit.requests_per_second", 2.0)
	viper.SetDefault("llm.rate_limit.tokens_per_minute", 40000)
	viper.SetDefault("llm.rate_limit.burst_capacity", 5)
	viper.SetDefault("llm.rate_limit.min_delay_ms", 300)
	viper.SetDefault("llm.rate_limit.max_retries", 5)

	// Checkpoint defaults (SQLite in the conductor data directory)
	defaultDBPath := filepath.Join(GetDataDir(), "checkpoints.db")
	viper.SetDefault("checkpoint.backend", "sqlite")
	viper.SetDefault("checkpoint.path", defaultDBPath)
	viper.SetDefault("checkpoint.compression", true)
	viper.SetDefault("checkpoint.retention.enabled", true)
	viper.SetDefault("checkpoint.retention.schedule", "0 3 * * *")
	viper.SetDefault("checkpoint.retention.max_age_days", 30)

	// Tool service defaults. BACKEND_TOOL_SERVICE_HOST/PORT are honored
	// verbatim so deployments that predate the config file keep working.
	toolHost := "backend"
	if envHost := os.Getenv("BACKEND_TOOL_SERVICE_HOST"); envHost != "" {
		toolHost = envHost
	}
	toolPort := 50052
	if envPort := os.Getenv("BACKEND_TOOL_SERVICE_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil && p > 0 {
			toolPort = p
		}
	}
	viper.SetDefault("tool_service.host", toolHost)
	viper.SetDefault("tool_service.port", toolPort)
	viper.SetDefault("tool_service.timeout_seconds", 60)
	viper.SetDefault("tool_service.max_message_bytes", 100*1024*1024)

	// Agents defaults
	viper.SetDefault("agents.default_agent", "chat")
	viper.SetDefault("agents.alias_path", filepath.Join(GetDataDir(), "aliases.yaml"))
	viper.SetDefault("agents.research.skip_quick_answer", false)
	viper.SetDefault("agents.research.hitl_web_search", false)
	viper.SetDefault("agents.research.max_search_workers", 4)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Observability defaults
	viper.SetDefault("observability.enabled", true)
}

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("llm.anthropic_api_key is required for the anthropic provider (set ANTHROPIC_API_KEY, CONDUCTOR_LLM_ANTHROPIC_API_KEY, or store it with 'conductord config set-key anthropic_api_key')")
		}
	case "bedrock", "bedrock-sdk":
		// Bedrock can authenticate through the default AWS credential
		// chain, so explicit keys are optional.
	default:
		return fmt.Errorf("unknown llm.provider %q (expected anthropic, bedrock, or bedrock-sdk)", c.LLM.Provider)
	}

	switch c.Checkpoint.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Checkpoint.PostgresDSN == "" {
			return fmt.Errorf("checkpoint.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint.backend %q (expected memory, sqlite, or postgres)", c.Checkpoint.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.ToolService.Port <= 0 || c.ToolService.Port > 65535 {
		return fmt.Errorf("tool_service.port %d is out of range", c.ToolService.Port)
	}

	return nil
}

// SecretMapping defines how to load a secret from keyring into the config.
// The key is the keyring key name, and the setter applies the value.
type SecretMapping struct {
	KeyringKey string
	Setter     func(*Config, string)
	IsSet      func(*Config) bool // Returns true if the value is already set (skip keyring lookup)
}

// GetSecretMappings returns all secret mappings for the application.
func GetSecretMappings() []SecretMapping {
	return []SecretMapping{
		{
			KeyringKey: "anthropic_api_key",
			Setter:     func(c *Config, val string) { c.LLM.AnthropicAPIKey = val },
			IsSet:      func(c *Config) bool { return c.LLM.AnthropicAPIKey != "" },
		},
		{
			KeyringKey: "bedrock_access_key_id",
			Setter:     func(c *Config, val string) { c.LLM.BedrockAccessKeyID = val },
			IsSet:      func(c *Config) bool { return c.LLM.BedrockAccessKeyID != "" },
		},
		{
			KeyringKey: "bedrock_secret_access_key",
			Setter:     func(c *Config, val string) { c.LLM.BedrockSecretAccessKey = val },
			IsSet:      func(c *Config) bool { return c.LLM.BedrockSecretAccessKey != "" },
		},
		{
			KeyringKey: "bedrock_session_token",
			Setter:     func(c *Config, val string) { c.LLM.BedrockSessionToken = val },
			IsSet:      func(c *Config) bool { return c.LLM.BedrockSessionToken != "" },
		},
		{
			KeyringKey: "checkpoint_encryption_key",
			Setter:     func(c *Config, val string) { c.Checkpoint.EncryptionKey = val },
			IsSet:      func(c *Config) bool { return c.Checkpoint.EncryptionKey != "" },
		},
		{
			KeyringKey: "checkpoint_postgres_dsn",
			Setter:     func(c *Config, val string) { c.Checkpoint.PostgresDSN = val },
			IsSet:      func(c *Config) bool { return c.Checkpoint.PostgresDSN != "" },
		},
	}
}

// loadSecretsFromKeyring loads secrets from the system keyring using the
// secret mappings. Extensible: add more entries to GetSecretMappings().
func loadSecretsFromKeyring(config *Config) error {
	for _, mapping := range GetSecretMappings() {
		// Skip if value is already set (from CLI/env/config file)
		if mapping.IsSet(config) {
			continue
		}

		value, err := GetSecretFromKeyring(mapping.KeyringKey)
		if err == nil && value != "" {
			mapping.Setter(config, value)
		}
		// Non-fatal: if keyring doesn't have the key, just continue
	}

	// ANTHROPIC_API_KEY is the conventional env var outside the
	// CONDUCTOR_ prefix; honor it as a last resort.
	if config.LLM.AnthropicAPIKey == "" {
		config.LLM.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	return nil
}

// GetSecretFromKeyring retrieves a secret from the system keyring.
func GetSecretFromKeyring(key string) (string, error) {
	return keyring.Get(ServiceName, key)
}

// SaveSecretToKeyring saves a secret to the system keyring.
func SaveSecretToKeyring(key, value string) error {
	return keyring.Set(ServiceName, key, value)
}

// DeleteSecretFromKeyring removes a secret from the system keyring.
func DeleteSecretFromKeyring(key string) error {
	return keyring.Delete(ServiceName, key)
}

// ListAvailableSecretKeys returns all known secret keys that can be stored
// in the keyring. Useful for CLI commands that need to show options.
func ListAvailableSecretKeys() []string {
	mappings := GetSecretMappings()
	keys := make([]string, len(mappings))
	for i, mapping := range mappings {
		keys[i] = mapping.KeyringKey
	}
	return keys
}
