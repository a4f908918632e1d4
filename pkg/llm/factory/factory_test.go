package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/observability"
)

func TestNewProvider_Anthropic(t *testing.T) {
	cfg := config.LLMConfig{
		Provider:        "anthropic",
		AnthropicAPIKey: "test-key",
		AnthropicModel:  "claude-sonnet-4-5-20250929",
		MaxTokens:       4096,
		Temperature:     1.0,
	}

	provider, err := NewProvider(cfg, observability.NewNoOpTracer(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", provider.Name())
	assert.Equal(t, "claude-sonnet-4-5-20250929", provider.Model())
}

func TestNewProvider_AnthropicMissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := config.LLMConfig{Provider: "anthropic"}

	_, err := NewProvider(cfg, observability.NewNoOpTracer(), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic API key not configured")
}

func TestNewProvider_AnthropicEnvKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	cfg := config.LLMConfig{Provider: "anthropic"}

	provider, err := NewProvider(cfg, observability.NewNoOpTracer(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", provider.Name())
}

func TestNewProvider_EmptyDefaultsToAnthropic(t *testing.T) {
	cfg := config.LLMConfig{AnthropicAPIKey: "test-key"}

	provider, err := NewProvider(cfg, observability.NewNoOpTracer(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", provider.Name())
}

func TestNewProvider_Bedrock(t *testing.T) {
	cfg := config.LLMConfig{
		Provider:               "bedrock",
		BedrockRegion:          "us-west-2",
		BedrockAccessKeyID:     "test-key",
		BedrockSecretAccessKey: "test-secret",
		BedrockModelID:         "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	}

	provider, err := NewProvider(cfg, observability.NewNoOpTracer(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "bedrock", provider.Name())
	assert.Equal(t, "us.anthropic.claude-sonnet-4-5-20250929-v1:0", provider.Model())
}

func TestNewProvider_BedrockSDK(t *testing.T) {
	cfg := config.LLMConfig{
		Provider:               "bedrock-sdk",
		BedrockRegion:          "us-west-2",
		BedrockAccessKeyID:     "test-key",
		BedrockSecretAccessKey: "test-secret",
	}

	provider, err := NewProvider(cfg, observability.NewNoOpTracer(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "bedrock-sdk", provider.Name())
}

func TestNewProvider_Unsupported(t *testing.T) {
	cfg := config.LLMConfig{Provider: "ollama"}

	_, err := NewProvider(cfg, observability.NewNoOpTracer(), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported llm provider")
}

func TestRateLimiterConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)

	rl := rateLimiterConfig(config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1.5,
		TokensPerMinute:   60000,
		BurstCapacity:     4,
		MinDelayMs:        250,
		MaxRetries:        3,
	}, logger)

	assert.True(t, rl.Enabled)
	assert.Equal(t, 1.5, rl.RequestsPerSecond)
	assert.Equal(t, int64(60000), rl.TokensPerMinute)
	assert.Equal(t, 4, rl.BurstCapacity)
	assert.Equal(t, 250*time.Millisecond, rl.MinDelay)
	assert.Equal(t, 3, rl.MaxRetries)
	assert.Same(t, logger, rl.Logger)
}

func TestMessagesEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		expected string
	}{
		{"empty defers to client default", "", ""},
		{"base url", "https://api.anthropic.com", "https://api.anthropic.com/v1/messages"},
		{"trailing slash", "https://proxy.internal/", "https://proxy.internal/v1/messages"},
		{"already full endpoint", "https://api.anthropic.com/v1/messages", "https://api.anthropic.com/v1/messages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, messagesEndpoint(tt.baseURL))
		})
	}
}
