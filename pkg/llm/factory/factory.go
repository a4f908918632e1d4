// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package factory

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/llm/anthropic"
	"github.com/teradata-labs/conductor/pkg/llm/bedrock"
	"github.com/teradata-labs/conductor/pkg/observability"
	"github.com/teradata-labs/conductor/pkg/types"
)

// NewProvider builds the configured LLM provider and wraps it with tracing
// instrumentation. One provider is shared by every agent in the process;
// per-agent model overrides travel through ChatOptions.Model.
func NewProvider(cfg config.LLMConfig, tracer observability.Tracer, logger *zap.Logger) (types.LLMProvider, error) {
	base, err := newBaseProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	return llm.NewInstrumentedProvider(base, tracer), nil
}

func newBaseProvider(cfg config.LLMConfig, logger *zap.Logger) (types.LLMProvider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		return newAnthropicProvider(cfg, logger)
	case "bedrock":
		return newBedrockProvider(cfg, logger, false)
	case "bedrock-sdk":
		return newBedrockProvider(cfg, logger, true)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s (expected anthropic, bedrock, or bedrock-sdk)", cfg.Provider)
	}
}

func newAnthropicProvider(cfg config.LLMConfig, logger *zap.Logger) (types.LLMProvider, error) {
	apiKey := cfg.AnthropicAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key not configured (set llm.anthropic_api_key, ANTHROPIC_API_KEY, or store it with 'conductord config set-key anthropic_api_key')")
	}

	return anthropic.NewClient(anthropic.Config{
		APIKey:            apiKey,
		Model:             cfg.AnthropicModel,
		Endpoint:          messagesEndpoint(cfg.AnthropicBaseURL),
		MaxTokens:         cfg.MaxTokens,
		Temperature:       cfg.Temperature,
		Timeout:           time.Duration(cfg.Timeout) * time.Second,
		RateLimiterConfig: rateLimiterConfig(cfg.RateLimit, logger),
	}), nil
}

func newBedrockProvider(cfg config.LLMConfig, logger *zap.Logger, useSDK bool) (types.LLMProvider, error) {
	bcfg := bedrock.Config{
		Region:            cfg.BedrockRegion,
		AccessKeyID:       cfg.BedrockAccessKeyID,
		SecretAccessKey:   cfg.BedrockSecretAccessKey,
		SessionToken:      cfg.BedrockSessionToken,
		Profile:           cfg.BedrockProfile,
		ModelID:           cfg.BedrockModelID,
		MaxTokens:         cfg.MaxTokens,
		Temperature:       cfg.Temperature,
		RateLimiterConfig: rateLimiterConfig(cfg.RateLimit, logger),
	}
	if useSDK {
		return bedrock.NewSDKClient(bcfg)
	}
	return bedrock.NewClient(bcfg)
}

// rateLimiterConfig converts the config rate-limit block into the limiter
// package's config. Zero fields defer to per-provider defaults.
func rateLimiterConfig(cfg config.RateLimitConfig, logger *zap.Logger) llm.RateLimiterConfig {
	return llm.RateLimiterConfig{
		Enabled:           cfg.Enabled,
		RequestsPerSecond: cfg.RequestsPerSecond,
		TokensPerMinute:   cfg.TokensPerMinute,
		BurstCapacity:     cfg.BurstCapacity,
		MinDelay:          time.Duration(cfg.MinDelayMs) * time.Millisecond,
		MaxRetries:        cfg.MaxRetries,
		Logger:            logger,
	}
}

// messagesEndpoint joins the configured base URL with the Messages API path.
// An empty base URL lets the client fall back to its own default, and a base
// URL that already names the endpoint is passed through.
func messagesEndpoint(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	trimmed := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(trimmed, "/v1/messages") {
		return trimmed
	}
	return trimmed + "/v1/messages"
}
