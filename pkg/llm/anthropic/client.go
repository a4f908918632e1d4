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
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/types"
)

const (
	// DefaultAnthropicModel is used when neither Config nor environment names a model.
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	// DefaultAnthropicEndpoint is the production Messages API URL.
	DefaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	// DefaultMaxTokens caps response length unless overridden per call.
	DefaultMaxTokens = 4096
	// DefaultTemperature matches the API's own default.
	DefaultTemperature = 1.0
	// DefaultTimeout bounds one HTTP exchange, including streaming reads.
	DefaultTimeout = 120 * time.Second
)

// DefaultAnthropicRateLimiterConfig returns limiter settings sized for the
// lowest published Anthropic tier, which is where most accounts start:
//
//	Free / Tier 1:  50 RPM, 30K-100K input tokens per minute
//	Tier 2:         1000 RPM, 2M ITPM
//	Tier 3+:        5000 RPM and up
//
// Accounts on higher tiers should raise requests_per_second and
// tokens_per_minute in conductord.yaml.
func DefaultAnthropicRateLimiterConfig() llm.RateLimiterConfig {
	return llm.RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 0.7,   // about 42 RPM, under the 50 RPM Tier 1 cap
		TokensPerMinute:   80000, // 80% of the Tier 1 100K ITPM ceiling
		BurstCapacity:     3,
		MinDelay:          800 * time.Millisecond, // keeps multi-agent bursts from overshooting
		MaxRetries:        5,
		RetryBackoff:      2 * time.Second, // Anthropic 429s clear slowly, start high
		QueueTimeout:      5 * time.Minute,
	}
}

// Client talks to the Anthropic Messages API directly over HTTP. It
// implements both LLMProvider and StreamingLLMProvider.
type Client struct {
	apiKey      string
	model       string
	endpoint    string
	httpClient  *http.Client
	maxTokens   int
	temperature float64
	rateLimiter *llm.RateLimiter
}

// Config holds construction options. Zero values fall back to package
// defaults, with ANTHROPIC_DEFAULT_MODEL and ANTHROPIC_API_ENDPOINT
// consulted before the compiled-in constants.
type Config struct {
	APIKey            string
	Model             string
	Endpoint          string
	Timeout           time.Duration
	MaxTokens         int
	Temperature       float64
	RateLimiterConfig llm.RateLimiterConfig
}

// NewClient creates a Messages API client.
func NewClient(config Config) *Client {
	config = applyDefaults(config)

	// Every client in the process shares one limiter so concurrent turns
	// respect the account-wide quota.
	var rateLimiter *llm.RateLimiter
	if config.RateLimiterConfig.Enabled {
		rateLimiter = llm.GlobalRateLimiter(mergeRateLimiterConfig(config.RateLimiterConfig))
	}

	return &Client{
		apiKey:      config.APIKey,
		model:       config.Model,
		endpoint:    config.Endpoint,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		rateLimiter: rateLimiter,
		httpClient:  &http.Client{Timeout: config.Timeout},
	}
}

func applyDefaults(config Config) Config {
	if config.Model == "" {
		config.Model = envOr("ANTHROPIC_DEFAULT_MODEL", DefaultAnthropicModel)
	}
	if config.Endpoint == "" {
		config.Endpoint = envOr("ANTHROPIC_API_ENDPOINT", DefaultAnthropicEndpoint)
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Temperature == 0 {
		config.Temperature = DefaultTemperature
	}
	return config
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// mergeRateLimiterConfig starts from Anthropic-specific defaults and applies
// caller overrides. This ensures we don't blindly fall through to
// DefaultRateLimiterConfig() (which is tuned for Bedrock and allows 2 RPS,
// exceeding Anthropic Tier 1).
func mergeRateLimiterConfig(config llm.RateLimiterConfig) llm.RateLimiterConfig {
	merged := DefaultAnthropicRateLimiterConfig()
	merged.Enabled = config.Enabled
	if config.Logger != nil {
		merged.Logger = config.Logger
	}
	if config.RequestsPerSecond > 0 {
		merged.RequestsPerSecond = config.RequestsPerSecond
	}
	if config.TokensPerMinute > 0 {
		merged.TokensPerMinute = config.TokensPerMinute
	}
	if config.BurstCapacity > 0 {
		merged.BurstCapacity = config.BurstCapacity
	}
	if config.MinDelay > 0 {
		merged.MinDelay = config.MinDelay
	}
	if config.MaxRetries > 0 {
		merged.MaxRetries = config.MaxRetries
	}
	if config.RetryBackoff > 0 {
		merged.RetryBackoff = config.RetryBackoff
	}
	if config.QueueTimeout > 0 {
		merged.QueueTimeout = config.QueueTimeout
	}
	return merged
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "anthropic"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// Chat performs one blocking completion.
func (c *Client) Chat(ctx context.Context, messages []types.Message, opts *types.ChatOptions) (*types.LLMResponse, error) {
	req := c.buildRequest(messages, opts, false)

	resp, err := c.postMessages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("API call failed: %w", err)
	}

	if c.rateLimiter != nil {
		c.rateLimiter.RecordTokenUsage(int64(resp.Usage.InputTokens + resp.Usage.OutputTokens))
	}

	return c.convertResponse(req.Model, resp), nil
}

// buildRequest assembles a Messages API request from the conversation and
// per-call options.
func (c *Client) buildRequest(messages []types.Message, opts *types.ChatOptions, stream bool) *MessagesRequest {
	var extraSystem string
	model := c.model
	maxTokens := c.maxTokens
	temperature := c.temperature
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}
		if opts.TemperatureSet {
			temperature = opts.Temperature
		}
		extraSystem = opts.System
	}

	systemBlocks, apiMessages := convertMessages(messages, extraSystem)

	req := &MessagesRequest{
		Model:       model,
		Messages:    apiMessages,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Stream:      stream,
	}
	if len(systemBlocks) > 0 {
		req.System = systemBlocks
	}
	return req
}

// convertMessages splits a conductor conversation into the Messages API
// shape. System turns cannot ride in the messages array, so they are pulled
// out, joined, and returned separately as system blocks. extraSystem, when
// set, leads the combined prompt. Turns with empty content are dropped.
func convertMessages(messages []types.Message, extraSystem string) ([]TextBlockParam, []Message) {
	var systemPrompts []string
	if extraSystem != "" {
		systemPrompts = append(systemPrompts, extraSystem)
	}

	var apiMessages []Message
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if msg.Content != "" {
				systemPrompts = append(systemPrompts, msg.Content)
			}
		case "user", "assistant":
			if msg.Content == "" {
				continue
			}
			apiMessages = append(apiMessages, Message{
				Role:    msg.Role,
				Content: []ContentBlock{{Type: "text", Text: msg.Content}},
			})
		}
	}

	if len(systemPrompts) == 0 {
		return nil, apiMessages
	}

	// A single ephemeral cache_control block caches the whole system prompt
	// for about five minutes, and cached tokens do not count against ITPM.
	system := []TextBlockParam{{
		Type:         "text",
		Text:         strings.Join(systemPrompts, "\n\n"),
		CacheControl: &CacheControl{Type: "ephemeral"},
	}}
	return system, apiMessages
}

// convertResponse flattens an API response into the provider-neutral shape.
func (c *Client) convertResponse(model string, resp *MessagesResponse) *types.LLMResponse {
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	u := resp.Usage
	return &types.LLMResponse{
		Content:    content.String(),
		StopReason: resp.StopReason,
		Usage: types.Usage{
			InputTokens:              u.InputTokens,
			OutputTokens:             u.OutputTokens,
			TotalTokens:              u.InputTokens + u.OutputTokens,
			CostUSD:                  llm.EstimateCost(model, u.InputTokens, u.OutputTokens, u.CacheReadInputTokens, u.CacheCreationInputTokens),
			CacheReadInputTokens:     u.CacheReadInputTokens,
			CacheCreationInputTokens: u.CacheCreationInputTokens,
		},
		Metadata: map[string]any{
			"model":       resp.Model,
			"stop_reason": resp.StopReason,
		},
	}
}

// streamAccumulator folds Messages API stream events into a final response.
type streamAccumulator struct {
	content    strings.Builder
	usage      types.Usage
	stopReason string
	deltas     int
}

// apply folds one event. Text deltas are forwarded to emit as they arrive.
func (a *streamAccumulator) apply(event *StreamEvent, emit types.TokenCallback) {
	switch event.Type {
	case "content_block_delta":
		if event.Delta == nil || event.Delta.Type != "text_delta" || event.Delta.Text == "" {
			return
		}
		a.content.WriteString(event.Delta.Text)
		a.deltas++
		if emit != nil {
			emit(event.Delta.Text)
		}

	case "message_start":
		// Carries the input-side counts, including prompt-cache hits.
		if event.Message != nil {
			a.usage.InputTokens = event.Message.Usage.InputTokens
			a.usage.CacheReadInputTokens = event.Message.Usage.CacheReadInputTokens
			a.usage.CacheCreationInputTokens = event.Message.Usage.CacheCreationInputTokens
		}

	case "message_delta":
		if event.Delta != nil && event.Delta.StopReason != "" {
			a.stopReason = event.Delta.StopReason
		}
		if event.Usage != nil {
			a.usage.OutputTokens = event.Usage.OutputTokens
		}

	case "message_stop":
		// Trailing usage, when present, is authoritative.
		if event.Usage == nil {
			return
		}
		if event.Usage.InputTokens > 0 {
			a.usage.InputTokens = event.Usage.InputTokens
		}
		if event.Usage.OutputTokens > 0 {
			a.usage.OutputTokens = event.Usage.OutputTokens
		}
		if event.Usage.CacheReadInputTokens > 0 {
			a.usage.CacheReadInputTokens = event.Usage.CacheReadInputTokens
		}
		if event.Usage.CacheCreationInputTokens > 0 {
			a.usage.CacheCreationInputTokens = event.Usage.CacheCreationInputTokens
		}
	}
}

// ChatStream calls the Messages API with stream=true, invoking tokenCallback
// on every text delta and returning the assembled response at the end.
func (c *Client) ChatStream(ctx context.Context, messages []types.Message,
	opts *types.ChatOptions, tokenCallback types.TokenCallback) (*types.LLMResponse, error) {

	req := c.buildRequest(messages, opts, true)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpResp, err := c.send(ctx, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
	}

	// Only the "data:" lines of the SSE stream matter; event-type lines and
	// keepalives are skipped, as is any data payload that fails to parse.
	var acc streamAccumulator
	scanner := bufio.NewScanner(httpResp.Body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var event StreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		acc.apply(&event, tokenCallback)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading stream: %w", err)
	}

	usage := acc.usage
	if usage.OutputTokens == 0 {
		// Some gateways omit usage events; fall back to counting deltas.
		usage.OutputTokens = acc.deltas
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	usage.CostUSD = llm.EstimateCost(req.Model, usage.InputTokens, usage.OutputTokens, usage.CacheReadInputTokens, usage.CacheCreationInputTokens)

	if c.rateLimiter != nil {
		c.rateLimiter.RecordTokenUsage(int64(usage.InputTokens + usage.OutputTokens))
	}

	return &types.LLMResponse{
		Content:    acc.content.String(),
		StopReason: acc.stopReason,
		Usage:      usage,
		Metadata: map[string]any{
			"model":       req.Model,
			"stop_reason": acc.stopReason,
			"streaming":   true,
		},
	}, nil
}

// send posts body to the endpoint, going through the shared rate limiter
// when one is configured. The HTTP request is rebuilt on every attempt so
// the body reader is fresh after a 429 retry, and a 429 response is
// surfaced as an error so the limiter's backoff kicks in.
func (c *Client) send(ctx context.Context, body []byte) (*http.Response, error) {
	if c.rateLimiter == nil {
		req, err := c.newRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
		return resp, nil
	}

	result, err := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
		req, err := c.newRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			respBody, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("API error (status 429): %s", string(respBody))
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	return result.(*http.Response), nil
}

// newRequest stamps the auth and protocol headers. The prompt-caching beta
// header keeps cached tokens out of the ITPM count.
func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("anthropic-beta", "prompt-caching-2024-07-31")
	return req, nil
}

// postMessages performs one non-streaming exchange and decodes the response.
func (c *Client) postMessages(ctx context.Context, req *MessagesRequest) (*MessagesResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpResp, err := c.send(ctx, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// Ensure Client implements LLMProvider interface.
var _ types.LLMProvider = (*Client)(nil)

// Ensure Client implements StreamingLLMProvider interface.
var _ types.StreamingLLMProvider = (*Client)(nil)
