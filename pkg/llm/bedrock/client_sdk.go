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
package bedrock

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"

	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/types"
)

// SDKClient implements the LLMProvider interface using the official Anthropic
// SDK pointed at Bedrock. This is simpler and better maintained than the
// direct AWS SDK approach.
type SDKClient struct {
	client      anthropic.Client
	modelID     string
	region      string
	maxTokens   int
	temperature float64
	rateLimiter *llm.RateLimiter
}

// NewSDKClient creates a new Bedrock client using the Anthropic SDK.
func NewSDKClient(cfg Config) (*SDKClient, error) {
	cfg = applyDefaults(cfg)

	awsCfg, err := loadAWSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// bedrock.WithConfig handles all the AWS signing and endpoint configuration
	client := anthropic.NewClient(
		bedrock.WithConfig(awsCfg),
	)

	return &SDKClient{
		client:      client,
		modelID:     cfg.ModelID,
		region:      cfg.Region,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		rateLimiter: resolveRateLimiter(cfg),
	}, nil
}

// Name returns the provider name.
func (c *SDKClient) Name() string {
	return "bedrock-sdk"
}

// Model returns the model identifier.
func (c *SDKClient) Model() string {
	return c.modelID
}

func (c *SDKClient) resolveParams(opts *types.ChatOptions) callParams {
	return applyCallOptions(callParams{
		modelID:     c.modelID,
		maxTokens:   c.maxTokens,
		temperature: c.temperature,
	}, opts)
}

// buildParams assembles the SDK request from the resolved call parameters.
func (c *SDKClient) buildParams(messages []types.Message, p callParams) (anthropic.MessageNewParams, error) {
	systemPrompt, sdkMessages := convertMessagesToSDK(messages, p.extraSystem)
	if len(sdkMessages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("no valid messages to send (messages may be empty)")
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.modelID),
		Messages:    sdkMessages,
		MaxTokens:   int64(p.maxTokens),
		Temperature: anthropic.Float(p.temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	return params, nil
}

// Chat sends a conversation to Bedrock using the Anthropic SDK.
func (c *SDKClient) Chat(ctx context.Context, messages []types.Message, opts *types.ChatOptions) (*types.LLMResponse, error) {
	startTime := time.Now()
	p := c.resolveParams(opts)

	params, err := c.buildParams(messages, p)
	if err != nil {
		return nil, err
	}

	var message *anthropic.Message

	if c.rateLimiter != nil {
		result, err := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return c.client.Messages.New(ctx, params)
		})
		if err != nil {
			return nil, fmt.Errorf("bedrock SDK invocation failed: %w", err)
		}
		message = result.(*anthropic.Message)
	} else {
		message, err = c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("bedrock SDK invocation failed: %w", err)
		}
	}

	resp := convertResponseFromSDK(p.modelID, message)
	resp.Metadata["latency_ms"] = time.Since(startTime).Milliseconds()

	if c.rateLimiter != nil {
		c.rateLimiter.RecordTokenUsage(int64(resp.Usage.TotalTokens))
	}

	return resp, nil
}

// ChatStream streams tokens as they are generated from Bedrock using the
// Anthropic SDK.
func (c *SDKClient) ChatStream(ctx context.Context, messages []types.Message, opts *types.ChatOptions, cb types.TokenCallback) (*types.LLMResponse, error) {
	startTime := time.Now()
	p := c.resolveParams(opts)

	params, err := c.buildParams(messages, p)
	if err != nil {
		return nil, err
	}

	// The stream is consumed synchronously, so request-level rate limiting
	// does not apply here; token usage is still recorded below.
	stream := c.client.Messages.NewStreaming(ctx, params)

	var contentBuffer strings.Builder
	var usage types.Usage
	var stopReason string
	var messageID string

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			messageID = event.Message.ID
			usage.InputTokens = int(event.Message.Usage.InputTokens)

		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				token := event.Delta.Text
				contentBuffer.WriteString(token)
				if cb != nil {
					cb(token)
				}
			}

		case "message_delta":
			if event.Delta.StopReason != "" {
				stopReason = string(event.Delta.StopReason)
			}
			if event.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(event.Usage.OutputTokens)
			}
		}
	}

	// EOF is normal at end of stream
	if err := stream.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("stream error: %w", err)
	}

	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	usage.CostUSD = llm.EstimateCost(p.modelID, usage.InputTokens, usage.OutputTokens, 0, 0)

	if c.rateLimiter != nil {
		c.rateLimiter.RecordTokenUsage(int64(usage.TotalTokens))
	}

	return &types.LLMResponse{
		Content:    contentBuffer.String(),
		StopReason: stopReason,
		Usage:      usage,
		Metadata: map[string]any{
			"model":       p.modelID,
			"stop_reason": stopReason,
			"message_id":  messageID,
			"streaming":   true,
			"latency_ms":  time.Since(startTime).Milliseconds(),
		},
	}, nil
}

// convertMessagesToSDK converts conductor messages to Anthropic SDK format.
// Returns the combined system prompt and the API messages. extraSystem, when
// set, leads the system prompt.
func convertMessagesToSDK(messages []types.Message, extraSystem string) (string, []anthropic.MessageParam) {
	var systemPrompts []string
	if extraSystem != "" {
		systemPrompts = append(systemPrompts, extraSystem)
	}

	var sdkMessages []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if msg.Content != "" {
				systemPrompts = append(systemPrompts, msg.Content)
			}

		case "user":
			if msg.Content != "" {
				sdkMessages = append(sdkMessages, anthropic.NewUserMessage(
					anthropic.NewTextBlock(msg.Content),
				))
			}

		case "assistant":
			if msg.Content != "" {
				sdkMessages = append(sdkMessages, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(msg.Content),
				))
			}
		}
	}

	return strings.Join(systemPrompts, "\n\n"), sdkMessages
}

// convertResponseFromSDK converts an Anthropic SDK response to conductor
// format.
func convertResponseFromSDK(modelID string, message *anthropic.Message) *types.LLMResponse {
	resp := &types.LLMResponse{
		StopReason: string(message.StopReason),
		Usage: types.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
			TotalTokens:  int(message.Usage.InputTokens + message.Usage.OutputTokens),
			CostUSD: llm.EstimateCost(modelID,
				int(message.Usage.InputTokens), int(message.Usage.OutputTokens), 0, 0),
		},
		Metadata: map[string]any{
			"model":       modelID,
			"stop_reason": message.StopReason,
			"message_id":  message.ID,
		},
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			resp.Content += block.Text
		}
	}

	return resp
}

// Ensure SDKClient implements both provider interfaces.
var _ types.LLMProvider = (*SDKClient)(nil)
var _ types.StreamingLLMProvider = (*SDKClient)(nil)
