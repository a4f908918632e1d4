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
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/types"
)

// ChatStream streams a text completion through the ConverseStream API,
// invoking cb for each text delta and returning the assembled response.
func (c *Client) ChatStream(ctx context.Context, messages []types.Message, opts *types.ChatOptions, cb types.TokenCallback) (*types.LLMResponse, error) {
	startTime := time.Now()
	params := c.resolveParams(opts)

	systemBlocks, converseMessages := convertMessagesToConverse(messages, params.extraSystem)
	if len(converseMessages) == 0 {
		return nil, fmt.Errorf("no valid messages to send (messages may be empty)")
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(params.modelID),
		Messages: converseMessages,
		InferenceConfig: &bedrocktypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(params.maxTokens)),
			Temperature: aws.Float32(float32(params.temperature)),
		},
	}
	if len(systemBlocks) > 0 {
		input.System = systemBlocks
	}

	debugRequest(params.modelID, len(converseMessages), len(systemBlocks))

	var output *bedrockruntime.ConverseStreamOutput
	var err error

	if c.rateLimiter != nil {
		result, rlErr := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return c.client.ConverseStream(ctx, input)
		})
		if rlErr != nil {
			return nil, fmt.Errorf("bedrock converse stream failed: %w", rlErr)
		}
		output = result.(*bedrockruntime.ConverseStreamOutput)
	} else {
		output, err = c.client.ConverseStream(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("bedrock converse stream failed: %w", err)
		}
	}

	stream := output.GetStream()
	if stream == nil {
		return nil, fmt.Errorf("bedrock converse stream returned no event stream")
	}
	defer stream.Close()

	var contentBuilder strings.Builder
	var stopReason string
	usage := types.Usage{}

	for event := range stream.Events() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		switch ev := event.(type) {
		case *bedrocktypes.ConverseStreamOutputMemberContentBlockDelta:
			if delta, ok := ev.Value.Delta.(*bedrocktypes.ContentBlockDeltaMemberText); ok {
				contentBuilder.WriteString(delta.Value)
				if cb != nil {
					cb(delta.Value)
				}
			}

		case *bedrocktypes.ConverseStreamOutputMemberMessageStop:
			stopReason = string(ev.Value.StopReason)

		case *bedrocktypes.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				usage.InputTokens = int(aws.ToInt32(ev.Value.Usage.InputTokens))
				usage.OutputTokens = int(aws.ToInt32(ev.Value.Usage.OutputTokens))
				usage.TotalTokens = int(aws.ToInt32(ev.Value.Usage.TotalTokens))
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("bedrock converse stream error: %w", err)
	}

	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	usage.CostUSD = llm.EstimateCost(params.modelID, usage.InputTokens, usage.OutputTokens, 0, 0)

	if c.rateLimiter != nil {
		c.rateLimiter.RecordTokenUsage(int64(usage.TotalTokens))
	}

	return &types.LLMResponse{
		Content:    contentBuilder.String(),
		StopReason: stopReason,
		Usage:      usage,
		Metadata: map[string]any{
			"model":       params.modelID,
			"stop_reason": stopReason,
			"latency_ms":  time.Since(startTime).Milliseconds(),
		},
	}, nil
}
