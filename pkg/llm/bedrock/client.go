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
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Client implements the LLMProvider interface for AWS Bedrock using the
// Converse API.
type Client struct {
	client      *bedrockruntime.Client
	modelID     string
	region      string
	maxTokens   int
	temperature float64
	// rateLimiter handles request rate limiting to prevent AWS throttling
	rateLimiter *llm.RateLimiter
}

// Config holds configuration for the Bedrock client.
type Config struct {
	// AWS Configuration
	Region          string // Required: AWS region (e.g., us-east-1, us-west-2)
	AccessKeyID     string // Optional: if not using IAM role/profile
	SecretAccessKey string // Optional: if not using IAM role/profile
	SessionToken    string // Optional: for temporary credentials
	Profile         string // Optional: AWS profile name from ~/.aws/config

	// Model Configuration
	ModelID     string  // Default: us.anthropic.claude-sonnet-4-5-20250929-v1:0
	MaxTokens   int     // Default: 4096
	Temperature float64 // Default: 1.0

	// Rate Limiting Configuration
	RateLimiterConfig llm.RateLimiterConfig // Optional: rate limiting config (enables automatic throttle handling)
}

// Default Bedrock configuration values.
// Can be overridden via environment variables:
//   - AWS_BEDROCK_MODEL_ID / CONDUCTOR_LLM_BEDROCK_MODEL_ID
//   - AWS_DEFAULT_REGION / CONDUCTOR_LLM_BEDROCK_REGION
const (
	// DefaultBedrockModelID uses Claude Sonnet 4.5 with cross-region inference profile (us.* prefix)
	DefaultBedrockModelID     = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
	DefaultBedrockRegion      = "us-west-2"
	DefaultBedrockMaxTokens   = 4096
	DefaultBedrockTemperature = 1.0
)

// applyDefaults fills unset Config fields from environment variables and the
// package defaults.
func applyDefaults(cfg Config) Config {
	if cfg.ModelID == "" {
		if envModel := os.Getenv("AWS_BEDROCK_MODEL_ID"); envModel != "" {
			cfg.ModelID = envModel
		} else if envModel := os.Getenv("CONDUCTOR_LLM_BEDROCK_MODEL_ID"); envModel != "" {
			cfg.ModelID = envModel
		} else {
			cfg.ModelID = DefaultBedrockModelID
		}
	}
	if cfg.Region == "" {
		if envRegion := os.Getenv("AWS_DEFAULT_REGION"); envRegion != "" {
			cfg.Region = envRegion
		} else if envRegion := os.Getenv("CONDUCTOR_LLM_BEDROCK_REGION"); envRegion != "" {
			cfg.Region = envRegion
		} else {
			cfg.Region = DefaultBedrockRegion
		}
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultBedrockMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultBedrockTemperature
	}
	return cfg
}

// loadAWSConfig builds the AWS config from the credential options, in order:
// explicit static credentials, named profile, default chain.
func loadAWSConfig(cfg Config) (aws.Config, error) {
	// Option 1: Explicit credentials provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		return config.LoadDefaultConfig(context.Background(),
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			)),
		)
	}
	// Option 2: Use named profile
	if cfg.Profile != "" {
		return config.LoadDefaultConfig(context.Background(),
			config.WithRegion(cfg.Region),
			config.WithSharedConfigProfile(cfg.Profile),
		)
	}
	// Option 3: Use default credentials chain (IAM role, env vars, profile)
	return config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
	)
}

// resolveRateLimiter returns the process-wide rate limiter configured from
// cfg, or nil when rate limiting is disabled. Caller-supplied non-zero fields
// override DefaultRateLimiterConfig values.
func resolveRateLimiter(cfg Config) *llm.RateLimiter {
	if !cfg.RateLimiterConfig.Enabled {
		return nil
	}
	rlCfg := llm.DefaultRateLimiterConfig()
	if cfg.RateLimiterConfig.Logger != nil {
		rlCfg.Logger = cfg.RateLimiterConfig.Logger
	}
	if cfg.RateLimiterConfig.RequestsPerSecond > 0 {
		rlCfg.RequestsPerSecond = cfg.RateLimiterConfig.RequestsPerSecond
	}
	if cfg.RateLimiterConfig.TokensPerMinute > 0 {
		rlCfg.TokensPerMinute = cfg.RateLimiterConfig.TokensPerMinute
	}
	if cfg.RateLimiterConfig.BurstCapacity > 0 {
		rlCfg.BurstCapacity = cfg.RateLimiterConfig.BurstCapacity
	}
	if cfg.RateLimiterConfig.MinDelay > 0 {
		rlCfg.MinDelay = cfg.RateLimiterConfig.MinDelay
	}
	if cfg.RateLimiterConfig.MaxRetries > 0 {
		rlCfg.MaxRetries = cfg.RateLimiterConfig.MaxRetries
	}
	if cfg.RateLimiterConfig.RetryBackoff > 0 {
		rlCfg.RetryBackoff = cfg.RateLimiterConfig.RetryBackoff
	}
	if cfg.RateLimiterConfig.QueueTimeout > 0 {
		rlCfg.QueueTimeout = cfg.RateLimiterConfig.QueueTimeout
	}
	return llm.GlobalRateLimiter(rlCfg)
}

// NewClient creates a new Bedrock client.
func NewClient(cfg Config) (*Client, error) {
	cfg = applyDefaults(cfg)

	awsCfg, err := loadAWSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		client:      bedrockruntime.NewFromConfig(awsCfg),
		modelID:     cfg.ModelID,
		region:      cfg.Region,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		rateLimiter: resolveRateLimiter(cfg),
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "bedrock"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.modelID
}

// callParams are the per-call values after applying option overrides.
type callParams struct {
	modelID     string
	maxTokens   int
	temperature float64
	extraSystem string
}

// applyCallOptions overrides the defaults in p with any per-call options.
func applyCallOptions(p callParams, opts *types.ChatOptions) callParams {
	if opts == nil {
		return p
	}
	if opts.Model != "" {
		p.modelID = opts.Model
	}
	if opts.MaxTokens > 0 {
		p.maxTokens = opts.MaxTokens
	}
	if opts.TemperatureSet {
		p.temperature = opts.Temperature
	}
	p.extraSystem = opts.System
	return p
}

func (c *Client) resolveParams(opts *types.ChatOptions) callParams {
	return applyCallOptions(callParams{
		modelID:     c.modelID,
		maxTokens:   c.maxTokens,
		temperature: c.temperature,
	}, opts)
}

// Chat sends a conversation to Bedrock via the Converse API.
func (c *Client) Chat(ctx context.Context, messages []types.Message, opts *types.ChatOptions) (*types.LLMResponse, error) {
	startTime := time.Now()
	params := c.resolveParams(opts)

	systemBlocks, converseMessages := convertMessagesToConverse(messages, params.extraSystem)

	// Bedrock requires a non-empty messages array
	if len(converseMessages) == 0 {
		return nil, fmt.Errorf("no valid messages to send (messages may be empty)")
	}

	input := &bedrockruntime.ConverseInput{
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

	// Execute Converse with rate limiting if configured
	var output *bedrockruntime.ConverseOutput
	var err error

	if c.rateLimiter != nil {
		result, err := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return c.client.Converse(ctx, input)
		})
		if err != nil {
			return nil, fmt.Errorf("bedrock converse failed: %w", err)
		}
		output = result.(*bedrockruntime.ConverseOutput)
	} else {
		output, err = c.client.Converse(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("bedrock converse failed: %w", err)
		}
	}

	// Extract response content
	var contentText string
	if output.Output != nil {
		if o, ok := output.Output.(*bedrocktypes.ConverseOutputMemberMessage); ok {
			for _, block := range o.Value.Content {
				if b, ok := block.(*bedrocktypes.ContentBlockMemberText); ok {
					contentText += b.Value
				}
			}
		}
	}

	// Extract usage
	usage := types.Usage{}
	if output.Usage != nil {
		usage.InputTokens = int(aws.ToInt32(output.Usage.InputTokens))
		usage.OutputTokens = int(aws.ToInt32(output.Usage.OutputTokens))
		usage.TotalTokens = int(aws.ToInt32(output.Usage.TotalTokens))
		usage.CostUSD = llm.EstimateCost(params.modelID, usage.InputTokens, usage.OutputTokens, 0, 0)
	}

	// Record token usage for rate limiter metrics
	if c.rateLimiter != nil {
		c.rateLimiter.RecordTokenUsage(int64(usage.TotalTokens))
	}

	return &types.LLMResponse{
		Content:    contentText,
		StopReason: string(output.StopReason),
		Usage:      usage,
		Metadata: map[string]any{
			"model":       params.modelID,
			"stop_reason": output.StopReason,
			"latency_ms":  time.Since(startTime).Milliseconds(),
		},
	}, nil
}

// convertMessagesToConverse converts conductor messages to Bedrock Converse
// API format. System messages go in the separate system field; extraSystem,
// when set, leads the system blocks. Empty turns are dropped because Bedrock
// rejects empty content arrays.
func convertMessagesToConverse(messages []types.Message, extraSystem string) ([]bedrocktypes.SystemContentBlock, []bedrocktypes.Message) {
	var systemBlocks []bedrocktypes.SystemContentBlock
	if extraSystem != "" {
		systemBlocks = append(systemBlocks, &bedrocktypes.SystemContentBlockMemberText{
			Value: extraSystem,
		})
	}

	var converseMessages []bedrocktypes.Message
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if msg.Content != "" {
				systemBlocks = append(systemBlocks, &bedrocktypes.SystemContentBlockMemberText{
					Value: msg.Content,
				})
			}

		case "user":
			if msg.Content == "" {
				continue
			}
			converseMessages = append(converseMessages, bedrocktypes.Message{
				Role: bedrocktypes.ConversationRoleUser,
				Content: []bedrocktypes.ContentBlock{
					&bedrocktypes.ContentBlockMemberText{Value: msg.Content},
				},
			})

		case "assistant":
			if msg.Content == "" {
				continue
			}
			converseMessages = append(converseMessages, bedrocktypes.Message{
				Role: bedrocktypes.ConversationRoleAssistant,
				Content: []bedrocktypes.ContentBlock{
					&bedrocktypes.ContentBlockMemberText{Value: msg.Content},
				},
			})
		}
	}

	return systemBlocks, converseMessages
}

// debugRequest prints request metadata when CONDUCTOR_DEBUG_BEDROCK is set.
func debugRequest(modelID string, numMessages, numSystem int) {
	if os.Getenv("CONDUCTOR_DEBUG_BEDROCK") != "1" {
		return
	}
	var sb strings.Builder
	sb.WriteString("\n=== BEDROCK CONVERSE REQUEST ===\n")
	fmt.Fprintf(&sb, "Model: %s\nMessages: %d\nSystem blocks: %d\n", modelID, numMessages, numSystem)
	sb.WriteString("=== END REQUEST ===\n")
	fmt.Print(sb.String())
}

// Ensure Client implements the provider interfaces.
var _ types.LLMProvider = (*Client)(nil)
var _ types.StreamingLLMProvider = (*Client)(nil)
