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

// MessagesRequest represents a request to the Anthropic Messages API.
// Temperature is a pointer so an explicit 0 survives serialization.
type MessagesRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature *float64         `json:"temperature,omitempty"`
	System      []TextBlockParam `json:"system,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

// TextBlockParam is a system prompt block. The cache_control marker caches
// everything up to and including the block for ~5 minutes.
type TextBlockParam struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// CacheControl marks a prompt-cache breakpoint.
type CacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

// MessagesResponse represents a response from the Anthropic Messages API.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Message represents a single message in the conversation.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock represents a content block in a message.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage represents token usage information, including prompt-cache counts.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}

// StreamEvent represents a streaming event from the Anthropic API.
type StreamEvent struct {
	Type         string         `json:"type"` // message_start, content_block_start, content_block_delta, message_delta, message_stop
	Message      *StreamMessage `json:"message,omitempty"`
	Index        int            `json:"index,omitempty"`
	ContentBlock *ContentBlock  `json:"content_block,omitempty"`
	Delta        *StreamDelta   `json:"delta,omitempty"`
	Usage        *Usage         `json:"usage,omitempty"`
}

// StreamMessage is the message envelope carried by message_start events.
type StreamMessage struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// StreamDelta represents a delta in a streaming event.
type StreamDelta struct {
	Type       string `json:"type,omitempty"`        // text_delta
	Text       string `json:"text,omitempty"`        // For text deltas
	StopReason string `json:"stop_reason,omitempty"` // For message_delta events
}
