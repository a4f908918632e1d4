// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types contains shared types used across the conductor service.
// This package breaks import cycles by providing common types that the
// orchestrator, agents, and LLM packages all depend on.
package types

import (
	"context"
	"time"
)

// ============================================================================
// Conversation
// ============================================================================

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn of a conversation, latest-last in history.
type Message struct {
	// Role is the message sender (user, assistant, system)
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`

	// Timestamp when the message was created
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// UserMessage builds a user-role message stamped now.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// AssistantMessage builds an assistant-role message stamped now.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now().UTC()}
}

// ============================================================================
// Streaming chunks
// ============================================================================

// ChunkType discriminates the chunks streamed back per turn.
type ChunkType string

const (
	ChunkStatus   ChunkType = "status"
	ChunkContent  ChunkType = "content"
	ChunkWarning  ChunkType = "warning"
	ChunkError    ChunkType = "error"
	ChunkComplete ChunkType = "complete"
)

// Chunk is one element of the response stream. A successful turn carries
// any number of status/content chunks followed by exactly one complete
// chunk; a failed turn ends with exactly one error chunk.
type Chunk struct {
	Type      ChunkType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	AgentName string    `json:"agent_name,omitempty"`
}

// NewChunk builds a chunk stamped now.
func NewChunk(t ChunkType, message, agentName string) Chunk {
	return Chunk{Type: t, Message: message, Timestamp: time.Now().UTC(), AgentName: agentName}
}

// ============================================================================
// Persona and editor context
// ============================================================================

// Persona shapes the assistant's voice for a turn.
type Persona struct {
	AIName   string `json:"ai_name"`
	Style    string `json:"persona_style"`
	Bias     string `json:"political_bias"`
	Timezone string `json:"timezone"`
}

// DefaultPersona returns the persona used when the request carries none.
func DefaultPersona() *Persona {
	return &Persona{AIName: "Codex", Style: "professional", Bias: "neutral", Timezone: "UTC"}
}

// Frontmatter is the structured header of a user document.
// CustomFields may arrive as stringified lists; the orchestrator parses
// them back to []string before agents see them.
type Frontmatter struct {
	Type         string         `json:"type,omitempty"`
	Title        string         `json:"title,omitempty"`
	Author       string         `json:"author,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Status       string         `json:"status,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// ActiveEditor describes the document the user currently has open.
// CursorOffset is a byte offset into Content; editors that do not report
// one send zero, which reads as "no cursor context".
type ActiveEditor struct {
	IsEditable    bool         `json:"is_editable"`
	Filename      string       `json:"filename,omitempty"`
	CanonicalPath string       `json:"canonical_path,omitempty"`
	Language      string       `json:"language,omitempty"`
	Content       string       `json:"content,omitempty"`
	DocumentID    string       `json:"document_id,omitempty"`
	CursorOffset  int          `json:"cursor_offset,omitempty"`
	Frontmatter   *Frontmatter `json:"frontmatter,omitempty"`
}

// ============================================================================
// Turn request (ingress shape)
// ============================================================================

// PermissionGrants are per-turn permission flags from the caller. A set
// flag maps one-to-one onto the shared-memory key of the same name; unset
// means unchanged.
type PermissionGrants struct {
	WebSearchPermission   bool `json:"web_search_permission,omitempty"`
	WebCrawlPermission    bool `json:"web_crawl_permission,omitempty"`
	FileWritePermission   bool `json:"file_write_permission,omitempty"`
	ExternalAPIPermission bool `json:"external_api_permission,omitempty"`
}

// PipelineContext carries the caller's pipeline hints verbatim.
type PipelineContext struct {
	ActivePipelineID   string `json:"active_pipeline_id,omitempty"`
	PipelinePreference string `json:"pipeline_preference,omitempty"`
}

// ChatRequest is one user turn as received by the orchestrator.
type ChatRequest struct {
	UserID                   string            `json:"user_id"`
	ConversationID           string            `json:"conversation_id"`
	Query                    string            `json:"query"`
	AgentType                string            `json:"agent_type,omitempty"`
	RoutingReason            string            `json:"routing_reason,omitempty"`
	ConversationHistory      []Message         `json:"conversation_history,omitempty"`
	Metadata                 map[string]string `json:"metadata,omitempty"`
	Persona                  *Persona          `json:"persona,omitempty"`
	ActiveEditor             *ActiveEditor     `json:"active_editor,omitempty"`
	PipelineContext          *PipelineContext  `json:"pipeline_context,omitempty"`
	PermissionGrants         *PermissionGrants `json:"permission_grants,omitempty"`
	ConversationIntelligence map[string]any    `json:"conversation_intelligence,omitempty"`
}

// ============================================================================
// Agent contract
// ============================================================================

// TaskStatus is the terminal status of a turn.
type TaskStatus string

const (
	TaskStatusInProgress         TaskStatus = "in_progress"
	TaskStatusCompleted          TaskStatus = "completed"
	TaskStatusError              TaskStatus = "error"
	TaskStatusPermissionRequired TaskStatus = "permission_required"
)

// AgentRequest is the uniform input every agent accepts.
type AgentRequest struct {
	Query        string
	UserID       string
	Metadata     map[string]string
	History      []Message
	SharedMemory *SharedMemory
	ActiveEditor *ActiveEditor
}

// AgentResult is the uniform output every agent returns.
type AgentResult struct {
	Response     string
	TaskStatus   TaskStatus
	AgentName    string
	AgentResults map[string]any
	SharedMemory *SharedMemory
	Usage        Usage
}

// Agent serves one user turn.
type Agent interface {
	// Name returns the registry key for this agent.
	Name() string

	// Execute runs the agent's workflow for one turn.
	Execute(ctx context.Context, req *AgentRequest) (*AgentResult, error)
}

// ============================================================================
// LLM provider contract
// ============================================================================

// Usage tracks LLM token usage and costs.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	CostUSD      float64

	// Prompt-cache token counts (Anthropic and Bedrock report these
	// separately; cached reads are billed at a fraction of input rate).
	CacheReadInputTokens     int
	CacheCreationInputTokens int
}

// Add accumulates usage from another call.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CostUSD += other.CostUSD
	u.CacheReadInputTokens += other.CacheReadInputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
}

// LLMResponse is a completed LLM call.
type LLMResponse struct {
	// Content is the text response
	Content string

	// StopReason indicates why the LLM stopped
	StopReason string

	// Usage contains token counts and cost
	Usage Usage

	// Metadata carries provider-specific extras (model, message id)
	Metadata map[string]any
}

// ChatOptions are per-call overrides. Zero values fall back to the
// provider's configured defaults.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// TemperatureSet distinguishes an explicit 0 from "use default".
	TemperatureSet bool
	System         string
}

// WithTemperature returns options with an explicit temperature.
func (o ChatOptions) WithTemperature(t float64) ChatOptions {
	o.Temperature = t
	o.TemperatureSet = true
	return o
}

// LLMProvider is the interface all LLM backends implement.
type LLMProvider interface {
	// Chat sends a conversation and returns the complete response.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*LLMResponse, error)

	// Name returns the provider name (e.g., "anthropic", "bedrock").
	Name() string

	// Model returns the default model identifier.
	Model() string
}

// TokenCallback is called for each token as it streams in.
type TokenCallback func(token string)

// StreamingLLMProvider extends LLMProvider with token streaming.
type StreamingLLMProvider interface {
	LLMProvider

	// ChatStream streams tokens through the callback and returns the
	// assembled response.
	ChatStream(ctx context.Context, messages []Message, opts *ChatOptions, cb TokenCallback) (*LLMResponse, error)
}
