// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package agent provides the scaffolding every conductor agent shares:
// checkpoint config derivation, history assembly, datetime context, model
// overrides, and the registry that routes turns to agents.
package agent

import (
	"fmt"
	"time"

	"github.com/teradata-labs/conductor/pkg/checkpoint"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/llm/factory"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Metadata keys the orchestrator sets on every dispatch.
const (
	MetaUserID         = "user_id"
	MetaConversationID = "conversation_id"
	MetaCheckpointID   = "checkpoint_id"
	MetaModel          = "model"
	MetaAIName         = "ai_name"
	MetaPersonaStyle   = "persona_style"
	MetaPoliticalBias  = "political_bias"
	MetaTimezone       = "timezone"
	MetaRoutingReason  = "routing_reason"
)

// historyReserveTokens is held back from the model window for the system
// prompt and the response.
const historyReserveTokens = 8192

// RunConfigFor derives the workflow run config from turn metadata. The
// thread key is the user and conversation pair; a checkpoint_id entry
// branches from that snapshot instead of the latest.
func RunConfigFor(metadata map[string]string) graph.RunConfig {
	return graph.RunConfig{
		ThreadID:     checkpoint.ThreadID(metadata[MetaUserID], metadata[MetaConversationID]),
		CheckpointID: metadata[MetaCheckpointID],
	}
}

// PersonaFromMetadata rebuilds the turn persona from metadata, falling
// back to the default for any missing field.
func PersonaFromMetadata(metadata map[string]string) *types.Persona {
	p := types.DefaultPersona()
	if v := metadata[MetaAIName]; v != "" {
		p.AIName = v
	}
	if v := metadata[MetaPersonaStyle]; v != "" {
		p.Style = v
	}
	if v := metadata[MetaPoliticalBias]; v != "" {
		p.Bias = v
	}
	if v := metadata[MetaTimezone]; v != "" {
		p.Timezone = v
	}
	return p
}

// MetadataWithPersona flattens a persona into the metadata map so agents
// receive it through the uniform request shape.
func MetadataWithPersona(metadata map[string]string, p *types.Persona) map[string]string {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	if p == nil {
		p = types.DefaultPersona()
	}
	metadata[MetaAIName] = p.AIName
	metadata[MetaPersonaStyle] = p.Style
	metadata[MetaPoliticalBias] = p.Bias
	metadata[MetaTimezone] = p.Timezone
	return metadata
}

// DatetimeContext renders the current-date header prepended to system
// prompts. Agents lose track of "today" without it.
func DatetimeContext(timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	return fmt.Sprintf("CURRENT DATE AND TIME\nDate: %s\nTime: %s\nTimezone: %s\n\n---\n\n",
		now.Format("Monday, January 2, 2006"),
		now.Format("3:04 PM MST"),
		loc.String())
}

// MergeHistory appends the current query to the conversation history,
// dropping consecutive identical user turns (retried sends arrive as
// duplicates) so the model never sees the same message twice in a row.
func MergeHistory(history []types.Message, query string) []types.Message {
	merged := make([]types.Message, 0, len(history)+1)
	for _, m := range history {
		if len(merged) > 0 {
			prev := merged[len(merged)-1]
			if m.Role == types.RoleUser && prev.Role == types.RoleUser && m.Content == prev.Content {
				continue
			}
		}
		merged = append(merged, m)
	}
	if query != "" {
		if len(merged) == 0 || merged[len(merged)-1].Role != types.RoleUser || merged[len(merged)-1].Content != query {
			merged = append(merged, types.UserMessage(query))
		}
	}
	return merged
}

// BudgetHistory trims the oldest messages until the history fits the
// model's context window minus a reserve for system prompt and output.
// The latest message is always kept.
func BudgetHistory(history []types.Message, model string) []types.Message {
	budget := factory.ContextWindowFor(model) - historyReserveTokens
	if budget <= 0 {
		budget = factory.DefaultContextWindow - historyReserveTokens
	}
	counter := llm.SharedTokenCounter()
	for len(history) > 1 && counter.CountMessages(history) > budget {
		history = history[1:]
	}
	return history
}

// ChatOptionsFor builds per-call LLM options from turn metadata. A
// "model" metadata entry overrides the provider default for this turn.
func ChatOptionsFor(metadata map[string]string) *types.ChatOptions {
	opts := &types.ChatOptions{}
	if m := metadata[MetaModel]; m != "" {
		opts.Model = m
	}
	return opts
}

// ErrorResult converts an agent failure into the uniform result shape so
// the orchestrator can stream it without special-casing.
func ErrorResult(agentName string, err error) *types.AgentResult {
	return &types.AgentResult{
		Response:   fmt.Sprintf("I ran into a problem: %v", err),
		TaskStatus: types.TaskStatusError,
		AgentName:  agentName,
	}
}

// ResultFrom converts a workflow's final state into the uniform agent
// result. A missing task status reads as completed; agents that suspend
// set permission_required explicitly before yielding.
func ResultFrom(agentName string, final graph.State) *types.AgentResult {
	ws := types.WorkflowStateFrom(final)
	status := ws.TaskStatus
	if status == "" {
		status = types.TaskStatusCompleted
	}
	return &types.AgentResult{
		Response:     ws.Response,
		TaskStatus:   status,
		AgentName:    agentName,
		SharedMemory: ws.SharedMemory,
		Usage:        UsageFrom(final),
	}
}
