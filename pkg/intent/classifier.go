// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package intent classifies a user turn onto a target agent. The
// classifier is one LLM call returning schema-validated JSON; any failure
// falls back to the chat agent so routing never sinks a turn.
package intent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/observability"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Classification is the classifier's verdict for one turn.
type Classification struct {
	TargetAgent  string  `json:"target_agent"`
	ActionIntent string  `json:"action_intent"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

const classificationSchema = `{
	"type": "object",
	"required": ["target_agent", "confidence"],
	"properties": {
		"target_agent": {"type": "string"},
		"action_intent": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reasoning": {"type": "string"}
	}
}`

// contextTrim caps how much of the previous response is echoed into the
// classification prompt.
const contextTrim = 300

// Classifier routes turns to agents.
type Classifier struct {
	provider types.LLMProvider
	tracer   observability.Tracer
	logger   *zap.Logger
}

// NewClassifier builds a classifier on the given provider.
func NewClassifier(provider types.LLMProvider, tracer observability.Tracer, logger *zap.Logger) *Classifier {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{provider: provider, tracer: tracer, logger: logger}
}

// Classify picks the agent for a user message given the thread's shared
// memory. It never returns an unusable result; LLM or parse failures
// degrade to the chat agent.
func (c *Classifier) Classify(ctx context.Context, query string, sm *types.SharedMemory) *Classification {
	ctx, span := c.tracer.StartSpan(ctx, "intent.classify")
	defer c.tracer.EndSpan(span)

	prompt := c.buildPrompt(query, sm)
	messages := []types.Message{{Role: types.RoleUser, Content: prompt}}
	opts := types.ChatOptions{}.WithTemperature(0)

	var out Classification
	_, err := llm.ChatStructured(ctx, c.provider, messages, &opts, classificationSchema, &out)
	if err != nil {
		c.tracer.RecordMetric("intent.classify.fallback", 1.0, map[string]string{"reason": "llm"})
		c.logger.Warn("intent classification failed, routing to chat", zap.Error(err))
		return fallbackClassification(fmt.Sprintf("classification failed: %v", err))
	}
	if out.TargetAgent == "" {
		c.tracer.RecordMetric("intent.classify.fallback", 1.0, map[string]string{"reason": "empty"})
		return fallbackClassification("classifier returned no target agent")
	}

	span.SetAttribute("target_agent", out.TargetAgent)
	span.SetAttribute("confidence", fmt.Sprintf("%.2f", out.Confidence))
	c.logger.Debug("intent classified",
		zap.String("target_agent", out.TargetAgent),
		zap.String("action_intent", out.ActionIntent),
		zap.Float64("confidence", out.Confidence))
	return &out
}

func (c *Classifier) buildPrompt(query string, sm *types.SharedMemory) string {
	var sb strings.Builder
	sb.WriteString("Classify which agent should handle this user message.\n\n")
	sb.WriteString("AVAILABLE AGENTS:\n")
	sb.WriteString("- " + agent.NameChat + ": general conversation, quick factual replies, anything no other agent covers\n")
	sb.WriteString("- " + agent.NameResearch + ": questions needing document search, web research, or multi-source synthesis\n")
	sb.WriteString("- " + agent.NameOrg + ": org-mode inbox and task management (add, list, complete, schedule, projects)\n")
	sb.WriteString("- " + agent.NameWeather + ": weather conditions, forecasts, and alerts\n")
	sb.WriteString("- " + agent.NameEditing + ": proofreading, rewriting, or analyzing the open document\n\n")

	if sm != nil {
		sb.WriteString("CONVERSATION CONTEXT:\n")
		if sm.PrimaryAgentSelected != "" {
			sb.WriteString("Previously selected agent: " + sm.PrimaryAgentSelected + "\n")
		}
		if sm.LastAgent != "" {
			sb.WriteString("Last agent that responded: " + sm.LastAgent + "\n")
		}
		if sm.LastResponse != "" {
			last := sm.LastResponse
			if len(last) > contextTrim {
				last = last[:contextTrim] + "..."
			}
			sb.WriteString("Last response: " + last + "\n")
		}
		if sm.ActiveEditor != nil && sm.ActiveEditor.Filename != "" {
			sb.WriteString("Open document: " + sm.ActiveEditor.Filename + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("User message: " + query + "\n\n")
	sb.WriteString("Classification rules:\n")
	sb.WriteString("- Prefer the previously selected agent when the message continues that thread.\n")
	sb.WriteString("- Short affirmations (\"yes\", \"go ahead\") continue the previously selected agent.\n")
	sb.WriteString("- Route to " + agent.NameChat + " when no agent clearly fits.\n\n")
	sb.WriteString("Output format:\n")
	sb.WriteString(`{
  "target_agent": "...",
  "action_intent": "...",
  "confidence": 0.0,
  "reasoning": "..."
}`)
	return sb.String()
}

func fallbackClassification(reason string) *Classification {
	return &Classification{
		TargetAgent:  agent.NameChat,
		ActionIntent: "general_conversation",
		Confidence:   0,
		Reasoning:    reason,
	}
}
