// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/agents/research"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/types"
)

// webSearchDeclined acknowledges a declined web-search approval.
const webSearchDeclined = "Understood, I'll skip the web search. Ask again anytime if you change your mind."

// pendingCanceler is implemented by agents whose workflows pause for
// approval. CancelPending clears the paused run so the thread starts
// fresh on its next turn.
type pendingCanceler interface {
	CancelPending(ctx context.Context, cfg graph.RunConfig) error
}

// resumeOrCancel handles a turn that arrives while a workflow is paused
// waiting on web-search approval. A clear affirmation grants the
// permission and resumes the paused agent; anything else clears the
// pause first, because every agent shares the thread's checkpoint queue
// and a stale pending node would leak into the next graph. A clear
// denial is acknowledged directly; other messages report handled=false
// and route as a fresh turn.
func (o *Orchestrator) resumeOrCancel(ctx context.Context, req *types.ChatRequest, md map[string]string, sm *types.SharedMemory, emit func(types.Chunk)) (*types.AgentResult, bool, error) {
	owner := sm.LastAgent
	if owner == "" {
		owner = agent.NameResearch
	}
	paused, name, err := o.registry.Resolve(owner)
	if err != nil {
		return nil, false, err
	}

	if research.IsAffirmative(req.Query) {
		sm.WebSearchPermission = types.PermissionGranted
		md[agent.MetaRoutingReason] = "web search approved"
		o.logger.Info("resuming paused workflow with web search approved",
			zap.String("agent", name),
			zap.String("conversation_id", req.ConversationID))
		emit(types.NewChunk(types.ChunkStatus, "Web search approved, resuming "+name, name))
		res, err := o.dispatch(ctx, paused, req, md, sm)
		return res, true, err
	}

	if c, ok := paused.(pendingCanceler); ok {
		if err := c.CancelPending(ctx, agent.RunConfigFor(md)); err != nil {
			return nil, false, fmt.Errorf("cancel paused workflow: %w", err)
		}
	}

	if isDenial(req.Query) {
		o.logger.Info("web search declined, paused workflow canceled",
			zap.String("agent", name),
			zap.String("conversation_id", req.ConversationID))
		return &types.AgentResult{
			Response:     webSearchDeclined,
			TaskStatus:   types.TaskStatusCompleted,
			AgentName:    name,
			SharedMemory: sm,
		}, true, nil
	}

	o.logger.Info("pending approval superseded by an unrelated message",
		zap.String("agent", name),
		zap.String("conversation_id", req.ConversationID))
	return nil, false, nil
}

// denialWords match a whole token of a short reply.
var denialWords = []string{"no", "n", "nope", "nah", "stop", "cancel", "skip", "don't", "dont"}

// denialPhrases match anywhere in a short reply.
var denialPhrases = []string{
	"no thanks", "no thank you", "not now", "don't search",
	"do not search", "skip the web", "local only",
}

// denialLongForms match regardless of message length.
var denialLongForms = []string{
	"don't search the web", "do not search the web", "stick to local documents",
}

// isDenial reports whether a message reads as declining the pending
// approval: a short reply built around a refusal word or phrase, or an
// explicit no-web request of any length. The counterpart of
// research.IsAffirmative.
func isDenial(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "" {
		return false
	}
	for _, p := range denialLongForms {
		if strings.Contains(lower, p) {
			return true
		}
	}
	tokens := strings.Fields(lower)
	if len(tokens) > 5 {
		return false
	}
	for _, p := range denialPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,!?:;")
		for _, w := range denialWords {
			if tok == w {
				return true
			}
		}
	}
	return false
}
