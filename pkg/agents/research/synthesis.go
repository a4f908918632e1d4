// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/types"
)

// formattingNeed is the model's verdict on whether the final answer
// carries structure worth handing to the formatting agent.
type formattingNeed struct {
	NeedsFormatting bool   `json:"needs_formatting"`
	Reasoning       string `json:"reasoning"`
}

const formattingNeedSchema = `{
	"type": "object",
	"properties": {
		"needs_formatting": {"type": "boolean"},
		"reasoning": {"type": "string"}
	},
	"required": ["needs_formatting"]
}`

// finalSynthesis writes the answer from everything the rounds gathered.
// Every round's output is labeled and trimmed so the prompt stays inside
// budget even after a five-stage run.
func (a *Agent) finalSynthesis(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)
	out := graph.State{keyCurrentRound: roundFinalSynthesis}

	type section struct {
		label   string
		content string
		source  string
	}
	sections := []section{
		{"CONVERSATION CACHE", types.AsString(state[keyCachedContext]), "cache"},
		{"LOCAL DOCUMENTS (ROUND 1)", clip(types.AsString(state[keyRound1Results]), synthLocalR1Trim), roundInitialLocal},
		{"LOCAL DOCUMENTS (ROUND 2)", clip(types.AsString(state[keyRound2Results]), synthLocalR2Trim), roundTwoGapFilling},
		{"WEB (ROUND 1)", clip(types.AsString(state[keyWebRound1Results]), synthWebR1Trim), roundWebOne},
		{"WEB (ROUND 2)", clip(types.AsString(state[keyWebRound2Results]), synthWebR2Trim), roundWebTwo},
	}

	var contextText strings.Builder
	sources := []string{}
	for _, sec := range sections {
		if strings.TrimSpace(sec.content) == "" {
			continue
		}
		fmt.Fprintf(&contextText, "## %s\n%s\n\n", sec.label, sec.content)
		sources = append(sources, sec.source)
	}

	citations := types.AsStringSlice(state[keyCitations])
	var citationBlock string
	if len(citations) > 0 {
		citationBlock = "SOURCES:\n- " + strings.Join(citations, "\n- ") + "\n\n"
	}

	task := "Write one comprehensive, direct answer."
	numOptions := types.AsInt(state[keyNumOptions])
	switch {
	case types.AsBool(state[keyShouldPresentOptions]) && numOptions >= 2:
		task = heredoc.Docf(`
			Present exactly %d distinct options. Start each with a header of the
			form "## Option N: <name>", explain its rationale and trade-offs, and
			close with a short recommendation of which option fits best.
		`, numOptions)
	case types.AsString(state[keyQueryType]) == "mixed":
		task = "Write one comprehensive primary answer, then briefly note the main alternatives and when each applies."
	}

	persona := agent.PersonaFromMetadata(ws.Metadata)
	opts := agent.ChatOptionsFor(ws.Metadata).WithTemperature(synthesisTemperature)
	opts.System = agent.DatetimeContext(persona.Timezone) + "\n\n" + heredoc.Docf(`
		You are %s, a research assistant writing the final answer in a %s voice.
		Ground every claim in the research context below and say so plainly when
		the research does not cover something. Cite web sources inline as
		markdown links when you draw on them.
	`, persona.AIName, persona.Style)

	prompt := heredoc.Docf(`
		Question: %s

		RESEARCH CONTEXT:
		%s
		%s%s
	`, originalQuery(state), emptyNote(strings.TrimSpace(contextText.String())), citationBlock, task)

	resp, err := a.provider.Chat(ctx, []types.Message{types.UserMessage(prompt)}, &opts)
	if err != nil {
		return nil, fmt.Errorf("final synthesis: %w", err)
	}
	final := strings.TrimSpace(resp.Content)
	agent.AccumulateUsage(state, out, resp.Usage)

	recommendation := ""
	if a.formatter != nil {
		need, fresp, ferr := a.detectFormattingNeed(ctx, final)
		if fresp != nil {
			agent.AccumulateUsage(state, out, fresp.Usage)
		}
		switch {
		case ferr != nil:
			// Conservative fallback: ship the answer as written.
			a.logger.Warn("formatting-need detection degraded to plain response", zap.Error(ferr))
			a.tracer.RecordMetric("research.formatting_need.fallback", 1, nil)
		case need.NeedsFormatting:
			recommendation = agent.NameFormatting
		}
	}

	sm.PrimaryAgentSelected = Name
	sm.LastAgent = Name
	sm.LastResponse = final

	out[keyFinalResponse] = final
	out[keyResearchComplete] = true
	out[keyRoutingRecommendation] = recommendation
	out[keySourcesUsed] = sources
	out[types.StateKeyMessages] = append(agent.MergeHistory(ws.Messages, ws.Query), types.AssistantMessage(final))
	out[types.StateKeyResponse] = final
	out[types.StateKeyTaskStatus] = string(types.TaskStatusCompleted)
	out[types.StateKeySharedMemory] = sm
	return out, nil
}

func routeSynthesis(state graph.State) string {
	if types.AsString(state[keyRoutingRecommendation]) == agent.NameFormatting {
		return "format"
	}
	return "complete"
}

// formatData hands the finished answer to the data-formatting agent on a
// derived thread, so the formatter's checkpoints never collide with this
// conversation's.
func (a *Agent) formatData(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)
	final := types.AsString(state[keyFinalResponse])
	if a.formatter == nil || strings.TrimSpace(final) == "" {
		return graph.State{}, nil
	}

	md := make(map[string]string, len(ws.Metadata)+1)
	for k, v := range ws.Metadata {
		md[k] = v
	}
	md[agent.MetaConversationID] = ws.Metadata[agent.MetaConversationID] + "#format_data"

	res, err := a.formatter.Execute(ctx, &types.AgentRequest{
		Query:        final,
		UserID:       ws.UserID,
		Metadata:     md,
		SharedMemory: sm,
	})
	if err != nil || res == nil || strings.TrimSpace(res.Response) == "" {
		// The researched answer outranks its formatting; keep it as written.
		a.logger.Warn("data formatting delegation degraded to raw response", zap.Error(err))
		return graph.State{}, nil
	}

	sm.LastResponse = res.Response
	out := graph.State{}
	agent.AccumulateUsage(state, out, res.Usage)
	out[keyFinalResponse] = res.Response
	out[types.StateKeyResponse] = res.Response
	out[types.StateKeySharedMemory] = sm
	return out, nil
}

func (a *Agent) detectFormattingNeed(ctx context.Context, text string) (formattingNeed, *types.LLMResponse, error) {
	prompt := heredoc.Docf(`
		Decide whether this response would read better restructured as markdown
		tables or lists. Only say yes for dense tabular facts, statistics, or
		multi-item comparisons.

		Response:
		%s

		Output format:
		{"needs_formatting": false, "reasoning": "..."}
	`, clip(text, assessTrim))

	var need formattingNeed
	opts := types.ChatOptions{}.WithTemperature(0)
	resp, err := llm.ChatStructured(ctx, a.provider, []types.Message{types.UserMessage(prompt)}, &opts, formattingNeedSchema, &need)
	return need, resp, err
}
