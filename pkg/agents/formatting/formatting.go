// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package formatting implements the data-formatting agent. It restates
// content as structured markdown without adding or dropping facts; the
// research workflow hands off to it when a synthesis wants tables or
// lists, and it serves direct format requests as well.
package formatting

import (
	"context"
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/observability"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Name is the registry name this agent serves under.
const Name = agent.NameFormatting

// Agent reshapes content into structured markdown.
type Agent struct {
	provider types.LLMProvider
	workflow *graph.Runnable
	tracer   observability.Tracer
	logger   *zap.Logger
}

// New builds the formatting agent and compiles its workflow.
func New(provider types.LLMProvider, saver graph.Checkpointer, tracer observability.Tracer, logger *zap.Logger) (*Agent, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{provider: provider, tracer: tracer, logger: logger}

	wf, err := graph.NewStateGraph().
		AddNode("format", a.format).
		AddEdge("format", graph.End).
		SetEntryPoint("format").
		Compile(graph.CompileOptions{Checkpointer: saver})
	if err != nil {
		return nil, fmt.Errorf("compile formatting workflow: %w", err)
	}
	a.workflow = wf
	return a, nil
}

// Name implements types.Agent.
func (a *Agent) Name() string { return Name }

// Execute implements types.Agent.
func (a *Agent) Execute(ctx context.Context, req *types.AgentRequest) (*types.AgentResult, error) {
	ctx, span := a.tracer.StartSpan(ctx, "agent.formatting")
	defer a.tracer.EndSpan(span)

	state := (&types.WorkflowState{
		Messages:     req.History,
		UserID:       req.UserID,
		Query:        req.Query,
		SharedMemory: req.SharedMemory,
		Metadata:     req.Metadata,
	}).ToMap()
	agent.ResetUsage(state)

	final, err := a.workflow.Invoke(ctx, state, agent.RunConfigFor(req.Metadata))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("formatting workflow: %w", err)
	}
	return agent.ResultFrom(Name, final), nil
}

// format rewrites the input as structured markdown in one model call.
func (a *Agent) format(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)

	opts := agent.ChatOptionsFor(ws.Metadata).WithTemperature(0)
	opts.System = heredoc.Doc(`
		You are a data-formatting specialist. Restructure the content you
		are given into clean markdown: tables for tabular facts, numbered
		lists for sequences, bulleted lists for unordered sets, headers for
		sections. Preserve every fact and figure exactly; add nothing,
		remove nothing, and do not editorialize.
	`)

	prompt := fmt.Sprintf("Format this content:\n\n%s", ws.Query)
	resp, err := a.provider.Chat(ctx, []types.Message{types.UserMessage(prompt)}, &opts)
	if err != nil {
		return nil, fmt.Errorf("formatting completion: %w", err)
	}

	sm := ws.SharedMemory
	if sm == nil {
		sm = types.NewSharedMemory()
	}
	sm.LastAgent = Name
	sm.LastResponse = resp.Content

	out := graph.State{
		types.StateKeyResponse:     resp.Content,
		types.StateKeyTaskStatus:   string(types.TaskStatusCompleted),
		types.StateKeySharedMemory: sm,
	}
	agent.AccumulateUsage(state, out, resp.Usage)
	return out, nil
}
