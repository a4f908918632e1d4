// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package editing implements the proofread-and-analyze agent. One
// composite node fans out two model calls on independent copies of the
// workflow state and merges them deterministically, corrected text first,
// editorial analysis second.
package editing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/observability"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Name is the registry name this agent serves under.
const Name = agent.NameEditing

// Agent proofreads and critiques prose.
type Agent struct {
	provider types.LLMProvider
	workflow *graph.Runnable
	tracer   observability.Tracer
	logger   *zap.Logger
}

// New builds the editing agent and compiles its workflow.
func New(provider types.LLMProvider, saver graph.Checkpointer, tracer observability.Tracer, logger *zap.Logger) (*Agent, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{provider: provider, tracer: tracer, logger: logger}

	wf, err := graph.NewStateGraph().
		AddNode("combined_proofread_and_analyze", a.combined).
		AddEdge("combined_proofread_and_analyze", graph.End).
		SetEntryPoint("combined_proofread_and_analyze").
		Compile(graph.CompileOptions{Checkpointer: saver})
	if err != nil {
		return nil, fmt.Errorf("compile editing workflow: %w", err)
	}
	a.workflow = wf
	return a, nil
}

// Name implements types.Agent.
func (a *Agent) Name() string { return Name }

// Execute implements types.Agent.
func (a *Agent) Execute(ctx context.Context, req *types.AgentRequest) (*types.AgentResult, error) {
	ctx, span := a.tracer.StartSpan(ctx, "agent.editing")
	defer a.tracer.EndSpan(span)

	sm := req.SharedMemory
	if sm == nil {
		sm = types.NewSharedMemory()
	}
	if req.ActiveEditor != nil {
		sm.ActiveEditor = req.ActiveEditor
	}

	state := (&types.WorkflowState{
		Messages:     req.History,
		UserID:       req.UserID,
		Query:        req.Query,
		SharedMemory: sm,
		Metadata:     req.Metadata,
	}).ToMap()
	agent.ResetUsage(state)

	final, err := a.workflow.Invoke(ctx, state, agent.RunConfigFor(req.Metadata))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("editing workflow: %w", err)
	}
	return agent.ResultFrom(Name, final), nil
}

// combined fans out the proofread and analysis calls on independent
// state copies, waits for both, and merges proofread-first. Branches
// never mutate shared values; each works on its own copy.
func (a *Agent) combined(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := ws.SharedMemory
	if sm == nil {
		sm = types.NewSharedMemory()
	}

	content := editSource(ws, sm)
	if strings.TrimSpace(content) == "" {
		response := "I don't see any text to edit. Paste the text or open the document you want reviewed."
		sm.LastAgent = Name
		sm.LastResponse = response
		return graph.State{
			types.StateKeyResponse:     response,
			types.StateKeyTaskStatus:   string(types.TaskStatusCompleted),
			types.StateKeySharedMemory: sm,
		}, nil
	}

	var (
		wg            sync.WaitGroup
		proofText     string
		analysisText  string
		proofUsage    types.Usage
		analysisUsage types.Usage
		proofErr      error
		analysisErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		proofText, proofUsage, proofErr = a.proofread(ctx, graph.CopyState(state), content)
	}()
	go func() {
		defer wg.Done()
		analysisText, analysisUsage, analysisErr = a.analyze(ctx, graph.CopyState(state), content)
	}()
	wg.Wait()

	if proofErr != nil {
		return nil, fmt.Errorf("proofread: %w", proofErr)
	}
	if analysisErr != nil {
		return nil, fmt.Errorf("analyze: %w", analysisErr)
	}

	response := proofText + "\n\n## Analysis\n\n" + analysisText
	messages := append(agent.MergeHistory(ws.Messages, ws.Query),
		types.AssistantMessage(proofText),
		types.AssistantMessage(analysisText))

	sm.LastAgent = Name
	sm.LastResponse = response

	out := graph.State{
		types.StateKeyMessages:     messages,
		types.StateKeyResponse:     response,
		types.StateKeyTaskStatus:   string(types.TaskStatusCompleted),
		types.StateKeySharedMemory: sm,
	}
	agent.AccumulateUsage(state, out, proofUsage)
	agent.AccumulateUsage(state, out, analysisUsage)
	return out, nil
}

// proofread returns the corrected text only.
func (a *Agent) proofread(ctx context.Context, branch graph.State, content string) (string, types.Usage, error) {
	ws := types.WorkflowStateFrom(branch)

	opts := agent.ChatOptionsFor(ws.Metadata)
	opts.System = heredoc.Doc(`
		You are a meticulous proofreader. Correct grammar, spelling,
		punctuation, and awkward phrasing while preserving the author's
		voice and meaning. Return only the corrected text, no commentary.
	`)

	resp, err := a.provider.Chat(ctx, []types.Message{
		types.UserMessage("Proofread this text:\n\n" + content),
	}, opts)
	if err != nil {
		return "", types.Usage{}, err
	}
	return resp.Content, resp.Usage, nil
}

// analyze returns editorial observations in the user's persona voice.
func (a *Agent) analyze(ctx context.Context, branch graph.State, content string) (string, types.Usage, error) {
	ws := types.WorkflowStateFrom(branch)
	persona := agent.PersonaFromMetadata(ws.Metadata)

	opts := agent.ChatOptionsFor(ws.Metadata)
	opts.System = heredoc.Docf(`
		You are an editorial analyst writing in a %s voice. Assess the
		text's structure, clarity, tone, and pacing. Give concrete,
		prioritized suggestions; quote short passages when pointing at a
		problem. Do not rewrite the text.
	`, persona.Style)

	resp, err := a.provider.Chat(ctx, []types.Message{
		types.UserMessage("Analyze this text:\n\n" + content),
	}, opts)
	if err != nil {
		return "", types.Usage{}, err
	}
	return resp.Content, resp.Usage, nil
}

// editSource picks what to edit: the open document wins, then the
// message text itself.
func editSource(ws *types.WorkflowState, sm *types.SharedMemory) string {
	if sm.ActiveEditor != nil && strings.TrimSpace(sm.ActiveEditor.Content) != "" {
		return sm.ActiveEditor.Content
	}
	return ws.Query
}
