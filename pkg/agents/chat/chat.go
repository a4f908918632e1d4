// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package chat implements the plain conversational agent. It is the
// routing default and the alias target for the project-oriented agents:
// one model call per turn, persona-voiced, and when the active editor is
// a project plan the reply is routed into the referenced project files.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/observability"
	"github.com/teradata-labs/conductor/pkg/projectcontent"
	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Name is the registry name this agent serves under.
const Name = agent.NameChat

// Agent answers general conversation with a single model call.
type Agent struct {
	provider types.LLMProvider
	router   *projectcontent.Router
	workflow *graph.Runnable
	tracer   observability.Tracer
	logger   *zap.Logger
}

// New builds the chat agent and compiles its workflow. tools may be nil;
// without a document service the agent answers but never routes content.
func New(provider types.LLMProvider, tools projectcontent.DocumentService, saver graph.Checkpointer, tracer observability.Tracer, logger *zap.Logger) (*Agent, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{provider: provider, tracer: tracer, logger: logger}
	if tools != nil {
		a.router = projectcontent.NewRouter(projectcontent.Config{
			Tools:     tools,
			AgentName: Name,
			Logger:    logger,
		})
	}

	wf, err := graph.NewStateGraph().
		AddNode("respond", a.respond).
		AddNode("route_content", a.routeContent).
		AddEdge("respond", "route_content").
		AddEdge("route_content", graph.End).
		SetEntryPoint("respond").
		Compile(graph.CompileOptions{Checkpointer: saver})
	if err != nil {
		return nil, fmt.Errorf("compile chat workflow: %w", err)
	}
	a.workflow = wf
	return a, nil
}

// Name implements types.Agent.
func (a *Agent) Name() string { return Name }

// Execute implements types.Agent.
func (a *Agent) Execute(ctx context.Context, req *types.AgentRequest) (*types.AgentResult, error) {
	ctx, span := a.tracer.StartSpan(ctx, "agent.chat")
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
		return nil, fmt.Errorf("chat workflow: %w", err)
	}

	res := agent.ResultFrom(Name, final)
	span.SetAttribute("output_tokens", res.Usage.OutputTokens)
	return res, nil
}

// respond assembles history, calls the model once, and publishes the
// reply to state and shared memory.
func (a *Agent) respond(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	persona := agent.PersonaFromMetadata(ws.Metadata)

	opts := agent.ChatOptionsFor(ws.Metadata)
	opts.System = agent.DatetimeContext(persona.Timezone) + systemPrompt(persona)

	model := opts.Model
	if model == "" {
		model = a.provider.Model()
	}
	history := agent.BudgetHistory(agent.MergeHistory(ws.Messages, ws.Query), model)

	resp, err := a.provider.Chat(ctx, history, opts)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	sm := ws.SharedMemory
	if sm == nil {
		sm = types.NewSharedMemory()
	}
	sm.LastAgent = Name
	sm.LastResponse = resp.Content

	out := graph.State{
		types.StateKeyMessages:     append(history, types.AssistantMessage(resp.Content)),
		types.StateKeyResponse:     resp.Content,
		types.StateKeyTaskStatus:   string(types.TaskStatusCompleted),
		types.StateKeySharedMemory: sm,
	}
	agent.AccumulateUsage(state, out, resp.Usage)
	return out, nil
}

// routeContent places the reply into the project files the open plan's
// frontmatter references. Routing failures leave the reply untouched.
func (a *Agent) routeContent(ctx context.Context, state graph.State) (graph.State, error) {
	if a.router == nil {
		return graph.State{}, nil
	}
	ws := types.WorkflowStateFrom(state)
	sm := ws.SharedMemory
	if sm == nil || !projectPlanOpen(sm.ActiveEditor) {
		return graph.State{}, nil
	}

	rec := toolservice.NewRecorder()
	res, err := a.router.Route(toolservice.WithRecorder(ctx, rec), ws.UserID, sm.ActiveEditor, ws.Response, nil)
	if err != nil {
		a.logger.Warn("project content routing failed", zap.Error(err))
		return graph.State{}, nil
	}
	agent.RecordTools(sm, rec.Ops())

	if len(res.Updates) > 0 {
		paths := make([]string, len(res.Updates))
		for i, u := range res.Updates {
			paths[i] = u.Path
		}
		a.logger.Info("routed project content", zap.Strings("files", paths))
	}

	out := graph.State{types.StateKeySharedMemory: sm}
	if res.Suggestion != nil {
		response := ws.Response + "\n\n" + res.Suggestion.SuggestionMessage
		sm.LastResponse = response
		out[types.StateKeyResponse] = response
	}
	return out, nil
}

// projectPlanOpen reports whether the active editor is a project plan.
func projectPlanOpen(editor *types.ActiveEditor) bool {
	return editor != nil && editor.Frontmatter != nil &&
		strings.EqualFold(editor.Frontmatter.Type, "project")
}

func systemPrompt(p *types.Persona) string {
	return heredoc.Docf(`
		You are %s, a conversational assistant.

		Respond in a %s voice. Be direct and complete; prefer prose over
		lists unless the user asks for structure. Say when you are unsure
		instead of guessing. Keep a %s stance on contested topics.
	`, p.AIName, p.Style, p.Bias)
}
