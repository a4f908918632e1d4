// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package orginbox implements the org agent: capture and management of
// the user's org-mode inbox, plus cross-file synthesis driven by the
// [[file:...]] links in the open document. Project capture is a stateful
// confirm-before-write flow carried in shared memory across turns.
package orginbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/observability"
	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Name is the registry name this agent serves under.
const Name = agent.NameOrg

// State extension keys private to this workflow.
const (
	keyIntent     = "org_intent"
	keyAction     = "org_action"
	keyLinks      = "org_links"
	keyReferences = "org_references"
)

// Intent labels.
const (
	intentSynthesis      = "synthesis"
	intentProjectCapture = "project_capture"
	intentManagement     = "management"
)

// Management actions.
const (
	actionAdd         = "add"
	actionList        = "list"
	actionToggle      = "toggle"
	actionUpdate      = "update"
	actionSchedule    = "schedule"
	actionArchiveDone = "archive_done"
)

// Content budgets for the synthesis prompt.
const (
	editorContextLimit    = 2000
	referenceContentLimit = 2000
)

// OrgService is the slice of the tool client this agent needs.
type OrgService interface {
	AddOrgInboxItem(ctx context.Context, req *toolservice.AddOrgInboxItemRequest) (*toolservice.OrgActionResponse, error)
	ListOrgInboxItems(ctx context.Context, userID string, includeDone bool) ([]toolservice.OrgInboxItem, error)
	ToggleOrgInboxItem(ctx context.Context, itemID, userID string) (*toolservice.OrgActionResponse, error)
	UpdateOrgInboxItem(ctx context.Context, itemID, userID, heading, description, schedule string) (*toolservice.OrgActionResponse, error)
	SetOrgInboxSchedule(ctx context.Context, itemID, schedule, userID string) (*toolservice.OrgActionResponse, error)
	ArchiveOrgInboxDone(ctx context.Context, userID string) (*toolservice.OrgActionResponse, error)
	AppendOrgInboxText(ctx context.Context, text, userID string) (*toolservice.OrgActionResponse, error)
	FindDocumentByPath(ctx context.Context, filePath, userID, basePath string) (*toolservice.DocumentRef, error)
	GetDocumentContent(ctx context.Context, documentID, userID string) (string, error)
}

// Config carries the agent's dependencies.
type Config struct {
	Provider types.LLMProvider
	Tools    OrgService
	// Assessor, when set, is consulted for referenced documents that look
	// like project plans; its text joins the synthesis context.
	Assessor types.Agent
	Saver    graph.Checkpointer
	Tracer   observability.Tracer
	Logger   *zap.Logger
}

// Agent runs the org inbox workflow.
type Agent struct {
	provider types.LLMProvider
	tools    OrgService
	assessor types.Agent
	workflow *graph.Runnable
	tracer   observability.Tracer
	logger   *zap.Logger
	now      func() time.Time
}

// New builds the org agent and compiles its graph.
func New(cfg Config) (*Agent, error) {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{
		provider: cfg.Provider,
		tools:    cfg.Tools,
		assessor: cfg.Assessor,
		tracer:   tracer,
		logger:   logger,
		now:      time.Now,
	}

	wf, err := graph.NewStateGraph().
		AddNode("analyze_intent", a.analyzeIntent).
		AddNode("resolve_references", a.resolveReferences).
		AddNode("synthesize_analysis", a.synthesizeAnalysis).
		AddNode("project_capture", a.projectCapture).
		AddNode("manage", a.manage).
		SetEntryPoint("analyze_intent").
		AddConditionalEdges("analyze_intent", routeIntent, map[string]string{
			intentSynthesis:      "resolve_references",
			intentProjectCapture: "project_capture",
			intentManagement:     "manage",
		}).
		AddEdge("resolve_references", "synthesize_analysis").
		AddEdge("synthesize_analysis", graph.End).
		AddEdge("project_capture", graph.End).
		AddEdge("manage", graph.End).
		Compile(graph.CompileOptions{Checkpointer: cfg.Saver})
	if err != nil {
		return nil, fmt.Errorf("compile org workflow: %w", err)
	}
	a.workflow = wf
	return a, nil
}

// Name implements types.Agent.
func (a *Agent) Name() string { return Name }

// Execute implements types.Agent.
func (a *Agent) Execute(ctx context.Context, req *types.AgentRequest) (*types.AgentResult, error) {
	ctx, span := a.tracer.StartSpan(ctx, "agent.org")
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
		return nil, fmt.Errorf("org workflow: %w", err)
	}

	res := agent.ResultFrom(Name, final)
	res.AgentResults = map[string]any{
		"intent": types.AsString(final[keyIntent]),
		"action": types.AsString(final[keyAction]),
	}
	span.SetAttribute("intent", types.AsString(final[keyIntent]))
	return res, nil
}

// analyzeIntent classifies the turn. A pending project capture always
// stays in the capture flow until it commits or cancels; synthesis needs
// both editor links and a synthesis verb; a capture prefix starts a new
// project; everything else is inbox management.
func (a *Agent) analyzeIntent(_ context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)

	out := graph.State{
		keyLinks:      []any{},
		keyReferences: []any{},
	}

	if sm.PendingProjectCapture != nil {
		out[keyIntent] = intentProjectCapture
		out[keyAction] = ""
		return out, nil
	}

	intent, action := classifyIntent(ws.Query, sm.ActiveEditor)
	out[keyIntent] = intent
	out[keyAction] = action

	if intent == intentSynthesis {
		links := filterLinks(sm.ActiveEditor, ws.Query)
		var flat []any
		if err := types.Remarshal(links, &flat); err == nil {
			out[keyLinks] = flat
		}
	}
	return out, nil
}

func routeIntent(state graph.State) string {
	switch types.AsString(state[keyIntent]) {
	case intentSynthesis:
		return intentSynthesis
	case intentProjectCapture:
		return intentProjectCapture
	default:
		return intentManagement
	}
}

// sharedMemoryOf pulls the typed shared memory out of state, never nil.
func sharedMemoryOf(state graph.State) *types.SharedMemory {
	if v, ok := state[types.StateKeySharedMemory]; ok {
		return types.AsSharedMemory(v)
	}
	return types.NewSharedMemory()
}
