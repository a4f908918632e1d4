// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package orchestrator routes user turns to agents and streams each
// turn's progress back as ordered chunks.
//
// A turn runs through a fixed sequence: lazy agent initialization,
// metadata and persona assembly, checkpoint shared-memory pre-load,
// request-side extraction and merge, human-in-the-loop resume handling,
// intent classification, alias resolution, and dispatch. A successful
// turn ends with exactly one complete chunk; a failed turn ends with
// exactly one error chunk.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/agents/chat"
	"github.com/teradata-labs/conductor/pkg/agents/editing"
	"github.com/teradata-labs/conductor/pkg/agents/formatting"
	"github.com/teradata-labs/conductor/pkg/agents/orginbox"
	"github.com/teradata-labs/conductor/pkg/agents/research"
	"github.com/teradata-labs/conductor/pkg/agents/weather"
	"github.com/teradata-labs/conductor/pkg/checkpoint"
	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/intent"
	"github.com/teradata-labs/conductor/pkg/observability"
	"github.com/teradata-labs/conductor/pkg/projectcontent"
	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Config carries the orchestrator's dependencies. Provider, Saver, and
// Tools are shared with every agent the orchestrator builds.
type Config struct {
	Agents   config.AgentsConfig
	Provider types.LLMProvider
	Saver    checkpoint.Saver
	Tools    *toolservice.Client
	Tracer   observability.Tracer
	Logger   *zap.Logger
}

// Orchestrator owns the agent registry and serves turns. Agents are
// built on the first turn and rebuilt after a transport recovery; the
// registry, classifier, and checkpoint store are shared across turns.
type Orchestrator struct {
	cfg        Config
	classifier *intent.Classifier
	tracer     observability.Tracer
	logger     *zap.Logger

	watchCtx    context.Context
	watchCancel context.CancelFunc

	mu          sync.Mutex
	initialized bool
	registry    *agent.Registry

	// buildAgents constructs the agent set on first use. Tests swap it
	// for scripted agents.
	buildAgents func() ([]types.Agent, error)
}

// New builds an orchestrator. Nothing heavy happens here; agent graphs
// compile lazily on the first turn.
func New(cfg Config) *Orchestrator {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	watchCtx, watchCancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:         cfg,
		classifier:  intent.NewClassifier(cfg.Provider, tracer, logger),
		tracer:      tracer,
		logger:      logger,
		watchCtx:    watchCtx,
		watchCancel: watchCancel,
	}
	o.buildAgents = o.defaultAgents
	return o
}

// StreamChat serves one user turn. The returned channel delivers chunks
// in order and closes after the terminal chunk: exactly one complete on
// success, exactly one error on failure.
func (o *Orchestrator) StreamChat(ctx context.Context, req *types.ChatRequest) <-chan types.Chunk {
	ch := make(chan types.Chunk, 16)
	emit := func(c types.Chunk) {
		select {
		case ch <- c:
		case <-ctx.Done():
		}
	}
	go func() {
		defer close(ch)
		o.serveTurn(ctx, req, emit)
	}()
	return ch
}

// serveTurn runs the turn, retrying exactly once after a transport loss,
// and converts the outcome into terminal chunks.
func (o *Orchestrator) serveTurn(ctx context.Context, req *types.ChatRequest, emit func(types.Chunk)) {
	ctx, span := o.tracer.StartSpan(ctx, observability.SpanTurn,
		observability.WithAttribute(observability.AttrUserID, req.UserID),
		observability.WithAttribute(observability.AttrConversationID, req.ConversationID))
	defer o.tracer.EndSpan(span)

	res, err := o.runTurn(ctx, req, emit)
	if err != nil && types.IsTransportClosed(err) {
		o.logger.Warn("transport lost mid-turn, resetting and retrying once",
			zap.String("user_id", req.UserID),
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err))
		emit(types.NewChunk(types.ChunkWarning, "Connection to the backend was lost, retrying.", ""))
		if rerr := o.recoverTransport(ctx); rerr != nil {
			err = fmt.Errorf("recover after transport loss: %w", rerr)
		} else {
			res, err = o.runTurn(ctx, req, emit)
		}
	}
	if err != nil {
		span.RecordError(err)
		o.logger.Error("turn failed",
			zap.String("user_id", req.UserID),
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err))
		emit(types.NewChunk(types.ChunkError, err.Error(), ""))
		return
	}

	if res.TaskStatus == "" {
		res.TaskStatus = types.TaskStatusCompleted
	}
	span.SetAttribute(observability.AttrAgentName, res.AgentName)
	o.tracer.RecordMetric(observability.MetricTurns, 1, map[string]string{
		"agent":  res.AgentName,
		"status": string(res.TaskStatus),
	})
	if res.Response != "" {
		emit(types.NewChunk(types.ChunkContent, res.Response, res.AgentName))
	}
	emit(types.NewChunk(types.ChunkComplete, string(res.TaskStatus), res.AgentName))
}

// runTurn executes the turn algorithm up to the dispatched agent result.
// Status and warning chunks stream through emit as steps progress.
func (o *Orchestrator) runTurn(ctx context.Context, req *types.ChatRequest, emit func(types.Chunk)) (*types.AgentResult, error) {
	if err := o.ensureInit(); err != nil {
		return nil, err
	}

	md := make(map[string]string, len(req.Metadata)+8)
	for k, v := range req.Metadata {
		md[k] = v
	}
	md[agent.MetaUserID] = req.UserID
	md[agent.MetaConversationID] = req.ConversationID
	md = agent.MetadataWithPersona(md, req.Persona)

	threadID := checkpoint.ThreadID(req.UserID, req.ConversationID)
	cp, err := o.cfg.Saver.Latest(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint shared memory: %w", err)
	}
	sm := types.NewSharedMemory()
	if cp != nil {
		sm = types.AsSharedMemory(cp.Values[types.StateKeySharedMemory])
	}

	// Request-side extraction merges on top of the checkpointed record:
	// keys present in the request win, permission keys never regress.
	reqSM := types.NewSharedMemory()
	reqSM.ActiveEditor = extractEditor(req.ActiveEditor)
	if len(req.ConversationIntelligence) > 0 {
		reqSM.Extensions = map[string]any{"conversation_intelligence": req.ConversationIntelligence}
	}
	sm.Merge(reqSM)
	sm.ApplyGrants(req.PermissionGrants)

	if cp != nil && len(cp.Next) > 0 && sm.WebSearchPermission == types.PermissionPending {
		res, handled, err := o.resumeOrCancel(ctx, req, md, sm, emit)
		if err != nil || handled {
			return res, err
		}
		// Pause cleared; the message routes as a fresh turn below.
	}

	requested := req.AgentType
	reason := req.RoutingReason
	if requested == "" || requested == "auto" {
		cls := o.classifier.Classify(ctx, req.Query, sm)
		requested = cls.TargetAgent
		reason = cls.Reasoning
		o.logger.Debug("intent classified",
			zap.String("target", cls.TargetAgent),
			zap.String("action", cls.ActionIntent),
			zap.Float64("confidence", cls.Confidence))
	}

	target, name, err := o.registry.Resolve(requested)
	if err != nil {
		return nil, err
	}
	if explicit := req.AgentType != "" && req.AgentType != "auto"; explicit && o.registry.Alias(req.AgentType) != name {
		emit(types.NewChunk(types.ChunkWarning,
			fmt.Sprintf("Unknown agent type %q, using %s.", req.AgentType, name), name))
	}
	if reason != "" {
		md[agent.MetaRoutingReason] = reason
	}

	emit(types.NewChunk(types.ChunkStatus, "Routing to "+name, name))
	return o.dispatch(ctx, target, req, md, sm)
}

// dispatch hands the turn to the chosen agent through the uniform
// request shape.
func (o *Orchestrator) dispatch(ctx context.Context, target types.Agent, req *types.ChatRequest, md map[string]string, sm *types.SharedMemory) (*types.AgentResult, error) {
	return target.Execute(ctx, &types.AgentRequest{
		Query:        req.Query,
		UserID:       req.UserID,
		Metadata:     md,
		History:      req.ConversationHistory,
		SharedMemory: sm,
		ActiveEditor: sm.ActiveEditor,
	})
}

// ensureInit builds the agent set and registry once. Idempotent; a
// transport recovery clears the flag so the next turn rebuilds.
func (o *Orchestrator) ensureInit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initialized {
		return nil
	}

	agents, err := o.buildAgents()
	if err != nil {
		return fmt.Errorf("initialize agents: %w", err)
	}
	if o.registry != nil {
		_ = o.registry.Close()
	}
	reg := agent.NewRegistry(o.cfg.Agents, o.logger)
	for _, a := range agents {
		reg.Register(a)
	}
	// WatchAliases blocks for the life of watchCtx; a watch failure only
	// costs hot reload of the alias table.
	go func() {
		if err := reg.WatchAliases(o.watchCtx); err != nil {
			o.logger.Warn("alias file watch unavailable, using built-in table", zap.Error(err))
		}
	}()
	o.registry = reg
	o.initialized = true
	o.logger.Info("orchestrator initialized", zap.Strings("agents", reg.Names()))
	return nil
}

// defaultAgents wires the production agent set against the shared
// provider, checkpoint store, and tool client.
func (o *Orchestrator) defaultAgents() ([]types.Agent, error) {
	var docs projectcontent.DocumentService
	if o.cfg.Tools != nil {
		docs = o.cfg.Tools
	}
	chatAgent, err := chat.New(o.cfg.Provider, docs, o.cfg.Saver, o.tracer, o.logger)
	if err != nil {
		return nil, err
	}
	formatter, err := formatting.New(o.cfg.Provider, o.cfg.Saver, o.tracer, o.logger)
	if err != nil {
		return nil, err
	}
	editingAgent, err := editing.New(o.cfg.Provider, o.cfg.Saver, o.tracer, o.logger)
	if err != nil {
		return nil, err
	}
	researchAgent, err := research.New(research.Config{
		Research:  o.cfg.Agents.Research,
		Provider:  o.cfg.Provider,
		Tools:     o.cfg.Tools,
		Formatter: formatter,
		Saver:     o.cfg.Saver,
		Tracer:    o.tracer,
		Logger:    o.logger,
	})
	if err != nil {
		return nil, err
	}
	weatherAgent, err := weather.New(o.cfg.Provider, o.cfg.Tools, o.cfg.Saver, o.tracer, o.logger)
	if err != nil {
		return nil, err
	}
	orgAgent, err := orginbox.New(orginbox.Config{
		Provider: o.cfg.Provider,
		Tools:    o.cfg.Tools,
		Assessor: chatAgent,
		Saver:    o.cfg.Saver,
		Tracer:   o.tracer,
		Logger:   o.logger,
	})
	if err != nil {
		return nil, err
	}
	return []types.Agent{chatAgent, researchAgent, editingAgent, orgAgent, weatherAgent, formatter}, nil
}

// recoverTransport resets the transport-backed stores after a
// "connection is closed" failure and forces re-initialization on the
// next attempt.
func (o *Orchestrator) recoverTransport(ctx context.Context) error {
	if err := o.cfg.Saver.Reset(ctx); err != nil {
		return fmt.Errorf("reset checkpoint store: %w", err)
	}
	if o.cfg.Tools != nil {
		if err := o.cfg.Tools.Reset(ctx); err != nil {
			return fmt.Errorf("reset tool client: %w", err)
		}
	}
	o.mu.Lock()
	o.initialized = false
	o.mu.Unlock()
	return nil
}

// Close stops the alias watcher and releases the registry. The saver and
// tool client belong to the caller.
func (o *Orchestrator) Close() error {
	o.watchCancel()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.registry != nil {
		return o.registry.Close()
	}
	return nil
}
