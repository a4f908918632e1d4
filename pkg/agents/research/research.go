// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package research implements the full research agent, a five-stage
// workflow: quick-answer short circuit, conversation-cache lookup,
// parallel local+web round 1, gap-driven round 2, and synthesis. Every
// stage checkpoints, so a turn can pause for web-search approval and
// resume exactly where it stopped.
package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/observability"
	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Name is the registry name this agent serves under.
const Name = agent.NameResearch

// State extension keys the workflow adds on top of the base set.
const (
	keyOriginalUserQuery     = "original_user_query"
	keyExpandedQueries       = "expanded_queries"
	keyKeyEntities           = "key_entities"
	keyQuickAnswerProvided   = "quick_answer_provided"
	keyQuickAnswerContent    = "quick_answer_content"
	keySkipQuickAnswer       = "skip_quick_answer"
	keyCurrentRound          = "current_round"
	keyCacheHit              = "cache_hit"
	keyCachedContext         = "cached_context"
	keyRound1Results         = "round1_results"
	keyRound1Error           = "round1_error"
	keyRound1Sufficient      = "round1_sufficient"
	keyRound1Assessment      = "round1_assessment"
	keyGapAnalysis           = "gap_analysis"
	keyIdentifiedGaps        = "identified_gaps"
	keyRound2Results         = "round2_results"
	keyRound2Sufficient      = "round2_sufficient"
	keyWebRound1Results      = "web_round1_results"
	keyWebRound1Error        = "web_round1_error"
	keyWebRound1Sufficient   = "web_round1_sufficient"
	keyWebRound1Assessment   = "web_round1_assessment"
	keyWebGapAnalysis        = "web_gap_analysis"
	keyWebIdentifiedGaps     = "web_identified_gaps"
	keyWebRound2Results      = "web_round2_results"
	keyWebPermissionGranted  = "web_permission_granted"
	keyQueryType             = "query_type"
	keyQueryTypeDetection    = "query_type_detection"
	keyShouldPresentOptions  = "should_present_options"
	keyNumOptions            = "num_options"
	keyFinalResponse         = "final_response"
	keyCitations             = "citations"
	keySourcesUsed           = "sources_used"
	keyResearchComplete      = "research_complete"
	keyRoutingRecommendation = "routing_recommendation"
)

// Round tags name the stage for checkpoints and telemetry.
const (
	roundQuickAnswerCheck = "quick_answer_check"
	roundCacheCheck       = "cache_check"
	roundInitialLocal     = "initial_local"
	roundTwoGapFilling    = "round_2_gap_filling"
	roundWebOne           = "web_round_1"
	roundAssessWebOne     = "assess_web_round_1"
	roundGapAnalysisWeb   = "gap_analysis_web"
	roundWebTwo           = "web_round_2"
	roundFinalSynthesis   = "final_synthesis"
)

// Workflow tunables.
const (
	cacheFreshnessHours  = 24
	expansionVariations  = 3
	localSearchLimit     = 10
	round1WebMaxResults  = 10
	round2WebMaxResults  = 5
	maxGapQueries        = 3
	round2SufficientLen  = 100
	crawlTopURLs         = 3
	crawlPageTrim        = 2000
	assessTrim           = 1500
	synthLocalR1Trim     = 2000
	synthLocalR2Trim     = 1500
	synthWebR1Trim       = 2000
	synthWebR2Trim       = 1500
	defaultSearchWorkers = 4
	synthesisTemperature = 0.3
)

// quickAnswerOffer is appended to every quick answer so the user can ask
// for the full pass.
const quickAnswerOffer = "Want me to dig deeper? Say yes and I'll run a full research pass."

// webApprovalAsk is the permission prompt when a paused turn waits on
// web-search approval.
const webApprovalAsk = "Local documents didn't fully cover this. May I search the web to fill the gaps?"

// SearchService is the slice of the tool client the workflow needs.
type SearchService interface {
	SearchConversationCache(ctx context.Context, query, conversationID string, freshnessHours int, userID string) (*toolservice.ConversationCacheResponse, error)
	ExpandQuery(ctx context.Context, query string, numVariations int, userID, conversationContext string) (*toolservice.ExpandQueryResponse, error)
	SearchDocuments(ctx context.Context, req *toolservice.SearchDocumentsRequest) (*toolservice.SearchDocumentsResponse, error)
	SearchWeb(ctx context.Context, query string, maxResults int, userID string) ([]toolservice.WebResult, error)
	CrawlWebContent(ctx context.Context, urls []string, userID string) ([]toolservice.CrawledPage, error)
}

// Config carries the agent's dependencies.
type Config struct {
	Research  config.ResearchConfig
	Provider  types.LLMProvider
	Tools     SearchService
	Formatter types.Agent
	Saver     graph.Checkpointer
	Tracer    observability.Tracer
	Logger    *zap.Logger
}

// Agent runs the research workflow.
type Agent struct {
	cfg       config.ResearchConfig
	provider  types.LLMProvider
	tools     SearchService
	formatter types.Agent
	workflow  *graph.Runnable
	tracer    observability.Tracer
	logger    *zap.Logger
}

// New builds the research agent and compiles its graph.
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
		cfg:       cfg.Research,
		provider:  cfg.Provider,
		tools:     cfg.Tools,
		formatter: cfg.Formatter,
		tracer:    tracer,
		logger:    logger,
	}

	opts := graph.CompileOptions{Checkpointer: cfg.Saver}
	if cfg.Research.HITLWebSearch {
		opts.InterruptBefore = []string{"web_round1"}
	}

	wf, err := graph.NewStateGraph().
		AddNode("quick_answer_check", a.quickAnswerCheck).
		AddNode("cache_check", a.cacheCheck).
		AddNode("query_expansion", a.queryExpansion).
		AddNode("round1_parallel_search", a.round1ParallelSearch).
		AddNode("assess_combined_round1", a.assessCombinedRound1).
		AddNode("gap_analysis", a.gapAnalysisLocal).
		AddNode("round2_gap_filling", a.round2GapFilling).
		AddNode("web_round1", a.webRound1).
		AddNode("assess_web_round1", a.assessWebRound1).
		AddNode("gap_analysis_web", a.gapAnalysisWeb).
		AddNode("web_round2", a.webRound2).
		AddNode("detect_query_type", a.detectQueryType).
		AddNode("final_synthesis", a.finalSynthesis).
		AddNode("format_data", a.formatData).
		SetEntryPoint("quick_answer_check").
		AddConditionalEdges("quick_answer_check", routeQuickAnswer, map[string]string{
			"quick_answer":  graph.End,
			"full_research": "cache_check",
		}).
		AddConditionalEdges("cache_check", routeCache, map[string]string{
			"use_cache":   "detect_query_type",
			"do_research": "query_expansion",
		}).
		AddEdge("query_expansion", "round1_parallel_search").
		AddEdge("round1_parallel_search", "assess_combined_round1").
		AddConditionalEdges("assess_combined_round1", routeRound1Assessment, map[string]string{
			"sufficient":        "detect_query_type",
			"needs_gap_filling": "gap_analysis",
			"needs_web_round2":  "web_round2",
		}).
		AddConditionalEdges("gap_analysis", routeGapAnalysis, map[string]string{
			"round2_local": "round2_gap_filling",
			"needs_web":    "web_round1",
		}).
		AddConditionalEdges("round2_gap_filling", routeRound2, map[string]string{
			"sufficient": "detect_query_type",
			"needs_web":  "web_round1",
		}).
		AddEdge("web_round1", "assess_web_round1").
		AddConditionalEdges("assess_web_round1", routeWebAssessment, map[string]string{
			"sufficient":             "detect_query_type",
			"needs_web_gap_analysis": "gap_analysis_web",
		}).
		AddConditionalEdges("gap_analysis_web", routeWebGapAnalysis, map[string]string{
			"web_round2": "web_round2",
			"sufficient": "detect_query_type",
		}).
		AddEdge("web_round2", "detect_query_type").
		AddEdge("detect_query_type", "final_synthesis").
		AddConditionalEdges("final_synthesis", routeSynthesis, map[string]string{
			"format":   "format_data",
			"complete": graph.End,
		}).
		AddEdge("format_data", graph.End).
		Compile(opts)
	if err != nil {
		return nil, fmt.Errorf("compile research workflow: %w", err)
	}
	a.workflow = wf
	return a, nil
}

// Name implements types.Agent.
func (a *Agent) Name() string { return Name }

// Execute implements types.Agent. It seeds the turn state, handles the
// quick-answer follow-up detection, runs the graph, and converts a
// web-search interrupt into a permission_required result.
func (a *Agent) Execute(ctx context.Context, req *types.AgentRequest) (*types.AgentResult, error) {
	ctx, span := a.tracer.StartSpan(ctx, "agent.research")
	defer a.tracer.EndSpan(span)

	sm := req.SharedMemory
	if sm == nil {
		sm = types.NewSharedMemory()
	}
	sm.ToolAnalysis = analyzeToolNeeds(req.Query)

	cfg := agent.RunConfigFor(req.Metadata)

	state := (&types.WorkflowState{
		Messages:     req.History,
		UserID:       req.UserID,
		Query:        req.Query,
		SharedMemory: sm,
		Metadata:     req.Metadata,
	}).ToMap()
	agent.ResetUsage(state)
	state[keySkipQuickAnswer] = a.shouldSkipQuickAnswer(ctx, cfg, req.Query)

	final, err := a.workflow.Invoke(ctx, state, cfg)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("research workflow: %w", err)
	}

	if pending := graph.Interrupted(final); len(pending) > 0 {
		return a.pendingResult(ctx, cfg, final, pending)
	}

	res := agent.ResultFrom(Name, final)
	if res.Response == "" {
		res.Response = types.AsString(final[keyFinalResponse])
	}
	res.AgentResults = map[string]any{
		"research_complete":      types.AsBool(final[keyResearchComplete]),
		"cache_hit":              types.AsBool(final[keyCacheHit]),
		"current_round":          types.AsString(final[keyCurrentRound]),
		"query_type":             types.AsString(final[keyQueryType]),
		"sources_used":           types.AsStringSlice(final[keySourcesUsed]),
		"citations":              types.AsStringSlice(final[keyCitations]),
		"routing_recommendation": types.AsString(final[keyRoutingRecommendation]),
	}
	span.SetAttribute("current_round", types.AsString(final[keyCurrentRound]))
	span.SetAttribute("cache_hit", types.AsBool(final[keyCacheHit]))
	return res, nil
}

// shouldSkipQuickAnswer implements the follow-up detection: when the
// previous turn ended with a quick answer and this message is a short
// affirmation, the workflow goes straight to full research.
func (a *Agent) shouldSkipQuickAnswer(ctx context.Context, cfg graph.RunConfig, query string) bool {
	if a.cfg.SkipQuickAnswer {
		return true
	}
	snap, err := a.workflow.GetState(ctx, cfg)
	if err != nil || snap == nil {
		return false
	}
	return types.AsBool(snap.Values[keyQuickAnswerProvided]) && IsAffirmative(query)
}

// pendingResult converts a web-search interrupt into a turn result that
// asks the user for approval. The pending permission is persisted into
// the paused checkpoint so a later grant merges onto it.
func (a *Agent) pendingResult(ctx context.Context, cfg graph.RunConfig, final graph.State, pending []string) (*types.AgentResult, error) {
	sm := types.AsSharedMemory(final[types.StateKeySharedMemory])
	sm.WebSearchPermission = types.PermissionPending
	sm.LastAgent = Name
	sm.LastResponse = webApprovalAsk

	if err := a.workflow.UpdateState(ctx, cfg, graph.State{types.StateKeySharedMemory: sm}); err != nil {
		return nil, fmt.Errorf("persist pending web permission: %w", err)
	}
	a.logger.Info("research paused for web-search approval",
		zap.String("thread_id", cfg.ThreadID),
		zap.Strings("pending", pending))

	return &types.AgentResult{
		Response:     webApprovalAsk,
		TaskStatus:   types.TaskStatusPermissionRequired,
		AgentName:    Name,
		SharedMemory: sm,
		Usage:        agent.UsageFrom(final),
	}, nil
}

// CancelPending abandons a paused web-search approval so the thread's
// next turn starts from the entry point. No-op when nothing is paused.
func (a *Agent) CancelPending(ctx context.Context, cfg graph.RunConfig) error {
	return a.workflow.CancelPending(ctx, cfg)
}

// affirmativeWords match a whole token of a short reply.
var affirmativeWords = []string{"yes", "y", "ok", "okay", "sure", "proceed"}

// affirmativePhrases match anywhere in a short reply.
var affirmativePhrases = []string{
	"search more", "deeper search", "more information",
	"find more", "tell me more", "search deeper",
}

// affirmativeLongForms match regardless of message length.
var affirmativeLongForms = []string{
	"do a deeper search", "dig deeper", "go deeper", "run a full research",
}

// IsAffirmative reports whether a message reads as a go-ahead: a short
// reply (at most five tokens) built around an agreement word or phrase,
// or an explicit deeper-search request of any length. The orchestrator
// uses the same heuristic when resuming a paused web-search approval.
func IsAffirmative(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "" {
		return false
	}
	for _, p := range affirmativeLongForms {
		if strings.Contains(lower, p) {
			return true
		}
	}
	tokens := strings.Fields(lower)
	if len(tokens) > 5 {
		return false
	}
	for _, p := range affirmativePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,!?:;")
		for _, w := range affirmativeWords {
			if tok == w {
				return true
			}
		}
	}
	return false
}

// analyzeToolNeeds categorizes the query into the tools the turn is
// likely to need. Search tools are always core for research; extras are
// keyword-gated. The set is telemetry for downstream tuning; the graph
// itself decides what actually runs.
func analyzeToolNeeds(query string) *types.ToolAnalysis {
	lower := strings.ToLower(query)
	analysis := &types.ToolAnalysis{
		CoreTools: []string{"search_documents", "expand_query", "search_web", "crawl_web_content"},
	}
	if containsAny(lower, "weather", "temperature outside", "forecast", "rain") {
		analysis.ConditionalTools = append(analysis.ConditionalTools, "get_weather")
	}
	if containsAny(lower, "who is", "company", "organization", "person named") {
		analysis.ConditionalTools = append(analysis.ConditionalTools, "search_entities")
	}
	if containsAny(lower, "chart", "graph", "plot", "visualiz") {
		analysis.ConditionalTools = append(analysis.ConditionalTools, "create_chart")
	}
	if containsAny(lower, "image", "picture", "draw") {
		analysis.ConditionalTools = append(analysis.ConditionalTools, "generate_image")
	}
	return analysis
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// originalQuery returns the query the research started from. Resumed
// turns overwrite the base query key with the approval message, so web
// rounds search the original.
func originalQuery(state graph.State) string {
	if q := types.AsString(state[keyOriginalUserQuery]); q != "" {
		return q
	}
	return types.AsString(state[types.StateKeyQuery])
}

// sharedMemoryOf pulls the typed shared memory out of state, never nil.
func sharedMemoryOf(state graph.State) *types.SharedMemory {
	if v, ok := state[types.StateKeySharedMemory]; ok {
		return types.AsSharedMemory(v)
	}
	return types.NewSharedMemory()
}
