// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package research

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

// quickAnswer is the model's verdict on whether the query needs research
// at all.
type quickAnswer struct {
	CanAnswerQuickly bool    `json:"can_answer_quickly"`
	Confidence       float64 `json:"confidence"`
	QuickAnswer      string  `json:"quick_answer"`
	Reasoning        string  `json:"reasoning"`
}

const quickAnswerSchema = `{
	"type": "object",
	"properties": {
		"can_answer_quickly": {"type": "boolean"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"quick_answer": {"type": ["string", "null"]},
		"reasoning": {"type": "string"}
	},
	"required": ["can_answer_quickly"]
}`

// quickAnswerCheck short-circuits queries the model can answer from
// general knowledge. A parse failure falls through to full research.
func (a *Agent) quickAnswerCheck(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	out := graph.State{
		keyCurrentRound:        roundQuickAnswerCheck,
		keyResearchComplete:    false,
		keyQuickAnswerProvided: false,
	}

	// A go-ahead after a quick answer keeps researching the question that
	// produced it; any other message starts a fresh research target.
	followUp := types.AsBool(state[keyQuickAnswerProvided]) &&
		types.AsString(state[keyOriginalUserQuery]) != "" &&
		IsAffirmative(ws.Query)
	if !followUp {
		out[keyOriginalUserQuery] = ws.Query
	}

	if types.AsBool(state[keySkipQuickAnswer]) {
		return out, nil
	}

	persona := agent.PersonaFromMetadata(ws.Metadata)
	opts := agent.ChatOptionsFor(ws.Metadata).WithTemperature(0)
	opts.System = agent.DatetimeContext(persona.Timezone) + heredoc.Docf(`
		You are %s. Decide whether the question below can be answered
		directly from general knowledge without searching documents or the
		web. Set can_answer_quickly only when you are confident the answer
		is stable, factual, and complete on its own.
	`, persona.AIName)

	prompt := heredoc.Docf(`
		Question: %s

		Output format:
		{"can_answer_quickly": true, "confidence": 0.0, "quick_answer": "..." , "reasoning": "..."}

		Set quick_answer to null when can_answer_quickly is false.
	`, ws.Query)

	var qa quickAnswer
	resp, err := llm.ChatStructured(ctx, a.provider, []types.Message{types.UserMessage(prompt)}, &opts, quickAnswerSchema, &qa)
	if resp != nil {
		agent.AccumulateUsage(state, out, resp.Usage)
	}
	if err != nil {
		// Conservative fallback: proceed to full research.
		a.logger.Warn("quick-answer check degraded to full research", zap.Error(err))
		a.tracer.RecordMetric("research.quick_answer.fallback", 1, map[string]string{"reason": "parse"})
		return out, nil
	}

	if qa.CanAnswerQuickly && strings.TrimSpace(qa.QuickAnswer) != "" {
		final := strings.TrimSpace(qa.QuickAnswer) + "\n\n" + quickAnswerOffer
		sm := sharedMemoryOf(state)
		sm.PrimaryAgentSelected = Name
		sm.LastAgent = Name
		sm.LastResponse = final

		out[keyQuickAnswerProvided] = true
		out[keyQuickAnswerContent] = qa.QuickAnswer
		out[keyFinalResponse] = final
		out[keyResearchComplete] = true
		out[types.StateKeyResponse] = final
		out[types.StateKeyTaskStatus] = string(types.TaskStatusCompleted)
		out[types.StateKeySharedMemory] = sm
	}
	return out, nil
}

func routeQuickAnswer(state graph.State) string {
	if types.AsBool(state[keyQuickAnswerProvided]) {
		return "quick_answer"
	}
	return "full_research"
}

// cacheCheck looks for fresh research already done in this conversation.
// A hit routes straight to synthesis with no new I/O.
func (a *Agent) cacheCheck(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)

	rec := toolservice.NewRecorder()
	resp, err := a.tools.SearchConversationCache(
		toolservice.WithRecorder(ctx, rec),
		originalQuery(state), ws.Metadata[agent.MetaConversationID], cacheFreshnessHours, ws.UserID)
	if err != nil {
		return nil, fmt.Errorf("conversation cache lookup: %w", err)
	}
	agent.RecordTools(sm, rec.Ops())

	out := graph.State{
		keyCurrentRound:            roundCacheCheck,
		keyCacheHit:                false,
		keyCachedContext:           "",
		types.StateKeySharedMemory: sm,
	}
	if resp.CacheHit && len(resp.Entries) > 0 {
		lines := make([]string, 0, len(resp.Entries))
		for _, e := range resp.Entries {
			name := e.AgentName
			if name == "" {
				name = "unknown"
			}
			lines = append(lines, fmt.Sprintf("[%s]: %s", name, e.Content))
		}
		out[keyCacheHit] = true
		out[keyCachedContext] = strings.Join(lines, "\n")
	}
	return out, nil
}

func routeCache(state graph.State) string {
	if types.AsBool(state[keyCacheHit]) {
		return "use_cache"
	}
	return "do_research"
}

// queryExpansion asks the backend for query variations and resets the
// round keys so a fresh pass never mixes in a previous turn's results.
func (a *Agent) queryExpansion(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)
	query := originalQuery(state)

	conversationContext := ""
	if sm.LastResponse != "" {
		conversationContext = clip(sm.LastResponse, 300)
	}

	rec := toolservice.NewRecorder()
	resp, err := a.tools.ExpandQuery(
		toolservice.WithRecorder(ctx, rec), query, expansionVariations, ws.UserID, conversationContext)
	if err != nil {
		return nil, fmt.Errorf("query expansion: %w", err)
	}
	agent.RecordTools(sm, rec.Ops())

	expanded := resp.ExpandedQueries
	if !containsString(expanded, query) {
		expanded = append([]string{query}, expanded...)
	}
	entities := resp.KeyEntities
	if entities == nil {
		entities = []string{}
	}

	return graph.State{
		keyExpandedQueries:         expanded,
		keyKeyEntities:             entities,
		keyRound1Results:           "",
		keyRound1Error:             "",
		keyRound1Assessment:        nil,
		keyGapAnalysis:             nil,
		keyIdentifiedGaps:          []string{},
		keyRound2Results:           "",
		keyRound2Sufficient:        false,
		keyWebRound1Results:        "",
		keyWebRound1Error:          "",
		keyWebRound1Assessment:     nil,
		keyWebGapAnalysis:          nil,
		keyWebIdentifiedGaps:       []string{},
		keyWebRound2Results:        "",
		keyCitations:               []string{},
		keySourcesUsed:             []string{},
		types.StateKeySharedMemory: sm,
	}, nil
}

// round1ParallelSearch fans out the local and web branches and waits for
// both. A branch failure stores an error field and empty results instead
// of failing the turn; assessment then degrades to the surviving source.
// When web search sits behind an approval gate and is not yet granted,
// only the local branch runs.
func (a *Agent) round1ParallelSearch(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)
	query := originalQuery(state)

	expanded := types.AsStringSlice(state[keyExpandedQueries])
	if len(expanded) == 0 {
		expanded = []string{query}
	}
	if len(expanded) > 3 {
		expanded = expanded[:3]
	}

	webAllowed := !a.hitlGated() || sm.WebSearchPermission == types.PermissionGranted

	rec := toolservice.NewRecorder()
	cctx := toolservice.WithRecorder(ctx, rec)

	var (
		wg         sync.WaitGroup
		local, web string
		citations  []string
		localErr   error
		webErr     error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		local, localErr = a.searchLocal(cctx, expanded, ws.UserID)
	}()
	if webAllowed {
		wg.Add(1)
		go func() {
			defer wg.Done()
			web, citations, webErr = a.searchAndCrawl(cctx, query, round1WebMaxResults, ws.UserID)
		}()
	}
	wg.Wait()

	agent.RecordTools(sm, rec.Ops())

	out := graph.State{
		keyCurrentRound:            roundInitialLocal,
		keyRound1Results:           local,
		keyWebRound1Results:        web,
		keyCitations:               mergeCitations(state, citations),
		types.StateKeySharedMemory: sm,
	}
	if localErr != nil {
		a.logger.Warn("round-1 local search failed", zap.Error(localErr))
		out[keyRound1Error] = localErr.Error()
		out[keyRound1Results] = ""
	}
	if webErr != nil {
		a.logger.Warn("round-1 web search failed", zap.Error(webErr))
		out[keyWebRound1Error] = webErr.Error()
		out[keyWebRound1Results] = ""
	}
	return out, nil
}

// round2GapFilling re-searches local documents with the gap queries.
func (a *Agent) round2GapFilling(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)

	gaps := types.AsStringSlice(state[keyIdentifiedGaps])
	if len(gaps) == 0 {
		gaps = []string{originalQuery(state)}
	}
	if len(gaps) > maxGapQueries {
		gaps = gaps[:maxGapQueries]
	}

	rec := toolservice.NewRecorder()
	results, err := a.searchLocal(toolservice.WithRecorder(ctx, rec), gaps, ws.UserID)
	if err != nil {
		return nil, fmt.Errorf("round-2 gap filling: %w", err)
	}
	agent.RecordTools(sm, rec.Ops())

	return graph.State{
		keyCurrentRound:            roundTwoGapFilling,
		keyRound2Results:           results,
		keyRound2Sufficient:        len(results) > round2SufficientLen,
		types.StateKeySharedMemory: sm,
	}, nil
}

func routeRound2(state graph.State) string {
	if types.AsBool(state[keyRound2Sufficient]) {
		return "sufficient"
	}
	return "needs_web"
}

// webRound1 runs the first dedicated web pass. Reaching this node means
// any approval gate has been passed.
func (a *Agent) webRound1(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)

	rec := toolservice.NewRecorder()
	content, citations, err := a.searchAndCrawl(
		toolservice.WithRecorder(ctx, rec), originalQuery(state), round1WebMaxResults, ws.UserID)
	if err != nil {
		return nil, fmt.Errorf("web round 1: %w", err)
	}
	agent.RecordTools(sm, rec.Ops())

	return graph.State{
		keyCurrentRound:            roundWebOne,
		keyWebRound1Results:        content,
		keyWebPermissionGranted:    true,
		keyCitations:               mergeCitations(state, citations),
		types.StateKeySharedMemory: sm,
	}, nil
}

// webRound2 targets the top web gap query.
func (a *Agent) webRound2(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)

	query := originalQuery(state)
	if gaps := types.AsStringSlice(state[keyWebIdentifiedGaps]); len(gaps) > 0 {
		query = gaps[0]
	}

	rec := toolservice.NewRecorder()
	content, citations, err := a.searchAndCrawl(
		toolservice.WithRecorder(ctx, rec), query, round2WebMaxResults, ws.UserID)
	if err != nil {
		return nil, fmt.Errorf("web round 2: %w", err)
	}
	agent.RecordTools(sm, rec.Ops())

	return graph.State{
		keyCurrentRound:            roundWebTwo,
		keyWebRound2Results:        content,
		keyCitations:               mergeCitations(state, citations),
		types.StateKeySharedMemory: sm,
	}, nil
}

// searchLocal runs each query against the document index, capped by the
// configured worker count, and concatenates the rendered hits. Partial
// results survive a failing query; the first error is reported alongside.
func (a *Agent) searchLocal(ctx context.Context, queries []string, userID string) (string, error) {
	workers := a.cfg.MaxSearchWorkers
	if workers <= 0 {
		workers = defaultSearchWorkers
	}
	sem := make(chan struct{}, workers)

	results := make([]string, len(queries))
	errs := make([]error, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					errs[i] = fmt.Errorf("search worker panic: %v", rec)
				}
			}()
			sem <- struct{}{}
			defer func() { <-sem }()

			resp, err := a.tools.SearchDocuments(ctx, &toolservice.SearchDocumentsRequest{
				Query:  q,
				UserID: userID,
				Limit:  localSearchLimit,
			})
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = renderDocumentHits(resp.Results)
		}(i, q)
	}
	wg.Wait()

	var b strings.Builder
	for _, r := range results {
		if r != "" {
			b.WriteString(r)
		}
	}
	for _, err := range errs {
		if err != nil {
			return b.String(), err
		}
	}
	return b.String(), nil
}

// searchAndCrawl composes a web search with a crawl of the top hits,
// returning one research blob plus the crawled URLs for citations.
func (a *Agent) searchAndCrawl(ctx context.Context, query string, maxResults int, userID string) (string, []string, error) {
	results, err := a.tools.SearchWeb(ctx, query, maxResults, userID)
	if err != nil {
		return "", nil, err
	}
	if len(results) == 0 {
		return "", nil, nil
	}

	var b strings.Builder
	urls := make([]string, 0, crawlTopURLs)
	for i, r := range results {
		fmt.Fprintf(&b, "[%s](%s)\n%s\n\n", r.Title, r.URL, r.Snippet)
		if i < crawlTopURLs && r.URL != "" {
			urls = append(urls, r.URL)
		}
	}

	pages, err := a.tools.CrawlWebContent(ctx, urls, userID)
	if err != nil {
		return "", nil, err
	}
	cited := make([]string, 0, len(pages))
	for _, p := range pages {
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", p.URL, clip(p.Content, crawlPageTrim))
		cited = append(cited, p.URL)
	}
	return b.String(), cited, nil
}

// hitlGated reports whether the web branch waits for user approval.
func (a *Agent) hitlGated() bool { return a.cfg.HITLWebSearch }

func renderDocumentHits(hits []toolservice.DocumentHit) string {
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "### %s (%s)\n%s\n\n", h.Title, h.Filename, h.ContentPreview)
	}
	return b.String()
}

func mergeCitations(state graph.State, fresh []string) []string {
	existing := types.AsStringSlice(state[keyCitations])
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(fresh))
	for _, u := range existing {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, u := range fresh {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// clip truncates s to at most n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
