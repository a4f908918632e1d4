// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Canned structured responses keyed by the workflow stage that asks for
// them.
const (
	quickYes = `{"can_answer_quickly": true, "confidence": 0.9, "quick_answer": "Paris is the capital of France.", "reasoning": "general knowledge"}`
	quickNo  = `{"can_answer_quickly": false, "confidence": 0.2, "quick_answer": null, "reasoning": "needs research"}`

	assessSufficient   = `{"sufficient": true, "has_relevant_info": true, "confidence": 0.9, "missing_info": [], "reasoning": "covered", "best_source": "both", "needs_more_local": false, "needs_more_web": false}`
	assessInsufficient = `{"sufficient": false, "has_relevant_info": true, "confidence": 0.4, "missing_info": ["market pricing"], "reasoning": "gaps remain", "best_source": "local", "needs_more_local": true, "needs_more_web": false}`

	gapNeedsWeb = `{"missing_entities": [], "suggested_queries": ["competitor pricing 2026"], "needs_web_search": true, "gap_severity": "severe", "reasoning": "local corpus lacks market data"}`

	typeObjective  = `{"query_type": "objective", "confidence": 0.9, "should_present_options": false, "num_options": null, "reasoning": "factual"}`
	typeSubjective = `{"query_type": "subjective", "confidence": 0.8, "should_present_options": true, "num_options": 2, "reasoning": "preference"}`
)

// scriptedProvider answers each structured call by matching the prompt's
// output-format marker, so one fake drives every stage of the workflow.
type scriptedProvider struct {
	mu sync.Mutex

	quickJSON     string
	assessJSON    string
	webAssessJSON string
	gapJSON       string
	queryTypeJSON string
	formatJSON    string
	synthesisText string

	calls   int
	prompts []string
}

func (p *scriptedProvider) Chat(_ context.Context, msgs []types.Message, _ *types.ChatOptions) (*types.LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	prompt := msgs[len(msgs)-1].Content
	p.prompts = append(p.prompts, prompt)

	content := p.synthesisText
	switch {
	case strings.Contains(prompt, `"can_answer_quickly"`):
		content = p.quickJSON
	case strings.Contains(prompt, "WEB CONTENT:"):
		content = p.webAssessJSON
		if content == "" {
			content = p.assessJSON
		}
	case strings.Contains(prompt, `"best_source"`):
		content = p.assessJSON
	case strings.Contains(prompt, `"gap_severity"`):
		content = p.gapJSON
	case strings.Contains(prompt, `"query_type"`):
		content = p.queryTypeJSON
	case strings.Contains(prompt, `"needs_formatting"`):
		content = p.formatJSON
	}
	return &types.LLMResponse{
		Content: content,
		Usage:   types.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}, nil
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-model" }

func (p *scriptedProvider) lastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[len(p.prompts)-1]
}

// fakeTools scripts the backend search surface and mimics the real
// client's recorder hook so tool use lands in shared memory.
type fakeTools struct {
	mu sync.Mutex

	cacheResp  *toolservice.ConversationCacheResponse
	expandResp *toolservice.ExpandQueryResponse
	docHits    []toolservice.DocumentHit
	webResults []toolservice.WebResult
	crawled    []toolservice.CrawledPage
	webErr     error

	cacheCalls  int
	expandCalls int
	docQueries  []string
	webQueries  []string
	crawlCalls  int
}

func (f *fakeTools) SearchConversationCache(ctx context.Context, _, _ string, _ int, _ string) (*toolservice.ConversationCacheResponse, error) {
	f.mu.Lock()
	f.cacheCalls++
	f.mu.Unlock()
	toolservice.RecorderFrom(ctx).Record("search_conversation_cache")
	if f.cacheResp != nil {
		return f.cacheResp, nil
	}
	return &toolservice.ConversationCacheResponse{}, nil
}

func (f *fakeTools) ExpandQuery(ctx context.Context, query string, _ int, _, _ string) (*toolservice.ExpandQueryResponse, error) {
	f.mu.Lock()
	f.expandCalls++
	f.mu.Unlock()
	toolservice.RecorderFrom(ctx).Record("expand_query")
	if f.expandResp != nil {
		return f.expandResp, nil
	}
	return &toolservice.ExpandQueryResponse{
		OriginalQuery:   query,
		ExpandedQueries: []string{query, query + " details"},
		ExpansionCount:  2,
	}, nil
}

func (f *fakeTools) SearchDocuments(ctx context.Context, req *toolservice.SearchDocumentsRequest) (*toolservice.SearchDocumentsResponse, error) {
	f.mu.Lock()
	f.docQueries = append(f.docQueries, req.Query)
	f.mu.Unlock()
	toolservice.RecorderFrom(ctx).Record("search_documents")
	return &toolservice.SearchDocumentsResponse{Results: f.docHits, TotalCount: len(f.docHits)}, nil
}

func (f *fakeTools) SearchWeb(ctx context.Context, query string, _ int, _ string) ([]toolservice.WebResult, error) {
	f.mu.Lock()
	f.webQueries = append(f.webQueries, query)
	f.mu.Unlock()
	if f.webErr != nil {
		return nil, f.webErr
	}
	toolservice.RecorderFrom(ctx).Record("search_web")
	return f.webResults, nil
}

func (f *fakeTools) CrawlWebContent(ctx context.Context, _ []string, _ string) ([]toolservice.CrawledPage, error) {
	f.mu.Lock()
	f.crawlCalls++
	f.mu.Unlock()
	toolservice.RecorderFrom(ctx).Record("crawl_web_content")
	return f.crawled, nil
}

func (f *fakeTools) searchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expandCalls + len(f.docQueries) + len(f.webQueries) + f.crawlCalls
}

func newTestAgent(t *testing.T, rc config.ResearchConfig, provider types.LLMProvider, tools SearchService, saver graph.Checkpointer) *Agent {
	t.Helper()
	a, err := New(Config{
		Research: rc,
		Provider: provider,
		Tools:    tools,
		Saver:    saver,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return a
}

func testRequest(query string) *types.AgentRequest {
	return &types.AgentRequest{
		Query:  query,
		UserID: "u1",
		Metadata: map[string]string{
			agent.MetaUserID:         "u1",
			agent.MetaConversationID: "c1",
		},
	}
}

func TestResearch_QuickAnswerShortCircuit(t *testing.T) {
	provider := &scriptedProvider{quickJSON: quickYes}
	tools := &fakeTools{}
	a := newTestAgent(t, config.ResearchConfig{}, provider, tools, graph.NewMemorySaver())

	res, err := a.Execute(context.Background(), testRequest("What is the capital of France?"))
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Equal(t, "Paris is the capital of France.\n\n"+quickAnswerOffer, res.Response)
	assert.Equal(t, true, res.AgentResults["research_complete"])

	// A quick answer ends the turn before any backend tool runs.
	assert.Equal(t, 0, tools.cacheCalls)
	assert.Equal(t, 0, tools.searchCalls())

	require.NotNil(t, res.SharedMemory)
	assert.Equal(t, Name, res.SharedMemory.PrimaryAgentSelected)
	assert.Equal(t, 15, res.Usage.TotalTokens)
}

func TestResearch_AffirmativeFollowUpRunsFullPass(t *testing.T) {
	provider := &scriptedProvider{
		quickJSON:     quickYes,
		assessJSON:    assessSufficient,
		queryTypeJSON: typeObjective,
		synthesisText: "Full findings on the capital.",
	}
	tools := &fakeTools{
		docHits:    []toolservice.DocumentHit{{Title: "Trip notes", Filename: "trip.md", ContentPreview: "notes about Paris"}},
		webResults: []toolservice.WebResult{{Title: "City guide", URL: "https://example.com/paris", Snippet: "about Paris"}},
		crawled:    []toolservice.CrawledPage{{URL: "https://example.com/paris", Content: "long-form city content"}},
	}
	saver := graph.NewMemorySaver()
	a := newTestAgent(t, config.ResearchConfig{}, provider, tools, saver)

	first, err := a.Execute(context.Background(), testRequest("What is the capital of France?"))
	require.NoError(t, err)
	require.Contains(t, first.Response, quickAnswerOffer)

	req := testRequest("yes, do a deeper search")
	req.SharedMemory = first.SharedMemory
	res, err := a.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Equal(t, "Full findings on the capital.", res.Response)

	// The full pass researches the question that produced the quick
	// answer, not the literal go-ahead message.
	assert.Equal(t, 1, tools.cacheCalls)
	assert.Equal(t, 1, tools.expandCalls)
	assert.ElementsMatch(t,
		[]string{"What is the capital of France?", "What is the capital of France? details"},
		tools.docQueries)
	assert.Equal(t, []string{"What is the capital of France?"}, tools.webQueries)
	assert.Equal(t, 1, tools.crawlCalls)

	assert.Equal(t, "final_synthesis", res.AgentResults["current_round"])
	assert.ElementsMatch(t, []string{"initial_local", "web_round_1"}, res.AgentResults["sources_used"])
	assert.Contains(t, res.AgentResults["citations"], "https://example.com/paris")

	require.NotNil(t, res.SharedMemory)
	for _, op := range []string{"search_conversation_cache", "expand_query", "search_documents", "search_web", "crawl_web_content"} {
		assert.Contains(t, res.SharedMemory.PreviousToolsUsed, op)
	}

	// Assess, query-type, synthesis: the turn's own three calls only.
	assert.Equal(t, 45, res.Usage.TotalTokens)
}

func TestResearch_SubjectiveQueryPresentsOptions(t *testing.T) {
	provider := &scriptedProvider{
		quickJSON:     quickNo,
		assessJSON:    assessSufficient,
		queryTypeJSON: typeSubjective,
		synthesisText: "## Option 1: Trail runner\nGrippy.\n\n## Option 2: Road shoe\nLight.",
	}
	tools := &fakeTools{
		docHits: []toolservice.DocumentHit{{Title: "Gear log", Filename: "gear.md", ContentPreview: "shoe reviews"}},
	}
	a := newTestAgent(t, config.ResearchConfig{}, provider, tools, graph.NewMemorySaver())

	res, err := a.Execute(context.Background(), testRequest("What running shoes should I buy?"))
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Contains(t, res.Response, "## Option 1:")
	assert.Contains(t, res.Response, "## Option 2:")
	assert.Equal(t, "subjective", res.AgentResults["query_type"])
	assert.Contains(t, provider.lastPrompt(), "exactly 2")
}

func TestResearch_CacheHitSuppressesSearchTools(t *testing.T) {
	provider := &scriptedProvider{
		quickJSON:     quickNo,
		queryTypeJSON: typeObjective,
		synthesisText: "Answer assembled from cached research.",
	}
	tools := &fakeTools{
		cacheResp: &toolservice.ConversationCacheResponse{
			CacheHit: true,
			Entries: []toolservice.CacheEntry{
				{Content: "Prior findings on the migration.", AgentName: "full_research_agent"},
			},
		},
	}
	a := newTestAgent(t, config.ResearchConfig{}, provider, tools, graph.NewMemorySaver())

	res, err := a.Execute(context.Background(), testRequest("Summarize the migration findings again"))
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Equal(t, "Answer assembled from cached research.", res.Response)
	assert.Equal(t, true, res.AgentResults["cache_hit"])
	assert.Equal(t, []string{"cache"}, res.AgentResults["sources_used"])

	// A fresh-enough cache entry means no expansion, search, or crawl.
	assert.Equal(t, 1, tools.cacheCalls)
	assert.Equal(t, 0, tools.searchCalls())

	// Synthesis sees the cached context attributed to its agent.
	assert.Contains(t, provider.lastPrompt(), "CONVERSATION CACHE")
	assert.Contains(t, provider.lastPrompt(), "[full_research_agent]: Prior findings on the migration.")
}

func TestResearch_WebApprovalPauseAndResume(t *testing.T) {
	provider := &scriptedProvider{
		quickJSON:     quickNo,
		assessJSON:    assessInsufficient,
		gapJSON:       gapNeedsWeb,
		webAssessJSON: assessSufficient,
		queryTypeJSON: typeObjective,
		synthesisText: "Answer after approved web research.",
	}
	tools := &fakeTools{
		docHits:    []toolservice.DocumentHit{{Title: "Memo", Filename: "memo.md", ContentPreview: "partial pricing info"}},
		webResults: []toolservice.WebResult{{Title: "Market report", URL: "https://example.com/report", Snippet: "pricing data"}},
		crawled:    []toolservice.CrawledPage{{URL: "https://example.com/report", Content: "full pricing tables"}},
	}
	saver := graph.NewMemorySaver()
	a := newTestAgent(t, config.ResearchConfig{HITLWebSearch: true}, provider, tools, saver)

	pause, err := a.Execute(context.Background(), testRequest("How should we price the new tier?"))
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusPermissionRequired, pause.TaskStatus)
	assert.Equal(t, webApprovalAsk, pause.Response)
	require.NotNil(t, pause.SharedMemory)
	assert.Equal(t, types.PermissionPending, pause.SharedMemory.WebSearchPermission)

	// Gated run touches local documents only until the user approves.
	assert.NotEmpty(t, tools.docQueries)
	assert.Empty(t, tools.webQueries)
	assert.Equal(t, 0, tools.crawlCalls)

	grant := testRequest("yes, proceed")
	grant.SharedMemory = pause.SharedMemory.Clone()
	grant.SharedMemory.WebSearchPermission = types.PermissionGranted
	res, err := a.Execute(context.Background(), grant)
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Equal(t, "Answer after approved web research.", res.Response)

	// The resumed web round searches the original question, not the
	// approval message.
	assert.Equal(t, []string{"How should we price the new tier?"}, tools.webQueries)
	assert.Equal(t, 1, tools.crawlCalls)
	assert.Contains(t, res.AgentResults["sources_used"], "web_round_1")
	assert.Contains(t, res.AgentResults["citations"], "https://example.com/report")

	cfg := agent.RunConfigFor(grant.Metadata)
	snap, err := a.workflow.GetState(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, snap.Next)
	assert.Equal(t, "How should we price the new tier?", types.AsString(snap.Values[keyOriginalUserQuery]))
	assert.NotEmpty(t, types.AsStringSlice(snap.Values[keyExpandedQueries]))
}

func TestResearch_WebBranchFailureFallsBackToLocal(t *testing.T) {
	provider := &scriptedProvider{
		quickJSON:     quickNo,
		assessJSON:    assessSufficient,
		queryTypeJSON: typeObjective,
		synthesisText: "Answer from local documents.",
	}
	tools := &fakeTools{
		docHits: []toolservice.DocumentHit{{Title: "Runbook", Filename: "runbook.md", ContentPreview: "deploy steps"}},
		webErr:  errors.New("search_web upstream 502"),
	}
	a := newTestAgent(t, config.ResearchConfig{}, provider, tools, graph.NewMemorySaver())

	res, err := a.Execute(context.Background(), testRequest("How do we deploy the gateway?"))
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Equal(t, "Answer from local documents.", res.Response)
	assert.Equal(t, []string{"initial_local"}, res.AgentResults["sources_used"])
	assert.Empty(t, res.AgentResults["citations"])
}

// panickyDocTools blows up in the document search path.
type panickyDocTools struct{ *fakeTools }

func (p *panickyDocTools) SearchDocuments(context.Context, *toolservice.SearchDocumentsRequest) (*toolservice.SearchDocumentsResponse, error) {
	panic("document index corrupted")
}

func TestResearch_LocalBranchPanicDegradesToWeb(t *testing.T) {
	provider := &scriptedProvider{
		quickJSON:     quickNo,
		assessJSON:    assessSufficient,
		queryTypeJSON: typeObjective,
		synthesisText: "Answer from web sources.",
	}
	tools := &panickyDocTools{fakeTools: &fakeTools{
		webResults: []toolservice.WebResult{{Title: "Release notes", URL: "https://example.com/notes", Snippet: "firmware changes"}},
		crawled:    []toolservice.CrawledPage{{URL: "https://example.com/notes", Content: "full changelog"}},
	}}
	a := newTestAgent(t, config.ResearchConfig{}, provider, tools, graph.NewMemorySaver())

	res, err := a.Execute(context.Background(), testRequest("What changed in the relay firmware?"))
	require.NoError(t, err)

	// The panicking local branch degrades like any failed search: the web
	// branch carries the round and the turn completes.
	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Equal(t, "Answer from web sources.", res.Response)
	assert.Equal(t, []string{"web_round_1"}, res.AgentResults["sources_used"])
	assert.Contains(t, res.AgentResults["citations"], "https://example.com/notes")
}

// stubFormatter stands in for the data-formatting agent.
type stubFormatter struct {
	mu         sync.Mutex
	calls      int
	lastConvID string
	reply      string
}

func (s *stubFormatter) Name() string { return "data_formatting" }

func (s *stubFormatter) Execute(_ context.Context, req *types.AgentRequest) (*types.AgentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastConvID = req.Metadata[agent.MetaConversationID]
	return &types.AgentResult{
		Response:   s.reply,
		TaskStatus: types.TaskStatusCompleted,
		AgentName:  s.Name(),
		Usage:      types.Usage{TotalTokens: 7},
	}, nil
}

func TestResearch_FormattingDelegationUsesDerivedThread(t *testing.T) {
	provider := &scriptedProvider{
		quickJSON:     quickNo,
		assessJSON:    assessSufficient,
		queryTypeJSON: typeObjective,
		formatJSON:    `{"needs_formatting": true, "reasoning": "tabular stats"}`,
		synthesisText: "Raw stats: region a 14, region b 9, region c 22",
	}
	formatter := &stubFormatter{reply: "| region | count |\n|---|---|\n| a | 14 |"}
	a, err := New(Config{
		Provider:  provider,
		Tools:     &fakeTools{docHits: []toolservice.DocumentHit{{Title: "Stats", Filename: "stats.md", ContentPreview: "regional counts"}}},
		Formatter: formatter,
		Saver:     graph.NewMemorySaver(),
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), testRequest("How many incidents per region?"))
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Equal(t, formatter.reply, res.Response)
	assert.Equal(t, 1, formatter.calls)
	assert.Equal(t, "c1#format_data", formatter.lastConvID)
	assert.Equal(t, "data_formatting", res.AgentResults["routing_recommendation"])

	// Quick-answer check, assess, query-type, synthesis, formatting
	// check, plus the delegated agent's own spend.
	assert.Equal(t, 82, res.Usage.TotalTokens)
}

func TestResearch_ExpandQueryDegradesToOriginal(t *testing.T) {
	provider := &scriptedProvider{
		quickJSON:     quickNo,
		assessJSON:    assessSufficient,
		queryTypeJSON: typeObjective,
		synthesisText: "done",
	}
	tools := &fakeTools{
		expandResp: &toolservice.ExpandQueryResponse{},
		docHits:    []toolservice.DocumentHit{{Title: "Doc", Filename: "doc.md", ContentPreview: "content"}},
	}
	a := newTestAgent(t, config.ResearchConfig{}, provider, tools, graph.NewMemorySaver())

	res, err := a.Execute(context.Background(), testRequest("original question"))
	require.NoError(t, err)

	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Equal(t, []string{"original question"}, tools.docQueries)
}

func TestIsAffirmative(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"yes", true},
		{"Yes!", true},
		{"ok", true},
		{"y", true},
		{"sure, proceed", true},
		{"tell me more", true},
		{"please do a deeper search on battery suppliers for this", true},
		{"no", false},
		{"not yet", false},
		{"", false},
		{"yesterday was fine", false},
		{"write a long sentence that mentions yes somewhere in the middle", false},
		{"what is the weather in Paris", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsAffirmative(tc.msg), "message %q", tc.msg)
	}
}
