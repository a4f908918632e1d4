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
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/checkpoint"
	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/types"
)

type fakeProvider struct {
	reply    string
	err      error
	calls    int
	lastSent []types.Message
}

func (f *fakeProvider) Chat(ctx context.Context, messages []types.Message, opts *types.ChatOptions) (*types.LLMResponse, error) {
	f.calls++
	f.lastSent = messages
	if f.err != nil {
		return nil, f.err
	}
	return &types.LLMResponse{Content: f.reply}, nil
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

// scriptedAgent returns queued errors first, then its canned result.
type scriptedAgent struct {
	name   string
	errs   []error
	result *types.AgentResult
	calls  []*types.AgentRequest
}

func (a *scriptedAgent) Name() string { return a.name }

func (a *scriptedAgent) Execute(ctx context.Context, req *types.AgentRequest) (*types.AgentResult, error) {
	a.calls = append(a.calls, req)
	if len(a.errs) > 0 {
		err := a.errs[0]
		a.errs = a.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if a.result != nil {
		out := *a.result
		if out.AgentName == "" {
			out.AgentName = a.name
		}
		return &out, nil
	}
	return &types.AgentResult{
		Response:   "answered by " + a.name,
		TaskStatus: types.TaskStatusCompleted,
		AgentName:  a.name,
	}, nil
}

// pausableAgent also records cancel requests for paused approvals.
type pausableAgent struct {
	scriptedAgent
	canceled []graph.RunConfig
}

func (a *pausableAgent) CancelPending(ctx context.Context, cfg graph.RunConfig) error {
	a.canceled = append(a.canceled, cfg)
	return nil
}

// recordingSaver counts transport resets on top of an in-memory store.
type recordingSaver struct {
	graph.Checkpointer
	resets int
}

func newRecordingSaver() *recordingSaver {
	return &recordingSaver{Checkpointer: graph.NewMemorySaver()}
}

func (s *recordingSaver) DeleteThread(ctx context.Context, threadID string) error { return nil }

func (s *recordingSaver) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func (s *recordingSaver) Reset(ctx context.Context) error {
	s.resets++
	return nil
}

func (s *recordingSaver) Close() error { return nil }

func newTestOrchestrator(t *testing.T, provider types.LLMProvider, saver checkpoint.Saver, agents ...types.Agent) *Orchestrator {
	t.Helper()
	o := New(Config{
		Agents:   config.AgentsConfig{DefaultAgent: agent.NameChat},
		Provider: provider,
		Saver:    saver,
		Logger:   zaptest.NewLogger(t),
	})
	o.buildAgents = func() ([]types.Agent, error) { return agents, nil }
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func collect(t *testing.T, ch <-chan types.Chunk) []types.Chunk {
	t.Helper()
	var out []types.Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func chunksOf(chunks []types.Chunk, ct types.ChunkType) []types.Chunk {
	var out []types.Chunk
	for _, c := range chunks {
		if c.Type == ct {
			out = append(out, c)
		}
	}
	return out
}

func seedCheckpoint(t *testing.T, saver checkpoint.Saver, threadID string, sm *types.SharedMemory, next ...string) {
	t.Helper()
	_, err := saver.Put(context.Background(), &graph.Checkpoint{
		ThreadID: threadID,
		Values:   graph.State{types.StateKeySharedMemory: sm},
		Next:     next,
	})
	require.NoError(t, err)
}

func TestStreamChat_ClassifierRoutesAndChunksAreOrdered(t *testing.T) {
	provider := &fakeProvider{reply: `{"target_agent": "weather_agent", "confidence": 0.9, "reasoning": "asks about rain"}`}
	chatStub := &scriptedAgent{name: agent.NameChat}
	weatherStub := &scriptedAgent{name: agent.NameWeather}
	o := newTestOrchestrator(t, provider, newRecordingSaver(), chatStub, weatherStub)

	chunks := collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "will it rain tomorrow",
		AgentType:      "auto",
	}))

	require.Len(t, chunks, 3)
	assert.Equal(t, types.ChunkStatus, chunks[0].Type)
	assert.Contains(t, chunks[0].Message, agent.NameWeather)
	assert.Equal(t, types.ChunkContent, chunks[1].Type)
	assert.Equal(t, "answered by "+agent.NameWeather, chunks[1].Message)
	assert.Equal(t, types.ChunkComplete, chunks[2].Type)
	assert.Equal(t, string(types.TaskStatusCompleted), chunks[2].Message)

	require.Len(t, weatherStub.calls, 1)
	assert.Empty(t, chatStub.calls)

	sent := weatherStub.calls[0]
	assert.Equal(t, "will it rain tomorrow", sent.Query)
	assert.Equal(t, "u1", sent.Metadata[agent.MetaUserID])
	assert.Equal(t, "c1", sent.Metadata[agent.MetaConversationID])
	assert.Equal(t, "Codex", sent.Metadata[agent.MetaAIName])
	assert.Equal(t, "asks about rain", sent.Metadata[agent.MetaRoutingReason])
}

func TestStreamChat_ExplicitAgentTypeSkipsClassifier(t *testing.T) {
	provider := &fakeProvider{reply: `{"target_agent": "chat"}`}
	editingStub := &scriptedAgent{name: agent.NameEditing}
	chatStub := &scriptedAgent{name: agent.NameChat}
	o := newTestOrchestrator(t, provider, newRecordingSaver(), chatStub, editingStub)

	chunks := collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "tighten this paragraph",
		AgentType:      agent.NameEditing,
		RoutingReason:  "user pinned the editor",
	}))

	assert.Zero(t, provider.calls)
	require.Len(t, editingStub.calls, 1)
	assert.Equal(t, "user pinned the editor", editingStub.calls[0].Metadata[agent.MetaRoutingReason])
	require.Len(t, chunksOf(chunks, types.ChunkComplete), 1)
}

func TestStreamChat_AliasCollapsesUnmigratedAgent(t *testing.T) {
	provider := &fakeProvider{}
	chatStub := &scriptedAgent{name: agent.NameChat}
	o := newTestOrchestrator(t, provider, newRecordingSaver(), chatStub)

	chunks := collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "draft a podcast script about owls",
		AgentType:      "podcast_script_agent",
	}))

	require.Len(t, chatStub.calls, 1)
	assert.Empty(t, chunksOf(chunks, types.ChunkWarning))
	status := chunksOf(chunks, types.ChunkStatus)
	require.Len(t, status, 1)
	assert.Contains(t, status[0].Message, agent.NameChat)
}

func TestStreamChat_UnknownExplicitAgentWarnsAndUsesDefault(t *testing.T) {
	provider := &fakeProvider{}
	chatStub := &scriptedAgent{name: agent.NameChat}
	o := newTestOrchestrator(t, provider, newRecordingSaver(), chatStub)

	chunks := collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "hello",
		AgentType:      "quantum_agent",
	}))

	warnings := chunksOf(chunks, types.ChunkWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "quantum_agent")
	require.Len(t, chatStub.calls, 1)
	require.Len(t, chunksOf(chunks, types.ChunkComplete), 1)
}

func TestStreamChat_CheckpointSharedMemoryPreloaded(t *testing.T) {
	saver := newRecordingSaver()
	seedCheckpoint(t, saver, "u1:c1", &types.SharedMemory{
		PrimaryAgentSelected: agent.NameResearch,
		LastAgent:            agent.NameResearch,
		LastResponse:         "Lithium cells store the most energy per gram.",
		WebSearchPermission:  types.PermissionGranted,
	})

	provider := &fakeProvider{reply: `{"target_agent": "chat", "confidence": 0.8}`}
	chatStub := &scriptedAgent{name: agent.NameChat}
	o := newTestOrchestrator(t, provider, saver, chatStub)

	collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "thanks, summarize that",
		AgentType:      "auto",
	}))

	require.Len(t, chatStub.calls, 1)
	sm := chatStub.calls[0].SharedMemory
	require.NotNil(t, sm)
	assert.Equal(t, agent.NameResearch, sm.PrimaryAgentSelected)
	assert.Equal(t, types.PermissionGranted, sm.WebSearchPermission)

	// The classifier saw the checkpointed context, not a blank record.
	var prompt strings.Builder
	for _, m := range provider.lastSent {
		prompt.WriteString(m.Content)
	}
	assert.Contains(t, prompt.String(), agent.NameResearch)
}

func TestStreamChat_EditorExtractionAndGrantsReachAgent(t *testing.T) {
	provider := &fakeProvider{reply: `{"target_agent": "chat", "confidence": 0.7}`}
	chatStub := &scriptedAgent{name: agent.NameChat}
	o := newTestOrchestrator(t, provider, newRecordingSaver(), chatStub)

	collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "add the new sensor to the plan",
		AgentType:      "auto",
		ActiveEditor: &types.ActiveEditor{
			IsEditable:    true,
			Filename:      "plan.md",
			CanonicalPath: "/users/u1/plan.md",
			DocumentID:    "doc-1",
			Frontmatter: &types.Frontmatter{
				CustomFields: map[string]any{"files": "['./components.md']"},
			},
		},
		PermissionGrants: &types.PermissionGrants{FileWritePermission: true},
	}))

	require.Len(t, chatStub.calls, 1)
	sent := chatStub.calls[0]
	require.NotNil(t, sent.ActiveEditor)
	assert.Equal(t, "/users/u1/plan.md", sent.ActiveEditor.CanonicalPath)
	assert.Equal(t, []any{"./components.md"}, sent.ActiveEditor.Frontmatter.CustomFields["files"])
	assert.Same(t, sent.ActiveEditor, sent.SharedMemory.ActiveEditor)
	assert.Equal(t, types.PermissionGranted, sent.SharedMemory.FileWritePermission)
	assert.Equal(t, types.PermissionUnset, sent.SharedMemory.WebSearchPermission)
}

func TestStreamChat_PendingAffirmationResumesPausedAgent(t *testing.T) {
	saver := newRecordingSaver()
	seedCheckpoint(t, saver, "u1:c1", &types.SharedMemory{
		PrimaryAgentSelected: agent.NameResearch,
		LastAgent:            agent.NameResearch,
		LastResponse:         "May I search the web to fill the gaps?",
		WebSearchPermission:  types.PermissionPending,
	}, "web_round1")

	provider := &fakeProvider{}
	researchStub := &pausableAgent{scriptedAgent: scriptedAgent{name: agent.NameResearch}}
	chatStub := &scriptedAgent{name: agent.NameChat}
	o := newTestOrchestrator(t, provider, saver, chatStub, researchStub)

	chunks := collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "yes please",
		AgentType:      "auto",
	}))

	assert.Zero(t, provider.calls, "resume must not consult the classifier")
	assert.Empty(t, researchStub.canceled)
	require.Len(t, researchStub.calls, 1)
	sent := researchStub.calls[0]
	assert.Equal(t, "yes please", sent.Query)
	assert.Equal(t, types.PermissionGranted, sent.SharedMemory.WebSearchPermission)
	assert.Equal(t, agent.NameResearch, sent.SharedMemory.PrimaryAgentSelected,
		"granting must preserve the other shared-memory keys")

	status := chunksOf(chunks, types.ChunkStatus)
	require.NotEmpty(t, status)
	assert.Contains(t, status[0].Message, "approved")
	require.Len(t, chunksOf(chunks, types.ChunkComplete), 1)
}

func TestStreamChat_PendingDenialCancelsWithoutDispatch(t *testing.T) {
	saver := newRecordingSaver()
	seedCheckpoint(t, saver, "u1:c1", &types.SharedMemory{
		LastAgent:           agent.NameResearch,
		WebSearchPermission: types.PermissionPending,
	}, "web_round1")

	provider := &fakeProvider{}
	researchStub := &pausableAgent{scriptedAgent: scriptedAgent{name: agent.NameResearch}}
	chatStub := &scriptedAgent{name: agent.NameChat}
	o := newTestOrchestrator(t, provider, saver, chatStub, researchStub)

	chunks := collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "no thanks",
		AgentType:      "auto",
	}))

	assert.Zero(t, provider.calls)
	assert.Empty(t, researchStub.calls)
	assert.Empty(t, chatStub.calls)
	require.Len(t, researchStub.canceled, 1)
	assert.Equal(t, "u1:c1", researchStub.canceled[0].ThreadID)

	contents := chunksOf(chunks, types.ChunkContent)
	require.Len(t, contents, 1)
	assert.Equal(t, webSearchDeclined, contents[0].Message)
	require.Len(t, chunksOf(chunks, types.ChunkComplete), 1)
}

func TestStreamChat_PendingUnrelatedMessageCancelsThenRoutesFresh(t *testing.T) {
	saver := newRecordingSaver()
	seedCheckpoint(t, saver, "u1:c1", &types.SharedMemory{
		LastAgent:           agent.NameResearch,
		WebSearchPermission: types.PermissionPending,
	}, "web_round1")

	provider := &fakeProvider{reply: `{"target_agent": "weather_agent", "confidence": 0.9, "reasoning": "forecast"}`}
	researchStub := &pausableAgent{scriptedAgent: scriptedAgent{name: agent.NameResearch}}
	weatherStub := &scriptedAgent{name: agent.NameWeather}
	chatStub := &scriptedAgent{name: agent.NameChat}
	o := newTestOrchestrator(t, provider, saver, chatStub, researchStub, weatherStub)

	chunks := collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "what's the forecast for Paris this weekend",
		AgentType:      "auto",
	}))

	require.Len(t, researchStub.canceled, 1, "the stale pause must be cleared before a fresh dispatch")
	assert.Empty(t, researchStub.calls)
	require.Len(t, weatherStub.calls, 1)
	assert.Equal(t, 1, provider.calls)
	require.Len(t, chunksOf(chunks, types.ChunkComplete), 1)
}

func TestStreamChat_TransportLossRecoversExactlyOnce(t *testing.T) {
	saver := newRecordingSaver()
	provider := &fakeProvider{reply: `{"target_agent": "chat"}`}
	chatStub := &scriptedAgent{
		name: agent.NameChat,
		errs: []error{fmt.Errorf("chat workflow: %w", types.ErrTransportClosed)},
	}

	builds := 0
	o := New(Config{
		Agents:   config.AgentsConfig{DefaultAgent: agent.NameChat},
		Provider: provider,
		Saver:    saver,
		Logger:   zaptest.NewLogger(t),
	})
	o.buildAgents = func() ([]types.Agent, error) {
		builds++
		return []types.Agent{chatStub}, nil
	}
	t.Cleanup(func() { _ = o.Close() })

	chunks := collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "hello",
		AgentType:      agent.NameChat,
	}))

	assert.Equal(t, 1, saver.resets)
	assert.Equal(t, 2, builds, "recovery must rebuild the agent set")
	require.Len(t, chatStub.calls, 2)
	require.Len(t, chunksOf(chunks, types.ChunkWarning), 1)
	require.Len(t, chunksOf(chunks, types.ChunkComplete), 1)
	assert.Empty(t, chunksOf(chunks, types.ChunkError))
}

func TestStreamChat_TransportLossSecondFailureIsTerminal(t *testing.T) {
	saver := newRecordingSaver()
	provider := &fakeProvider{}
	transportErr := fmt.Errorf("chat workflow: %w", types.ErrTransportClosed)
	chatStub := &scriptedAgent{name: agent.NameChat, errs: []error{transportErr, transportErr}}
	o := newTestOrchestrator(t, provider, saver, chatStub)

	chunks := collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "hello",
		AgentType:      agent.NameChat,
	}))

	assert.Equal(t, 1, saver.resets, "the turn retries exactly once")
	require.Len(t, chatStub.calls, 2)
	errChunks := chunksOf(chunks, types.ChunkError)
	require.Len(t, errChunks, 1)
	assert.Contains(t, errChunks[0].Message, "connection is closed")
	assert.Empty(t, chunksOf(chunks, types.ChunkComplete))
	assert.Equal(t, types.ChunkError, chunks[len(chunks)-1].Type)
}

func TestStreamChat_AgentFailureEmitsSingleErrorChunk(t *testing.T) {
	saver := newRecordingSaver()
	provider := &fakeProvider{}
	chatStub := &scriptedAgent{name: agent.NameChat, errs: []error{errors.New("prompt rejected")}}
	o := newTestOrchestrator(t, provider, saver, chatStub)

	chunks := collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "hello",
		AgentType:      agent.NameChat,
	}))

	assert.Zero(t, saver.resets, "only transport losses trigger recovery")
	require.Len(t, chatStub.calls, 1)
	errChunks := chunksOf(chunks, types.ChunkError)
	require.Len(t, errChunks, 1)
	assert.Contains(t, errChunks[0].Message, "prompt rejected")
	assert.Empty(t, chunksOf(chunks, types.ChunkComplete))
}

func TestStreamChat_InitializesAgentsOnce(t *testing.T) {
	provider := &fakeProvider{}
	chatStub := &scriptedAgent{name: agent.NameChat}

	builds := 0
	o := New(Config{
		Agents:   config.AgentsConfig{DefaultAgent: agent.NameChat},
		Provider: provider,
		Saver:    newRecordingSaver(),
		Logger:   zaptest.NewLogger(t),
	})
	o.buildAgents = func() ([]types.Agent, error) {
		builds++
		return []types.Agent{chatStub}, nil
	}
	t.Cleanup(func() { _ = o.Close() })

	for i := 0; i < 2; i++ {
		collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
			UserID:         "u1",
			ConversationID: "c1",
			Query:          "hello again",
			AgentType:      agent.NameChat,
		}))
	}

	assert.Equal(t, 1, builds)
	require.Len(t, chatStub.calls, 2)
}

func TestStreamChat_CompleteChunkCarriesTaskStatus(t *testing.T) {
	provider := &fakeProvider{}
	chatStub := &scriptedAgent{
		name: agent.NameChat,
		result: &types.AgentResult{
			Response:   "May I search the web to fill the gaps?",
			TaskStatus: types.TaskStatusPermissionRequired,
		},
	}
	o := newTestOrchestrator(t, provider, newRecordingSaver(), chatStub)

	chunks := collect(t, o.StreamChat(context.Background(), &types.ChatRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "research this",
		AgentType:      agent.NameChat,
	}))

	complete := chunksOf(chunks, types.ChunkComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, string(types.TaskStatusPermissionRequired), complete[0].Message)
}

func TestIsDenial(t *testing.T) {
	yes := []string{"no", "No thanks.", "nope", "not now", "skip the web", "please do not search the web for this one"}
	for _, msg := range yes {
		assert.True(t, isDenial(msg), msg)
	}
	no := []string{"", "yes", "tell me about geese", "that would be helpful, go ahead"}
	for _, msg := range no {
		assert.False(t, isDenial(msg), msg)
	}
}
