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
package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

type fakeProvider struct {
	reply    string
	err      error
	calls    int
	lastMsgs []types.Message
	lastOpts *types.ChatOptions
}

func (f *fakeProvider) Chat(_ context.Context, msgs []types.Message, opts *types.ChatOptions) (*types.LLMResponse, error) {
	f.calls++
	f.lastMsgs = msgs
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &types.LLMResponse{
		Content:    f.reply,
		StopReason: "end_turn",
		Usage:      types.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}, nil
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "claude-sonnet-4-20250514" }

func newTestAgent(t *testing.T, provider types.LLMProvider) *Agent {
	t.Helper()
	a, err := New(provider, nil, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return a
}

func TestChat_RespondsAndUpdatesSharedMemory(t *testing.T) {
	fake := &fakeProvider{reply: "Hello there."}
	a := newTestAgent(t, fake)

	res, err := a.Execute(context.Background(), &types.AgentRequest{
		Query:  "hi",
		UserID: "u1",
		Metadata: map[string]string{
			agent.MetaUserID:         "u1",
			agent.MetaConversationID: "c1",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there.", res.Response)
	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Equal(t, Name, res.AgentName)
	require.NotNil(t, res.SharedMemory)
	assert.Equal(t, Name, res.SharedMemory.LastAgent)
	assert.Equal(t, "Hello there.", res.SharedMemory.LastResponse)
	assert.Equal(t, 15, res.Usage.TotalTokens)
}

func TestChat_SystemPromptCarriesPersonaAndDatetime(t *testing.T) {
	fake := &fakeProvider{reply: "sure"}
	a := newTestAgent(t, fake)

	_, err := a.Execute(context.Background(), &types.AgentRequest{
		Query: "what day is it?",
		Metadata: map[string]string{
			agent.MetaUserID:         "u1",
			agent.MetaConversationID: "c1",
			agent.MetaAIName:         "Jarvis",
			agent.MetaPersonaStyle:   "casual",
			agent.MetaTimezone:       "UTC",
		},
	})
	require.NoError(t, err)

	require.NotNil(t, fake.lastOpts)
	assert.Contains(t, fake.lastOpts.System, "CURRENT DATE AND TIME")
	assert.Contains(t, fake.lastOpts.System, "Timezone: UTC")
	assert.Contains(t, fake.lastOpts.System, "You are Jarvis")
	assert.Contains(t, fake.lastOpts.System, "casual voice")
}

func TestChat_MergesHistoryWithQuery(t *testing.T) {
	fake := &fakeProvider{reply: "answer"}
	a := newTestAgent(t, fake)

	_, err := a.Execute(context.Background(), &types.AgentRequest{
		Query: "and what about Go?",
		History: []types.Message{
			types.UserMessage("tell me about Rust"),
			types.AssistantMessage("Rust is a systems language."),
		},
		Metadata: map[string]string{
			agent.MetaUserID:         "u1",
			agent.MetaConversationID: "c1",
		},
	})
	require.NoError(t, err)

	require.Len(t, fake.lastMsgs, 3)
	assert.Equal(t, types.RoleUser, fake.lastMsgs[2].Role)
	assert.Equal(t, "and what about Go?", fake.lastMsgs[2].Content)
}

func TestChat_ModelOverride(t *testing.T) {
	fake := &fakeProvider{reply: "ok"}
	a := newTestAgent(t, fake)

	_, err := a.Execute(context.Background(), &types.AgentRequest{
		Query: "hi",
		Metadata: map[string]string{
			agent.MetaUserID:         "u1",
			agent.MetaConversationID: "c1",
			agent.MetaModel:          "claude-opus-4-20250514",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, fake.lastOpts)
	assert.Equal(t, "claude-opus-4-20250514", fake.lastOpts.Model)
}

func TestChat_ProviderErrorFailsTurn(t *testing.T) {
	fake := &fakeProvider{err: errors.New("rate limited")}
	a := newTestAgent(t, fake)

	res, err := a.Execute(context.Background(), &types.AgentRequest{
		Query: "hi",
		Metadata: map[string]string{
			agent.MetaUserID:         "u1",
			agent.MetaConversationID: "c1",
		},
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestChat_CheckpointsThread(t *testing.T) {
	fake := &fakeProvider{reply: "first"}
	saver := graph.NewMemorySaver()
	a, err := New(fake, nil, saver, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	md := map[string]string{
		agent.MetaUserID:         "u1",
		agent.MetaConversationID: "c1",
	}
	_, err = a.Execute(context.Background(), &types.AgentRequest{Query: "hi", Metadata: md})
	require.NoError(t, err)

	assert.Contains(t, saver.Threads(), "u1:c1")
}

// fakeDocs records proposals; every other document operation fails so
// typed content falls back into the main plan edit.
type fakeDocs struct {
	proposals  []*toolservice.ProposeDocumentEditRequest
	proposeErr error
}

func (f *fakeDocs) FindDocumentByPath(context.Context, string, string, string) (*toolservice.DocumentRef, error) {
	return nil, errors.New("not found")
}

func (f *fakeDocs) GetDocumentContent(context.Context, string, string) (string, error) {
	return "", errors.New("not found")
}

func (f *fakeDocs) UpdateDocumentContent(context.Context, string, string, string, bool) (*toolservice.UpdateDocumentContentResponse, error) {
	return nil, errors.New("not supported")
}

func (f *fakeDocs) ProposeDocumentEdit(_ context.Context, req *toolservice.ProposeDocumentEditRequest) (*toolservice.ProposeDocumentEditResponse, error) {
	f.proposals = append(f.proposals, req)
	if f.proposeErr != nil {
		return nil, f.proposeErr
	}
	return &toolservice.ProposeDocumentEditResponse{Success: true, ProposalID: "prop-1"}, nil
}

func (f *fakeDocs) ApplyOperationsDirectly(context.Context, string, []types.EditorOperation, string, string) (*toolservice.ApplyOperationsResponse, error) {
	return nil, errors.New("not supported")
}

func projectEditor() *types.ActiveEditor {
	return &types.ActiveEditor{
		IsEditable:    true,
		Filename:      "plan.md",
		CanonicalPath: "/projects/robot/plan.md",
		DocumentID:    "doc-1",
		Content:       "# Robot\n\n## Current State\n\n<!-- Content will be added here -->\n",
		Frontmatter: &types.Frontmatter{
			Type: "project",
			CustomFields: map[string]any{
				"files": []any{"./components.md"},
			},
		},
	}
}

func TestChat_RoutesReplyIntoProjectPlan(t *testing.T) {
	fake := &fakeProvider{reply: "Currently the controller is an Arduino Uno. I recommend switching to an ESP32."}
	docs := &fakeDocs{}
	a, err := New(fake, docs, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	sm := types.NewSharedMemory()
	sm.ActiveEditor = projectEditor()

	res, err := a.Execute(context.Background(), &types.AgentRequest{
		Query:        "review the controller choice",
		SharedMemory: sm,
		ActiveEditor: sm.ActiveEditor,
		Metadata: map[string]string{
			agent.MetaUserID:         "u1",
			agent.MetaConversationID: "c1",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, fake.reply, res.Response)

	require.Len(t, docs.proposals, 1)
	proposal := docs.proposals[0]
	assert.Equal(t, "doc-1", proposal.DocumentID)
	assert.Equal(t, types.EditTypeOperations, proposal.EditType)
	assert.NotEmpty(t, proposal.Operations)
	assert.True(t, proposal.RequiresPreview)
	assert.Contains(t, proposal.Summary, "Current State")
	assert.Contains(t, proposal.Summary, "Recommendations and Plans")
}

func TestChat_NonProjectEditorSkipsRouting(t *testing.T) {
	fake := &fakeProvider{reply: "Looks fine to me."}
	docs := &fakeDocs{}
	a, err := New(fake, docs, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	sm := types.NewSharedMemory()
	sm.ActiveEditor = projectEditor()
	sm.ActiveEditor.Frontmatter.Type = "note"

	res, err := a.Execute(context.Background(), &types.AgentRequest{
		Query:        "thoughts?",
		SharedMemory: sm,
		Metadata: map[string]string{
			agent.MetaUserID:         "u1",
			agent.MetaConversationID: "c1",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Looks fine to me.", res.Response)
	assert.Empty(t, docs.proposals)
}

func TestChat_RoutingFailureKeepsReply(t *testing.T) {
	fake := &fakeProvider{reply: "Currently on plan A. You should consider plan B."}
	docs := &fakeDocs{proposeErr: errors.New("backend down")}
	a, err := New(fake, docs, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	sm := types.NewSharedMemory()
	sm.ActiveEditor = projectEditor()

	res, err := a.Execute(context.Background(), &types.AgentRequest{
		Query:        "compare the plans",
		SharedMemory: sm,
		Metadata: map[string]string{
			agent.MetaUserID:         "u1",
			agent.MetaConversationID: "c1",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Currently on plan A. You should consider plan B.", res.Response)
	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	require.Len(t, docs.proposals, 1)
}
