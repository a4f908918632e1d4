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
package editing

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
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/types"
)

// branchProvider answers by role: the proofreader branch and the analyst
// branch are told apart by their system prompts, so parallel call order
// does not matter.
type branchProvider struct {
	mu         sync.Mutex
	proofReply string
	analyReply string
	proofErr   error
	calls      int
	prompts    []string
}

func (f *branchProvider) Chat(_ context.Context, msgs []types.Message, opts *types.ChatOptions) (*types.LLMResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(msgs) > 0 {
		f.prompts = append(f.prompts, msgs[len(msgs)-1].Content)
	}
	if strings.Contains(opts.System, "proofreader") {
		if f.proofErr != nil {
			return nil, f.proofErr
		}
		return &types.LLMResponse{Content: f.proofReply, Usage: types.Usage{TotalTokens: 7}}, nil
	}
	return &types.LLMResponse{Content: f.analyReply, Usage: types.Usage{TotalTokens: 9}}, nil
}

func (f *branchProvider) Name() string  { return "fake" }
func (f *branchProvider) Model() string { return "claude-sonnet-4-20250514" }

func testMetadata() map[string]string {
	return map[string]string{
		agent.MetaUserID:         "u1",
		agent.MetaConversationID: "c1",
	}
}

func TestEditing_MergesProofreadBeforeAnalysis(t *testing.T) {
	fake := &branchProvider{
		proofReply: "The quick brown fox jumps over the lazy dog.",
		analyReply: "Tight single sentence; consider varying rhythm.",
	}
	a, err := New(fake, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), &types.AgentRequest{
		Query:    "please edit: the quick brown fox jump over the lazy dog",
		UserID:   "u1",
		Metadata: testMetadata(),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, fake.calls)
	proofAt := strings.Index(res.Response, fake.proofReply)
	analyAt := strings.Index(res.Response, fake.analyReply)
	require.GreaterOrEqual(t, proofAt, 0)
	require.GreaterOrEqual(t, analyAt, 0)
	assert.Less(t, proofAt, analyAt, "corrected text must come before the analysis")
	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Equal(t, 16, res.Usage.TotalTokens)
}

func TestEditing_PrefersOpenDocumentContent(t *testing.T) {
	fake := &branchProvider{proofReply: "ok", analyReply: "fine"}
	a, err := New(fake, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), &types.AgentRequest{
		Query:    "tighten this up",
		UserID:   "u1",
		Metadata: testMetadata(),
		ActiveEditor: &types.ActiveEditor{
			IsEditable: true,
			Filename:   "draft.md",
			Content:    "Chapter one begins on a rainy tuesday.",
		},
	})
	require.NoError(t, err)

	require.Len(t, fake.prompts, 2)
	for _, p := range fake.prompts {
		assert.Contains(t, p, "Chapter one begins on a rainy tuesday.")
		assert.NotContains(t, p, "tighten this up")
	}
}

func TestEditing_FallsBackToMessageText(t *testing.T) {
	fake := &branchProvider{proofReply: "ok", analyReply: "fine"}
	a, err := New(fake, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), &types.AgentRequest{
		Query:    "fix: their going to the store",
		UserID:   "u1",
		Metadata: testMetadata(),
	})
	require.NoError(t, err)

	require.Len(t, fake.prompts, 2)
	for _, p := range fake.prompts {
		assert.Contains(t, p, "their going to the store")
	}
}

func TestEditing_NothingToEdit(t *testing.T) {
	fake := &branchProvider{}
	a, err := New(fake, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), &types.AgentRequest{
		Query:    "   ",
		UserID:   "u1",
		Metadata: testMetadata(),
	})
	require.NoError(t, err)

	assert.Contains(t, res.Response, "don't see any text to edit")
	assert.Zero(t, fake.calls)
}

func TestEditing_BranchErrorFailsTurn(t *testing.T) {
	fake := &branchProvider{proofErr: errors.New("overloaded"), analyReply: "fine"}
	a, err := New(fake, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), &types.AgentRequest{
		Query:    "edit this sentence",
		UserID:   "u1",
		Metadata: testMetadata(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proofread")
}
