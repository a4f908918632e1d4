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
package formatting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/types"
)

type fakeProvider struct {
	reply    string
	lastMsgs []types.Message
	lastOpts *types.ChatOptions
}

func (f *fakeProvider) Chat(_ context.Context, msgs []types.Message, opts *types.ChatOptions) (*types.LLMResponse, error) {
	f.lastMsgs = msgs
	f.lastOpts = opts
	return &types.LLMResponse{Content: f.reply, Usage: types.Usage{TotalTokens: 8}}, nil
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "claude-sonnet-4-20250514" }

func TestFormatting_RestructuresContent(t *testing.T) {
	fake := &fakeProvider{reply: "| City | Temp |\n|------|------|\n| Austin | 95F |"}
	a, err := New(fake, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), &types.AgentRequest{
		Query:  "Austin is 95F, Lisbon is 70F",
		UserID: "u1",
		Metadata: map[string]string{
			agent.MetaUserID:         "u1",
			agent.MetaConversationID: "c1",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, fake.reply, res.Response)
	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Equal(t, Name, res.AgentName)
	require.NotNil(t, res.SharedMemory)
	assert.Equal(t, Name, res.SharedMemory.LastAgent)

	require.NotNil(t, fake.lastOpts)
	assert.Contains(t, fake.lastOpts.System, "data-formatting specialist")
	assert.True(t, fake.lastOpts.TemperatureSet)
	assert.Zero(t, fake.lastOpts.Temperature)
	require.Len(t, fake.lastMsgs, 1)
	assert.Contains(t, fake.lastMsgs[0].Content, "Austin is 95F")
}
