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
package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/conductor/pkg/types"
)

func TestRunConfigFor(t *testing.T) {
	cfg := RunConfigFor(map[string]string{
		MetaUserID:         "user-1",
		MetaConversationID: "conv-9",
	})
	assert.Equal(t, "user-1:conv-9", cfg.ThreadID)
	assert.Empty(t, cfg.CheckpointID)

	cfg = RunConfigFor(map[string]string{
		MetaUserID:         "user-1",
		MetaConversationID: "conv-9",
		MetaCheckpointID:   "cp-42",
	})
	assert.Equal(t, "cp-42", cfg.CheckpointID)
}

func TestPersonaFromMetadata(t *testing.T) {
	p := PersonaFromMetadata(map[string]string{})
	assert.Equal(t, "Codex", p.AIName)
	assert.Equal(t, "professional", p.Style)
	assert.Equal(t, "neutral", p.Bias)
	assert.Equal(t, "UTC", p.Timezone)

	p = PersonaFromMetadata(map[string]string{
		MetaAIName:   "Scout",
		MetaTimezone: "America/Chicago",
	})
	assert.Equal(t, "Scout", p.AIName)
	assert.Equal(t, "professional", p.Style)
	assert.Equal(t, "America/Chicago", p.Timezone)
}

func TestMetadataWithPersona_RoundTrip(t *testing.T) {
	in := &types.Persona{AIName: "Scout", Style: "casual", Bias: "neutral", Timezone: "Europe/Berlin"}
	md := MetadataWithPersona(map[string]string{MetaUserID: "u"}, in)

	assert.Equal(t, "u", md[MetaUserID])
	out := PersonaFromMetadata(md)
	assert.Equal(t, in, out)

	// nil map and nil persona still produce the defaults
	md = MetadataWithPersona(nil, nil)
	assert.Equal(t, "Codex", md[MetaAIName])
}

func TestDatetimeContext(t *testing.T) {
	header := DatetimeContext("UTC")
	assert.Contains(t, header, "CURRENT DATE AND TIME")
	assert.Contains(t, header, "Timezone: UTC")
	assert.True(t, strings.HasSuffix(header, "---\n\n"))

	// Unknown zones fall back to UTC instead of failing the turn.
	header = DatetimeContext("Not/AZone")
	assert.Contains(t, header, "Timezone: UTC")
}

func TestMergeHistory(t *testing.T) {
	history := []types.Message{
		{Role: types.RoleUser, Content: "hello"},
		{Role: types.RoleUser, Content: "hello"},
		{Role: types.RoleAssistant, Content: "hi there"},
		{Role: types.RoleAssistant, Content: "hi there"},
		{Role: types.RoleUser, Content: "next"},
	}
	merged := MergeHistory(history, "what is new?")

	require.Len(t, merged, 5)
	assert.Equal(t, "hello", merged[0].Content)
	// Only consecutive identical user turns are collapsed.
	assert.Equal(t, types.RoleAssistant, merged[1].Role)
	assert.Equal(t, types.RoleAssistant, merged[2].Role)
	assert.Equal(t, "next", merged[3].Content)
	assert.Equal(t, "what is new?", merged[4].Content)
	assert.Equal(t, types.RoleUser, merged[4].Role)
}

func TestMergeHistory_QueryAlreadyLast(t *testing.T) {
	history := []types.Message{
		{Role: types.RoleUser, Content: "same question"},
	}
	merged := MergeHistory(history, "same question")
	require.Len(t, merged, 1)

	merged = MergeHistory(nil, "fresh")
	require.Len(t, merged, 1)
	assert.Equal(t, "fresh", merged[0].Content)

	merged = MergeHistory(nil, "")
	assert.Empty(t, merged)
}

func TestBudgetHistory(t *testing.T) {
	short := []types.Message{
		{Role: types.RoleUser, Content: "short"},
		{Role: types.RoleAssistant, Content: "reply"},
	}
	assert.Equal(t, short, BudgetHistory(short, "claude-sonnet-4-5"))

	// Three messages far past any window must trim oldest-first while the
	// newest survives.
	big := strings.Repeat("research notes ", 80000)
	long := []types.Message{
		{Role: types.RoleUser, Content: big},
		{Role: types.RoleAssistant, Content: big},
		{Role: types.RoleUser, Content: "latest question"},
	}
	trimmed := BudgetHistory(long, "unknown-model")
	require.NotEmpty(t, trimmed)
	assert.Less(t, len(trimmed), len(long))
	assert.Equal(t, "latest question", trimmed[len(trimmed)-1].Content)
}

func TestChatOptionsFor(t *testing.T) {
	opts := ChatOptionsFor(map[string]string{})
	assert.Empty(t, opts.Model)

	opts = ChatOptionsFor(map[string]string{MetaModel: "claude-haiku-4-5"})
	assert.Equal(t, "claude-haiku-4-5", opts.Model)
}

func TestErrorResult(t *testing.T) {
	res := ErrorResult("chat", assert.AnError)
	assert.Equal(t, types.TaskStatusError, res.TaskStatus)
	assert.Equal(t, "chat", res.AgentName)
	assert.Contains(t, res.Response, assert.AnError.Error())
}
