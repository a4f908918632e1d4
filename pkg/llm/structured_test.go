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
package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/conductor/pkg/types"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "bare object",
			content: `{"a": 1}`,
			want:    `{"a": 1}`,
		},
		{
			name:    "fenced json block",
			content: "```json\n{\"a\": 1}\n```",
			want:    "{\"a\": 1}",
		},
		{
			name:    "fenced block without language",
			content: "```\n{\"a\": 1}\n```",
			want:    "{\"a\": 1}",
		},
		{
			name:    "prose around object",
			content: "Here is the result:\n{\"a\": 1}\nHope that helps!",
			want:    "{\"a\": 1}",
		},
		{
			name:    "nested braces",
			content: `prefix {"outer": {"inner": 2}} suffix`,
			want:    `{"outer": {"inner": 2}}`,
		},
		{
			name:    "leading whitespace",
			content: "\n\n  {\"a\": 1}  \n",
			want:    `{"a": 1}`,
		},
		{
			name:    "no object at all",
			content: "I cannot answer that.",
			wantErr: true,
		},
		{
			name:    "empty content",
			content: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				var parseErr *types.ParseError
				assert.ErrorAs(t, err, &parseErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStructured(t *testing.T) {
	type verdict struct {
		Sufficient bool   `json:"sufficient"`
		Reasoning  string `json:"reasoning"`
	}

	schema := `{
		"type": "object",
		"properties": {
			"sufficient": {"type": "boolean"},
			"reasoning": {"type": "string"}
		},
		"required": ["sufficient"]
	}`

	t.Run("valid response", func(t *testing.T) {
		var out verdict
		err := ParseStructured("```json\n{\"sufficient\": true, \"reasoning\": \"all good\"}\n```", schema, &out)
		require.NoError(t, err)
		assert.True(t, out.Sufficient)
		assert.Equal(t, "all good", out.Reasoning)
	})

	t.Run("schema violation", func(t *testing.T) {
		var out verdict
		err := ParseStructured(`{"reasoning": "missing the required field"}`, schema, &out)
		require.Error(t, err)
		var parseErr *types.ParseError
		assert.ErrorAs(t, err, &parseErr)
	})

	t.Run("no schema skips validation", func(t *testing.T) {
		var out verdict
		err := ParseStructured(`{"reasoning": "ok"}`, "", &out)
		require.NoError(t, err)
		assert.False(t, out.Sufficient)
	})

	t.Run("malformed json", func(t *testing.T) {
		var out verdict
		err := ParseStructured(`{"sufficient": true,`, schema, &out)
		require.Error(t, err)
	})
}

func TestChatStructured(t *testing.T) {
	type classification struct {
		TargetAgent string  `json:"target_agent"`
		Confidence  float64 `json:"confidence"`
	}

	t.Run("parses provider output", func(t *testing.T) {
		provider := &mockLLMProvider{
			name:  "test",
			model: "test-model",
			response: &types.LLMResponse{
				Content:    "```json\n{\"target_agent\": \"research\", \"confidence\": 0.9}\n```",
				StopReason: "end_turn",
				Usage:      types.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
			},
		}

		var out classification
		resp, err := ChatStructured(context.Background(), provider, []types.Message{{Role: "user", Content: "route this"}}, nil, "", &out)
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, "research", out.TargetAgent)
		assert.Equal(t, 0.9, out.Confidence)
		assert.Equal(t, 15, resp.Usage.TotalTokens)
	})

	t.Run("returns response alongside parse error", func(t *testing.T) {
		provider := &mockLLMProvider{
			name:  "test",
			model: "test-model",
			response: &types.LLMResponse{
				Content: "Sorry, I refuse to produce JSON today.",
				Usage:   types.Usage{InputTokens: 10, OutputTokens: 8, TotalTokens: 18},
			},
		}

		var out classification
		resp, err := ChatStructured(context.Background(), provider, []types.Message{{Role: "user", Content: "route this"}}, nil, "", &out)
		require.Error(t, err)
		// Usage still accounted even when parsing fails
		require.NotNil(t, resp)
		assert.Equal(t, 18, resp.Usage.TotalTokens)
	})

	t.Run("propagates provider error", func(t *testing.T) {
		provider := &mockLLMProvider{
			name:  "test",
			model: "test-model",
			err:   assert.AnError,
		}

		var out classification
		resp, err := ChatStructured(context.Background(), provider, []types.Message{{Role: "user", Content: "route this"}}, nil, "", &out)
		require.Error(t, err)
		assert.Nil(t, resp)
	})
}
