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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/conductor/pkg/types"
)

func TestExtractEditor_Nil(t *testing.T) {
	assert.Nil(t, extractEditor(nil))
}

func TestExtractEditor_CopiesScalarsAndParsesLists(t *testing.T) {
	in := &types.ActiveEditor{
		IsEditable:    true,
		Filename:      "weather-station.md",
		CanonicalPath: "/users/u1/projects/weather-station.md",
		Language:      "markdown",
		Content:       "# Weather Station Plan\n",
		DocumentID:    "doc-42",
		Frontmatter: &types.Frontmatter{
			Type:  "project",
			Title: "Weather Station",
			CustomFields: map[string]any{
				"files":      "['./components.md', './schematic.md']",
				"components": `["./parts.md"]`,
				"protocols":  "- ./mqtt.md\n- ./http.md",
				"owner":      "hw-team",
				"revision":   3,
			},
		},
	}

	out := extractEditor(in)
	require.NotNil(t, out)

	assert.True(t, out.IsEditable)
	assert.Equal(t, "weather-station.md", out.Filename)
	assert.Equal(t, "/users/u1/projects/weather-station.md", out.CanonicalPath)
	assert.Equal(t, "markdown", out.Language)
	assert.Equal(t, "# Weather Station Plan\n", out.Content)
	assert.Equal(t, "doc-42", out.DocumentID)

	require.NotNil(t, out.Frontmatter)
	cf := out.Frontmatter.CustomFields
	assert.Equal(t, []any{"./components.md", "./schematic.md"}, cf["files"])
	assert.Equal(t, []any{"./parts.md"}, cf["components"])
	assert.Equal(t, []any{"./mqtt.md", "./http.md"}, cf["protocols"])
	assert.Equal(t, "hw-team", cf["owner"])
	assert.Equal(t, 3, cf["revision"])

	// The request's editor stays untouched; agents may mutate their copy.
	assert.Equal(t, "['./components.md', './schematic.md']", in.Frontmatter.CustomFields["files"])
}

func TestNormalizeCustomField(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"python single quotes", "['./a.md', './b.md']", []any{"./a.md", "./b.md"}},
		{"double quotes", `["./a.md", "./b.md"]`, []any{"./a.md", "./b.md"}},
		{"bare tokens", "[alpha, beta]", []any{"alpha", "beta"}},
		{"empty list", "[]", []any{}},
		{"yaml multiline", "- ./a.md\n- ./b.md", []any{"./a.md", "./b.md"}},
		{"yaml with leading blank", "\n- ./a.md\n- ./b.md", []any{"./a.md", "./b.md"}},
		{"single line dash stays", "- ./a.md", "- ./a.md"},
		{"plain string stays", "hello world", "hello world"},
		{"non string stays", true, true},
		{"unterminated bracket stays", "[unterminated", "[unterminated"},
		{"unterminated quote stays", "['./a.md]", "['./a.md]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeCustomField(tt.in))
		})
	}
}

func TestNormalizeCustomField_NestedFallsThroughToJSON(t *testing.T) {
	got := normalizeCustomField(`[["a"], ["b"]]`)
	require.IsType(t, []any{}, got)
	list := got.([]any)
	require.Len(t, list, 2)
	assert.Equal(t, []any{"a"}, list[0])
}
