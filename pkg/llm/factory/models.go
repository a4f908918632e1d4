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
package factory

// ModelInfo describes a model the conductor can be pointed at.
type ModelInfo struct {
	ID                 string
	Name               string
	Provider           string
	ContextWindow      int
	CostPer1MInputUSD  float64
	CostPer1MOutputUSD float64
}

// DefaultContextWindow is assumed for model IDs not present in the catalog.
// Every Claude 3+ model carries a 200K window.
const DefaultContextWindow = 200000

// catalog lists the models each provider is known to serve. bedrock-sdk
// shares the bedrock entries since both target the same model IDs.
var catalog = map[string][]ModelInfo{
	"anthropic": {
		{
			ID:                 "claude-sonnet-4-5-20250929",
			Name:               "Claude Sonnet 4.5",
			Provider:           "anthropic",
			ContextWindow:      200000,
			CostPer1MInputUSD:  3.0,
			CostPer1MOutputUSD: 15.0,
		},
		{
			ID:                 "claude-haiku-4-5-20251001",
			Name:               "Claude Haiku 4.5",
			Provider:           "anthropic",
			ContextWindow:      200000,
			CostPer1MInputUSD:  0.8,
			CostPer1MOutputUSD: 4.0,
		},
		{
			ID:                 "claude-opus-4-1-20250805",
			Name:               "Claude Opus 4.1",
			Provider:           "anthropic",
			ContextWindow:      200000,
			CostPer1MInputUSD:  15.0,
			CostPer1MOutputUSD: 75.0,
		},
	},
	"bedrock": {
		{
			ID:                 "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
			Name:               "Claude Sonnet 4.5 (Bedrock)",
			Provider:           "bedrock",
			ContextWindow:      200000,
			CostPer1MInputUSD:  3.0,
			CostPer1MOutputUSD: 15.0,
		},
		{
			ID:                 "us.anthropic.claude-haiku-4-5-20251001-v1:0",
			Name:               "Claude Haiku 4.5 (Bedrock)",
			Provider:           "bedrock",
			ContextWindow:      200000,
			CostPer1MInputUSD:  0.8,
			CostPer1MOutputUSD: 4.0,
		},
		{
			ID:                 "us.anthropic.claude-opus-4-5-20251101-v1:0",
			Name:               "Claude Opus 4.5 (Bedrock)",
			Provider:           "bedrock",
			ContextWindow:      200000,
			CostPer1MInputUSD:  15.0,
			CostPer1MOutputUSD: 75.0,
		},
	},
}

// ModelsForProvider returns the known models for a provider. Returns copies
// so callers cannot mutate the catalog.
func ModelsForProvider(provider string) []ModelInfo {
	if provider == "bedrock-sdk" {
		provider = "bedrock"
	}
	models := catalog[provider]
	if models == nil {
		return nil
	}
	out := make([]ModelInfo, len(models))
	copy(out, models)
	return out
}

// ContextWindowFor returns the context window for a model ID. Unknown IDs
// fall back to DefaultContextWindow so history budgeting stays safe when a
// deployment points at a model newer than this catalog.
func ContextWindowFor(modelID string) int {
	for _, models := range catalog {
		for _, m := range models {
			if m.ID == modelID {
				return m.ContextWindow
			}
		}
	}
	return DefaultContextWindow
}
