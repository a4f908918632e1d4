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

import "strings"

// ModelPricing holds per-million-token USD rates for a model family.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cache pricing relative to the input rate: cache writes cost 1.25x,
// cache reads cost 0.10x.
const (
	cacheWriteMultiplier = 1.25
	cacheReadMultiplier  = 0.10
)

// PricingFor returns the pricing for a model identifier. Matching is by
// family substring so both direct model IDs ("claude-sonnet-4-5-20250929")
// and Bedrock inference profiles ("us.anthropic.claude-sonnet-4-5-...-v1:0")
// resolve to the same rates. Unknown models fall back to Sonnet rates.
func PricingFor(modelID string) ModelPricing {
	switch {
	case strings.Contains(modelID, "opus-4"):
		return ModelPricing{InputPerMTok: 15.0, OutputPerMTok: 75.0}
	case strings.Contains(modelID, "haiku-4"):
		return ModelPricing{InputPerMTok: 0.8, OutputPerMTok: 4.0}
	case strings.Contains(modelID, "sonnet-4"):
		return ModelPricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}
	default:
		return ModelPricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}
	}
}

// EstimateCost computes the USD cost of one call.
func EstimateCost(modelID string, inputTokens, outputTokens, cacheReadTokens, cacheCreationTokens int) float64 {
	p := PricingFor(modelID)
	inputCost := float64(inputTokens) * p.InputPerMTok / 1_000_000
	outputCost := float64(outputTokens) * p.OutputPerMTok / 1_000_000
	cacheWriteCost := float64(cacheCreationTokens) * p.InputPerMTok * cacheWriteMultiplier / 1_000_000
	cacheReadCost := float64(cacheReadTokens) * p.InputPerMTok * cacheReadMultiplier / 1_000_000
	return inputCost + outputCost + cacheWriteCost + cacheReadCost
}
