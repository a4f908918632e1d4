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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPricingFor(t *testing.T) {
	tests := []struct {
		model      string
		wantInput  float64
		wantOutput float64
	}{
		{"claude-sonnet-4-5-20250929", 3.0, 15.0},
		{"us.anthropic.claude-sonnet-4-5-20250929-v1:0", 3.0, 15.0},
		{"claude-haiku-4-5-20251001", 0.8, 4.0},
		{"claude-opus-4-1-20250805", 15.0, 75.0},
		{"some-unknown-model", 3.0, 15.0},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p := PricingFor(tt.model)
			assert.Equal(t, tt.wantInput, p.InputPerMTok)
			assert.Equal(t, tt.wantOutput, p.OutputPerMTok)
		})
	}
}

func TestEstimateCost(t *testing.T) {
	// One million of each at Sonnet rates: $3 + $15 = $18
	cost := EstimateCost("claude-sonnet-4-5-20250929", 1_000_000, 1_000_000, 0, 0)
	assert.Equal(t, 18.0, cost)

	// Cache write at 1.25x input, cache read at 0.10x input
	cost = EstimateCost("claude-sonnet-4-5-20250929", 0, 0, 1_000_000, 1_000_000)
	assert.InDelta(t, 3.75+0.30, cost, 1e-9)

	// Haiku is the cheap family
	cost = EstimateCost("claude-haiku-4-5-20251001", 1000, 1000, 0, 0)
	assert.InDelta(t, 0.0008+0.004, cost, 1e-9)
}
