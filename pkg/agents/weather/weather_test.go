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
package weather

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

// fakeProvider replays canned replies in call order.
type fakeProvider struct {
	replies []string
	errs    []error
	calls   int
	sent    [][]types.Message
}

func (f *fakeProvider) Chat(_ context.Context, msgs []types.Message, _ *types.ChatOptions) (*types.LLMResponse, error) {
	i := f.calls
	f.calls++
	f.sent = append(f.sent, msgs)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &types.LLMResponse{Content: reply, Usage: types.Usage{TotalTokens: 10}}, nil
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "claude-sonnet-4-20250514" }

// fakeWeather mimics the tool client, recorder hook included.
type fakeWeather struct {
	report        *toolservice.WeatherReport
	err           error
	calls         int
	lastLocation  string
	lastDataTypes []string
	lastDate      string
}

func (f *fakeWeather) GetWeather(ctx context.Context, location, _ string, dataTypes []string, dateStr string) (*toolservice.WeatherReport, error) {
	f.calls++
	f.lastLocation = location
	f.lastDataTypes = dataTypes
	f.lastDate = dateStr
	if f.err != nil {
		return nil, f.err
	}
	toolservice.RecorderFrom(ctx).Record("get_weather")
	if f.report == nil {
		return &toolservice.WeatherReport{}, nil
	}
	return f.report, nil
}

func testMetadata() map[string]string {
	return map[string]string{
		agent.MetaUserID:         "u1",
		agent.MetaConversationID: "c1",
	}
}

func TestWeather_FetchesAndNarrates(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		`{"location": "Austin", "data_types": ["current", "forecast"], "date": null}`,
		"Sunny and 95F in Austin, cooling later this week.",
	}}
	service := &fakeWeather{report: &toolservice.WeatherReport{
		Location:          "Austin",
		CurrentConditions: map[string]any{"temp_f": 95, "sky": "sunny"},
	}}
	a, err := New(provider, service, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), &types.AgentRequest{
		Query:    "what's the weather in Austin this week?",
		UserID:   "u1",
		Metadata: testMetadata(),
	})
	require.NoError(t, err)

	assert.Equal(t, "Sunny and 95F in Austin, cooling later this week.", res.Response)
	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	assert.Equal(t, "Austin", service.lastLocation)
	assert.Equal(t, []string{"current", "forecast"}, service.lastDataTypes)
	require.NotNil(t, res.SharedMemory)
	assert.Equal(t, []string{"get_weather"}, res.SharedMemory.PreviousToolsUsed)
	assert.Equal(t, Name, res.SharedMemory.LastAgent)
	assert.Equal(t, 20, res.Usage.TotalTokens)
}

func TestWeather_ExtractionFallsBackToQuery(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		"no json here",
		"Here is the weather.",
	}}
	service := &fakeWeather{report: &toolservice.WeatherReport{
		CurrentConditions: map[string]any{"temp_f": 70},
	}}
	a, err := New(provider, service, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), &types.AgentRequest{
		Query:    "weather in Lisbon",
		UserID:   "u1",
		Metadata: testMetadata(),
	})
	require.NoError(t, err)

	assert.Equal(t, "weather in Lisbon", service.lastLocation)
	assert.Equal(t, []string{"current"}, service.lastDataTypes)
}

func TestWeather_EmptyReportDegrades(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		`{"location": "Nowhere", "data_types": ["current"], "date": null}`,
	}}
	service := &fakeWeather{}
	a, err := New(provider, service, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), &types.AgentRequest{
		Query:    "weather in Nowhere",
		UserID:   "u1",
		Metadata: testMetadata(),
	})
	require.NoError(t, err)

	assert.Contains(t, res.Response, "couldn't get weather data for Nowhere")
	assert.Equal(t, types.TaskStatusCompleted, res.TaskStatus)
	// Narration is skipped when there is nothing to narrate.
	assert.Equal(t, 1, provider.calls)
}

func TestWeather_TransportErrorFailsTurn(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		`{"location": "Austin", "data_types": ["current"], "date": null}`,
	}}
	service := &fakeWeather{err: fmt.Errorf("tool get_weather: %w (conn reset)", types.ErrTransportClosed)}
	a, err := New(provider, service, graph.NewMemorySaver(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), &types.AgentRequest{
		Query:    "weather in Austin",
		UserID:   "u1",
		Metadata: testMetadata(),
	})
	require.Error(t, err)
	assert.True(t, types.IsTransportClosed(err))
}
