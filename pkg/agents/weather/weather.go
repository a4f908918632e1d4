// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package weather implements the weather agent: extract a location from
// the turn, fetch conditions through the backend tool service, and voice
// the report in the user's persona.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/observability"
	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Name is the registry name this agent serves under.
const Name = agent.NameWeather

// State extension keys private to this workflow.
const (
	stateKeyLocation  = "weather_location"
	stateKeyDataTypes = "weather_data_types"
	stateKeyDate      = "weather_date"
)

// forecastLimit bounds how many forecast periods reach the model.
const forecastLimit = 5

// WeatherService is the slice of the tool client this agent needs.
type WeatherService interface {
	GetWeather(ctx context.Context, location, userID string, dataTypes []string, dateStr string) (*toolservice.WeatherReport, error)
}

// extraction is the model's reading of what the user asked for.
type extraction struct {
	Location  string   `json:"location"`
	DataTypes []string `json:"data_types"`
	Date      string   `json:"date"`
}

const extractionSchema = `{
	"type": "object",
	"properties": {
		"location": {"type": "string"},
		"data_types": {
			"type": "array",
			"items": {"type": "string", "enum": ["current", "forecast", "alerts"]}
		},
		"date": {"type": ["string", "null"]}
	},
	"required": ["location"]
}`

// Agent fetches and narrates weather reports.
type Agent struct {
	provider types.LLMProvider
	tools    WeatherService
	workflow *graph.Runnable
	tracer   observability.Tracer
	logger   *zap.Logger
}

// New builds the weather agent and compiles its workflow.
func New(provider types.LLMProvider, tools WeatherService, saver graph.Checkpointer, tracer observability.Tracer, logger *zap.Logger) (*Agent, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{provider: provider, tools: tools, tracer: tracer, logger: logger}

	wf, err := graph.NewStateGraph().
		AddNode("extract_request", a.extractRequest).
		AddNode("report", a.report).
		AddEdge("extract_request", "report").
		AddEdge("report", graph.End).
		SetEntryPoint("extract_request").
		Compile(graph.CompileOptions{Checkpointer: saver})
	if err != nil {
		return nil, fmt.Errorf("compile weather workflow: %w", err)
	}
	a.workflow = wf
	return a, nil
}

// Name implements types.Agent.
func (a *Agent) Name() string { return Name }

// Execute implements types.Agent.
func (a *Agent) Execute(ctx context.Context, req *types.AgentRequest) (*types.AgentResult, error) {
	ctx, span := a.tracer.StartSpan(ctx, "agent.weather")
	defer a.tracer.EndSpan(span)

	state := (&types.WorkflowState{
		Messages:     req.History,
		UserID:       req.UserID,
		Query:        req.Query,
		SharedMemory: req.SharedMemory,
		Metadata:     req.Metadata,
	}).ToMap()
	agent.ResetUsage(state)

	final, err := a.workflow.Invoke(ctx, state, agent.RunConfigFor(req.Metadata))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("weather workflow: %w", err)
	}

	res := agent.ResultFrom(Name, final)
	span.SetAttribute("location", types.AsString(final[stateKeyLocation]))
	return res, nil
}

// extractRequest pulls the location, requested sections, and optional
// date out of the user message. A parse failure degrades to treating the
// whole query as the location.
func (a *Agent) extractRequest(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)

	prompt := heredoc.Docf(`
		Extract the weather request from this message.

		Message: %s

		data_types may include "current", "forecast", and "alerts"; pick the
		ones the user asked about, defaulting to ["current"]. date is a
		YYYY-MM-DD string only when the user named a specific day, else null.

		Output format:
		{"location": "...", "data_types": ["current"], "date": null}
	`, ws.Query)

	var ext extraction
	opts := types.ChatOptions{}.WithTemperature(0)
	resp, err := llm.ChatStructured(ctx, a.provider, []types.Message{types.UserMessage(prompt)}, &opts, extractionSchema, &ext)
	if err != nil || strings.TrimSpace(ext.Location) == "" {
		a.logger.Warn("weather extraction degraded to raw query", zap.Error(err))
		ext = extraction{Location: strings.TrimSpace(ws.Query)}
	}
	if len(ext.DataTypes) == 0 {
		ext.DataTypes = []string{"current"}
	}

	out := graph.State{
		stateKeyLocation:  ext.Location,
		stateKeyDataTypes: ext.DataTypes,
		stateKeyDate:      ext.Date,
	}
	if resp != nil {
		agent.AccumulateUsage(state, out, resp.Usage)
	}
	return out, nil
}

// report fetches the weather and narrates it.
func (a *Agent) report(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	location := types.AsString(state[stateKeyLocation])
	dataTypes := types.AsStringSlice(state[stateKeyDataTypes])
	date := types.AsString(state[stateKeyDate])

	sm := ws.SharedMemory
	if sm == nil {
		sm = types.NewSharedMemory()
	}

	rec := toolservice.NewRecorder()
	report, err := a.tools.GetWeather(toolservice.WithRecorder(ctx, rec), location, ws.UserID, dataTypes, date)
	if err != nil {
		return nil, fmt.Errorf("get weather: %w", err)
	}
	agent.RecordTools(sm, rec.Ops())

	out := graph.State{}
	var response string
	if emptyReport(report) {
		response = fmt.Sprintf("I couldn't get weather data for %s right now. Please try again in a moment.", location)
	} else {
		resp, err := a.narrate(ctx, ws, location, report)
		if err != nil {
			return nil, err
		}
		response = resp.Content
		agent.AccumulateUsage(state, out, resp.Usage)
	}

	sm.LastAgent = Name
	sm.LastResponse = response

	out[types.StateKeyResponse] = response
	out[types.StateKeyTaskStatus] = string(types.TaskStatusCompleted)
	out[types.StateKeySharedMemory] = sm
	return out, nil
}

// narrate turns the raw report into a persona-voiced answer.
func (a *Agent) narrate(ctx context.Context, ws *types.WorkflowState, location string, report *toolservice.WeatherReport) (*types.LLMResponse, error) {
	persona := agent.PersonaFromMetadata(ws.Metadata)

	trimmed := *report
	if len(trimmed.Forecast) > forecastLimit {
		trimmed.Forecast = trimmed.Forecast[:forecastLimit]
	}
	data, err := json.MarshalIndent(&trimmed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode weather report: %w", err)
	}

	opts := agent.ChatOptionsFor(ws.Metadata)
	opts.System = agent.DatetimeContext(persona.Timezone) + heredoc.Docf(`
		You are %s. Answer the user's weather question from the report data
		below in a %s voice. Lead with what they asked for, include units,
		and mention active alerts if any. Do not invent data that is not in
		the report.
	`, persona.AIName, persona.Style)

	prompt := fmt.Sprintf("Weather report for %s:\n%s\n\nUser question: %s", location, data, ws.Query)
	resp, err := a.provider.Chat(ctx, []types.Message{types.UserMessage(prompt)}, opts)
	if err != nil {
		return nil, fmt.Errorf("weather narration: %w", err)
	}
	return resp, nil
}

func emptyReport(r *toolservice.WeatherReport) bool {
	return r == nil || (len(r.CurrentConditions) == 0 && len(r.Forecast) == 0 && len(r.Alerts) == 0)
}
