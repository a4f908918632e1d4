// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package research

import (
	"context"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/types"
)

// assessment is the model's sufficiency verdict over gathered research.
type assessment struct {
	Sufficient      bool     `json:"sufficient"`
	HasRelevantInfo bool     `json:"has_relevant_info"`
	Confidence      float64  `json:"confidence"`
	MissingInfo     []string `json:"missing_info"`
	Reasoning       string   `json:"reasoning"`
	BestSource      string   `json:"best_source"`
	NeedsMoreLocal  bool     `json:"needs_more_local"`
	NeedsMoreWeb    bool     `json:"needs_more_web"`
}

const assessmentSchema = `{
	"type": "object",
	"properties": {
		"sufficient": {"type": "boolean"},
		"has_relevant_info": {"type": "boolean"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"missing_info": {"type": "array", "items": {"type": "string"}},
		"reasoning": {"type": "string"},
		"best_source": {"type": "string", "enum": ["local", "web", "both"]},
		"needs_more_local": {"type": "boolean"},
		"needs_more_web": {"type": "boolean"}
	},
	"required": ["sufficient"]
}`

// gapAnalysis is the model's reading of what is still missing.
type gapAnalysis struct {
	MissingEntities  []string `json:"missing_entities"`
	SuggestedQueries []string `json:"suggested_queries"`
	NeedsWebSearch   bool     `json:"needs_web_search"`
	GapSeverity      string   `json:"gap_severity"`
	Reasoning        string   `json:"reasoning"`
}

const gapAnalysisSchema = `{
	"type": "object",
	"properties": {
		"missing_entities": {"type": "array", "items": {"type": "string"}},
		"suggested_queries": {"type": "array", "items": {"type": "string"}},
		"needs_web_search": {"type": "boolean"},
		"gap_severity": {"type": "string", "enum": ["minor", "moderate", "severe"]},
		"reasoning": {"type": "string"}
	},
	"required": ["gap_severity"]
}`

// queryTypeDetection decides whether synthesis presents options.
type queryTypeDetection struct {
	QueryType            string  `json:"query_type"`
	Confidence           float64 `json:"confidence"`
	ShouldPresentOptions bool    `json:"should_present_options"`
	NumOptions           int     `json:"num_options"`
	Reasoning            string  `json:"reasoning"`
}

const queryTypeSchema = `{
	"type": "object",
	"properties": {
		"query_type": {"type": "string", "enum": ["objective", "subjective", "mixed"]},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"should_present_options": {"type": "boolean"},
		"num_options": {"type": ["integer", "null"]},
		"reasoning": {"type": "string"}
	},
	"required": ["query_type"]
}`

// assessCombinedRound1 judges whether round 1 gathered enough, looking at
// local and web snippets together.
func (a *Agent) assessCombinedRound1(ctx context.Context, state graph.State) (graph.State, error) {
	local := clip(types.AsString(state[keyRound1Results]), assessTrim)
	web := clip(types.AsString(state[keyWebRound1Results]), assessTrim)

	prompt := heredoc.Docf(`
		Assess whether the research below is enough to answer the question.

		Question: %s

		LOCAL RESULTS:
		%s

		WEB RESULTS:
		%s

		Output format:
		{"sufficient": false, "has_relevant_info": true, "confidence": 0.0, "missing_info": ["..."], "reasoning": "...", "best_source": "local", "needs_more_local": false, "needs_more_web": false}
	`, originalQuery(state), emptyNote(local), emptyNote(web))

	out := graph.State{}
	as, resp, err := a.assess(ctx, prompt)
	if resp != nil {
		agent.AccumulateUsage(state, out, resp.Usage)
	}
	if err != nil {
		// Conservative fallback: not sufficient, fill gaps locally first.
		a.logger.Warn("round-1 assessment degraded to not-sufficient", zap.Error(err))
		a.tracer.RecordMetric("research.assessment.fallback", 1, map[string]string{"stage": "round1"})
		as = assessment{Sufficient: false}
	}

	var flat map[string]any
	_ = types.Remarshal(as, &flat)
	out[keyRound1Assessment] = flat
	out[keyRound1Sufficient] = as.Sufficient
	return out, nil
}

func routeRound1Assessment(state graph.State) string {
	as := asAssessment(state[keyRound1Assessment])
	switch {
	case as.Sufficient:
		return "sufficient"
	case as.NeedsMoreWeb:
		return "needs_web_round2"
	default:
		return "needs_gap_filling"
	}
}

// gapAnalysisLocal names what round 1 missed and picks the follow-up
// queries for round 2.
func (a *Agent) gapAnalysisLocal(ctx context.Context, state graph.State) (graph.State, error) {
	as := asAssessment(state[keyRound1Assessment])

	prompt := heredoc.Docf(`
		Round 1 research did not fully answer the question. Identify what is
		missing and suggest follow-up search queries.

		Question: %s

		Gathered so far:
		%s

		Known missing info: %s

		Output format:
		{"missing_entities": ["..."], "suggested_queries": ["..."], "needs_web_search": false, "gap_severity": "moderate", "reasoning": "..."}
	`, originalQuery(state),
		emptyNote(clip(types.AsString(state[keyRound1Results]), assessTrim)),
		strings.Join(as.MissingInfo, "; "))

	out := graph.State{}
	ga, resp, err := a.analyzeGaps(ctx, prompt)
	if resp != nil {
		agent.AccumulateUsage(state, out, resp.Usage)
	}
	if err != nil {
		a.logger.Warn("gap analysis degraded to local round 2", zap.Error(err))
		a.tracer.RecordMetric("research.gap_analysis.fallback", 1, map[string]string{"stage": "local"})
		ga = gapAnalysis{GapSeverity: "moderate"}
	}

	var flat map[string]any
	_ = types.Remarshal(ga, &flat)
	out[keyGapAnalysis] = flat
	out[keyIdentifiedGaps] = identifiedGaps(ga, originalQuery(state))
	return out, nil
}

func routeGapAnalysis(state graph.State) string {
	ga := asGapAnalysis(state[keyGapAnalysis])
	if ga.GapSeverity == "severe" && ga.NeedsWebSearch {
		return "needs_web"
	}
	return "round2_local"
}

// assessWebRound1 judges the dedicated web pass on its own.
func (a *Agent) assessWebRound1(ctx context.Context, state graph.State) (graph.State, error) {
	web := clip(types.AsString(state[keyWebRound1Results]), assessTrim)

	prompt := heredoc.Docf(`
		Assess whether the web research below is enough to answer the
		question.

		Question: %s

		WEB CONTENT:
		%s

		Output format:
		{"sufficient": false, "has_relevant_info": true, "confidence": 0.0, "missing_info": ["..."], "reasoning": "...", "best_source": "web", "needs_more_local": false, "needs_more_web": false}
	`, originalQuery(state), emptyNote(web))

	out := graph.State{keyCurrentRound: roundAssessWebOne}
	as, resp, err := a.assess(ctx, prompt)
	if resp != nil {
		agent.AccumulateUsage(state, out, resp.Usage)
	}
	if err != nil {
		a.logger.Warn("web assessment degraded to not-sufficient", zap.Error(err))
		a.tracer.RecordMetric("research.assessment.fallback", 1, map[string]string{"stage": "web_round1"})
		as = assessment{Sufficient: false}
	}

	var flat map[string]any
	_ = types.Remarshal(as, &flat)
	out[keyWebRound1Assessment] = flat
	out[keyWebRound1Sufficient] = as.Sufficient
	return out, nil
}

func routeWebAssessment(state graph.State) string {
	if types.AsBool(state[keyWebRound1Sufficient]) {
		return "sufficient"
	}
	return "needs_web_gap_analysis"
}

// gapAnalysisWeb decides whether one more targeted web round is worth it.
func (a *Agent) gapAnalysisWeb(ctx context.Context, state graph.State) (graph.State, error) {
	as := asAssessment(state[keyWebRound1Assessment])

	prompt := heredoc.Docf(`
		Web research still has gaps. Decide whether one more targeted web
		search would close them, and with what query.

		Question: %s

		Web content so far:
		%s

		Known missing info: %s

		Output format:
		{"missing_entities": ["..."], "suggested_queries": ["..."], "needs_web_search": false, "gap_severity": "moderate", "reasoning": "..."}
	`, originalQuery(state),
		emptyNote(clip(types.AsString(state[keyWebRound1Results]), assessTrim)),
		strings.Join(as.MissingInfo, "; "))

	out := graph.State{keyCurrentRound: roundGapAnalysisWeb}
	ga, resp, err := a.analyzeGaps(ctx, prompt)
	if resp != nil {
		agent.AccumulateUsage(state, out, resp.Usage)
	}
	if err != nil {
		// Conservative fallback: no further web I/O.
		a.logger.Warn("web gap analysis degraded to synthesis", zap.Error(err))
		a.tracer.RecordMetric("research.gap_analysis.fallback", 1, map[string]string{"stage": "web"})
		ga = gapAnalysis{GapSeverity: "minor", NeedsWebSearch: false}
	}

	var flat map[string]any
	_ = types.Remarshal(ga, &flat)
	out[keyWebGapAnalysis] = flat
	out[keyWebIdentifiedGaps] = identifiedGaps(ga, originalQuery(state))
	return out, nil
}

func routeWebGapAnalysis(state graph.State) string {
	if asGapAnalysis(state[keyWebGapAnalysis]).NeedsWebSearch {
		return "web_round2"
	}
	return "sufficient"
}

// detectQueryType decides whether synthesis answers directly or presents
// named options.
func (a *Agent) detectQueryType(ctx context.Context, state graph.State) (graph.State, error) {
	prompt := heredoc.Docf(`
		Classify this question before writing the answer.

		Question: %s

		objective: one verifiable answer exists.
		subjective: taste or judgment; distinct good answers exist.
		mixed: a factual core with meaningful alternatives.

		Output format:
		{"query_type": "objective", "confidence": 0.0, "should_present_options": false, "num_options": null, "reasoning": "..."}
	`, originalQuery(state))

	out := graph.State{}
	var det queryTypeDetection
	opts := types.ChatOptions{}.WithTemperature(0)
	resp, err := llm.ChatStructured(ctx, a.provider, []types.Message{types.UserMessage(prompt)}, &opts, queryTypeSchema, &det)
	if resp != nil {
		agent.AccumulateUsage(state, out, resp.Usage)
	}
	if err != nil {
		// Conservative fallback: default to objective.
		a.logger.Warn("query-type detection degraded to objective", zap.Error(err))
		a.tracer.RecordMetric("research.query_type.fallback", 1, nil)
		det = queryTypeDetection{QueryType: "objective"}
	}

	// Subjective answers always present options; clamp the count to 2..3.
	if det.QueryType == "subjective" {
		det.ShouldPresentOptions = true
	}
	if det.ShouldPresentOptions {
		if det.NumOptions < 2 || det.NumOptions > 3 {
			det.NumOptions = 3
		}
	} else {
		det.NumOptions = 0
	}

	var flat map[string]any
	_ = types.Remarshal(det, &flat)
	out[keyQueryTypeDetection] = flat
	out[keyQueryType] = det.QueryType
	out[keyShouldPresentOptions] = det.ShouldPresentOptions
	out[keyNumOptions] = det.NumOptions
	return out, nil
}

func (a *Agent) assess(ctx context.Context, prompt string) (assessment, *types.LLMResponse, error) {
	var as assessment
	opts := types.ChatOptions{}.WithTemperature(0)
	resp, err := llm.ChatStructured(ctx, a.provider, []types.Message{types.UserMessage(prompt)}, &opts, assessmentSchema, &as)
	return as, resp, err
}

func (a *Agent) analyzeGaps(ctx context.Context, prompt string) (gapAnalysis, *types.LLMResponse, error) {
	var ga gapAnalysis
	opts := types.ChatOptions{}.WithTemperature(0)
	resp, err := llm.ChatStructured(ctx, a.provider, []types.Message{types.UserMessage(prompt)}, &opts, gapAnalysisSchema, &ga)
	return ga, resp, err
}

// identifiedGaps picks the follow-up queries: suggested queries first,
// then missing entities, then the original question.
func identifiedGaps(ga gapAnalysis, original string) []string {
	if len(ga.SuggestedQueries) > 0 {
		return ga.SuggestedQueries
	}
	if len(ga.MissingEntities) > 0 {
		return ga.MissingEntities
	}
	return []string{original}
}

func asAssessment(v any) assessment {
	var out assessment
	if v != nil {
		_ = types.Remarshal(v, &out)
	}
	return out
}

func asGapAnalysis(v any) gapAnalysis {
	var out gapAnalysis
	if v != nil {
		_ = types.Remarshal(v, &out)
	}
	return out
}

// emptyNote substitutes a marker for empty research sections so prompts
// stay unambiguous.
func emptyNote(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(no results)"
	}
	return s
}
