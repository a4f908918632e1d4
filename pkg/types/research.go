// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

// ResearchRound names a workflow stage for observability.
type ResearchRound string

const (
	RoundQuickAnswerCheck ResearchRound = "quick_answer_check"
	RoundCacheCheck       ResearchRound = "cache_check"
	RoundInitialLocal     ResearchRound = "initial_local"
	RoundGapFilling       ResearchRound = "round_2_gap_filling"
	RoundWeb1             ResearchRound = "web_round_1"
	RoundAssessWeb1       ResearchRound = "assess_web_round_1"
	RoundGapAnalysisWeb   ResearchRound = "gap_analysis_web"
	RoundWeb2             ResearchRound = "web_round_2"
	RoundFinalSynthesis   ResearchRound = "final_synthesis"
)

// Source labels for assessments.
const (
	SourceLocal = "local"
	SourceWeb   = "web"
	SourceBoth  = "both"
)

// Assessment is an LLM judgment of whether gathered research suffices.
type Assessment struct {
	Sufficient      bool     `json:"sufficient"`
	HasRelevantInfo bool     `json:"has_relevant_info"`
	Confidence      float64  `json:"confidence"`
	MissingInfo     []string `json:"missing_info,omitempty"`
	Reasoning       string   `json:"reasoning,omitempty"`
	BestSource      string   `json:"best_source,omitempty"`
	NeedsMoreLocal  bool     `json:"needs_more_local"`
	NeedsMoreWeb    bool     `json:"needs_more_web"`
}

// Gap severity levels.
const (
	GapMinor    = "minor"
	GapModerate = "moderate"
	GapSevere   = "severe"
)

// GapAnalysis names what round 1 missed and how to fill it.
type GapAnalysis struct {
	MissingEntities  []string `json:"missing_entities,omitempty"`
	SuggestedQueries []string `json:"suggested_queries,omitempty"`
	NeedsWebSearch   bool     `json:"needs_web_search"`
	GapSeverity      string   `json:"gap_severity,omitempty"`
	Reasoning        string   `json:"reasoning,omitempty"`
}

// Query type labels.
const (
	QueryObjective  = "objective"
	QuerySubjective = "subjective"
	QueryMixed      = "mixed"
)

// QueryTypeDetection decides whether synthesis presents options.
type QueryTypeDetection struct {
	QueryType            string  `json:"query_type"`
	Confidence           float64 `json:"confidence"`
	ShouldPresentOptions bool    `json:"should_present_options"`
	NumOptions           int     `json:"num_options,omitempty"`
	Reasoning            string  `json:"reasoning,omitempty"`
}
