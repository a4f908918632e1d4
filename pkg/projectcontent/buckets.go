// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package projectcontent

import (
	"strings"
)

// currentStateKeywords mark sentences describing what the project has
// today; newPlansKeywords mark proposals and next steps. A sentence that
// carries both reads as current state.
var currentStateKeywords = []string{
	"currently", "now", "existing", "already", "have", "has", "is using",
	"current setup", "current system", "present", "at present", "right now",
}

var newPlansKeywords = []string{
	"should", "recommend", "suggest", "plan", "propose", "consider",
	"next step", "would be", "could", "might want", "option", "alternative",
	"better", "improve", "upgrade", "replace",
}

// StructuredReturn carries fields a project agent already structured, so
// they skip sentence heuristics entirely.
type StructuredReturn struct {
	Components   []string
	Code         []string
	Calculations []string
}

// Buckets is an agent response sorted by destination.
type Buckets struct {
	CurrentState string
	NewPlans     string
	Components   string
	Code         string
	Calculations string
	General      string
}

// ExtractBuckets sorts the response's sentences into current state, new
// plans, and general, and renders any structured fields into their own
// buckets.
func ExtractBuckets(response string, structured *StructuredReturn) Buckets {
	var current, plans, general []string
	for _, s := range splitSentences(response) {
		toks := wordSet(s)
		switch {
		case matchesAnyKeyword(s, toks, currentStateKeywords):
			current = append(current, s)
		case matchesAnyKeyword(s, toks, newPlansKeywords):
			plans = append(plans, s)
		default:
			general = append(general, s)
		}
	}

	b := Buckets{
		CurrentState: strings.Join(current, " "),
		NewPlans:     strings.Join(plans, " "),
		General:      strings.Join(general, " "),
	}
	if structured != nil {
		b.Components = renderItemList(structured.Components)
		b.Code = strings.Join(structured.Code, "\n\n")
		b.Calculations = renderItemList(structured.Calculations)
	}
	return b
}

// splitSentences cuts on terminal punctuation and line breaks. It does
// not try to protect abbreviations; bucket keywords survive either way.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			flush()
		}
	}
	flush()
	return out
}

// matchesAnyKeyword uses whole-word matching for single words and plain
// substring matching for phrases, so "now" never fires inside "known".
func matchesAnyKeyword(sentence string, toks map[string]bool, keywords []string) bool {
	lower := strings.ToLower(sentence)
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(lower, kw) {
				return true
			}
			continue
		}
		if toks[kw] {
			return true
		}
	}
	return false
}

func wordSet(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func renderItemList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		if it = strings.TrimSpace(it); it == "" {
			continue
		}
		b.WriteString("- " + it + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
