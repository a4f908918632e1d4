// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package projectcontent

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Thresholds gating a new-file suggestion. Tuned against real projects;
// see the router docs before changing them.
const (
	NewFileMinContentLength = 1500
	NewFileMinSpecificNames = 2
	NewFileMaxExistingScore = 0.2
)

// minTopicHits is how many distinct type keywords the content must hit
// before the topic counts as strong.
const minTopicHits = 3

// NewFileSuggestion proposes a dedicated project file for content that
// has no good home among the referenced files.
type NewFileSuggestion struct {
	SuggestedFilename    string `json:"suggested_filename"`
	SuggestedTitle       string `json:"suggested_title"`
	SuggestedDescription string `json:"suggested_description"`
	ContentType          string `json:"content_type"`
	FileType             string `json:"file_type"`
	FrontmatterKey       string `json:"frontmatter_key"`
	Section              string `json:"section"`
	SuggestionMessage    string `json:"suggestion_message"`
}

var titleCaser = cases.Title(language.English)

var slugStripPattern = regexp.MustCompile(`[^a-z0-9]+`)

// commonCapitalized filters sentence-leading words out of the specific
// name count.
var commonCapitalized = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"And": true, "But": true, "For": true, "Not": true, "All": true,
	"With": true, "When": true, "While": true, "Here": true, "Its": true,
	"You": true, "Your": true, "Our": true, "They": true, "There": true,
	"Each": true, "After": true, "Before": true, "Also": true, "Then": true,
	"Use": true, "Using": true, "Note": true, "First": true, "Next": true,
	"Second": true, "Finally": true, "However": true, "Since": true,
	"Because": true, "Both": true, "Some": true, "Any": true, "Most": true,
	"New": true, "Now": true, "Once": true, "What": true, "Where": true,
}

// SuggestNewFile returns a suggestion only when the content is
// substantial, strongly typed, names specific components, and no existing
// file of the same type scored above the routing floor.
func SuggestNewFile(contentType, text string, candidates []FileCandidate, scores map[string]float64) *NewFileSuggestion {
	if len(text) <= NewFileMinContentLength {
		return nil
	}
	if distinctTopicHits(contentType, text) < minTopicHits {
		return nil
	}
	names := specificNames(text)
	if len(names) < NewFileMinSpecificNames {
		return nil
	}
	for _, c := range candidates {
		if filenameMatchesType(c.Path, contentType) && scores[c.Path] > NewFileMaxExistingScore {
			return nil
		}
	}

	primary := names[0]
	typeNoun := titleCaser.String(contentType)
	filename := slugify(primary+" "+contentType) + ".md"
	listed := strings.Join(capStrings(names, 3), ", ")
	return &NewFileSuggestion{
		SuggestedFilename:    filename,
		SuggestedTitle:       primary + " " + typeNoun,
		SuggestedDescription: fmt.Sprintf("%s notes covering %s.", typeNoun, listed),
		ContentType:          contentType,
		FileType:             "markdown",
		FrontmatterKey:       "files",
		Section:              SectionForType(contentType),
		SuggestionMessage: fmt.Sprintf(
			"This looks like substantial %s content about %s with no matching project file. Want me to create %s for it?",
			contentType, listed, filename),
	}
}

func distinctTopicHits(contentType, text string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range typeKeywords[contentType] {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return hits
}

// specificNames lists distinct capitalized component-like names in first
// appearance order.
func specificNames(text string) []string {
	seen := map[string]bool{}
	var names []string
	for _, n := range capitalizedNamePattern.FindAllString(text, -1) {
		if commonCapitalized[n] || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names
}

func slugify(s string) string {
	s = slugStripPattern.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

func capStrings(in []string, n int) []string {
	if len(in) <= n {
		return in
	}
	return in[:n]
}
