// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package projectcontent

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
)

// Edit modes for a routed section.
const (
	ModeReplace = "replace"
	ModeAppend  = "append"
)

// Update-vs-append thresholds.
const (
	placeholderMaxChars  = 30
	smallSectionMaxChars = 200
	replaceOverlapRatio  = 0.15
	replaceGrowthFactor  = 1.2
	nameDriftRatio       = 0.5
	fuzzyTokenOverlap    = 0.5
)

var mdHeaderPattern = regexp.MustCompile(`(?m)^(#{1,3})[ \t]+(.+)$`)

var capitalizedNamePattern = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]{2,}\b`)

// updateCueWords in new content signal it supersedes the old section.
var updateCueWords = []string{
	"update", "replace", "revise", "modify", "improve", "expand",
	"enhance", "changed", "switching", "instead of",
}

var placeholderMarkers = []string{"content will be added", "todo:"}

// mdSection is one markdown section: the header line plus the content
// that runs to the next header of equal or shallower depth.
type mdSection struct {
	name         string
	level        int
	headerStart  int
	contentStart int
	contentEnd   int
}

// editDecision says what to do with a routed piece of content.
type editDecision struct {
	Mode    string
	Section *mdSection
	Fuzzy   bool
	Reason  string
}

func parseSections(doc string) []mdSection {
	matches := mdHeaderPattern.FindAllStringSubmatchIndex(doc, -1)
	sections := make([]mdSection, 0, len(matches))
	for _, m := range matches {
		contentStart := m[1]
		if contentStart < len(doc) && doc[contentStart] == '\n' {
			contentStart++
		}
		sections = append(sections, mdSection{
			name:         strings.TrimSpace(doc[m[4]:m[5]]),
			level:        m[3] - m[2],
			headerStart:  m[0],
			contentStart: contentStart,
			contentEnd:   len(doc),
		})
	}
	for i := range sections {
		for j := i + 1; j < len(sections); j++ {
			if sections[j].level <= sections[i].level {
				sections[i].contentEnd = sections[j].headerStart
				break
			}
		}
	}
	return sections
}

// findSection locates a section by exact header match, then by fuzzy
// match ranked with sahilm/fuzzy and accepted at half token overlap.
func findSection(doc, name string) (*mdSection, bool) {
	sections := parseSections(doc)
	for i := range sections {
		if strings.EqualFold(sections[i].name, name) {
			return &sections[i], false
		}
	}

	headers := make([]string, len(sections))
	for i, s := range sections {
		headers[i] = s.name
	}
	for _, m := range fuzzy.Find(name, headers) {
		if tokenOverlapRatioOf(name, headers[m.Index]) >= fuzzyTokenOverlap {
			return &sections[m.Index], true
		}
	}
	return nil, false
}

// decideSectionEdit applies the replace-vs-append rules: placeholders are
// always replaced; a located section is replaced when any supersession
// signal holds; content with no home is appended.
func decideSectionEdit(doc, sectionName, newContent string) editDecision {
	sec, fuzzyMatched := findSection(doc, sectionName)
	if sec == nil {
		return editDecision{Mode: ModeAppend, Reason: "no existing section"}
	}

	existing := strings.TrimSpace(doc[sec.contentStart:sec.contentEnd])
	if isPlaceholder(existing) {
		return editDecision{Mode: ModeReplace, Section: sec, Fuzzy: fuzzyMatched, Reason: "placeholder content"}
	}

	lowerNew := strings.ToLower(newContent)
	switch {
	case !fuzzyMatched:
		return editDecision{Mode: ModeReplace, Section: sec, Reason: "exact section name"}
	case tokenOverlapRatioOf(existing, newContent) > replaceOverlapRatio:
		return editDecision{Mode: ModeReplace, Section: sec, Fuzzy: true, Reason: "content overlap"}
	case len(existing) < smallSectionMaxChars:
		return editDecision{Mode: ModeReplace, Section: sec, Fuzzy: true, Reason: "small existing section"}
	case float64(len(newContent)) > replaceGrowthFactor*float64(len(existing)):
		return editDecision{Mode: ModeReplace, Section: sec, Fuzzy: true, Reason: "new content supersedes by size"}
	case containsAnyCue(lowerNew, updateCueWords):
		return editDecision{Mode: ModeReplace, Section: sec, Fuzzy: true, Reason: "update cue words"}
	case nameSymmetricDifference(existing, newContent) > nameDriftRatio:
		return editDecision{Mode: ModeReplace, Section: sec, Fuzzy: true, Reason: "component names drifted"}
	default:
		return editDecision{Mode: ModeReplace, Section: sec, Fuzzy: true, Reason: "fuzzy header match"}
	}
}

// applySectionEdit produces the updated document. Replace splices the
// section's content range; append adds a timestamped section at the end.
func applySectionEdit(doc, sectionName, newContent string, decision editDecision, now time.Time) string {
	newContent = strings.TrimSpace(newContent)
	if decision.Mode == ModeReplace && decision.Section != nil {
		sec := decision.Section
		body := "\n" + newContent + "\n"
		if sec.contentEnd < len(doc) {
			body += "\n"
		}
		return doc[:sec.contentStart] + body + doc[sec.contentEnd:]
	}

	block := sectionBlock(sectionName, newContent, now)
	trimmed := strings.TrimRight(doc, "\n")
	if trimmed == "" {
		return block
	}
	return trimmed + "\n\n" + block
}

// sectionBlock renders a timestamped section, the form appended content
// always takes.
func sectionBlock(sectionName, content string, now time.Time) string {
	return fmt.Sprintf("## %s (%s)\n\n%s\n", sectionName, now.Format("2006-01-02 15:04"), strings.TrimSpace(content))
}

// isPlaceholder recognizes sections that hold no real content yet.
func isPlaceholder(content string) bool {
	lower := strings.ToLower(content)
	for _, m := range placeholderMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return nonMarkupLen(content) < placeholderMaxChars
}

// nonMarkupLen counts characters that are neither markdown punctuation,
// HTML comments, nor whitespace.
func nonMarkupLen(s string) int {
	s = htmlCommentPattern.ReplaceAllString(s, "")
	n := 0
	for _, r := range s {
		switch r {
		case '#', '*', '-', '>', '|', '!', '[', ']', '(', ')', '`', ' ', '\t', '\n', '\r':
		default:
			n++
		}
	}
	return n
}

var htmlCommentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)

func containsAnyCue(lower string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

func tokenOverlapRatioOf(a, b string) float64 {
	as, bs := wordSet(a), wordSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for t := range as {
		if bs[t] {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

// nameSymmetricDifference compares capitalized component-like names in
// two texts: 1.0 means disjoint sets, 0 means identical.
func nameSymmetricDifference(a, b string) float64 {
	as := nameSet(a)
	bs := nameSet(b)
	if len(as) == 0 && len(bs) == 0 {
		return 0
	}
	inter := 0
	for n := range as {
		if bs[n] {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(union-inter) / float64(union)
}

func nameSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, n := range capitalizedNamePattern.FindAllString(s, -1) {
		set[n] = true
	}
	return set
}
