// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package orginbox

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/teradata-labs/conductor/pkg/types"
)

// orgLinkPattern matches [[file:path][description]] and [[file:path]];
// the path segment may carry a ::*Heading anchor.
var orgLinkPattern = regexp.MustCompile(`\[\[file:([^\]\[]+)\](?:\[([^\]\[]+)\])?\]`)

// orgHeadingPattern matches org headings at any level, multiline.
var orgHeadingPattern = regexp.MustCompile(`(?m)^(\*+)[ \t]+(.*)$`)

var projectPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`for my (.+?) project\b`),
	regexp.MustCompile(`the (.+?) plan\b`),
}

// orgLink is one file reference lifted from the open editor, annotated
// with why the filter kept it.
type orgLink struct {
	FilePath      string `json:"file_path"`
	Heading       string `json:"heading,omitempty"`
	Description   string `json:"description,omitempty"`
	ContextReason string `json:"context_reason"`

	offset int
}

// headingSpan is an org heading plus the byte range of its subtree, which
// runs to the next heading of equal or shallower depth.
type headingSpan struct {
	level int
	text  string
	start int
	end   int
}

// parseOrgLinks extracts every file link in reading order.
func parseOrgLinks(content string) []orgLink {
	matches := orgLinkPattern.FindAllStringSubmatchIndex(content, -1)
	links := make([]orgLink, 0, len(matches))
	for _, m := range matches {
		target := content[m[2]:m[3]]
		path, heading := target, ""
		if i := strings.Index(target, "::"); i >= 0 {
			path = target[:i]
			heading = strings.TrimSpace(strings.TrimPrefix(target[i+2:], "*"))
		}
		link := orgLink{FilePath: strings.TrimSpace(path), Heading: heading, offset: m[0]}
		if m[4] >= 0 {
			link.Description = content[m[4]:m[5]]
		}
		links = append(links, link)
	}
	return links
}

// parseHeadings returns all headings with their subtree extents.
func parseHeadings(content string) []headingSpan {
	matches := orgHeadingPattern.FindAllStringSubmatchIndex(content, -1)
	spans := make([]headingSpan, 0, len(matches))
	for _, m := range matches {
		spans = append(spans, headingSpan{
			level: m[3] - m[2],
			text:  content[m[4]:m[5]],
			start: m[0],
			end:   len(content),
		})
	}
	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			if spans[j].level <= spans[i].level {
				spans[i].end = spans[j].start
				break
			}
		}
	}
	return spans
}

// filterLinks narrows the editor's links to the ones the message is
// about. Cursor position wins when it sits inside a subtree with links;
// next a project-name phrase in the message selects matching subtrees;
// with no signal every link stays.
func filterLinks(editor *types.ActiveEditor, query string) []orgLink {
	if editor == nil {
		return nil
	}
	links := parseOrgLinks(editor.Content)
	if len(links) == 0 {
		return nil
	}
	headings := parseHeadings(editor.Content)

	if editor.CursorOffset > 0 {
		if h := innermostHeading(headings, editor.CursorOffset); h != nil {
			if kept := linksWithin(links, h.start, h.end, "cursor_subtree"); len(kept) > 0 {
				return kept
			}
		}
	}

	if phrases := projectPhrases(query); len(phrases) > 0 {
		var kept []orgLink
		for _, h := range headings {
			if !headingMatchesAny(h.text, phrases) {
				continue
			}
			kept = append(kept, linksWithin(links, h.start, h.end, "project_phrase")...)
		}
		if kept = dedupeLinks(kept); len(kept) > 0 {
			return kept
		}
	}

	for i := range links {
		links[i].ContextReason = "all_links"
	}
	return links
}

// innermostHeading finds the deepest subtree containing the offset.
func innermostHeading(headings []headingSpan, offset int) *headingSpan {
	var found *headingSpan
	for i := range headings {
		h := &headings[i]
		if h.start <= offset && offset < h.end {
			if found == nil || h.start > found.start {
				found = h
			}
		}
	}
	return found
}

func linksWithin(links []orgLink, start, end int, reason string) []orgLink {
	var kept []orgLink
	for _, l := range links {
		if l.offset >= start && l.offset < end {
			l.ContextReason = reason
			kept = append(kept, l)
		}
	}
	return kept
}

func dedupeLinks(links []orgLink) []orgLink {
	seen := make(map[int]bool, len(links))
	out := links[:0]
	for _, l := range links {
		if seen[l.offset] {
			continue
		}
		seen[l.offset] = true
		out = append(out, l)
	}
	return out
}

// projectPhrases pulls project names out of wordings like
// "for my alpha rollout project" or "the migration plan".
func projectPhrases(query string) []string {
	lower := strings.ToLower(query)
	var phrases []string
	for _, p := range projectPhrasePatterns {
		for _, m := range p.FindAllStringSubmatch(lower, -1) {
			if s := strings.TrimSpace(m[1]); s != "" {
				phrases = append(phrases, s)
			}
		}
	}
	return phrases
}

func headingMatchesAny(heading string, phrases []string) bool {
	ht := tokensOf(heading)
	for _, p := range phrases {
		for tok := range tokensOf(p) {
			if ht[tok] {
				return true
			}
		}
	}
	return false
}

func tokensOf(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	toks := make(map[string]bool, len(fields))
	for _, f := range fields {
		toks[f] = true
	}
	return toks
}
