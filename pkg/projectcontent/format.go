// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package projectcontent

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	wouldYouLikePattern  = regexp.MustCompile(`(?i)\bwould you like (?:me )?to ([^?]+)\?`)
	opinionMarkerPattern = regexp.MustCompile(`(?i)\b(?:i|we|you)\s+(?:think|believe|feel|suggest|recommend)\s+(?:that\s+)?`)
	letMeKnowPattern     = regexp.MustCompile(`(?i)^(?:let me know|feel free)\b`)
	letLeadPattern       = regexp.MustCompile(`(?i)^let(?:'s| us| me)\s+`)
	spaceRunPattern      = regexp.MustCompile(`[ \t]{2,}`)
	blankRunPattern      = regexp.MustCompile(`\n{3,}`)
)

// FormatAsReference rewrites a conversational reply as reference prose:
// offers become recommendations, opinion lead-ins and sign-off chatter go
// away, whitespace is normalized. Paragraph breaks survive.
func FormatAsReference(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	paragraphs := strings.Split(text, "\n\n")
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if formatted := formatParagraph(p); formatted != "" {
			out = append(out, formatted)
		}
	}

	joined := strings.Join(out, "\n\n")
	joined = spaceRunPattern.ReplaceAllString(joined, " ")
	joined = blankRunPattern.ReplaceAllString(joined, "\n\n")
	return strings.TrimSpace(joined)
}

func formatParagraph(paragraph string) string {
	var kept []string
	for _, s := range splitSentences(paragraph) {
		if letMeKnowPattern.MatchString(s) {
			continue
		}
		s = wouldYouLikePattern.ReplaceAllStringFunc(s, func(m string) string {
			sub := wouldYouLikePattern.FindStringSubmatch(m)
			return capitalizeFirst(strings.TrimSpace(sub[1])) + " is recommended."
		})
		s = opinionMarkerPattern.ReplaceAllString(s, "")
		s = letLeadPattern.ReplaceAllString(s, "")
		s = strings.TrimSpace(s)
		if s == "" || strings.Trim(s, ".!?") == "" {
			continue
		}
		kept = append(kept, capitalizeFirst(s))
	}
	return strings.Join(kept, " ")
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
