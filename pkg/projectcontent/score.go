// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package projectcontent

import (
	"strings"

	"github.com/teradata-labs/conductor/pkg/types"
)

// Scoring weights for routing content to a referenced file.
const (
	referencedBaseScore   = 3.0
	unreferencedBaseScore = 1.0
	referencedBoost       = 2.0
	keywordOverlapWeight  = 0.5
	keywordOverlapCap     = 2.0
	responseOverlapWeight = 0.1
	responseOverlapCap    = 1.0
)

// FileCandidate is one file the project frontmatter references.
type FileCandidate struct {
	Path        string
	Title       string
	Description string
	Referenced  bool
}

// BuildCandidates lists the project's files from frontmatter custom
// fields: `files` names them, `referenced_context` marks the ones the
// conversation is anchored on.
func BuildCandidates(fm *types.Frontmatter) []FileCandidate {
	if fm == nil || fm.CustomFields == nil {
		return nil
	}
	files := types.AsStringSlice(fm.CustomFields["files"])
	referenced := make(map[string]bool)
	for _, r := range types.AsStringSlice(fm.CustomFields["referenced_context"]) {
		referenced[normalizePath(r)] = true
	}

	out := make([]FileCandidate, 0, len(files))
	for _, f := range files {
		if f = strings.TrimSpace(f); f == "" {
			continue
		}
		out = append(out, FileCandidate{
			Path:       f,
			Title:      titleFromPath(f),
			Referenced: referenced[normalizePath(f)],
		})
	}
	return out
}

// ScoreFile rates one candidate for a piece of content: a type-matching
// filename earns the base, referenced files earn the boost, and keyword
// and word overlap refine the ranking.
func ScoreFile(c FileCandidate, contentType, text string) float64 {
	score := 0.0

	if filenameMatchesType(c.Path, contentType) {
		if c.Referenced {
			score += referencedBaseScore
		} else {
			score += unreferencedBaseScore
		}
	}
	if c.Referenced {
		score += referencedBoost
	}

	meta := strings.ToLower(c.Title + " " + c.Description)
	overlap := 0.0
	for _, kw := range typeKeywords[contentType] {
		if strings.Contains(meta, kw) {
			overlap += keywordOverlapWeight
		}
	}
	if overlap > keywordOverlapCap {
		overlap = keywordOverlapCap
	}
	score += overlap

	metaToks := wordSet(meta)
	shared := 0.0
	for _, w := range wordList(text) {
		if len(w) >= 4 && metaToks[w] {
			shared += responseOverlapWeight
			delete(metaToks, w)
		}
	}
	if shared > responseOverlapCap {
		shared = responseOverlapCap
	}
	score += shared

	return score
}

// PickTargetFile returns the best-scoring candidate and every score.
// Architecture content never routes to a side file; the caller sends it
// to the main plan.
func PickTargetFile(candidates []FileCandidate, contentType, text string) (*FileCandidate, map[string]float64) {
	scores := make(map[string]float64, len(candidates))
	if contentType == TypeArchitecture {
		return nil, scores
	}

	var best *FileCandidate
	bestScore := 0.0
	for i := range candidates {
		s := ScoreFile(candidates[i], contentType, text)
		scores[candidates[i].Path] = s
		if s > bestScore {
			bestScore = s
			best = &candidates[i]
		}
	}
	return best, scores
}

func normalizePath(p string) string {
	return strings.TrimPrefix(strings.TrimSpace(p), "./")
}

func titleFromPath(p string) string {
	base := normalizePath(p)
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return capitalizeFirst(base)
}
