// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package orchestrator

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/conductor/pkg/types"
)

// extractEditor returns a normalized copy of the request's active-editor
// context. Scalar fields copy verbatim, canonical_path included so
// relative references like ./foo.md still resolve. Frontmatter custom
// fields that arrive as stringified lists are parsed back into real
// lists; keys like files, components, and protocols drive project file
// routing and must be lists by the time an agent sees them.
func extractEditor(in *types.ActiveEditor) *types.ActiveEditor {
	if in == nil {
		return nil
	}
	out := *in
	if in.Frontmatter != nil {
		fm := *in.Frontmatter
		if len(in.Frontmatter.CustomFields) > 0 {
			fm.CustomFields = make(map[string]any, len(in.Frontmatter.CustomFields))
			for k, v := range in.Frontmatter.CustomFields {
				fm.CustomFields[k] = normalizeCustomField(v)
			}
		}
		out.Frontmatter = &fm
	}
	return &out
}

// normalizeCustomField converts a stringified list back into a list.
// Bracketed strings try a Python-style literal first, then JSON; a
// multi-line string whose trimmed first line starts with a dash parses
// as a YAML sequence. Anything else passes through unchanged, including
// strings neither parse accepts.
func normalizeCustomField(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)

	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		if list, ok := parseLiteralList(trimmed); ok {
			return list
		}
		var list []any
		if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
			return list
		}
		return v
	}

	if first, _, multiline := strings.Cut(trimmed, "\n"); multiline && strings.HasPrefix(strings.TrimSpace(first), "-") {
		var list []any
		if err := yaml.Unmarshal([]byte(trimmed), &list); err == nil {
			return list
		}
	}

	return v
}

// parseLiteralList parses the Python-style list literal the ingress
// serializes frontmatter lists in, e.g. ['./a.md', './b.md']. Items are
// single- or double-quoted strings or bare tokens; nested structures are
// rejected so the JSON fallback can try instead.
func parseLiteralList(s string) ([]any, bool) {
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return []any{}, true
	}

	items := []any{}
	i := 0
	for i < len(inner) {
		i = skipSpace(inner, i)
		if i >= len(inner) {
			break
		}
		switch c := inner[i]; c {
		case '\'', '"':
			end := strings.IndexByte(inner[i+1:], c)
			if end < 0 {
				return nil, false
			}
			items = append(items, inner[i+1:i+1+end])
			i += end + 2
		case '[', '{':
			return nil, false
		default:
			stop := strings.IndexByte(inner[i:], ',')
			if stop < 0 {
				stop = len(inner) - i
			}
			tok := strings.TrimSpace(inner[i : i+stop])
			if tok == "" {
				return nil, false
			}
			items = append(items, tok)
			i += stop
		}
		i = skipSpace(inner, i)
		if i < len(inner) {
			if inner[i] != ',' {
				return nil, false
			}
			i++
		}
	}
	return items, true
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}
