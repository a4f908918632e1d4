// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/teradata-labs/conductor/pkg/types"
)

// ExtractJSON pulls the outermost JSON object out of an LLM reply. Models
// wrap JSON in markdown fences or prose despite instructions, so the
// extractor strips fences first and then takes everything between the
// first '{' and the last '}'.
func ExtractJSON(content string) (string, error) {
	text := strings.TrimSpace(content)

	// Strip markdown code fences (```json ... ``` or ``` ... ```)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", &types.ParseError{Reason: "no JSON object found", Raw: content}
	}
	return text[start : end+1], nil
}

// ParseStructured extracts the JSON object from content, validates it
// against the given JSON schema (skipped when schema is empty), and
// unmarshals it into out. Failures return *types.ParseError so callers can
// apply their documented deterministic fallback instead of guessing.
func ParseStructured(content, schema string, out any) error {
	raw, err := ExtractJSON(content)
	if err != nil {
		return err
	}

	if schema != "" {
		result, err := gojsonschema.Validate(
			gojsonschema.NewStringLoader(schema),
			gojsonschema.NewStringLoader(raw),
		)
		if err != nil {
			return &types.ParseError{Reason: "schema validation errored: " + err.Error(), Raw: raw}
		}
		if !result.Valid() {
			reasons := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				reasons = append(reasons, e.String())
			}
			return &types.ParseError{Reason: "schema violation: " + strings.Join(reasons, "; "), Raw: raw}
		}
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &types.ParseError{Reason: "unmarshal failed: " + err.Error(), Raw: raw}
	}
	return nil
}

// ChatStructured runs a chat call and parses the reply as schema-validated
// JSON into out. The *types.ParseError from a malformed reply is returned
// alongside the raw response so callers can log it and fall back.
func ChatStructured(ctx context.Context, provider types.LLMProvider, messages []types.Message, opts *types.ChatOptions, schema string, out any) (*types.LLMResponse, error) {
	resp, err := provider.Chat(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	if err := ParseStructured(resp.Content, schema, out); err != nil {
		return resp, err
	}
	return resp, nil
}
