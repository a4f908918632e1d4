// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package projectcontent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// splitFrontmatter separates a leading YAML frontmatter block from the
// document body. rawBlock includes both fence lines.
func splitFrontmatter(content string) (rawBlock, inner, body string, ok bool) {
	if !strings.HasPrefix(content, "---") {
		return "", "", content, false
	}
	lines := strings.SplitAfter(content, "\n")
	if strings.TrimRight(lines[0], "\r\n") != "---" {
		return "", "", content, false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r\n") == "---" {
			rawBlock = strings.Join(lines[:i+1], "")
			inner = strings.Join(lines[1:i], "")
			body = strings.Join(lines[i+1:], "")
			return rawBlock, inner, body, true
		}
	}
	return "", "", content, false
}

func parseFrontmatterFields(content string) map[string]any {
	_, inner, _, ok := splitFrontmatter(content)
	if !ok {
		return nil
	}
	fields := map[string]any{}
	if err := yaml.Unmarshal([]byte(inner), &fields); err != nil {
		return nil
	}
	return fields
}

// appendGuarded appends to a document and verifies the frontmatter block
// survived the backend's append path. Lost keys are restored by splicing
// the original block back onto the appended body.
func (r *Router) appendGuarded(ctx context.Context, documentID, userID, addition string) (restored bool, err error) {
	pre, err := r.tools.GetDocumentContent(ctx, documentID, userID)
	if err != nil {
		return false, fmt.Errorf("read before append: %w", err)
	}
	preBlock, _, _, hadFrontmatter := splitFrontmatter(pre)
	preFields := parseFrontmatterFields(pre)

	if _, err := r.tools.UpdateDocumentContent(ctx, documentID, addition, userID, true); err != nil {
		return false, fmt.Errorf("append content: %w", err)
	}
	if !hadFrontmatter || len(preFields) == 0 {
		return false, nil
	}

	post, err := r.tools.GetDocumentContent(ctx, documentID, userID)
	if err != nil {
		return false, fmt.Errorf("read after append: %w", err)
	}
	lost := missingKeys(preFields, parseFrontmatterFields(post))
	if len(lost) == 0 {
		return false, nil
	}

	r.logger.Warn("append dropped frontmatter keys, restoring",
		zap.String("document_id", documentID),
		zap.Strings("keys", lost))
	_, _, postBody, _ := splitFrontmatter(post)
	rebuilt := preBlock + postBody
	if _, err := r.tools.UpdateDocumentContent(ctx, documentID, rebuilt, userID, false); err != nil {
		return true, fmt.Errorf("restore frontmatter: %w", err)
	}
	return true, nil
}

func missingKeys(pre, post map[string]any) []string {
	var lost []string
	for k := range pre {
		if _, ok := post[k]; !ok {
			lost = append(lost, k)
		}
	}
	sort.Strings(lost)
	return lost
}
