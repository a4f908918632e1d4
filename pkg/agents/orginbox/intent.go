// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package orginbox

import (
	"strings"

	"github.com/teradata-labs/conductor/pkg/types"
)

// synthesisKeywords are the verbs that, together with file links in the
// open editor, put a turn on the cross-file synthesis path.
var synthesisKeywords = []string{
	"compare", "synthesize", "analyze", "based on", "using",
	"from the", "in the linked", "across", "between",
}

// capturePrefixes start a new project capture.
var capturePrefixes = []string{
	"start project", "create project", "new project", "project:",
}

// classifyIntent is deterministic: capture prefixes win, then synthesis
// when the editor carries org links and the message carries a synthesis
// verb, otherwise management with a keyword-refined action. A missing
// editor can never classify as synthesis.
func classifyIntent(query string, editor *types.ActiveEditor) (intent, action string) {
	lower := strings.ToLower(strings.TrimSpace(query))

	for _, p := range capturePrefixes {
		if strings.HasPrefix(lower, p) {
			return intentProjectCapture, ""
		}
	}

	if editor != nil && orgLinkPattern.MatchString(editor.Content) && containsAny(lower, synthesisKeywords...) {
		return intentSynthesis, ""
	}

	return intentManagement, managementAction(lower)
}

// managementAction maps the message onto one inbox operation. Order
// matters: "add milk to my shopping list" must not read as a list
// request, so list only fires on a leading verb or an explicit inbox
// question.
func managementAction(lower string) string {
	switch {
	case strings.Contains(lower, "archive"):
		return actionArchiveDone
	case strings.HasPrefix(lower, "list") || strings.HasPrefix(lower, "show") ||
		strings.Contains(lower, "what's in my inbox") || strings.Contains(lower, "what is in my inbox") ||
		strings.Contains(lower, "what's on my inbox"):
		return actionList
	case strings.Contains(lower, "toggle") || strings.Contains(lower, "check off") ||
		(strings.Contains(lower, "mark") && (strings.Contains(lower, "done") || strings.Contains(lower, "complete"))):
		return actionToggle
	case strings.Contains(lower, "reschedule") || strings.Contains(lower, "postpone") ||
		strings.Contains(lower, "push back") ||
		(strings.Contains(lower, "move ") && strings.Contains(lower, " to ")):
		return actionSchedule
	case strings.HasPrefix(lower, "update") || strings.HasPrefix(lower, "rename") ||
		strings.Contains(lower, "change the") || strings.Contains(lower, "edit the"):
		return actionUpdate
	default:
		return actionAdd
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
