// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package orginbox

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

// addIntent is the strictly-typed reading of an add request.
type addIntent struct {
	Title                 string            `json:"title"`
	EntryKind             string            `json:"entry_kind"`
	Schedule              string            `json:"schedule"`
	Repeater              string            `json:"repeater"`
	SuggestedTags         []string          `json:"suggested_tags"`
	ContactProperties     map[string]string `json:"contact_properties"`
	ClarificationNeeded   bool              `json:"clarification_needed"`
	ClarificationQuestion string            `json:"clarification_question"`
	AssistantConfirmation string            `json:"assistant_confirmation"`
}

const addIntentSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"entry_kind": {"type": "string", "enum": ["todo", "event", "contact", "checkbox"]},
		"schedule": {"type": ["string", "null"]},
		"repeater": {"type": ["string", "null"]},
		"suggested_tags": {"type": "array", "items": {"type": "string"}, "maxItems": 3},
		"contact_properties": {"type": ["object", "null"], "additionalProperties": {"type": "string"}},
		"clarification_needed": {"type": "boolean"},
		"clarification_question": {"type": "string"},
		"assistant_confirmation": {"type": "string"}
	},
	"required": ["title", "entry_kind"]
}`

var quotedPattern = regexp.MustCompile(`"([^"]+)"`)

// matchStopWords are command vocabulary that must not count as item
// identity when resolving which inbox entry the user means.
var matchStopWords = map[string]bool{
	"mark": true, "done": true, "complete": true, "completed": true,
	"toggle": true, "check": true, "off": true, "the": true, "as": true,
	"my": true, "a": true, "an": true, "to": true, "item": true,
	"inbox": true, "update": true, "rename": true, "change": true,
	"schedule": true, "reschedule": true, "postpone": true, "move": true,
	"push": true, "back": true, "set": true, "date": true, "for": true,
	"on": true, "please": true, "entry": true, "task": true,
}

// manage dispatches one inbox operation and reports the outcome.
func (a *Agent) manage(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)
	out := graph.State{}

	action := types.AsString(state[keyAction])
	if action == "" {
		action = actionAdd
	}

	rec := toolservice.NewRecorder()
	cctx := toolservice.WithRecorder(ctx, rec)

	var msg string
	var err error
	switch action {
	case actionList:
		msg, err = a.listItems(cctx, ws)
	case actionToggle:
		msg, err = a.toggleItem(cctx, ws)
	case actionUpdate:
		msg, err = a.updateItem(cctx, ws)
	case actionSchedule:
		msg, err = a.scheduleItem(cctx, ws)
	case actionArchiveDone:
		msg, err = a.archiveDone(cctx, ws)
	default:
		msg, err = a.addItem(cctx, ws, state, out)
	}
	agent.RecordTools(sm, rec.Ops())
	if err != nil {
		return nil, fmt.Errorf("org %s: %w", action, err)
	}

	sm.PrimaryAgentSelected = Name
	sm.LastAgent = Name
	sm.LastResponse = msg

	out[types.StateKeyMessages] = append(agent.MergeHistory(ws.Messages, ws.Query), types.AssistantMessage(msg))
	out[types.StateKeyResponse] = msg
	out[types.StateKeyTaskStatus] = string(types.TaskStatusCompleted)
	out[types.StateKeySharedMemory] = sm
	return out, nil
}

// addItem runs the typed add intent and writes the entry. A parse failure
// degrades to a plain todo titled with the raw message.
func (a *Agent) addItem(ctx context.Context, ws *types.WorkflowState, state, out graph.State) (string, error) {
	var intent addIntent
	opts := agent.ChatOptionsFor(ws.Metadata).WithTemperature(0)
	prompt := heredoc.Docf(`
		Read this inbox request and produce a typed capture intent.

		Message: %q

		Rules: title is the entry text without filler like "add" or
		"remind me to". entry_kind is todo unless the message describes a
		calendar event, a contact, or a checklist. schedule uses org
		<YYYY-MM-DD Dow> form only when the message names a date; repeater
		only when it repeats (+1w weekly, .+1m monthly). Set
		clarification_needed only when the entry is too vague to write.
		assistant_confirmation is the one-line reply to show the user.
	`, ws.Query)
	resp, err := llm.ChatStructured(ctx, a.provider, []types.Message{types.UserMessage(prompt)}, &opts, addIntentSchema, &intent)
	if resp != nil {
		agent.AccumulateUsage(state, out, resp.Usage)
	}
	if err != nil {
		a.logger.Warn("add intent degraded to raw task", zap.Error(err))
		intent = addIntent{Title: strings.TrimSpace(ws.Query), EntryKind: "todo"}
	}

	if intent.ClarificationNeeded && intent.ClarificationQuestion != "" {
		return intent.ClarificationQuestion, nil
	}

	ar, err := a.tools.AddOrgInboxItem(ctx, &toolservice.AddOrgInboxItemRequest{
		Task:              intent.Title,
		UserID:            ws.UserID,
		EntryKind:         intent.EntryKind,
		Schedule:          combineSchedule(intent.Schedule, intent.Repeater),
		Tags:              capStrings(intent.SuggestedTags, maxCaptureTags),
		ContactProperties: intent.ContactProperties,
	})
	if err != nil {
		return "", err
	}
	if !ar.Success {
		if ar.Message != "" {
			return fmt.Sprintf("I couldn't add that: %s", ar.Message), nil
		}
		return "I couldn't add that to your inbox.", nil
	}
	if intent.AssistantConfirmation != "" {
		return intent.AssistantConfirmation, nil
	}
	return fmt.Sprintf("Added to your inbox: %s", intent.Title), nil
}

func (a *Agent) listItems(ctx context.Context, ws *types.WorkflowState) (string, error) {
	lower := strings.ToLower(ws.Query)
	includeDone := strings.Contains(lower, "done") || strings.Contains(lower, "all") ||
		strings.Contains(lower, "completed")

	items, err := a.tools.ListOrgInboxItems(ctx, ws.UserID, includeDone)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "Your inbox is empty.", nil
	}

	var b strings.Builder
	b.WriteString("Your inbox:\n")
	for _, it := range items {
		todo := it.TodoState
		if todo == "" {
			todo = "TODO"
			if it.Done {
				todo = "DONE"
			}
		}
		fmt.Fprintf(&b, "- [%s] %s", todo, it.Heading)
		if it.Scheduled != "" {
			fmt.Fprintf(&b, " (scheduled %s)", it.Scheduled)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (a *Agent) toggleItem(ctx context.Context, ws *types.WorkflowState) (string, error) {
	item, err := a.resolveItem(ctx, ws, true)
	if err != nil {
		return "", err
	}
	if item == nil {
		return `I couldn't find a matching inbox item. Try "list inbox" to see what's there.`, nil
	}
	ar, err := a.tools.ToggleOrgInboxItem(ctx, item.ID, ws.UserID)
	if err != nil {
		return "", err
	}
	if ar.Message != "" {
		return ar.Message, nil
	}
	return fmt.Sprintf("Toggled %q.", item.Heading), nil
}

func (a *Agent) updateItem(ctx context.Context, ws *types.WorkflowState) (string, error) {
	item, err := a.resolveItem(ctx, ws, false)
	if err != nil {
		return "", err
	}
	if item == nil {
		return `I couldn't find a matching inbox item. Try "list inbox" to see what's there.`, nil
	}

	heading := ""
	if m := quotedPattern.FindStringSubmatch(ws.Query); m != nil {
		heading = m[1]
	}
	schedule := orgTimestampPattern.FindString(ws.Query)
	if heading == "" && schedule == "" {
		return fmt.Sprintf("What should %q become? Put the new text in quotes, or give a <YYYY-MM-DD Dow> date.", item.Heading), nil
	}

	ar, err := a.tools.UpdateOrgInboxItem(ctx, item.ID, ws.UserID, heading, "", schedule)
	if err != nil {
		return "", err
	}
	if ar.Message != "" {
		return ar.Message, nil
	}
	return fmt.Sprintf("Updated %q.", item.Heading), nil
}

func (a *Agent) scheduleItem(ctx context.Context, ws *types.WorkflowState) (string, error) {
	item, err := a.resolveItem(ctx, ws, false)
	if err != nil {
		return "", err
	}
	if item == nil {
		return `I couldn't find a matching inbox item. Try "list inbox" to see what's there.`, nil
	}

	ts := orgTimestampPattern.FindString(ws.Query)
	if ts == "" {
		return fmt.Sprintf("When should %q happen? Give me the date as <YYYY-MM-DD Dow>.", item.Heading), nil
	}

	ar, err := a.tools.SetOrgInboxSchedule(ctx, item.ID, ts, ws.UserID)
	if err != nil {
		return "", err
	}
	if ar.Message != "" {
		return ar.Message, nil
	}
	return fmt.Sprintf("Scheduled %q for %s.", item.Heading, ts), nil
}

func (a *Agent) archiveDone(ctx context.Context, ws *types.WorkflowState) (string, error) {
	ar, err := a.tools.ArchiveOrgInboxDone(ctx, ws.UserID)
	if err != nil {
		return "", err
	}
	if ar.Message != "" {
		return ar.Message, nil
	}
	return "Archived completed items.", nil
}

// resolveItem picks the inbox entry whose heading best overlaps the
// message, ignoring command vocabulary. Nil means no plausible match.
func (a *Agent) resolveItem(ctx context.Context, ws *types.WorkflowState, includeDone bool) (*toolservice.OrgInboxItem, error) {
	items, err := a.tools.ListOrgInboxItems(ctx, ws.UserID, includeDone)
	if err != nil {
		return nil, err
	}

	queryToks := tokensOf(ws.Query)
	for t := range matchStopWords {
		delete(queryToks, t)
	}

	var best *toolservice.OrgInboxItem
	bestScore := 0
	for i := range items {
		score := 0
		for tok := range tokensOf(items[i].Heading) {
			if queryToks[tok] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = &items[i]
		}
	}
	return best, nil
}

// combineSchedule folds a repeater into the schedule timestamp, so
// <2026-09-01 Mon> with +1w becomes <2026-09-01 Mon +1w>.
func combineSchedule(schedule, repeater string) string {
	schedule = strings.TrimSpace(schedule)
	repeater = strings.TrimSpace(repeater)
	if schedule == "" {
		return ""
	}
	if !strings.HasPrefix(schedule, "<") {
		schedule = orgTimestamp(schedule)
	}
	if repeater == "" {
		return schedule
	}
	return strings.TrimSuffix(schedule, ">") + " " + repeater + ">"
}
