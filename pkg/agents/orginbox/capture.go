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
	"time"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/llm"
	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Capture limits.
const (
	maxStarterTasks = 5
	maxCaptureTags  = 3
)

// projectEnrichment is the model's fill-in for a fresh capture.
type projectEnrichment struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	InitialTasks []string `json:"initial_tasks"`
	TargetDate   string   `json:"target_date"`
	Tags         []string `json:"tags"`
}

const projectEnrichmentSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"description": {"type": "string"},
		"initial_tasks": {"type": "array", "items": {"type": "string"}},
		"target_date": {"type": "string"},
		"tags": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["description"]
}`

var confirmReplies = map[string]bool{
	"yes": true, "y": true, "ok": true, "okay": true,
	"proceed": true, "do it": true, "confirm": true,
}

var cancelReplies = map[string]bool{
	"no": true, "cancel": true, "stop": true, "abort": true,
}

var orgTimestampPattern = regexp.MustCompile(`<\d{4}-\d{2}-\d{2}[^>]*>`)

// projectCapture is the confirm-before-write flow. The pending capture in
// shared memory carries it across turns: a fresh capture gathers fields,
// a gathering capture absorbs the reply, an awaiting capture resolves to
// commit, cancel, or another preview.
func (a *Agent) projectCapture(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)
	out := graph.State{}

	pending := sm.PendingProjectCapture
	switch {
	case pending == nil:
		return a.startCapture(ctx, ws, sm, state, out)
	case pending.AwaitingConfirmation:
		return a.resolveCapture(ctx, ws, sm, state, out)
	default:
		return a.gatherCapture(ws, sm, out)
	}
}

// startCapture builds the initial capture from the message and asks the
// model to flesh out a description and starter tasks. A parse failure
// leaves the fields blank and the flow falls back to asking the user.
func (a *Agent) startCapture(ctx context.Context, ws *types.WorkflowState, sm *types.SharedMemory, state, out graph.State) (graph.State, error) {
	title := captureTitle(ws.Query)

	pending := &types.ProjectCapture{Title: title}

	var enriched projectEnrichment
	opts := agent.ChatOptionsFor(ws.Metadata).WithTemperature(0)
	prompt := heredoc.Docf(`
		The user wants to start a project. Their message:

		%q

		Working title: %q

		Refine the title if the message includes a purpose clause, write a
		one-paragraph description, and propose up to five concrete starter
		tasks. Include a target_date in org <YYYY-MM-DD Dow> form only if
		the message names one, and up to three short lowercase tags.
	`, ws.Query, title)
	resp, err := llm.ChatStructured(ctx, a.provider, []types.Message{types.UserMessage(prompt)}, &opts, projectEnrichmentSchema, &enriched)
	if resp != nil {
		agent.AccumulateUsage(state, out, resp.Usage)
	}
	if err != nil {
		a.logger.Warn("project enrichment degraded, gathering from user", zap.Error(err))
		enriched = projectEnrichment{}
	}

	if t := strings.TrimSpace(enriched.Title); t != "" {
		pending.Title = t
	}
	pending.Description = strings.TrimSpace(enriched.Description)
	pending.InitialTasks = capStrings(enriched.InitialTasks, maxStarterTasks)
	pending.TargetDate = strings.TrimSpace(enriched.TargetDate)
	pending.Tags = capStrings(enriched.Tags, maxCaptureTags)
	pending.MissingFields = missingCaptureFields(pending)

	sm.PendingProjectCapture = pending
	if len(pending.MissingFields) > 0 {
		return a.captureQuestion(ws, pending, sm, out), nil
	}
	return a.capturePreview(ws, pending, sm, out), nil
}

// gatherCapture merges the user's reply into the pending capture and
// either asks again or moves on to the preview.
func (a *Agent) gatherCapture(ws *types.WorkflowState, sm *types.SharedMemory, out graph.State) (graph.State, error) {
	pending := sm.PendingProjectCapture
	mergeCaptureDetails(pending, ws.Query)
	pending.MissingFields = missingCaptureFields(pending)

	if len(pending.MissingFields) > 0 {
		return a.captureQuestion(ws, pending, sm, out), nil
	}
	return a.capturePreview(ws, pending, sm, out), nil
}

// resolveCapture handles the confirmation turn: commit, cancel, or treat
// the reply as edits and show the preview again.
func (a *Agent) resolveCapture(ctx context.Context, ws *types.WorkflowState, sm *types.SharedMemory, state, out graph.State) (graph.State, error) {
	pending := sm.PendingProjectCapture
	reply := normalizeReply(ws.Query)

	switch {
	case confirmReplies[reply]:
		rec := toolservice.NewRecorder()
		resp, err := a.tools.AppendOrgInboxText(toolservice.WithRecorder(ctx, rec), pending.PreviewBlock, ws.UserID)
		agent.RecordTools(sm, rec.Ops())
		if err != nil {
			return nil, fmt.Errorf("append project to inbox: %w", err)
		}
		if !resp.Success {
			msg := resp.Message
			if msg == "" {
				msg = "the inbox rejected the append"
			}
			return captureResult(sm, out, fmt.Sprintf("I couldn't add the project: %s. Say yes to retry or no to cancel.", msg),
				types.TaskStatusPermissionRequired, ws), nil
		}
		title := pending.Title
		sm.PendingProjectCapture = nil
		return captureResult(sm, out, fmt.Sprintf("Project added to inbox: %s", title), types.TaskStatusCompleted, ws), nil

	case cancelReplies[reply]:
		sm.PendingProjectCapture = nil
		return captureResult(sm, out, "Okay, project capture cancelled.", types.TaskStatusCompleted, ws), nil

	default:
		mergeCaptureDetails(pending, ws.Query)
		pending.MissingFields = missingCaptureFields(pending)
		if len(pending.MissingFields) > 0 {
			pending.AwaitingConfirmation = false
			return a.captureQuestion(ws, pending, sm, out), nil
		}
		return a.capturePreview(ws, pending, sm, out), nil
	}
}

// captureQuestion asks for whatever is still missing and stays in the
// gathering state.
func (a *Agent) captureQuestion(ws *types.WorkflowState, pending *types.ProjectCapture, sm *types.SharedMemory, out graph.State) graph.State {
	asks := make([]string, 0, 2)
	for _, f := range pending.MissingFields {
		switch f {
		case "description":
			asks = append(asks, "a short description")
		case "initial_tasks":
			asks = append(asks, "a few starter tasks")
		}
	}
	msg := fmt.Sprintf("I can set up %q. Could you give me %s? You can use Description: and Tasks: labels or bullet lines.",
		pending.Title, strings.Join(asks, " and "))
	sm.PendingProjectCapture = pending
	return captureResult(sm, out, msg, types.TaskStatusCompleted, ws)
}

// capturePreview renders the org block, stores it on the pending capture,
// and asks for confirmation.
func (a *Agent) capturePreview(ws *types.WorkflowState, pending *types.ProjectCapture, sm *types.SharedMemory, out graph.State) graph.State {
	pending.PreviewBlock = renderPreview(pending, a.now())
	pending.AwaitingConfirmation = true
	sm.PendingProjectCapture = pending

	msg := fmt.Sprintf("Here's what I'll add to your inbox:\n\n```org\n%s```\n\nShall I add it? (yes / no, or tell me what to change)",
		pending.PreviewBlock)
	return captureResult(sm, out, msg, types.TaskStatusPermissionRequired, ws)
}

// captureResult publishes the capture turn's reply. History is appended
// only when the workflow state is available at the call site.
func captureResult(sm *types.SharedMemory, out graph.State, msg string, status types.TaskStatus, ws *types.WorkflowState) graph.State {
	sm.LastAgent = Name
	sm.LastResponse = msg
	out[types.StateKeyResponse] = msg
	out[types.StateKeyTaskStatus] = string(status)
	out[types.StateKeySharedMemory] = sm
	if ws != nil {
		out[types.StateKeyMessages] = append(agent.MergeHistory(ws.Messages, ws.Query), types.AssistantMessage(msg))
	}
	return out
}

// renderPreview emits the org block appended on commit: heading with a
// :project: tag, a PROPERTIES drawer, then the optional schedule,
// description, and starter tasks.
func renderPreview(p *types.ProjectCapture, now time.Time) string {
	var b strings.Builder
	tags := append([]string{"project"}, p.Tags...)
	fmt.Fprintf(&b, "* %s :%s:\n", p.Title, strings.Join(tags, ":"))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", now.Format("20060102150405"))
	fmt.Fprintf(&b, ":CREATED: [%s]\n", now.Format("2006-01-02 Mon 15:04"))
	b.WriteString(":END:\n")
	if p.TargetDate != "" {
		fmt.Fprintf(&b, "SCHEDULED: %s\n", orgTimestamp(p.TargetDate))
	}
	if p.Description != "" {
		b.WriteString(p.Description + "\n")
	}
	for _, t := range p.InitialTasks {
		fmt.Fprintf(&b, "** TODO %s\n", t)
	}
	return b.String()
}

// mergeCaptureDetails folds a free-form reply into the pending capture:
// Description:/Tasks: labels, bulleted lines, org timestamps. A plain
// sentence fills the description when that is what's missing.
func mergeCaptureDetails(p *types.ProjectCapture, message string) {
	if ts := orgTimestampPattern.FindString(message); ts != "" {
		p.TargetDate = ts
	}

	structured := false
	inTasks := false
	for _, line := range strings.Split(message, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, "description:"):
			structured = true
			inTasks = false
			if d := strings.TrimSpace(trimmed[len("description:"):]); d != "" {
				p.Description = orgTimestampPattern.ReplaceAllString(d, "")
				p.Description = strings.TrimSpace(p.Description)
			}
		case strings.HasPrefix(lower, "tasks:"):
			structured = true
			inTasks = true
			if t := strings.TrimSpace(trimmed[len("tasks:"):]); t != "" {
				appendTask(p, t)
			}
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "+ "):
			structured = true
			appendTask(p, strings.TrimSpace(trimmed[2:]))
		case inTasks && trimmed != "":
			appendTask(p, trimmed)
		}
	}

	if !structured && p.Description == "" {
		if d := strings.TrimSpace(orgTimestampPattern.ReplaceAllString(message, "")); d != "" {
			p.Description = d
		}
	}
}

func appendTask(p *types.ProjectCapture, task string) {
	if task == "" || len(p.InitialTasks) >= maxStarterTasks {
		return
	}
	p.InitialTasks = append(p.InitialTasks, task)
}

func missingCaptureFields(p *types.ProjectCapture) []string {
	var missing []string
	if strings.TrimSpace(p.Description) == "" {
		missing = append(missing, "description")
	}
	if len(p.InitialTasks) == 0 {
		missing = append(missing, "initial_tasks")
	}
	return missing
}

// captureTitle strips the capture prefix off the message.
func captureTitle(query string) string {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)
	for _, p := range capturePrefixes {
		if strings.HasPrefix(lower, p) {
			title := strings.TrimSpace(trimmed[len(p):])
			return strings.Trim(title, `"'`)
		}
	}
	return trimmed
}

// normalizeReply reduces a confirmation turn to a comparable word.
func normalizeReply(s string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".,!?:; ")
}

// orgTimestamp coerces a date into <YYYY-MM-DD Dow> form, passing through
// anything already angled.
func orgTimestamp(date string) string {
	if strings.HasPrefix(date, "<") {
		return date
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t.Format("<2006-01-02 Mon>")
	}
	return "<" + date + ">"
}

func capStrings(in []string, n int) []string {
	out := make([]string, 0, n)
	for _, s := range in {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return out
}
