// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package orginbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/agent"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

// reference is a resolved link: the linked file's content, optionally
// narrowed to one heading's subtree, plus an assessment when the file
// reads as a project plan.
type reference struct {
	FilePath   string `json:"file_path"`
	Heading    string `json:"heading,omitempty"`
	Reason     string `json:"context_reason,omitempty"`
	Content    string `json:"content"`
	Assessment string `json:"assessment,omitempty"`
}

// resolveReferences turns the filtered links into document content. A link
// that does not resolve is dropped; the analysis proceeds with whatever
// did resolve, down to the bare editor content.
func (a *Agent) resolveReferences(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)
	out := graph.State{}

	var links []orgLink
	if err := types.Remarshal(state[keyLinks], &links); err != nil {
		links = nil
	}

	basePath := ""
	if sm.ActiveEditor != nil {
		basePath = sm.ActiveEditor.CanonicalPath
	}

	rec := toolservice.NewRecorder()
	cctx := toolservice.WithRecorder(ctx, rec)

	refs := make([]reference, 0, len(links))
	for _, link := range links {
		doc, err := a.tools.FindDocumentByPath(cctx, link.FilePath, ws.UserID, basePath)
		if err != nil || doc == nil || doc.DocumentID == "" {
			a.logger.Warn("org link did not resolve, dropping",
				zap.String("file_path", link.FilePath), zap.Error(err))
			continue
		}
		content, err := a.tools.GetDocumentContent(cctx, doc.DocumentID, ws.UserID)
		if err != nil || strings.TrimSpace(content) == "" {
			a.logger.Warn("org link content unavailable, dropping",
				zap.String("file_path", link.FilePath), zap.Error(err))
			continue
		}
		if link.Heading != "" {
			content = headingSection(content, link.Heading)
		}
		ref := reference{
			FilePath: link.FilePath,
			Heading:  link.Heading,
			Reason:   link.ContextReason,
			Content:  clip(content, referenceContentLimit),
		}
		if a.assessor != nil && looksLikeProject(link, content) {
			ref.Assessment = a.assessProject(ctx, ws, sm, state, out, ref.Content)
		}
		refs = append(refs, ref)
	}
	agent.RecordTools(sm, rec.Ops())

	var flat []any
	if err := types.Remarshal(refs, &flat); err != nil {
		flat = []any{}
	}
	out[keyReferences] = flat
	out[types.StateKeySharedMemory] = sm
	return out, nil
}

// assessProject delegates one referenced plan to the assessor agent on a
// thread derived from the conversation, so the assessment never disturbs
// this workflow's checkpoints.
func (a *Agent) assessProject(ctx context.Context, ws *types.WorkflowState, sm *types.SharedMemory, state, out graph.State, content string) string {
	md := make(map[string]string, len(ws.Metadata)+1)
	for k, v := range ws.Metadata {
		md[k] = v
	}
	md[agent.MetaConversationID] = ws.Metadata[agent.MetaConversationID] + "#project_assessment"

	res, err := a.assessor.Execute(ctx, &types.AgentRequest{
		Query:        "Briefly assess this project plan: current state, open risks, and the most useful next step.\n\n" + content,
		UserID:       ws.UserID,
		Metadata:     md,
		SharedMemory: sm,
	})
	if err != nil || res == nil || strings.TrimSpace(res.Response) == "" {
		a.logger.Warn("project assessment degraded, using raw content", zap.Error(err))
		return ""
	}
	agent.AccumulateUsage(state, out, res.Usage)
	return res.Response
}

// synthesizeAnalysis answers the question from the open document plus the
// resolved references in one model call.
func (a *Agent) synthesizeAnalysis(ctx context.Context, state graph.State) (graph.State, error) {
	ws := types.WorkflowStateFrom(state)
	sm := sharedMemoryOf(state)
	persona := agent.PersonaFromMetadata(ws.Metadata)

	var refs []reference
	if err := types.Remarshal(state[keyReferences], &refs); err != nil {
		refs = nil
	}

	var b strings.Builder
	if sm.ActiveEditor != nil && strings.TrimSpace(sm.ActiveEditor.Content) != "" {
		name := sm.ActiveEditor.Filename
		if name == "" {
			name = "open document"
		}
		fmt.Fprintf(&b, "OPEN DOCUMENT (%s):\n%s\n\n", name, clip(sm.ActiveEditor.Content, editorContextLimit))
	}
	if len(refs) > 0 {
		b.WriteString("LINKED FILES:\n")
		for _, r := range refs {
			title := r.FilePath
			if r.Heading != "" {
				title += " :: " + r.Heading
			}
			fmt.Fprintf(&b, "## %s\n%s\n", title, r.Content)
			if r.Assessment != "" {
				fmt.Fprintf(&b, "ASSESSMENT:\n%s\n", r.Assessment)
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("LINKED FILES: none of the referenced files could be read.\n\n")
	}

	opts := agent.ChatOptionsFor(ws.Metadata)
	opts.System = agent.DatetimeContext(persona.Timezone) + heredoc.Docf(`
		You are %s, analyzing the user's org-mode notes in a %s voice.
		Ground every statement in the open document and the linked files
		provided. When the files do not cover something, say so instead of
		guessing.
	`, persona.AIName, persona.Style)

	prompt := heredoc.Docf(`
		Question: %s

		%s`, ws.Query, b.String())

	resp, err := a.provider.Chat(ctx, []types.Message{types.UserMessage(prompt)}, opts)
	if err != nil {
		return nil, fmt.Errorf("org synthesis: %w", err)
	}

	sm.PrimaryAgentSelected = Name
	sm.LastAgent = Name
	sm.LastResponse = resp.Content

	out := graph.State{
		types.StateKeyMessages:     append(agent.MergeHistory(ws.Messages, ws.Query), types.AssistantMessage(resp.Content)),
		types.StateKeyResponse:     resp.Content,
		types.StateKeyTaskStatus:   string(types.TaskStatusCompleted),
		types.StateKeySharedMemory: sm,
	}
	agent.AccumulateUsage(state, out, resp.Usage)
	return out, nil
}

// headingSection narrows content to the subtree of the first heading whose
// text contains the anchor, case-insensitively. Unknown anchors keep the
// whole file.
func headingSection(content, anchor string) string {
	needle := strings.ToLower(anchor)
	for _, h := range parseHeadings(content) {
		if strings.Contains(strings.ToLower(h.text), needle) {
			return content[h.start:h.end]
		}
	}
	return content
}

// looksLikeProject reports whether a resolved file reads as a project
// plan worth assessing.
func looksLikeProject(link orgLink, content string) bool {
	head := strings.ToLower(clip(content, 400))
	if strings.Contains(head, "type: project") || strings.Contains(head, ":project:") {
		return true
	}
	lowerDesc := strings.ToLower(link.Description + " " + link.FilePath)
	return strings.Contains(lowerDesc, "project")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
