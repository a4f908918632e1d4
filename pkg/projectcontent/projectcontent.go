// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package projectcontent routes an agent's free-form response into the
// project files referenced by the active editor's frontmatter. Content is
// bucketed, rewritten as reference documentation, classified by type, and
// placed into the best matching file section. The open project plan
// receives a single operations-based edit proposal for inline preview;
// side files are written through the document tools directly.
package projectcontent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/toolservice"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Main-plan section names for the untyped buckets.
const (
	sectionCurrentState = "Current State"
	sectionNewPlans     = "Recommendations and Plans"
	sectionGeneral      = "Notes"
)

// Submission methods recorded on a FileUpdate.
const (
	MethodProposal   = "proposal"
	MethodOperations = "operations"
	MethodContent    = "content"
)

// DocumentService is the slice of the backend tool surface the router
// writes through.
type DocumentService interface {
	FindDocumentByPath(ctx context.Context, filePath, userID, basePath string) (*toolservice.DocumentRef, error)
	GetDocumentContent(ctx context.Context, documentID, userID string) (string, error)
	UpdateDocumentContent(ctx context.Context, documentID, content, userID string, appendContent bool) (*toolservice.UpdateDocumentContentResponse, error)
	ProposeDocumentEdit(ctx context.Context, req *toolservice.ProposeDocumentEditRequest) (*toolservice.ProposeDocumentEditResponse, error)
	ApplyOperationsDirectly(ctx context.Context, documentID string, operations []types.EditorOperation, userID, agentName string) (*toolservice.ApplyOperationsResponse, error)
}

// Config wires a Router.
type Config struct {
	Tools     DocumentService
	AgentName string

	// DirectApply lets the router apply side-file operations without a
	// proposal. Only agents authorized for direct writes set it.
	DirectApply bool

	Logger *zap.Logger
}

// Router decides which project files an agent response lands in.
type Router struct {
	tools       DocumentService
	agentName   string
	directApply bool
	logger      *zap.Logger
	now         func() time.Time
}

// FileUpdate describes one document the router touched.
type FileUpdate struct {
	Path       string   `json:"path"`
	DocumentID string   `json:"document_id"`
	Sections   []string `json:"sections"`
	Method     string   `json:"method"`
	ProposalID string   `json:"proposal_id,omitempty"`
}

// RouteResult is what the router did with a response.
type RouteResult struct {
	Updates    []FileUpdate       `json:"updates"`
	Suggestion *NewFileSuggestion `json:"suggestion,omitempty"`
}

func NewRouter(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		tools:       cfg.Tools,
		agentName:   cfg.AgentName,
		directApply: cfg.DirectApply,
		logger:      logger,
		now:         time.Now,
	}
}

// Route buckets the response, formats each bucket as reference material,
// and places every non-empty bucket. Typed content goes to the
// best-scoring referenced file; architecture and unrouteable content fall
// back to the main plan. All main-plan section edits are batched into one
// operations proposal against the open document.
func (r *Router) Route(ctx context.Context, userID string, editor *types.ActiveEditor, response string, structured *StructuredReturn) (*RouteResult, error) {
	res := &RouteResult{}
	if editor == nil || strings.TrimSpace(editor.Content) == "" {
		r.logger.Debug("no active editor, nothing to route")
		return res, nil
	}

	buckets := ExtractBuckets(response, structured)
	original := editor.Content
	working := original
	var mainSections []string

	applyToPlan := func(section, content string) {
		decision := decideSectionEdit(working, section, content)
		working = applySectionEdit(working, section, content, decision, r.now())
		mainSections = append(mainSections, section)
		r.logger.Debug("routed to project plan",
			zap.String("section", section),
			zap.String("mode", decision.Mode),
			zap.String("reason", decision.Reason))
	}

	if buckets.CurrentState != "" {
		applyToPlan(sectionCurrentState, FormatAsReference(buckets.CurrentState))
	}
	if buckets.NewPlans != "" {
		applyToPlan(sectionNewPlans, FormatAsReference(buckets.NewPlans))
	}

	// Structured buckets arrive as rendered lists and code blocks, so
	// they skip the conversational formatter.
	candidates := BuildCandidates(editor.Frontmatter)
	for _, text := range []string{buckets.Components, buckets.Code, buckets.Calculations} {
		if strings.TrimSpace(text) == "" {
			continue
		}
		contentType := ClassifyContentType(text)
		section := SectionForType(contentType)
		target, scores := PickTargetFile(candidates, contentType, text)
		if contentType != TypeArchitecture && res.Suggestion == nil {
			res.Suggestion = SuggestNewFile(contentType, text, candidates, scores)
		}
		if target == nil {
			applyToPlan(section, text)
			continue
		}
		update, routedToPlan := r.updateSideFile(ctx, userID, editor, target, section, text)
		if routedToPlan {
			applyToPlan(section, text)
			continue
		}
		if update != nil {
			res.Updates = append(res.Updates, *update)
		}
	}

	if buckets.General != "" {
		applyToPlan(sectionGeneral, FormatAsReference(buckets.General))
	}

	if working == original {
		return res, nil
	}
	if editor.DocumentID == "" {
		r.logger.Warn("active editor has no document id, dropping project plan edits",
			zap.String("path", editorPath(editor)))
		return res, nil
	}

	ops := OperationsBetween(original, working)
	sections := dedupeStrings(mainSections)
	pr, err := r.tools.ProposeDocumentEdit(ctx, &toolservice.ProposeDocumentEditRequest{
		DocumentID:      editor.DocumentID,
		EditType:        types.EditTypeOperations,
		Operations:      ops,
		AgentName:       r.agentName,
		Summary:         "Updated sections: " + strings.Join(sections, ", "),
		RequiresPreview: true,
	})
	if err != nil {
		return res, fmt.Errorf("propose project plan edit: %w", err)
	}
	res.Updates = append(res.Updates, FileUpdate{
		Path:       editorPath(editor),
		DocumentID: editor.DocumentID,
		Sections:   sections,
		Method:     MethodProposal,
		ProposalID: pr.ProposalID,
	})
	return res, nil
}

// updateSideFile writes one typed bucket into a referenced file. It
// reports routedToPlan when the file cannot be reached or turns out to be
// the open document, in which case the caller folds the content into the
// main plan edit instead.
func (r *Router) updateSideFile(ctx context.Context, userID string, editor *types.ActiveEditor, target *FileCandidate, section, text string) (update *FileUpdate, routedToPlan bool) {
	ref, err := r.tools.FindDocumentByPath(ctx, target.Path, userID, editor.CanonicalPath)
	if err != nil || ref == nil || ref.DocumentID == "" {
		r.logger.Warn("referenced file did not resolve, keeping content in plan",
			zap.String("path", target.Path), zap.Error(err))
		return nil, true
	}
	if editor.DocumentID != "" && ref.DocumentID == editor.DocumentID {
		return nil, true
	}

	content, err := r.tools.GetDocumentContent(ctx, ref.DocumentID, userID)
	if err != nil {
		r.logger.Warn("referenced file unreadable, keeping content in plan",
			zap.String("path", target.Path), zap.Error(err))
		return nil, true
	}

	decision := decideSectionEdit(content, section, text)
	updated := applySectionEdit(content, section, text, decision, r.now())
	update = &FileUpdate{
		Path:       target.Path,
		DocumentID: ref.DocumentID,
		Sections:   []string{section},
	}

	if r.directApply {
		ops := OperationsBetween(content, updated)
		ar, applyErr := r.tools.ApplyOperationsDirectly(ctx, ref.DocumentID, ops, userID, r.agentName)
		if applyErr == nil && ar != nil && ar.Success {
			update.Method = MethodOperations
			return update, false
		}
		r.logger.Warn("direct apply failed, falling back to content update",
			zap.String("path", target.Path), zap.Error(applyErr))
	}

	if decision.Mode == ModeAppend {
		if _, err := r.appendGuarded(ctx, ref.DocumentID, userID, "\n"+sectionBlock(section, text, r.now())); err != nil {
			r.logger.Warn("append to referenced file failed",
				zap.String("path", target.Path), zap.Error(err))
			return nil, false
		}
		update.Method = MethodContent
		return update, false
	}

	if _, err := r.tools.UpdateDocumentContent(ctx, ref.DocumentID, updated, userID, false); err != nil {
		r.logger.Warn("update of referenced file failed",
			zap.String("path", target.Path), zap.Error(err))
		return nil, false
	}
	update.Method = MethodContent
	return update, false
}

func editorPath(editor *types.ActiveEditor) string {
	if editor.CanonicalPath != "" {
		return editor.CanonicalPath
	}
	return editor.Filename
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
