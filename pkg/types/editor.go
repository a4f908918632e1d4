// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

// Editor operation kinds.
const (
	OpReplace = "replace"
	OpInsert  = "insert"
	OpDelete  = "delete"
)

// EditorOperation is one positional edit against a document. PreHash
// commits to the pre-image; the tool service rejects the edit when the
// document no longer hashes to it.
type EditorOperation struct {
	OpType          string  `json:"op_type"`
	Start           int     `json:"start"`
	End             int     `json:"end"`
	Text            string  `json:"text"`
	PreHash         string  `json:"pre_hash"`
	OriginalText    string  `json:"original_text,omitempty"`
	AnchorText      string  `json:"anchor_text,omitempty"`
	LeftContext     string  `json:"left_context,omitempty"`
	RightContext    string  `json:"right_context,omitempty"`
	OccurrenceIndex int     `json:"occurrence_index,omitempty"`
	Note            string  `json:"note,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
}

// Edit proposal lifecycle.
const (
	ProposalProposed = "proposed"
	ProposalApplied  = "applied"
	ProposalRejected = "rejected"
	ProposalExpired  = "expired"
)

// Edit types for proposals.
const (
	EditTypeOperations = "operations"
	EditTypeContent    = "content"
)

// EditProposal is a pending document edit awaiting user review.
type EditProposal struct {
	ProposalID      string            `json:"proposal_id"`
	DocumentID      string            `json:"document_id"`
	EditType        string            `json:"edit_type"`
	Operations      []EditorOperation `json:"operations,omitempty"`
	ContentEdit     string            `json:"content_edit,omitempty"`
	AgentName       string            `json:"agent_name"`
	Summary         string            `json:"summary,omitempty"`
	RequiresPreview bool              `json:"requires_preview"`
	OwnerUserID     string            `json:"owner_user_id"`
	Status          string            `json:"status,omitempty"`
}
