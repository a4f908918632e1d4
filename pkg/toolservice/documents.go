// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toolservice

import (
	"context"

	"github.com/teradata-labs/conductor/pkg/types"
)

// DocumentHit is one search result.
type DocumentHit struct {
	DocumentID     string         `json:"document_id"`
	Title          string         `json:"title"`
	Filename       string         `json:"filename"`
	ContentPreview string         `json:"content_preview"`
	RelevanceScore float64        `json:"relevance_score"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Document is the metadata record of a stored document.
type Document struct {
	DocumentID  string         `json:"document_id"`
	Title       string         `json:"title"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DocumentRef locates a document resolved from a file path.
type DocumentRef struct {
	DocumentID   string `json:"document_id"`
	Filename     string `json:"filename"`
	ResolvedPath string `json:"resolved_path"`
}

// DocumentChunk is one ordered slice of a document.
type DocumentChunk struct {
	ChunkIndex int            `json:"chunk_index"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchDocumentsRequest queries the user's local document index.
type SearchDocumentsRequest struct {
	Query   string   `json:"query"`
	UserID  string   `json:"user_id"`
	Limit   int      `json:"limit,omitempty"`
	Filters []string `json:"filters,omitempty"`
}

// SearchDocumentsResponse is the ranked result set.
type SearchDocumentsResponse struct {
	Results    []DocumentHit `json:"results"`
	TotalCount int           `json:"total_count"`
}

// SearchDocuments runs a relevance-ranked search over the user's corpus.
func (c *Client) SearchDocuments(ctx context.Context, req *SearchDocumentsRequest) (*SearchDocumentsResponse, error) {
	out := &SearchDocumentsResponse{}
	err := c.callDegraded(ctx, "search_documents", req, out)
	return out, err
}

// GetDocument fetches a document's metadata, or nil when absent.
func (c *Client) GetDocument(ctx context.Context, documentID, userID string) (*Document, error) {
	out := &Document{}
	err := c.callDegraded(ctx, "get_document", map[string]any{
		"document_id": documentID,
		"user_id":     userID,
	}, out)
	if err != nil {
		return nil, err
	}
	if out.DocumentID == "" {
		return nil, nil
	}
	return out, nil
}

// GetDocumentContent fetches the full content of a document. An empty
// string means the document is absent or empty.
func (c *Client) GetDocumentContent(ctx context.Context, documentID, userID string) (string, error) {
	out := &struct {
		Content string `json:"content"`
	}{}
	err := c.callDegraded(ctx, "get_document_content", map[string]any{
		"document_id": documentID,
		"user_id":     userID,
	}, out)
	return out.Content, err
}

// GetDocumentChunks returns a document's chunks in order.
func (c *Client) GetDocumentChunks(ctx context.Context, documentID, userID string, limit int) ([]DocumentChunk, error) {
	args := map[string]any{
		"document_id": documentID,
		"user_id":     userID,
	}
	if limit > 0 {
		args["limit"] = limit
	}
	out := &struct {
		Chunks []DocumentChunk `json:"chunks"`
	}{}
	err := c.callDegraded(ctx, "get_document_chunks", args, out)
	return out.Chunks, err
}

// FindDocumentByPath resolves a file path to a document, or nil when the
// path does not resolve.
func (c *Client) FindDocumentByPath(ctx context.Context, filePath, userID, basePath string) (*DocumentRef, error) {
	args := map[string]any{
		"file_path": filePath,
		"user_id":   userID,
	}
	if basePath != "" {
		args["base_path"] = basePath
	}
	out := &DocumentRef{}
	err := c.callDegraded(ctx, "find_document_by_path", args, out)
	if err != nil {
		return nil, err
	}
	if out.DocumentID == "" {
		return nil, nil
	}
	return out, nil
}

// FindDocumentsByTags returns documents carrying all required tags.
func (c *Client) FindDocumentsByTags(ctx context.Context, requiredTags []string, collectionType string, limit int) ([]Document, error) {
	out := &struct {
		Documents []Document `json:"documents"`
	}{}
	err := c.callDegraded(ctx, "find_documents_by_tags", map[string]any{
		"required_tags":   requiredTags,
		"collection_type": collectionType,
		"limit":           limit,
	}, out)
	return out.Documents, err
}

// CreateUserFileRequest creates a new document in the user's space.
type CreateUserFileRequest struct {
	Filename   string   `json:"filename"`
	Content    string   `json:"content"`
	UserID     string   `json:"user_id"`
	FolderID   string   `json:"folder_id,omitempty"`
	FolderPath string   `json:"folder_path,omitempty"`
	Title      string   `json:"title,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Category   string   `json:"category,omitempty"`
}

// CreateUserFileResponse reports the created document.
type CreateUserFileResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	FolderID   string `json:"folder_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// CreateUserFile creates a document, optionally inside a folder.
func (c *Client) CreateUserFile(ctx context.Context, req *CreateUserFileRequest) (*CreateUserFileResponse, error) {
	out := &CreateUserFileResponse{}
	err := c.callDegraded(ctx, "create_user_file", req, out)
	return out, err
}

// CreateUserFolderResponse reports the created folder.
type CreateUserFolderResponse struct {
	Success        bool   `json:"success"`
	FolderID       string `json:"folder_id"`
	FolderName     string `json:"folder_name"`
	ParentFolderID string `json:"parent_folder_id,omitempty"`
}

// CreateUserFolder creates a folder, optionally under a parent.
func (c *Client) CreateUserFolder(ctx context.Context, folderName, userID, parentFolderID, parentFolderPath string) (*CreateUserFolderResponse, error) {
	args := map[string]any{
		"folder_name": folderName,
		"user_id":     userID,
	}
	if parentFolderID != "" {
		args["parent_folder_id"] = parentFolderID
	}
	if parentFolderPath != "" {
		args["parent_folder_path"] = parentFolderPath
	}
	out := &CreateUserFolderResponse{}
	err := c.callDegraded(ctx, "create_user_folder", args, out)
	return out, err
}

// UpdateDocumentMetadataResponse lists which fields changed.
type UpdateDocumentMetadataResponse struct {
	Success       bool     `json:"success"`
	UpdatedFields []string `json:"updated_fields,omitempty"`
}

// UpdateDocumentMetadata updates a document's title and/or frontmatter type.
func (c *Client) UpdateDocumentMetadata(ctx context.Context, documentID, userID, title, frontmatterType string) (*UpdateDocumentMetadataResponse, error) {
	args := map[string]any{
		"document_id": documentID,
		"user_id":     userID,
	}
	if title != "" {
		args["title"] = title
	}
	if frontmatterType != "" {
		args["frontmatter_type"] = frontmatterType
	}
	out := &UpdateDocumentMetadataResponse{}
	err := c.callDegraded(ctx, "update_document_metadata", args, out)
	return out, err
}

// UpdateDocumentContentResponse reports the new content length.
type UpdateDocumentContentResponse struct {
	Success       bool `json:"success"`
	ContentLength int  `json:"content_length"`
}

// UpdateDocumentContent replaces or appends document content.
func (c *Client) UpdateDocumentContent(ctx context.Context, documentID, content, userID string, appendContent bool) (*UpdateDocumentContentResponse, error) {
	out := &UpdateDocumentContentResponse{}
	err := c.callDegraded(ctx, "update_document_content", map[string]any{
		"document_id": documentID,
		"content":     content,
		"user_id":     userID,
		"append":      appendContent,
	}, out)
	return out, err
}

// ProposeDocumentEditRequest submits an edit for inline preview.
type ProposeDocumentEditRequest struct {
	DocumentID      string                  `json:"document_id"`
	EditType        string                  `json:"edit_type"`
	Operations      []types.EditorOperation `json:"operations,omitempty"`
	ContentEdit     string                  `json:"content_edit,omitempty"`
	AgentName       string                  `json:"agent_name"`
	Summary         string                  `json:"summary,omitempty"`
	RequiresPreview bool                    `json:"requires_preview"`
}

// ProposeDocumentEditResponse carries the pending proposal id.
type ProposeDocumentEditResponse struct {
	Success    bool   `json:"success"`
	ProposalID string `json:"proposal_id"`
}

// ProposeDocumentEdit registers an edit proposal for user review.
func (c *Client) ProposeDocumentEdit(ctx context.Context, req *ProposeDocumentEditRequest) (*ProposeDocumentEditResponse, error) {
	out := &ProposeDocumentEditResponse{}
	err := c.callDegraded(ctx, "propose_document_edit", req, out)
	return out, err
}

// ApplyOperationsResponse reports how many operations landed.
type ApplyOperationsResponse struct {
	Success      bool `json:"success"`
	AppliedCount int  `json:"applied_count"`
}

// ApplyOperationsDirectly applies positional edits without a preview.
// The backend restricts this to authorized agents.
func (c *Client) ApplyOperationsDirectly(ctx context.Context, documentID string, operations []types.EditorOperation, userID, agentName string) (*ApplyOperationsResponse, error) {
	out := &ApplyOperationsResponse{}
	err := c.callDegraded(ctx, "apply_operations_directly", map[string]any{
		"document_id": documentID,
		"operations":  operations,
		"user_id":     userID,
		"agent_name":  agentName,
	}, out)
	return out, err
}

// ApplyEditProposalResponse reports the applied proposal.
type ApplyEditProposalResponse struct {
	Success      bool   `json:"success"`
	DocumentID   string `json:"document_id"`
	AppliedCount int    `json:"applied_count"`
}

// ApplyDocumentEditProposal applies a pending proposal, optionally only
// the selected operation indices.
func (c *Client) ApplyDocumentEditProposal(ctx context.Context, proposalID string, selectedIndices []int, userID string) (*ApplyEditProposalResponse, error) {
	args := map[string]any{
		"proposal_id": proposalID,
		"user_id":     userID,
	}
	if len(selectedIndices) > 0 {
		args["selected_operation_indices"] = selectedIndices
	}
	out := &ApplyEditProposalResponse{}
	err := c.callDegraded(ctx, "apply_document_edit_proposal", args, out)
	return out, err
}
