// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toolservice

import "context"

// OrgInboxItem is one entry of the user's org-mode inbox.
type OrgInboxItem struct {
	ID          string   `json:"id"`
	Heading     string   `json:"heading"`
	TodoState   string   `json:"todo_state,omitempty"`
	Scheduled   string   `json:"scheduled,omitempty"`
	Created     string   `json:"created,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Done        bool     `json:"done,omitempty"`
}

// OrgActionResponse is the common result of inbox mutations.
type OrgActionResponse struct {
	Success bool   `json:"success"`
	ItemID  string `json:"item_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// AddOrgInboxItemRequest captures a new inbox task. EntryKind selects the
// org shape the backend writes (todo, event, contact, checkbox); contact
// entries carry their fields in ContactProperties.
type AddOrgInboxItemRequest struct {
	Task              string            `json:"task"`
	UserID            string            `json:"user_id"`
	EntryKind         string            `json:"entry_kind,omitempty"`
	Description       string            `json:"description,omitempty"`
	Schedule          string            `json:"schedule,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
	StarterTasks      []string          `json:"starter_tasks,omitempty"`
	ContactProperties map[string]string `json:"contact_properties,omitempty"`
}

// AddOrgInboxItem appends a structured task to the inbox.
func (c *Client) AddOrgInboxItem(ctx context.Context, req *AddOrgInboxItemRequest) (*OrgActionResponse, error) {
	out := &OrgActionResponse{}
	err := c.callDegraded(ctx, "add_org_inbox_item", req, out)
	return out, err
}

// ListOrgInboxItems returns the inbox entries, optionally including
// completed ones.
func (c *Client) ListOrgInboxItems(ctx context.Context, userID string, includeDone bool) ([]OrgInboxItem, error) {
	out := &struct {
		Items []OrgInboxItem `json:"items"`
	}{}
	err := c.callDegraded(ctx, "list_org_inbox_items", map[string]any{
		"user_id":      userID,
		"include_done": includeDone,
	}, out)
	return out.Items, err
}

// ToggleOrgInboxItem flips an item between TODO and DONE.
func (c *Client) ToggleOrgInboxItem(ctx context.Context, itemID, userID string) (*OrgActionResponse, error) {
	out := &OrgActionResponse{}
	err := c.callDegraded(ctx, "toggle_org_inbox_item", map[string]any{
		"item_id": itemID,
		"user_id": userID,
	}, out)
	return out, err
}

// UpdateOrgInboxItem rewrites an item's heading, description, or schedule.
func (c *Client) UpdateOrgInboxItem(ctx context.Context, itemID, userID, heading, description, schedule string) (*OrgActionResponse, error) {
	args := map[string]any{
		"item_id": itemID,
		"user_id": userID,
	}
	if heading != "" {
		args["heading"] = heading
	}
	if description != "" {
		args["description"] = description
	}
	if schedule != "" {
		args["schedule"] = schedule
	}
	out := &OrgActionResponse{}
	err := c.callDegraded(ctx, "update_org_inbox_item", args, out)
	return out, err
}

// SetOrgInboxSchedule sets an item's SCHEDULED timestamp. Schedule uses
// the org form "<YYYY-MM-DD Dow>" with optional "+Nu"/".+Nu" repeaters.
func (c *Client) SetOrgInboxSchedule(ctx context.Context, itemID, schedule, userID string) (*OrgActionResponse, error) {
	out := &OrgActionResponse{}
	err := c.callDegraded(ctx, "set_org_inbox_schedule", map[string]any{
		"item_id":  itemID,
		"schedule": schedule,
		"user_id":  userID,
	}, out)
	return out, err
}

// ArchiveOrgInboxDone moves completed items to the archive file.
func (c *Client) ArchiveOrgInboxDone(ctx context.Context, userID string) (*OrgActionResponse, error) {
	out := &OrgActionResponse{}
	err := c.callDegraded(ctx, "archive_org_inbox_done", map[string]any{
		"user_id": userID,
	}, out)
	return out, err
}

// AppendOrgInboxText appends a pre-rendered org block verbatim. The
// project-capture flow uses this so the confirmed preview and the
// written text are byte-identical.
func (c *Client) AppendOrgInboxText(ctx context.Context, text, userID string) (*OrgActionResponse, error) {
	out := &OrgActionResponse{}
	err := c.callDegraded(ctx, "append_org_inbox_text", map[string]any{
		"text":    text,
		"user_id": userID,
	}, out)
	return out, err
}
