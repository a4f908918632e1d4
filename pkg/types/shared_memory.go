// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"encoding/json"
)

// PermissionState tracks a human-in-the-loop permission key.
type PermissionState string

const (
	PermissionUnset   PermissionState = ""
	PermissionPending PermissionState = "pending"
	PermissionGranted PermissionState = "granted"
)

// ToolAnalysis is the output of the dynamic tool-needs analyzer.
type ToolAnalysis struct {
	CoreTools        []string `json:"core_tools,omitempty"`
	ConditionalTools []string `json:"conditional_tools,omitempty"`
}

// ProjectCapture is the in-progress state of the org project-capture flow.
// It lives in shared memory until the user confirms or cancels.
type ProjectCapture struct {
	Title                string   `json:"title"`
	Description          string   `json:"description,omitempty"`
	TargetDate           string   `json:"target_date,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
	InitialTasks         []string `json:"initial_tasks,omitempty"`
	MissingFields        []string `json:"missing_fields,omitempty"`
	PreviewBlock         string   `json:"preview_block,omitempty"`
	AwaitingConfirmation bool     `json:"awaiting_confirmation"`
}

// SharedMemory is the cross-turn mutable record carried in every workflow
// state and persisted at each checkpoint. The recognized keys are
// first-class fields; anything else rides in Extensions so forward
// compatibility never loses data.
type SharedMemory struct {
	PrimaryAgentSelected  string          `json:"primary_agent_selected,omitempty"`
	LastAgent             string          `json:"last_agent,omitempty"`
	LastResponse          string          `json:"last_response,omitempty"`
	ActiveEditor          *ActiveEditor   `json:"active_editor,omitempty"`
	WebSearchPermission   PermissionState `json:"web_search_permission,omitempty"`
	WebCrawlPermission    PermissionState `json:"web_crawl_permission,omitempty"`
	FileWritePermission   PermissionState `json:"file_write_permission,omitempty"`
	ExternalAPIPermission PermissionState `json:"external_api_permission,omitempty"`
	PendingProjectCapture *ProjectCapture `json:"pending_project_capture,omitempty"`
	PreviousToolsUsed     []string        `json:"previous_tools_used,omitempty"`
	ToolAnalysis          *ToolAnalysis   `json:"tool_analysis,omitempty"`
	EditorPreference      string          `json:"editor_preference,omitempty"`

	// Extensions holds unrecognized keys verbatim.
	Extensions map[string]any `json:"-"`
}

// NewSharedMemory returns an empty shared memory.
func NewSharedMemory() *SharedMemory {
	return &SharedMemory{}
}

// knownSharedMemoryKeys lists the JSON keys owned by first-class fields.
var knownSharedMemoryKeys = map[string]bool{
	"primary_agent_selected":  true,
	"last_agent":              true,
	"last_response":           true,
	"active_editor":           true,
	"web_search_permission":   true,
	"web_crawl_permission":    true,
	"file_write_permission":   true,
	"external_api_permission": true,
	"pending_project_capture": true,
	"previous_tools_used":     true,
	"tool_analysis":           true,
	"editor_preference":       true,
}

// sharedMemoryAlias avoids recursion in the custom JSON methods.
type sharedMemoryAlias SharedMemory

// MarshalJSON flattens the struct and its extensions into one object.
func (sm *SharedMemory) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal((*sharedMemoryAlias)(sm))
	if err != nil {
		return nil, err
	}
	if len(sm.Extensions) == 0 {
		return base, nil
	}

	var flat map[string]any
	if err := json.Unmarshal(base, &flat); err != nil {
		return nil, err
	}
	for k, v := range sm.Extensions {
		if !knownSharedMemoryKeys[k] {
			flat[k] = v
		}
	}
	return json.Marshal(flat)
}

// UnmarshalJSON splits recognized keys into fields and folds the rest
// into Extensions.
func (sm *SharedMemory) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*sharedMemoryAlias)(sm)); err != nil {
		return err
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	for k, v := range flat {
		if knownSharedMemoryKeys[k] {
			continue
		}
		if sm.Extensions == nil {
			sm.Extensions = make(map[string]any)
		}
		sm.Extensions[k] = v
	}
	return nil
}

// Clone returns a deep copy.
func (sm *SharedMemory) Clone() *SharedMemory {
	if sm == nil {
		return nil
	}
	data, err := json.Marshal(sm)
	if err != nil {
		// Shared memory is always JSON-representable; treat failure as empty.
		return NewSharedMemory()
	}
	out := NewSharedMemory()
	if err := json.Unmarshal(data, out); err != nil {
		return NewSharedMemory()
	}
	return out
}

// mergePermission applies last-write-wins except that pending never
// overwrites granted. Once a user grants a permission it stays granted
// until something explicitly revokes it.
func mergePermission(current, incoming PermissionState) PermissionState {
	if incoming == PermissionUnset {
		return current
	}
	if current == PermissionGranted && incoming == PermissionPending {
		return current
	}
	return incoming
}

// Merge applies incoming on top of sm key-wise: keys present in incoming
// win, absent keys keep their checkpointed value. Permission keys never
// regress from granted to pending.
func (sm *SharedMemory) Merge(incoming *SharedMemory) {
	if incoming == nil {
		return
	}
	if incoming.PrimaryAgentSelected != "" {
		sm.PrimaryAgentSelected = incoming.PrimaryAgentSelected
	}
	if incoming.LastAgent != "" {
		sm.LastAgent = incoming.LastAgent
	}
	if incoming.LastResponse != "" {
		sm.LastResponse = incoming.LastResponse
	}
	if incoming.ActiveEditor != nil {
		sm.ActiveEditor = incoming.ActiveEditor
	}
	sm.WebSearchPermission = mergePermission(sm.WebSearchPermission, incoming.WebSearchPermission)
	sm.WebCrawlPermission = mergePermission(sm.WebCrawlPermission, incoming.WebCrawlPermission)
	sm.FileWritePermission = mergePermission(sm.FileWritePermission, incoming.FileWritePermission)
	sm.ExternalAPIPermission = mergePermission(sm.ExternalAPIPermission, incoming.ExternalAPIPermission)
	if incoming.PendingProjectCapture != nil {
		sm.PendingProjectCapture = incoming.PendingProjectCapture
	}
	if len(incoming.PreviousToolsUsed) > 0 {
		sm.PreviousToolsUsed = incoming.PreviousToolsUsed
	}
	if incoming.ToolAnalysis != nil {
		sm.ToolAnalysis = incoming.ToolAnalysis
	}
	if incoming.EditorPreference != "" {
		sm.EditorPreference = incoming.EditorPreference
	}
	for k, v := range incoming.Extensions {
		if sm.Extensions == nil {
			sm.Extensions = make(map[string]any)
		}
		sm.Extensions[k] = v
	}
}

// RecordToolUse appends a tool name to the turn's invocation trail.
func (sm *SharedMemory) RecordToolUse(tool string) {
	sm.PreviousToolsUsed = append(sm.PreviousToolsUsed, tool)
}

// ApplyGrants sets the permission keys named by the caller's grant flags.
func (sm *SharedMemory) ApplyGrants(grants *PermissionGrants) {
	if grants == nil {
		return
	}
	if grants.WebSearchPermission {
		sm.WebSearchPermission = PermissionGranted
	}
	if grants.WebCrawlPermission {
		sm.WebCrawlPermission = PermissionGranted
	}
	if grants.FileWritePermission {
		sm.FileWritePermission = PermissionGranted
	}
	if grants.ExternalAPIPermission {
		sm.ExternalAPIPermission = PermissionGranted
	}
}

// AsSharedMemory coerces a checkpointed state value back into a typed
// record. Checkpoint decoding yields map[string]any for nested objects;
// agents always see the typed form.
func AsSharedMemory(v any) *SharedMemory {
	switch t := v.(type) {
	case *SharedMemory:
		return t
	case SharedMemory:
		return &t
	case map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return NewSharedMemory()
		}
		sm := NewSharedMemory()
		if err := json.Unmarshal(data, sm); err != nil {
			return NewSharedMemory()
		}
		return sm
	default:
		return NewSharedMemory()
	}
}
