// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"encoding/json"
)

// Well-known workflow state keys shared by every agent graph. Workflows
// extend the state with their own keys; extensions are additive.
const (
	StateKeyMessages     = "messages"
	StateKeyUserID       = "user_id"
	StateKeyQuery        = "query"
	StateKeySharedMemory = "shared_memory"
	StateKeyMetadata     = "metadata"
	StateKeyResponse     = "response"
	StateKeyTaskStatus   = "task_status"
	StateKeyError        = "error"
)

// WorkflowState is the typed view of the base keys every workflow carries.
// Graph nodes operate on the raw key/value state; the orchestrator and
// agents use this view at the boundaries.
type WorkflowState struct {
	Messages     []Message         `json:"messages,omitempty"`
	UserID       string            `json:"user_id,omitempty"`
	Query        string            `json:"query,omitempty"`
	SharedMemory *SharedMemory     `json:"shared_memory,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Response     string            `json:"response,omitempty"`
	TaskStatus   TaskStatus        `json:"task_status,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ToMap renders the typed view as graph state. Nil fields are omitted so
// node merges stay key-wise.
func (ws *WorkflowState) ToMap() map[string]any {
	m := make(map[string]any)
	if len(ws.Messages) > 0 {
		m[StateKeyMessages] = ws.Messages
	}
	if ws.UserID != "" {
		m[StateKeyUserID] = ws.UserID
	}
	if ws.Query != "" {
		m[StateKeyQuery] = ws.Query
	}
	if ws.SharedMemory != nil {
		m[StateKeySharedMemory] = ws.SharedMemory
	}
	if ws.Metadata != nil {
		m[StateKeyMetadata] = ws.Metadata
	}
	if ws.Response != "" {
		m[StateKeyResponse] = ws.Response
	}
	if ws.TaskStatus != "" {
		// Stored as a plain string so in-memory state and checkpoint
		// round-trips read back identically.
		m[StateKeyTaskStatus] = string(ws.TaskStatus)
	}
	if ws.Error != "" {
		m[StateKeyError] = ws.Error
	}
	return m
}

// WorkflowStateFrom extracts the typed base view from raw graph state.
// Values that were round-tripped through a checkpoint arrive as generic
// JSON types and are coerced back.
func WorkflowStateFrom(state map[string]any) *WorkflowState {
	ws := &WorkflowState{}
	if v, ok := state[StateKeyMessages]; ok {
		ws.Messages = AsMessages(v)
	}
	ws.UserID = AsString(state[StateKeyUserID])
	ws.Query = AsString(state[StateKeyQuery])
	if v, ok := state[StateKeySharedMemory]; ok {
		ws.SharedMemory = AsSharedMemory(v)
	}
	if v, ok := state[StateKeyMetadata]; ok {
		ws.Metadata = AsStringMap(v)
	}
	ws.Response = AsString(state[StateKeyResponse])
	ws.TaskStatus = TaskStatus(AsString(state[StateKeyTaskStatus]))
	ws.Error = AsString(state[StateKeyError])
	return ws
}

// ============================================================================
// State value coercion helpers
// ============================================================================

// AsString returns v as a string, or "" when absent or mistyped.
func AsString(v any) string {
	s, _ := v.(string)
	return s
}

// AsBool returns v as a bool, or false when absent or mistyped.
func AsBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// AsFloat returns v as a float64, coercing JSON numbers.
func AsFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return 0
	}
}

// AsInt returns v as an int, coercing JSON numbers.
func AsInt(v any) int {
	return int(AsFloat(v))
}

// AsStringSlice coerces []string or []any-of-string values.
func AsStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// AsStringMap coerces map[string]string or map[string]any-of-string values.
func AsStringMap(v any) map[string]string {
	switch t := v.(type) {
	case map[string]string:
		return t
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, e := range t {
			if s, ok := e.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}

// AsMessages coerces []Message values that may have round-tripped
// through JSON.
func AsMessages(v any) []Message {
	switch t := v.(type) {
	case []Message:
		return t
	case []any:
		data, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		var out []Message
		if err := json.Unmarshal(data, &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// Remarshal coerces an arbitrary decoded value into the typed out
// pointer by round-tripping through JSON.
func Remarshal(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
