// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy. Transport loss is the only implicitly retried kind, and
// only once per turn. Tool failures degrade to empty results; parse
// failures take the documented conservative fallback at the call site.

// ErrTransportClosed marks the tool service or checkpoint store connection
// as gone. The orchestrator resets and retries the turn exactly once.
var ErrTransportClosed = errors.New("connection is closed")

// IsTransportClosed reports whether err indicates a lost connection.
func IsTransportClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransportClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection is closed") ||
		strings.Contains(msg, "transport is closing") ||
		strings.Contains(msg, "connection refused")
}

// ToolError is a logical failure reported by the tool service. Callers
// log it at WARN and continue with empty results.
type ToolError struct {
	Op      string
	Code    string
	Details string
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool %s failed (%s): %s", e.Op, e.Code, e.Details)
	}
	return fmt.Sprintf("tool %s failed: %s", e.Op, e.Details)
}

// ParseError is a failed JSON/schema validation of an LLM reply. The
// caller applies its documented deterministic fallback and never guesses
// a stricter interpretation.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("llm output parse failed: %s", e.Reason)
}

// ConfigError is a missing-but-defaultable configuration problem. It
// surfaces as a warning chunk, not a failed turn.
type ConfigError struct {
	Key     string
	Details string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Details)
}
