// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability provides tracing and metrics for conductor turns.
//
// The orchestrator opens a span per turn; agents open child spans per
// workflow node and research round. The default exporter logs through zap;
// NoOpTracer disables everything for tests.
package observability

import (
	"fmt"
	"time"
)

// StatusCode is the terminal outcome of a span.
type StatusCode int

const (
	// StatusUnset means the span finished without anyone marking it.
	StatusUnset StatusCode = iota
	// StatusOK marks a successful span.
	StatusOK
	// StatusError marks a failed span.
	StatusError
)

func (s StatusCode) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusUnset:
		return "unset"
	}
	return "unknown"
}

// Status pairs the outcome code with an optional message, usually the
// error text on failure.
type Status struct {
	Code    StatusCode
	Message string
}

// Event is a timestamped annotation inside a span, cheaper than opening a
// child span for a point-in-time occurrence.
type Event struct {
	Timestamp  time.Time
	Name       string
	Attributes map[string]any
}

// Span is one timed unit of work: a turn, a workflow node, an LLM call, or
// a tool invocation. Spans nest through ParentID; every span in a turn
// shares the root's TraceID.
type Span struct {
	TraceID  string
	SpanID   string
	ParentID string // empty on the root span

	Name       string
	Attributes map[string]any

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration // filled in by EndSpan

	Events []Event
	Status Status
}

// SetAttribute records a key-value pair on the span.
func (s *Span) SetAttribute(key string, value any) {
	if s.Attributes == nil {
		s.Attributes = make(map[string]any)
	}
	s.Attributes[key] = value
}

// AddEvent appends an annotation stamped with the current time.
func (s *Span) AddEvent(name string, attrs map[string]any) {
	s.Events = append(s.Events, Event{
		Timestamp:  time.Now(),
		Name:       name,
		Attributes: attrs,
	})
}

// RecordError marks the span failed and captures the error text and its
// concrete Go type as attributes. A nil error is ignored.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.Status = Status{Code: StatusError, Message: err.Error()}
	s.SetAttribute(AttrErrorMessage, err.Error())
	s.SetAttribute(AttrErrorType, fmt.Sprintf("%T", err))
}

// SetOK marks the span successful unless an error was already recorded.
func (s *Span) SetOK() {
	if s.Status.Code == StatusUnset {
		s.Status = Status{Code: StatusOK}
	}
}

// SpanOption configures a span at StartSpan time.
type SpanOption func(*Span)

// WithAttribute seeds the span with one attribute.
func WithAttribute(key string, value any) SpanOption {
	return func(s *Span) {
		s.SetAttribute(key, value)
	}
}

// WithSpanKind tags the span with a span.kind attribute. Conductor uses
// "turn", "node", "llm", and "tool".
func WithSpanKind(kind string) SpanOption {
	return func(s *Span) {
		s.SetAttribute("span.kind", kind)
	}
}
