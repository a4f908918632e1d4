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
package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockTracer captures spans, metrics, and events in memory so tests can
// assert on them. Span IDs are sequential, which keeps parent assertions
// deterministic and failure output readable.
//
// Safe for concurrent use.
type MockTracer struct {
	nextID atomic.Int64

	mu      sync.Mutex
	spans   []*Span
	metrics []RecordedMetric
	events  []RecordedEvent
}

// RecordedMetric is one RecordMetric call.
type RecordedMetric struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// RecordedEvent is one RecordEvent call.
type RecordedEvent struct {
	Name       string
	Attributes map[string]any
}

// NewMockTracer returns an empty capturing tracer.
func NewMockTracer() *MockTracer {
	return &MockTracer{}
}

// StartSpan opens a span with a sequential ID, linked to any parent in ctx.
func (m *MockTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	id := m.nextID.Add(1)
	span := &Span{
		TraceID:   fmt.Sprintf("trace-%d", id),
		SpanID:    fmt.Sprintf("span-%d", id),
		Name:      name,
		StartTime: time.Now(),
	}
	for _, opt := range opts {
		opt(span)
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	}
	return ContextWithSpan(ctx, span), span
}

// EndSpan stamps the duration and files the span for inspection.
func (m *MockTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, span)
}

// RecordMetric files the metric for inspection.
func (m *MockTracer) RecordMetric(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, RecordedMetric{Name: name, Value: value, Labels: labels})
}

// RecordEvent files the event for inspection.
func (m *MockTracer) RecordEvent(ctx context.Context, name string, attributes map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, RecordedEvent{Name: name, Attributes: attributes})
}

// Flush returns immediately because nothing buffers.
func (m *MockTracer) Flush(ctx context.Context) error {
	return nil
}

// GetSpans returns a copy of every ended span, in completion order.
func (m *MockTracer) GetSpans() []*Span {
	m.mu.Lock()
	defer m.mu.Unlock()
	spans := make([]*Span, len(m.spans))
	copy(spans, m.spans)
	return spans
}

// GetSpanByName returns the first ended span with the given name, or nil.
func (m *MockTracer) GetSpanByName(name string) *Span {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, span := range m.spans {
		if span.Name == name {
			return span
		}
	}
	return nil
}

// GetEvents returns a copy of every recorded event.
func (m *MockTracer) GetEvents() []RecordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]RecordedEvent, len(m.events))
	copy(events, m.events)
	return events
}

// GetMetrics returns a copy of every recorded metric.
func (m *MockTracer) GetMetrics() []RecordedMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics := make([]RecordedMetric, len(m.metrics))
	copy(metrics, m.metrics)
	return metrics
}

// Reset drops everything captured so far and restarts the ID sequence.
func (m *MockTracer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = nil
	m.metrics = nil
	m.events = nil
	m.nextID.Store(0)
}

var _ Tracer = (*MockTracer)(nil)
