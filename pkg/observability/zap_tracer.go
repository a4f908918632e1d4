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
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ZapTracer exports spans, metrics, and events as structured log lines.
// It is the default tracer for conductord; deployments that ship traces
// elsewhere replace it behind the Tracer interface.
type ZapTracer struct {
	logger *zap.Logger
}

// NewZapTracer creates a tracer backed by the given logger.
func NewZapTracer(logger *zap.Logger) *ZapTracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapTracer{logger: logger}
}

// StartSpan creates a span linked to any parent in ctx.
func (t *ZapTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := &Span{
		TraceID:    uuid.New().String(),
		SpanID:     uuid.New().String(),
		Name:       name,
		StartTime:  time.Now(),
		Attributes: make(map[string]any),
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

// EndSpan closes the span and emits one log line with its attributes.
func (t *ZapTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)

	fields := []zap.Field{
		zap.String("trace_id", span.TraceID),
		zap.String("span_id", span.SpanID),
		zap.Duration("duration", span.Duration),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID))
	}
	for k, v := range span.Attributes {
		fields = append(fields, zap.Any(k, v))
	}

	if span.Status.Code == StatusError {
		fields = append(fields, zap.String("status", span.Status.Message))
		t.logger.Warn("span "+span.Name, fields...)
		return
	}
	t.logger.Debug("span "+span.Name, fields...)
}

// RecordMetric emits the metric as a debug log line.
func (t *ZapTracer) RecordMetric(name string, value float64, labels map[string]string) {
	fields := make([]zap.Field, 0, len(labels)+1)
	fields = append(fields, zap.Float64("value", value))
	for k, v := range labels {
		fields = append(fields, zap.String(k, v))
	}
	t.logger.Debug("metric "+name, fields...)
}

// RecordEvent emits the event as a debug log line, tagged with the
// surrounding span if any.
func (t *ZapTracer) RecordEvent(ctx context.Context, name string, attributes map[string]any) {
	fields := make([]zap.Field, 0, len(attributes)+1)
	if span := SpanFromContext(ctx); span != nil {
		fields = append(fields, zap.String("trace_id", span.TraceID))
	}
	for k, v := range attributes {
		fields = append(fields, zap.Any(k, v))
	}
	t.logger.Debug("event "+name, fields...)
}

// Flush syncs the underlying logger.
func (t *ZapTracer) Flush(ctx context.Context) error {
	// Sync errors on stderr sinks are expected and harmless.
	_ = t.logger.Sync()
	return nil
}

// Ensure ZapTracer implements Tracer interface.
var _ Tracer = (*ZapTracer)(nil)
