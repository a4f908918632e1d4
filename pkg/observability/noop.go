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

import "context"

// NoOpTracer discards everything. Constructors that take an optional tracer
// fall back to it, so instrumented code paths never need nil checks.
//
// Spans handed out by a NoOpTracer still accept attributes and events; they
// are simply never exported. No identifiers are minted and EndSpan leaves
// the span untouched.
type NoOpTracer struct{}

// NewNoOpTracer returns a tracer that records nothing.
func NewNoOpTracer() NoOpTracer {
	return NoOpTracer{}
}

// StartSpan returns a writable span that will never be exported. The span
// is still attached to the context so SpanFromContext keeps working.
func (NoOpTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := &Span{Name: name}
	for _, opt := range opts {
		opt(span)
	}
	return ContextWithSpan(ctx, span), span
}

// EndSpan leaves the span as-is; not even EndTime is stamped.
func (NoOpTracer) EndSpan(*Span) {}

// RecordMetric drops the measurement.
func (NoOpTracer) RecordMetric(string, float64, map[string]string) {}

// RecordEvent drops the event.
func (NoOpTracer) RecordEvent(context.Context, string, map[string]any) {}

// Flush reports success immediately.
func (NoOpTracer) Flush(context.Context) error { return nil }

var _ Tracer = NoOpTracer{}
