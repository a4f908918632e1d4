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

// Tracer instruments conductor operations. Turns, workflow nodes, research
// rounds, LLM calls, and tool invocations each get a span; scalar
// measurements go through RecordMetric.
//
// Implementations must tolerate concurrent calls.
type Tracer interface {
	// StartSpan opens a span and threads it through the returned context,
	// which links any span started under it as a child.
	//
	//	ctx, span := tracer.StartSpan(ctx, "research.round",
	//	    WithAttribute(AttrResearchRound, "web_round_1"))
	//	defer tracer.EndSpan(span)
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span)

	// EndSpan stamps the duration and hands the span to the exporter.
	// Pair it with StartSpan via defer.
	EndSpan(span *Span)

	// RecordMetric reports one measurement: a token count, a cost, a
	// latency. Labels distinguish series that share a name.
	RecordMetric(name string, value float64, labels map[string]string)

	// RecordEvent reports an event that has no natural parent span.
	// Inside a span, prefer span.AddEvent.
	RecordEvent(ctx context.Context, name string, attributes map[string]any)

	// Flush blocks until buffered telemetry is exported or the context
	// expires. The daemon calls it during graceful shutdown.
	Flush(ctx context.Context) error
}

// SpanFromContext returns the span carried by ctx, or nil when the call
// chain was never instrumented.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanContextKey).(*Span); ok {
		return span
	}
	return nil
}

// ContextWithSpan attaches span to ctx for downstream SpanFromContext calls.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanContextKey, span)
}

type contextKey string

const spanContextKey contextKey = "conductor.span"

// Common attribute keys.
const (
	AttrUserID         = "user.id"
	AttrConversationID = "conversation.id"
	AttrThreadID       = "thread.id"
	AttrAgentName      = "agent.name"
	AttrNodeName       = "node.name"
	AttrResearchRound  = "research.round"

	AttrLLMProvider    = "llm.provider"
	AttrLLMModel       = "llm.model"
	AttrLLMTemperature = "llm.temperature"

	AttrToolName = "tool.name"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Common span names.
const (
	SpanTurn          = "orchestrator.turn"
	SpanAgentExecute  = "agent.execute"
	SpanWorkflowNode  = "workflow.node"
	SpanLLMCompletion = "llm.completion"
	SpanToolInvoke    = "tool.invoke"
	SpanCheckpoint    = "checkpoint.put"
)

// Common metric names.
const (
	MetricLLMCalls        = "llm.calls.total"
	MetricLLMErrors       = "llm.errors.total"
	MetricLLMLatency      = "llm.latency_ms"
	MetricLLMTokensInput  = "llm.tokens.input"
	MetricLLMTokensOutput = "llm.tokens.output"
	MetricLLMCost         = "llm.cost.usd"

	MetricToolCalls  = "tool.calls.total"
	MetricToolErrors = "tool.errors.total"

	MetricTurns        = "orchestrator.turns.total"
	MetricTurnLatency  = "orchestrator.turn.latency_ms"
	MetricInterrupts   = "orchestrator.interrupts.total"
	MetricCheckpointed = "checkpoint.writes.total"
)
