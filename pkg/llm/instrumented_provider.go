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
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/conductor/pkg/observability"
	"github.com/teradata-labs/conductor/pkg/types"
)

// InstrumentedProvider wraps any LLMProvider with a span per call carrying
// token usage, cost, latency, and error details, plus the standard LLM
// metrics. The factory wraps every provider it builds, so agents get
// instrumentation without knowing about it.
type InstrumentedProvider struct {
	provider types.LLMProvider
	tracer   observability.Tracer
}

// NewInstrumentedProvider wraps provider. A nil tracer disables export but
// keeps the wrapper transparent.
func NewInstrumentedProvider(provider types.LLMProvider, tracer observability.Tracer) *InstrumentedProvider {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &InstrumentedProvider{
		provider: provider,
		tracer:   tracer,
	}
}

// Name returns the underlying provider name.
func (p *InstrumentedProvider) Name() string {
	return p.provider.Name()
}

// Model returns the underlying model identifier.
func (p *InstrumentedProvider) Model() string {
	return p.provider.Model()
}

// Chat forwards to the wrapped provider inside an llm.completion span.
func (p *InstrumentedProvider) Chat(ctx context.Context, messages []types.Message, opts *types.ChatOptions) (*types.LLMResponse, error) {
	ctx, span := p.startCallSpan(ctx, messages, opts, false)
	defer p.tracer.EndSpan(span)

	start := time.Now()
	resp, err := p.provider.Chat(ctx, messages, opts)
	duration := time.Since(start)

	if err != nil {
		p.failCallSpan(span, opts, err, duration)
		return nil, err
	}

	span.SetAttribute("llm.content.length", len(resp.Content))
	p.finishCallSpan(span, opts, resp, duration)
	return resp, nil
}

// ChatStream forwards to the wrapped provider's streaming path, stamping
// time to first token and chunk count on top of the usual call attributes.
// Providers without streaming support fail before any span is opened.
func (p *InstrumentedProvider) ChatStream(ctx context.Context, messages []types.Message, opts *types.ChatOptions, tokenCallback types.TokenCallback) (*types.LLMResponse, error) {
	streamingProvider, ok := p.provider.(types.StreamingLLMProvider)
	if !ok {
		return nil, fmt.Errorf("provider %s does not support streaming", p.provider.Name())
	}

	ctx, span := p.startCallSpan(ctx, messages, opts, true)
	defer p.tracer.EndSpan(span)

	start := time.Now()
	var ttft time.Duration
	chunks := 0

	// Observe each chunk before handing it to the caller's callback.
	observed := func(token string) {
		if chunks == 0 {
			ttft = time.Since(start)
			span.AddEvent("stream.first_token", map[string]interface{}{
				"ttft_ms": ttft.Milliseconds(),
			})
			p.tracer.RecordMetric("llm.streaming.ttft_ms", float64(ttft.Milliseconds()), p.callLabels(opts))
		}
		chunks++
		if tokenCallback != nil {
			tokenCallback(token)
		}
	}

	resp, err := streamingProvider.ChatStream(ctx, messages, opts, observed)
	duration := time.Since(start)

	span.SetAttribute("llm.streaming.chunks", chunks)
	if err != nil {
		p.failCallSpan(span, opts, err, duration)
		return nil, err
	}

	span.SetAttribute("llm.ttft_ms", ttft.Milliseconds())
	if duration > 0 {
		span.SetAttribute("llm.streaming.throughput", float64(resp.Usage.OutputTokens)/duration.Seconds())
	}
	p.finishCallSpan(span, opts, resp, duration)
	return resp, nil
}

// startCallSpan opens the llm.completion span and stamps request-side
// attributes. The returned context carries the span so nested work links
// under it.
func (p *InstrumentedProvider) startCallSpan(ctx context.Context, messages []types.Message, opts *types.ChatOptions, streaming bool) (context.Context, *observability.Span) {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanLLMCompletion,
		observability.WithSpanKind("llm"),
		observability.WithAttribute(observability.AttrLLMProvider, p.provider.Name()),
		observability.WithAttribute(observability.AttrLLMModel, p.effectiveModel(opts)))

	span.SetAttribute("llm.messages.count", len(messages))
	if streaming {
		span.SetAttribute("llm.streaming", true)
	}
	if opts != nil && opts.TemperatureSet {
		span.SetAttribute(observability.AttrLLMTemperature, opts.Temperature)
	}

	span.AddEvent("llm.call.started", map[string]interface{}{
		"messages":  len(messages),
		"streaming": streaming,
	})
	return ctx, span
}

// failCallSpan records the error on the span and bumps the error counter.
func (p *InstrumentedProvider) failCallSpan(span *observability.Span, opts *types.ChatOptions, err error, duration time.Duration) {
	span.RecordError(err)
	span.SetAttribute("llm.duration_ms", duration.Milliseconds())
	span.AddEvent("llm.call.failed", map[string]interface{}{
		"error":       err.Error(),
		"duration_ms": duration.Milliseconds(),
	})

	labels := p.callLabels(opts)
	labels[observability.AttrErrorType] = fmt.Sprintf("%T", err)
	p.tracer.RecordMetric(observability.MetricLLMErrors, 1, labels)
}

// finishCallSpan stamps response-side attributes and emits the per-call
// metrics.
func (p *InstrumentedProvider) finishCallSpan(span *observability.Span, opts *types.ChatOptions, resp *types.LLMResponse, duration time.Duration) {
	span.SetOK()
	span.SetAttribute("llm.tokens.input", resp.Usage.InputTokens)
	span.SetAttribute("llm.tokens.output", resp.Usage.OutputTokens)
	span.SetAttribute("llm.tokens.total", resp.Usage.TotalTokens)
	span.SetAttribute("llm.cost.usd", resp.Usage.CostUSD)
	span.SetAttribute("llm.stop_reason", resp.StopReason)
	span.SetAttribute("llm.duration_ms", duration.Milliseconds())

	span.AddEvent("llm.call.completed", map[string]interface{}{
		"duration_ms":   duration.Milliseconds(),
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
		"cost_usd":      resp.Usage.CostUSD,
		"stop_reason":   resp.StopReason,
	})

	labels := p.callLabels(opts)
	p.tracer.RecordMetric(observability.MetricLLMCalls, 1, labels)
	p.tracer.RecordMetric(observability.MetricLLMLatency, float64(duration.Milliseconds()), labels)
	p.tracer.RecordMetric(observability.MetricLLMTokensInput, float64(resp.Usage.InputTokens), labels)
	p.tracer.RecordMetric(observability.MetricLLMTokensOutput, float64(resp.Usage.OutputTokens), labels)
	p.tracer.RecordMetric(observability.MetricLLMCost, resp.Usage.CostUSD, labels)
}

// callLabels returns a fresh provider/model label map. Callers may add to it.
func (p *InstrumentedProvider) callLabels(opts *types.ChatOptions) map[string]string {
	return map[string]string{
		observability.AttrLLMProvider: p.provider.Name(),
		observability.AttrLLMModel:    p.effectiveModel(opts),
	}
}

// effectiveModel returns the per-call model override when present.
func (p *InstrumentedProvider) effectiveModel(opts *types.ChatOptions) string {
	if opts != nil && opts.Model != "" {
		return opts.Model
	}
	return p.provider.Model()
}

var _ types.LLMProvider = (*InstrumentedProvider)(nil)
var _ types.StreamingLLMProvider = (*InstrumentedProvider)(nil)
