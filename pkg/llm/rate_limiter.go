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
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// tokenWindow is the sliding window over which TokensPerMinute is enforced.
const tokenWindow = time.Minute

var errRateLimiterClosed = errors.New("rate limiter closed")

// RateLimiterConfig tunes the shared LLM rate limiter.
type RateLimiterConfig struct {
	// Enabled turns limiting on. A disabled limiter passes calls straight through.
	Enabled bool

	// RequestsPerSecond refills the request bucket.
	RequestsPerSecond float64

	// TokensPerMinute caps model tokens spent in any trailing minute.
	// Zero disables the token budget.
	TokensPerMinute int64

	// BurstCapacity sets the bucket size, the number of calls that may
	// start back to back after idle time.
	BurstCapacity int

	// MinDelay is the minimum spacing between consecutive call starts.
	MinDelay time.Duration

	// MaxRetries bounds retries after a throttling response.
	MaxRetries int

	// RetryBackoff is the first retry delay. It doubles per attempt.
	RetryBackoff time.Duration

	// QueueTimeout rejects a call up front when its reserved slot is further
	// away than this. Zero waits as long as the caller's context allows.
	QueueTimeout time.Duration

	// Logger receives throttle warnings. Nil falls back to a nop logger.
	Logger *zap.Logger
}

// DefaultRateLimiterConfig returns defaults conservative enough for Bedrock
// on-demand quotas. The Anthropic client substitutes its own defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 2.0,
		TokensPerMinute:   40000,
		BurstCapacity:     5,
		MinDelay:          300 * time.Millisecond,
		MaxRetries:        5,
		RetryBackoff:      1 * time.Second,
		QueueTimeout:      5 * time.Minute,
		Logger:            zap.NewNop(),
	}
}

// Agents run concurrently inside a turn and turns run concurrently across
// conversations. Funneling every provider call through one process-wide
// limiter keeps the sum under the account quota.
var (
	globalRateLimiter     *RateLimiter
	globalRateLimiterOnce sync.Once
)

// GlobalRateLimiter returns the shared limiter, building it from config on
// first use. Later calls return the existing limiter and ignore config.
func GlobalRateLimiter(config RateLimiterConfig) *RateLimiter {
	globalRateLimiterOnce.Do(func() {
		globalRateLimiter = NewRateLimiter(config)
	})
	return globalRateLimiter
}

// RateLimiter paces LLM calls so a conductor process stays inside provider
// quotas. Admission is reservation based: each call reserves the next free
// slot against the request bucket and the trailing-minute token budget, then
// sleeps until that slot arrives. MinDelay adds a spacing floor between
// consecutive slots. A caller that gives up during its sleep keeps its
// reservation, which errs on the side of under-running the quota.
//
// There are no background goroutines. Close only marks the limiter stopped.
type RateLimiter struct {
	cfg RateLimiterConfig

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	nextStart  time.Time
	window     []usageStamp

	requests       atomic.Int64
	throttled      atomic.Int64
	timedOut       atomic.Int64
	tokensConsumed atomic.Int64
	lastThrottle   atomic.Int64

	closed atomic.Bool
}

// usageStamp is one RecordTokenUsage observation inside the sliding window.
type usageStamp struct {
	at     time.Time
	tokens int64
}

// RateLimiterMetrics is a point-in-time snapshot of limiter activity.
type RateLimiterMetrics struct {
	TotalRequests     int64
	ThrottledRequests int64
	TimedOutRequests  int64
	TokensConsumed    int64
	TokensLastMinute  int64
	LastThrottleTime  time.Time
}

// NewRateLimiter builds a limiter. Zero-value rate and burst fall back to
// safe minimums so a partially filled config cannot divide by zero.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1
	}
	if config.BurstCapacity < 1 {
		config.BurstCapacity = 1
	}
	return &RateLimiter{
		cfg:        config,
		tokens:     float64(config.BurstCapacity),
		lastRefill: time.Now(),
	}
}

// Do runs call once a rate slot is available, retrying with exponential
// backoff when the provider answers with a throttling error.
func (rl *RateLimiter) Do(ctx context.Context, call func(context.Context) (interface{}, error)) (interface{}, error) {
	if !rl.cfg.Enabled {
		return call(ctx)
	}
	if rl.closed.Load() {
		return nil, errRateLimiterClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wait, err := rl.reserve(time.Now())
	if err != nil {
		return nil, err
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	return rl.executeWithRetry(ctx, call)
}

// reserve claims the next call slot and returns how long the caller must
// wait for it. When the slot lies beyond QueueTimeout the reservation is
// not committed and an error is returned instead, so rejected calls do not
// push later callers further out.
func (rl *RateLimiter) reserve(now time.Time) (time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked(now)

	start := now
	if rl.tokens < 1 {
		deficit := (1 - rl.tokens) / rl.cfg.RequestsPerSecond
		start = start.Add(time.Duration(deficit * float64(time.Second)))
	}
	if start.Before(rl.nextStart) {
		start = rl.nextStart
	}
	if budgetWait := rl.budgetWaitLocked(now); budgetWait > 0 {
		if budgetStart := now.Add(budgetWait); start.Before(budgetStart) {
			start = budgetStart
		}
	}

	wait := start.Sub(now)
	if rl.cfg.QueueTimeout > 0 && wait > rl.cfg.QueueTimeout {
		rl.timedOut.Add(1)
		return 0, fmt.Errorf("rate limiter queue timeout: next slot in %s exceeds %s",
			wait.Round(time.Millisecond), rl.cfg.QueueTimeout)
	}

	rl.tokens--
	rl.nextStart = start.Add(rl.cfg.MinDelay)
	return wait, nil
}

// refillLocked tops the bucket up for the time elapsed since the last call.
// Tokens may be negative while queued reservations are paying off debt.
func (rl *RateLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens = min(float64(rl.cfg.BurstCapacity), rl.tokens+elapsed*rl.cfg.RequestsPerSecond)
	rl.lastRefill = now
}

// budgetWaitLocked returns how long until enough recorded token usage ages
// out of the window to bring consumption back under TokensPerMinute.
func (rl *RateLimiter) budgetWaitLocked(now time.Time) time.Duration {
	if rl.cfg.TokensPerMinute <= 0 {
		return 0
	}
	rl.pruneWindowLocked(now)

	var total int64
	for _, u := range rl.window {
		total += u.tokens
	}
	if total < rl.cfg.TokensPerMinute {
		return 0
	}

	excess := total - rl.cfg.TokensPerMinute
	var freed int64
	for _, u := range rl.window {
		freed += u.tokens
		if freed > excess {
			return u.at.Add(tokenWindow).Sub(now)
		}
	}
	return 0
}

// executeWithRetry runs call, retrying throttling failures with a doubling
// backoff. The final error wraps the provider's last throttle response.
func (rl *RateLimiter) executeWithRetry(ctx context.Context, call func(context.Context) (interface{}, error)) (interface{}, error) {
	backoff := rl.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= rl.cfg.MaxRetries; attempt++ {
		result, err := call(ctx)
		rl.requests.Add(1)
		if err == nil || !isThrottlingError(err) {
			return result, err
		}

		lastErr = err
		rl.throttled.Add(1)
		rl.lastThrottle.Store(time.Now().UnixNano())
		if attempt == rl.cfg.MaxRetries {
			break
		}

		rl.cfg.Logger.Warn("llm call throttled, backing off",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", rl.cfg.MaxRetries),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("llm call throttled after %d attempts: %w", rl.cfg.MaxRetries+1, lastErr)
}

// RecordTokenUsage feeds a completed call's token count into the sliding
// window. Providers report input plus output tokens after each response.
func (rl *RateLimiter) RecordTokenUsage(tokens int64) {
	if tokens <= 0 {
		return
	}
	rl.tokensConsumed.Add(tokens)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	rl.window = append(rl.window, usageStamp{at: now, tokens: tokens})
	rl.pruneWindowLocked(now)
}

// pruneWindowLocked drops stamps older than the sliding window.
func (rl *RateLimiter) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-tokenWindow)
	i := 0
	for i < len(rl.window) && !rl.window[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		rl.window = rl.window[i:]
	}
}

// GetMetrics returns a snapshot of limiter counters.
func (rl *RateLimiter) GetMetrics() RateLimiterMetrics {
	m := RateLimiterMetrics{
		TotalRequests:     rl.requests.Load(),
		ThrottledRequests: rl.throttled.Load(),
		TimedOutRequests:  rl.timedOut.Load(),
		TokensConsumed:    rl.tokensConsumed.Load(),
	}
	if ns := rl.lastThrottle.Load(); ns > 0 {
		m.LastThrottleTime = time.Unix(0, ns)
	}

	rl.mu.Lock()
	now := time.Now()
	rl.pruneWindowLocked(now)
	for _, u := range rl.window {
		m.TokensLastMinute += u.tokens
	}
	rl.mu.Unlock()
	return m
}

// Close marks the limiter stopped. In-flight calls finish normally and new
// calls fail. Close is idempotent.
func (rl *RateLimiter) Close() error {
	rl.closed.Store(true)
	return nil
}

// throttleMarkers are the substrings providers surface for HTTP 429 and AWS
// throttling responses. Matching is textual because both SDK paths hand the
// limiter wrapped error strings.
var throttleMarkers = []string{
	"429",
	"ThrottlingException",
	"TooManyRequests",
	"rate limit",
	"overloaded",
	"throttle",
}

func isThrottlingError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range throttleMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
