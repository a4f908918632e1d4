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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestLimiter builds a limiter with settings fast enough that tests never
// wait on real provider quotas. mutate adjusts individual fields per test.
func newTestLimiter(t *testing.T, mutate func(*RateLimiterConfig)) *RateLimiter {
	t.Helper()
	cfg := DefaultRateLimiterConfig()
	cfg.Logger = zaptest.NewLogger(t)
	cfg.RequestsPerSecond = 1000
	cfg.BurstCapacity = 10
	cfg.TokensPerMinute = 0
	cfg.MinDelay = 0
	cfg.RetryBackoff = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	rl := NewRateLimiter(cfg)
	t.Cleanup(func() { _ = rl.Close() })
	return rl
}

func noopCall(context.Context) (interface{}, error) {
	return nil, nil
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 2.0, cfg.RequestsPerSecond)
	assert.Equal(t, int64(40000), cfg.TokensPerMinute)
	assert.Equal(t, 5, cfg.BurstCapacity)
	assert.Equal(t, 300*time.Millisecond, cfg.MinDelay)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 5*time.Minute, cfg.QueueTimeout)
	assert.NotNil(t, cfg.Logger)
}

func TestNewRateLimiter_BackfillsZeroValues(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Enabled: true})
	defer rl.Close()

	assert.NotNil(t, rl.cfg.Logger)
	assert.Greater(t, rl.cfg.RequestsPerSecond, 0.0)
	assert.GreaterOrEqual(t, rl.cfg.BurstCapacity, 1)
}

func TestRateLimiter_Do_ReturnsCallResult(t *testing.T) {
	rl := newTestLimiter(t, nil)

	result, err := rl.Do(context.Background(), func(context.Context) (interface{}, error) {
		return "response", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "response", result)
	assert.Equal(t, int64(1), rl.GetMetrics().TotalRequests)
}

func TestRateLimiter_Do_Disabled(t *testing.T) {
	rl := newTestLimiter(t, func(c *RateLimiterConfig) { c.Enabled = false })

	calls := 0
	result, err := rl.Do(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)

	// Errors pass through untouched, including throttle-shaped ones.
	wantErr := errors.New("429 too many requests")
	_, err = rl.Do(context.Background(), func(context.Context) (interface{}, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestRateLimiter_PacesBeyondBurst(t *testing.T) {
	rl := newTestLimiter(t, func(c *RateLimiterConfig) {
		c.RequestsPerSecond = 10 // 100ms per slot once the burst is spent
		c.BurstCapacity = 1
	})
	ctx := context.Background()

	start := time.Now()
	_, err := rl.Do(ctx, noopCall)
	require.NoError(t, err)
	firstElapsed := time.Since(start)

	_, err = rl.Do(ctx, noopCall)
	require.NoError(t, err)

	assert.Less(t, firstElapsed, 50*time.Millisecond, "burst slot should not wait")
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond, "second slot should wait for the refill")
}

func TestRateLimiter_MinDelaySpacesCalls(t *testing.T) {
	rl := newTestLimiter(t, func(c *RateLimiterConfig) {
		c.MinDelay = 60 * time.Millisecond
	})
	ctx := context.Background()

	start := time.Now()
	_, err := rl.Do(ctx, noopCall)
	require.NoError(t, err)
	_, err = rl.Do(ctx, noopCall)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_QueueTimeoutFailsFast(t *testing.T) {
	rl := newTestLimiter(t, func(c *RateLimiterConfig) {
		c.RequestsPerSecond = 0.01 // next slot ~100s away after the burst
		c.BurstCapacity = 1
		c.QueueTimeout = 50 * time.Millisecond
	})
	ctx := context.Background()

	_, err := rl.Do(ctx, noopCall)
	require.NoError(t, err)

	start := time.Now()
	_, err = rl.Do(ctx, noopCall)
	require.Error(t, err)
	assert.ErrorContains(t, err, "queue timeout")
	assert.Less(t, time.Since(start), time.Second, "rejection should not wait for the slot")
	assert.Equal(t, int64(1), rl.GetMetrics().TimedOutRequests)

	// The rejected call must not have consumed a reservation.
	rl.mu.Lock()
	tokens := rl.tokens
	rl.mu.Unlock()
	assert.GreaterOrEqual(t, tokens, -0.01)
}

func TestRateLimiter_ContextCanceledBeforeCall(t *testing.T) {
	rl := newTestLimiter(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := rl.Do(ctx, func(context.Context) (interface{}, error) {
		calls++
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRateLimiter_ContextCanceledDuringWait(t *testing.T) {
	rl := newTestLimiter(t, func(c *RateLimiterConfig) {
		c.RequestsPerSecond = 0.5 // next slot 2s away after the burst
		c.BurstCapacity = 1
	})

	_, err := rl.Do(context.Background(), noopCall)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = rl.Do(ctx, noopCall)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateLimiter_RetriesThrottlingThenSucceeds(t *testing.T) {
	rl := newTestLimiter(t, func(c *RateLimiterConfig) {
		c.MaxRetries = 3
	})

	calls := 0
	result, err := rl.Do(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("429 Too Many Requests")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 3, calls)

	m := rl.GetMetrics()
	assert.Equal(t, int64(3), m.TotalRequests)
	assert.Equal(t, int64(2), m.ThrottledRequests)
	assert.False(t, m.LastThrottleTime.IsZero())
}

func TestRateLimiter_RetriesExhaustedWrapsLastError(t *testing.T) {
	rl := newTestLimiter(t, func(c *RateLimiterConfig) {
		c.MaxRetries = 2
	})

	throttleErr := errors.New("ThrottlingException: Rate exceeded")
	calls := 0
	_, err := rl.Do(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return nil, throttleErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, throttleErr)
	assert.ErrorContains(t, err, "after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestRateLimiter_NonThrottlingErrorNotRetried(t *testing.T) {
	rl := newTestLimiter(t, func(c *RateLimiterConfig) {
		c.MaxRetries = 5
	})

	wantErr := errors.New("invalid model id")
	calls := 0
	_, err := rl.Do(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return nil, wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
	assert.Zero(t, rl.GetMetrics().ThrottledRequests)
}

func TestRateLimiter_TokenBudgetBlocksWhenSpent(t *testing.T) {
	rl := newTestLimiter(t, func(c *RateLimiterConfig) {
		c.TokensPerMinute = 100
		c.QueueTimeout = 50 * time.Millisecond
	})

	// Under budget: calls go through.
	rl.RecordTokenUsage(50)
	_, err := rl.Do(context.Background(), noopCall)
	require.NoError(t, err)

	// Over budget: the window cannot clear inside the queue timeout.
	rl.RecordTokenUsage(100)
	_, err = rl.Do(context.Background(), noopCall)
	require.Error(t, err)
	assert.ErrorContains(t, err, "queue timeout")
}

func TestRateLimiter_TokenWindowPrunesOldUsage(t *testing.T) {
	rl := newTestLimiter(t, nil)

	rl.mu.Lock()
	rl.window = append(rl.window, usageStamp{at: time.Now().Add(-2 * time.Minute), tokens: 500})
	rl.mu.Unlock()

	rl.RecordTokenUsage(25)
	rl.RecordTokenUsage(10)

	m := rl.GetMetrics()
	assert.Equal(t, int64(35), m.TokensLastMinute, "stale usage should age out of the window")
	assert.Equal(t, int64(35), m.TokensConsumed)
}

func TestRateLimiter_RecordTokenUsageIgnoresNonPositive(t *testing.T) {
	rl := newTestLimiter(t, nil)

	rl.RecordTokenUsage(0)
	rl.RecordTokenUsage(-5)

	m := rl.GetMetrics()
	assert.Zero(t, m.TokensConsumed)
	assert.Zero(t, m.TokensLastMinute)
}

func TestRateLimiter_CloseRejectsNewCalls(t *testing.T) {
	rl := newTestLimiter(t, nil)

	require.NoError(t, rl.Close())

	_, err := rl.Do(context.Background(), noopCall)
	assert.ErrorIs(t, err, errRateLimiterClosed)

	assert.NoError(t, rl.Close(), "close should be idempotent")
}

func TestRateLimiter_ConcurrentCalls(t *testing.T) {
	rl := newTestLimiter(t, nil)

	const workers = 25
	var completed atomic.Int32
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rl.Do(context.Background(), func(context.Context) (interface{}, error) {
				completed.Add(1)
				return nil, nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(workers), completed.Load())
	assert.Equal(t, int64(workers), rl.GetMetrics().TotalRequests)
}

func TestGlobalRateLimiter_Singleton(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	cfg.Logger = zaptest.NewLogger(t)

	first := GlobalRateLimiter(cfg)
	require.NotNil(t, first)

	// A different config on a later call still returns the same limiter.
	other := DefaultRateLimiterConfig()
	other.RequestsPerSecond = 99
	second := GlobalRateLimiter(other)

	assert.Same(t, first, second)
}

func TestIsThrottlingError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "http 429", err: errors.New("429 Too Many Requests"), want: true},
		{name: "aws throttling", err: errors.New("ThrottlingException: Rate exceeded"), want: true},
		{name: "too many requests", err: errors.New("TooManyRequests: slow down"), want: true},
		{name: "rate limit text", err: errors.New("rate limit exceeded, retry later"), want: true},
		{name: "anthropic overloaded", err: errors.New("api error: overloaded_error"), want: true},
		{name: "generic throttle", err: errors.New("request was throttled by upstream"), want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isThrottlingError(tt.err))
		})
	}
}

func BenchmarkRateLimiter_Do(b *testing.B) {
	cfg := DefaultRateLimiterConfig()
	cfg.RequestsPerSecond = 1e6
	cfg.BurstCapacity = 1000
	cfg.TokensPerMinute = 0
	cfg.MinDelay = 0
	rl := NewRateLimiter(cfg)
	defer rl.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = rl.Do(context.Background(), noopCall)
	}
}
