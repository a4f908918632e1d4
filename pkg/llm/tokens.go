// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/teradata-labs/conductor/pkg/types"
)

// TokenCounter estimates token counts for history budgeting. It uses the
// cl100k_base BPE when available and falls back to the chars/4 heuristic
// when the encoding cannot be loaded (offline hosts without a vocab cache).
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

var (
	sharedCounter     *TokenCounter
	sharedCounterOnce sync.Once
)

// NewTokenCounter loads the encoder. Safe to call on hosts without network
// access; counting degrades to the heuristic.
func NewTokenCounter() *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// SharedTokenCounter returns the lazily-initialized process-wide counter.
// Loading the BPE ranks is expensive; every caller shares one instance.
func SharedTokenCounter() *TokenCounter {
	sharedCounterOnce.Do(func() {
		sharedCounter = NewTokenCounter()
	})
	return sharedCounter
}

// Count returns the estimated token count of text.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.enc == nil {
		return heuristicCount(text)
	}
	return len(tc.enc.Encode(text, nil, nil))
}

// CountMessages sums the token estimate across a conversation, including a
// small per-message overhead for role framing.
func (tc *TokenCounter) CountMessages(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		// ~4 tokens of role/format framing per message
		total += tc.Count(m.Content) + 4
	}
	return total
}

// heuristicCount is the chars/4 approximation used when no encoder is
// available. It overcounts code and undercounts CJK, which is acceptable
// for budget trimming.
func heuristicCount(text string) int {
	return len(text) / 4
}
