// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/types"
)

// StateKeyUsage carries the turn's accumulated token usage through the
// workflow state so multi-node graphs can report one total.
const StateKeyUsage = "usage"

// AccumulateUsage folds one LLM call's usage into the turn's running
// total and writes it to the node's delta. The prior total is read from
// the delta when an earlier call in the same node already wrote one,
// otherwise from the node's input state. Stored in JSON-friendly form so
// it survives a checkpoint round trip.
func AccumulateUsage(prior, delta graph.State, u types.Usage) {
	var total types.Usage
	if _, ok := delta[StateKeyUsage]; ok {
		total = UsageFrom(delta)
	} else {
		total = UsageFrom(prior)
	}
	total.Add(u)
	var flat map[string]any
	if err := types.Remarshal(total, &flat); err != nil {
		return
	}
	delta[StateKeyUsage] = flat
}

// ResetUsage zeroes the running total in a turn's seed state. Threads
// re-base on their latest checkpoint, so without the reset a turn would
// report every earlier turn's tokens as its own.
func ResetUsage(state graph.State) {
	state[StateKeyUsage] = map[string]any{}
}

// UsageFrom reads the accumulated usage out of state. Missing or
// malformed entries read as zero.
func UsageFrom(s graph.State) types.Usage {
	var u types.Usage
	if v, ok := s[StateKeyUsage]; ok {
		_ = types.Remarshal(v, &u)
	}
	return u
}

// RecordTools publishes an invocation trail to shared memory, keeping
// each tool name once per call site even when the site retried it.
func RecordTools(sm *types.SharedMemory, ops []string) {
	if sm == nil {
		return
	}
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		if seen[op] {
			continue
		}
		seen[op] = true
		sm.RecordToolUse(op)
	}
}
