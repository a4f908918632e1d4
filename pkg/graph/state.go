// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package graph

// State is the mutable key/value record a workflow carries between nodes.
// Nodes return partial states; the engine merges them key-wise so a node
// returning one key leaves every other key untouched.
type State = map[string]any

// InterruptKey marks a state returned from an invocation that halted at
// an interrupt-before node. Its value is the list of nodes awaiting
// execution.
const InterruptKey = "__interrupt__"

// End is the terminal pseudo-node. Routing to End finishes the run.
const End = "__end__"

// MergeState applies partial onto base key-wise, last write wins per key.
// base is mutated and returned.
func MergeState(base, partial State) State {
	if base == nil {
		base = make(State, len(partial))
	}
	for k, v := range partial {
		base[k] = v
	}
	return base
}

// CopyState returns a copy of s safe to hand to a parallel branch. Maps
// and slices are copied recursively; other values (including pointers)
// are shared, so branches must not mutate them in place.
func CopyState(s State) State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case State:
		return CopyState(t)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = copyValue(e)
		}
		return cp
	case []string:
		cp := make([]string, len(t))
		copy(cp, t)
		return cp
	default:
		return v
	}
}

// Interrupted returns the nodes a halted invocation is waiting on, or nil
// when the state is not an interrupt result.
func Interrupted(s State) []string {
	if s == nil {
		return nil
	}
	switch t := s[InterruptKey].(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if name, ok := e.(string); ok {
				out = append(out, name)
			}
		}
		return out
	default:
		return nil
	}
}
