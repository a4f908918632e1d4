// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package graph is the workflow engine: directed graphs of named nodes
// with conditional edges, static interrupt-before points for
// human-in-the-loop pauses, and durable checkpointing keyed by a
// per-conversation thread id. Each agent defines its graph once at
// startup; all mutable per-turn state lives in the checkpointed State.
package graph

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// DefaultRecursionLimit bounds node executions per invocation.
const DefaultRecursionLimit = 50

// ErrRecursionExceeded fails a turn whose routing never terminates.
var ErrRecursionExceeded = errors.New("FATAL: recursion exceeded")

// NodeFunc executes one node. It receives the full current state and
// returns a partial state to merge; returning nil merges nothing.
type NodeFunc func(ctx context.Context, s State) (State, error)

// RouterFunc picks the label of the outgoing conditional edge. It must
// be pure: same state, same label.
type RouterFunc func(s State) string

type conditionalEdge struct {
	router  RouterFunc
	targets map[string]string
}

// StateGraph accumulates nodes and edges before Compile freezes them.
type StateGraph struct {
	nodes       map[string]NodeFunc
	edges       map[string]string
	conditional map[string]conditionalEdge
	entry       string
}

// NewStateGraph creates an empty graph builder.
func NewStateGraph() *StateGraph {
	return &StateGraph{
		nodes:       make(map[string]NodeFunc),
		edges:       make(map[string]string),
		conditional: make(map[string]conditionalEdge),
	}
}

// AddNode registers a named node. Re-registering a name replaces it.
func (g *StateGraph) AddNode(name string, fn NodeFunc) *StateGraph {
	g.nodes[name] = fn
	return g
}

// AddEdge adds a static edge from -> to. Use End to finish the run.
func (g *StateGraph) AddEdge(from, to string) *StateGraph {
	g.edges[from] = to
	return g
}

// AddConditionalEdges routes from through router; the returned label is
// looked up in targets to find the next node.
func (g *StateGraph) AddConditionalEdges(from string, router RouterFunc, targets map[string]string) *StateGraph {
	g.conditional[from] = conditionalEdge{router: router, targets: targets}
	return g
}

// SetEntryPoint names the node every fresh invocation starts at.
func (g *StateGraph) SetEntryPoint(name string) *StateGraph {
	g.entry = name
	return g
}

// CompileOptions configure the runnable produced by Compile.
type CompileOptions struct {
	// Checkpointer persists state after every node. Required; use
	// NewMemorySaver for ephemeral runs.
	Checkpointer Checkpointer

	// InterruptBefore lists nodes that pause the run before their first
	// execution on a thread.
	InterruptBefore []string

	// RecursionLimit caps node executions per invocation. Zero means
	// DefaultRecursionLimit.
	RecursionLimit int

	// Logger for node transitions. Nil means no logging.
	Logger *zap.Logger
}

// Compile validates the graph and returns an executable Runnable.
func (g *StateGraph) Compile(opts CompileOptions) (*Runnable, error) {
	if g.entry == "" {
		return nil, fmt.Errorf("graph has no entry point")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("entry point %q is not a node", g.entry)
	}
	if opts.Checkpointer == nil {
		return nil, fmt.Errorf("graph requires a checkpointer")
	}

	// Every node needs a way out and every edge a real destination.
	for name := range g.nodes {
		_, hasStatic := g.edges[name]
		_, hasCond := g.conditional[name]
		if !hasStatic && !hasCond {
			return nil, fmt.Errorf("node %q has no outgoing edge (route to End to finish)", name)
		}
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("edge from unknown node %q", from)
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("edge %q -> unknown node %q", from, to)
			}
		}
	}
	for from, ce := range g.conditional {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("conditional edge from unknown node %q", from)
		}
		for label, to := range ce.targets {
			if to != End {
				if _, ok := g.nodes[to]; !ok {
					return nil, fmt.Errorf("conditional edge %q[%q] -> unknown node %q", from, label, to)
				}
			}
		}
	}

	interrupts := make(map[string]bool, len(opts.InterruptBefore))
	for _, name := range opts.InterruptBefore {
		if _, ok := g.nodes[name]; !ok {
			return nil, fmt.Errorf("interrupt-before names unknown node %q", name)
		}
		interrupts[name] = true
	}

	limit := opts.RecursionLimit
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Freeze the topology so later builder mutation cannot race a run.
	nodes := make(map[string]NodeFunc, len(g.nodes))
	for k, v := range g.nodes {
		nodes[k] = v
	}
	edges := make(map[string]string, len(g.edges))
	for k, v := range g.edges {
		edges[k] = v
	}
	conditional := make(map[string]conditionalEdge, len(g.conditional))
	for k, v := range g.conditional {
		conditional[k] = v
	}

	return &Runnable{
		nodes:           nodes,
		edges:           edges,
		conditional:     conditional,
		entry:           g.entry,
		saver:           opts.Checkpointer,
		interruptBefore: interrupts,
		recursionLimit:  limit,
		logger:          logger,
	}, nil
}
