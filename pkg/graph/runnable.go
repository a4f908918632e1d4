// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RunConfig addresses one thread of one workflow.
type RunConfig struct {
	// ThreadID keys all checkpoints ("{user_id}:{conversation_id}").
	ThreadID string

	// CheckpointID, when set, branches the run from that snapshot
	// instead of the thread's latest.
	CheckpointID string

	// RecursionLimit overrides the compiled limit when positive.
	RecursionLimit int
}

// Snapshot is the observable checkpoint state of a thread.
type Snapshot struct {
	Values       State
	Next         []string
	CheckpointID string
}

// Pending reports whether the thread is paused at an interrupt.
func (s *Snapshot) Pending() bool {
	return s != nil && len(s.Next) > 0
}

// Event is one step of a streamed run. Interrupt events carry the node
// that is about to pause; Err is set only on the final event of a failed
// run.
type Event struct {
	Node      string
	State     State
	Interrupt bool
	Err       error
}

// Runnable is a compiled, executable graph. It is stateless across
// invocations; everything mutable lives in the checkpointer.
type Runnable struct {
	nodes           map[string]NodeFunc
	edges           map[string]string
	conditional     map[string]conditionalEdge
	entry           string
	saver           Checkpointer
	interruptBefore map[string]bool
	recursionLimit  int
	logger          *zap.Logger
}

// Invoke runs until End or an interrupt and returns the final state.
// An interrupted run is not an error: the returned state carries
// InterruptKey and GetState reports the pending nodes.
func (r *Runnable) Invoke(ctx context.Context, input State, cfg RunConfig) (State, error) {
	return r.run(ctx, input, cfg, nil)
}

// Stream runs the graph emitting one event per completed node plus a
// final interrupt event when the run pauses. The channel closes when the
// run finishes; a failed run's last event carries Err.
func (r *Runnable) Stream(ctx context.Context, input State, cfg RunConfig) (<-chan Event, error) {
	ch := make(chan Event, 16)
	emit := func(ev Event) {
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	}
	go func() {
		defer close(ch)
		if _, err := r.run(ctx, input, cfg, emit); err != nil {
			emit(Event{Err: err})
		}
	}()
	return ch, nil
}

// GetState returns the thread's visible snapshot, empty when the thread
// has no checkpoint yet.
func (r *Runnable) GetState(ctx context.Context, cfg RunConfig) (*Snapshot, error) {
	cp, err := r.load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return &Snapshot{Values: State{}}, nil
	}
	return &Snapshot{Values: cp.Values, Next: cp.Next, CheckpointID: cp.ID}, nil
}

// UpdateState writes a new checkpoint whose values merge partial over the
// current snapshot, without advancing execution. Used for approval-only
// resumes where no new user message is injected.
func (r *Runnable) UpdateState(ctx context.Context, cfg RunConfig, partial State) error {
	cp, err := r.load(ctx, cfg)
	if err != nil {
		return err
	}
	values := State{}
	var next []string
	parent := ""
	if cp != nil {
		values = cp.Values
		next = cp.Next
		parent = cp.ID
	}
	MergeState(values, partial)
	_, err = r.saver.Put(ctx, &Checkpoint{
		ThreadID: cfg.ThreadID,
		ParentID: parent,
		Values:   values,
		Next:     next,
	})
	return err
}

// CancelPending clears a paused interrupt so the next invocation starts
// fresh from the entry point. No-op when nothing is pending.
func (r *Runnable) CancelPending(ctx context.Context, cfg RunConfig) error {
	cp, err := r.load(ctx, cfg)
	if err != nil {
		return err
	}
	if cp == nil || len(cp.Next) == 0 {
		return nil
	}
	_, err = r.saver.Put(ctx, &Checkpoint{
		ThreadID: cfg.ThreadID,
		ParentID: cp.ID,
		Values:   cp.Values,
		Next:     nil,
	})
	return err
}

func (r *Runnable) load(ctx context.Context, cfg RunConfig) (*Checkpoint, error) {
	if cfg.ThreadID == "" {
		return nil, fmt.Errorf("run config missing thread id")
	}
	if cfg.CheckpointID != "" {
		cp, err := r.saver.Get(ctx, cfg.ThreadID, cfg.CheckpointID)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint %s: %w", cfg.CheckpointID, err)
		}
		if cp == nil {
			return nil, fmt.Errorf("checkpoint %s not found on thread %s", cfg.CheckpointID, cfg.ThreadID)
		}
		return cp, nil
	}
	cp, err := r.saver.Latest(ctx, cfg.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("load latest checkpoint: %w", err)
	}
	return cp, nil
}

func (r *Runnable) run(ctx context.Context, input State, cfg RunConfig, emit func(Event)) (State, error) {
	limit := cfg.RecursionLimit
	if limit <= 0 {
		limit = r.recursionLimit
	}

	cp, err := r.load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	values := State{}
	parentID := ""
	var queue []string
	resumePass := make(map[string]bool)

	if cp != nil {
		values = cp.Values
		parentID = cp.ID
		if len(cp.Next) > 0 {
			// Paused at an interrupt: the pending nodes run next and get a
			// one-time pass on the interrupt check.
			queue = append(queue, cp.Next...)
			for _, n := range cp.Next {
				resumePass[n] = true
			}
		}
	}
	if len(queue) == 0 {
		queue = []string{r.entry}
	}
	if input != nil {
		MergeState(values, input)
	}

	steps := 0
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node := queue[0]
		rest := queue[1:]

		if r.interruptBefore[node] && !resumePass[node] {
			id, err := r.saver.Put(ctx, &Checkpoint{
				ThreadID: cfg.ThreadID,
				ParentID: parentID,
				Values:   values,
				Next:     append([]string{node}, rest...),
			})
			if err != nil {
				return nil, fmt.Errorf("checkpoint interrupt before %s: %w", node, err)
			}
			r.logger.Info("workflow interrupted",
				zap.String("thread_id", cfg.ThreadID),
				zap.String("node", node),
				zap.String("checkpoint_id", id))

			out := CopyState(values)
			out[InterruptKey] = append([]string{node}, rest...)
			if emit != nil {
				emit(Event{Node: node, State: out, Interrupt: true})
			}
			return out, nil
		}
		delete(resumePass, node)

		steps++
		if steps > limit {
			return nil, fmt.Errorf("%w: %d nodes on thread %s", ErrRecursionExceeded, steps, cfg.ThreadID)
		}

		fn, ok := r.nodes[node]
		if !ok {
			return nil, fmt.Errorf("unknown node %q", node)
		}
		partial, err := r.callNode(ctx, node, fn, values)
		if err != nil {
			// The previous checkpoint stands so the user can retry.
			return nil, fmt.Errorf("node %s: %w", node, err)
		}
		MergeState(values, partial)

		successor, err := r.successor(node, values)
		if err != nil {
			return nil, err
		}
		queue = rest
		if successor != End {
			queue = append(queue, successor)
		}

		id, err := r.saver.Put(ctx, &Checkpoint{
			ThreadID: cfg.ThreadID,
			ParentID: parentID,
			Values:   values,
			Next:     append([]string(nil), queue...),
		})
		if err != nil {
			return nil, fmt.Errorf("checkpoint after %s: %w", node, err)
		}
		parentID = id

		r.logger.Debug("node executed",
			zap.String("thread_id", cfg.ThreadID),
			zap.String("node", node),
			zap.String("next", successor))
		if emit != nil {
			emit(Event{Node: node, State: CopyState(values)})
		}
	}

	return values, nil
}

// callNode runs one node with a panic guard: a panicking node fails the
// turn like any node error, leaving the previous checkpoint as the
// thread's latest.
func (r *Runnable) callNode(ctx context.Context, node string, fn NodeFunc, values State) (partial State, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("node panicked",
				zap.String("node", node),
				zap.Any("panic", rec))
			partial = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx, values)
}

func (r *Runnable) successor(node string, values State) (string, error) {
	if ce, ok := r.conditional[node]; ok {
		label := ce.router(values)
		to, ok := ce.targets[label]
		if !ok {
			return "", fmt.Errorf("router for %s returned unknown label %q", node, label)
		}
		return to, nil
	}
	if to, ok := r.edges[node]; ok {
		return to, nil
	}
	// Unreachable after Compile validation.
	return "", fmt.Errorf("node %s has no outgoing edge", node)
}
