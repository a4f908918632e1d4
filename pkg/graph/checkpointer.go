// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is one durable snapshot of a thread. A non-empty Next set
// means the workflow is paused before those nodes.
type Checkpoint struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Values    State     `json:"values"`
	Next      []string  `json:"next,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Checkpointer is the durable store behind a compiled graph. Writes are
// linearized per thread by the implementation; distinct threads never
// observe each other's snapshots.
type Checkpointer interface {
	// Latest returns the newest checkpoint for the thread, or nil when
	// the thread has none.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)

	// Get returns the checkpoint with the given id, or nil when absent.
	Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error)

	// Put appends a checkpoint and returns its id. The engine fills ID
	// when empty.
	Put(ctx context.Context, cp *Checkpoint) (string, error)
}

// MemorySaver is an in-memory Checkpointer for tests and ephemeral runs.
// Values round-trip through JSON on write so stored snapshots are
// isolated from later state mutation, exactly as the SQL backends behave.
type MemorySaver struct {
	mu      sync.RWMutex
	threads map[string][]*Checkpoint
}

// NewMemorySaver creates an empty in-memory checkpointer.
func NewMemorySaver() *MemorySaver {
	return &MemorySaver{threads: make(map[string][]*Checkpoint)}
}

// Latest implements Checkpointer.
func (m *MemorySaver) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chain := m.threads[threadID]
	if len(chain) == 0 {
		return nil, nil
	}
	return cloneCheckpoint(chain[len(chain)-1])
}

// Get implements Checkpointer.
func (m *MemorySaver) Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cp := range m.threads[threadID] {
		if cp.ID == checkpointID {
			return cloneCheckpoint(cp)
		}
	}
	return nil, nil
}

// Put implements Checkpointer.
func (m *MemorySaver) Put(ctx context.Context, cp *Checkpoint) (string, error) {
	if cp.ThreadID == "" {
		return "", fmt.Errorf("checkpoint missing thread id")
	}
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	stored, err := cloneCheckpoint(cp)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[cp.ThreadID] = append(m.threads[cp.ThreadID], stored)
	return cp.ID, nil
}

// Threads lists thread ids with at least one checkpoint, sorted.
func (m *MemorySaver) Threads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.threads))
	for id := range m.threads {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func cloneCheckpoint(cp *Checkpoint) (*Checkpoint, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("clone checkpoint: %w", err)
	}
	out := &Checkpoint{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("clone checkpoint: %w", err)
	}
	return out, nil
}

var _ Checkpointer = (*MemorySaver)(nil)
