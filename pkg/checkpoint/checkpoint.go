// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package checkpoint provides the durable stores behind compiled graphs.
//
// A thread is one conversation. Its key is "user:conversation" so two
// users with colliding conversation ids never observe each other's
// state. Backends append every checkpoint the engine emits; a paused
// turn resumes from the latest row of its thread.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/types"
)

// ThreadID derives the durable thread key for a conversation.
func ThreadID(userID, conversationID string) string {
	return userID + ":" + conversationID
}

// Saver is a graph.Checkpointer with lifecycle and retention on top.
type Saver interface {
	graph.Checkpointer

	// DeleteThread removes every checkpoint of the thread.
	DeleteThread(ctx context.Context, threadID string) error

	// Sweep deletes checkpoints created before olderThan, always keeping
	// the latest row of every thread so dormant conversations can still
	// resume. Returns the number of rows removed.
	Sweep(ctx context.Context, olderThan time.Time) (int64, error)

	// Reset closes and reopens the underlying handle after a transport
	// loss.
	Reset(ctx context.Context) error

	// Close releases the store.
	Close() error
}

// NewSaver builds the backend selected by cfg.Backend. An empty backend
// means memory.
func NewSaver(cfg config.CheckpointConfig, logger *zap.Logger) (Saver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemorySaver(), nil
	case "sqlite":
		return NewSQLiteSaver(cfg, logger)
	case "postgres":
		return NewPostgresSaver(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported checkpoint backend: %s (expected memory, sqlite, or postgres)", cfg.Backend)
	}
}

// MemorySaver is the ephemeral backend for tests and `backend: memory`
// runs. Rows round-trip through JSON on write so stored snapshots stay
// isolated from later state mutation, matching the SQL backends.
type MemorySaver struct {
	mu      sync.RWMutex
	threads map[string][]*graph.Checkpoint
}

// NewMemorySaver creates an empty in-memory saver.
func NewMemorySaver() *MemorySaver {
	return &MemorySaver{threads: make(map[string][]*graph.Checkpoint)}
}

// Latest implements graph.Checkpointer.
func (m *MemorySaver) Latest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chain := m.threads[threadID]
	if len(chain) == 0 {
		return nil, nil
	}
	return cloneCheckpoint(chain[len(chain)-1])
}

// Get implements graph.Checkpointer.
func (m *MemorySaver) Get(ctx context.Context, threadID, checkpointID string) (*graph.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cp := range m.threads[threadID] {
		if cp.ID == checkpointID {
			return cloneCheckpoint(cp)
		}
	}
	return nil, nil
}

// Put implements graph.Checkpointer.
func (m *MemorySaver) Put(ctx context.Context, cp *graph.Checkpoint) (string, error) {
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

// DeleteThread implements Saver.
func (m *MemorySaver) DeleteThread(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}

// Sweep implements Saver.
func (m *MemorySaver) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for threadID, chain := range m.threads {
		kept := chain[:0]
		for i, cp := range chain {
			if i == len(chain)-1 || !cp.CreatedAt.Before(olderThan) {
				kept = append(kept, cp)
				continue
			}
			removed++
		}
		m.threads[threadID] = kept
	}
	return removed, nil
}

// Reset implements Saver. Memory needs no reconnect.
func (m *MemorySaver) Reset(ctx context.Context) error { return nil }

// Close implements Saver.
func (m *MemorySaver) Close() error { return nil }

func cloneCheckpoint(cp *graph.Checkpoint) (*graph.Checkpoint, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("clone checkpoint: %w", err)
	}
	out := &graph.Checkpoint{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("clone checkpoint: %w", err)
	}
	return out, nil
}

// wrapStoreErr tags driver failures. Closed-handle failures carry
// types.ErrTransportClosed so the orchestrator's single reset-and-retry
// can fire.
func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if errors.Is(err, sql.ErrConnDone) ||
		strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "connection is closed") {
		return fmt.Errorf("checkpoint %s: %w (%v)", op, types.ErrTransportClosed, err)
	}
	return fmt.Errorf("checkpoint %s: %w", op, err)
}

var _ Saver = (*MemorySaver)(nil)
