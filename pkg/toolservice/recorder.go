// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toolservice

import (
	"context"
	"sync"
)

// Recorder accumulates the names of successfully invoked tools in
// invocation order. Each turn installs a fresh recorder on its context;
// the client records into it so agents can publish the trail to
// shared memory afterwards.
type Recorder struct {
	mu  sync.Mutex
	ops []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends one invocation. Safe on a nil receiver so call sites
// never have to check whether a turn installed a recorder.
func (r *Recorder) Record(op string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

// Ops returns a snapshot of the recorded operations in order.
func (r *Recorder) Ops() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ops))
	copy(out, r.ops)
	return out
}

type recorderKey struct{}

// WithRecorder installs a recorder on the context for the current turn.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// RecorderFrom returns the turn's recorder, or nil when none is set.
func RecorderFrom(ctx context.Context) *Recorder {
	r, _ := ctx.Value(recorderKey{}).(*Recorder)
	return r
}
