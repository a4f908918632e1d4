// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package toolservice is the client for the backend tool service, the
// single egress every agent shares. The service's proto is not compiled
// in; methods are resolved at runtime through gRPC server reflection and
// invoked dynamically, so backend and orchestrator can evolve their
// schemas independently.
package toolservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
	"github.com/jhump/protoreflect/grpcreflect"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	reflectpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"

	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/types"
)

// ServiceName is the fully qualified tool service resolved via reflection.
const ServiceName = "backend.v1.BackendToolService"

// DefaultMaxMessageBytes caps gRPC messages in both directions. Document
// payloads and crawl results can be large.
const DefaultMaxMessageBytes = 100 * 1024 * 1024

// Client is a long-lived dynamic client for the backend tool service.
// One instance is shared across turns and goroutines; Reset replaces the
// connection after a transport loss.
type Client struct {
	mu      sync.RWMutex
	conn    *grpc.ClientConn
	stub    grpcdynamic.Stub
	methods map[string]*desc.MethodDescriptor

	target   string
	maxBytes int
	logger   *zap.Logger
}

// NewClient dials the tool service named by cfg. The connection is lazy;
// the first call performs the actual connect and reflection resolve.
func NewClient(cfg config.ToolServiceConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	c := &Client{
		target:   cfg.Address(),
		maxBytes: maxBytes,
		logger:   logger,
	}
	if err := c.dial(); err != nil {
		return nil, err
	}
	return c, nil
}

// dial replaces the connection and clears the descriptor cache. Callers
// other than the constructor must hold c.mu.
func (c *Client) dial() error {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(c.maxBytes),
			grpc.MaxCallSendMsgSize(c.maxBytes),
		),
	}
	conn, err := grpc.NewClient(c.target, opts...)
	if err != nil {
		return fmt.Errorf("failed to create tool service client for %s: %w", c.target, err)
	}
	c.conn = conn
	c.stub = grpcdynamic.NewStub(conn)
	c.methods = make(map[string]*desc.MethodDescriptor)
	return nil
}

// methodFor returns the cached descriptor for an operation, resolving the
// whole service once per connection.
func (c *Client) methodFor(ctx context.Context, op string) (*desc.MethodDescriptor, error) {
	name := ToPascalCase(op)

	c.mu.RLock()
	md, ok := c.methods[name]
	conn := c.conn
	c.mu.RUnlock()
	if ok {
		return md, nil
	}
	if conn == nil {
		return nil, fmt.Errorf("tool %s: %w", op, types.ErrTransportClosed)
	}

	refClient := grpcreflect.NewClient(ctx, reflectpb.NewServerReflectionClient(conn))
	defer refClient.Reset()
	svcDesc, err := refClient.ResolveService(ServiceName)
	if err != nil {
		if types.IsTransportClosed(err) {
			return nil, fmt.Errorf("tool %s: %w (%v)", op, types.ErrTransportClosed, err)
		}
		return nil, fmt.Errorf("failed to resolve %s (is reflection enabled on the backend?): %w", ServiceName, err)
	}

	c.mu.Lock()
	for _, m := range svcDesc.GetMethods() {
		c.methods[m.GetName()] = m
	}
	md = c.methods[name]
	c.mu.Unlock()

	if md == nil {
		return nil, &types.ToolError{Op: op, Code: "METHOD_NOT_FOUND", Details: fmt.Sprintf("method %s not found in %s", name, ServiceName)}
	}
	return md, nil
}

// call invokes one operation with a JSON-shaped request and decodes the
// JSON reply into out. Transport loss and logical failures come back as
// distinct error kinds; successful invocations are recorded on the
// turn's recorder.
func (c *Client) call(ctx context.Context, op string, req any, out any) error {
	md, err := c.methodFor(ctx, op)
	if err != nil {
		return err
	}

	if req == nil {
		req = map[string]any{}
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("tool %s: marshal request: %w", op, err)
	}
	reqMsg := dynamic.NewMessage(md.GetInputType())
	if err := reqMsg.UnmarshalJSON(reqJSON); err != nil {
		return fmt.Errorf("tool %s: build request: %w", op, err)
	}

	c.mu.RLock()
	stub := c.stub
	closed := c.conn == nil
	c.mu.RUnlock()
	if closed {
		return fmt.Errorf("tool %s: %w", op, types.ErrTransportClosed)
	}

	respMsg, err := stub.InvokeRpc(ctx, md, reqMsg)
	if err != nil {
		if types.IsTransportClosed(err) {
			return fmt.Errorf("tool %s: %w (%v)", op, types.ErrTransportClosed, err)
		}
		st, _ := status.FromError(err)
		return &types.ToolError{Op: op, Code: st.Code().String(), Details: st.Message()}
	}

	dynMsg, ok := respMsg.(*dynamic.Message)
	if !ok {
		return &types.ToolError{Op: op, Code: "BAD_RESPONSE", Details: "response is not a dynamic message"}
	}
	respJSON, err := dynMsg.MarshalJSON()
	if err != nil {
		return &types.ToolError{Op: op, Code: "BAD_RESPONSE", Details: fmt.Sprintf("marshal response: %v", err)}
	}
	if out != nil {
		if err := json.Unmarshal(respJSON, out); err != nil {
			return &types.ToolError{Op: op, Code: "BAD_RESPONSE", Details: fmt.Sprintf("decode response: %v", err)}
		}
	}

	RecorderFrom(ctx).Record(op)
	return nil
}

// callDegraded applies the tool failure policy: transport loss
// propagates so the turn can reset and retry once; a logical failure is
// logged at WARN and out keeps its zero value so the caller continues
// with empty results.
func (c *Client) callDegraded(ctx context.Context, op string, req any, out any) error {
	err := c.call(ctx, op, req, out)
	if err == nil {
		return nil
	}
	if types.IsTransportClosed(err) {
		return err
	}
	c.logger.Warn("tool call degraded to empty result",
		zap.String("tool", op),
		zap.Error(err))
	return nil
}

// Reset tears down the connection and redials. The orchestrator calls
// this once per turn when a transport loss surfaces.
func (c *Client) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("closing stale tool service connection", zap.Error(err))
		}
		c.conn = nil
	}
	return c.dial()
}

// Close releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Target returns the dial target, for logs.
func (c *Client) Target() string { return c.target }

// ToPascalCase converts an operation name to its RPC method name
// ("search_documents" becomes "SearchDocuments").
func ToPascalCase(op string) string {
	parts := strings.Split(op, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
