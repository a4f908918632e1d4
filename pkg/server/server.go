// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package server is the HTTP ingress: one SSE endpoint streaming chat
// turns, a health probe, and CORS for browser clients.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/types"
)

// ChatStreamer serves one turn as an ordered chunk stream. The channel
// closes after the terminal chunk.
type ChatStreamer interface {
	StreamChat(ctx context.Context, req *types.ChatRequest) <-chan types.Chunk
}

// Server exposes the orchestrator over HTTP.
type Server struct {
	orch       ChatStreamer
	httpServer *http.Server
	cors       config.CORSConfig
	logger     *zap.Logger
}

// New builds the server from config. The write timeout stays zero so an
// SSE response can run for as long as a turn takes.
func New(cfg config.ServerConfig, orch ChatStreamer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	readHeader := time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	if readHeader <= 0 {
		readHeader = 10 * time.Second
	}
	s := &Server{
		orch:   orch,
		cors:   cfg.CORS,
		logger: logger,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			ReadHeaderTimeout: readHeader,
			WriteTimeout:      0,
			IdleTimeout:       120 * time.Second,
		},
	}
	s.httpServer.Handler = s.Handler()
	return s
}

// Handler returns the routed handler, CORS-wrapped when enabled.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat:stream", s.handleChatStream)

	var handler http.Handler = mux
	if s.cors.Enabled {
		handler = s.corsMiddleware(mux)
	}
	return handler
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// handleChatStream decodes a chat request and relays the orchestrator's
// chunk stream as SSE data events, one event per chunk.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.ConversationID == "" {
		http.Error(w, "user_id and conversation_id are required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	for chunk := range s.orch.StreamChat(r.Context(), &req) {
		data, err := json.Marshal(chunk)
		if err != nil {
			s.logger.Error("failed to marshal chunk", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Client went away; the request context cancels on return and
			// unblocks the orchestrator's emitter.
			s.logger.Debug("chat stream write failed, client likely disconnected",
				zap.String("user_id", req.UserID),
				zap.Error(err))
			return
		}
		flusher.Flush()
	}
}

// corsMiddleware applies the configured CORS policy and answers
// preflight requests without routing them.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		if len(s.cors.AllowedMethods) > 0 {
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(s.cors.AllowedMethods, ", "))
		}
		if len(s.cors.AllowedHeaders) > 0 {
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(s.cors.AllowedHeaders, ", "))
		}
		if s.cors.MaxAge > 0 {
			w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.cors.MaxAge))
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowedOrigin returns the header value for an allowed origin, or empty
// when the origin is missing or not allowed.
func (s *Server) allowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, allowed := range s.cors.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin {
			return origin
		}
	}
	return ""
}
