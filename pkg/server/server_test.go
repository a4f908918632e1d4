// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/types"
)

// stubStreamer replays canned chunks and records the decoded request.
type stubStreamer struct {
	chunks []types.Chunk
	reqs   []*types.ChatRequest
}

func (s *stubStreamer) StreamChat(ctx context.Context, req *types.ChatRequest) <-chan types.Chunk {
	s.reqs = append(s.reqs, req)
	ch := make(chan types.Chunk, len(s.chunks))
	for _, c := range s.chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func newTestServer(t *testing.T, streamer ChatStreamer, cors config.CORSConfig) *Server {
	t.Helper()
	return New(config.ServerConfig{Host: "127.0.0.1", Port: 0, CORS: cors}, streamer, zaptest.NewLogger(t))
}

// decodeSSE splits a text/event-stream body into its data payloads.
func decodeSSE(t *testing.T, body string) []types.Chunk {
	t.Helper()
	var out []types.Chunk
	for _, event := range strings.Split(body, "\n\n") {
		event = strings.TrimSpace(event)
		if event == "" {
			continue
		}
		require.True(t, strings.HasPrefix(event, "data: "), "event %q must be a data event", event)
		var c types.Chunk
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(event, "data: ")), &c))
		out = append(out, c)
	}
	return out
}

func TestChatStream_RelaysChunksAsSSE(t *testing.T) {
	streamer := &stubStreamer{chunks: []types.Chunk{
		types.NewChunk(types.ChunkStatus, "Routing to chat", "chat"),
		types.NewChunk(types.ChunkContent, "hello there", "chat"),
		types.NewChunk(types.ChunkComplete, "completed", "chat"),
	}}
	srv := newTestServer(t, streamer, config.CORSConfig{})

	body := `{"user_id":"u1","conversation_id":"c1","query":"hi","agent_type":"auto"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat:stream", strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rr.Header().Get("X-Accel-Buffering"))

	chunks := decodeSSE(t, rr.Body.String())
	require.Len(t, chunks, 3)
	assert.Equal(t, types.ChunkStatus, chunks[0].Type)
	assert.Equal(t, "hello there", chunks[1].Message)
	assert.Equal(t, types.ChunkComplete, chunks[2].Type)
	assert.Equal(t, "chat", chunks[2].AgentName)

	require.Len(t, streamer.reqs, 1)
	assert.Equal(t, "u1", streamer.reqs[0].UserID)
	assert.Equal(t, "c1", streamer.reqs[0].ConversationID)
	assert.Equal(t, "hi", streamer.reqs[0].Query)
	assert.Equal(t, "auto", streamer.reqs[0].AgentType)
}

func TestChatStream_DecodesFullRequestShape(t *testing.T) {
	streamer := &stubStreamer{chunks: []types.Chunk{
		types.NewChunk(types.ChunkComplete, "completed", "chat"),
	}}
	srv := newTestServer(t, streamer, config.CORSConfig{})

	body := `{
		"user_id": "u1",
		"conversation_id": "c1",
		"query": "update the plan",
		"agent_type": "editing_agent",
		"routing_reason": "pinned",
		"conversation_history": [{"role": "user", "content": "earlier"}],
		"metadata": {"client": "web"},
		"persona": {"ai_name": "Iris", "timezone": "America/Denver"},
		"active_editor": {
			"is_editable": true,
			"filename": "plan.md",
			"canonical_path": "/users/u1/plan.md",
			"frontmatter": {"type": "project", "custom_fields": {"files": "['./a.md']"}}
		},
		"permission_grants": {"web_search_permission": true},
		"conversation_intelligence": {"topic": "hardware"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat:stream", strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	require.Len(t, streamer.reqs, 1)
	got := streamer.reqs[0]
	assert.Equal(t, "editing_agent", got.AgentType)
	assert.Equal(t, "pinned", got.RoutingReason)
	require.Len(t, got.ConversationHistory, 1)
	assert.Equal(t, "earlier", got.ConversationHistory[0].Content)
	assert.Equal(t, "web", got.Metadata["client"])
	require.NotNil(t, got.Persona)
	assert.Equal(t, "Iris", got.Persona.AIName)
	require.NotNil(t, got.ActiveEditor)
	assert.Equal(t, "/users/u1/plan.md", got.ActiveEditor.CanonicalPath)
	assert.Equal(t, "['./a.md']", got.ActiveEditor.Frontmatter.CustomFields["files"])
	require.NotNil(t, got.PermissionGrants)
	assert.True(t, got.PermissionGrants.WebSearchPermission)
	assert.Equal(t, "hardware", got.ConversationIntelligence["topic"])
}

func TestChatStream_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		code   int
	}{
		{name: "GET not allowed", method: http.MethodGet, body: "", code: http.StatusMethodNotAllowed},
		{name: "invalid JSON", method: http.MethodPost, body: "{not json", code: http.StatusBadRequest},
		{name: "missing user id", method: http.MethodPost, body: `{"conversation_id":"c1","query":"hi"}`, code: http.StatusBadRequest},
		{name: "missing conversation id", method: http.MethodPost, body: `{"user_id":"u1","query":"hi"}`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			streamer := &stubStreamer{}
			srv := newTestServer(t, streamer, config.CORSConfig{})
			req := httptest.NewRequest(tt.method, "/v1/chat:stream", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, req)
			assert.Equal(t, tt.code, rr.Code)
			assert.Empty(t, streamer.reqs, "a rejected request must not reach the orchestrator")
		})
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubStreamer{}, config.CORSConfig{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name            string
		cors            config.CORSConfig
		requestOrigin   string
		requestMethod   string
		expectedOrigin  string
		expectedMethods string
		expectedCode    int
	}{
		{
			name: "wildcard origin",
			cors: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST"},
			},
			requestOrigin:   "https://example.com",
			requestMethod:   http.MethodGet,
			expectedOrigin:  "*",
			expectedMethods: "GET, POST",
			expectedCode:    http.StatusOK,
		},
		{
			name: "specific origin echoed",
			cors: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"https://example.com"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			},
			requestOrigin:   "https://example.com",
			requestMethod:   http.MethodGet,
			expectedOrigin:  "https://example.com",
			expectedMethods: "GET, POST, OPTIONS",
			expectedCode:    http.StatusOK,
		},
		{
			name: "origin not allowed",
			cors: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"https://allowed.com"},
			},
			requestOrigin: "https://not-allowed.com",
			requestMethod: http.MethodGet,
			expectedCode:  http.StatusOK,
		},
		{
			name: "preflight short-circuits",
			cors: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST"},
				MaxAge:         3600,
			},
			requestOrigin:   "https://example.com",
			requestMethod:   http.MethodOptions,
			expectedOrigin:  "*",
			expectedMethods: "GET, POST",
			expectedCode:    http.StatusNoContent,
		},
		{
			name:          "disabled adds no headers",
			cors:          config.CORSConfig{Enabled: false},
			requestOrigin: "https://example.com",
			requestMethod: http.MethodGet,
			expectedCode:  http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &stubStreamer{}, tt.cors)
			req := httptest.NewRequest(tt.requestMethod, "/health", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedCode, rr.Code)
			assert.Equal(t, tt.expectedOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.expectedMethods, rr.Header().Get("Access-Control-Allow-Methods"))
			if tt.cors.MaxAge > 0 {
				assert.Equal(t, "3600", rr.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}

func TestAllowedOrigin(t *testing.T) {
	srv := newTestServer(t, &stubStreamer{}, config.CORSConfig{
		AllowedOrigins: []string{"https://a.com", "https://b.com"},
	})
	assert.Equal(t, "https://a.com", srv.allowedOrigin("https://a.com"))
	assert.Equal(t, "", srv.allowedOrigin("https://c.com"))
	assert.Equal(t, "", srv.allowedOrigin(""))
}
