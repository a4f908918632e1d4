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
package toolservice

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/types"
)

func TestToPascalCase(t *testing.T) {
	cases := map[string]string{
		"search_documents":            "SearchDocuments",
		"get_document_content":        "GetDocumentContent",
		"crawl_website_recursive":     "CrawlWebsiteRecursive",
		"add_org_inbox_item":          "AddOrgInboxItem",
		"search_web":                  "SearchWeb",
		"get_weather":                 "GetWeather",
		"find_co_occurring_entities":  "FindCoOccurringEntities",
		"propose_document_edit":       "ProposeDocumentEdit",
		"apply_operations_directly":   "ApplyOperationsDirectly",
		"update_document_content":     "UpdateDocumentContent",
		"search_conversation_cache":   "SearchConversationCache",
		"analyze_text_content":        "AnalyzeTextContent",
		"already":                     "Already",
		"double__underscore":          "DoubleUnderscore",
		"":                            "",
	}
	for op, want := range cases {
		assert.Equal(t, want, ToPascalCase(op), "op %q", op)
	}
}

func TestRecorder_RecordsInOrder(t *testing.T) {
	r := NewRecorder()
	r.Record("search_web")
	r.Record("crawl_web_content")
	r.Record("search_web")

	ops := r.Ops()
	require.Equal(t, []string{"search_web", "crawl_web_content", "search_web"}, ops)

	// Ops hands back a snapshot, not the live slice.
	ops[0] = "mutated"
	assert.Equal(t, []string{"search_web", "crawl_web_content", "search_web"}, r.Ops())
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() { r.Record("search_web") })
	assert.Nil(t, r.Ops())
}

func TestRecorderContext(t *testing.T) {
	// Without a recorder the context yields nil, and recording through
	// it is a no-op.
	assert.Nil(t, RecorderFrom(context.Background()))
	assert.NotPanics(t, func() {
		RecorderFrom(context.Background()).Record("search_web")
	})

	r := NewRecorder()
	ctx := WithRecorder(context.Background(), r)
	RecorderFrom(ctx).Record("get_weather")
	assert.Equal(t, []string{"get_weather"}, r.Ops())
}

func TestNewClient_LazyConnection(t *testing.T) {
	// grpc.NewClient does not connect until the first RPC, so the
	// constructor succeeds with nothing listening.
	c, err := NewClient(config.ToolServiceConfig{Host: "127.0.0.1", Port: 50099}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "127.0.0.1:50099", c.Target())
}

func TestClient_ClosedConnectionIsTransportLoss(t *testing.T) {
	c, err := NewClient(config.ToolServiceConfig{Host: "127.0.0.1", Port: 50099}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	// Even the degraded path must propagate transport loss so the turn
	// can reset and retry.
	_, err = c.SearchWeb(context.Background(), "query", 3, "user-1")
	require.Error(t, err)
	assert.True(t, types.IsTransportClosed(err))

	// Reset redials and a second Close is a no-op.
	require.NoError(t, c.Reset(context.Background()))
	assert.Equal(t, "127.0.0.1:50099", c.Target())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestRequestWire_OrgInboxItem(t *testing.T) {
	data, err := json.Marshal(&AddOrgInboxItemRequest{
		Task:   "Ship the quarterly report",
		UserID: "user-1",
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Ship the quarterly report", got["task"])
	assert.Equal(t, "user-1", got["user_id"])
	// Optional fields stay off the wire when unset.
	assert.NotContains(t, got, "schedule")
	assert.NotContains(t, got, "starter_tasks")
}

func TestRequestWire_CrawlSite(t *testing.T) {
	data, err := json.Marshal(&CrawlSiteRequest{
		SeedURL:     "https://example.com/docs",
		MaxPages:    10,
		IncludePDFs: true,
		UserID:      "user-1",
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "https://example.com/docs", got["seed_url"])
	assert.Equal(t, true, got["include_pdfs"])
}
