package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/chat"
	"github.com/chatvault/chatvault/internal/export"
	"github.com/chatvault/chatvault/internal/ledger"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/provider"
	"github.com/chatvault/chatvault/internal/search"
	"github.com/chatvault/chatvault/internal/stats"
	"github.com/chatvault/chatvault/internal/storage"
)

type brokenProvider struct{}

func (brokenProvider) Platform() models.Platform { return models.PlatformOpenAI }

func (brokenProvider) Models() []string { return []string{"gpt-4"} }

func (brokenProvider) Send(ctx context.Context, secret, model string, history []*models.Message) (*provider.Reply, error) {
	return nil, errors.New("upstream unavailable")
}

func newTestServer(t *testing.T) (*httptest.Server, *ledger.Ledger) {
	t.Helper()
	logger := zap.NewNop()
	store := storage.NewMemoryStorage()
	searcher := search.New(store, logger)
	l := ledger.New(store, searcher, logger)
	chatSvc := chat.New(l, provider.NewRegistry(brokenProvider{}), logger)
	srv := New(":0", l, chatSvc, searcher, stats.New(store, logger), export.New(l), logger)

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts, l
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestConversationEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/conversations", map[string]any{
		"platform": "openai",
		"model":    "gpt-4",
		"title":    "first",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Conversation
	decodeBody(t, resp, &created)
	require.NotZero(t, created.ID)

	resp = doJSON(t, http.MethodPost, ts.URL+fmt.Sprintf("/api/conversations/%d/messages", created.ID), map[string]any{
		"role":    "user",
		"content": "hello",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+fmt.Sprintf("/api/conversations/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Conversation
	decodeBody(t, resp, &got)
	assert.Equal(t, "first", got.Title)
	require.Len(t, got.Messages, 1)

	resp = doJSON(t, http.MethodPut, ts.URL+fmt.Sprintf("/api/conversations/%d", created.ID), map[string]any{
		"title": "renamed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &got)
	assert.Equal(t, "renamed", got.Title)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/conversations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	decodeBody(t, resp, &listing)
	assert.Len(t, listing.Conversations, 1)

	resp = doJSON(t, http.MethodDelete, ts.URL+fmt.Sprintf("/api/conversations/%d", created.ID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestErrorStatusMapping(t *testing.T) {
	ts, l := newTestServer(t)

	t.Run("validation is 400", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/conversations", map[string]any{
			"platform": "bedrock",
			"model":    "gpt-4",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("missing entity is 404", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/conversations/999", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("bad id is 400", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/conversations/abc", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("provider failure is 502 and hides the cause", func(t *testing.T) {
		_, err := l.UpsertAPIKey(context.Background(), models.PlatformOpenAI, "sk-test")
		require.NoError(t, err)

		resp := doJSON(t, http.MethodPost, ts.URL+"/api/chat/send", map[string]any{
			"platform": "openai",
			"model":    "gpt-4",
			"message":  "hi",
		})
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		var body map[string]string
		decodeBody(t, resp, &body)
		assert.NotEmpty(t, body["request_id"])
		assert.NotContains(t, body["error"], "upstream")
	})
}

func TestOrganizerEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/folders", map[string]any{"name": "work"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var folder models.Folder
	decodeBody(t, resp, &folder)

	resp = doJSON(t, http.MethodPut, ts.URL+fmt.Sprintf("/api/folders/%d", folder.ID), map[string]any{
		"name": "projects",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &folder)
	assert.Equal(t, "projects", folder.Name)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/tags", map[string]any{"name": "go"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var tag models.Tag
	decodeBody(t, resp, &tag)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/tags", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tags struct {
		Tags []models.Tag `json:"tags"`
	}
	decodeBody(t, resp, &tags)
	assert.Len(t, tags.Tags, 1)

	resp = doJSON(t, http.MethodDelete, ts.URL+fmt.Sprintf("/api/tags/%d", tag.ID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestAPIKeyEndpointsNeverEchoSecret(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/keys", map[string]any{
		"platform": "anthropic",
		"secret":   "sk-ant-secret",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var raw bytes.Buffer
	_, err := raw.ReadFrom(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.NotContains(t, raw.String(), "sk-ant-secret")

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/keys", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw.Reset()
	_, err = raw.ReadFrom(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.NotContains(t, raw.String(), "sk-ant-secret")
	assert.Contains(t, raw.String(), "anthropic")
}

func TestSearchAndStatsEndpoints(t *testing.T) {
	ts, l := newTestServer(t)
	ctx := context.Background()

	conv, err := l.CreateConversation(ctx, models.PlatformOpenAI, "gpt-4", "t", nil)
	require.NoError(t, err)
	_, err = l.AppendMessage(ctx, conv.ID, models.RoleUser, "searchable content here", nil, nil)
	require.NoError(t, err)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/search?q=searchable", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hits struct {
		Results []search.Result `json:"results"`
	}
	decodeBody(t, resp, &hits)
	require.Len(t, hits.Results, 1)
	assert.Equal(t, conv.ID, hits.Results[0].ConversationID)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report stats.Report
	decodeBody(t, resp, &report)
	assert.EqualValues(t, 1, report.TotalConversations)
	assert.EqualValues(t, 1, report.TotalMessages)
}

func TestCompareConversationsEndpoint(t *testing.T) {
	ts, l := newTestServer(t)
	ctx := context.Background()

	a, err := l.CreateConversation(ctx, models.PlatformOpenAI, "gpt-4", "left", nil)
	require.NoError(t, err)
	_, err = l.AppendMessage(ctx, a.ID, models.RoleUser, "one", nil, nil)
	require.NoError(t, err)
	b, err := l.CreateConversation(ctx, models.PlatformOpenAI, "gpt-4", "right", nil)
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/conversations/compare", map[string]any{
		"conversation_ids": []int64{a.ID, 999, b.ID},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Conversations, 2)
	assert.Equal(t, "left", body.Conversations[0].Title)
	require.Len(t, body.Conversations[0].Messages, 1)
	assert.Equal(t, "right", body.Conversations[1].Title)
}

func TestExportBulkEndpoint(t *testing.T) {
	ts, l := newTestServer(t)
	ctx := context.Background()

	first, err := l.ImportConversation(ctx, models.PlatformOpenAI, "gpt-4", "one", nil, []ledger.ImportMessage{
		{Role: models.RoleUser, Content: "q1"},
	})
	require.NoError(t, err)
	second, err := l.ImportConversation(ctx, models.PlatformOpenAI, "gpt-4", "two", nil, []ledger.ImportMessage{
		{Role: models.RoleUser, Content: "q2"},
	})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/export/bulk", map[string]any{
		"conversation_ids": []int64{first.ID, second.ID},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Conversations, 2)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/export/bulk", map[string]any{
		"conversation_ids": []int64{first.ID},
		"format":           "markdown",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/markdown", resp.Header.Get("Content-Type"))
	var raw bytes.Buffer
	_, err = raw.ReadFrom(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "# Exported Conversations")
	assert.Contains(t, raw.String(), "## one")
}

func TestExportImportEndpoints(t *testing.T) {
	ts, l := newTestServer(t)
	ctx := context.Background()

	conv, err := l.ImportConversation(ctx, models.PlatformOpenAI, "gpt-4", "exported", nil, []ledger.ImportMessage{
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "a"},
	})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodGet, ts.URL+fmt.Sprintf("/api/export/conversations/%d?format=markdown", conv.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/markdown", resp.Header.Get("Content-Type"))
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+fmt.Sprintf("/api/export/conversations/%d", conv.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw bytes.Buffer
	_, err = raw.ReadFrom(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/import/conversations", bytes.NewReader(raw.Bytes()))
	require.NoError(t, err)
	importResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, importResp.StatusCode)
	var imported models.Conversation
	decodeBody(t, importResp, &imported)
	assert.NotEqual(t, conv.ID, imported.ID)
	assert.Equal(t, "exported", imported.Title)
}
