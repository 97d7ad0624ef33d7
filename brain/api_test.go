package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cortex/llm"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModelLister struct {
	models []llm.ModelInfo
	err    error
}

func (f *fakeModelLister) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	return f.models, f.err
}

func newTestRouter(t *testing.T, f *turnFixture) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctrl := NewController(f.orchestrator, &fakeModelLister{models: []llm.ModelInfo{
		{Name: "mistral", ModifiedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Name: "llama3", ModifiedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}}, nil, f.config)
	return DefineRoutes(ctrl)
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChatCompletionsMultiTurn(t *testing.T) {
	f := newTurnFixture(t)
	router := newTestRouter(t, f)

	w := postJSON(t, router, "/v1/chat/completions", gin.H{
		"model":    "mistral",
		"messages": []gin.H{{"role": "user", "content": "Hi"}},
		"user":     "admin-key",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp completionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "chat.completion", resp.Object)
	require.Len(t, resp.Choices, 1)
	require.NotNil(t, resp.Choices[0].Message)
	assert.Equal(t, "assistant", string(resp.Choices[0].Message.Role))
	assert.Equal(t, "Hello there.", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, 17, resp.Usage.TotalTokens)

	// one user message and one assistant message, in that order
	require.Len(t, f.ledger.messages, 2)
	assert.Equal(t, "Hi", f.ledger.messages[0].Content)
	assert.Equal(t, "Hello there.", f.ledger.messages[1].Content)
}

func TestChatCompletionsTaskPrefixRoutesSingleTurn(t *testing.T) {
	f := newTurnFixture(t)
	f.proxy.response.Text = "hello world is a greeting"
	router := newTestRouter(t, f)

	w := postJSON(t, router, "/v1/chat/completions", gin.H{
		"model":    "mistral",
		"messages": []gin.H{{"role": "user", "content": "### Task Summarize: hello world"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, f.proxy.requests, 1)
	assert.Equal(t, "Summarize: hello world", f.proxy.requests[0].Prompt)
	assert.Empty(t, f.proxy.requests[0].Messages)
	// a task run never touches the conversation ledger
	assert.Zero(t, f.ledger.syncCalls)

	var resp completionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hello world is a greeting", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
}

func TestCompletionsSequentialN(t *testing.T) {
	f := newTurnFixture(t)
	router := newTestRouter(t, f)

	w := postJSON(t, router, "/v1/completions", gin.H{
		"model":  "mistral",
		"prompt": "Write a haiku",
		"n":      3,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp completionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "text_completion", resp.Object)
	require.Len(t, resp.Choices, 3)
	assert.Len(t, f.proxy.requests, 3)
	assert.Equal(t, 15, resp.Usage.CompletionTokens)
}

func TestWebhookStrangerGetsCannedReply(t *testing.T) {
	f := newTurnFixture(t)
	router := newTestRouter(t, f)

	w := postJSON(t, router, "/discord/message/incoming", gin.H{
		"sender":  "nobody#404",
		"content": "hello?",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result TurnResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Contains(t, result.Response, "strangers")
	assert.Empty(t, f.proxy.requests)
	assert.Zero(t, f.ledger.syncCalls)
}

func TestWebhookKnownSenderRunsPipeline(t *testing.T) {
	f := newTurnFixture(t)
	router := newTestRouter(t, f)

	w := postJSON(t, router, "/discord/message/incoming", gin.H{
		"sender":    "sam#1",
		"content":   "ping",
		"messageId": "disc-7",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result TurnResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "Hello there.", result.Response)
	assert.Equal(t, 5, result.GeneratedTokens)
	assert.Equal(t, "disc-7", f.ledger.messages[0].PlatformMsgId)
}

func TestModeEndpoints(t *testing.T) {
	f := newTurnFixture(t)
	router := newTestRouter(t, f)

	req := httptest.NewRequest(http.MethodGet, "/mode", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mode":"default"`)

	w = postJSON(t, router, "/mode", gin.H{"mode": "work"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "work", f.orchestrator.Mode().Get())

	w = postJSON(t, router, "/mode", gin.H{"mode": "pirate"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "work", f.orchestrator.Mode().Get())
}

func TestModelsEndpoints(t *testing.T) {
	f := newTurnFixture(t)
	router := newTestRouter(t, f)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"mistral"`)
	assert.Contains(t, w.Body.String(), `"object":"list"`)

	req = httptest.NewRequest(http.MethodGet, "/v1/models/llama3", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"llama3"`)

	req = httptest.NewRequest(http.MethodGet, "/v1/models/unknown", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatCompletionsRejectsEmptyMessages(t *testing.T) {
	f := newTurnFixture(t)
	router := newTestRouter(t, f)

	w := postJSON(t, router, "/v1/chat/completions", gin.H{"model": "mistral", "messages": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
