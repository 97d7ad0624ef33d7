package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cortex/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaAdapter_Dispatch(t *testing.T) {
	t.Parallel()

	var captured ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Response:        "  hello there  ",
			PromptEvalCount: 11,
			EvalCount:       5,
		})
	}))
	defer server.Close()

	adapter := &OllamaAdapter{BaseURL: server.URL}
	temperature := float32(0.3)
	response, err := adapter.Dispatch(context.Background(), ChatRequest{
		Model: "llama3",
		Messages: []common.ChatMessage{
			{Role: common.ChatMessageRoleSystem, Content: "be brief"},
			{Role: common.ChatMessageRoleUser, Content: "hi"},
		},
		Options: RequestOptions{Temperature: &temperature, MaxTokens: 64},
	})
	require.NoError(t, err)

	assert.Equal(t, "llama3", captured.Model)
	assert.True(t, captured.Raw)
	assert.False(t, captured.Stream)
	assert.Equal(t, "[INST] <<SYS>>\nbe brief\n<</SYS>> [/INST]\n[INST] hi [/INST]", captured.Prompt)
	assert.InDelta(t, 0.3, captured.Options["temperature"], 0.001)
	assert.EqualValues(t, 64, captured.Options["num_predict"])

	assert.Equal(t, "hello there", response.Text)
	assert.Equal(t, 11, response.PromptTokens)
	assert.Equal(t, 5, response.CompletionTokens)
	assert.False(t, response.Timestamp.IsZero())
}

func TestOllamaAdapter_PromptOverridesMessages(t *testing.T) {
	t.Parallel()

	var captured ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "ok"})
	}))
	defer server.Close()

	adapter := &OllamaAdapter{BaseURL: server.URL}
	_, err := adapter.Dispatch(context.Background(), ChatRequest{
		Model:  "llama3",
		Prompt: "raw prompt",
	})
	require.NoError(t, err)
	assert.Equal(t, "raw prompt", captured.Prompt)
}

func TestOllamaAdapter_HTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	adapter := &OllamaAdapter{BaseURL: server.URL}
	_, err := adapter.Dispatch(context.Background(), ChatRequest{Model: "nope"})
	var httpErr ProviderHTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Contains(t, httpErr.Body, "model not found")
}

func TestOllamaAdapter_ConnectError(t *testing.T) {
	t.Parallel()

	// port reserved then released, nothing listens there
	adapter := &OllamaAdapter{BaseURL: "http://127.0.0.1:1"}
	_, err := adapter.Dispatch(context.Background(), ChatRequest{Model: "llama3"})
	var connectErr ProviderConnectError
	require.ErrorAs(t, err, &connectErr)
}

func TestOllamaAdapter_DecodeError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	adapter := &OllamaAdapter{BaseURL: server.URL}
	_, err := adapter.Dispatch(context.Background(), ChatRequest{Model: "llama3"})
	var decodeErr ProviderDecodeError
	require.ErrorAs(t, err, &decodeErr)
}
