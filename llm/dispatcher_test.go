package llm

import (
	"context"
	"testing"

	"cortex/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	lastRequest ChatRequest
	response    *ChatResponse
	err         error
}

func (s *stubAdapter) Dispatch(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.lastRequest = req
	return s.response, s.err
}

func TestProviderDispatcher_RoutesByModelPrefix(t *testing.T) {
	t.Parallel()

	ollama := &stubAdapter{response: &ChatResponse{Text: "from ollama"}}
	openai := &stubAdapter{response: &ChatResponse{Text: "from openai"}}
	anthropic := &stubAdapter{response: &ChatResponse{Text: "from anthropic"}}
	dispatcher := NewProviderDispatcherWithAdapters(map[common.ChatProvider]Dispatcher{
		common.OllamaChatProvider:    ollama,
		common.OpenaiChatProvider:    openai,
		common.AnthropicChatProvider: anthropic,
	})

	cases := []struct {
		model string
		want  string
	}{
		{"claude-sonnet-4-0", "from anthropic"},
		{"gpt-4o-mini", "from openai"},
		{"llama3:8b", "from ollama"},
		{"mistral", "from ollama"},
	}
	for _, tc := range cases {
		response, err := dispatcher.Dispatch(context.Background(), ChatRequest{Model: tc.model})
		require.NoError(t, err, tc.model)
		assert.Equal(t, tc.want, response.Text, tc.model)
	}
}

func TestProviderDispatcher_ExplicitProviderWins(t *testing.T) {
	t.Parallel()

	openai := &stubAdapter{response: &ChatResponse{Text: "from openai"}}
	dispatcher := NewProviderDispatcherWithAdapters(map[common.ChatProvider]Dispatcher{
		common.OpenaiChatProvider: openai,
	})

	// model prefix says anthropic, explicit provider says openai
	response, err := dispatcher.Dispatch(context.Background(), ChatRequest{
		Provider: common.OpenaiChatProvider,
		Model:    "claude-sonnet-4-0",
	})
	require.NoError(t, err)
	assert.Equal(t, "from openai", response.Text)
}

func TestProviderDispatcher_UnknownProvider(t *testing.T) {
	t.Parallel()

	dispatcher := NewProviderDispatcherWithAdapters(map[common.ChatProvider]Dispatcher{})
	_, err := dispatcher.Dispatch(context.Background(), ChatRequest{Provider: "watsonx", Model: "granite"})
	var unknownErr ErrUnknownProvider
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, common.ChatProvider("watsonx"), unknownErr.Provider)
}
