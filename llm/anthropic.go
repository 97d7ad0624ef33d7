package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"cortex/common"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic requires max_tokens on every request; this is the floor used when
// the caller doesn't set one.
const anthropicDefaultMaxTokens = 1024

type AnthropicAdapter struct {
	APIKey  string
	BaseURL string
	HTTPC   *http.Client
}

var _ Dispatcher = (*AnthropicAdapter)(nil)

func NewAnthropicAdapter(config common.ProviderConfig) *AnthropicAdapter {
	return &AnthropicAdapter{APIKey: config.APIKey, BaseURL: config.BaseURL}
}

func (a *AnthropicAdapter) client() anthropic.Client {
	httpc := a.HTTPC
	if httpc == nil {
		httpc = &http.Client{Timeout: 5 * time.Minute}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(a.APIKey),
		option.WithHTTPClient(httpc),
	}
	if a.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.BaseURL))
	}
	return anthropic.NewClient(opts...)
}

func (a *AnthropicAdapter) Dispatch(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := req.Messages
	if len(messages) == 0 && req.Prompt != "" {
		messages = []common.ChatMessage{{Role: common.ChatMessageRoleUser, Content: req.Prompt}}
	}

	system, anthropicMessages, err := anthropicFromChatMessages(messages)
	if err != nil {
		return nil, err
	}

	maxTokens := int64(anthropicDefaultMaxTokens)
	if req.Options.MaxTokens > 0 {
		maxTokens = int64(req.Options.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:      anthropic.Model(req.Model),
		MaxTokens:  maxTokens,
		System:     system,
		Messages:   anthropicMessages,
		Tools:      anthropicFromTools(req.Tools),
		ToolChoice: anthropicFromToolChoice(req.ToolChoice),
	}
	if req.Options.Temperature != nil {
		params.Temperature = anthropic.Opt(float64(*req.Options.Temperature))
	}

	client := a.client()
	message, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, normalizeAnthropicError(err)
	}

	response := &ChatResponse{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		Timestamp:        time.Now().UTC(),
	}
	var text strings.Builder
	for _, block := range message.Content {
		switch block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(block.Text)
		case anthropic.ToolUseBlock:
			response.ToolCalls = append(response.ToolCalls, common.ToolCall{
				Id:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	response.Text = strings.TrimSpace(text.String())
	return response, nil
}

func normalizeAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return ProviderHTTPError{Status: apiErr.StatusCode, Body: apiErr.Error()}
	}
	return ProviderConnectError{Cause: err}
}
