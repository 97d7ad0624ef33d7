package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"cortex/common"

	openai "github.com/sashabaranov/go-openai"
)

// OpenaiAdapter speaks the OpenAI chat completions API. Messages pass
// through almost unchanged; tool_calls normalization happens at the
// canonical decode boundary, so by the time a request reaches this adapter
// tool calls are already a list.
type OpenaiAdapter struct {
	APIKey  string
	BaseURL string
}

var _ Dispatcher = (*OpenaiAdapter)(nil)

func NewOpenaiAdapter(config common.ProviderConfig) *OpenaiAdapter {
	return &OpenaiAdapter{APIKey: config.APIKey, BaseURL: config.BaseURL}
}

func (a *OpenaiAdapter) client() *openai.Client {
	config := openai.DefaultConfig(a.APIKey)
	if a.BaseURL != "" {
		config.BaseURL = a.BaseURL
	}
	return openai.NewClientWithConfig(config)
}

func openaiFromChatMessages(messages []common.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, message := range messages {
		converted := openai.ChatCompletionMessage{
			Role:       string(message.Role),
			Content:    message.Content,
			Name:       message.Name,
			ToolCallID: message.ToolCallId,
		}
		for _, toolCall := range message.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
				ID:   toolCall.Id,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      toolCall.Name,
					Arguments: toolCall.Arguments,
				},
			})
		}
		out = append(out, converted)
	}
	return out
}

func openaiFromTools(tools []common.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}

func openaiFromToolChoice(toolChoice *common.ToolChoice) any {
	if toolChoice == nil {
		return nil
	}
	switch toolChoice.Type {
	case common.ToolChoiceTypeUnspecified:
		return nil
	case common.ToolChoiceTypeAuto:
		return "auto"
	case common.ToolChoiceTypeRequired:
		return "required"
	case common.ToolChoiceTypeTool:
		return openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: toolChoice.Name},
		}
	}
	return nil
}

func (a *OpenaiAdapter) Dispatch(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := req.Messages
	if len(messages) == 0 && req.Prompt != "" {
		messages = []common.ChatMessage{{Role: common.ChatMessageRoleUser, Content: req.Prompt}}
	}

	var temperature float32
	if req.Options.Temperature != nil {
		temperature = *req.Options.Temperature
	}

	request := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    openaiFromChatMessages(messages),
		Temperature: temperature,
		MaxTokens:   req.Options.MaxTokens,
		Tools:       openaiFromTools(req.Tools),
		ToolChoice:  openaiFromToolChoice(req.ToolChoice),
	}

	response, err := a.client().CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, normalizeOpenaiError(err)
	}
	if len(response.Choices) == 0 {
		return nil, ProviderDecodeError{Cause: errors.New("openai response contained no choices")}
	}

	choice := response.Choices[0]
	result := &ChatResponse{
		Text:             strings.TrimSpace(choice.Message.Content),
		PromptTokens:     response.Usage.PromptTokens,
		CompletionTokens: response.Usage.CompletionTokens,
		Timestamp:        time.Now().UTC(),
	}
	for _, toolCall := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, common.ToolCall{
			Id:        toolCall.ID,
			Name:      toolCall.Function.Name,
			Arguments: toolCall.Function.Arguments,
		})
	}
	return result, nil
}

func normalizeOpenaiError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		body := apiErr.Message
		if body == "" {
			raw, _ := json.Marshal(apiErr)
			body = string(raw)
		}
		status := apiErr.HTTPStatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		return ProviderHTTPError{Status: status, Body: body}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ProviderHTTPError{Status: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return ProviderConnectError{Cause: err}
}
