package llm

import (
	"fmt"
	"time"

	"cortex/common"
)

// ChatRequest is the provider-neutral request shape. Either Messages (chat)
// or Prompt (single-turn raw completion) is set; adapters translate to their
// provider's wire format at their own boundary.
type ChatRequest struct {
	Provider common.ChatProvider  `json:"provider,omitempty"`
	Model    string               `json:"model"`
	Messages []common.ChatMessage `json:"messages,omitempty"`
	Prompt   string               `json:"prompt,omitempty"`
	Options  RequestOptions       `json:"options,omitempty"`

	Tools      []common.Tool      `json:"tools,omitempty"`
	ToolChoice *common.ToolChoice `json:"toolChoice,omitempty"`
}

// ResolveProvider returns the explicit provider, falling back to inference
// from the model name prefix.
func (r ChatRequest) ResolveProvider() common.ChatProvider {
	if r.Provider != "" {
		return r.Provider
	}
	return common.InferProviderFromModel(r.Model)
}

type RequestOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
}

// ChatResponse is the uniform reply every adapter normalizes into.
type ChatResponse struct {
	Text             string           `json:"text"`
	PromptTokens     int              `json:"promptTokens"`
	CompletionTokens int              `json:"completionTokens"`
	ToolCalls        common.ToolCalls `json:"toolCalls,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

// ProviderHTTPError indicates the upstream provider returned a non-2xx
// status. It maps to a 502 at the service boundary.
type ProviderHTTPError struct {
	Status int
	Body   string
}

func (e ProviderHTTPError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d: %s", e.Status, e.Body)
}

// ProviderConnectError indicates the provider could not be reached at all.
type ProviderConnectError struct {
	Cause error
}

func (e ProviderConnectError) Error() string {
	return fmt.Sprintf("failed to connect to provider: %v", e.Cause)
}

func (e ProviderConnectError) Unwrap() error {
	return e.Cause
}

// ProviderDecodeError indicates the provider responded with something we
// could not decode.
type ProviderDecodeError struct {
	Cause error
}

func (e ProviderDecodeError) Error() string {
	return fmt.Sprintf("failed to decode provider response: %v", e.Cause)
}

func (e ProviderDecodeError) Unwrap() error {
	return e.Cause
}

// ErrUnknownProvider is an input error: the request named a provider no
// adapter is registered for.
type ErrUnknownProvider struct {
	Provider common.ChatProvider
}

func (e ErrUnknownProvider) Error() string {
	return fmt.Sprintf("unknown provider: %q", e.Provider)
}
