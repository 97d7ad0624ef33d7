package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cortex/common"
)

const OllamaDefaultBaseURL = "http://localhost:11434"

// OllamaAdapter talks to a local ollama server through its native
// /api/generate endpoint, always in raw non-streaming mode with the
// conversation linearized into an instruct-style prompt.
type OllamaAdapter struct {
	BaseURL string
	HTTPC   *http.Client
}

var _ Dispatcher = (*OllamaAdapter)(nil)

func NewOllamaAdapter(config common.ProviderConfig) *OllamaAdapter {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = OllamaDefaultBaseURL
	}
	return &OllamaAdapter{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Raw     bool                   `json:"raw"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (a *OllamaAdapter) Dispatch(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	prompt := req.Prompt
	if prompt == "" {
		prompt = InstructPrompt(req.Messages)
	}

	body := ollamaGenerateRequest{
		Model:  req.Model,
		Prompt: prompt,
		Raw:    true,
		Stream: false,
	}
	options := map[string]interface{}{}
	if req.Options.Temperature != nil {
		options["temperature"] = *req.Options.Temperature
	}
	if req.Options.MaxTokens > 0 {
		options["num_predict"] = req.Options.MaxTokens
	}
	if len(options) > 0 {
		body.Options = options
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpc := a.HTTPC
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(httpReq)
	if err != nil {
		return nil, ProviderConnectError{Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ProviderDecodeError{Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ProviderHTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var generated ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &generated); err != nil {
		return nil, ProviderDecodeError{Cause: err}
	}

	return &ChatResponse{
		Text:             strings.TrimSpace(generated.Response),
		PromptTokens:     generated.PromptEvalCount,
		CompletionTokens: generated.EvalCount,
		Timestamp:        time.Now().UTC(),
	}, nil
}

// ModelInfo is one locally available model as reported by ollama.
type ModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
}

type ollamaTagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ListModels enumerates the models the ollama server has pulled, via its
// native /api/tags endpoint.
func (a *OllamaAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build ollama request: %w", err)
	}

	httpc := a.HTTPC
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(httpReq)
	if err != nil {
		return nil, ProviderConnectError{Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ProviderDecodeError{Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ProviderHTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var tags ollamaTagsResponse
	if err := json.Unmarshal(respBody, &tags); err != nil {
		return nil, ProviderDecodeError{Cause: err}
	}
	return tags.Models, nil
}
