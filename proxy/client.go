package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cortex/llm"

	"github.com/google/uuid"
)

// Client talks to a remote proxy service over its HTTP API, exposing the
// same enqueue surface as the in-process Service for split deployments.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		// queue wait happens server-side, so the HTTP timeout needs headroom
		// beyond the dispatch timeout itself
		HTTPClient: &http.Client{Timeout: timeout + 10*time.Second},
	}
}

// Enqueue posts the request to the remote dispatch endpoint and blocks until
// it answers. The remote proxy applies its own queue timeout; the ctx
// deadline still wins if it is shorter.
func (c *Client) Enqueue(ctx context.Context, req llm.ChatRequest, priority Priority, timeout time.Duration) (*llm.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(DispatchRequest{ChatRequest: req, Priority: priority})
	if err != nil {
		return nil, fmt.Errorf("failed to encode dispatch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/dispatch", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build dispatch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("proxy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGatewayTimeout {
		return nil, ErrTaskTimeout
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrQueueFull
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, llm.ProviderHTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	var response llm.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode proxy response: %w", err)
	}
	return &response, nil
}

// EnqueueAsync fires the dispatch in a goroutine and delivers the outcome to
// the callback. The remote API has no async endpoint; fire-and-forget lives
// on the caller's side.
func (c *Client) EnqueueAsync(req llm.ChatRequest, priority Priority, callback func(*llm.ChatResponse, error)) (string, error) {
	taskId := uuid.NewString()
	go func() {
		response, err := c.Enqueue(context.Background(), req, priority, DefaultAsyncTimeout)
		if callback != nil {
			callback(response, err)
		}
	}()
	return taskId, nil
}

// DefaultAsyncTimeout bounds client-side fire-and-forget dispatches.
const DefaultAsyncTimeout = 5 * time.Minute
