package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cortex/domain"
)

// Ledger is the surface the orchestrator consumes. Both the in-process
// Service and the HTTP Client satisfy it, so brain works the same whether
// the ledger runs in the same process or behind LEDGER_PORT.
type Ledger interface {
	Sync(ctx context.Context, userId string, snapshot []SnapshotEntry) ([]domain.Message, error)
	RecentSummaries(ctx context.Context, userId string, limit int) ([]domain.Summary, error)
	UpdateLastSeen(ctx context.Context, userId string, platform domain.Platform, seen time.Time) error
}

var _ Ledger = (*Service)(nil)
var _ Ledger = (*Client)(nil)

// Client talks to a remote ledger service over its HTTP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Sync(ctx context.Context, userId string, snapshot []SnapshotEntry) ([]domain.Message, error) {
	var response SyncResponse
	err := c.post(ctx, fmt.Sprintf("/users/%s/sync", url.PathEscape(userId)), SyncRequest{Snapshot: snapshot}, &response)
	if err != nil {
		return nil, err
	}
	return response.Buffer, nil
}

func (c *Client) RecentSummaries(ctx context.Context, userId string, limit int) ([]domain.Summary, error) {
	var response struct {
		Summaries []domain.Summary `json:"summaries"`
	}
	path := fmt.Sprintf("/users/%s/summaries?limit=%s", url.PathEscape(userId), strconv.Itoa(limit))
	if err := c.get(ctx, path, &response); err != nil {
		return nil, err
	}
	return response.Summaries, nil
}

func (c *Client) UpdateLastSeen(ctx context.Context, userId string, platform domain.Platform, seen time.Time) error {
	return c.post(ctx, fmt.Sprintf("/users/%s/last-seen", url.PathEscape(userId)), LastSeenRequest{Platform: platform, Seen: seen}, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build ledger request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode ledger request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ledger returned HTTP %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ledger response: %w", err)
	}
	return nil
}
