package contacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cortex/common"
	"cortex/domain"
)

// Client talks to a remote contacts service over its HTTP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

var _ Contacts = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Resolve(ctx context.Context, platform domain.Platform, externalId string) (domain.Contact, error) {
	return c.resolve(ctx, platform, externalId, false)
}

func (c *Client) ResolveOrCreate(ctx context.Context, platform domain.Platform, externalId string) (domain.Contact, error) {
	return c.resolve(ctx, platform, externalId, true)
}

func (c *Client) resolve(ctx context.Context, platform domain.Platform, externalId string, create bool) (domain.Contact, error) {
	query := url.Values{}
	query.Set("platform", string(platform))
	query.Set("externalId", externalId)
	if create {
		query.Set("create", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/resolve?"+query.Encode(), nil)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("failed to build contacts request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("contacts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Contact{}, common.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Contact{}, fmt.Errorf("contacts returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var contact domain.Contact
	if err := json.NewDecoder(resp.Body).Decode(&contact); err != nil {
		return domain.Contact{}, fmt.Errorf("failed to decode contacts response: %w", err)
	}
	return contact, nil
}
