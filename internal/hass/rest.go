package hass

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RESTClient is the one-shot HTTP fallback: a connectivity probe plus the
// /reset convenience endpoint used by non-production test tooling. It is not
// part of the live sync path.
type RESTClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// RESTOption configures RESTClient.
type RESTOption func(*RESTClient)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) RESTOption {
	return func(c *RESTClient) {
		c.client = client
	}
}

// NewRESTClient creates a REST client rooted at baseURL, e.g.
// http://host:8123.
func NewRESTClient(baseURL, token string, opts ...RESTOption) *RESTClient {
	c := &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping verifies the platform is reachable and the token is accepted.
func (c *RESTClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/")
}

// Reset clears the test harness's entity state. Only the local mock server
// implements this endpoint.
func (c *RESTClient) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/reset")
}

func (c *RESTClient) do(ctx context.Context, method, path string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return nil
}
