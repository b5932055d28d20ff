// Package history fetches the historical-candles seed from the venue's REST
// API. The client only retrieves the raw response body; decoding happens in
// the shared decode path so seed parsing runs off the session loop like any
// other frame.
package history

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"market-feedv1/internal/model"
)

const (
	// DefaultBaseURL is the venue's REST origin.
	DefaultBaseURL = "https://www.okx.com"

	// DefaultLimit is the number of seed bars requested, matching the chart
	// window the frontend renders on load.
	DefaultLimit = 100

	candlesPath = "/api/v5/market/history-candles"
)

// Client retrieves historical candle bodies over HTTP.
type Client struct {
	baseURL string
	limit   int
	httpc   *http.Client
}

// NewClient creates a seed client against the given REST origin. An empty
// base selects the venue default.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		limit:   DefaultLimit,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// WithLimit overrides the requested bar count.
func (c *Client) WithLimit(limit int) *Client {
	if limit > 0 {
		c.limit = limit
	}
	return c
}

// Fetch returns the raw history-candles response body for the target. The
// caller decodes it; only transport-level failures surface here.
func (c *Client) Fetch(ctx context.Context, target model.SubscriptionTarget) ([]byte, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("instId", target.Symbol)
	q.Set("bar", string(target.Interval))
	q.Set("limit", strconv.Itoa(c.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+candlesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("history: build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history: fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history: fetch %s: unexpected status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("history: read body: %w", err)
	}
	return body, nil
}
