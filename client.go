package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client is a thin HTTP client for a running courierd instance.
type Client struct {
	host string
	http *http.Client
}

func NewClient(host string) *Client {
	return &Client{
		host: strings.TrimRight(host, "/"),
		http: http.DefaultClient,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d, %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// Send enqueues one outbound email. The returned receipt carries the public
// message id, not a delivery confirmation.
func (c *Client) Send(ctx context.Context, req SendRequest) (Receipt, error) {
	var r Receipt
	err := c.do(ctx, http.MethodPost, "/api/email/send", req, &r)
	return r, err
}

func (c *Client) QueueStats(ctx context.Context) (QueueStats, error) {
	var s QueueStats
	err := c.do(ctx, http.MethodGet, "/api/email/stats", nil, &s)
	return s, err
}

func (c *Client) AppStats(ctx context.Context, app, startDate, endDate string) (AppStats, error) {
	var s AppStats
	q := url.Values{"app": {app}, "startDate": {startDate}, "endDate": {endDate}}
	err := c.do(ctx, http.MethodGet, "/api/email/app-stats?"+q.Encode(), nil, &s)
	return s, err
}

func (c *Client) SystemStatistics(ctx context.Context) (SystemStatistics, error) {
	var s SystemStatistics
	err := c.do(ctx, http.MethodGet, "/api/statistics", nil, &s)
	return s, err
}
