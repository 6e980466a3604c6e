// Package apiclient is the shared HTTP layer for upstream APIs. Any status
// other than 200 is reported as domain.HTTPError. It never retries.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/hdb-property-etl/internal/domain"
	"github.com/couchcryptid/hdb-property-etl/internal/observability"
)

// maxErrorBody caps how much of a failed response is kept on the error.
const maxErrorBody = 4 << 10

// Request describes one upstream call. A non-nil Body is sent as JSON.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   any
}

// Client issues requests against one upstream. The upstream name labels
// metrics and log lines.
type Client struct {
	upstream   string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Client with the given request timeout.
func New(upstream string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return NewWithHTTPClient(upstream, &http.Client{Timeout: timeout}, logger, metrics)
}

// NewWithHTTPClient creates a Client around an existing http.Client.
func NewWithHTTPClient(upstream string, hc *http.Client, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		upstream:   upstream,
		httpClient: hc,
		logger:     logger,
		metrics:    metrics,
	}
}

// Do performs the request and returns the raw response body.
func (c *Client) Do(ctx context.Context, r Request) ([]byte, error) {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.UpstreamDuration.WithLabelValues(c.upstream).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(c.upstream, "error").Inc()
		return nil, fmt.Errorf("%s %s request: %w", c.upstream, r.Method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.UpstreamRequests.WithLabelValues(c.upstream, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.HTTPError{
			Method:     r.Method,
			URL:        redactURL(req),
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(c.upstream, "error").Inc()
		return nil, fmt.Errorf("%s read response: %w", c.upstream, err)
	}

	c.metrics.UpstreamRequests.WithLabelValues(c.upstream, "success").Inc()
	c.logger.Debug("upstream request",
		"upstream", c.upstream,
		"method", r.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start),
	)
	return body, nil
}

// DoJSON performs the request and decodes the JSON response into out.
func (c *Client) DoJSON(ctx context.Context, r Request, out any) error {
	body, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s decode response: %w", c.upstream, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	return req, nil
}

// redactURL drops the query string, which may carry search text or signed
// download parameters.
func redactURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}
