// Package translation talks to a Zotero translation server.
package translation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/thefass/ub-tools/internal/metrics"
)

// Client issues web/import/export requests against a translation server.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient builds a Client for the server at baseURL.
func NewClient(baseURL, userAgent string, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if userAgent != "" {
		http.SetHeader("User-Agent", userAgent)
	}
	return &Client{http: http, logger: logger}
}

// Web asks the server to translate the page or URL in payload. The raw
// response body and HTTP status are returned even on failure so callers
// can drive the multiple-matches (300) resubmission flow.
func (c *Client) Web(ctx context.Context, payload string, timeLimit time.Duration) ([]byte, int, error) {
	return c.post(ctx, "/web", "text/plain", []byte(payload), timeLimit)
}

// Export converts a JSON array of translated items into the named
// output format.
func (c *Client) Export(ctx context.Context, format string, jsonArray []byte, timeLimit time.Duration) ([]byte, error) {
	body, _, err := c.post(ctx, "/export?format="+format, "application/json", jsonArray, timeLimit)
	return body, err
}

// Import converts foreign bibliographic content into translator JSON.
func (c *Client) Import(ctx context.Context, content []byte, timeLimit time.Duration) ([]byte, error) {
	body, _, err := c.post(ctx, "/import", "application/octet-stream", content, timeLimit)
	return body, err
}

func (c *Client) post(ctx context.Context, path, contentType string, body []byte, timeLimit time.Duration) ([]byte, int, error) {
	if timeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeLimit)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(body).
		Post(path)
	metrics.ObserveTranslationRequest(path, time.Since(start))
	if err != nil {
		return nil, 0, fmt.Errorf("post %s: %w", path, err)
	}

	status := resp.StatusCode()
	responseBody := resp.Body()
	c.logger.Debug("translation server response",
		zap.String("path", path),
		zap.Int("status", status),
		zap.Int("bytes", len(responseBody)))

	// 4xx, 5xx and the server's 9xx-style internal failures carry their
	// diagnostic in the body; surface it alongside the status.
	switch status / 100 {
	case 4, 5, 9:
		return responseBody, status, fmt.Errorf("translation server returned %d: %s", status, string(responseBody))
	}
	return responseBody, status, nil
}
