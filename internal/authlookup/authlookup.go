// Package authlookup resolves author names to authority-record IDs via
// the configured union-catalog and GND lookup endpoints.
package authlookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ppnPattern extracts the record ID from the union catalog's HTML hit
// page.
var ppnPattern = regexp.MustCompile(`(?s)<SMALL>PPN</SMALL>.*?<div><SMALL>([^<]+)</SMALL>`)

// Client looks an author name up against a primary HTML endpoint and,
// when that misses, a JSON fallback endpoint.
type Client struct {
	http               *resty.Client
	primaryURL         string
	fallbackURL        string
	fallbackQueryParam string
	logger             *zap.Logger
}

// New builds a Client. Either URL may be empty, disabling that stage.
func New(primaryURL, fallbackURL, fallbackQueryParam, userAgent string, logger *zap.Logger) *Client {
	http := resty.New()
	if userAgent != "" {
		http.SetHeader("User-Agent", userAgent)
	}
	return &Client{
		http:               http,
		primaryURL:         primaryURL,
		fallbackURL:        fallbackURL,
		fallbackQueryParam: fallbackQueryParam,
		logger:             logger,
	}
}

// LookupID returns the authority ID for name, or "" when neither
// endpoint knows the author. Transport failures are returned as errors;
// a clean miss is not an error.
func (c *Client) LookupID(ctx context.Context, name string) (string, error) {
	if c.primaryURL != "" {
		id, err := c.lookupPrimary(ctx, name)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}
	if c.fallbackURL != "" {
		return c.lookupFallback(ctx, name)
	}
	return "", nil
}

func (c *Client) lookupPrimary(ctx context.Context, name string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(c.primaryURL + url.QueryEscape(name))
	if err != nil {
		return "", fmt.Errorf("author lookup: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("author lookup returned %d", resp.StatusCode())
	}

	match := ppnPattern.FindSubmatch(resp.Body())
	if match == nil {
		c.logger.Debug("no primary authority match", zap.String("author", name))
		return "", nil
	}
	return string(match[1]), nil
}

// gndResult is the shape of the fallback endpoint's response; only the
// identifier of the first hit is consumed.
type gndResult struct {
	Member []struct {
		GNDIdentifier string `json:"gndIdentifier"`
	} `json:"member"`
}

func (c *Client) lookupFallback(ctx context.Context, name string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam(c.fallbackQueryParam, name).
		SetQueryParam("format", "json").
		Get(c.fallbackURL)
	if err != nil {
		return "", fmt.Errorf("fallback author lookup: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fallback author lookup returned %d", resp.StatusCode())
	}

	var result gndResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("decode fallback author lookup: %w", err)
	}
	if len(result.Member) == 0 {
		return "", nil
	}
	return result.Member[0].GNDIdentifier, nil
}
