// Package crawl discovers article URLs for CRAWL-mode journals using
// the Colly library.
package crawl

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/thefass/ub-tools/internal/harvester"
)

// collyCrawler implements harvester.Crawler using Colly.
type collyCrawler struct {
	userAgent string
	delay     time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

// NewCollyCrawler creates a Colly-based crawler. delay spaces out
// requests against a single host; timeout bounds the whole crawl of
// one journal.
func NewCollyCrawler(userAgent string, delay, timeout time.Duration, logger *zap.Logger) harvester.Crawler {
	return &collyCrawler{
		userAgent: userAgent,
		delay:     delay,
		timeout:   timeout,
		logger:    logger,
	}
}

// Crawl walks the journal site from its entry URL up to the configured
// depth and emits every page whose URL matches the journal's supported
// URL patterns. The channel is closed when the crawl finishes or the
// timeout expires.
func (c *collyCrawler) Crawl(ctx context.Context, journal *harvester.JournalParams) (<-chan harvester.Page, error) {
	entry, err := url.Parse(journal.EntryURL)
	if err != nil {
		return nil, fmt.Errorf("parse entry url: %w", err)
	}

	timeout := c.timeout
	if timeout <= 0 {
		timeout = time.Hour
	}
	crawlCtx, cancel := context.WithTimeout(ctx, timeout)

	collector, err := c.initCollector(crawlCtx, entry.Hostname(), journal.CrawlDepth)
	if err != nil {
		cancel()
		return nil, err
	}

	pages := make(chan harvester.Page, 64)

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if err := e.Request.Visit(e.Attr("href")); err != nil {
			c.logger.Debug("link not followed",
				zap.String("url", e.Attr("href")),
				zap.Error(err))
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		pageURL := r.Request.URL.String()
		if !matches(journal.SupportedURLs, pageURL) {
			return
		}
		if r.StatusCode != 200 || len(r.Body) == 0 {
			c.logger.Warn("skipping crawled page",
				zap.String("url", pageURL),
				zap.Int("status_code", r.StatusCode))
			return
		}
		body := make([]byte, len(r.Body))
		copy(body, r.Body)
		pages <- harvester.Page{URL: pageURL, Body: body}
	})

	collector.OnError(func(r *colly.Response, err error) {
		pageURL := r.Request.URL.String()
		c.logger.Warn("crawl request failed",
			zap.String("url", pageURL),
			zap.Int("status_code", r.StatusCode),
			zap.Error(err))
		if matches(journal.SupportedURLs, pageURL) {
			pages <- harvester.Page{URL: pageURL, ErrorMessage: err.Error()}
		}
	})

	go func() {
		defer cancel()
		defer close(pages)

		if err := collector.Visit(journal.EntryURL); err != nil {
			c.logger.Error("failed to visit entry url",
				zap.String("url", journal.EntryURL),
				zap.Error(err))
			return
		}
		// Wait returns once all requests finished; cancelling crawlCtx
		// on timeout aborts the ones still in flight.
		collector.Wait()
	}()

	return pages, nil
}

func (c *collyCrawler) initCollector(ctx context.Context, host string, maxDepth int) (*colly.Collector, error) {
	options := []colly.CollectorOption{
		colly.AllowedDomains(host),
		colly.MaxDepth(maxDepth),
		colly.Async(true),
		colly.StdlibContext(ctx),
	}
	if c.userAgent != "" {
		options = append(options, colly.UserAgent(c.userAgent))
	}

	collector := colly.NewCollector(options...)
	collector.AllowURLRevisit = false

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       c.delay,
	}); err != nil {
		return nil, fmt.Errorf("set collector limits: %w", err)
	}
	return collector, nil
}

func matches(pattern *regexp.Regexp, pageURL string) bool {
	return pattern == nil || pattern.MatchString(pageURL)
}
