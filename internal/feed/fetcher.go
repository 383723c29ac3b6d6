// Package feed downloads and parses syndication feeds for RSS-mode
// journals.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/thefass/ub-tools/internal/harvester"
)

// Fetcher parses RSS/Atom feeds via gofeed.
type Fetcher struct {
	parser *gofeed.Parser
	logger *zap.Logger
}

// NewFetcher builds a Fetcher. userAgent is sent on every request.
func NewFetcher(userAgent string, logger *zap.Logger) *Fetcher {
	parser := gofeed.NewParser()
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	return &Fetcher{parser: parser, logger: logger}
}

// Fetch downloads and parses the feed at feedURL.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*harvester.Feed, error) {
	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}

	result := &harvester.Feed{
		Title:         parsed.Title,
		Link:          parsed.Link,
		Description:   parsed.Description,
		LastBuildDate: buildDate(parsed),
	}
	for _, item := range parsed.Items {
		if item.Link == "" {
			f.logger.Debug("feed item without link skipped",
				zap.String("feed", feedURL),
				zap.String("title", item.Title))
			continue
		}
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		result.Items = append(result.Items, harvester.FeedItem{
			ID:    id,
			Title: item.Title,
			Link:  item.Link,
		})
	}

	return result, nil
}

// buildDate prefers the feed-level update stamp and falls back to the
// newest item, since many journal feeds omit lastBuildDate.
func buildDate(parsed *gofeed.Feed) time.Time {
	if parsed.UpdatedParsed != nil {
		return *parsed.UpdatedParsed
	}
	if parsed.PublishedParsed != nil {
		return *parsed.PublishedParsed
	}
	var newest time.Time
	for _, item := range parsed.Items {
		if item.PublishedParsed != nil && item.PublishedParsed.After(newest) {
			newest = *item.PublishedParsed
		}
	}
	return newest
}
