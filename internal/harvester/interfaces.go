package harvester

import (
	"context"
	"time"

	"github.com/thefass/ub-tools/internal/record"
)

// TranslationClient talks to the remote metadata-extraction service.
type TranslationClient interface {
	// Web submits a URL (or a verbatim response body, for the
	// multiple-candidates flow) and returns the raw response body
	// together with the HTTP status code.
	Web(ctx context.Context, payload string, timeLimit time.Duration) (body []byte, status int, err error)
	// Export converts a JSON item array into the named target format.
	Export(ctx context.Context, format string, jsonArray []byte, timeLimit time.Duration) ([]byte, error)
	// Import converts foreign bibliographic content into the service's
	// JSON item representation.
	Import(ctx context.Context, content []byte, timeLimit time.Duration) ([]byte, error)
}

// Crawler discovers candidate pages starting from a journal's entry URL,
// honoring the configured maximum depth.
type Crawler interface {
	Crawl(ctx context.Context, journal *JournalParams) (<-chan Page, error)
}

// FeedFetcher downloads and parses a syndication feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) (*Feed, error)
}

// AuthorLookup resolves a "last, first" author name to an external
// identifier. An empty result without an error means no match.
type AuthorLookup interface {
	LookupID(ctx context.Context, name string) (string, error)
}

// LanguageClassifier ranks candidate languages for a piece of text,
// most likely first.
type LanguageClassifier interface {
	Classify(text string, candidates []string) []string
}

// Sink accepts built records for durable output.
type Sink interface {
	Write(ctx context.Context, rec *record.Record) error
}

// DeliveryTracker is the idempotent dedup store for emitted records.
type DeliveryTracker interface {
	// HasAlreadyDelivered reports whether a record with the given
	// checksum was already successfully delivered under (mode, url),
	// returning the prior entry if one exists at all.
	HasAlreadyDelivered(ctx context.Context, mode DeliveryMode, url, checksum string) (bool, *DeliveryEntry, error)
	// RecordDelivery inserts or replaces the entry for (mode, url).
	RecordDelivery(ctx context.Context, entry DeliveryEntry) error
}

// FeedStateStore persists per-feed build dates, harvest times and
// processed item ids across runs.
type FeedStateStore interface {
	// FeedState returns the stored build date and last harvest time for
	// feedURL; known is false when the feed was never seen.
	FeedState(ctx context.Context, feedURL string) (lastBuild, lastHarvest time.Time, known bool, err error)
	UpsertFeed(ctx context.Context, feedURL string, lastBuild, harvestedAt time.Time) error
	ItemProcessed(ctx context.Context, feedURL, itemID string) (bool, error)
	MarkItemProcessed(ctx context.Context, feedURL, itemID string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
