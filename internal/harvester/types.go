// Package harvester defines core types shared across subsystems.
package harvester

import (
	"regexp"
	"time"
)

// HarvestMode selects how a journal's article URLs are acquired.
type HarvestMode string

// Harvest modes configured per journal.
const (
	ModeDirect HarvestMode = "DIRECT"
	ModeCrawl  HarvestMode = "CRAWL"
	ModeRSS    HarvestMode = "RSS"
)

// DeliveryMode states whether converted records are delivered for real,
// as a test, or not at all.
type DeliveryMode string

// Delivery modes persisted in the delivery tracker.
const (
	DeliveryNone DeliveryMode = "NONE"
	DeliveryTest DeliveryMode = "TEST"
	DeliveryLive DeliveryMode = "LIVE"
)

// FeedRunMode controls whether RSS harvesting consults and updates the
// persistent feed state. Test runs do neither.
type FeedRunMode string

// Feed run modes.
const (
	FeedRunNormal  FeedRunMode = "NORMAL"
	FeedRunVerbose FeedRunMode = "VERBOSE"
	FeedRunTest    FeedRunMode = "TEST"
)

// GlobalParams captures process-wide harvest configuration. Loaded once
// per run and immutable thereafter.
type GlobalParams struct {
	TranslationServerURL string
	DownloadDelay        time.Duration
	MaxDownloadDelay     time.Duration
	RequestTimeout       time.Duration
	CrawlTimeout         time.Duration
	RSSHarvestInterval   time.Duration
	MaxConversionTasks   int
	SkipOnlineFirst      bool
	AuthorNameBlacklist  []string
}

// GroupParams identifies an institutional delivery group.
type GroupParams struct {
	Name                     string
	ISIL                     string
	UserAgent                string
	AuthorPrimaryLookupURL   string
	AuthorFallbackLookupURL  string
	AuthorFallbackQueryParam string
}

// ISSNPair holds the online and print ISSN of a journal.
type ISSNPair struct {
	Online string
	Print  string
}

// IdentifierPair holds the catalog identifiers (PPNs) of the online and
// print edition of a journal's superior record.
type IdentifierPair struct {
	Online string
	Print  string
}

// JournalParams is the per-journal harvest configuration. Immutable for
// the duration of a run.
type JournalParams struct {
	ID           int
	Name         string
	Group        string
	Mode         HarvestMode
	DeliveryMode DeliveryMode
	EntryURL     string

	ISSN       ISSNPair
	Identifier IdentifierPair

	ExpectedLanguages      []string
	LanguageSourceFields   string
	ForceLanguageDetection bool
	DateLayout             string

	CrawlDepth        int
	SupportedURLs     *regexp.Regexp
	ExtractionPattern *regexp.Regexp

	// Metadata-level filters, keyed by field name.
	SuppressionFilters map[string]*regexp.Regexp
	OverrideFilters    map[string]string
	ExclusionFilters   map[string]*regexp.Regexp

	// Record-level filters, keyed by field tag or tag+subfield code.
	RecordExclusionFilters map[string]*regexp.Regexp
	RecordRemovalFilters   map[string]*regexp.Regexp

	// Custom field templates in TAG:SUBFIELD:value form; %name% tokens
	// are substituted from a record's custom metadata.
	CustomFields []string

	ReviewPattern *regexp.Regexp
	License       string
	SSG           string
}

// HarvestableItem identifies one page/article to acquire for a journal.
type HarvestableItem struct {
	Journal *JournalParams
	URL     string
}

// RunTotals aggregates the outcome of a harvest run.
type RunTotals struct {
	HarvestedURLs        int
	Records              int
	PreviouslyDownloaded int
	SkippedExclusion     int
	SkippedOnlineFirst   int
	SkippedEarlyView     int
}

// Add accumulates another set of totals into the receiver.
func (t *RunTotals) Add(other RunTotals) {
	t.HarvestedURLs += other.HarvestedURLs
	t.Records += other.Records
	t.PreviouslyDownloaded += other.PreviouslyDownloaded
	t.SkippedExclusion += other.SkippedExclusion
	t.SkippedOnlineFirst += other.SkippedOnlineFirst
	t.SkippedEarlyView += other.SkippedEarlyView
}

// DeliveryEntry is one row of the delivery tracker.
type DeliveryEntry struct {
	ID           string
	Mode         DeliveryMode
	URL          string
	JournalName  string
	Checksum     string
	ErrorMessage string
	DeliveredAt  time.Time
}

// Page is one page surfaced by the site crawler.
type Page struct {
	URL          string
	Body         []byte
	ErrorMessage string
}

// Feed is a parsed syndication feed.
type Feed struct {
	Title         string
	Link          string
	Description   string
	LastBuildDate time.Time
	Items         []FeedItem
}

// FeedItem is a single entry of a syndication feed.
type FeedItem struct {
	ID    string
	Title string
	Link  string
}
