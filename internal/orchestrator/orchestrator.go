// Package orchestrator drives a harvest run: acquiring URLs per
// journal, submitting downloads for conversion and delivering the
// resulting records.
package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/thefass/ub-tools/internal/conversion"
	"github.com/thefass/ub-tools/internal/errorlog"
	"github.com/thefass/ub-tools/internal/harvester"
	"github.com/thefass/ub-tools/internal/metrics"
	"github.com/thefass/ub-tools/internal/record"
)

// Orchestrator coordinates acquisition, conversion and delivery.
type Orchestrator struct {
	global     harvester.GlobalParams
	translator harvester.TranslationClient
	crawler    harvester.Crawler
	feeds      harvester.FeedFetcher
	feedState  harvester.FeedStateStore
	tracker    harvester.DeliveryTracker
	sink       harvester.Sink
	manager    *conversion.Manager
	errors     *errorlog.Logger
	logger     *zap.Logger
	clock      harvester.Clock
	limiter    *rate.Limiter
	feedMode   harvester.FeedRunMode

	mu   sync.Mutex
	seen map[string]bool
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Global     harvester.GlobalParams
	Translator harvester.TranslationClient
	Crawler    harvester.Crawler
	Feeds      harvester.FeedFetcher
	FeedState  harvester.FeedStateStore
	Tracker    harvester.DeliveryTracker
	Sink       harvester.Sink
	Manager    *conversion.Manager
	Errors     *errorlog.Logger
	Logger     *zap.Logger
	Clock      harvester.Clock
	FeedMode   harvester.FeedRunMode
}

// New creates an Orchestrator. The download delay is enforced as a
// process-wide rate limit across all journals, capped at the
// configured maximum delay.
func New(cfg Config) *Orchestrator {
	delay := cfg.Global.DownloadDelay
	if cfg.Global.MaxDownloadDelay > 0 && delay > cfg.Global.MaxDownloadDelay {
		delay = cfg.Global.MaxDownloadDelay
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = conversion.SystemClock()
	}
	feedMode := cfg.FeedMode
	if feedMode == "" {
		feedMode = harvester.FeedRunNormal
	}
	return &Orchestrator{
		global:     cfg.Global,
		translator: cfg.Translator,
		crawler:    cfg.Crawler,
		feeds:      cfg.Feeds,
		feedState:  cfg.FeedState,
		tracker:    cfg.Tracker,
		sink:       cfg.Sink,
		manager:    cfg.Manager,
		errors:     cfg.Errors,
		logger:     cfg.Logger,
		clock:      clock,
		limiter:    rate.NewLimiter(limit, 1),
		feedMode:   feedMode,
		seen:       make(map[string]bool),
	}
}

// Run harvests every journal and returns the aggregated totals.
func (o *Orchestrator) Run(ctx context.Context, journals []*harvester.JournalParams) (harvester.RunTotals, error) {
	var totals harvester.RunTotals
	for _, journal := range journals {
		if err := ctx.Err(); err != nil {
			return totals, err
		}

		o.logger.Info("harvesting journal",
			zap.String("journal", journal.Name),
			zap.String("mode", string(journal.Mode)))

		journalTotals := o.harvestJournal(ctx, journal)
		totals.Add(journalTotals)

		o.logger.Info("journal finished",
			zap.String("journal", journal.Name),
			zap.Int("harvested_urls", journalTotals.HarvestedURLs),
			zap.Int("records", journalTotals.Records))
	}
	return totals, nil
}

func (o *Orchestrator) harvestJournal(ctx context.Context, journal *harvester.JournalParams) harvester.RunTotals {
	var futures []*conversion.Future

	switch journal.Mode {
	case harvester.ModeDirect:
		if future := o.harvestURL(ctx, journal, journal.EntryURL); future != nil {
			futures = append(futures, future)
		}
	case harvester.ModeCrawl:
		futures = o.harvestCrawl(ctx, journal)
	case harvester.ModeRSS:
		futures = o.harvestFeed(ctx, journal)
	}

	totals := harvester.RunTotals{HarvestedURLs: len(futures)}
	for _, future := range futures {
		o.reap(ctx, future, &totals)
	}
	return totals
}

func (o *Orchestrator) harvestCrawl(ctx context.Context, journal *harvester.JournalParams) []*conversion.Future {
	pages, err := o.crawler.Crawl(ctx, journal)
	if err != nil {
		o.errors.Log(journal.Name, errorlog.KindUnknown, journal.EntryURL, err.Error())
		return nil
	}

	var futures []*conversion.Future
	for page := range pages {
		if page.ErrorMessage != "" {
			o.errors.Log(journal.Name, errorlog.KindConversionFailed, page.URL, page.ErrorMessage)
			continue
		}
		if journal.ExtractionPattern != nil && !journal.ExtractionPattern.MatchString(page.URL) {
			continue
		}
		if future := o.harvestURL(ctx, journal, page.URL); future != nil {
			futures = append(futures, future)
		}
	}
	return futures
}

func (o *Orchestrator) harvestFeed(ctx context.Context, journal *harvester.JournalParams) []*conversion.Future {
	parsed, err := o.feeds.Fetch(ctx, journal.EntryURL)
	if err != nil {
		o.errors.Log(journal.Name, errorlog.KindUnknown, journal.EntryURL, err.Error())
		return nil
	}

	if o.feedMode != harvester.FeedRunTest {
		stale, err := o.feedIsStale(ctx, journal.EntryURL, parsed.LastBuildDate)
		if err != nil {
			o.errors.Log(journal.Name, errorlog.KindUnknown, journal.EntryURL, err.Error())
			return nil
		}
		if stale {
			o.logger.Info("feed unchanged since last harvest",
				zap.String("journal", journal.Name),
				zap.Time("last_build_date", parsed.LastBuildDate))
			return nil
		}
	}

	var futures []*conversion.Future
	for _, item := range parsed.Items {
		if o.feedMode != harvester.FeedRunTest {
			processed, err := o.feedState.ItemProcessed(ctx, journal.EntryURL, item.ID)
			if err != nil {
				o.errors.Log(journal.Name, errorlog.KindUnknown, item.Link, err.Error())
				continue
			}
			if processed {
				if o.feedMode == harvester.FeedRunVerbose {
					o.logger.Info("feed item already processed",
						zap.String("journal", journal.Name),
						zap.String("item", item.ID))
				}
				continue
			}
		}

		future := o.harvestURL(ctx, journal, item.Link)
		if future == nil {
			continue
		}
		futures = append(futures, future)

		if o.feedMode != harvester.FeedRunTest {
			if err := o.feedState.MarkItemProcessed(ctx, journal.EntryURL, item.ID); err != nil {
				o.errors.Log(journal.Name, errorlog.KindUnknown, item.Link, err.Error())
			}
		}
	}
	return futures
}

// feedIsStale compares the feed's build date with the stored one. A
// feed seen for the first time is recorded and harvested; a feed whose
// stored date is not older than the current one is stale. Feeds that
// publish no build date are rate-limited by the harvest interval
// against the last harvest time instead.
func (o *Orchestrator) feedIsStale(ctx context.Context, feedURL string, current time.Time) (bool, error) {
	stored, lastHarvest, known, err := o.feedState.FeedState(ctx, feedURL)
	if err != nil {
		return false, err
	}
	now := o.clock.Now()
	if !known {
		return false, o.feedState.UpsertFeed(ctx, feedURL, current, now)
	}
	if current.IsZero() {
		if o.global.RSSHarvestInterval > 0 && now.Sub(lastHarvest) < o.global.RSSHarvestInterval {
			return true, nil
		}
	} else if !stored.Before(current) {
		return true, nil
	}
	return false, o.feedState.UpsertFeed(ctx, feedURL, current, now)
}

// harvestURL downloads one URL through the translation service and
// submits the response for conversion. Returns nil when the URL was
// already handled this run or the download failed.
func (o *Orchestrator) harvestURL(ctx context.Context, journal *harvester.JournalParams, url string) *conversion.Future {
	if url == "" || o.alreadySeen(url) {
		return nil
	}

	body, ok := o.download(ctx, journal, url)
	if !ok {
		metrics.RecordHarvestedURL(journal.Name, "failed")
		return nil
	}

	metrics.RecordHarvestedURL(journal.Name, "ok")
	return o.manager.Submit(harvester.HarvestableItem{Journal: journal, URL: url}, body)
}

func (o *Orchestrator) download(ctx context.Context, journal *harvester.JournalParams, url string) ([]byte, bool) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, false
	}

	body, status, err := o.translator.Web(ctx, url, o.global.RequestTimeout)
	if err != nil {
		o.errors.Log(journal.Name, errorlog.KindConversionFailed, url, err.Error())
		return nil, false
	}

	// The service answers 300 when the page maps to several candidate
	// items; resubmitting the body verbatim selects all of them. A
	// second 300 is a hard failure.
	if status == 300 {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, false
		}
		body, status, err = o.translator.Web(ctx, string(body), o.global.RequestTimeout)
		if err != nil {
			o.errors.Log(journal.Name, errorlog.KindConversionFailed, url, err.Error())
			return nil, false
		}
		if status == 300 {
			o.errors.Log(journal.Name, errorlog.KindDownloadMultiple, url,
				"multiple candidates remained after resubmission")
			return nil, false
		}
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		o.errors.Log(journal.Name, errorlog.KindEmptyResponse, url, "empty response")
		return nil, false
	}
	return body, true
}

func (o *Orchestrator) alreadySeen(url string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen[url] {
		return true
	}
	o.seen[url] = true
	return false
}

// reap waits for one conversion result and delivers its records.
func (o *Orchestrator) reap(ctx context.Context, future *conversion.Future, totals *harvester.RunTotals) {
	result, err := future.Wait(ctx)
	if err != nil {
		return
	}

	journal := result.Item.Journal
	if result.Err != nil {
		kind := errorlog.KindParse
		if strings.Contains(result.Err.Error(), "empty response") {
			kind = errorlog.KindEmptyResponse
		}
		o.errors.Log(journal.Name, kind, result.Item.URL, result.Err.Error())
		return
	}
	for _, itemErr := range result.ItemErrors {
		o.errors.AutoLog(journal.Name, result.Item.URL, itemErr.Error())
	}

	totals.SkippedExclusion += result.Totals.SkippedExclusion
	totals.SkippedOnlineFirst += result.Totals.SkippedOnlineFirst
	totals.SkippedEarlyView += result.Totals.SkippedEarlyView

	for _, rec := range result.Records {
		o.deliver(ctx, result.Item, rec, totals)
	}
}

// deliver writes one record to the sink unless an identical record was
// already delivered for its URL without error. Both successful
// emissions and failed attempts update the tracker entry, so a failed
// attempt never suppresses the retry on the next run.
func (o *Orchestrator) deliver(ctx context.Context, item harvester.HarvestableItem, rec *record.Record, totals *harvester.RunTotals) {
	journal := item.Journal
	tracked := journal.DeliveryMode != harvester.DeliveryNone

	if tracked {
		delivered, _, err := o.tracker.HasAlreadyDelivered(ctx, journal.DeliveryMode, item.URL, rec.Checksum)
		if err != nil {
			o.errors.Log(journal.Name, errorlog.KindUnknown, item.URL, err.Error())
			return
		}
		if delivered {
			o.logger.Debug("record previously delivered",
				zap.String("journal", journal.Name),
				zap.String("url", item.URL))
			totals.PreviouslyDownloaded++
			metrics.RecordRecord(journal.Name, "previously_delivered")
			return
		}
	}

	if err := o.sink.Write(ctx, rec); err != nil {
		o.errors.Log(journal.Name, errorlog.KindUnknown, item.URL, err.Error())
		if tracked {
			o.recordDelivery(ctx, item, rec, err.Error())
		}
		return
	}

	if tracked {
		if err := o.recordDelivery(ctx, item, rec, ""); err != nil {
			return
		}
	}

	totals.Records++
	metrics.RecordRecord(journal.Name, "delivered")
}

// recordDelivery upserts the tracker entry for one delivery attempt.
// errorMessage is empty for successful emissions.
func (o *Orchestrator) recordDelivery(ctx context.Context, item harvester.HarvestableItem, rec *record.Record, errorMessage string) error {
	journal := item.Journal
	entry := harvester.DeliveryEntry{
		ID:           uuid.NewString(),
		Mode:         journal.DeliveryMode,
		URL:          item.URL,
		JournalName:  journal.Name,
		Checksum:     rec.Checksum,
		ErrorMessage: errorMessage,
		DeliveredAt:  o.clock.Now().UTC(),
	}
	if err := o.tracker.RecordDelivery(ctx, entry); err != nil {
		o.errors.Log(journal.Name, errorlog.KindUnknown, item.URL, err.Error())
		return err
	}
	return nil
}
