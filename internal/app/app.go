// Package app wires the harvester's collaborators together from
// configuration.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/thefass/ub-tools/internal/authlookup"
	"github.com/thefass/ub-tools/internal/config"
	"github.com/thefass/ub-tools/internal/conversion"
	"github.com/thefass/ub-tools/internal/crawl"
	"github.com/thefass/ub-tools/internal/delivery"
	"github.com/thefass/ub-tools/internal/errorlog"
	"github.com/thefass/ub-tools/internal/feed"
	"github.com/thefass/ub-tools/internal/feedstate"
	"github.com/thefass/ub-tools/internal/harvester"
	"github.com/thefass/ub-tools/internal/langid"
	"github.com/thefass/ub-tools/internal/logging"
	"github.com/thefass/ub-tools/internal/metrics"
	"github.com/thefass/ub-tools/internal/orchestrator"
	"github.com/thefass/ub-tools/internal/sink"
	"github.com/thefass/ub-tools/internal/translation"
)

// App holds the assembled harvester with everything it needs for a run.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Journals     []*harvester.JournalParams
	Orchestrator *orchestrator.Orchestrator
	Manager      *conversion.Manager
	Errors       *errorlog.Logger

	mu      sync.Mutex
	totals  harvester.RunTotals
	closers []func()
}

// New builds the application from the config file at cfgPath.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Verbose)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	metrics.Init()

	journals, err := cfg.JournalParams()
	if err != nil {
		return nil, err
	}
	global := cfg.GlobalParams()
	groups := cfg.GroupParams()

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Journals: journals,
		Errors:   errorlog.New(logger),
	}

	tracker, feedState, err := a.buildStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fileSink, err := sink.NewFileSink(cfg.Output.Path, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := fileSink.Close(); err != nil {
			logger.Error("close output", zap.Error(err))
		}
	})

	userAgent := firstUserAgent(groups)
	lookup := buildAuthorLookup(groups, userAgent, logger)

	augmenter := conversion.NewAugmenter(lookup, langid.NewClassifier(), global.AuthorNameBlacklist, logger)
	builder := conversion.NewBuilder(groups, conversion.SystemClock())
	a.Manager = conversion.NewManager(global, augmenter, builder, logger)
	a.closers = append(a.closers, a.Manager.Stop)

	a.Orchestrator = orchestrator.New(orchestrator.Config{
		Global:     global,
		Translator: translation.NewClient(global.TranslationServerURL, userAgent, logger),
		Crawler:    crawl.NewCollyCrawler(userAgent, global.DownloadDelay, global.CrawlTimeout, logger),
		Feeds:      feed.NewFetcher(userAgent, logger),
		FeedState:  feedState,
		Tracker:    tracker,
		Sink:       fileSink,
		Manager:    a.Manager,
		Errors:     a.Errors,
		Logger:     logger,
		FeedMode:   harvester.FeedRunMode(cfg.Harvester.FeedRunMode),
	})

	return a, nil
}

// buildStores uses Postgres when a DSN is configured and falls back to
// in-memory stores otherwise, which makes single runs without state
// possible.
func (a *App) buildStores(ctx context.Context, cfg config.Config) (harvester.DeliveryTracker, harvester.FeedStateStore, error) {
	if cfg.DB.DSN == "" {
		a.Logger.Warn("no database configured, state will not survive this run")
		return delivery.NewMemoryStore(), feedstate.NewMemoryStore(), nil
	}

	tracker, err := delivery.NewPostgresStore(ctx, delivery.PostgresStoreConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.DeliveryTable,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, tracker.Close)

	feedState, err := feedstate.NewPostgresStore(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, feedState.Close)

	return tracker, feedState, nil
}

// Totals returns the accumulated run totals.
func (a *App) Totals() harvester.RunTotals {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totals
}

// AddTotals accumulates run totals for the status endpoint.
func (a *App) AddTotals(totals harvester.RunTotals) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals.Add(totals)
}

// Close shuts components down in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.Logger.Sync()
}

func firstUserAgent(groups map[string]harvester.GroupParams) string {
	for _, group := range groups {
		if group.UserAgent != "" {
			return group.UserAgent
		}
	}
	return "ub-tools-harvester/1.0"
}

// buildAuthorLookup uses the first group that configures lookup
// endpoints; the endpoints are institution-wide in practice.
func buildAuthorLookup(groups map[string]harvester.GroupParams, userAgent string, logger *zap.Logger) harvester.AuthorLookup {
	for _, group := range groups {
		if group.AuthorPrimaryLookupURL != "" || group.AuthorFallbackLookupURL != "" {
			return authlookup.New(
				group.AuthorPrimaryLookupURL,
				group.AuthorFallbackLookupURL,
				group.AuthorFallbackQueryParam,
				userAgent,
				logger,
			)
		}
	}
	return nil
}
