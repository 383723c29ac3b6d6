// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/thefass/ub-tools/internal/harvester"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig             `mapstructure:"server"`
	Logging   LoggingConfig            `mapstructure:"logging"`
	Harvester HarvesterConfig          `mapstructure:"harvester"`
	DB        DBConfig                 `mapstructure:"db"`
	Output    OutputConfig             `mapstructure:"output"`
	Groups    map[string]GroupConfig   `mapstructure:"groups"`
	Journals  map[string]JournalConfig `mapstructure:"journals"`
}

// ServerConfig controls the optional ops HTTP endpoint.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	Verbose     bool `mapstructure:"verbose"`
}

// HarvesterConfig governs the acquisition and conversion pipeline.
type HarvesterConfig struct {
	TranslationServerURL  string   `mapstructure:"translation_server_url"`
	DownloadDelayMs       int      `mapstructure:"download_delay_ms"`
	MaxDownloadDelayMs    int      `mapstructure:"max_download_delay_ms"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds"`
	CrawlTimeoutSeconds   int      `mapstructure:"crawl_timeout_seconds"`
	RSSHarvestIntervalMin int      `mapstructure:"rss_harvest_interval_minutes"`
	MaxConversionTasks    int      `mapstructure:"max_conversion_tasks"`
	SkipOnlineFirst       bool     `mapstructure:"skip_online_first_unconditionally"`
	AuthorNameBlacklist   []string `mapstructure:"author_name_blacklist"`
	FeedRunMode           string   `mapstructure:"feed_run_mode"`
	ErrorReportPath       string   `mapstructure:"error_report_path"`
}

// DBConfig controls access to the relational database backing the
// delivery tracker and the feed state store.
type DBConfig struct {
	DSN           string `mapstructure:"dsn"`
	MaxConns      int32  `mapstructure:"max_conns"`
	MinConns      int32  `mapstructure:"min_conns"`
	DeliveryTable string `mapstructure:"delivery_table"`
}

// OutputConfig sets where built records are written.
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// GroupConfig is the raw per-group section.
type GroupConfig struct {
	ISIL                     string `mapstructure:"isil"`
	UserAgent                string `mapstructure:"user_agent"`
	AuthorPrimaryLookupURL   string `mapstructure:"author_primary_lookup_url"`
	AuthorFallbackLookupURL  string `mapstructure:"author_fallback_lookup_url"`
	AuthorFallbackQueryParam string `mapstructure:"author_fallback_query_param"`
}

// JournalConfig is the raw per-journal section; regex fields are
// compiled by Compile.
type JournalConfig struct {
	ID           int    `mapstructure:"id"`
	Group        string `mapstructure:"group"`
	Mode         string `mapstructure:"mode"`
	DeliveryMode string `mapstructure:"delivery_mode"`
	URL          string `mapstructure:"url"`

	OnlineISSN       string `mapstructure:"online_issn"`
	PrintISSN        string `mapstructure:"print_issn"`
	OnlineIdentifier string `mapstructure:"online_identifier"`
	PrintIdentifier  string `mapstructure:"print_identifier"`

	ExpectedLanguages      []string `mapstructure:"expected_languages"`
	LanguageSourceFields   string   `mapstructure:"language_source_fields"`
	ForceLanguageDetection bool     `mapstructure:"force_language_detection"`
	DateLayout             string   `mapstructure:"date_layout"`

	CrawlDepth      int      `mapstructure:"crawl_depth"`
	SupportedURLs   []string `mapstructure:"supported_urls"`
	ExtractionRegex string   `mapstructure:"extraction_regex"`

	SuppressFields map[string]string `mapstructure:"suppress_fields"`
	OverrideFields map[string]string `mapstructure:"override_fields"`
	ExcludeFields  map[string]string `mapstructure:"exclude_fields"`

	RecordExclusionFilters map[string]string `mapstructure:"record_exclusion_filters"`
	RecordRemovalFilters   map[string]string `mapstructure:"record_removal_filters"`
	CustomFields           []string          `mapstructure:"custom_fields"`

	ReviewRegex string `mapstructure:"review_regex"`
	License     string `mapstructure:"license"`
	SSG         string `mapstructure:"ssg"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.verbose", false)
	v.SetDefault("harvester.download_delay_ms", 200)
	v.SetDefault("harvester.max_download_delay_ms", 10000)
	v.SetDefault("harvester.request_timeout_seconds", 10)
	v.SetDefault("harvester.crawl_timeout_seconds", 60)
	v.SetDefault("harvester.rss_harvest_interval_minutes", 1440)
	v.SetDefault("harvester.max_conversion_tasks", 8)
	v.SetDefault("harvester.feed_run_mode", string(harvester.FeedRunNormal))
	v.SetDefault("harvester.error_report_path", "harvest_report.yaml")
	v.SetDefault("db.delivery_table", "delivered_records")
	v.SetDefault("output.path", "records.jsonl")
}

// Validate enforces required values and reasonable limits. Validation
// failures are fatal before any harvesting begins.
func (c Config) Validate() error {
	if c.Harvester.TranslationServerURL == "" {
		return fmt.Errorf("harvester.translation_server_url is required")
	}
	if c.Harvester.MaxConversionTasks <= 0 {
		return fmt.Errorf("harvester.max_conversion_tasks must be > 0")
	}
	if c.Harvester.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("harvester.request_timeout_seconds must be > 0")
	}
	switch harvester.FeedRunMode(c.Harvester.FeedRunMode) {
	case harvester.FeedRunNormal, harvester.FeedRunVerbose, harvester.FeedRunTest:
	default:
		return fmt.Errorf("harvester.feed_run_mode %q is invalid", c.Harvester.FeedRunMode)
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the ops server is enabled")
	}
	for name, journal := range c.Journals {
		if journal.URL == "" {
			return fmt.Errorf("journal %q: url is required", name)
		}
		if journal.Group == "" {
			return fmt.Errorf("journal %q: group is required", name)
		}
		if _, ok := c.Groups[journal.Group]; !ok {
			return fmt.Errorf("journal %q: unknown group %q", name, journal.Group)
		}
		switch harvester.HarvestMode(journal.Mode) {
		case harvester.ModeDirect, harvester.ModeCrawl, harvester.ModeRSS:
		default:
			return fmt.Errorf("journal %q: mode %q is invalid", name, journal.Mode)
		}
		switch harvester.DeliveryMode(journal.DeliveryMode) {
		case "", harvester.DeliveryNone, harvester.DeliveryTest, harvester.DeliveryLive:
		default:
			return fmt.Errorf("journal %q: delivery_mode %q is invalid", name, journal.DeliveryMode)
		}
	}
	return nil
}

// GlobalParams converts the raw harvester section into run parameters.
func (c Config) GlobalParams() harvester.GlobalParams {
	return harvester.GlobalParams{
		TranslationServerURL: c.Harvester.TranslationServerURL,
		DownloadDelay:        time.Duration(c.Harvester.DownloadDelayMs) * time.Millisecond,
		MaxDownloadDelay:     time.Duration(c.Harvester.MaxDownloadDelayMs) * time.Millisecond,
		RequestTimeout:       time.Duration(c.Harvester.RequestTimeoutSeconds) * time.Second,
		CrawlTimeout:         time.Duration(c.Harvester.CrawlTimeoutSeconds) * time.Second,
		RSSHarvestInterval:   time.Duration(c.Harvester.RSSHarvestIntervalMin) * time.Minute,
		MaxConversionTasks:   c.Harvester.MaxConversionTasks,
		SkipOnlineFirst:      c.Harvester.SkipOnlineFirst,
		AuthorNameBlacklist:  c.Harvester.AuthorNameBlacklist,
	}
}

// GroupParams converts the raw group sections.
func (c Config) GroupParams() map[string]harvester.GroupParams {
	groups := make(map[string]harvester.GroupParams, len(c.Groups))
	for name, group := range c.Groups {
		groups[name] = harvester.GroupParams{
			Name:                     name,
			ISIL:                     group.ISIL,
			UserAgent:                group.UserAgent,
			AuthorPrimaryLookupURL:   group.AuthorPrimaryLookupURL,
			AuthorFallbackLookupURL:  group.AuthorFallbackLookupURL,
			AuthorFallbackQueryParam: group.AuthorFallbackQueryParam,
		}
	}
	return groups
}

// JournalParams compiles the raw journal sections into immutable run
// parameters. A pattern that fails to compile aborts the run.
func (c Config) JournalParams() ([]*harvester.JournalParams, error) {
	journals := make([]*harvester.JournalParams, 0, len(c.Journals))
	for name, journal := range c.Journals {
		deliveryMode := harvester.DeliveryMode(journal.DeliveryMode)
		if deliveryMode == "" {
			deliveryMode = harvester.DeliveryNone
		}
		params := &harvester.JournalParams{
			ID:                     journal.ID,
			Name:                   name,
			Group:                  journal.Group,
			Mode:                   harvester.HarvestMode(journal.Mode),
			DeliveryMode:           deliveryMode,
			EntryURL:               journal.URL,
			ISSN:                   harvester.ISSNPair{Online: journal.OnlineISSN, Print: journal.PrintISSN},
			Identifier:             harvester.IdentifierPair{Online: journal.OnlineIdentifier, Print: journal.PrintIdentifier},
			ExpectedLanguages:      journal.ExpectedLanguages,
			LanguageSourceFields:   journal.LanguageSourceFields,
			ForceLanguageDetection: journal.ForceLanguageDetection,
			DateLayout:             journal.DateLayout,
			CrawlDepth:             journal.CrawlDepth,
			CustomFields:           journal.CustomFields,
			License:                journal.License,
			SSG:                    journal.SSG,
			OverrideFilters:        journal.OverrideFields,
		}

		var err error
		if len(journal.SupportedURLs) > 0 {
			if params.SupportedURLs, err = compileAlternation(journal.SupportedURLs); err != nil {
				return nil, fmt.Errorf("journal %q: supported_urls: %w", name, err)
			}
		}
		if journal.ExtractionRegex != "" {
			if params.ExtractionPattern, err = regexp.Compile(journal.ExtractionRegex); err != nil {
				return nil, fmt.Errorf("journal %q: extraction_regex: %w", name, err)
			}
		}
		if journal.ReviewRegex != "" {
			if params.ReviewPattern, err = regexp.Compile(journal.ReviewRegex); err != nil {
				return nil, fmt.Errorf("journal %q: review_regex: %w", name, err)
			}
		}
		if params.SuppressionFilters, err = compileFilterMap(journal.SuppressFields); err != nil {
			return nil, fmt.Errorf("journal %q: suppress_fields: %w", name, err)
		}
		if params.ExclusionFilters, err = compileFilterMap(journal.ExcludeFields); err != nil {
			return nil, fmt.Errorf("journal %q: exclude_fields: %w", name, err)
		}
		if params.RecordExclusionFilters, err = compileFilterMap(journal.RecordExclusionFilters); err != nil {
			return nil, fmt.Errorf("journal %q: record_exclusion_filters: %w", name, err)
		}
		if params.RecordRemovalFilters, err = compileFilterMap(journal.RecordRemovalFilters); err != nil {
			return nil, fmt.Errorf("journal %q: record_removal_filters: %w", name, err)
		}

		journals = append(journals, params)
	}
	return journals, nil
}

// compileAlternation combines several patterns into one non-capturing
// alternation, the way the supported-URL target lists are configured.
func compileAlternation(patterns []string) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		parts = append(parts, "(?:"+pattern+")")
	}
	return regexp.Compile(strings.Join(parts, "|"))
}

func compileFilterMap(raw map[string]string) (map[string]*regexp.Regexp, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	compiled := make(map[string]*regexp.Regexp, len(raw))
	for field, pattern := range raw {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		compiled[field] = re
	}
	return compiled, nil
}
