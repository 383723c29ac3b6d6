// Package errorlog aggregates per-journal harvest errors and renders
// the end-of-run report.
package errorlog

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/thefass/ub-tools/internal/metrics"
)

// Kind labels a class of harvest failure.
type Kind string

// Failure classes recorded in the report.
const (
	KindConversionFailed Kind = "ERROR-CONVERSION_FAILED"
	KindDownloadMultiple Kind = "ERROR-DOWNLOAD_MULTIPLE"
	KindParse            Kind = "ERROR-PARSE"
	KindEmptyResponse    Kind = "ERROR-EMPTY_RESPONSE"
	KindDateFormat       Kind = "ERROR-DATE_FORMAT"
	KindBuildFailure     Kind = "ERROR-BUILD_FAILURE"
	KindUnknown          Kind = "ERROR-UNKNOWN"
)

// autoKinds reclassifies raw error messages whose text identifies a
// more specific failure than the caller knew about.
var autoKinds = []struct {
	pattern *regexp.Regexp
	kind    Kind
}{
	{regexp.MustCompile(`(?i)could not parse date`), KindDateFormat},
	{regexp.MustCompile(`(?i)invalid date format`), KindDateFormat},
	{regexp.MustCompile(`(?i)unable to parse .* as a date`), KindDateFormat},
	{regexp.MustCompile(`(?i)empty response`), KindEmptyResponse},
}

// URLError is one failed URL of a journal.
type URLError struct {
	URL     string `yaml:"url"`
	Kind    Kind   `yaml:"kind"`
	Message string `yaml:"message"`
}

// JournalErrors collects everything that went wrong for one journal.
type JournalErrors struct {
	Journal     string     `yaml:"journal"`
	URLErrors   []URLError `yaml:"url_errors,omitempty"`
	OtherErrors []string   `yaml:"other_errors,omitempty"`
}

// Report is the serialized end-of-run error summary. It is written even
// when empty so consumers can distinguish "no errors" from "no run".
type Report struct {
	HasErrors bool            `yaml:"has_errors"`
	Journals  []JournalErrors `yaml:"journals,omitempty"`
}

// Logger accumulates errors, safe for concurrent use.
type Logger struct {
	log *zap.Logger

	mu       sync.Mutex
	journals map[string]*JournalErrors
}

// New returns an empty error Logger.
func New(log *zap.Logger) *Logger {
	return &Logger{log: log, journals: make(map[string]*JournalErrors)}
}

// Log records a failure for one URL of a journal under the given kind.
func (l *Logger) Log(journal string, kind Kind, url, message string) {
	l.log.Warn("harvest error",
		zap.String("journal", journal),
		zap.String("kind", string(kind)),
		zap.String("url", url),
		zap.String("error", message))
	metrics.RecordError(string(kind))

	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.journal(journal)
	if url == "" {
		entry.OtherErrors = append(entry.OtherErrors, fmt.Sprintf("%s: %s", kind, message))
		return
	}
	entry.URLErrors = append(entry.URLErrors, URLError{URL: url, Kind: kind, Message: message})
}

// AutoLog records a failure whose kind is derived from the message
// text, falling back to ERROR-UNKNOWN.
func (l *Logger) AutoLog(journal, url, message string) {
	l.Log(journal, Classify(message), url, message)
}

// Classify maps a raw error message to the most specific known kind.
func Classify(message string) Kind {
	for _, auto := range autoKinds {
		if auto.pattern.MatchString(message) {
			return auto.kind
		}
	}
	return KindUnknown
}

// HasErrors reports whether anything was logged.
func (l *Logger) HasErrors() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.journals) > 0
}

// Snapshot assembles the report with journals in stable name order.
func (l *Logger) Snapshot() Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.journals))
	for name := range l.journals {
		names = append(names, name)
	}
	sort.Strings(names)

	report := Report{HasErrors: len(names) > 0}
	for _, name := range names {
		report.Journals = append(report.Journals, *l.journals[name])
	}
	return report
}

// WriteReport serializes the report to path. The file is always
// written, including for error-free runs.
func (l *Logger) WriteReport(path string) error {
	data, err := yaml.Marshal(l.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal error report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write error report: %w", err)
	}
	return nil
}

func (l *Logger) journal(name string) *JournalErrors {
	entry, ok := l.journals[name]
	if !ok {
		entry = &JournalErrors{Journal: name}
		l.journals[name] = entry
	}
	return entry
}
