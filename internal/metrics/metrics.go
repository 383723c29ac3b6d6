// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	harvestedURLsTotal          *prometheus.CounterVec
	recordsTotal                *prometheus.CounterVec
	harvestErrorsTotal          *prometheus.CounterVec
	conversionsInFlight         prometheus.Gauge
	translationRequestDurations *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestedURLsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_urls_total",
				Help: "Total number of URLs submitted to the translation service, labeled by journal and outcome.",
			},
			[]string{"journal", "outcome"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Total number of converted records, labeled by journal and disposition.",
			},
			[]string{"journal", "disposition"},
		)

		harvestErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_errors_total",
				Help: "Total number of harvest errors, labeled by error kind.",
			},
			[]string{"kind"},
		)

		conversionsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_conversions_in_flight",
				Help: "Number of conversion tasks currently executing.",
			},
		)

		translationRequestDurations = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_translation_request_duration_seconds",
				Help:    "Translation service request durations, labeled by endpoint.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		)
	})
}

// RecordHarvestedURL counts one translation-service submission.
func RecordHarvestedURL(journal, outcome string) {
	if harvestedURLsTotal != nil {
		harvestedURLsTotal.WithLabelValues(journal, outcome).Inc()
	}
}

// RecordRecord counts one converted record with its disposition
// (delivered, duplicate, skipped).
func RecordRecord(journal, disposition string) {
	if recordsTotal != nil {
		recordsTotal.WithLabelValues(journal, disposition).Inc()
	}
}

// RecordError counts one categorized harvest error.
func RecordError(kind string) {
	if harvestErrorsTotal != nil {
		harvestErrorsTotal.WithLabelValues(kind).Inc()
	}
}

// ConversionStarted marks a conversion task as executing.
func ConversionStarted() {
	if conversionsInFlight != nil {
		conversionsInFlight.Inc()
	}
}

// ConversionFinished releases an executing conversion task.
func ConversionFinished() {
	if conversionsInFlight != nil {
		conversionsInFlight.Dec()
	}
}

// ObserveTranslationRequest records the duration of one request.
func ObserveTranslationRequest(endpoint string, d time.Duration) {
	if translationRequestDurations != nil {
		translationRequestDurations.WithLabelValues(endpoint).Observe(d.Seconds())
	}
}
