// Package api exposes the operational HTTP endpoints: health, metrics
// and a run-status snapshot.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/thefass/ub-tools/internal/harvester"
)

// StatusProvider returns the current run totals.
type StatusProvider func() harvester.RunTotals

// NewRouter assembles the ops router.
func NewRouter(status StatusProvider, logger *zap.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Handle("/metrics", promhttp.Handler())

	router.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		totals := status()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"harvested_urls":        totals.HarvestedURLs,
			"records":               totals.Records,
			"previously_downloaded": totals.PreviouslyDownloaded,
			"skipped_exclusion":     totals.SkippedExclusion,
			"skipped_online_first":  totals.SkippedOnlineFirst,
			"skipped_early_view":    totals.SkippedEarlyView,
		}); err != nil {
			logger.Error("encode status", zap.Error(err))
		}
	})

	return router
}

// Serve runs the ops server until ctx-independent shutdown; it is
// intended to be started in its own goroutine.
func Serve(addr string, handler http.Handler, logger *zap.Logger) {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("ops server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("ops server failed", zap.Error(err))
	}
}
