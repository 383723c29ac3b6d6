package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thefass/ub-tools/internal/harvester"
)

func TestHealthz(t *testing.T) {
	router := NewRouter(func() harvester.RunTotals { return harvester.RunTotals{} }, zap.NewNop())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "ok", recorder.Body.String())
}

func TestStatus(t *testing.T) {
	totals := harvester.RunTotals{HarvestedURLs: 5, Records: 3, PreviouslyDownloaded: 2}
	router := NewRouter(func() harvester.RunTotals { return totals }, zap.NewNop())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]int
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Equal(t, 5, body["harvested_urls"])
	require.Equal(t, 3, body["records"])
	require.Equal(t, 2, body["previously_downloaded"])
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(func() harvester.RunTotals { return harvester.RunTotals{} }, zap.NewNop())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "go_goroutines")
}
