package translation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/web", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, "https://example.com/article", string(body))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"itemType":"journalArticle"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "harvester/1.0", zap.NewNop())
	body, status, err := client.Web(context.Background(), "https://example.com/article", time.Second)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `[{"itemType":"journalArticle"}]`, string(body))
}

func TestWebMultipleMatchesIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultipleChoices)
		w.Write([]byte(`{"url":{"items":{}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())
	body, status, err := client.Web(context.Background(), "https://example.com/article", time.Second)
	require.NoError(t, err)
	require.Equal(t, http.StatusMultipleChoices, status)
	require.NotEmpty(t, body)
}

func TestWebServerErrorCarriesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("An error occurred during translation"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())
	body, status, err := client.Web(context.Background(), "https://example.com/article", time.Second)
	require.Error(t, err)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, err.Error(), "An error occurred during translation")
	require.Equal(t, "An error occurred during translation", string(body))
}

func TestExportSetsFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/export", r.URL.Path)
		require.Equal(t, "bibtex", r.URL.Query().Get("format"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte("@article{}"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())
	body, err := client.Export(context.Background(), "bibtex", []byte(`[]`), time.Second)
	require.NoError(t, err)
	require.Equal(t, "@article{}", string(body))
}

func TestWebTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", zap.NewNop())
	_, _, err := client.Web(context.Background(), "https://example.com", 20*time.Millisecond)
	require.Error(t, err)
}
