package authlookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLookupPrimaryHit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<td><SMALL>PPN</SMALL></td><td><div><SMALL>123456789</SMALL></div></td>`))
	}))
	defer server.Close()

	client := New(server.URL+"/?query=", "", "", "", zap.NewNop())
	id, err := client.LookupID(context.Background(), "Müller, Hans")
	require.NoError(t, err)
	require.Equal(t, "123456789", id)
}

func TestLookupFallsBack(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>no hits</html>"))
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Müller, Hans", r.URL.Query().Get("q"))
		w.Write([]byte(`{"member":[{"gndIdentifier":"118584596"}]}`))
	}))
	defer fallback.Close()

	client := New(primary.URL+"/?query=", fallback.URL, "q", "", zap.NewNop())
	id, err := client.LookupID(context.Background(), "Müller, Hans")
	require.NoError(t, err)
	require.Equal(t, "118584596", id)
}

func TestLookupMissIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"member":[]}`))
	}))
	defer server.Close()

	client := New("", server.URL, "q", "", zap.NewNop())
	id, err := client.LookupID(context.Background(), "Unknown, Author")
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestLookupTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL+"/?query=", "", "", "", zap.NewNop())
	_, err := client.LookupID(context.Background(), "Anyone")
	require.Error(t, err)
}
